package clinicapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL, Options{
		Session: StaticSession{BearerToken: "test-token", Actor: "actor-1"},
		Logger:  zerolog.Nop(),
	})
	return c, srv
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func TestFormatInstant(t *testing.T) {
	at := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)
	if got := FormatInstant(at); got != "2025-06-10T14:00:00.000Z" {
		t.Fatalf("FormatInstant = %q", got)
	}

	loc := time.FixedZone("CEST", 2*3600)
	local := time.Date(2025, 6, 10, 16, 0, 0, 0, loc)
	if got := FormatInstant(local); got != "2025-06-10T14:00:00.000Z" {
		t.Fatalf("FormatInstant did not normalize to UTC: %q", got)
	}
}

func TestCreateAppointment(t *testing.T) {
	var gotBody map[string]any
	var gotReq *http.Request

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(r.Context())
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotBody); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}
		writeEnvelope(w, http.StatusCreated, Envelope{
			Success: true,
			Data:    json.RawMessage(`{"appointment_id":"a1","start_datetime":"2025-06-10T14:00:00.000Z","duration_in_minutes":30}`),
		})
	})

	appt, err := c.CreateAppointment(context.Background(), CreateAppointmentRequest{
		PatientID:         "p1",
		Start:             "2025-06-10T14:00:00.000Z",
		End:               "2025-06-10T14:30:00.000Z",
		DurationInMinutes: 30,
		IsEmergency:       false,
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if appt.AppointmentID != "a1" {
		t.Errorf("appointment id = %q", appt.AppointmentID)
	}

	if gotReq.Method != http.MethodPost || gotReq.URL.Path != "/appointments" {
		t.Errorf("request = %s %s, want POST /appointments", gotReq.Method, gotReq.URL.Path)
	}
	if gotReq.Header.Get("Authorization") != "Bearer test-token" {
		t.Errorf("missing bearer token, got %q", gotReq.Header.Get("Authorization"))
	}
	if gotReq.Header.Get("X-Actor-ID") != "actor-1" {
		t.Errorf("missing actor header")
	}
	if gotReq.Header.Get("X-Request-ID") == "" {
		t.Errorf("missing request id header")
	}

	want := map[string]any{
		"patientId":         "p1",
		"start":             "2025-06-10T14:00:00.000Z",
		"end":               "2025-06-10T14:30:00.000Z",
		"durationInMinutes": float64(30),
		"isEmergency":       false,
	}
	for k, v := range want {
		if gotBody[k] != v {
			t.Errorf("body[%q] = %v, want %v", k, gotBody[k], v)
		}
	}
	if _, present := gotBody["isFollowUpPending"]; present {
		t.Errorf("isFollowUpPending should be omitted when unset")
	}
	if len(gotBody) != len(want) {
		t.Errorf("body has extra keys: %v", gotBody)
	}
}

func TestUpdateAppointmentPartialBody(t *testing.T) {
	var gotBody map[string]any
	var gotReq *http.Request

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(r.Context())
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		writeEnvelope(w, http.StatusOK, Envelope{
			Success: true,
			Data:    json.RawMessage(`{"appointment_id":"a1","start_datetime":"2025-06-10T14:00:00.000Z","duration_in_minutes":30,"status":"confirm"}`),
		})
	})

	status := StatusConfirm
	_, err := c.UpdateAppointment(context.Background(), "a1", UpdateAppointmentRequest{Status: &status})
	if err != nil {
		t.Fatalf("UpdateAppointment: %v", err)
	}

	if gotReq.Method != http.MethodPatch || gotReq.URL.Path != "/appointments/a1" {
		t.Errorf("request = %s %s, want PATCH /appointments/a1", gotReq.Method, gotReq.URL.Path)
	}
	if len(gotBody) != 1 || gotBody["status"] != "confirm" {
		t.Errorf("partial body = %v, want only status", gotBody)
	}
}

func TestCheckAvailabilityQuery(t *testing.T) {
	var gotQuery map[string][]string

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		writeEnvelope(w, http.StatusOK, Envelope{
			Success: true,
			Data:    json.RawMessage(`{"available":true}`),
		})
	})

	start := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	ok, err := c.CheckAvailability(context.Background(), start, end, "")
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if !ok {
		t.Error("expected available")
	}
	if got := gotQuery["start"]; len(got) != 1 || got[0] != "2025-06-10T14:00:00.000Z" {
		t.Errorf("start query = %v", got)
	}
	if got := gotQuery["end"]; len(got) != 1 || got[0] != "2025-06-10T14:30:00.000Z" {
		t.Errorf("end query = %v", got)
	}
	if _, present := gotQuery["excludeAppointmentId"]; present {
		t.Error("excludeAppointmentId should be omitted when empty")
	}

	_, err = c.CheckAvailability(context.Background(), start, end, "a9")
	if err != nil {
		t.Fatalf("CheckAvailability with exclusion: %v", err)
	}
	if got := gotQuery["excludeAppointmentId"]; len(got) != 1 || got[0] != "a9" {
		t.Errorf("excludeAppointmentId query = %v", got)
	}
}

func TestEnvelopeErrorBecomesAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict, Envelope{
			Success: false,
			Error:   "Slot is no longer available",
			Details: json.RawMessage(`{"conflicting_appointment":"a7"}`),
		})
	})

	_, err := c.CreateAppointment(context.Background(), CreateAppointmentRequest{PatientID: "p1"})
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Message != "Slot is no longer available" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", apiErr.StatusCode)
	}
	if len(apiErr.Details) == 0 {
		t.Error("details were dropped")
	}
}

func TestSuccessFalseWithoutMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, Envelope{Success: false})
	})

	_, err := c.ListAppointments(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Message != "an error occurred" {
		t.Errorf("message = %q, want fallback", apiErr.Message)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := New(srv.URL, Options{Logger: zerolog.Nop()})
	_, err := c.ListAppointments(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != 0 {
		t.Errorf("status = %d, want 0 for transport failure", apiErr.StatusCode)
	}
	if apiErr.Message != "no response from server, check your connection" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestListAppointmentsJoinsPatients(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, Envelope{
			Success: true,
			Data: json.RawMessage(`[
				{"appointment_id":"a1","start_datetime":"2025-06-10T14:00:00.000Z","duration_in_minutes":30,
				 "patients":{"patient_id":"p1","name":"Ada Root"}},
				{"appointment_id":"a2","start_datetime":"2025-06-10T15:00:00.000Z","duration_in_minutes":15}
			]`),
		})
	})

	appts, err := c.ListAppointments(context.Background())
	if err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("got %d appointments, want 2", len(appts))
	}
	if appts[0].Patient == nil || appts[0].Patient.Name != "Ada Root" {
		t.Errorf("first appointment patient = %+v", appts[0].Patient)
	}
	if appts[1].Patient != nil {
		t.Errorf("second appointment should have no patient join")
	}
}

func TestSearchPatients(t *testing.T) {
	var gotQ string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQ = r.URL.Query().Get("q")
		writeEnvelope(w, http.StatusOK, Envelope{
			Success: true,
			Data:    json.RawMessage(`[{"patient_id":"p1","name":"Ada Root"}]`),
		})
	})

	patients, err := c.SearchPatients(context.Background(), "ada")
	if err != nil {
		t.Fatalf("SearchPatients: %v", err)
	}
	if gotQ != "ada" {
		t.Errorf("q = %q", gotQ)
	}
	if len(patients) != 1 || patients[0].PatientID != "p1" {
		t.Errorf("patients = %+v", patients)
	}
}
