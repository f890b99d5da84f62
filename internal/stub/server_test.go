package stub

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-booking/internal/clinicapi"
)

// The stub is tested through the real REST client so the envelope contract
// is exercised end to end.
func newStubClient(t *testing.T) (*clinicapi.Client, *Store) {
	t.Helper()
	store := NewStore()
	srv := httptest.NewServer(NewServer(store, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	c := clinicapi.New(srv.URL, clinicapi.Options{
		Session: clinicapi.StaticSession{Actor: "actor-1"},
		Logger:  zerolog.Nop(),
	})
	return c, store
}

func mustCreate(t *testing.T, c *clinicapi.Client, patientID, start string, durationMins int) *clinicapi.Appointment {
	t.Helper()
	at, err := clinicapi.ParseInstant(start)
	if err != nil {
		t.Fatalf("bad start %q: %v", start, err)
	}
	end := at.Add(time.Duration(durationMins) * time.Minute)
	appt, err := c.CreateAppointment(context.Background(), clinicapi.CreateAppointmentRequest{
		PatientID:         patientID,
		Start:             start,
		End:               clinicapi.FormatInstant(end),
		DurationInMinutes: durationMins,
	})
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	return appt
}

func TestSearchPatients(t *testing.T) {
	c, store := newStubClient(t)
	store.AddPatient("Ada Root", "555-0101")
	store.AddPatient("Grace Kim", "555-0102")
	ctx := context.Background()

	all, err := c.SearchPatients(ctx, "")
	if err != nil {
		t.Fatalf("SearchPatients: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("empty query returned %d patients, want all 2", len(all))
	}

	byName, err := c.SearchPatients(ctx, "ada")
	if err != nil {
		t.Fatalf("SearchPatients: %v", err)
	}
	if len(byName) != 1 || byName[0].Name != "Ada Root" {
		t.Errorf("name search = %+v", byName)
	}

	byContact, err := c.SearchPatients(ctx, "0102")
	if err != nil {
		t.Fatalf("SearchPatients: %v", err)
	}
	if len(byContact) != 1 || byContact[0].Name != "Grace Kim" {
		t.Errorf("contact search = %+v", byContact)
	}
}

func TestCreateAppointmentValidation(t *testing.T) {
	c, store := newStubClient(t)
	patient := store.AddPatient("Ada Root", "")
	ctx := context.Background()

	cases := []struct {
		name   string
		req    clinicapi.CreateAppointmentRequest
		status int
	}{
		{
			"missing patient id",
			clinicapi.CreateAppointmentRequest{Start: "2025-06-10T14:00:00.000Z", End: "2025-06-10T14:30:00.000Z", DurationInMinutes: 30},
			400,
		},
		{
			"short duration",
			clinicapi.CreateAppointmentRequest{PatientID: patient.PatientID, Start: "2025-06-10T14:00:00.000Z", End: "2025-06-10T14:10:00.000Z", DurationInMinutes: 10},
			400,
		},
		{
			"bad instant",
			clinicapi.CreateAppointmentRequest{PatientID: patient.PatientID, Start: "tomorrow", End: "2025-06-10T14:30:00.000Z", DurationInMinutes: 30},
			400,
		},
		{
			"unknown patient",
			clinicapi.CreateAppointmentRequest{PatientID: "nope", Start: "2025-06-10T14:00:00.000Z", End: "2025-06-10T14:30:00.000Z", DurationInMinutes: 30},
			404,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.CreateAppointment(ctx, tc.req)
			var apiErr *clinicapi.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d (%s)", apiErr.StatusCode, tc.status, apiErr.Message)
			}
		})
	}
}

func TestCreateAppointmentDefaults(t *testing.T) {
	c, store := newStubClient(t)
	patient := store.AddPatient("Ada Root", "")

	appt := mustCreate(t, c, patient.PatientID, "2025-06-10T14:00:00.000Z", 30)
	if appt.Status == nil || *appt.Status != clinicapi.StatusPending {
		t.Errorf("status = %v, want pending", appt.Status)
	}
	if appt.CreatedBy == nil || *appt.CreatedBy != "actor-1" {
		t.Errorf("created_by = %v, want the acting user", appt.CreatedBy)
	}
	if appt.StartDatetime != "2025-06-10T14:00:00.000Z" {
		t.Errorf("start = %q", appt.StartDatetime)
	}
}

func TestAvailabilityOverlap(t *testing.T) {
	c, store := newStubClient(t)
	patient := store.AddPatient("Ada Root", "")
	ctx := context.Background()

	mustCreate(t, c, patient.PatientID, "2025-06-10T14:00:00.000Z", 30)
	booked, _ := time.Parse(time.RFC3339, "2025-06-10T14:00:00.000Z")

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"same interval", booked, booked.Add(30 * time.Minute), false},
		{"starts inside", booked.Add(15 * time.Minute), booked.Add(45 * time.Minute), false},
		{"ends inside", booked.Add(-15 * time.Minute), booked.Add(15 * time.Minute), false},
		{"covers it", booked.Add(-15 * time.Minute), booked.Add(45 * time.Minute), false},
		{"touches the start", booked.Add(-30 * time.Minute), booked, true},
		{"touches the end", booked.Add(30 * time.Minute), booked.Add(60 * time.Minute), true},
		{"clearly elsewhere", booked.Add(3 * time.Hour), booked.Add(4 * time.Hour), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.CheckAvailability(ctx, tc.start, tc.end, "")
			if err != nil {
				t.Fatalf("CheckAvailability: %v", err)
			}
			if got != tc.want {
				t.Fatalf("available = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAvailabilityExcludesAppointment(t *testing.T) {
	c, store := newStubClient(t)
	patient := store.AddPatient("Ada Root", "")
	ctx := context.Background()

	appt := mustCreate(t, c, patient.PatientID, "2025-06-10T14:00:00.000Z", 30)
	start, _ := time.Parse(time.RFC3339, "2025-06-10T14:00:00.000Z")
	end := start.Add(30 * time.Minute)

	got, err := c.CheckAvailability(ctx, start, end, "")
	if err != nil || got {
		t.Fatalf("unexcluded check = (%v, %v), want busy", got, err)
	}

	got, err = c.CheckAvailability(ctx, start, end, appt.AppointmentID)
	if err != nil {
		t.Fatalf("excluded check: %v", err)
	}
	if !got {
		t.Fatal("appointment's own interval must read free when excluded")
	}
}

func TestCancelFreesSlot(t *testing.T) {
	c, store := newStubClient(t)
	patient := store.AddPatient("Ada Root", "")
	ctx := context.Background()

	appt := mustCreate(t, c, patient.PatientID, "2025-06-10T14:00:00.000Z", 30)
	start, _ := time.Parse(time.RFC3339, "2025-06-10T14:00:00.000Z")
	end := start.Add(30 * time.Minute)

	status := clinicapi.StatusCancel
	if _, err := c.UpdateAppointment(ctx, appt.AppointmentID, clinicapi.UpdateAppointmentRequest{Status: &status}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := c.CheckAvailability(ctx, start, end, "")
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if !got {
		t.Fatal("cancelled appointment still blocks the slot")
	}
}

func TestPartialUpdate(t *testing.T) {
	c, store := newStubClient(t)
	patient := store.AddPatient("Ada Root", "")
	ctx := context.Background()

	appt := mustCreate(t, c, patient.PatientID, "2025-06-10T14:00:00.000Z", 30)

	status := clinicapi.StatusConfirm
	updated, err := c.UpdateAppointment(ctx, appt.AppointmentID, clinicapi.UpdateAppointmentRequest{Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status == nil || *updated.Status != clinicapi.StatusConfirm {
		t.Errorf("status = %v", updated.Status)
	}
	if updated.StartDatetime != appt.StartDatetime {
		t.Errorf("start changed on a status-only update: %q", updated.StartDatetime)
	}
	if updated.DurationInMinutes != 30 {
		t.Errorf("duration changed: %d", updated.DurationInMinutes)
	}

	bad := "later"
	_, err = c.UpdateAppointment(ctx, appt.AppointmentID, clinicapi.UpdateAppointmentRequest{Start: &bad})
	var apiErr *clinicapi.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Fatalf("err = %v, want a 400 APIError", err)
	}

	wrong := "archived"
	_, err = c.UpdateAppointment(ctx, appt.AppointmentID, clinicapi.UpdateAppointmentRequest{Status: &wrong})
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Fatalf("err = %v, want a 400 APIError for an unknown status", err)
	}

	_, err = c.UpdateAppointment(ctx, "missing", clinicapi.UpdateAppointmentRequest{Status: &status})
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Fatalf("err = %v, want a 404 APIError", err)
	}
}

func TestListJoinsPatient(t *testing.T) {
	c, store := newStubClient(t)
	patient := store.AddPatient("Ada Root", "555-0101")
	ctx := context.Background()

	mustCreate(t, c, patient.PatientID, "2025-06-10T14:00:00.000Z", 30)
	mustCreate(t, c, patient.PatientID, "2025-06-10T16:00:00.000Z", 15)

	items, err := c.ListAppointments(ctx)
	if err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	for i, item := range items {
		if item.Patient == nil || item.Patient.Name != "Ada Root" {
			t.Errorf("item %d patient = %+v", i, item.Patient)
		}
	}
	// Insertion order is preserved.
	if items[0].StartDatetime != "2025-06-10T14:00:00.000Z" {
		t.Errorf("first item start = %q", items[0].StartDatetime)
	}
}
