// Package stub is an in-memory stand-in for the clinic backend. It
// implements the documented REST surface and envelope contract so the
// booking workflow can be exercised locally and in tests without the real
// collaborator. It is a development tool, not a backend design.
package stub

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-booking/internal/clinicapi"
)

type Server struct {
	store *Store
	log   zerolog.Logger
}

func NewServer(store *Store, log zerolog.Logger) *Server {
	return &Server{store: store, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.log))

	r.Get("/health", s.health)

	r.Get("/patients", s.searchPatients)
	r.Post("/patients", s.createPatient)

	r.Get("/appointments", s.listAppointments)
	r.Post("/appointments", s.createAppointment)
	r.Patch("/appointments/{id}", s.updateAppointment)

	r.Get("/slots/availability", s.checkAvailability)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) searchPatients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	writeData(w, http.StatusOK, s.store.SearchPatients(q))
}

type createPatientRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

func (s *Server) createPatient(w http.ResponseWriter, r *http.Request) {
	var req createPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "could not parse JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	writeData(w, http.StatusCreated, s.store.AddPatient(req.Name, req.Contact))
}

func (s *Server) listAppointments(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.store.ListAppointments())
}

func (s *Server) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req clinicapi.CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "could not parse JSON body")
		return
	}
	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}
	if req.DurationInMinutes < 15 {
		writeError(w, http.StatusBadRequest, "durationInMinutes must be at least 15")
		return
	}

	appt, err := s.store.CreateAppointment(req, r.Header.Get("X-Actor-ID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusCreated, appt)
}

func (s *Server) updateAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req clinicapi.UpdateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "could not parse JSON body")
		return
	}
	if req.Status != nil {
		switch *req.Status {
		case clinicapi.StatusPending, clinicapi.StatusConfirm, clinicapi.StatusCancel:
		default:
			writeError(w, http.StatusBadRequest, "status must be pending, confirm or cancel")
			return
		}
	}

	appt, err := s.store.UpdateAppointment(id, req, r.Header.Get("X-Actor-ID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, appt)
}

func (s *Server) checkAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := clinicapi.ParseInstant(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be a valid ISO-8601 instant")
		return
	}
	end, err := clinicapi.ParseInstant(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be a valid ISO-8601 instant")
		return
	}

	available := s.store.Available(start, end, q.Get("excludeAppointmentId"))
	writeData(w, http.StatusOK, clinicapi.AvailabilityCheck{Available: available})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPatientNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBadInstant):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not encode response")
		return
	}
	writeJSON(w, status, clinicapi.Envelope{Success: true, Data: raw})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, clinicapi.Envelope{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
