package stub

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-booking/internal/clinicapi"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrBadInstant          = errors.New("start and end must be valid ISO-8601 instants")
)

// Store is the in-memory state behind the stand-in backend. Insertion
// order is kept so listings stay deterministic.
type Store struct {
	mu           sync.RWMutex
	patients     map[string]clinicapi.Patient
	patientOrder []string
	appointments map[string]*clinicapi.Appointment
	apptOrder    []string
	now          func() time.Time
}

func NewStore() *Store {
	return &Store{
		patients:     make(map[string]clinicapi.Patient),
		appointments: make(map[string]*clinicapi.Appointment),
		now:          time.Now,
	}
}

func (s *Store) AddPatient(name, contact string) clinicapi.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	created := clinicapi.FormatInstant(s.now())
	p := clinicapi.Patient{
		PatientID: id,
		Name:      name,
		Contact:   &contact,
		CreatedAt: &created,
	}
	s.patients[id] = p
	s.patientOrder = append(s.patientOrder, id)
	return p
}

func (s *Store) SearchPatients(q string) []clinicapi.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q = strings.ToLower(q)
	out := make([]clinicapi.Patient, 0)
	for _, id := range s.patientOrder {
		p := s.patients[id]
		if q == "" ||
			strings.Contains(strings.ToLower(p.Name), q) ||
			(p.Contact != nil && strings.Contains(strings.ToLower(*p.Contact), q)) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) CreateAppointment(req clinicapi.CreateAppointmentRequest, actor string) (*clinicapi.Appointment, error) {
	start, err := clinicapi.ParseInstant(req.Start)
	if err != nil {
		return nil, ErrBadInstant
	}
	if _, err := clinicapi.ParseInstant(req.End); err != nil {
		return nil, ErrBadInstant
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patients[req.PatientID]; !ok {
		return nil, ErrPatientNotFound
	}

	nowStr := clinicapi.FormatInstant(s.now())
	status := clinicapi.StatusPending
	emergency := req.IsEmergency
	appt := &clinicapi.Appointment{
		AppointmentID:     uuid.NewString(),
		PatientID:         &req.PatientID,
		StartDatetime:     clinicapi.FormatInstant(start),
		EndDatetime:       &req.End,
		DurationInMinutes: req.DurationInMinutes,
		Status:            &status,
		IsEmergency:       &emergency,
		IsFollowUpPending: req.IsFollowUpPending,
		CreatedAt:         &nowStr,
		UpdatedAt:         &nowStr,
	}
	if actor != "" {
		appt.CreatedBy = &actor
		appt.ModifiedBy = &actor
	}

	s.appointments[appt.AppointmentID] = appt
	s.apptOrder = append(s.apptOrder, appt.AppointmentID)
	return cloneAppointment(appt), nil
}

func (s *Store) UpdateAppointment(id string, req clinicapi.UpdateAppointmentRequest, actor string) (*clinicapi.Appointment, error) {
	if req.Start != nil {
		if _, err := clinicapi.ParseInstant(*req.Start); err != nil {
			return nil, ErrBadInstant
		}
	}
	if req.End != nil {
		if _, err := clinicapi.ParseInstant(*req.End); err != nil {
			return nil, ErrBadInstant
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}

	// Fields absent from the request stay untouched.
	if req.Status != nil {
		appt.Status = req.Status
	}
	if req.Start != nil {
		appt.StartDatetime = *req.Start
	}
	if req.End != nil {
		appt.EndDatetime = req.End
	}
	if req.DurationInMinutes != nil {
		appt.DurationInMinutes = *req.DurationInMinutes
	}
	if req.DidShowUp != nil {
		appt.DidShowUp = req.DidShowUp
	}
	if req.IsEmergency != nil {
		appt.IsEmergency = req.IsEmergency
	}

	updated := clinicapi.FormatInstant(s.now())
	appt.UpdatedAt = &updated
	if actor != "" {
		appt.ModifiedBy = &actor
	}
	return cloneAppointment(appt), nil
}

func (s *Store) ListAppointments() []clinicapi.AppointmentWithPatient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]clinicapi.AppointmentWithPatient, 0, len(s.apptOrder))
	for _, id := range s.apptOrder {
		appt := s.appointments[id]
		item := clinicapi.AppointmentWithPatient{Appointment: *cloneAppointment(appt)}
		if appt.PatientID != nil {
			if p, ok := s.patients[*appt.PatientID]; ok {
				item.Patient = &clinicapi.PatientRef{
					PatientID: p.PatientID,
					Name:      p.Name,
					Contact:   p.Contact,
				}
			}
		}
		out = append(out, item)
	}
	return out
}

// Available reports whether [start, end) is free of overlap with every
// non-cancelled appointment, optionally excluding one appointment id.
func (s *Store) Available(start, end time.Time, excludeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, appt := range s.appointments {
		if appt.AppointmentID == excludeID {
			continue
		}
		if appt.Status != nil && *appt.Status == clinicapi.StatusCancel {
			continue
		}
		oStart, err := clinicapi.ParseInstant(appt.StartDatetime)
		if err != nil {
			continue
		}
		oEnd := oStart.Add(time.Duration(appt.DurationInMinutes) * time.Minute)
		if appt.EndDatetime != nil {
			if t, err := clinicapi.ParseInstant(*appt.EndDatetime); err == nil {
				oEnd = t
			}
		}
		if start.Before(oEnd) && oStart.Before(end) {
			return false
		}
	}
	return true
}

func cloneAppointment(a *clinicapi.Appointment) *clinicapi.Appointment {
	out := *a
	return &out
}
