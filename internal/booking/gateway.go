package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-booking/internal/clinicapi"
)

// Notifier receives user-facing outcome notifications (the toast layer in
// the web client).
type Notifier interface {
	Success(msg string)
	Error(msg, detail string)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Success(string)       {}
func (NopNotifier) Error(string, string) {}

// API is the slice of the REST client the gateway needs.
type API interface {
	CreateAppointment(ctx context.Context, req clinicapi.CreateAppointmentRequest) (*clinicapi.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, req clinicapi.UpdateAppointmentRequest) (*clinicapi.Appointment, error)
	ListAppointments(ctx context.Context) ([]clinicapi.AppointmentWithPatient, error)
}

const listCacheTTL = 30 * time.Second

type listCache struct {
	mu        sync.Mutex
	items     []clinicapi.AppointmentWithPatient
	valid     bool
	fetchedAt time.Time
}

func (lc *listCache) get() ([]clinicapi.AppointmentWithPatient, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if !lc.valid || time.Since(lc.fetchedAt) > listCacheTTL {
		return nil, false
	}
	return lc.items, true
}

func (lc *listCache) put(items []clinicapi.AppointmentWithPatient) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.items = items
	lc.valid = true
	lc.fetchedAt = time.Now()
}

func (lc *listCache) invalidate() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.items = nil
	lc.valid = false
}

// Gateway issues appointment mutations and keeps the cached appointment
// list coherent: every successful mutation invalidates it, failures leave
// it (and all other local state) intact.
type Gateway struct {
	api    API
	notify Notifier
	log    zerolog.Logger
	lists  listCache
}

func NewGateway(api API, notify Notifier, log zerolog.Logger) *Gateway {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Gateway{api: api, notify: notify, log: log}
}

func (g *Gateway) Create(ctx context.Context, req clinicapi.CreateAppointmentRequest) (*clinicapi.Appointment, error) {
	appt, err := g.api.CreateAppointment(ctx, req)
	if err != nil {
		g.log.Warn().Err(err).Str("patient_id", req.PatientID).Msg("create appointment failed")
		g.notify.Error("Failed to book appointment", errDetail(err))
		return nil, err
	}
	g.lists.invalidate()
	g.notify.Success("Appointment booked successfully")
	g.log.Info().Str("appointment_id", appt.AppointmentID).Msg("appointment created")
	return appt, nil
}

func (g *Gateway) Update(ctx context.Context, id string, req clinicapi.UpdateAppointmentRequest) (*clinicapi.Appointment, error) {
	appt, err := g.api.UpdateAppointment(ctx, id, req)
	if err != nil {
		g.log.Warn().Err(err).Str("appointment_id", id).Msg("update appointment failed")
		g.notify.Error("Failed to update appointment", errDetail(err))
		return nil, err
	}
	g.lists.invalidate()
	g.notify.Success("Appointment updated successfully")
	g.log.Info().Str("appointment_id", id).Msg("appointment updated")
	return appt, nil
}

// List returns the appointment list, served from cache until a mutation
// invalidates it or the entry ages out.
func (g *Gateway) List(ctx context.Context) ([]clinicapi.AppointmentWithPatient, error) {
	if items, ok := g.lists.get(); ok {
		return items, nil
	}
	items, err := g.api.ListAppointments(ctx)
	if err != nil {
		return nil, err
	}
	g.lists.put(items)
	return items, nil
}

// InvalidateList drops the cached appointment list.
func (g *Gateway) InvalidateList() {
	g.lists.invalidate()
}

func errDetail(err error) string {
	var apiErr *clinicapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Please try again."
}
