package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-booking/internal/availability"
	"github.com/clinicdesk/clinic-booking/internal/clinicapi"
)

var (
	ErrInvalidDateTime   = errors.New("invalid date or time")
	ErrSubmissionBlocked = errors.New("submission blocked by the availability gate")
	ErrNoAppointment     = errors.New("no appointment bound to this controller")
	ErrShowedUpBlocked   = errors.New("appointment is not eligible for a showed-up mark")
)

// Controller binds the booking draft, the availability monitor and the
// mutation gateway into one workflow. Field setters keep the monitor fed
// with the derived interval; Submit and SubmitReschedule issue mutations
// once the gate opens.
type Controller struct {
	gw      *Gateway
	monitor *availability.Monitor
	session clinicapi.Session
	notify  Notifier
	log     zerolog.Logger

	mu            sync.Mutex
	draft         Draft
	patient       *clinicapi.Patient
	appointmentID string // set for the reschedule flow
	pending       bool
}

type ControllerOptions struct {
	Session  clinicapi.Session
	Notifier Notifier
	Logger   zerolog.Logger
}

func NewController(gw *Gateway, monitor *availability.Monitor, opts ControllerOptions) *Controller {
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	return &Controller{
		gw:      gw,
		monitor: monitor,
		session: opts.Session,
		notify:  opts.Notifier,
		log:     opts.Logger,
		draft:   DefaultDraft(),
	}
}

// NewRescheduleController pre-fills the draft from an existing appointment.
// The monitor must have been built with that appointment's id as
// ExcludeAppointmentID so its own interval does not count as a conflict.
func NewRescheduleController(gw *Gateway, monitor *availability.Monitor, appt clinicapi.Appointment, opts ControllerOptions) (*Controller, error) {
	start, err := clinicapi.ParseInstant(appt.StartDatetime)
	if err != nil {
		return nil, ErrInvalidDateTime
	}

	c := NewController(gw, monitor, opts)
	c.appointmentID = appt.AppointmentID
	c.draft = Draft{
		Date:      start.UTC().Format("2006-01-02"),
		Time:      start.UTC().Format("15:04"),
		Duration:  appt.DurationInMinutes,
		Emergency: appt.IsEmergency != nil && *appt.IsEmergency,
	}
	if appt.PatientID != nil {
		c.draft.PatientID = *appt.PatientID
	}

	c.mu.Lock()
	monitor.SetEmergency(c.draft.Emergency)
	c.syncMonitorLocked()
	c.mu.Unlock()
	return c, nil
}

func (c *Controller) SelectPatient(p *clinicapi.Patient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patient = p
	if p != nil {
		c.draft.PatientID = p.PatientID
	} else {
		c.draft.PatientID = ""
	}
}

func (c *Controller) SetDate(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Date = v
	c.syncMonitorLocked()
}

func (c *Controller) SetTime(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Time = v
	c.syncMonitorLocked()
}

func (c *Controller) SetDuration(v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Duration = v
	c.syncMonitorLocked()
}

func (c *Controller) SetEmergency(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Emergency = v
	c.monitor.SetEmergency(v)
	c.syncMonitorLocked()
}

// syncMonitorLocked enables the monitor only once date, time and duration
// have all been chosen, and feeds it the derived interval. An unparseable
// combination yields no interval; the monitor goes dark and the gate stays
// closed for non-emergency bookings.
func (c *Controller) syncMonitorLocked() {
	enabled := c.draft.Date != "" && c.draft.Time != "" && c.draft.Duration != 0
	if !enabled {
		c.monitor.SetEnabled(false)
		return
	}
	start, end, err := c.draft.Interval()
	if err != nil {
		c.monitor.SetEnabled(false)
		return
	}
	c.monitor.SetEnabled(true)
	c.monitor.Observe(start, end)
}

func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// AvailabilityState exposes the monitor state for display.
func (c *Controller) AvailabilityState() availability.State {
	return c.monitor.State()
}

// CanSubmit reports whether the submit action is currently permitted.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	pending := c.pending
	emergency := c.draft.Emergency
	c.mu.Unlock()
	return CanSubmitState(pending, emergency, c.monitor.State())
}

// Submit validates the draft and issues the create mutation. An
// unparseable date/time combination aborts with a user-facing error before
// any network call. The availability gate must already be open; Submit
// does not wait for a check in flight.
func (c *Controller) Submit(ctx context.Context) (*clinicapi.Appointment, error) {
	c.mu.Lock()
	draft := c.draft
	c.mu.Unlock()

	if errs := Validate(draft); errs != nil {
		return nil, errs
	}

	start, end, err := draft.Interval()
	if err != nil {
		c.notify.Error("Invalid date or time", "")
		return nil, ErrInvalidDateTime
	}

	if !c.CanSubmit() {
		return nil, ErrSubmissionBlocked
	}

	req := clinicapi.CreateAppointmentRequest{
		PatientID:         draft.PatientID,
		Start:             clinicapi.FormatInstant(start),
		End:               clinicapi.FormatInstant(end),
		DurationInMinutes: draft.Duration,
		IsEmergency:       draft.Emergency,
	}

	c.setPending(true)
	appt, err := c.gw.Create(ctx, req)
	c.setPending(false)
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("appointment_id", appt.AppointmentID).
		Str("actor_id", c.actorID()).
		Bool("emergency", draft.Emergency).
		Msg("booking submitted")

	c.reset()
	return appt, nil
}

func (c *Controller) actorID() string {
	if c.session == nil {
		return ""
	}
	return c.session.ActorID()
}

// SubmitReschedule issues a partial update carrying the new interval for
// the bound appointment.
func (c *Controller) SubmitReschedule(ctx context.Context) (*clinicapi.Appointment, error) {
	c.mu.Lock()
	draft := c.draft
	id := c.appointmentID
	c.mu.Unlock()

	if id == "" {
		return nil, ErrNoAppointment
	}
	if errs := ValidateReschedule(draft); errs != nil {
		return nil, errs
	}

	start, end, err := draft.Interval()
	if err != nil {
		c.notify.Error("Invalid date or time", "")
		return nil, ErrInvalidDateTime
	}

	if !c.CanSubmit() {
		return nil, ErrSubmissionBlocked
	}

	startStr := clinicapi.FormatInstant(start)
	endStr := clinicapi.FormatInstant(end)
	emergency := draft.Emergency
	duration := draft.Duration
	req := clinicapi.UpdateAppointmentRequest{
		Start:             &startStr,
		End:               &endStr,
		DurationInMinutes: &duration,
		IsEmergency:       &emergency,
	}

	c.setPending(true)
	appt, err := c.gw.Update(ctx, id, req)
	c.setPending(false)
	return appt, err
}

// Status transitions offered from the appointment drawer. They are
// independent of the reschedule form and bypass the availability gate.

func (c *Controller) Confirm(ctx context.Context, id string) (*clinicapi.Appointment, error) {
	return c.setStatus(ctx, id, clinicapi.StatusConfirm)
}

func (c *Controller) Cancel(ctx context.Context, id string) (*clinicapi.Appointment, error) {
	return c.setStatus(ctx, id, clinicapi.StatusCancel)
}

func (c *Controller) SetPendingStatus(ctx context.Context, id string) (*clinicapi.Appointment, error) {
	return c.setStatus(ctx, id, clinicapi.StatusPending)
}

func (c *Controller) setStatus(ctx context.Context, id, status string) (*clinicapi.Appointment, error) {
	st := status
	c.setPending(true)
	appt, err := c.gw.Update(ctx, id, clinicapi.UpdateAppointmentRequest{Status: &st})
	c.setPending(false)
	return appt, err
}

// CanMarkShowedUp reports whether the showed-up action is offered: the
// appointment has started, was confirmed, and has not been marked yet.
func CanMarkShowedUp(appt clinicapi.Appointment, now time.Time) bool {
	start, err := clinicapi.ParseInstant(appt.StartDatetime)
	if err != nil {
		return false
	}
	if !start.Before(now) {
		return false
	}
	if appt.Status == nil || *appt.Status != clinicapi.StatusConfirm {
		return false
	}
	return appt.DidShowUp == nil || !*appt.DidShowUp
}

// MarkShowedUp records that the patient attended.
func (c *Controller) MarkShowedUp(ctx context.Context, appt clinicapi.Appointment) (*clinicapi.Appointment, error) {
	if !CanMarkShowedUp(appt, time.Now()) {
		return nil, ErrShowedUpBlocked
	}
	showed := true
	c.setPending(true)
	updated, err := c.gw.Update(ctx, appt.AppointmentID, clinicapi.UpdateAppointmentRequest{DidShowUp: &showed})
	c.setPending(false)
	return updated, err
}

func (c *Controller) setPending(v bool) {
	c.mu.Lock()
	c.pending = v
	c.mu.Unlock()
}

// reset discards the draft after a successful booking: fields back to
// their defaults, patient cleared, monitor disabled.
func (c *Controller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = DefaultDraft()
	c.patient = nil
	c.monitor.SetEmergency(false)
	c.monitor.SetEnabled(false)
}
