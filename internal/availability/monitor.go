package availability

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State of the last settled availability check.
type State int

const (
	// StateUnknown means no check has settled for the current interval.
	// Non-emergency submissions are blocked in this state.
	StateUnknown State = iota
	StateChecking
	StateAvailable
	StateUnavailable
	// StateUnverified means the check itself failed. Distinct from
	// StateUnavailable: the interval may well be free, we could not tell.
	StateUnverified
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	case StateUnverified:
		return "unverified"
	default:
		return "unknown"
	}
}

// Monitor watches the derived booking interval and runs a debounced
// availability check against it. Every interval change restarts the
// debounce timer and bumps a generation counter; a response is applied
// only if its generation is still current, so the last user-settled
// interval always wins even when earlier requests resolve later.
type Monitor struct {
	checker  Checker
	debounce time.Duration
	timeout  time.Duration
	onChange func(State)
	log      zerolog.Logger

	mu        sync.Mutex
	timer     *time.Timer
	gen       uint64
	enabled   bool
	emergency bool
	excludeID string
	start     time.Time
	end       time.Time
	state     State
}

type MonitorOptions struct {
	Debounce     time.Duration // default 500ms
	CheckTimeout time.Duration // per-check deadline, default 10s
	// ExcludeAppointmentID removes one appointment from conflict
	// detection; set for the reschedule flow.
	ExcludeAppointmentID string
	// OnChange is invoked synchronously on every state transition. It
	// must not call back into the Monitor.
	OnChange func(State)
	Logger   zerolog.Logger
}

func NewMonitor(checker Checker, opts MonitorOptions) *Monitor {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 10 * time.Second
	}
	return &Monitor{
		checker:   checker,
		debounce:  opts.Debounce,
		timeout:   opts.CheckTimeout,
		excludeID: opts.ExcludeAppointmentID,
		onChange:  opts.OnChange,
		log:       opts.Logger,
		state:     StateUnknown,
	}
}

// Observe records the latest derived interval. The check fires only once
// the interval has been stable for the debounce window; intermediate
// values just restart the timer.
func (m *Monitor) Observe(start, end time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.start, m.end = start, end
	m.restartLocked()
}

// SetEnabled gates the monitor: the form enables it only once date, time
// and duration have all been chosen.
func (m *Monitor) SetEnabled(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enabled == v {
		return
	}
	m.enabled = v
	m.restartLocked()
}

// SetEmergency suspends checking entirely; availability is irrelevant to
// an emergency booking.
func (m *Monitor) SetEmergency(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emergency == v {
		return
	}
	m.emergency = v
	m.restartLocked()
}

// State returns the current gating state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close stops the debounce timer and invalidates anything in flight.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) restartLocked() {
	m.gen++ // anything in flight is now stale
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	m.setStateLocked(StateUnknown)

	if !m.enabled || m.emergency || m.start.IsZero() || m.end.IsZero() {
		return
	}

	gen := m.gen
	start, end := m.start, m.end
	m.timer = time.AfterFunc(m.debounce, func() {
		m.check(gen, start, end)
	})
}

func (m *Monitor) check(gen uint64, start, end time.Time) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateChecking)
	excludeID := m.excludeID
	timeout := m.timeout
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	available, err := m.checker.CheckAvailability(ctx, start, end, excludeID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		// A newer interval settled while this check was in flight.
		return
	}
	switch {
	case err != nil:
		m.log.Warn().Err(err).
			Time("start", start).
			Time("end", end).
			Msg("availability check failed")
		m.setStateLocked(StateUnverified)
	case available:
		m.setStateLocked(StateAvailable)
	default:
		m.setStateLocked(StateUnavailable)
	}
}

func (m *Monitor) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.onChange != nil {
		m.onChange(s)
	}
}
