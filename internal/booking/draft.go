// Package booking implements the appointment booking and reschedule
// workflow: draft validation, the conflict-resolution submit gate, and the
// mutation gateway that keeps the cached appointment list coherent.
package booking

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clinicdesk/clinic-booking/internal/slots"
)

// Draft is the transient, form-local state of a booking being assembled.
// It exists only in the controller's memory and is discarded on a
// successful submit.
type Draft struct {
	PatientID string
	Date      string // "2006-01-02"
	Time      string // "HH:MM", one of the generated slots
	Duration  int    // minutes
	Emergency bool
}

// DefaultDraft mirrors the form's initial values.
func DefaultDraft() Draft {
	return Draft{Duration: 30}
}

// Interval derives the proposed appointment interval from the draft.
func (d Draft) Interval() (start, end time.Time, err error) {
	return slots.Interval(d.Date, d.Time, d.Duration)
}

// FieldErrors maps field names to user-facing validation messages.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+fe[f])
	}
	return "invalid booking draft: " + strings.Join(parts, "; ")
}

var (
	slotSetOnce sync.Once
	slotSet     map[string]struct{}
)

func validSlot(clock string) bool {
	slotSetOnce.Do(func() {
		slotSet = make(map[string]struct{})
		for _, s := range slots.Generate() {
			slotSet[s] = struct{}{}
		}
	})
	_, ok := slotSet[clock]
	return ok
}

// Validate checks the draft's fields. It does not verify availability, and
// it does not guarantee the date/time combination parses to a valid
// instant; Submit re-checks that before issuing any network call.
func Validate(d Draft) FieldErrors {
	return validateFields(d, true)
}

// ValidateReschedule is Validate without the patient requirement: the
// reschedule form keeps the appointment's existing patient.
func ValidateReschedule(d Draft) FieldErrors {
	return validateFields(d, false)
}

func validateFields(d Draft, requirePatient bool) FieldErrors {
	errs := FieldErrors{}
	if requirePatient && d.PatientID == "" {
		errs["patientId"] = "Please select a patient"
	}
	if d.Date == "" {
		errs["date"] = "Date is required"
	}
	if d.Time == "" {
		errs["time"] = "Time is required"
	} else if !validSlot(d.Time) {
		errs["time"] = "Time must be one of the offered slots"
	}
	if !slots.ValidDuration(d.Duration) {
		errs["duration"] = "Duration must be at least 15 minutes"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
