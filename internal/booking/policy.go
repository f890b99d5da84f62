package booking

import (
	"github.com/clinicdesk/clinic-booking/internal/availability"
)

// CanSubmit is the gate on the booking form's submit action. A mutation
// already in flight always blocks. An emergency booking may proceed
// regardless of conflicts. Otherwise the last settled availability check
// must have come back positive and no check may be in flight.
func CanSubmit(pending, emergency, checking, available bool) bool {
	if pending {
		return false
	}
	if emergency {
		return true
	}
	return !checking && available
}

// CanSubmitState maps a monitor state onto CanSubmit. Unknown and
// Unverified both count as not available: a non-emergency booking may not
// proceed before the first check settles, nor when the check itself failed.
func CanSubmitState(pending, emergency bool, st availability.State) bool {
	checking := st == availability.StateChecking
	available := st == availability.StateAvailable
	return CanSubmit(pending, emergency, checking, available)
}
