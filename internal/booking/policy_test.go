package booking

import (
	"testing"

	"github.com/clinicdesk/clinic-booking/internal/availability"
)

func TestCanSubmit(t *testing.T) {
	cases := []struct {
		name                                  string
		pending, emergency, checking, avail   bool
		want                                  bool
	}{
		{"available and idle", false, false, false, true, true},
		{"unavailable", false, false, false, false, false},
		{"check in flight", false, false, true, false, false},
		{"check in flight with stale available", false, false, true, true, false},
		{"pending blocks everything", true, false, false, true, false},
		{"pending blocks emergency", true, true, false, true, false},
		{"emergency overrides unavailable", false, true, false, false, true},
		{"emergency overrides checking", false, true, true, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanSubmit(tc.pending, tc.emergency, tc.checking, tc.avail); got != tc.want {
				t.Fatalf("CanSubmit(%v, %v, %v, %v) = %v, want %v",
					tc.pending, tc.emergency, tc.checking, tc.avail, got, tc.want)
			}
		})
	}
}

func TestCanSubmitState(t *testing.T) {
	cases := []struct {
		st   availability.State
		want bool
	}{
		{availability.StateUnknown, false},
		{availability.StateChecking, false},
		{availability.StateAvailable, true},
		{availability.StateUnavailable, false},
		{availability.StateUnverified, false},
	}
	for _, tc := range cases {
		t.Run(tc.st.String(), func(t *testing.T) {
			if got := CanSubmitState(false, false, tc.st); got != tc.want {
				t.Fatalf("CanSubmitState(false, false, %s) = %v, want %v", tc.st, got, tc.want)
			}
			// Emergency opens the gate from every state.
			if !CanSubmitState(false, true, tc.st) {
				t.Fatalf("emergency did not override state %s", tc.st)
			}
			// Pending closes it from every state.
			if CanSubmitState(true, true, tc.st) {
				t.Fatalf("pending did not block in state %s", tc.st)
			}
		})
	}
}
