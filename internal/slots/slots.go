// Package slots produces the fixed grid of offerable appointment start
// times and derives proposed intervals from form input.
package slots

import (
	"errors"
	"fmt"
	"time"
)

// Booking days run 09:00 to 21:00; 21:00 is the last offerable start time.
const (
	openHour  = 9
	closeHour = 21
	stepMins  = 15
)

// Durations are the appointment lengths, in minutes, offered by the form.
var Durations = []int{15, 30, 45, 60, 90}

var ErrInvalidDateTime = errors.New("invalid date or time")

// Generate returns the ordered set of "HH:MM" start times for a booking
// day. The output depends only on the fixed clinic hours and is shared
// across all bookings.
func Generate() []string {
	var out []string
	for hour := openHour; hour <= closeHour; hour++ {
		for minute := 0; minute < 60; minute += stepMins {
			if hour == closeHour && minute > 0 {
				break
			}
			out = append(out, fmt.Sprintf("%02d:%02d", hour, minute))
		}
	}
	return out
}

// ValidDuration reports whether d is one of the offered durations.
func ValidDuration(d int) bool {
	for _, v := range Durations {
		if v == d {
			return true
		}
	}
	return false
}

// Interval derives the proposed appointment interval from a "2006-01-02"
// date, an "HH:MM" slot and a duration in minutes. Instants are UTC.
func Interval(date, clock string, durationMins int) (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02T15:04:05", date+"T"+clock+":00")
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidDateTime
	}
	end = start.Add(time.Duration(durationMins) * time.Minute)
	return start, end, nil
}
