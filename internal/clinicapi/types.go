package clinicapi

import (
	"encoding/json"
	"time"
)

// Appointment statuses understood by the backend. Cancellation is a
// status, not a removal.
const (
	StatusPending = "pending"
	StatusConfirm = "confirm"
	StatusCancel  = "cancel"
)

// Envelope is the response wrapper used by every backend endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

type Appointment struct {
	AppointmentID     string  `json:"appointment_id"`
	ClinicID          *string `json:"clinic_id"`
	PatientID         *string `json:"patient_id"`
	CreatedBy         *string `json:"created_by"`
	ModifiedBy        *string `json:"modified_by"`
	StartDatetime     string  `json:"start_datetime"`
	EndDatetime       *string `json:"end_datetime"`
	DurationInMinutes int     `json:"duration_in_minutes"`
	Status            *string `json:"status"`
	IsEmergency       *bool   `json:"is_emergency"`
	IsFollowUpPending *bool   `json:"is_follow_up_pending"`
	DidShowUp         *bool   `json:"did_show_up"`
	CreatedAt         *string `json:"created_at"`
	UpdatedAt         *string `json:"updated_at"`
}

// PatientRef is the patient projection joined onto listed appointments.
type PatientRef struct {
	PatientID string  `json:"patient_id"`
	Name      string  `json:"name"`
	Contact   *string `json:"contact"`
}

type AppointmentWithPatient struct {
	Appointment
	Patient *PatientRef `json:"patients,omitempty"`
}

type Patient struct {
	PatientID  string  `json:"patient_id"`
	Name       string  `json:"name"`
	Contact    *string `json:"contact"`
	ClinicID   *string `json:"clinic_id"`
	CreatedBy  *string `json:"created_by"`
	ModifiedBy *string `json:"modified_by"`
	CreatedAt  *string `json:"created_at"`
}

type CreateAppointmentRequest struct {
	PatientID         string `json:"patientId"`
	Start             string `json:"start"`
	End               string `json:"end"`
	DurationInMinutes int    `json:"durationInMinutes"`
	IsEmergency       bool   `json:"isEmergency"`
	IsFollowUpPending *bool  `json:"isFollowUpPending,omitempty"`
}

// UpdateAppointmentRequest is a true partial update: nil fields are left
// unchanged server-side.
type UpdateAppointmentRequest struct {
	Status            *string `json:"status,omitempty"`
	Start             *string `json:"start,omitempty"`
	End               *string `json:"end,omitempty"`
	DurationInMinutes *int    `json:"durationInMinutes,omitempty"`
	DidShowUp         *bool   `json:"didShowUp,omitempty"`
	IsEmergency       *bool   `json:"isEmergency,omitempty"`
}

type AvailabilityCheck struct {
	Available bool `json:"available"`
}

// FormatInstant renders t the way the backend expects: UTC ISO-8601 with
// millisecond precision, e.g. "2025-06-10T14:00:00.000Z".
func FormatInstant(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000") + "Z"
}

func ParseInstant(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
