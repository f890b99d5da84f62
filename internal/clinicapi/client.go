// Package clinicapi is the REST client for the clinic appointment backend.
// It speaks the documented envelope contract and converts every failure,
// transport or application level, into an *APIError.
package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	pathAppointments      = "/appointments"
	pathSlotsAvailability = "/slots/availability"
	pathPatients          = "/patients"
)

// Session supplies the authenticated actor for outgoing requests. Token
// issuance, refresh and 401 recovery live with the auth collaborator; the
// booking workflow only reads from it.
type Session interface {
	Token() string
	ActorID() string
}

// StaticSession is a Session with fixed values, used by the CLIs.
type StaticSession struct {
	BearerToken string
	Actor       string
}

func (s StaticSession) Token() string   { return s.BearerToken }
func (s StaticSession) ActorID() string { return s.Actor }

// APIError is the structured error surfaced for a non-2xx response, a
// success=false envelope, or a transport failure (StatusCode 0).
type APIError struct {
	Message    string
	StatusCode int
	Details    json.RawMessage
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("clinic api: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("clinic api: %s", e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	session    Session
	log        zerolog.Logger
}

type Options struct {
	HTTPClient *http.Client
	Session    Session
	Logger     zerolog.Logger
}

func New(baseURL string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: hc,
		session:    opts.Session,
		log:        opts.Logger,
	}
}

// CreateAppointment books a new appointment.
func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	var out Appointment
	if err := c.do(ctx, http.MethodPost, pathAppointments, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAppointment applies a partial update to an existing appointment.
func (c *Client) UpdateAppointment(ctx context.Context, id string, req UpdateAppointmentRequest) (*Appointment, error) {
	var out Appointment
	path := pathAppointments + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAppointments returns the appointment list joined with patient data.
func (c *Client) ListAppointments(ctx context.Context) ([]AppointmentWithPatient, error) {
	var out []AppointmentWithPatient
	if err := c.do(ctx, http.MethodGet, pathAppointments, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckAvailability asks whether [start, end) overlaps an existing
// non-cancelled appointment. end following start is the caller's
// responsibility. excludeAppointmentID, when non-empty, removes that
// appointment from conflict detection (the reschedule flow).
func (c *Client) CheckAvailability(ctx context.Context, start, end time.Time, excludeAppointmentID string) (bool, error) {
	q := url.Values{}
	q.Set("start", FormatInstant(start))
	q.Set("end", FormatInstant(end))
	if excludeAppointmentID != "" {
		q.Set("excludeAppointmentId", excludeAppointmentID)
	}
	var out AvailabilityCheck
	if err := c.do(ctx, http.MethodGet, pathSlotsAvailability, q, nil, &out); err != nil {
		return false, err
	}
	return out.Available, nil
}

// SearchPatients feeds the patient autocomplete. Patient management itself
// belongs to the patient feature; this client reads only.
func (c *Client) SearchPatients(ctx context.Context, query string) ([]Patient, error) {
	q := url.Values{}
	q.Set("q", query)
	var out []Patient
	if err := c.do(ctx, http.MethodGet, pathPatients, q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.session != nil {
		if tok := c.session.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		if actor := c.session.ActorID(); actor != "" {
			req.Header.Set("X-Actor-ID", actor)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return &APIError{Message: "no response from server, check your connection", StatusCode: 0}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Message: "could not read response body", StatusCode: resp.StatusCode}
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("request")

	var env Envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode >= 400 {
				return &APIError{Message: http.StatusText(resp.StatusCode), StatusCode: resp.StatusCode}
			}
			return fmt.Errorf("decode response envelope: %w", err)
		}
	}

	if resp.StatusCode >= 400 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "an error occurred"
		}
		return &APIError{Message: msg, StatusCode: resp.StatusCode, Details: env.Details}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
