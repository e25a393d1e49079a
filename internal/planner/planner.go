// Package planner talks to the external assignment provider that proposes
// staff/patient/room/time assignments for a week. The provider owns slot
// assignment heuristics; conflict-freedom and rule validation of whatever it
// returns remain the caller's responsibility.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
)

// ErrUnavailable signals that the provider could not be reached or is
// misconfigured. The operation may be retried later; it is not an internal
// defect.
var ErrUnavailable = errors.New("planner: provider unavailable")

// StaffInput describes one schedulable staff member to the provider.
type StaffInput struct {
	ID             string                  `json:"id"`
	Gender         string                  `json:"gender"`
	Certifications []string                `json:"certifications"`
	WorkingHours   persistence.WeeklyHours `json:"working_hours"`
}

// PatientInput describes one patient's weekly needs to the provider.
type PatientInput struct {
	ID                       string                    `json:"id"`
	Gender                   string                    `json:"gender"`
	PreferredStaffGender     string                    `json:"preferred_staff_gender,omitempty"`
	RequiredCertifications   []string                  `json:"required_certifications,omitempty"`
	RequiredRoomCapabilities []string                  `json:"required_room_capabilities,omitempty"`
	PreferredRoomID          *string                   `json:"preferred_room_id,omitempty"`
	SessionsPerWeek          int                       `json:"sessions_per_week"`
	SessionSpecs             []persistence.SessionSpec `json:"session_specs,omitempty"`
}

// RoomInput describes one bookable room to the provider.
type RoomInput struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
}

// Request is the full planning problem for one organization week.
type Request struct {
	OrganizationID        string                  `json:"organization_id"`
	WeekStartDate         string                  `json:"week_start_date"` // YYYY-MM-DD, Monday
	Timezone              string                  `json:"timezone"`
	BusinessHours         persistence.WeeklyHours `json:"business_hours"`
	SlotIntervalMinutes   int                     `json:"slot_interval_minutes"`
	DefaultSessionMinutes int                     `json:"default_session_minutes"`
	Staff                 []StaffInput            `json:"staff"`
	Patients              []PatientInput          `json:"patients"`
	Rooms                 []RoomInput             `json:"rooms"`
}

// ProposedSession is one assignment suggested by the provider. Date is the
// organization-local calendar date, times are "HH:mm" wall clock.
type ProposedSession struct {
	PatientID string  `json:"patient_id"`
	StaffID   string  `json:"staff_id"`
	RoomID    *string `json:"room_id,omitempty"`
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
}

// Planner proposes session assignments for a week.
type Planner interface {
	ProposeWeek(ctx context.Context, req Request) ([]ProposedSession, error)
}

// HTTPPlanner calls a JSON planning endpoint.
type HTTPPlanner struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPlanner builds a client for the provider at baseURL. The timeout
// bounds the whole proposal round trip.
func NewHTTPPlanner(baseURL string, timeout time.Duration) *HTTPPlanner {
	return &HTTPPlanner{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type proposalResponse struct {
	Sessions []ProposedSession `json:"sessions"`
}

// ProposeWeek implements Planner. Transport failures and provider-side
// errors surface as ErrUnavailable; a malformed response body is an internal
// defect and is reported as such.
func (p *HTTPPlanner) ProposeWeek(ctx context.Context, req Request) ([]ProposedSession, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("%w: no provider URL configured", ErrUnavailable)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("planner: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/plan", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("planner: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: provider returned status %d: %s", ErrUnavailable, resp.StatusCode, snippet)
	}

	var decoded proposalResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("planner: decode response: %w", err)
	}
	return decoded.Sessions, nil
}

// StaticPlanner returns a fixed proposal set. It backs tests and local
// development without a running provider.
type StaticPlanner struct {
	Sessions []ProposedSession
	Err      error

	// Requests records every request received, newest last.
	Requests []Request
}

// ProposeWeek implements Planner.
func (p *StaticPlanner) ProposeWeek(_ context.Context, req Request) ([]ProposedSession, error) {
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([]ProposedSession, len(p.Sessions))
	copy(out, p.Sessions)
	return out, nil
}
