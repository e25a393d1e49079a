// Package statemachine enforces the legal status transition graph for
// scheduled sessions and classifies cancellations against the
// organization's late-cancellation window.
package statemachine

import (
	"fmt"
	"strings"
	"time"
)

// Status is a session lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusCheckedIn  Status = "checked_in"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusLateCancel Status = "late_cancel"
	StatusNoShow     Status = "no_show"
)

// transitions is the complete legal transition table. Terminal states have
// no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:    {StatusScheduled, StatusCancelled},
	StatusScheduled:  {StatusConfirmed, StatusCancelled, StatusLateCancel},
	StatusConfirmed:  {StatusCheckedIn, StatusCancelled, StatusLateCancel, StatusNoShow},
	StatusCheckedIn:  {StatusInProgress, StatusCancelled, StatusLateCancel},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
	StatusLateCancel: nil,
	StatusNoShow:     nil,
}

// CancellationReason explains why a session was cancelled.
type CancellationReason string

const (
	ReasonPatientRequest       CancellationReason = "patient_request"
	ReasonCaregiverRequest     CancellationReason = "caregiver_request"
	ReasonTherapistUnavailable CancellationReason = "therapist_unavailable"
	ReasonWeather              CancellationReason = "weather"
	ReasonIllness              CancellationReason = "illness"
	ReasonSchedulingConflict   CancellationReason = "scheduling_conflict"
	ReasonRescheduled          CancellationReason = "rescheduled"
	ReasonOther                CancellationReason = "other"
)

var cancellationReasons = map[CancellationReason]struct{}{
	ReasonPatientRequest:       {},
	ReasonCaregiverRequest:     {},
	ReasonTherapistUnavailable: {},
	ReasonWeather:              {},
	ReasonIllness:              {},
	ReasonSchedulingConflict:   {},
	ReasonRescheduled:          {},
	ReasonOther:                {},
}

// InvalidTransitionError reports a status change attempt outside the legal
// transition table, naming the current state and the allowed next states.
type InvalidTransitionError struct {
	From      Status
	Requested Status
	Allowed   []Status
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("statemachine: cannot transition from terminal state %q to %q", e.From, e.Requested)
	}
	names := make([]string, 0, len(e.Allowed))
	for _, status := range e.Allowed {
		names = append(names, string(status))
	}
	return fmt.Sprintf("statemachine: cannot transition from %q to %q (allowed: %s)",
		e.From, e.Requested, strings.Join(names, ", "))
}

// ValidStatus reports whether the value names a known session status.
func ValidStatus(status Status) bool {
	_, ok := transitions[status]
	return ok
}

// IsTerminal reports whether the status permits no further transitions.
func IsTerminal(status Status) bool {
	allowed, ok := transitions[status]
	return ok && len(allowed) == 0
}

// IsCancellation reports whether the status records a cancellation outcome.
func IsCancellation(status Status) bool {
	return status == StatusCancelled || status == StatusLateCancel
}

// AllowedTransitions returns the legal next states from the given status.
func AllowedTransitions(from Status) []Status {
	allowed := transitions[from]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// Transition validates a status change request. A nil return means the
// transition is legal; otherwise an *InvalidTransitionError describes the
// rejection.
func Transition(current, requested Status) error {
	if !ValidStatus(requested) {
		return &InvalidTransitionError{From: current, Requested: requested, Allowed: AllowedTransitions(current)}
	}
	for _, allowed := range transitions[current] {
		if allowed == requested {
			return nil
		}
	}
	return &InvalidTransitionError{From: current, Requested: requested, Allowed: AllowedTransitions(current)}
}

// ValidCancellationReason reports whether the reason is one of the accepted
// cancellation codes.
func ValidCancellationReason(reason CancellationReason) bool {
	_, ok := cancellationReasons[reason]
	return ok
}

// ClassifyCancellation resolves a cancellation into cancelled or late_cancel
// by comparing now against the session start minus the organization's
// late-cancellation window.
//
// Convention: the window is half-open at the cutoff. Cancelling exactly
// window hours before the session start is an ordinary cancellation; any
// instant strictly after the cutoff is a late cancellation.
func ClassifyCancellation(now, sessionStart time.Time, window time.Duration) Status {
	if window <= 0 {
		return StatusCancelled
	}
	cutoff := sessionStart.Add(-window)
	if now.After(cutoff) {
		return StatusLateCancel
	}
	return StatusCancelled
}
