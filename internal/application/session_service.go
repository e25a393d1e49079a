package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
	"github.com/example/practice-scheduler/internal/statemachine"
	"github.com/example/practice-scheduler/internal/timeslot"
)

// SessionService drives sessions through their lifecycle. Every mutation
// goes through the transition table; illegal requests come back as
// *statemachine.InvalidTransitionError and leave the session untouched.
type SessionService struct {
	orgs     OrganizationStore
	sessions SessionStore
	audit    AuditSink
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionService wires dependencies for session lifecycle management.
// audit may be nil.
func NewSessionService(orgs OrganizationStore, sessions SessionStore, audit AuditSink, logger *slog.Logger, now func() time.Time) *SessionService {
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		orgs:     orgs,
		sessions: sessions,
		audit:    audit,
		logger:   defaultLogger(logger),
		now:      now,
	}
}

// GetSession returns one session.
func (s *SessionService) GetSession(ctx context.Context, organizationID, sessionID string) (Session, error) {
	loc, err := s.organizationLocation(ctx, organizationID)
	if err != nil {
		return Session{}, err
	}
	session, err := s.sessions.GetSession(ctx, organizationID, sessionID)
	if err != nil {
		return Session{}, mapRepoError(err)
	}
	return toSessionView(session, loc), nil
}

// ListSessions returns sessions matching the query, ordered by date and
// start time.
func (s *SessionService) ListSessions(ctx context.Context, organizationID string, query SessionListQuery) ([]Session, error) {
	loc, err := s.organizationLocation(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	filter := persistence.SessionFilter{
		ScheduleID:      query.ScheduleID,
		StaffID:         query.StaffID,
		PatientID:       query.PatientID,
		ExcludeTerminal: query.ExcludeTerminal,
	}
	vErr := &ValidationError{}
	if query.DateFrom != "" {
		from, err := timeslot.ParseLocalDateStart(query.DateFrom, loc)
		if err != nil {
			vErr.add("date_from", "must be a YYYY-MM-DD date")
		} else {
			filter.DateFrom = &from
		}
	}
	if query.DateTo != "" {
		to, err := timeslot.ParseLocalDateStart(query.DateTo, loc)
		if err != nil {
			vErr.add("date_to", "must be a YYYY-MM-DD date")
		} else {
			end := timeslot.StartOfLocalDay(to.AddDate(0, 0, 1), loc)
			filter.DateTo = &end
		}
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	sessions, err := s.sessions.ListSessions(ctx, organizationID, filter)
	if err != nil {
		return nil, mapRepoError(err)
	}

	out := make([]Session, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionView(session, loc))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Approve moves a pending session onto the schedule.
func (s *SessionService) Approve(ctx context.Context, organizationID, sessionID string, principal Principal) (Session, error) {
	return s.transition(ctx, organizationID, sessionID, statemachine.StatusScheduled, principal, "approved", nil)
}

// Confirm records that the patient confirmed attendance.
func (s *SessionService) Confirm(ctx context.Context, organizationID, sessionID string, principal Principal) (Session, error) {
	return s.transition(ctx, organizationID, sessionID, statemachine.StatusConfirmed, principal, "", func(session *persistence.Session, now time.Time) {
		session.ConfirmedAt = &now
	})
}

// CheckIn records the patient's arrival.
func (s *SessionService) CheckIn(ctx context.Context, organizationID, sessionID string, principal Principal) (Session, error) {
	return s.transition(ctx, organizationID, sessionID, statemachine.StatusCheckedIn, principal, "", func(session *persistence.Session, now time.Time) {
		session.CheckedInAt = &now
	})
}

// Start marks the session as in progress.
func (s *SessionService) Start(ctx context.Context, organizationID, sessionID string, principal Principal) (Session, error) {
	return s.transition(ctx, organizationID, sessionID, statemachine.StatusInProgress, principal, "", nil)
}

// Complete closes out a delivered session.
func (s *SessionService) Complete(ctx context.Context, organizationID, sessionID string, principal Principal) (Session, error) {
	return s.transition(ctx, organizationID, sessionID, statemachine.StatusCompleted, principal, "", func(session *persistence.Session, now time.Time) {
		session.CompletedAt = &now
	})
}

// MarkNoShow records that a confirmed patient did not arrive.
func (s *SessionService) MarkNoShow(ctx context.Context, organizationID, sessionID string, principal Principal) (Session, error) {
	return s.transition(ctx, organizationID, sessionID, statemachine.StatusNoShow, principal, "no show", nil)
}

// Cancel cancels a session. The outcome status is classified against the
// organization's late-cancellation window: cancelling inside the window
// becomes late_cancel, which downstream reporting treats differently. The
// caller supplies the reason code, never the classification.
func (s *SessionService) Cancel(ctx context.Context, organizationID string, params CancelSessionParams) (Session, error) {
	logger := serviceLogger(ctx, s.logger, "session", "cancel", "organization_id", organizationID, "session_id", params.SessionID)

	if !statemachine.ValidCancellationReason(statemachine.CancellationReason(params.Reason)) {
		vErr := &ValidationError{}
		vErr.add("reason", "unknown cancellation reason")
		return Session{}, vErr
	}

	org, err := s.orgs.GetOrganization(ctx, organizationID)
	if err != nil {
		return Session{}, mapRepoError(err)
	}
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		return Session{}, fmt.Errorf("organization %s has invalid timezone %q: %w", organizationID, org.Timezone, err)
	}

	session, err := s.sessions.GetSession(ctx, organizationID, params.SessionID)
	if err != nil {
		return Session{}, mapRepoError(err)
	}

	now := s.now()
	sessionStart, err := timeslot.ToAbsoluteInstant(session.Date, session.StartTime, loc)
	if err != nil {
		return Session{}, fmt.Errorf("session %s: %w", session.ID, err)
	}
	window := time.Duration(org.LateCancelWindowHours) * time.Hour
	to := statemachine.ClassifyCancellation(now, sessionStart, window)

	from := statemachine.Status(session.Status)
	if err := statemachine.Transition(from, to); err != nil {
		// A pending session has no late_cancel edge; a plain cancellation
		// is still legal from there.
		if to == statemachine.StatusLateCancel && statemachine.Transition(from, statemachine.StatusCancelled) == nil {
			to = statemachine.StatusCancelled
		} else {
			return Session{}, err
		}
	}

	session.Status = string(to)
	session.CancelledAt = &now
	session.CancellationReason = params.Reason
	session.UpdatedAt = now

	updated, err := s.sessions.UpdateSession(ctx, session)
	if err != nil {
		return Session{}, mapRepoError(err)
	}

	s.emitAudit(ctx, organizationID, session.ID, string(from), string(to), params.Reason, params.Principal.UserID, now)
	logger.InfoContext(ctx, "session cancelled", "status", to, "reason", params.Reason)
	return toSessionView(updated, loc), nil
}

func (s *SessionService) transition(ctx context.Context, organizationID, sessionID string, to statemachine.Status, principal Principal, reason string, stamp func(*persistence.Session, time.Time)) (Session, error) {
	logger := serviceLogger(ctx, s.logger, "session", "transition", "organization_id", organizationID, "session_id", sessionID, "to", string(to))

	loc, err := s.organizationLocation(ctx, organizationID)
	if err != nil {
		return Session{}, err
	}

	session, err := s.sessions.GetSession(ctx, organizationID, sessionID)
	if err != nil {
		return Session{}, mapRepoError(err)
	}

	from := statemachine.Status(session.Status)
	if err := statemachine.Transition(from, to); err != nil {
		logger.InfoContext(ctx, "transition rejected", "from", string(from))
		return Session{}, err
	}

	now := s.now()
	session.Status = string(to)
	session.UpdatedAt = now
	if stamp != nil {
		stamp(&session, now)
	}

	updated, err := s.sessions.UpdateSession(ctx, session)
	if err != nil {
		return Session{}, mapRepoError(err)
	}

	s.emitAudit(ctx, organizationID, sessionID, string(from), string(to), reason, principal.UserID, now)
	logger.InfoContext(ctx, "session transitioned", "from", string(from))
	return toSessionView(updated, loc), nil
}

func (s *SessionService) organizationLocation(ctx context.Context, organizationID string) (*time.Location, error) {
	org, err := s.orgs.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		return nil, fmt.Errorf("organization %s has invalid timezone %q: %w", organizationID, org.Timezone, err)
	}
	return loc, nil
}

func (s *SessionService) emitAudit(ctx context.Context, organizationID, sessionID, from, to, reason, actorID string, at time.Time) {
	if s.audit == nil {
		return
	}
	s.audit.RecordSessionAudit(ctx, SessionAuditRecord{
		OrganizationID: organizationID,
		SessionID:      sessionID,
		FromStatus:     from,
		ToStatus:       to,
		Reason:         reason,
		ActorID:        actorID,
		At:             at,
	})
}
