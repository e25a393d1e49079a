package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
	"github.com/example/practice-scheduler/internal/statemachine"
	"github.com/example/practice-scheduler/internal/timeslot"
)

// BookingService turns holds and direct requests into sessions. Both paths
// end in a conditional store write that re-checks the slot, so a stale
// availability read can never double-book.
type BookingService struct {
	orgs        OrganizationStore
	staff       StaffDirectory
	patients    PatientDirectory
	rooms       RoomCatalog
	schedules   ScheduleStore
	sessions    SessionStore
	holds       HoldStore
	audit       AuditSink
	logger      *slog.Logger
	idGenerator func() string
	now         func() time.Time
}

// NewBookingService wires dependencies for booking. audit may be nil.
func NewBookingService(orgs OrganizationStore, staff StaffDirectory, patients PatientDirectory, rooms RoomCatalog, schedules ScheduleStore, sessions SessionStore, holds HoldStore, audit AuditSink, logger *slog.Logger, idGenerator func() string, now func() time.Time) *BookingService {
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		orgs:        orgs,
		staff:       staff,
		patients:    patients,
		rooms:       rooms,
		schedules:   schedules,
		sessions:    sessions,
		holds:       holds,
		audit:       audit,
		logger:      defaultLogger(logger),
		idGenerator: idGenerator,
		now:         now,
	}
}

// BookFromHold commits a hold into a session. The hold's slot and resources
// carry over; the caller supplies the patient. Consuming and inserting
// happen in one store transaction, so the hold can be converted exactly
// once.
func (s *BookingService) BookFromHold(ctx context.Context, organizationID string, params BookFromHoldParams) (Session, error) {
	logger := serviceLogger(ctx, s.logger, "booking", "book_from_hold", "organization_id", organizationID, "hold_id", params.HoldID)

	org, loc, err := s.loadOrganization(ctx, organizationID)
	if err != nil {
		return Session{}, err
	}

	vErr := &ValidationError{}
	if params.HoldID == "" {
		vErr.add("hold_id", "hold id is required")
	}
	if params.PatientID == "" {
		vErr.add("patient_id", "patient id is required")
	}
	if vErr.HasErrors() {
		return Session{}, vErr
	}

	patient, err := s.patients.GetPatient(ctx, organizationID, params.PatientID)
	if err != nil {
		return Session{}, mapRepoError(err)
	}
	if patient.Status != "active" {
		vErr.add("patient_id", "patient is not active")
		return Session{}, vErr
	}

	hold, err := s.holds.GetHold(ctx, organizationID, params.HoldID)
	if err != nil {
		return Session{}, mapRepoError(err)
	}
	now := s.now()
	if !persistence.HoldIsActive(hold, now) {
		return Session{}, ErrNotFound
	}
	if hold.StaffID == nil {
		vErr.add("hold_id", "hold reserves a room only; a session needs a staff member")
		return Session{}, vErr
	}

	scheduleID, err := s.resolveSchedule(ctx, organizationID, loc, params.ScheduleID, hold.Date, params.Principal.UserID)
	if err != nil {
		return Session{}, err
	}

	session := persistence.Session{
		ID:             s.idGenerator(),
		OrganizationID: organizationID,
		ScheduleID:     scheduleID,
		StaffID:        *hold.StaffID,
		PatientID:      params.PatientID,
		RoomID:         hold.RoomID,
		Date:           hold.Date,
		StartTime:      hold.StartTime,
		EndTime:        hold.EndTime,
		Status:         initialSessionStatus(org),
		Notes:          params.Notes,
		BookedVia:      bookedViaOrDefault(params.BookedVia),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.holds.ConsumeHoldAndCreateSession(ctx, organizationID, params.HoldID, session, now)
	if err != nil {
		logger.InfoContext(ctx, "booking rejected", "error_kind", ErrorKind(err))
		return Session{}, mapRepoError(err)
	}

	s.emitAudit(ctx, organizationID, created.ID, "", created.Status, "booked from hold", params.Principal.UserID, now)
	logger.InfoContext(ctx, "session booked", "session_id", created.ID, "status", created.Status)
	return toSessionView(created, loc), nil
}

// BookDirect books a session without a prior hold. The slot is checked and
// written atomically, so the caller simply retries on conflict.
func (s *BookingService) BookDirect(ctx context.Context, organizationID string, params DirectBookingParams) (Session, error) {
	logger := serviceLogger(ctx, s.logger, "booking", "book_direct", "organization_id", organizationID)

	org, loc, err := s.loadOrganization(ctx, organizationID)
	if err != nil {
		return Session{}, err
	}

	vErr := &ValidationError{}
	if params.StaffID == "" {
		vErr.add("staff_id", "staff id is required")
	}
	if params.PatientID == "" {
		vErr.add("patient_id", "patient id is required")
	}
	date, err := timeslot.ParseLocalDateStart(params.Date, loc)
	if err != nil {
		vErr.add("date", "must be a YYYY-MM-DD date")
	}
	if _, err := spanFromTimes(params.StartTime, params.EndTime); err != nil {
		vErr.add("time", "start and end must be HH:mm times with start before end")
	}
	if vErr.HasErrors() {
		return Session{}, vErr
	}

	staff, err := s.staff.GetStaff(ctx, organizationID, params.StaffID)
	if err != nil {
		return Session{}, mapRepoError(err)
	}
	if staff.Status != "active" {
		vErr.add("staff_id", "staff member is not active")
	}
	patient, err := s.patients.GetPatient(ctx, organizationID, params.PatientID)
	if err != nil {
		return Session{}, mapRepoError(err)
	}
	if patient.Status != "active" {
		vErr.add("patient_id", "patient is not active")
	}
	if params.RoomID != nil {
		if _, err := s.rooms.GetRoom(ctx, organizationID, *params.RoomID); err != nil {
			return Session{}, mapRepoError(err)
		}
	}
	if vErr.HasErrors() {
		return Session{}, vErr
	}

	scheduleID, err := s.resolveSchedule(ctx, organizationID, loc, params.ScheduleID, date, params.Principal.UserID)
	if err != nil {
		return Session{}, err
	}

	now := s.now()
	session := persistence.Session{
		ID:             s.idGenerator(),
		OrganizationID: organizationID,
		ScheduleID:     scheduleID,
		StaffID:        params.StaffID,
		PatientID:      params.PatientID,
		RoomID:         params.RoomID,
		Date:           date,
		StartTime:      params.StartTime,
		EndTime:        params.EndTime,
		Status:         initialSessionStatus(org),
		Notes:          params.Notes,
		BookedVia:      bookedViaOrDefault(params.BookedVia),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.sessions.CreateSessionIfFree(ctx, session, now)
	if err != nil {
		logger.InfoContext(ctx, "booking rejected", "error_kind", ErrorKind(err))
		return Session{}, mapRepoError(err)
	}

	s.emitAudit(ctx, organizationID, created.ID, "", created.Status, "booked directly", params.Principal.UserID, now)
	logger.InfoContext(ctx, "session booked", "session_id", created.ID, "status", created.Status)
	return toSessionView(created, loc), nil
}

// resolveSchedule returns the schedule the session should land in. An empty
// scheduleID auto-selects the latest draft for the session's week, creating
// one when the week has no draft yet. An explicit archived schedule is
// rejected: archived weeks are read-only history.
func (s *BookingService) resolveSchedule(ctx context.Context, organizationID string, loc *time.Location, scheduleID string, date time.Time, createdBy string) (string, error) {
	if scheduleID != "" {
		schedule, err := s.schedules.GetSchedule(ctx, organizationID, scheduleID)
		if err != nil {
			return "", mapRepoError(err)
		}
		if schedule.Status == "archived" {
			vErr := &ValidationError{}
			vErr.add("schedule_id", "cannot book into an archived schedule")
			return "", vErr
		}
		return schedule.ID, nil
	}

	weekStart := timeslot.WeekStartFor(date, loc)
	drafts, err := s.schedules.ListSchedules(ctx, organizationID, persistence.ScheduleFilter{
		WeekStartDate: &weekStart,
		Status:        "draft",
	})
	if err != nil {
		return "", mapRepoError(err)
	}
	if len(drafts) > 0 {
		latest := drafts[0]
		for _, candidate := range drafts[1:] {
			if candidate.Version > latest.Version {
				latest = candidate
			}
		}
		return latest.ID, nil
	}

	version, err := s.schedules.MaxVersionForWeek(ctx, organizationID, weekStart)
	if err != nil {
		return "", mapRepoError(err)
	}
	now := s.now()
	schedule := persistence.Schedule{
		ID:             s.idGenerator(),
		OrganizationID: organizationID,
		WeekStartDate:  weekStart,
		Status:         "draft",
		Version:        version + 1,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.schedules.CreateSchedule(ctx, schedule); err != nil {
		return "", mapRepoError(err)
	}
	return schedule.ID, nil
}

func (s *BookingService) loadOrganization(ctx context.Context, organizationID string) (persistence.Organization, *time.Location, error) {
	org, err := s.orgs.GetOrganization(ctx, organizationID)
	if err != nil {
		return persistence.Organization{}, nil, mapRepoError(err)
	}
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		return persistence.Organization{}, nil, fmt.Errorf("organization %s has invalid timezone %q: %w", organizationID, org.Timezone, err)
	}
	return org, loc, nil
}

func (s *BookingService) emitAudit(ctx context.Context, organizationID, sessionID, from, to, reason, actorID string, at time.Time) {
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

func initialSessionStatus(org persistence.Organization) string {
	if org.RequireBookingApproval {
		return string(statemachine.StatusPending)
	}
	return string(statemachine.StatusScheduled)
}

func bookedViaOrDefault(via string) string {
	if via == "" {
		return "staff"
	}
	return via
}

func toSessionView(session persistence.Session, loc *time.Location) Session {
	return Session{
		ID:                 session.ID,
		ScheduleID:         session.ScheduleID,
		StaffID:            session.StaffID,
		PatientID:          session.PatientID,
		RoomID:             session.RoomID,
		Date:               timeslot.FormatLocalDate(session.Date, loc),
		StartTime:          session.StartTime,
		EndTime:            session.EndTime,
		Status:             session.Status,
		Notes:              session.Notes,
		BookedVia:          session.BookedVia,
		CancellationReason: session.CancellationReason,
	}
}
