package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
	"github.com/example/practice-scheduler/internal/planner"
	"github.com/example/practice-scheduler/internal/rules"
	"github.com/example/practice-scheduler/internal/scheduler"
	"github.com/example/practice-scheduler/internal/statemachine"
	"github.com/example/practice-scheduler/internal/timeslot"
)

// ScheduleService owns weekly schedule versions: generation through the
// external planner, the draft/published/archived lifecycle, and draft
// copies with rule revalidation.
type ScheduleService struct {
	orgs        OrganizationStore
	staff       StaffDirectory
	patients    PatientDirectory
	rooms       RoomCatalog
	rules       RuleStore
	schedules   ScheduleStore
	sessions    SessionStore
	planner     planner.Planner
	logger      *slog.Logger
	idGenerator func() string
	now         func() time.Time
}

// NewScheduleService wires dependencies for schedule operations.
func NewScheduleService(orgs OrganizationStore, staff StaffDirectory, patients PatientDirectory, rooms RoomCatalog, ruleStore RuleStore, schedules ScheduleStore, sessions SessionStore, plannerClient planner.Planner, logger *slog.Logger, idGenerator func() string, now func() time.Time) *ScheduleService {
	if now == nil {
		now = time.Now
	}
	return &ScheduleService{
		orgs:        orgs,
		staff:       staff,
		patients:    patients,
		rooms:       rooms,
		rules:       ruleStore,
		schedules:   schedules,
		sessions:    sessions,
		planner:     plannerClient,
		logger:      defaultLogger(logger),
		idGenerator: idGenerator,
		now:         now,
	}
}

// Generate asks the planner for a week's assignments and persists them as a
// new draft version. Proposals that conflict with each other, reference
// unknown resources, or break a required rule are dropped with a warning
// rather than failing the whole run. Rules flagged for manual review abort
// generation before the planner is called.
func (s *ScheduleService) Generate(ctx context.Context, organizationID string, params GenerateScheduleParams) (GenerateResult, error) {
	logger := serviceLogger(ctx, s.logger, "schedule", "generate", "organization_id", organizationID, "week_start", params.WeekStartDate)

	org, loc, err := s.loadOrganization(ctx, organizationID)
	if err != nil {
		return GenerateResult{}, err
	}

	weekStart, err := timeslot.ParseLocalDateStart(params.WeekStartDate, loc)
	if err != nil {
		vErr := &ValidationError{}
		vErr.add("week_start_date", "must be a YYYY-MM-DD date")
		return GenerateResult{}, vErr
	}
	if !timeslot.WeekStartFor(weekStart, loc).Equal(weekStart) {
		vErr := &ValidationError{}
		vErr.add("week_start_date", "must be a Monday")
		return GenerateResult{}, vErr
	}

	ruleSet, err := s.rules.ListActiveRules(ctx, organizationID)
	if err != nil {
		return GenerateResult{}, mapRepoError(err)
	}
	if err := rules.CheckReviewGate(ruleSet); err != nil {
		logger.InfoContext(ctx, "generation blocked by review gate")
		return GenerateResult{}, err
	}

	staffList, err := s.staff.ListStaff(ctx, organizationID, true)
	if err != nil {
		return GenerateResult{}, mapRepoError(err)
	}
	patientList, err := s.patients.ListPatients(ctx, organizationID, true)
	if err != nil {
		return GenerateResult{}, mapRepoError(err)
	}
	roomList, err := s.rooms.ListRooms(ctx, organizationID)
	if err != nil {
		return GenerateResult{}, mapRepoError(err)
	}

	proposals, err := s.planner.ProposeWeek(ctx, buildPlannerRequest(org, params.WeekStartDate, staffList, patientList, roomList))
	if err != nil {
		logger.WarnContext(ctx, "planner call failed", "error_kind", ErrorKind(err))
		return GenerateResult{}, err
	}

	now := s.now()
	version, err := s.schedules.MaxVersionForWeek(ctx, organizationID, weekStart)
	if err != nil {
		return GenerateResult{}, mapRepoError(err)
	}
	schedule := persistence.Schedule{
		ID:             s.idGenerator(),
		OrganizationID: organizationID,
		WeekStartDate:  weekStart,
		Status:         "draft",
		Version:        version + 1,
		CreatedBy:      params.Principal.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.schedules.CreateSchedule(ctx, schedule); err != nil {
		return GenerateResult{}, mapRepoError(err)
	}

	dir := rules.BuildDirectory(staffList, patientList, roomList, loc)
	accepted, warnings, err := s.admitProposals(proposals, organizationID, schedule.ID, weekStart, loc, dir, now)
	if err != nil {
		return GenerateResult{}, err
	}

	accepted, ruleWarnings, err := s.enforceRules(ruleSet, accepted, dir)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("evaluating rules for week %s: %w", params.WeekStartDate, err)
	}
	warnings = append(warnings, ruleWarnings...)

	views := make([]Session, 0, len(accepted))
	for _, session := range accepted {
		if _, err := s.sessions.CreateSession(ctx, session); err != nil {
			return GenerateResult{}, mapRepoError(err)
		}
		views = append(views, toSessionView(session, loc))
	}

	logger.InfoContext(ctx, "schedule generated",
		"schedule_id", schedule.ID, "version", schedule.Version,
		"sessions", len(views), "dropped", len(proposals)-len(views))
	return GenerateResult{
		Schedule: toScheduleView(schedule, loc),
		Sessions: views,
		Warnings: warnings,
	}, nil
}

// admitProposals turns planner proposals into persistable sessions,
// dropping the ones that reference unknown resources, fall outside the
// week, or collide with an already-admitted proposal.
func (s *ScheduleService) admitProposals(proposals []planner.ProposedSession, organizationID, scheduleID string, weekStart time.Time, loc *time.Location, dir rules.Directory, now time.Time) ([]persistence.Session, []string, error) {
	weekEnd := timeslot.StartOfLocalDay(weekStart.AddDate(0, 0, 7), loc)

	var accepted []persistence.Session
	var bookings []scheduler.Booking
	var warnings []string
	for i, proposal := range proposals {
		label := fmt.Sprintf("proposal %d (patient %s, %s %s-%s)", i+1, proposal.PatientID, proposal.Date, proposal.StartTime, proposal.EndTime)

		if _, ok := dir.Staff[proposal.StaffID]; !ok {
			warnings = append(warnings, label+": unknown staff "+proposal.StaffID)
			continue
		}
		if _, ok := dir.Patients[proposal.PatientID]; !ok {
			warnings = append(warnings, label+": unknown patient "+proposal.PatientID)
			continue
		}
		if proposal.RoomID != nil {
			if _, ok := dir.Rooms[*proposal.RoomID]; !ok {
				warnings = append(warnings, label+": unknown room "+*proposal.RoomID)
				continue
			}
		}
		date, err := timeslot.ParseLocalDateStart(proposal.Date, loc)
		if err != nil || date.Before(weekStart) || !date.Before(weekEnd) {
			warnings = append(warnings, label+": date outside the requested week")
			continue
		}
		interval, err := spanFromTimes(proposal.StartTime, proposal.EndTime)
		if err != nil {
			warnings = append(warnings, label+": invalid time interval")
			continue
		}

		candidate := scheduler.Booking{
			ID:        fmt.Sprintf("proposal-%d", i),
			StaffID:   proposal.StaffID,
			PatientID: proposal.PatientID,
			RoomID:    proposal.RoomID,
			Date:      date,
			StartMin:  interval.start,
			EndMin:    interval.end,
		}
		if conflicts := scheduler.DetectConflicts(bookings, candidate); len(conflicts) > 0 {
			warnings = append(warnings, fmt.Sprintf("%s: %s double-booked within the proposal", label, conflicts[0].Type))
			continue
		}
		bookings = append(bookings, candidate)

		accepted = append(accepted, persistence.Session{
			ID:             s.idGenerator(),
			OrganizationID: organizationID,
			ScheduleID:     scheduleID,
			StaffID:        proposal.StaffID,
			PatientID:      proposal.PatientID,
			RoomID:         proposal.RoomID,
			Date:           date,
			StartTime:      proposal.StartTime,
			EndTime:        proposal.EndTime,
			Status:         string(statemachine.StatusScheduled),
			BookedVia:      "generated",
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return accepted, warnings, nil
}

// enforceRules drops sessions with required violations and keeps preferred
// ones as warnings.
func (s *ScheduleService) enforceRules(ruleSet []persistence.Rule, sessions []persistence.Session, dir rules.Directory) ([]persistence.Session, []string, error) {
	violations, err := rules.Evaluate(ruleSet, sessions, dir)
	if err != nil {
		return nil, nil, err
	}

	blocked := make(map[string]rules.Violation)
	var warnings []string
	for _, violation := range violations {
		if violation.Priority == rules.PriorityRequired {
			if _, seen := blocked[violation.SessionID]; !seen {
				blocked[violation.SessionID] = violation
			}
			continue
		}
		warnings = append(warnings, fmt.Sprintf("rule %s (%s): %s", violation.RuleID, violation.Category, violation.Message))
	}

	kept := sessions[:0]
	for _, session := range sessions {
		if violation, drop := blocked[session.ID]; drop {
			warnings = append(warnings, fmt.Sprintf("dropped session for patient %s on %s: rule %s: %s",
				session.PatientID, session.StartTime, violation.RuleID, violation.Message))
			continue
		}
		kept = append(kept, session)
	}
	return kept, warnings, nil
}

// GetSchedule returns one schedule version.
func (s *ScheduleService) GetSchedule(ctx context.Context, organizationID, scheduleID string) (Schedule, error) {
	_, loc, err := s.loadOrganization(ctx, organizationID)
	if err != nil {
		return Schedule{}, err
	}
	schedule, err := s.schedules.GetSchedule(ctx, organizationID, scheduleID)
	if err != nil {
		return Schedule{}, mapRepoError(err)
	}
	return toScheduleView(schedule, loc), nil
}

// ListSchedules returns schedule versions, optionally filtered by week and
// status, ordered newest week then highest version first.
func (s *ScheduleService) ListSchedules(ctx context.Context, organizationID, weekStartDate, status string) ([]Schedule, error) {
	_, loc, err := s.loadOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	filter := persistence.ScheduleFilter{Status: status}
	if weekStartDate != "" {
		weekStart, err := timeslot.ParseLocalDateStart(weekStartDate, loc)
		if err != nil {
			vErr := &ValidationError{}
			vErr.add("week_start_date", "must be a YYYY-MM-DD date")
			return nil, vErr
		}
		filter.WeekStartDate = &weekStart
	}

	schedules, err := s.schedules.ListSchedules(ctx, organizationID, filter)
	if err != nil {
		return nil, mapRepoError(err)
	}
	out := make([]Schedule, 0, len(schedules))
	for _, schedule := range schedules {
		out = append(out, toScheduleView(schedule, loc))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WeekStartDate != out[j].WeekStartDate {
			return out[i].WeekStartDate > out[j].WeekStartDate
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}

// Publish moves a draft to published and archives any previously published
// version of the same week, keeping at most one live version per week.
// Publishing anything but a draft fails with a conflict.
func (s *ScheduleService) Publish(ctx context.Context, organizationID, scheduleID string, principal Principal) (Schedule, error) {
	logger := serviceLogger(ctx, s.logger, "schedule", "publish", "organization_id", organizationID, "schedule_id", scheduleID)

	_, loc, err := s.loadOrganization(ctx, organizationID)
	if err != nil {
		return Schedule{}, err
	}
	schedule, err := s.schedules.GetSchedule(ctx, organizationID, scheduleID)
	if err != nil {
		return Schedule{}, mapRepoError(err)
	}

	now := s.now()
	if err := s.schedules.UpdateScheduleStatus(ctx, organizationID, scheduleID, "draft", "published", now); err != nil {
		return Schedule{}, mapRepoError(err)
	}

	published, err := s.schedules.ListSchedules(ctx, organizationID, persistence.ScheduleFilter{
		WeekStartDate: &schedule.WeekStartDate,
		Status:        "published",
	})
	if err != nil {
		return Schedule{}, mapRepoError(err)
	}
	for _, other := range published {
		if other.ID == scheduleID {
			continue
		}
		if err := s.schedules.UpdateScheduleStatus(ctx, organizationID, other.ID, "published", "archived", now); err != nil {
			logger.WarnContext(ctx, "could not archive superseded version", "superseded_id", other.ID, "error_kind", ErrorKind(err))
		}
	}

	schedule.Status = "published"
	schedule.UpdatedAt = now
	logger.InfoContext(ctx, "schedule published", "version", schedule.Version)
	return toScheduleView(schedule, loc), nil
}

// Archive retires a draft or published schedule. Archiving twice is a
// conflict.
func (s *ScheduleService) Archive(ctx context.Context, organizationID, scheduleID string, principal Principal) (Schedule, error) {
	logger := serviceLogger(ctx, s.logger, "schedule", "archive", "organization_id", organizationID, "schedule_id", scheduleID)

	_, loc, err := s.loadOrganization(ctx, organizationID)
	if err != nil {
		return Schedule{}, err
	}
	schedule, err := s.schedules.GetSchedule(ctx, organizationID, scheduleID)
	if err != nil {
		return Schedule{}, mapRepoError(err)
	}
	if schedule.Status == "archived" {
		return Schedule{}, fmt.Errorf("%w: schedule %s is already archived", ErrConflict, scheduleID)
	}

	now := s.now()
	if err := s.schedules.UpdateScheduleStatus(ctx, organizationID, scheduleID, schedule.Status, "archived", now); err != nil {
		return Schedule{}, mapRepoError(err)
	}

	schedule.Status = "archived"
	schedule.UpdatedAt = now
	logger.InfoContext(ctx, "schedule archived")
	return toScheduleView(schedule, loc), nil
}

// CreateDraftCopy copies a published schedule into a fresh draft without
// revalidation. Sessions carry over unchanged apart from new IDs and the
// new schedule ID; terminal sessions stay with the source as history.
func (s *ScheduleService) CreateDraftCopy(ctx context.Context, organizationID string, params CopyScheduleParams) (CopyResult, error) {
	return s.copySchedule(ctx, organizationID, params, false)
}

// CreateDraftCopyWithValidation copies a published schedule into a fresh
// draft, revalidating every session against the current active rule set.
// Sessions breaking a required rule are reassigned to another staff member
// when one satisfies the rules, otherwise removed; preferred violations are
// kept and reported. When the rule set itself cannot be evaluated the copy
// falls back to an unvalidated one and says so, never a silent partial.
func (s *ScheduleService) CreateDraftCopyWithValidation(ctx context.Context, organizationID string, params CopyScheduleParams) (CopyResult, error) {
	return s.copySchedule(ctx, organizationID, params, true)
}

func (s *ScheduleService) copySchedule(ctx context.Context, organizationID string, params CopyScheduleParams, validate bool) (CopyResult, error) {
	logger := serviceLogger(ctx, s.logger, "schedule", "copy", "organization_id", organizationID, "source_id", params.SourceScheduleID, "validated", validate)

	_, loc, err := s.loadOrganization(ctx, organizationID)
	if err != nil {
		return CopyResult{}, err
	}
	source, err := s.schedules.GetSchedule(ctx, organizationID, params.SourceScheduleID)
	if err != nil {
		return CopyResult{}, mapRepoError(err)
	}
	if source.Status != "published" {
		vErr := &ValidationError{}
		vErr.add("source_schedule_id", "only a published schedule can be copied")
		return CopyResult{}, vErr
	}

	sourceSessions, err := s.sessions.ListSessions(ctx, organizationID, persistence.SessionFilter{
		ScheduleID:      source.ID,
		ExcludeTerminal: true,
	})
	if err != nil {
		return CopyResult{}, mapRepoError(err)
	}

	now := s.now()
	version, err := s.schedules.MaxVersionForWeek(ctx, organizationID, source.WeekStartDate)
	if err != nil {
		return CopyResult{}, mapRepoError(err)
	}
	draft := persistence.Schedule{
		ID:             s.idGenerator(),
		OrganizationID: organizationID,
		WeekStartDate:  source.WeekStartDate,
		Status:         "draft",
		Version:        version + 1,
		CreatedBy:      params.Principal.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.schedules.CreateSchedule(ctx, draft); err != nil {
		return CopyResult{}, mapRepoError(err)
	}

	result := CopyResult{Schedule: toScheduleView(draft, loc)}
	kept := sourceSessions

	if validate {
		kept, err = s.revalidateCopy(ctx, organizationID, loc, sourceSessions, &result)
		if err != nil {
			return CopyResult{}, err
		}
	}

	for _, session := range kept {
		copied := session
		copied.ID = s.idGenerator()
		copied.ScheduleID = draft.ID
		copied.CreatedAt = now
		copied.UpdatedAt = now
		if _, err := s.sessions.CreateSession(ctx, copied); err != nil {
			return CopyResult{}, mapRepoError(err)
		}
		result.Sessions = append(result.Sessions, toSessionView(copied, loc))
	}

	logger.InfoContext(ctx, "draft copy created",
		"draft_id", draft.ID, "version", draft.Version,
		"sessions", len(result.Sessions), "removed", len(result.Removed),
		"skipped_validation", result.SkippedValidation)
	return result, nil
}

// revalidateCopy applies the current rule set to the source sessions and
// resolves required violations by reassignment or removal. It fills the
// result's Regenerated, Removed, Warnings, and skip fields and returns the
// sessions to copy.
func (s *ScheduleService) revalidateCopy(ctx context.Context, organizationID string, loc *time.Location, sourceSessions []persistence.Session, result *CopyResult) ([]persistence.Session, error) {
	ruleSet, err := s.rules.ListActiveRules(ctx, organizationID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if err := rules.CheckReviewGate(ruleSet); err != nil {
		return nil, err
	}

	staffList, err := s.staff.ListStaff(ctx, organizationID, true)
	if err != nil {
		return nil, mapRepoError(err)
	}
	patientList, err := s.patients.ListPatients(ctx, organizationID, false)
	if err != nil {
		return nil, mapRepoError(err)
	}
	roomList, err := s.rooms.ListRooms(ctx, organizationID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	dir := rules.BuildDirectory(staffList, patientList, roomList, loc)

	violations, err := rules.Evaluate(ruleSet, sourceSessions, dir)
	if err != nil {
		result.SkippedValidation = true
		result.SkipReason = err.Error()
		return sourceSessions, nil
	}

	required := make(map[string][]rules.Violation)
	for _, violation := range rules.RequiredOnly(violations) {
		required[violation.SessionID] = append(required[violation.SessionID], violation)
	}
	for _, violation := range violations {
		if violation.Priority == rules.PriorityPreferred {
			result.Warnings = append(result.Warnings, violation)
		}
	}

	var kept []persistence.Session
	for _, session := range sourceSessions {
		blocking, bad := required[session.ID]
		if !bad {
			kept = append(kept, session)
			continue
		}

		if fixed, ok := s.reassignStaff(ruleSet, dir, staffList, kept, session); ok {
			result.Regenerated = append(result.Regenerated, ModificationRecord{
				SessionID: session.ID,
				Before:    toSessionView(session, loc),
				After:     toSessionView(fixed, loc),
				RuleID:    blocking[0].RuleID,
			})
			kept = append(kept, fixed)
			continue
		}

		result.Removed = append(result.Removed, RemovalRecord{
			SessionID: session.ID,
			Session:   toSessionView(session, loc),
			RuleID:    blocking[0].RuleID,
			Reason:    blocking[0].Message,
		})
	}
	return kept, nil
}

// reassignStaff tries each other active staff member in the slot and
// returns the first assignment with no required violations and no conflict
// against the sessions kept so far.
func (s *ScheduleService) reassignStaff(ruleSet []persistence.Rule, dir rules.Directory, staffList []persistence.Staff, kept []persistence.Session, session persistence.Session) (persistence.Session, bool) {
	interval, err := spanFromTimes(session.StartTime, session.EndTime)
	if err != nil {
		return persistence.Session{}, false
	}

	existing := make([]scheduler.Booking, 0, len(kept))
	for _, other := range kept {
		otherInterval, err := spanFromTimes(other.StartTime, other.EndTime)
		if err != nil {
			continue
		}
		existing = append(existing, scheduler.Booking{
			ID:        other.ID,
			StaffID:   other.StaffID,
			PatientID: other.PatientID,
			RoomID:    other.RoomID,
			Date:      other.Date,
			StartMin:  otherInterval.start,
			EndMin:    otherInterval.end,
		})
	}

	for _, candidate := range staffList {
		if candidate.ID == session.StaffID {
			continue
		}
		attempt := session
		attempt.StaffID = candidate.ID

		if scheduler.HasConflict(existing, scheduler.Booking{
			ID:        attempt.ID,
			StaffID:   attempt.StaffID,
			PatientID: attempt.PatientID,
			RoomID:    attempt.RoomID,
			Date:      attempt.Date,
			StartMin:  interval.start,
			EndMin:    interval.end,
		}) {
			continue
		}

		trial := append(append([]persistence.Session(nil), kept...), attempt)
		violations, err := rules.Evaluate(ruleSet, trial, dir)
		if err != nil {
			return persistence.Session{}, false
		}
		if len(rules.RequiredOnly(rules.ForSession(violations, attempt.ID))) == 0 {
			return attempt, true
		}
	}
	return persistence.Session{}, false
}

func buildPlannerRequest(org persistence.Organization, weekStartDate string, staffList []persistence.Staff, patientList []persistence.Patient, roomList []persistence.Room) planner.Request {
	req := planner.Request{
		OrganizationID:        org.ID,
		WeekStartDate:         weekStartDate,
		Timezone:              org.Timezone,
		BusinessHours:         org.BusinessHours,
		SlotIntervalMinutes:   org.SlotIntervalMinutes,
		DefaultSessionMinutes: org.DefaultSessionMinutes,
	}
	for _, staff := range staffList {
		req.Staff = append(req.Staff, planner.StaffInput{
			ID:             staff.ID,
			Gender:         staff.Gender,
			Certifications: staff.Certifications,
			WorkingHours:   staff.WorkingHours,
		})
	}
	for _, patient := range patientList {
		req.Patients = append(req.Patients, planner.PatientInput{
			ID:                       patient.ID,
			Gender:                   patient.Gender,
			PreferredStaffGender:     patient.PreferredStaffGender,
			RequiredCertifications:   patient.RequiredCertifications,
			RequiredRoomCapabilities: patient.RequiredRoomCapabilities,
			PreferredRoomID:          patient.PreferredRoomID,
			SessionsPerWeek:          patient.SessionsPerWeek,
			SessionSpecs:             patient.SessionSpecs,
		})
	}
	for _, room := range roomList {
		req.Rooms = append(req.Rooms, planner.RoomInput{ID: room.ID, Capabilities: room.Capabilities})
	}
	return req
}

func (s *ScheduleService) loadOrganization(ctx context.Context, organizationID string) (persistence.Organization, *time.Location, error) {
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

func toScheduleView(schedule persistence.Schedule, loc *time.Location) Schedule {
	return Schedule{
		ID:            schedule.ID,
		WeekStartDate: timeslot.FormatLocalDate(schedule.WeekStartDate, loc),
		Status:        schedule.Status,
		Version:       schedule.Version,
		CreatedBy:     schedule.CreatedBy,
	}
}
