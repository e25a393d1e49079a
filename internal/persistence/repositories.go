package persistence

import (
	"context"
	"time"
)

// OrganizationRepository exposes tenant settings lookups.
type OrganizationRepository interface {
	CreateOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, id string) (Organization, error)
}

// StaffRepository exposes the staff directory reads the scheduling core
// depends on, plus the writes needed to maintain it.
type StaffRepository interface {
	CreateStaff(ctx context.Context, staff Staff) error
	GetStaff(ctx context.Context, organizationID, id string) (Staff, error)
	ListStaff(ctx context.Context, organizationID string, activeOnly bool) ([]Staff, error)
}

// PatientRepository exposes the patient directory.
type PatientRepository interface {
	CreatePatient(ctx context.Context, patient Patient) error
	GetPatient(ctx context.Context, organizationID, id string) (Patient, error)
	ListPatients(ctx context.Context, organizationID string, activeOnly bool) ([]Patient, error)
}

// RoomRepository exposes the room catalog.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, organizationID, id string) (Room, error)
	ListRooms(ctx context.Context, organizationID string) ([]Room, error)
}

// RuleRepository exposes the scheduling rule set.
type RuleRepository interface {
	CreateRule(ctx context.Context, rule Rule) error
	ListActiveRules(ctx context.Context, organizationID string) ([]Rule, error)
}

// TimeOffRepository exposes staff unavailability records.
type TimeOffRepository interface {
	CreateTimeOff(ctx context.Context, timeOff StaffTimeOff) error
	ListTimeOff(ctx context.Context, organizationID, staffID string, from, to time.Time) ([]StaffTimeOff, error)
}

// ScheduleFilter narrows schedule queries.
type ScheduleFilter struct {
	WeekStartDate *time.Time
	Status        string
}

// ScheduleRepository stores weekly schedule versions.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule Schedule) error
	GetSchedule(ctx context.Context, organizationID, id string) (Schedule, error)
	UpdateScheduleStatus(ctx context.Context, organizationID, id, fromStatus, toStatus string, updatedAt time.Time) error
	ListSchedules(ctx context.Context, organizationID string, filter ScheduleFilter) ([]Schedule, error)
	// MaxVersionForWeek returns the highest version in the org+week lineage,
	// zero when none exists.
	MaxVersionForWeek(ctx context.Context, organizationID string, weekStartDate time.Time) (int, error)
}

// SessionFilter narrows session queries. Zero values are ignored.
type SessionFilter struct {
	ScheduleID      string
	StaffID         string
	PatientID       string
	RoomID          string
	DateFrom        *time.Time
	DateTo          *time.Time
	ExcludeTerminal bool
}

// SessionRepository stores scheduled sessions. CreateSessionIfFree performs
// the overlap re-check and the insert inside one transaction; a losing
// attempt receives a *SlotConflictError, never a silent overwrite.
// CreateSession inserts without the slot check; it exists for schedule
// generation and draft copies, whose sessions deliberately mirror slots
// already held by another version of the same week.
type SessionRepository interface {
	CreateSessionIfFree(ctx context.Context, session Session, now time.Time) (Session, error)
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, organizationID, id string) (Session, error)
	UpdateSession(ctx context.Context, session Session) (Session, error)
	ListSessions(ctx context.Context, organizationID string, filter SessionFilter) ([]Session, error)
	DeleteSessionsForSchedule(ctx context.Context, organizationID, scheduleID string) error
}

// HoldRepository stores appointment holds. CreateHoldIfFree and
// ConsumeHoldAndCreateSession are the atomic check-then-write boundaries
// required by the concurrency model; both re-verify the no-overlap
// invariant inside the transaction that performs the write.
type HoldRepository interface {
	CreateHoldIfFree(ctx context.Context, hold AppointmentHold, now time.Time) (AppointmentHold, error)
	GetHold(ctx context.Context, organizationID, id string) (AppointmentHold, error)
	ExtendHold(ctx context.Context, organizationID, id string, expiresAt, now time.Time) (AppointmentHold, error)
	ReleaseHold(ctx context.Context, organizationID, id string, releasedAt time.Time) (bool, error)
	ListActiveHolds(ctx context.Context, organizationID string, from, to *time.Time, now time.Time) ([]AppointmentHold, error)
	// ConsumeHoldAndCreateSession atomically marks an active hold consumed
	// and inserts the session it reserves, re-checking the slot.
	ConsumeHoldAndCreateSession(ctx context.Context, organizationID, holdID string, session Session, now time.Time) (Session, error)
	// DeleteExpiredHolds reclaims storage for inert holds; idempotent and
	// safe to run concurrently. Returns the number removed.
	DeleteExpiredHolds(ctx context.Context, now time.Time) (int, error)
}
