package application

import (
	"context"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
)

// Collaborator store interfaces. The services only depend on the operations
// they actually call; the SQLite repositories satisfy these directly and
// tests substitute stubs.

// OrganizationStore exposes tenant settings reads.
type OrganizationStore interface {
	GetOrganization(ctx context.Context, id string) (persistence.Organization, error)
}

// StaffDirectory exposes staff reads.
type StaffDirectory interface {
	GetStaff(ctx context.Context, organizationID, id string) (persistence.Staff, error)
	ListStaff(ctx context.Context, organizationID string, activeOnly bool) ([]persistence.Staff, error)
}

// PatientDirectory exposes patient reads.
type PatientDirectory interface {
	GetPatient(ctx context.Context, organizationID, id string) (persistence.Patient, error)
	ListPatients(ctx context.Context, organizationID string, activeOnly bool) ([]persistence.Patient, error)
}

// RoomCatalog exposes room reads.
type RoomCatalog interface {
	GetRoom(ctx context.Context, organizationID, id string) (persistence.Room, error)
	ListRooms(ctx context.Context, organizationID string) ([]persistence.Room, error)
}

// RuleStore exposes the active rule set.
type RuleStore interface {
	ListActiveRules(ctx context.Context, organizationID string) ([]persistence.Rule, error)
}

// TimeOffStore exposes staff unavailability reads.
type TimeOffStore interface {
	ListTimeOff(ctx context.Context, organizationID, staffID string, from, to time.Time) ([]persistence.StaffTimeOff, error)
}

// ScheduleStore exposes schedule persistence.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, schedule persistence.Schedule) error
	GetSchedule(ctx context.Context, organizationID, id string) (persistence.Schedule, error)
	UpdateScheduleStatus(ctx context.Context, organizationID, id, fromStatus, toStatus string, updatedAt time.Time) error
	ListSchedules(ctx context.Context, organizationID string, filter persistence.ScheduleFilter) ([]persistence.Schedule, error)
	MaxVersionForWeek(ctx context.Context, organizationID string, weekStartDate time.Time) (int, error)
}

// SessionStore exposes session persistence. CreateSessionIfFree is the
// atomic conditional write; CreateSession skips the slot check and exists
// only for generation and draft copies.
type SessionStore interface {
	CreateSessionIfFree(ctx context.Context, session persistence.Session, now time.Time) (persistence.Session, error)
	CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error)
	GetSession(ctx context.Context, organizationID, id string) (persistence.Session, error)
	UpdateSession(ctx context.Context, session persistence.Session) (persistence.Session, error)
	ListSessions(ctx context.Context, organizationID string, filter persistence.SessionFilter) ([]persistence.Session, error)
}

// HoldStore exposes hold persistence with its atomic conditional writes.
type HoldStore interface {
	CreateHoldIfFree(ctx context.Context, hold persistence.AppointmentHold, now time.Time) (persistence.AppointmentHold, error)
	GetHold(ctx context.Context, organizationID, id string) (persistence.AppointmentHold, error)
	ExtendHold(ctx context.Context, organizationID, id string, expiresAt, now time.Time) (persistence.AppointmentHold, error)
	ReleaseHold(ctx context.Context, organizationID, id string, releasedAt time.Time) (bool, error)
	ListActiveHolds(ctx context.Context, organizationID string, from, to *time.Time, now time.Time) ([]persistence.AppointmentHold, error)
	ConsumeHoldAndCreateSession(ctx context.Context, organizationID, holdID string, session persistence.Session, now time.Time) (persistence.Session, error)
	DeleteExpiredHolds(ctx context.Context, now time.Time) (int, error)
}

// AuditSink receives one record per successful session status mutation. The
// caller's outer layers own durable audit storage; the core only emits.
type AuditSink interface {
	RecordSessionAudit(ctx context.Context, record SessionAuditRecord)
}

// SessionAuditRecord describes one status mutation.
type SessionAuditRecord struct {
	OrganizationID string
	SessionID      string
	FromStatus     string
	ToStatus       string
	Reason         string
	ActorID        string
	At             time.Time
}
