package application

import (
	"time"

	"github.com/example/practice-scheduler/internal/rules"
)

// Principal represents the authenticated user invoking a service method, as
// established by the caller's outer auth layer.
type Principal struct {
	UserID string
}

// AvailabilityQuery asks for free slots in an organization-local date range.
// DateFrom and DateTo are "YYYY-MM-DD" in the organization's calendar; the
// range is inclusive of both days and may span at most 31 calendar days.
type AvailabilityQuery struct {
	DateFrom        string
	DateTo          string
	DurationMinutes int // 0 = organization default
	StaffID         string
	RoomID          string
	PatientID       string
}

// AvailableSlot is one bookable opening.
type AvailableSlot struct {
	StaffID   string
	RoomID    string
	Date      string // YYYY-MM-DD, organization-local
	StartTime string // HH:mm
	EndTime   string // HH:mm
}

// TimeWindow is a free or busy stretch within one day.
type TimeWindow struct {
	StartTime string
	EndTime   string
	Busy      bool
	Reason    string // session | time_off | outside_hours, set when Busy
}

// StaffDayAvailability is the free/busy breakdown for one staff member on
// one day.
type StaffDayAvailability struct {
	StaffID string
	Date    string
	Windows []TimeWindow
}

// SlotCheckResult reports a point availability check.
type SlotCheckResult struct {
	Available bool
	// Conflict names the blocking entity when Available is false for a
	// conflict reason; empty when the slot is simply outside working hours.
	Conflict string
	Reason   string
}

// CreateHoldParams wraps the data required to place a hold.
type CreateHoldParams struct {
	Principal           Principal
	StaffID             *string
	RoomID              *string
	Date                string // YYYY-MM-DD
	StartTime           string
	EndTime             string
	HoldDurationMinutes int // 0 = service default
}

// Hold is the caller-facing view of an appointment hold.
type Hold struct {
	ID        string
	StaffID   *string
	RoomID    *string
	Date      string
	StartTime string
	EndTime   string
	ExpiresAt time.Time
	SessionID *string
}

// BookFromHoldParams commits a hold into a session.
type BookFromHoldParams struct {
	Principal  Principal
	HoldID     string
	ScheduleID string // empty = auto-select/create current week draft
	PatientID  string
	Notes      string
	BookedVia  string
}

// DirectBookingParams books a session without a prior hold.
type DirectBookingParams struct {
	Principal  Principal
	ScheduleID string // empty = auto-select/create current week draft
	StaffID    string
	PatientID  string
	RoomID     *string
	Date       string // YYYY-MM-DD
	StartTime  string
	EndTime    string
	Notes      string
	BookedVia  string
}

// Session is the caller-facing view of a scheduled session.
type Session struct {
	ID                 string
	ScheduleID         string
	StaffID            string
	PatientID          string
	RoomID             *string
	Date               string // YYYY-MM-DD, organization-local
	StartTime          string
	EndTime            string
	Status             string
	Notes              string
	BookedVia          string
	CancellationReason string
}

// SessionListQuery filters a session listing. Dates are "YYYY-MM-DD" in the
// organization's calendar; empty fields do not filter.
type SessionListQuery struct {
	ScheduleID      string
	StaffID         string
	PatientID       string
	DateFrom        string
	DateTo          string
	ExcludeTerminal bool
}

// CancelSessionParams wraps a cancellation request. The service classifies
// the outcome into cancelled or late_cancel; the caller only supplies why.
type CancelSessionParams struct {
	Principal Principal
	SessionID string
	Reason    string
}

// GenerateScheduleParams asks for a new draft for a week.
type GenerateScheduleParams struct {
	Principal     Principal
	WeekStartDate string // YYYY-MM-DD, must be a Monday
}

// Schedule is the caller-facing view of a schedule version.
type Schedule struct {
	ID            string
	WeekStartDate string
	Status        string
	Version       int
	CreatedBy     string
}

// GenerateResult reports a generation run: the persisted draft, its
// sessions, and warnings for proposals that were dropped.
type GenerateResult struct {
	Schedule Schedule
	Sessions []Session
	Warnings []string
}

// ModificationRecord captures a before/after pair for a session the
// draft-copy validation pass reassigned.
type ModificationRecord struct {
	SessionID string
	Before    Session
	After     Session
	RuleID    string
}

// RemovalRecord captures a session the validation pass dropped and why.
type RemovalRecord struct {
	SessionID string
	Session   Session
	RuleID    string
	Reason    string
}

// CopyResult reports a draft copy. When SkippedValidation is set the copy is
// an unvalidated straight copy and SkipReason says why; Modifications and
// Warnings are only meaningful otherwise.
type CopyResult struct {
	Schedule          Schedule
	Sessions          []Session
	Regenerated       []ModificationRecord
	Removed           []RemovalRecord
	Warnings          []rules.Violation
	SkippedValidation bool
	SkipReason        string
}

// CopyScheduleParams wraps a draft-copy request.
type CopyScheduleParams struct {
	Principal        Principal
	SourceScheduleID string
}
