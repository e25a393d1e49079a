package persistence

import "time"

// DayHours describes one weekday's working window. Start and End are
// organization-local "HH:mm" wall-clock strings.
type DayHours struct {
	Open  bool
	Start string
	End   string
}

// WeeklyHours maps lowercase weekday names ("monday".."sunday") to that
// day's working window. Missing days are closed.
type WeeklyHours map[string]DayHours

// Organization is the tenant boundary. Every other entity belongs to
// exactly one organization; cross-tenant references are rejected at write
// time and read back as not-found.
type Organization struct {
	ID                     string
	Name                   string
	Timezone               string // IANA name, e.g. "America/New_York"
	BusinessHours          WeeklyHours
	DefaultSessionMinutes  int
	SlotIntervalMinutes    int
	LateCancelWindowHours  int
	RequireBookingApproval bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Staff is a schedulable therapist resource.
type Staff struct {
	ID             string
	OrganizationID string
	Name           string
	Gender         string
	Certifications []string
	WorkingHours   WeeklyHours
	Status         string // active | inactive
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SessionSpec names a recurring patient need with its duration and
// preferred start times.
type SessionSpec struct {
	Name           string
	DurationMin    int
	PreferredTimes []string // "HH:mm"
}

// Patient is a service recipient with pairing and certification
// requirements consumed by the rule engine and generation.
type Patient struct {
	ID                       string
	OrganizationID           string
	Name                     string
	Gender                   string
	PreferredStaffGender     string // empty = no preference
	RequiredCertifications   []string
	RequiredRoomCapabilities []string
	PreferredRoomID          *string
	SessionsPerWeek          int
	SessionSpecs             []SessionSpec
	Status                   string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Room is an optional physical resource with capability tags.
type Room struct {
	ID             string
	OrganizationID string
	Name           string
	Capabilities   []string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Rule is an organization-scoped scheduling constraint. Logic holds the
// category-specific JSON payload decoded by the rules package.
type Rule struct {
	ID             string
	OrganizationID string
	Category       string // gender_pairing | session | availability | specific_pairing | certification
	Logic          string // JSON payload
	Priority       int    // ordering for evaluation output; lower evaluates first
	RequiresReview bool
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StaffTimeOff records approved or pending staff unavailability. Empty
// StartTime/EndTime means the whole day.
type StaffTimeOff struct {
	ID             string
	OrganizationID string
	StaffID        string
	Date           time.Time // start-of-day instant in the organization's timezone
	StartTime      string
	EndTime        string
	Status         string // approved | pending
	Reason         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Schedule is one version of a week's plan.
type Schedule struct {
	ID             string
	OrganizationID string
	WeekStartDate  time.Time // Monday, start-of-day instant in the organization's timezone
	Status         string    // draft | published | archived
	Version        int       // monotonically increasing per organization+week lineage
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Session is one scheduled appointment. Date is the absolute instant at
// which the organization-local day begins; StartTime and EndTime are
// "HH:mm" wall-clock strings interpreted against the organization's
// timezone at read time. This split is load-bearing.
type Session struct {
	ID                 string
	OrganizationID     string
	ScheduleID         string
	StaffID            string
	PatientID          string
	RoomID             *string
	Date               time.Time
	StartTime          string
	EndTime            string
	Status             string
	Notes              string
	BookedVia          string
	ConfirmedAt        *time.Time
	CheckedInAt        *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AppointmentHold is a perishable exclusive reservation on a slot. A hold
// is active while ReleasedAt and ConsumedAt are unset and ExpiresAt is in
// the future; an expired hold is inert everywhere without requiring a
// background sweep.
type AppointmentHold struct {
	ID              string
	OrganizationID  string
	StaffID         *string
	RoomID          *string
	Date            time.Time
	StartTime       string
	EndTime         string
	CreatedByUserID string
	ExpiresAt       time.Time
	ReleasedAt      *time.Time
	ConsumedAt      *time.Time
	SessionID       *string // set when the hold was converted into a session
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HoldIsActive is the single shared activity predicate for holds. Every
// consumer (hold creation, booking commit, listings, cleanup) must use it
// rather than re-deriving the condition.
func HoldIsActive(hold AppointmentHold, now time.Time) bool {
	if hold.ReleasedAt != nil || hold.ConsumedAt != nil {
		return false
	}
	return hold.ExpiresAt.After(now)
}
