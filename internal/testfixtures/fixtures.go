package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
)

var (
	organizationCounter uint64
	staffCounter        uint64
	patientCounter      uint64
	roomCounter         uint64
	ruleCounter         uint64
	timeOffCounter      uint64
	scheduleCounter     uint64
	sessionCounter      uint64
	holdCounter         uint64
)

var referenceTime = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ReferenceWeekStart returns the Monday following ReferenceTime as a UTC
// start-of-day instant, the week most fixtures schedule into.
func ReferenceWeekStart() time.Time {
	return time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
}

// WeekdayHours builds a WeeklyHours map with the same open window Monday
// through Friday and weekends closed.
func WeekdayHours(start, end string) persistence.WeeklyHours {
	hours := persistence.WeeklyHours{}
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		hours[day] = persistence.DayHours{Open: true, Start: start, End: end}
	}
	return hours
}

// ------------------------- Organization fixtures -------------------------

// OrganizationOption configures the generated organization fixture.
type OrganizationOption func(*persistence.Organization)

// NewOrganizationFixture returns a deterministic organization with optional
// overrides. The default tenant runs UTC weekday business hours with 60
// minute sessions on a 30 minute grid.
func NewOrganizationFixture(opts ...OrganizationOption) persistence.Organization {
	idx := atomic.AddUint64(&organizationCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	org := persistence.Organization{
		ID:                    fmt.Sprintf("org-%03d", idx),
		Name:                  fmt.Sprintf("Practice %03d", idx),
		Timezone:              "UTC",
		BusinessHours:         WeekdayHours("08:00", "18:00"),
		DefaultSessionMinutes: 60,
		SlotIntervalMinutes:   30,
		LateCancelWindowHours: 24,
		CreatedAt:             created,
		UpdatedAt:             created,
	}
	for _, opt := range opts {
		opt(&org)
	}
	return org
}

// WithOrganizationID overrides the generated organization ID.
func WithOrganizationID(id string) OrganizationOption {
	return func(o *persistence.Organization) {
		o.ID = id
	}
}

// WithOrganizationTimezone overrides the IANA timezone.
func WithOrganizationTimezone(tz string) OrganizationOption {
	return func(o *persistence.Organization) {
		o.Timezone = tz
	}
}

// WithBusinessHours overrides the weekly business hours.
func WithBusinessHours(hours persistence.WeeklyHours) OrganizationOption {
	return func(o *persistence.Organization) {
		o.BusinessHours = hours
	}
}

// WithBookingApproval makes bookings start in pending status.
func WithBookingApproval() OrganizationOption {
	return func(o *persistence.Organization) {
		o.RequireBookingApproval = true
	}
}

// WithLateCancelWindow overrides the late cancellation window in hours.
func WithLateCancelWindow(hours int) OrganizationOption {
	return func(o *persistence.Organization) {
		o.LateCancelWindowHours = hours
	}
}

// ---------------------------- Staff fixtures -----------------------------

// StaffOption configures the generated staff fixture.
type StaffOption func(*persistence.Staff)

// NewStaffFixture returns a deterministic active staff member. Staff follow
// the organization's business hours unless WithWorkingHours narrows them.
func NewStaffFixture(organizationID string, opts ...StaffOption) persistence.Staff {
	idx := atomic.AddUint64(&staffCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	staff := persistence.Staff{
		ID:             fmt.Sprintf("staff-%03d", idx),
		OrganizationID: organizationID,
		Name:           fmt.Sprintf("Therapist %03d", idx),
		Gender:         "female",
		Status:         "active",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&staff)
	}
	return staff
}

// WithStaffID overrides the generated staff ID.
func WithStaffID(id string) StaffOption {
	return func(s *persistence.Staff) {
		s.ID = id
	}
}

// WithStaffGender overrides the staff gender.
func WithStaffGender(gender string) StaffOption {
	return func(s *persistence.Staff) {
		s.Gender = gender
	}
}

// WithCertifications sets the staff certifications.
func WithCertifications(certs ...string) StaffOption {
	return func(s *persistence.Staff) {
		s.Certifications = certs
	}
}

// WithWorkingHours narrows the staff schedule below the organization hours.
func WithWorkingHours(hours persistence.WeeklyHours) StaffOption {
	return func(s *persistence.Staff) {
		s.WorkingHours = hours
	}
}

// WithStaffStatus overrides the staff status.
func WithStaffStatus(status string) StaffOption {
	return func(s *persistence.Staff) {
		s.Status = status
	}
}

// --------------------------- Patient fixtures ----------------------------

// PatientOption configures the generated patient fixture.
type PatientOption func(*persistence.Patient)

// NewPatientFixture returns a deterministic active patient needing two
// sessions per week.
func NewPatientFixture(organizationID string, opts ...PatientOption) persistence.Patient {
	idx := atomic.AddUint64(&patientCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	patient := persistence.Patient{
		ID:              fmt.Sprintf("patient-%03d", idx),
		OrganizationID:  organizationID,
		Name:            fmt.Sprintf("Patient %03d", idx),
		Gender:          "male",
		SessionsPerWeek: 2,
		Status:          "active",
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	for _, opt := range opts {
		opt(&patient)
	}
	return patient
}

// WithPatientID overrides the generated patient ID.
func WithPatientID(id string) PatientOption {
	return func(p *persistence.Patient) {
		p.ID = id
	}
}

// WithPreferredStaffGender requires staff of the given gender.
func WithPreferredStaffGender(gender string) PatientOption {
	return func(p *persistence.Patient) {
		p.PreferredStaffGender = gender
	}
}

// WithRequiredCertifications requires staff holding all listed certifications.
func WithRequiredCertifications(certs ...string) PatientOption {
	return func(p *persistence.Patient) {
		p.RequiredCertifications = certs
	}
}

// WithSessionSpecs overrides the patient's session requirements.
func WithSessionSpecs(specs ...persistence.SessionSpec) PatientOption {
	return func(p *persistence.Patient) {
		p.SessionSpecs = specs
		p.SessionsPerWeek = len(specs)
	}
}

// WithPatientStatus overrides the patient status.
func WithPatientStatus(status string) PatientOption {
	return func(p *persistence.Patient) {
		p.Status = status
	}
}

// ----------------------------- Room fixtures -----------------------------

// RoomOption configures the generated room fixture.
type RoomOption func(*persistence.Room)

// NewRoomFixture returns a deterministic active treatment room.
func NewRoomFixture(organizationID string, opts ...RoomOption) persistence.Room {
	idx := atomic.AddUint64(&roomCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	room := persistence.Room{
		ID:             fmt.Sprintf("room-%03d", idx),
		OrganizationID: organizationID,
		Name:           fmt.Sprintf("Room %03d", idx),
		Status:         "active",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&room)
	}
	return room
}

// WithRoomID overrides the generated room ID.
func WithRoomID(id string) RoomOption {
	return func(r *persistence.Room) {
		r.ID = id
	}
}

// WithRoomCapabilities sets the room capabilities.
func WithRoomCapabilities(capabilities ...string) RoomOption {
	return func(r *persistence.Room) {
		r.Capabilities = capabilities
	}
}

// ----------------------------- Rule fixtures -----------------------------

// RuleOption configures the generated rule fixture.
type RuleOption func(*persistence.Rule)

// NewRuleFixture returns a deterministic active rule in the given category
// with the supplied JSON logic.
func NewRuleFixture(organizationID, category, logic string, opts ...RuleOption) persistence.Rule {
	idx := atomic.AddUint64(&ruleCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	rule := persistence.Rule{
		ID:             fmt.Sprintf("rule-%03d", idx),
		OrganizationID: organizationID,
		Category:       category,
		Logic:          logic,
		Priority:       int(idx),
		Active:         true,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&rule)
	}
	return rule
}

// WithRuleID overrides the generated rule ID.
func WithRuleID(id string) RuleOption {
	return func(r *persistence.Rule) {
		r.ID = id
	}
}

// WithRulePriority overrides the evaluation ordering priority.
func WithRulePriority(priority int) RuleOption {
	return func(r *persistence.Rule) {
		r.Priority = priority
	}
}

// WithRuleReviewRequired flags the rule as pending manual review.
func WithRuleReviewRequired() RuleOption {
	return func(r *persistence.Rule) {
		r.RequiresReview = true
	}
}

// --------------------------- Time off fixtures ---------------------------

// TimeOffOption configures the generated time off fixture.
type TimeOffOption func(*persistence.StaffTimeOff)

// NewTimeOffFixture returns an approved whole-day absence on the given date.
func NewTimeOffFixture(organizationID, staffID string, date time.Time, opts ...TimeOffOption) persistence.StaffTimeOff {
	idx := atomic.AddUint64(&timeOffCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	timeOff := persistence.StaffTimeOff{
		ID:             fmt.Sprintf("timeoff-%03d", idx),
		OrganizationID: organizationID,
		StaffID:        staffID,
		Date:           date,
		Status:         "approved",
		Reason:         "vacation",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&timeOff)
	}
	return timeOff
}

// WithTimeOffWindow narrows the absence to part of the day.
func WithTimeOffWindow(start, end string) TimeOffOption {
	return func(t *persistence.StaffTimeOff) {
		t.StartTime = start
		t.EndTime = end
	}
}

// WithTimeOffStatus overrides the approval status.
func WithTimeOffStatus(status string) TimeOffOption {
	return func(t *persistence.StaffTimeOff) {
		t.Status = status
	}
}

// --------------------------- Schedule fixtures ---------------------------

// ScheduleOption configures the generated schedule fixture.
type ScheduleOption func(*persistence.Schedule)

// NewScheduleFixture returns a version 1 draft for the reference week.
func NewScheduleFixture(organizationID string, opts ...ScheduleOption) persistence.Schedule {
	idx := atomic.AddUint64(&scheduleCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	schedule := persistence.Schedule{
		ID:             fmt.Sprintf("sched-%03d", idx),
		OrganizationID: organizationID,
		WeekStartDate:  ReferenceWeekStart(),
		Status:         "draft",
		Version:        1,
		CreatedBy:      "user-1",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&schedule)
	}
	return schedule
}

// WithScheduleID overrides the generated schedule ID.
func WithScheduleID(id string) ScheduleOption {
	return func(s *persistence.Schedule) {
		s.ID = id
	}
}

// WithScheduleStatus overrides the lifecycle status.
func WithScheduleStatus(status string) ScheduleOption {
	return func(s *persistence.Schedule) {
		s.Status = status
	}
}

// WithScheduleVersion overrides the version number.
func WithScheduleVersion(version int) ScheduleOption {
	return func(s *persistence.Schedule) {
		s.Version = version
	}
}

// WithWeekStartDate overrides the week this schedule covers.
func WithWeekStartDate(weekStart time.Time) ScheduleOption {
	return func(s *persistence.Schedule) {
		s.WeekStartDate = weekStart
	}
}

// ---------------------------- Session fixtures ---------------------------

// SessionOption configures the generated session fixture.
type SessionOption func(*persistence.Session)

// NewSessionFixture returns a scheduled one-hour session on the Monday of
// the reference week.
func NewSessionFixture(organizationID, scheduleID, staffID, patientID string, opts ...SessionOption) persistence.Session {
	idx := atomic.AddUint64(&sessionCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	session := persistence.Session{
		ID:             fmt.Sprintf("sess-%03d", idx),
		OrganizationID: organizationID,
		ScheduleID:     scheduleID,
		StaffID:        staffID,
		PatientID:      patientID,
		Date:           ReferenceWeekStart(),
		StartTime:      "09:00",
		EndTime:        "10:00",
		Status:         "scheduled",
		BookedVia:      "staff",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&session)
	}
	return session
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(s *persistence.Session) {
		s.ID = id
	}
}

// WithSessionSlot sets the date and time window.
func WithSessionSlot(date time.Time, startTime, endTime string) SessionOption {
	return func(s *persistence.Session) {
		s.Date = date
		s.StartTime = startTime
		s.EndTime = endTime
	}
}

// WithSessionStatus overrides the lifecycle status.
func WithSessionStatus(status string) SessionOption {
	return func(s *persistence.Session) {
		s.Status = status
	}
}

// WithSessionRoom assigns a room.
func WithSessionRoom(roomID string) SessionOption {
	return func(s *persistence.Session) {
		s.RoomID = &roomID
	}
}

// ----------------------------- Hold fixtures -----------------------------

// HoldOption configures the generated hold fixture.
type HoldOption func(*persistence.AppointmentHold)

// NewHoldFixture returns an unexpired staff hold on the Monday of the
// reference week, expiring ten minutes after ReferenceTime.
func NewHoldFixture(organizationID, staffID string, opts ...HoldOption) persistence.AppointmentHold {
	idx := atomic.AddUint64(&holdCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Second)
	hold := persistence.AppointmentHold{
		ID:              fmt.Sprintf("hold-%03d", idx),
		OrganizationID:  organizationID,
		StaffID:         &staffID,
		Date:            ReferenceWeekStart(),
		StartTime:       "09:00",
		EndTime:         "10:00",
		CreatedByUserID: "user-1",
		ExpiresAt:       referenceTime.Add(10 * time.Minute),
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	for _, opt := range opts {
		opt(&hold)
	}
	return hold
}

// WithHoldID overrides the generated hold ID.
func WithHoldID(id string) HoldOption {
	return func(h *persistence.AppointmentHold) {
		h.ID = id
	}
}

// WithHoldSlot sets the date and time window.
func WithHoldSlot(date time.Time, startTime, endTime string) HoldOption {
	return func(h *persistence.AppointmentHold) {
		h.Date = date
		h.StartTime = startTime
		h.EndTime = endTime
	}
}

// WithHoldExpiry sets the expiration instant.
func WithHoldExpiry(expiresAt time.Time) HoldOption {
	return func(h *persistence.AppointmentHold) {
		h.ExpiresAt = expiresAt
	}
}

// WithHoldRoom attaches a room to the hold.
func WithHoldRoom(roomID string) HoldOption {
	return func(h *persistence.AppointmentHold) {
		h.RoomID = &roomID
	}
}
