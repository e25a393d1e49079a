package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
	"github.com/example/practice-scheduler/internal/timeslot"
)

// maxAvailabilityRangeDays caps availability queries so a single request
// cannot trigger unbounded grid computation.
const maxAvailabilityRangeDays = 30

// AvailabilityService resolves free slots from business hours, staff working
// hours, committed sessions, active holds, and approved time off. Its output
// is advisory: the authoritative conflict check happens atomically at write
// time in the hold and booking paths.
type AvailabilityService struct {
	orgs     OrganizationStore
	staff    StaffDirectory
	rooms    RoomCatalog
	patients PatientDirectory
	timeOff  TimeOffStore
	sessions SessionStore
	holds    HoldStore
	cache    *availabilityCache
	logger   *slog.Logger
	now      func() time.Time
}

// NewAvailabilityService wires dependencies for availability resolution.
func NewAvailabilityService(orgs OrganizationStore, staff StaffDirectory, rooms RoomCatalog, patients PatientDirectory, timeOff TimeOffStore, sessions SessionStore, holds HoldStore, logger *slog.Logger, now func() time.Time) *AvailabilityService {
	if now == nil {
		now = time.Now
	}
	return &AvailabilityService{
		orgs:     orgs,
		staff:    staff,
		rooms:    rooms,
		patients: patients,
		timeOff:  timeOff,
		sessions: sessions,
		holds:    holds,
		cache:    newAvailabilityCache(0, 0, now),
		logger:   defaultLogger(logger),
		now:      now,
	}
}

// span is a half-open [start, end) minute interval within one day.
type span struct {
	start int
	end   int
}

type busySpan struct {
	span
	reason   string
	conflict string
}

// GetAvailableSlots returns the bookable openings in the requested range.
func (s *AvailabilityService) GetAvailableSlots(ctx context.Context, organizationID string, query AvailabilityQuery) ([]AvailableSlot, error) {
	logger := serviceLogger(ctx, s.logger, "availability", "get_available_slots", "organization_id", organizationID)

	key := buildAvailabilityCacheKey(organizationID, query)
	if slots, ok := s.cache.Get(key); ok {
		return slots, nil
	}

	org, loc, err := s.loadOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	fromStart, toStart, vErr := parseDateRange(query.DateFrom, query.DateTo, loc)
	duration := query.DurationMinutes
	if duration == 0 {
		duration = org.DefaultSessionMinutes
	}
	if duration <= 0 {
		vErr.add("duration_minutes", "duration must be positive")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	interval := org.SlotIntervalMinutes
	if interval <= 0 {
		interval = 30
	}

	candidates, err := s.resolveStaff(ctx, organizationID, query)
	if err != nil {
		return nil, err
	}

	toEnd := timeslot.StartOfLocalDay(toStart.AddDate(0, 0, 1), loc)
	dayBusy, err := s.loadBusyIndex(ctx, organizationID, fromStart, toEnd, loc)
	if err != nil {
		return nil, err
	}

	var slots []AvailableSlot
	for _, staff := range candidates {
		staffBusy, err := s.loadTimeOffSpans(ctx, organizationID, staff.ID, fromStart, toEnd, loc)
		if err != nil {
			return nil, err
		}

		for cursor := fromStart; !cursor.After(toStart); cursor = timeslot.StartOfLocalDay(cursor.AddDate(0, 0, 1), loc) {
			date := timeslot.FormatLocalDate(cursor, loc)
			open, err := workingWindow(org, staff, cursor, loc)
			if err != nil {
				return nil, err
			}
			if open == nil {
				continue
			}

			busy := append([]busySpan(nil), dayBusy.forStaff(staff.ID, date)...)
			busy = append(busy, staffBusy[date]...)
			if query.RoomID != "" {
				busy = append(busy, dayBusy.forRoom(query.RoomID, date)...)
			}

			for _, free := range subtractAll([]span{*open}, busy) {
				for start := gridAlign(open.start, free.start, interval); start+duration <= free.end; start += interval {
					slots = append(slots, AvailableSlot{
						StaffID:   staff.ID,
						RoomID:    query.RoomID,
						Date:      date,
						StartTime: timeslot.FormatTimeOfDay(start),
						EndTime:   timeslot.FormatTimeOfDay(start + duration),
					})
				}
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.StaffID < b.StaffID
	})

	s.cache.Store(key, slots)
	logger.DebugContext(ctx, "availability resolved", "days", query.DateFrom+".."+query.DateTo, "slots", len(slots))
	return slots, nil
}

// GetStaffDayAvailability returns the free/busy breakdown for one staff
// member on one day. A nil result means the staff member does not exist or
// is inactive.
func (s *AvailabilityService) GetStaffDayAvailability(ctx context.Context, organizationID, staffID, date string) (*StaffDayAvailability, error) {
	org, loc, err := s.loadOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	staff, err := s.staff.GetStaff(ctx, organizationID, staffID)
	if err != nil {
		if mapped := mapRepoError(err); !errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, nil
	}
	if staff.Status != "active" {
		return nil, nil
	}

	dayStart, err := timeslot.ParseLocalDateStart(date, loc)
	if err != nil {
		vErr := &ValidationError{}
		vErr.add("date", "must be a YYYY-MM-DD date")
		return nil, vErr
	}
	dayEnd := timeslot.StartOfLocalDay(dayStart.AddDate(0, 0, 1), loc)

	open, err := workingWindow(org, staff, dayStart, loc)
	if err != nil {
		return nil, err
	}

	result := &StaffDayAvailability{StaffID: staffID, Date: date}
	if open == nil {
		result.Windows = []TimeWindow{{StartTime: "00:00", EndTime: "24:00", Busy: true, Reason: "outside_hours"}}
		return result, nil
	}

	dayBusy, err := s.loadBusyIndex(ctx, organizationID, dayStart, dayEnd, loc)
	if err != nil {
		return nil, err
	}
	timeOffSpans, err := s.loadTimeOffSpans(ctx, organizationID, staffID, dayStart, dayEnd, loc)
	if err != nil {
		return nil, err
	}

	busy := append([]busySpan(nil), dayBusy.forStaff(staffID, date)...)
	busy = append(busy, timeOffSpans[date]...)
	result.Windows = composeDayWindows(*open, busy)
	return result, nil
}

// IsSlotAvailable is the point check used while creating or editing a single
// session. excludeSessionID exempts the session being edited from its own
// conflict.
func (s *AvailabilityService) IsSlotAvailable(ctx context.Context, organizationID, staffID, date, startTime, endTime, excludeSessionID string) (SlotCheckResult, error) {
	org, loc, err := s.loadOrganization(ctx, organizationID)
	if err != nil {
		return SlotCheckResult{}, err
	}

	staff, err := s.staff.GetStaff(ctx, organizationID, staffID)
	if err != nil {
		return SlotCheckResult{}, mapRepoError(err)
	}

	vErr := &ValidationError{}
	start, err := timeslot.ParseTimeOfDay(startTime)
	if err != nil {
		vErr.add("start_time", "must be an HH:mm time")
	}
	end, err := timeslot.ParseTimeOfDay(endTime)
	if err != nil {
		vErr.add("end_time", "must be an HH:mm time")
	}
	dayStart, err := timeslot.ParseLocalDateStart(date, loc)
	if err != nil {
		vErr.add("date", "must be a YYYY-MM-DD date")
	}
	if !vErr.HasErrors() && end <= start {
		vErr.add("time", "start must be before end")
	}
	if vErr.HasErrors() {
		return SlotCheckResult{}, vErr
	}
	dayEnd := timeslot.StartOfLocalDay(dayStart.AddDate(0, 0, 1), loc)

	dayBusy, err := s.loadBusyIndex(ctx, organizationID, dayStart, dayEnd, loc)
	if err != nil {
		return SlotCheckResult{}, err
	}
	timeOffSpans, err := s.loadTimeOffSpans(ctx, organizationID, staffID, dayStart, dayEnd, loc)
	if err != nil {
		return SlotCheckResult{}, err
	}

	candidate := span{start: start, end: end}
	busy := append([]busySpan(nil), dayBusy.forStaff(staffID, date)...)
	busy = append(busy, timeOffSpans[date]...)
	for _, b := range busy {
		if b.conflict == excludeSessionID && excludeSessionID != "" {
			continue
		}
		if candidate.start < b.end && candidate.end > b.start {
			return SlotCheckResult{Available: false, Conflict: b.conflict, Reason: b.reason}, nil
		}
	}

	open, err := workingWindow(org, staff, dayStart, loc)
	if err != nil {
		return SlotCheckResult{}, err
	}
	if open == nil || candidate.start < open.start || candidate.end > open.end {
		return SlotCheckResult{Available: false, Reason: "outside_hours"}, nil
	}

	return SlotCheckResult{Available: true}, nil
}

func (s *AvailabilityService) loadOrganization(ctx context.Context, organizationID string) (persistence.Organization, *time.Location, error) {
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

func (s *AvailabilityService) resolveStaff(ctx context.Context, organizationID string, query AvailabilityQuery) ([]persistence.Staff, error) {
	if query.StaffID != "" {
		staff, err := s.staff.GetStaff(ctx, organizationID, query.StaffID)
		if err != nil {
			return nil, mapRepoError(err)
		}
		if staff.Status != "active" {
			return nil, nil
		}
		return []persistence.Staff{staff}, nil
	}

	all, err := s.staff.ListStaff(ctx, organizationID, true)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if query.PatientID == "" {
		return all, nil
	}

	// A patient filter narrows candidates to staff who can actually serve
	// them: required certifications held and preferred gender matched.
	patient, err := s.patients.GetPatient(ctx, organizationID, query.PatientID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	var out []persistence.Staff
	for _, staff := range all {
		if staffServesPatient(staff, patient) {
			out = append(out, staff)
		}
	}
	return out, nil
}

func staffServesPatient(staff persistence.Staff, patient persistence.Patient) bool {
	if patient.PreferredStaffGender != "" && staff.Gender != patient.PreferredStaffGender {
		return false
	}
	held := make(map[string]bool, len(staff.Certifications))
	for _, cert := range staff.Certifications {
		held[cert] = true
	}
	for _, cert := range patient.RequiredCertifications {
		if !held[cert] {
			return false
		}
	}
	return true
}

// busyIndex groups the range's sessions and holds by resource and local date.
type busyIndex struct {
	staffSpans map[string]map[string][]busySpan
	roomSpans  map[string]map[string][]busySpan
}

func (b busyIndex) forStaff(staffID, date string) []busySpan {
	return b.staffSpans[staffID][date]
}

func (b busyIndex) forRoom(roomID, date string) []busySpan {
	return b.roomSpans[roomID][date]
}

func (s *AvailabilityService) loadBusyIndex(ctx context.Context, organizationID string, from, to time.Time, loc *time.Location) (busyIndex, error) {
	index := busyIndex{
		staffSpans: make(map[string]map[string][]busySpan),
		roomSpans:  make(map[string]map[string][]busySpan),
	}

	sessions, err := s.sessions.ListSessions(ctx, organizationID, persistence.SessionFilter{
		DateFrom:        &from,
		DateTo:          &to,
		ExcludeTerminal: true,
	})
	if err != nil {
		return index, mapRepoError(err)
	}
	for _, session := range sessions {
		sp, err := spanFromTimes(session.StartTime, session.EndTime)
		if err != nil {
			return index, fmt.Errorf("session %s: %w", session.ID, err)
		}
		date := timeslot.FormatLocalDate(session.Date, loc)
		entry := busySpan{span: sp, reason: "session", conflict: session.ID}
		addIndexed(index.staffSpans, session.StaffID, date, entry)
		if session.RoomID != nil {
			addIndexed(index.roomSpans, *session.RoomID, date, entry)
		}
	}

	holds, err := s.holds.ListActiveHolds(ctx, organizationID, &from, &to, s.now())
	if err != nil {
		return index, mapRepoError(err)
	}
	for _, hold := range holds {
		sp, err := spanFromTimes(hold.StartTime, hold.EndTime)
		if err != nil {
			return index, fmt.Errorf("hold %s: %w", hold.ID, err)
		}
		date := timeslot.FormatLocalDate(hold.Date, loc)
		entry := busySpan{span: sp, reason: "hold", conflict: hold.ID}
		if hold.StaffID != nil {
			addIndexed(index.staffSpans, *hold.StaffID, date, entry)
		}
		if hold.RoomID != nil {
			addIndexed(index.roomSpans, *hold.RoomID, date, entry)
		}
	}

	return index, nil
}

func addIndexed(index map[string]map[string][]busySpan, key, date string, entry busySpan) {
	if index[key] == nil {
		index[key] = make(map[string][]busySpan)
	}
	index[key][date] = append(index[key][date], entry)
}

func (s *AvailabilityService) loadTimeOffSpans(ctx context.Context, organizationID, staffID string, from, to time.Time, loc *time.Location) (map[string][]busySpan, error) {
	records, err := s.timeOff.ListTimeOff(ctx, organizationID, staffID, from, to)
	if err != nil {
		return nil, mapRepoError(err)
	}

	out := make(map[string][]busySpan)
	for _, record := range records {
		if record.Status != "approved" {
			continue
		}
		sp := span{start: 0, end: timeslot.MinutesPerDay}
		if record.StartTime != "" && record.EndTime != "" {
			sp, err = spanFromTimes(record.StartTime, record.EndTime)
			if err != nil {
				return nil, fmt.Errorf("time off %s: %w", record.ID, err)
			}
		}
		date := timeslot.FormatLocalDate(record.Date, loc)
		out[date] = append(out[date], busySpan{span: sp, reason: "time_off", conflict: record.ID})
	}
	return out, nil
}

// workingWindow intersects the organization's business hours with the staff
// member's own working hours for the day. A staff member with no recorded
// working hours follows the organization's hours. nil means closed.
func workingWindow(org persistence.Organization, staff persistence.Staff, day time.Time, loc *time.Location) (*span, error) {
	dayName := timeslot.WeekdayName(day.In(loc).Weekday())

	orgDay, ok := org.BusinessHours[dayName]
	if !ok || !orgDay.Open {
		return nil, nil
	}
	open, err := spanFromTimes(orgDay.Start, orgDay.End)
	if err != nil {
		return nil, fmt.Errorf("business hours for %s: %w", dayName, err)
	}

	if len(staff.WorkingHours) > 0 {
		staffDay, ok := staff.WorkingHours[dayName]
		if !ok || !staffDay.Open {
			return nil, nil
		}
		staffSpan, err := spanFromTimes(staffDay.Start, staffDay.End)
		if err != nil {
			return nil, fmt.Errorf("working hours for %s: %w", dayName, err)
		}
		if staffSpan.start > open.start {
			open.start = staffSpan.start
		}
		if staffSpan.end < open.end {
			open.end = staffSpan.end
		}
		if open.end <= open.start {
			return nil, nil
		}
	}
	return &open, nil
}

func spanFromTimes(startTime, endTime string) (span, error) {
	start, err := timeslot.ParseTimeOfDay(startTime)
	if err != nil {
		return span{}, err
	}
	end, err := timeslot.ParseTimeOfDay(endTime)
	if err != nil {
		return span{}, err
	}
	if end <= start {
		return span{}, fmt.Errorf("%q-%q is not a valid interval", startTime, endTime)
	}
	return span{start: start, end: end}, nil
}

// subtractAll removes every busy interval from the open intervals.
func subtractAll(open []span, busy []busySpan) []span {
	out := open
	for _, b := range busy {
		var next []span
		for _, o := range out {
			if b.end <= o.start || b.start >= o.end {
				next = append(next, o)
				continue
			}
			if b.start > o.start {
				next = append(next, span{start: o.start, end: b.start})
			}
			if b.end < o.end {
				next = append(next, span{start: b.end, end: o.end})
			}
		}
		out = next
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// gridAlign rounds a free-span start up to the slot grid anchored at the
// working window's opening time.
func gridAlign(openStart, spanStart, interval int) int {
	offset := spanStart - openStart
	if offset <= 0 {
		return openStart
	}
	if rem := offset % interval; rem != 0 {
		return spanStart + interval - rem
	}
	return spanStart
}

// composeDayWindows renders a full-day breakdown: outside-hours edges, then
// alternating free and busy stretches within the working window.
func composeDayWindows(open span, busy []busySpan) []TimeWindow {
	var windows []TimeWindow
	if open.start > 0 {
		windows = append(windows, TimeWindow{
			StartTime: "00:00",
			EndTime:   timeslot.FormatTimeOfDay(open.start),
			Busy:      true,
			Reason:    "outside_hours",
		})
	}

	// Clip busy spans to the open window and order them.
	var clipped []busySpan
	for _, b := range busy {
		if b.end <= open.start || b.start >= open.end {
			continue
		}
		if b.start < open.start {
			b.start = open.start
		}
		if b.end > open.end {
			b.end = open.end
		}
		clipped = append(clipped, b)
	}
	sort.Slice(clipped, func(i, j int) bool { return clipped[i].start < clipped[j].start })

	cursor := open.start
	for _, b := range clipped {
		if b.start > cursor {
			windows = append(windows, TimeWindow{
				StartTime: timeslot.FormatTimeOfDay(cursor),
				EndTime:   timeslot.FormatTimeOfDay(b.start),
			})
		}
		if b.end > cursor {
			start := b.start
			if start < cursor {
				start = cursor
			}
			windows = append(windows, TimeWindow{
				StartTime: timeslot.FormatTimeOfDay(start),
				EndTime:   timeslot.FormatTimeOfDay(b.end),
				Busy:      true,
				Reason:    b.reason,
			})
			cursor = b.end
		}
	}
	if cursor < open.end {
		windows = append(windows, TimeWindow{
			StartTime: timeslot.FormatTimeOfDay(cursor),
			EndTime:   timeslot.FormatTimeOfDay(open.end),
		})
	}

	if open.end < timeslot.MinutesPerDay {
		windows = append(windows, TimeWindow{
			StartTime: timeslot.FormatTimeOfDay(open.end),
			EndTime:   "24:00",
			Busy:      true,
			Reason:    "outside_hours",
		})
	}
	return windows
}

func parseDateRange(dateFrom, dateTo string, loc *time.Location) (time.Time, time.Time, *ValidationError) {
	vErr := &ValidationError{}
	fromStart, err := timeslot.ParseLocalDateStart(dateFrom, loc)
	if err != nil {
		vErr.add("date_from", "must be a YYYY-MM-DD date")
	}
	toStart, err := timeslot.ParseLocalDateStart(dateTo, loc)
	if err != nil {
		vErr.add("date_to", "must be a YYYY-MM-DD date")
	}
	if vErr.HasErrors() {
		return time.Time{}, time.Time{}, vErr
	}
	if toStart.Before(fromStart) {
		vErr.add("date_to", "must not be before date_from")
		return time.Time{}, time.Time{}, vErr
	}
	if toStart.Sub(fromStart) > maxAvailabilityRangeDays*24*time.Hour+time.Hour {
		vErr.add("date_to", fmt.Sprintf("range must not exceed %d days", maxAvailabilityRangeDays))
		return time.Time{}, time.Time{}, vErr
	}
	return fromStart, toStart, vErr
}
