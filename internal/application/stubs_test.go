package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
	"github.com/example/practice-scheduler/internal/statemachine"
)

// memStore is an in-memory implementation of every store interface with the
// same conditional-write semantics as the SQLite repositories. Service tests
// use it so they exercise service logic without a database.
type memStore struct {
	mu        sync.Mutex
	orgs      map[string]persistence.Organization
	staff     map[string]persistence.Staff
	patients  map[string]persistence.Patient
	rooms     map[string]persistence.Room
	rules     []persistence.Rule
	timeOff   []persistence.StaffTimeOff
	schedules map[string]persistence.Schedule
	sessions  map[string]persistence.Session
	holds     map[string]persistence.AppointmentHold

	failWith error // when set, every call fails with it
}

func newMemStore() *memStore {
	return &memStore{
		orgs:      make(map[string]persistence.Organization),
		staff:     make(map[string]persistence.Staff),
		patients:  make(map[string]persistence.Patient),
		rooms:     make(map[string]persistence.Room),
		schedules: make(map[string]persistence.Schedule),
		sessions:  make(map[string]persistence.Session),
		holds:     make(map[string]persistence.AppointmentHold),
	}
}

func (m *memStore) GetOrganization(_ context.Context, id string) (persistence.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return persistence.Organization{}, m.failWith
	}
	org, ok := m.orgs[id]
	if !ok {
		return persistence.Organization{}, persistence.ErrNotFound
	}
	return org, nil
}

func (m *memStore) GetStaff(_ context.Context, organizationID, id string) (persistence.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return persistence.Staff{}, m.failWith
	}
	staff, ok := m.staff[id]
	if !ok || staff.OrganizationID != organizationID {
		return persistence.Staff{}, persistence.ErrNotFound
	}
	return staff, nil
}

func (m *memStore) ListStaff(_ context.Context, organizationID string, activeOnly bool) ([]persistence.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []persistence.Staff
	for _, staff := range m.staff {
		if staff.OrganizationID != organizationID {
			continue
		}
		if activeOnly && staff.Status != "active" {
			continue
		}
		out = append(out, staff)
	}
	sortByID(out, func(s persistence.Staff) string { return s.ID })
	return out, nil
}

func (m *memStore) GetPatient(_ context.Context, organizationID, id string) (persistence.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return persistence.Patient{}, m.failWith
	}
	patient, ok := m.patients[id]
	if !ok || patient.OrganizationID != organizationID {
		return persistence.Patient{}, persistence.ErrNotFound
	}
	return patient, nil
}

func (m *memStore) ListPatients(_ context.Context, organizationID string, activeOnly bool) ([]persistence.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []persistence.Patient
	for _, patient := range m.patients {
		if patient.OrganizationID != organizationID {
			continue
		}
		if activeOnly && patient.Status != "active" {
			continue
		}
		out = append(out, patient)
	}
	sortByID(out, func(p persistence.Patient) string { return p.ID })
	return out, nil
}

func (m *memStore) GetRoom(_ context.Context, organizationID, id string) (persistence.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return persistence.Room{}, m.failWith
	}
	room, ok := m.rooms[id]
	if !ok || room.OrganizationID != organizationID {
		return persistence.Room{}, persistence.ErrNotFound
	}
	return room, nil
}

func (m *memStore) ListRooms(_ context.Context, organizationID string) ([]persistence.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []persistence.Room
	for _, room := range m.rooms {
		if room.OrganizationID == organizationID {
			out = append(out, room)
		}
	}
	sortByID(out, func(r persistence.Room) string { return r.ID })
	return out, nil
}

func (m *memStore) ListActiveRules(_ context.Context, organizationID string) ([]persistence.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []persistence.Rule
	for _, rule := range m.rules {
		if rule.OrganizationID == organizationID && rule.Active {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (m *memStore) ListTimeOff(_ context.Context, organizationID, staffID string, from, to time.Time) ([]persistence.StaffTimeOff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []persistence.StaffTimeOff
	for _, record := range m.timeOff {
		if record.OrganizationID != organizationID || record.StaffID != staffID {
			continue
		}
		if record.Date.Before(from) || !record.Date.Before(to) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (m *memStore) CreateSchedule(_ context.Context, schedule persistence.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.schedules[schedule.ID]; ok {
		return persistence.ErrDuplicate
	}
	for _, existing := range m.schedules {
		if existing.OrganizationID == schedule.OrganizationID &&
			existing.WeekStartDate.Equal(schedule.WeekStartDate) &&
			existing.Version == schedule.Version {
			return persistence.ErrDuplicate
		}
	}
	m.schedules[schedule.ID] = schedule
	return nil
}

func (m *memStore) GetSchedule(_ context.Context, organizationID, id string) (persistence.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return persistence.Schedule{}, m.failWith
	}
	schedule, ok := m.schedules[id]
	if !ok || schedule.OrganizationID != organizationID {
		return persistence.Schedule{}, persistence.ErrNotFound
	}
	return schedule, nil
}

func (m *memStore) UpdateScheduleStatus(_ context.Context, organizationID, id, fromStatus, toStatus string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	schedule, ok := m.schedules[id]
	if !ok || schedule.OrganizationID != organizationID {
		return persistence.ErrNotFound
	}
	if schedule.Status != fromStatus {
		return fmt.Errorf("%w: schedule %s is %s, expected %s", persistence.ErrConflict, id, schedule.Status, fromStatus)
	}
	schedule.Status = toStatus
	schedule.UpdatedAt = updatedAt
	m.schedules[id] = schedule
	return nil
}

func (m *memStore) ListSchedules(_ context.Context, organizationID string, filter persistence.ScheduleFilter) ([]persistence.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []persistence.Schedule
	for _, schedule := range m.schedules {
		if schedule.OrganizationID != organizationID {
			continue
		}
		if filter.WeekStartDate != nil && !schedule.WeekStartDate.Equal(*filter.WeekStartDate) {
			continue
		}
		if filter.Status != "" && schedule.Status != filter.Status {
			continue
		}
		out = append(out, schedule)
	}
	sortByID(out, func(s persistence.Schedule) string { return s.ID })
	return out, nil
}

func (m *memStore) MaxVersionForWeek(_ context.Context, organizationID string, weekStartDate time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	max := 0
	for _, schedule := range m.schedules {
		if schedule.OrganizationID == organizationID && schedule.WeekStartDate.Equal(weekStartDate) && schedule.Version > max {
			max = schedule.Version
		}
	}
	return max, nil
}

func (m *memStore) CreateSessionIfFree(_ context.Context, session persistence.Session, now time.Time) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return persistence.Session{}, m.failWith
	}
	if conflict := m.findConflictLocked(session.OrganizationID, session.Date, session.StartTime, session.EndTime,
		session.StaffID, session.PatientID, session.RoomID, "", "", now); conflict != nil {
		return persistence.Session{}, conflict
	}
	m.sessions[session.ID] = session
	return session, nil
}

func (m *memStore) CreateSession(_ context.Context, session persistence.Session) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return persistence.Session{}, m.failWith
	}
	if _, ok := m.sessions[session.ID]; ok {
		return persistence.Session{}, persistence.ErrDuplicate
	}
	m.sessions[session.ID] = session
	return session, nil
}

func (m *memStore) GetSession(_ context.Context, organizationID, id string) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return persistence.Session{}, m.failWith
	}
	session, ok := m.sessions[id]
	if !ok || session.OrganizationID != organizationID {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return session, nil
}

func (m *memStore) UpdateSession(_ context.Context, session persistence.Session) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return persistence.Session{}, m.failWith
	}
	existing, ok := m.sessions[session.ID]
	if !ok || existing.OrganizationID != session.OrganizationID {
		return persistence.Session{}, persistence.ErrNotFound
	}
	m.sessions[session.ID] = session
	return session, nil
}

func (m *memStore) ListSessions(_ context.Context, organizationID string, filter persistence.SessionFilter) ([]persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []persistence.Session
	for _, session := range m.sessions {
		if session.OrganizationID != organizationID {
			continue
		}
		if filter.ScheduleID != "" && session.ScheduleID != filter.ScheduleID {
			continue
		}
		if filter.StaffID != "" && session.StaffID != filter.StaffID {
			continue
		}
		if filter.PatientID != "" && session.PatientID != filter.PatientID {
			continue
		}
		if filter.RoomID != "" && (session.RoomID == nil || *session.RoomID != filter.RoomID) {
			continue
		}
		if filter.DateFrom != nil && session.Date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && !session.Date.Before(*filter.DateTo) {
			continue
		}
		if filter.ExcludeTerminal && statemachine.IsTerminal(statemachine.Status(session.Status)) {
			continue
		}
		out = append(out, session)
	}
	sortByID(out, func(s persistence.Session) string { return s.ID })
	return out, nil
}

func (m *memStore) DeleteSessionsForSchedule(_ context.Context, organizationID, scheduleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for id, session := range m.sessions {
		if session.OrganizationID == organizationID && session.ScheduleID == scheduleID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memStore) CreateHoldIfFree(_ context.Context, hold persistence.AppointmentHold, now time.Time) (persistence.AppointmentHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return persistence.AppointmentHold{}, m.failWith
	}
	staffID := ""
	if hold.StaffID != nil {
		staffID = *hold.StaffID
	}
	if conflict := m.findConflictLocked(hold.OrganizationID, hold.Date, hold.StartTime, hold.EndTime,
		staffID, "", hold.RoomID, "", "", now); conflict != nil {
		return persistence.AppointmentHold{}, conflict
	}
	m.holds[hold.ID] = hold
	return hold, nil
}

func (m *memStore) GetHold(_ context.Context, organizationID, id string) (persistence.AppointmentHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return persistence.AppointmentHold{}, m.failWith
	}
	hold, ok := m.holds[id]
	if !ok || hold.OrganizationID != organizationID {
		return persistence.AppointmentHold{}, persistence.ErrNotFound
	}
	return hold, nil
}

func (m *memStore) ExtendHold(_ context.Context, organizationID, id string, expiresAt, now time.Time) (persistence.AppointmentHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return persistence.AppointmentHold{}, m.failWith
	}
	hold, ok := m.holds[id]
	if !ok || hold.OrganizationID != organizationID || !persistence.HoldIsActive(hold, now) {
		return persistence.AppointmentHold{}, persistence.ErrNotFound
	}
	hold.ExpiresAt = expiresAt
	hold.UpdatedAt = now
	m.holds[id] = hold
	return hold, nil
}

func (m *memStore) ReleaseHold(_ context.Context, organizationID, id string, releasedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	hold, ok := m.holds[id]
	if !ok || hold.OrganizationID != organizationID || !persistence.HoldIsActive(hold, releasedAt) {
		return false, nil
	}
	hold.ReleasedAt = &releasedAt
	m.holds[id] = hold
	return true, nil
}

func (m *memStore) ListActiveHolds(_ context.Context, organizationID string, from, to *time.Time, now time.Time) ([]persistence.AppointmentHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []persistence.AppointmentHold
	for _, hold := range m.holds {
		if hold.OrganizationID != organizationID || !persistence.HoldIsActive(hold, now) {
			continue
		}
		if from != nil && hold.Date.Before(*from) {
			continue
		}
		if to != nil && !hold.Date.Before(*to) {
			continue
		}
		out = append(out, hold)
	}
	sortByID(out, func(h persistence.AppointmentHold) string { return h.ID })
	return out, nil
}

func (m *memStore) ConsumeHoldAndCreateSession(_ context.Context, organizationID, holdID string, session persistence.Session, now time.Time) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return persistence.Session{}, m.failWith
	}
	hold, ok := m.holds[holdID]
	if !ok || hold.OrganizationID != organizationID || !persistence.HoldIsActive(hold, now) {
		return persistence.Session{}, persistence.ErrNotFound
	}
	if conflict := m.findConflictLocked(session.OrganizationID, session.Date, session.StartTime, session.EndTime,
		session.StaffID, session.PatientID, session.RoomID, holdID, "", now); conflict != nil {
		return persistence.Session{}, conflict
	}
	hold.ConsumedAt = &now
	hold.SessionID = &session.ID
	m.holds[holdID] = hold
	m.sessions[session.ID] = session
	return session, nil
}

func (m *memStore) DeleteExpiredHolds(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	deleted := 0
	for id, hold := range m.holds {
		if hold.ConsumedAt == nil && !hold.ExpiresAt.After(now) {
			delete(m.holds, id)
			deleted++
		}
	}
	return deleted, nil
}

// findConflictLocked mirrors the repository's transactional slot check:
// non-terminal sessions and active holds overlapping the requested interval
// on shared resources block the write.
func (m *memStore) findConflictLocked(organizationID string, date time.Time, startTime, endTime, staffID, patientID string, roomID *string, ignoreHoldID, ignoreSessionID string, now time.Time) error {
	overlaps := func(otherStart, otherEnd string) bool {
		return startTime < otherEnd && endTime > otherStart
	}
	for _, other := range m.sessions {
		if other.OrganizationID != organizationID || !other.Date.Equal(date) || other.ID == ignoreSessionID {
			continue
		}
		if statemachine.IsTerminal(statemachine.Status(other.Status)) {
			continue
		}
		if !overlaps(other.StartTime, other.EndTime) {
			continue
		}
		switch {
		case staffID != "" && other.StaffID == staffID:
			return &persistence.SlotConflictError{Resource: "staff", SessionID: other.ID}
		case patientID != "" && other.PatientID == patientID:
			return &persistence.SlotConflictError{Resource: "patient", SessionID: other.ID}
		case roomID != nil && other.RoomID != nil && *other.RoomID == *roomID:
			return &persistence.SlotConflictError{Resource: "room", SessionID: other.ID}
		}
	}
	for _, other := range m.holds {
		if other.OrganizationID != organizationID || !other.Date.Equal(date) || other.ID == ignoreHoldID {
			continue
		}
		if !persistence.HoldIsActive(other, now) || !overlaps(other.StartTime, other.EndTime) {
			continue
		}
		switch {
		case staffID != "" && other.StaffID != nil && *other.StaffID == staffID:
			return &persistence.SlotConflictError{Resource: "staff", HoldID: other.ID}
		case roomID != nil && other.RoomID != nil && *other.RoomID == *roomID:
			return &persistence.SlotConflictError{Resource: "room", HoldID: other.ID}
		}
	}
	return nil
}

func sortByID[T any](items []T, id func(T) string) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && id(items[j]) < id(items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// memAuditSink records emitted audit entries for assertions.
type memAuditSink struct {
	mu      sync.Mutex
	records []SessionAuditRecord
}

func (s *memAuditSink) RecordSessionAudit(_ context.Context, record SessionAuditRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

func (s *memAuditSink) Records() []SessionAuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionAuditRecord, len(s.records))
	copy(out, s.records)
	return out
}

func strPtr(v string) *string { return &v }
