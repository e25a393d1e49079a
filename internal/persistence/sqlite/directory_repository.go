package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
)

// DirectoryRepository implements the read-mostly staff/patient/room/rule/
// time-off collaborator stores the scheduling core consults. One type covers
// all five because the core only needs create-and-read access to them.
type DirectoryRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewDirectoryRepository creates a new SQLite directory repository.
func NewDirectoryRepository(pool *ConnectionPool) *DirectoryRepository {
	return &DirectoryRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateStaff inserts a new staff member.
func (r *DirectoryRepository) CreateStaff(ctx context.Context, staff persistence.Staff) error {
	if staff.ID == "" || staff.OrganizationID == "" {
		return persistence.ErrConstraintViolation
	}
	certs, err := encodeStringList(staff.Certifications, "certifications")
	if err != nil {
		return err
	}
	hours, err := encodeWeeklyHours(staff.WorkingHours, "working_hours")
	if err != nil {
		return err
	}
	status := staff.Status
	if status == "" {
		status = "active"
	}

	_, err = r.helper.Exec(ctx, `
		INSERT INTO staff (id, organization_id, name, gender, certifications, working_hours, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		staff.ID, staff.OrganizationID, staff.Name, staff.Gender, certs, hours, status,
		formatTime(staff.CreatedAt), formatTime(staff.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetStaff retrieves one staff member scoped to an organization. A record
// owned by a different organization reads back as not found.
func (r *DirectoryRepository) GetStaff(ctx context.Context, organizationID, id string) (persistence.Staff, error) {
	row := r.helper.QueryRow(ctx, `
		SELECT id, organization_id, name, gender, certifications, working_hours, status, created_at, updated_at
		FROM staff WHERE id = ? AND organization_id = ?`, id, organizationID)
	staff, err := scanStaff(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Staff{}, persistence.ErrNotFound
		}
		return persistence.Staff{}, r.mapper.MapError(err)
	}
	return staff, nil
}

// ListStaff lists an organization's staff, optionally only active members.
func (r *DirectoryRepository) ListStaff(ctx context.Context, organizationID string, activeOnly bool) ([]persistence.Staff, error) {
	query := `
		SELECT id, organization_id, name, gender, certifications, working_hours, status, created_at, updated_at
		FROM staff WHERE organization_id = ?`
	args := []interface{}{organizationID}
	if activeOnly {
		query += " AND status = 'active'"
	}
	query += " ORDER BY name ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var out []persistence.Staff
	for rows.Next() {
		staff, err := scanStaff(rows.Scan)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		out = append(out, staff)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return out, nil
}

func scanStaff(scan func(...interface{}) error) (persistence.Staff, error) {
	var staff persistence.Staff
	var certs, hours, createdAt, updatedAt string
	err := scan(&staff.ID, &staff.OrganizationID, &staff.Name, &staff.Gender,
		&certs, &hours, &staff.Status, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Staff{}, err
	}
	if err := decodeJSON(certs, &staff.Certifications, "certifications"); err != nil {
		return persistence.Staff{}, err
	}
	staff.WorkingHours = persistence.WeeklyHours{}
	if err := decodeJSON(hours, &staff.WorkingHours, "working_hours"); err != nil {
		return persistence.Staff{}, err
	}
	if staff.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return persistence.Staff{}, err
	}
	if staff.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return persistence.Staff{}, err
	}
	return staff, nil
}

// CreatePatient inserts a new patient.
func (r *DirectoryRepository) CreatePatient(ctx context.Context, patient persistence.Patient) error {
	if patient.ID == "" || patient.OrganizationID == "" {
		return persistence.ErrConstraintViolation
	}
	certs, err := encodeStringList(patient.RequiredCertifications, "required_certifications")
	if err != nil {
		return err
	}
	caps, err := encodeStringList(patient.RequiredRoomCapabilities, "required_room_capabilities")
	if err != nil {
		return err
	}
	specs, err := encodeJSON(patient.SessionSpecs, "session_specs")
	if err != nil {
		return err
	}
	status := patient.Status
	if status == "" {
		status = "active"
	}

	_, err = r.helper.Exec(ctx, `
		INSERT INTO patients (id, organization_id, name, gender, preferred_staff_gender,
			required_certifications, required_room_capabilities, preferred_room_id,
			sessions_per_week, session_specs, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		patient.ID, patient.OrganizationID, patient.Name, patient.Gender, patient.PreferredStaffGender,
		certs, caps, nullableString(patient.PreferredRoomID),
		patient.SessionsPerWeek, specs, status,
		formatTime(patient.CreatedAt), formatTime(patient.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetPatient retrieves one patient scoped to an organization.
func (r *DirectoryRepository) GetPatient(ctx context.Context, organizationID, id string) (persistence.Patient, error) {
	row := r.helper.QueryRow(ctx, `
		SELECT id, organization_id, name, gender, preferred_staff_gender,
			required_certifications, required_room_capabilities, preferred_room_id,
			sessions_per_week, session_specs, status, created_at, updated_at
		FROM patients WHERE id = ? AND organization_id = ?`, id, organizationID)
	patient, err := scanPatient(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Patient{}, persistence.ErrNotFound
		}
		return persistence.Patient{}, r.mapper.MapError(err)
	}
	return patient, nil
}

// ListPatients lists an organization's patients.
func (r *DirectoryRepository) ListPatients(ctx context.Context, organizationID string, activeOnly bool) ([]persistence.Patient, error) {
	query := `
		SELECT id, organization_id, name, gender, preferred_staff_gender,
			required_certifications, required_room_capabilities, preferred_room_id,
			sessions_per_week, session_specs, status, created_at, updated_at
		FROM patients WHERE organization_id = ?`
	if activeOnly {
		query += " AND status = 'active'"
	}
	query += " ORDER BY name ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, organizationID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var out []persistence.Patient
	for rows.Next() {
		patient, err := scanPatient(rows.Scan)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		out = append(out, patient)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return out, nil
}

func scanPatient(scan func(...interface{}) error) (persistence.Patient, error) {
	var patient persistence.Patient
	var certs, caps, specs, createdAt, updatedAt string
	var preferredRoom sql.NullString
	err := scan(&patient.ID, &patient.OrganizationID, &patient.Name, &patient.Gender,
		&patient.PreferredStaffGender, &certs, &caps, &preferredRoom,
		&patient.SessionsPerWeek, &specs, &patient.Status, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Patient{}, err
	}
	if err := decodeJSON(certs, &patient.RequiredCertifications, "required_certifications"); err != nil {
		return persistence.Patient{}, err
	}
	if err := decodeJSON(caps, &patient.RequiredRoomCapabilities, "required_room_capabilities"); err != nil {
		return persistence.Patient{}, err
	}
	if err := decodeJSON(specs, &patient.SessionSpecs, "session_specs"); err != nil {
		return persistence.Patient{}, err
	}
	patient.PreferredRoomID = stringPtr(preferredRoom)
	if patient.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return persistence.Patient{}, err
	}
	if patient.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return persistence.Patient{}, err
	}
	return patient, nil
}

// CreateRoom inserts a new room.
func (r *DirectoryRepository) CreateRoom(ctx context.Context, room persistence.Room) error {
	if room.ID == "" || room.OrganizationID == "" {
		return persistence.ErrConstraintViolation
	}
	caps, err := encodeStringList(room.Capabilities, "capabilities")
	if err != nil {
		return err
	}
	status := room.Status
	if status == "" {
		status = "active"
	}

	_, err = r.helper.Exec(ctx, `
		INSERT INTO rooms (id, organization_id, name, capabilities, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		room.ID, room.OrganizationID, room.Name, caps, status,
		formatTime(room.CreatedAt), formatTime(room.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetRoom retrieves one room scoped to an organization.
func (r *DirectoryRepository) GetRoom(ctx context.Context, organizationID, id string) (persistence.Room, error) {
	row := r.helper.QueryRow(ctx, `
		SELECT id, organization_id, name, capabilities, status, created_at, updated_at
		FROM rooms WHERE id = ? AND organization_id = ?`, id, organizationID)
	room, err := scanRoom(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Room{}, persistence.ErrNotFound
		}
		return persistence.Room{}, r.mapper.MapError(err)
	}
	return room, nil
}

// ListRooms lists an organization's rooms.
func (r *DirectoryRepository) ListRooms(ctx context.Context, organizationID string) ([]persistence.Room, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, organization_id, name, capabilities, status, created_at, updated_at
		FROM rooms WHERE organization_id = ? ORDER BY name ASC, id ASC`, organizationID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var out []persistence.Room
	for rows.Next() {
		room, err := scanRoom(rows.Scan)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		out = append(out, room)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return out, nil
}

func scanRoom(scan func(...interface{}) error) (persistence.Room, error) {
	var room persistence.Room
	var caps, createdAt, updatedAt string
	err := scan(&room.ID, &room.OrganizationID, &room.Name, &caps, &room.Status, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Room{}, err
	}
	if err := decodeJSON(caps, &room.Capabilities, "capabilities"); err != nil {
		return persistence.Room{}, err
	}
	if room.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return persistence.Room{}, err
	}
	if room.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return persistence.Room{}, err
	}
	return room, nil
}

// CreateRule inserts a new scheduling rule.
func (r *DirectoryRepository) CreateRule(ctx context.Context, rule persistence.Rule) error {
	if rule.ID == "" || rule.OrganizationID == "" {
		return persistence.ErrConstraintViolation
	}
	logic := rule.Logic
	if logic == "" {
		logic = "{}"
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO rules (id, organization_id, category, logic, priority, requires_review, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.OrganizationID, rule.Category, logic, rule.Priority,
		boolToInt(rule.RequiresReview), boolToInt(rule.Active),
		formatTime(rule.CreatedAt), formatTime(rule.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// ListActiveRules lists an organization's active rules ordered by priority.
func (r *DirectoryRepository) ListActiveRules(ctx context.Context, organizationID string) ([]persistence.Rule, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, organization_id, category, logic, priority, requires_review, active, created_at, updated_at
		FROM rules WHERE organization_id = ? AND active = 1
		ORDER BY priority ASC, id ASC`, organizationID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var out []persistence.Rule
	for rows.Next() {
		var rule persistence.Rule
		var requiresReview, active int
		var createdAt, updatedAt string
		err := rows.Scan(&rule.ID, &rule.OrganizationID, &rule.Category, &rule.Logic,
			&rule.Priority, &requiresReview, &active, &createdAt, &updatedAt)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		rule.RequiresReview = requiresReview != 0
		rule.Active = active != 0
		if rule.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
			return nil, err
		}
		if rule.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return out, nil
}

// CreateTimeOff inserts a staff unavailability record.
func (r *DirectoryRepository) CreateTimeOff(ctx context.Context, timeOff persistence.StaffTimeOff) error {
	if timeOff.ID == "" || timeOff.OrganizationID == "" || timeOff.StaffID == "" {
		return persistence.ErrConstraintViolation
	}
	status := timeOff.Status
	if status == "" {
		status = "approved"
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO staff_time_off (id, organization_id, staff_id, date, start_time, end_time, status, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		timeOff.ID, timeOff.OrganizationID, timeOff.StaffID, formatTime(timeOff.Date),
		timeOff.StartTime, timeOff.EndTime, status, timeOff.Reason,
		formatTime(timeOff.CreatedAt), formatTime(timeOff.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// ListTimeOff lists a staff member's unavailability records in [from, to).
func (r *DirectoryRepository) ListTimeOff(ctx context.Context, organizationID, staffID string, from, to time.Time) ([]persistence.StaffTimeOff, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, organization_id, staff_id, date, start_time, end_time, status, reason, created_at, updated_at
		FROM staff_time_off
		WHERE organization_id = ? AND staff_id = ? AND date >= ? AND date < ?
		ORDER BY date ASC, start_time ASC`,
		organizationID, staffID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var out []persistence.StaffTimeOff
	for rows.Next() {
		var timeOff persistence.StaffTimeOff
		var date, createdAt, updatedAt string
		err := rows.Scan(&timeOff.ID, &timeOff.OrganizationID, &timeOff.StaffID, &date,
			&timeOff.StartTime, &timeOff.EndTime, &timeOff.Status, &timeOff.Reason,
			&createdAt, &updatedAt)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		if timeOff.Date, err = parseTime(date, "date"); err != nil {
			return nil, err
		}
		if timeOff.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
			return nil, err
		}
		if timeOff.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
			return nil, err
		}
		out = append(out, timeOff)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return out, nil
}
