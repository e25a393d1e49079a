package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite.
type SessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const sessionColumns = `id, organization_id, schedule_id, staff_id, patient_id, room_id,
	date, start_time, end_time, status, notes, booked_via,
	confirmed_at, checked_in_at, completed_at, cancelled_at, cancellation_reason,
	created_at, updated_at`

// CreateSessionIfFree re-checks the slot and inserts the session inside one
// transaction. When a committed session or an active hold already overlaps
// the claimed staff, patient, or room, it returns a *SlotConflictError and
// writes nothing.
func (r *SessionRepository) CreateSessionIfFree(ctx context.Context, session persistence.Session, now time.Time) (persistence.Session, error) {
	if err := validateSessionRow(session); err != nil {
		return persistence.Session{}, err
	}

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		conflict, err := findSlotConflict(tx, r.helper, slotQuery{
			organizationID: session.OrganizationID,
			date:           session.Date,
			startTime:      session.StartTime,
			endTime:        session.EndTime,
			staffID:        &session.StaffID,
			patientID:      session.PatientID,
			roomID:         session.RoomID,
		}, now)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if conflict != nil {
			return conflict
		}
		return r.insertSession(tx, session)
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

// CreateSession inserts without the slot re-check. Draft generation and
// copies use it; interactive booking paths must go through
// CreateSessionIfFree.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if err := validateSessionRow(session); err != nil {
		return persistence.Session{}, err
	}
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return r.insertSession(tx, session)
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

func (r *SessionRepository) insertSession(tx *sql.Tx, session persistence.Session) error {
	_, err := r.helper.ExecTx(tx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.OrganizationID, session.ScheduleID,
		session.StaffID, session.PatientID, nullableString(session.RoomID),
		formatTime(session.Date), session.StartTime, session.EndTime,
		session.Status, session.Notes, session.BookedVia,
		formatNullableTime(session.ConfirmedAt), formatNullableTime(session.CheckedInAt),
		formatNullableTime(session.CompletedAt), formatNullableTime(session.CancelledAt),
		session.CancellationReason,
		formatTime(session.CreatedAt), formatTime(session.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetSession retrieves a session scoped to an organization.
func (r *SessionRepository) GetSession(ctx context.Context, organizationID, id string) (persistence.Session, error) {
	if id == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = ? AND organization_id = ?",
		id, organizationID)
	session, err := scanSession(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Session{}, persistence.ErrNotFound
		}
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return session, nil
}

// UpdateSession persists status, audit timestamps, notes, and cancellation
// fields. Identity and slot fields are immutable once written; moving a
// session means cancelling it and booking a new one.
func (r *SessionRepository) UpdateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.ID == "" || session.OrganizationID == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	result, err := r.helper.Exec(ctx, `
		UPDATE sessions SET status = ?, notes = ?,
			confirmed_at = ?, checked_in_at = ?, completed_at = ?, cancelled_at = ?,
			cancellation_reason = ?, updated_at = ?
		WHERE id = ? AND organization_id = ?`,
		session.Status, session.Notes,
		formatNullableTime(session.ConfirmedAt), formatNullableTime(session.CheckedInAt),
		formatNullableTime(session.CompletedAt), formatNullableTime(session.CancelledAt),
		session.CancellationReason, formatTime(session.UpdatedAt),
		session.ID, session.OrganizationID,
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.Session{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return session, nil
}

// ListSessions lists sessions matching the filter, ordered by date then
// start time.
func (r *SessionRepository) ListSessions(ctx context.Context, organizationID string, filter persistence.SessionFilter) ([]persistence.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE organization_id = ?"
	args := []interface{}{organizationID}

	if filter.ScheduleID != "" {
		query += " AND schedule_id = ?"
		args = append(args, filter.ScheduleID)
	}
	if filter.StaffID != "" {
		query += " AND staff_id = ?"
		args = append(args, filter.StaffID)
	}
	if filter.PatientID != "" {
		query += " AND patient_id = ?"
		args = append(args, filter.PatientID)
	}
	if filter.RoomID != "" {
		query += " AND room_id = ?"
		args = append(args, filter.RoomID)
	}
	if filter.DateFrom != nil {
		query += " AND date >= ?"
		args = append(args, formatTime(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		query += " AND date < ?"
		args = append(args, formatTime(*filter.DateTo))
	}
	if filter.ExcludeTerminal {
		query += " AND status NOT IN " + terminalStatusSet
	}
	query += " ORDER BY date ASC, start_time ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var out []persistence.Session
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return out, nil
}

// DeleteSessionsForSchedule removes every session of a draft being discarded.
func (r *SessionRepository) DeleteSessionsForSchedule(ctx context.Context, organizationID, scheduleID string) error {
	_, err := r.helper.Exec(ctx,
		"DELETE FROM sessions WHERE organization_id = ? AND schedule_id = ?",
		organizationID, scheduleID)
	return r.mapper.MapError(err)
}

func validateSessionRow(session persistence.Session) error {
	if session.ID == "" || session.OrganizationID == "" ||
		session.ScheduleID == "" || session.StaffID == "" || session.PatientID == "" {
		return persistence.ErrConstraintViolation
	}
	if session.EndTime <= session.StartTime {
		return persistence.ErrConstraintViolation
	}
	return nil
}

func scanSession(scan func(...interface{}) error) (persistence.Session, error) {
	var session persistence.Session
	var roomID sql.NullString
	var date, createdAt, updatedAt string
	var confirmedAt, checkedInAt, completedAt, cancelledAt sql.NullString

	err := scan(&session.ID, &session.OrganizationID, &session.ScheduleID,
		&session.StaffID, &session.PatientID, &roomID,
		&date, &session.StartTime, &session.EndTime,
		&session.Status, &session.Notes, &session.BookedVia,
		&confirmedAt, &checkedInAt, &completedAt, &cancelledAt,
		&session.CancellationReason, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Session{}, err
	}

	session.RoomID = stringPtr(roomID)
	if session.Date, err = parseTime(date, "date"); err != nil {
		return persistence.Session{}, err
	}
	if session.ConfirmedAt, err = parseNullableTime(confirmedAt, "confirmed_at"); err != nil {
		return persistence.Session{}, err
	}
	if session.CheckedInAt, err = parseNullableTime(checkedInAt, "checked_in_at"); err != nil {
		return persistence.Session{}, err
	}
	if session.CompletedAt, err = parseNullableTime(completedAt, "completed_at"); err != nil {
		return persistence.Session{}, err
	}
	if session.CancelledAt, err = parseNullableTime(cancelledAt, "cancelled_at"); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return persistence.Session{}, err
	}
	if session.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}
