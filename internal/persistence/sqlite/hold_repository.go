package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
)

// HoldRepository implements persistence.HoldRepository using SQLite. The
// create and consume paths are the two atomic check-then-write boundaries of
// the booking protocol: both re-verify the no-overlap invariant inside the
// transaction that performs the write, so of N racing claims on the same
// slot exactly one commits.
type HoldRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewHoldRepository creates a new SQLite hold repository.
func NewHoldRepository(pool *ConnectionPool) *HoldRepository {
	return &HoldRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const holdColumns = `id, organization_id, staff_id, room_id, date, start_time, end_time,
	created_by_user_id, expires_at, released_at, consumed_at, session_id, created_at, updated_at`

// CreateHoldIfFree re-checks the slot and inserts the hold inside one
// transaction. Expired, released, and consumed holds do not block; an
// overlapping active hold or committed session on a shared resource returns
// a *SlotConflictError.
func (r *HoldRepository) CreateHoldIfFree(ctx context.Context, hold persistence.AppointmentHold, now time.Time) (persistence.AppointmentHold, error) {
	if hold.ID == "" || hold.OrganizationID == "" {
		return persistence.AppointmentHold{}, persistence.ErrConstraintViolation
	}
	if hold.StaffID == nil && hold.RoomID == nil {
		return persistence.AppointmentHold{}, persistence.ErrConstraintViolation
	}
	if hold.EndTime <= hold.StartTime {
		return persistence.AppointmentHold{}, persistence.ErrConstraintViolation
	}

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		conflict, err := findSlotConflict(tx, r.helper, slotQuery{
			organizationID: hold.OrganizationID,
			date:           hold.Date,
			startTime:      hold.StartTime,
			endTime:        hold.EndTime,
			staffID:        hold.StaffID,
			roomID:         hold.RoomID,
		}, now)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if conflict != nil {
			return conflict
		}

		_, err = r.helper.ExecTx(tx, `
			INSERT INTO appointment_holds (`+holdColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			hold.ID, hold.OrganizationID,
			nullableString(hold.StaffID), nullableString(hold.RoomID),
			formatTime(hold.Date), hold.StartTime, hold.EndTime,
			hold.CreatedByUserID, formatTime(hold.ExpiresAt),
			formatNullableTime(hold.ReleasedAt), formatNullableTime(hold.ConsumedAt),
			nullableString(hold.SessionID),
			formatTime(hold.CreatedAt), formatTime(hold.UpdatedAt),
		)
		return r.mapper.MapError(err)
	})
	if err != nil {
		return persistence.AppointmentHold{}, err
	}
	return hold, nil
}

// GetHold retrieves a hold scoped to an organization.
func (r *HoldRepository) GetHold(ctx context.Context, organizationID, id string) (persistence.AppointmentHold, error) {
	if id == "" {
		return persistence.AppointmentHold{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx,
		"SELECT "+holdColumns+" FROM appointment_holds WHERE id = ? AND organization_id = ?",
		id, organizationID)
	hold, err := scanHold(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.AppointmentHold{}, persistence.ErrNotFound
		}
		return persistence.AppointmentHold{}, r.mapper.MapError(err)
	}
	return hold, nil
}

// ExtendHold pushes an active hold's expiry forward. The update is
// conditional on the hold still being active at now; an inert hold reads
// back as ErrNotFound, matching how every other consumer treats it.
func (r *HoldRepository) ExtendHold(ctx context.Context, organizationID, id string, expiresAt, now time.Time) (persistence.AppointmentHold, error) {
	var hold persistence.AppointmentHold
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(tx, `
			UPDATE appointment_holds SET expires_at = ?, updated_at = ?
			WHERE id = ? AND organization_id = ?
			AND released_at IS NULL AND consumed_at IS NULL AND expires_at > ?`,
			formatTime(expiresAt), formatTime(now), id, organizationID, formatTime(now))
		if err != nil {
			return r.mapper.MapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}

		row := r.helper.QueryRowTx(tx,
			"SELECT "+holdColumns+" FROM appointment_holds WHERE id = ?", id)
		hold, err = scanHold(row.Scan)
		return err
	})
	if err != nil {
		return persistence.AppointmentHold{}, err
	}
	return hold, nil
}

// ReleaseHold voluntarily frees an active hold. Releasing an inert hold is
// a no-op; the bool reports whether anything changed.
func (r *HoldRepository) ReleaseHold(ctx context.Context, organizationID, id string, releasedAt time.Time) (bool, error) {
	result, err := r.helper.Exec(ctx, `
		UPDATE appointment_holds SET released_at = ?, updated_at = ?
		WHERE id = ? AND organization_id = ?
		AND released_at IS NULL AND consumed_at IS NULL AND expires_at > ?`,
		formatTime(releasedAt), formatTime(releasedAt), id, organizationID, formatTime(releasedAt))
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListActiveHolds lists an organization's active holds, optionally bounded
// to a date range.
func (r *HoldRepository) ListActiveHolds(ctx context.Context, organizationID string, from, to *time.Time, now time.Time) ([]persistence.AppointmentHold, error) {
	query := "SELECT " + holdColumns + ` FROM appointment_holds
		WHERE organization_id = ?
		AND released_at IS NULL AND consumed_at IS NULL AND expires_at > ?`
	args := []interface{}{organizationID, formatTime(now)}

	if from != nil {
		query += " AND date >= ?"
		args = append(args, formatTime(*from))
	}
	if to != nil {
		query += " AND date < ?"
		args = append(args, formatTime(*to))
	}
	query += " ORDER BY date ASC, start_time ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var out []persistence.AppointmentHold
	for rows.Next() {
		hold, err := scanHold(rows.Scan)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		out = append(out, hold)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return out, nil
}

// ConsumeHoldAndCreateSession atomically marks an active hold consumed and
// inserts the session it reserves. The slot re-check exempts the hold being
// consumed but still catches any other claim that slipped in; an inert hold
// is ErrNotFound.
func (r *HoldRepository) ConsumeHoldAndCreateSession(ctx context.Context, organizationID, holdID string, session persistence.Session, now time.Time) (persistence.Session, error) {
	if err := validateSessionRow(session); err != nil {
		return persistence.Session{}, err
	}

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(tx, `
			UPDATE appointment_holds SET consumed_at = ?, session_id = ?, updated_at = ?
			WHERE id = ? AND organization_id = ?
			AND released_at IS NULL AND consumed_at IS NULL AND expires_at > ?`,
			formatTime(now), session.ID, formatTime(now),
			holdID, organizationID, formatTime(now))
		if err != nil {
			return r.mapper.MapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}

		conflict, err := findSlotConflict(tx, r.helper, slotQuery{
			organizationID: session.OrganizationID,
			date:           session.Date,
			startTime:      session.StartTime,
			endTime:        session.EndTime,
			staffID:        &session.StaffID,
			patientID:      session.PatientID,
			roomID:         session.RoomID,
			ignoreHoldID:   holdID,
		}, now)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if conflict != nil {
			return conflict
		}

		sessions := &SessionRepository{pool: r.pool, helper: r.helper, mapper: r.mapper}
		return sessions.insertSession(tx, session)
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

// DeleteExpiredHolds removes holds whose expiry has passed without being
// consumed. Purely a storage reclaim: expired holds are already inert
// everywhere. Idempotent and safe to run concurrently.
func (r *HoldRepository) DeleteExpiredHolds(ctx context.Context, now time.Time) (int, error) {
	result, err := r.helper.Exec(ctx, `
		DELETE FROM appointment_holds
		WHERE expires_at <= ? AND consumed_at IS NULL`,
		formatTime(now))
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

func scanHold(scan func(...interface{}) error) (persistence.AppointmentHold, error) {
	var hold persistence.AppointmentHold
	var staffID, roomID, sessionID sql.NullString
	var date, expiresAt, createdAt, updatedAt string
	var releasedAt, consumedAt sql.NullString

	err := scan(&hold.ID, &hold.OrganizationID, &staffID, &roomID,
		&date, &hold.StartTime, &hold.EndTime,
		&hold.CreatedByUserID, &expiresAt, &releasedAt, &consumedAt, &sessionID,
		&createdAt, &updatedAt)
	if err != nil {
		return persistence.AppointmentHold{}, err
	}

	hold.StaffID = stringPtr(staffID)
	hold.RoomID = stringPtr(roomID)
	hold.SessionID = stringPtr(sessionID)
	if hold.Date, err = parseTime(date, "date"); err != nil {
		return persistence.AppointmentHold{}, err
	}
	if hold.ExpiresAt, err = parseTime(expiresAt, "expires_at"); err != nil {
		return persistence.AppointmentHold{}, err
	}
	if hold.ReleasedAt, err = parseNullableTime(releasedAt, "released_at"); err != nil {
		return persistence.AppointmentHold{}, err
	}
	if hold.ConsumedAt, err = parseNullableTime(consumedAt, "consumed_at"); err != nil {
		return persistence.AppointmentHold{}, err
	}
	if hold.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return persistence.AppointmentHold{}, err
	}
	if hold.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return persistence.AppointmentHold{}, err
	}
	return hold, nil
}
