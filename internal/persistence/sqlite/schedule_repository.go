package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
)

// ScheduleRepository implements persistence.ScheduleRepository using SQLite.
type ScheduleRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewScheduleRepository creates a new SQLite schedule repository.
func NewScheduleRepository(pool *ConnectionPool) *ScheduleRepository {
	return &ScheduleRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateSchedule inserts a new schedule version. The unique index on
// (organization_id, week_start_date, version) rejects a duplicate version in
// the same lineage with ErrDuplicate.
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	if schedule.ID == "" || schedule.OrganizationID == "" {
		return persistence.ErrConstraintViolation
	}
	if schedule.Version < 1 {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO schedules (id, organization_id, week_start_date, status, version, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID, schedule.OrganizationID, formatTime(schedule.WeekStartDate),
		schedule.Status, schedule.Version, schedule.CreatedBy,
		formatTime(schedule.CreatedAt), formatTime(schedule.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetSchedule retrieves a schedule scoped to an organization.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, organizationID, id string) (persistence.Schedule, error) {
	if id == "" {
		return persistence.Schedule{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, `
		SELECT id, organization_id, week_start_date, status, version, created_by, created_at, updated_at
		FROM schedules WHERE id = ? AND organization_id = ?`, id, organizationID)
	schedule, err := scanSchedule(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Schedule{}, persistence.ErrNotFound
		}
		return persistence.Schedule{}, r.mapper.MapError(err)
	}
	return schedule, nil
}

// UpdateScheduleStatus moves a schedule from one status to another. The
// update is conditional on the current status so two racing publishes cannot
// both succeed: the loser sees ErrConflict when the schedule exists but has
// already moved on, ErrNotFound when it never existed in this organization.
func (r *ScheduleRepository) UpdateScheduleStatus(ctx context.Context, organizationID, id, fromStatus, toStatus string, updatedAt time.Time) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(tx, `
			UPDATE schedules SET status = ?, updated_at = ?
			WHERE id = ? AND organization_id = ? AND status = ?`,
			toStatus, formatTime(updatedAt), id, organizationID, fromStatus)
		if err != nil {
			return r.mapper.MapError(err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 1 {
			return nil
		}

		var current string
		err = r.helper.QueryRowTx(tx,
			"SELECT status FROM schedules WHERE id = ? AND organization_id = ?",
			id, organizationID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrNotFound
		}
		if err != nil {
			return r.mapper.MapError(err)
		}
		return fmt.Errorf("%w: schedule %s is %s, expected %s", persistence.ErrConflict, id, current, fromStatus)
	})
}

// ListSchedules lists an organization's schedules, newest week first then
// highest version first.
func (r *ScheduleRepository) ListSchedules(ctx context.Context, organizationID string, filter persistence.ScheduleFilter) ([]persistence.Schedule, error) {
	query := `
		SELECT id, organization_id, week_start_date, status, version, created_by, created_at, updated_at
		FROM schedules WHERE organization_id = ?`
	args := []interface{}{organizationID}

	if filter.WeekStartDate != nil {
		query += " AND week_start_date = ?"
		args = append(args, formatTime(*filter.WeekStartDate))
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY week_start_date DESC, version DESC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var out []persistence.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		out = append(out, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return out, nil
}

// MaxVersionForWeek returns the highest version in the organization+week
// lineage, zero when the lineage is empty.
func (r *ScheduleRepository) MaxVersionForWeek(ctx context.Context, organizationID string, weekStartDate time.Time) (int, error) {
	var version sql.NullInt64
	err := r.helper.QueryRow(ctx, `
		SELECT MAX(version) FROM schedules
		WHERE organization_id = ? AND week_start_date = ?`,
		organizationID, formatTime(weekStartDate)).Scan(&version)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

func scanSchedule(scan func(...interface{}) error) (persistence.Schedule, error) {
	var schedule persistence.Schedule
	var weekStart, createdAt, updatedAt string
	err := scan(&schedule.ID, &schedule.OrganizationID, &weekStart, &schedule.Status,
		&schedule.Version, &schedule.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.WeekStartDate, err = parseTime(weekStart, "week_start_date"); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return persistence.Schedule{}, err
	}
	return schedule, nil
}
