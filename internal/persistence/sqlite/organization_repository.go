package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/practice-scheduler/internal/persistence"
)

// OrganizationRepository implements persistence.OrganizationRepository using SQLite.
type OrganizationRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewOrganizationRepository creates a new SQLite organization repository.
func NewOrganizationRepository(pool *ConnectionPool) *OrganizationRepository {
	return &OrganizationRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateOrganization inserts a new organization.
func (r *OrganizationRepository) CreateOrganization(ctx context.Context, org persistence.Organization) error {
	if org.ID == "" {
		return persistence.ErrConstraintViolation
	}

	hours, err := encodeWeeklyHours(org.BusinessHours, "business_hours")
	if err != nil {
		return err
	}

	_, err = r.helper.Exec(ctx, `
		INSERT INTO organizations (id, name, timezone, business_hours, default_session_minutes,
			slot_interval_minutes, late_cancel_window_hours, require_booking_approval, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		org.ID, org.Name, org.Timezone, hours,
		org.DefaultSessionMinutes, org.SlotIntervalMinutes, org.LateCancelWindowHours,
		boolToInt(org.RequireBookingApproval),
		formatTime(org.CreatedAt), formatTime(org.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetOrganization retrieves an organization by ID.
func (r *OrganizationRepository) GetOrganization(ctx context.Context, id string) (persistence.Organization, error) {
	if id == "" {
		return persistence.Organization{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, `
		SELECT id, name, timezone, business_hours, default_session_minutes,
			slot_interval_minutes, late_cancel_window_hours, require_booking_approval, created_at, updated_at
		FROM organizations WHERE id = ?`, id)

	var org persistence.Organization
	var hours, createdAt, updatedAt string
	var requireApproval int

	err := row.Scan(&org.ID, &org.Name, &org.Timezone, &hours,
		&org.DefaultSessionMinutes, &org.SlotIntervalMinutes, &org.LateCancelWindowHours,
		&requireApproval, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Organization{}, persistence.ErrNotFound
		}
		return persistence.Organization{}, r.mapper.MapError(err)
	}

	org.BusinessHours = persistence.WeeklyHours{}
	if err := decodeJSON(hours, &org.BusinessHours, "business_hours"); err != nil {
		return persistence.Organization{}, err
	}
	org.RequireBookingApproval = requireApproval != 0
	if org.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return persistence.Organization{}, err
	}
	if org.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return persistence.Organization{}, err
	}
	return org, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
