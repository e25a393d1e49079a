package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
	"github.com/example/practice-scheduler/internal/timeslot"
)

const (
	defaultHoldTTL = 10 * time.Minute
	maxHoldTTL     = time.Hour
)

// HoldService places, extends, and releases perishable slot reservations.
// The conditional write inside the hold store is what makes two racing
// callers resolve to exactly one winner; this layer validates and shapes.
type HoldService struct {
	orgs        OrganizationStore
	staff       StaffDirectory
	rooms       RoomCatalog
	holds       HoldStore
	logger      *slog.Logger
	idGenerator func() string
	now         func() time.Time
	defaultTTL  time.Duration
}

// NewHoldService wires dependencies for hold management. A zero ttl selects
// the ten minute default.
func NewHoldService(orgs OrganizationStore, staff StaffDirectory, rooms RoomCatalog, holds HoldStore, logger *slog.Logger, idGenerator func() string, now func() time.Time, ttl time.Duration) *HoldService {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = defaultHoldTTL
	}
	return &HoldService{
		orgs:        orgs,
		staff:       staff,
		rooms:       rooms,
		holds:       holds,
		logger:      defaultLogger(logger),
		idGenerator: idGenerator,
		now:         now,
		defaultTTL:  ttl,
	}
}

// CreateHold reserves a slot. A *persistence.SlotConflictError names the
// blocking session or hold when the slot is already taken.
func (s *HoldService) CreateHold(ctx context.Context, organizationID string, params CreateHoldParams) (Hold, error) {
	logger := serviceLogger(ctx, s.logger, "hold", "create_hold", "organization_id", organizationID)

	org, err := s.orgs.GetOrganization(ctx, organizationID)
	if err != nil {
		return Hold{}, mapRepoError(err)
	}
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		return Hold{}, fmt.Errorf("organization %s has invalid timezone %q: %w", organizationID, org.Timezone, err)
	}

	vErr := &ValidationError{}
	if params.StaffID == nil && params.RoomID == nil {
		vErr.add("staff_id", "a hold needs a staff member or a room")
	}
	date, err := timeslot.ParseLocalDateStart(params.Date, loc)
	if err != nil {
		vErr.add("date", "must be a YYYY-MM-DD date")
	}
	if _, err := spanFromTimes(params.StartTime, params.EndTime); err != nil {
		vErr.add("time", "start and end must be HH:mm times with start before end")
	}
	ttl := s.defaultTTL
	if params.HoldDurationMinutes > 0 {
		ttl = time.Duration(params.HoldDurationMinutes) * time.Minute
	}
	if ttl > maxHoldTTL {
		vErr.add("hold_duration_minutes", fmt.Sprintf("must not exceed %d minutes", int(maxHoldTTL.Minutes())))
	}
	if vErr.HasErrors() {
		return Hold{}, vErr
	}

	if params.StaffID != nil {
		if _, err := s.staff.GetStaff(ctx, organizationID, *params.StaffID); err != nil {
			return Hold{}, mapRepoError(err)
		}
	}
	if params.RoomID != nil {
		if _, err := s.rooms.GetRoom(ctx, organizationID, *params.RoomID); err != nil {
			return Hold{}, mapRepoError(err)
		}
	}

	now := s.now()
	hold := persistence.AppointmentHold{
		ID:              s.idGenerator(),
		OrganizationID:  organizationID,
		StaffID:         params.StaffID,
		RoomID:          params.RoomID,
		Date:            date,
		StartTime:       params.StartTime,
		EndTime:         params.EndTime,
		CreatedByUserID: params.Principal.UserID,
		ExpiresAt:       now.Add(ttl),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.holds.CreateHoldIfFree(ctx, hold, now)
	if err != nil {
		logger.InfoContext(ctx, "hold rejected", "error_kind", ErrorKind(err))
		return Hold{}, mapRepoError(err)
	}

	logger.InfoContext(ctx, "hold created", "hold_id", created.ID, "expires_at", created.ExpiresAt)
	return toHoldView(created, loc), nil
}

// GetHold returns one hold, including consumed and released ones.
func (s *HoldService) GetHold(ctx context.Context, organizationID, holdID string) (Hold, error) {
	org, err := s.orgs.GetOrganization(ctx, organizationID)
	if err != nil {
		return Hold{}, mapRepoError(err)
	}
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		return Hold{}, fmt.Errorf("organization %s has invalid timezone %q: %w", organizationID, org.Timezone, err)
	}
	hold, err := s.holds.GetHold(ctx, organizationID, holdID)
	if err != nil {
		return Hold{}, mapRepoError(err)
	}
	return toHoldView(hold, loc), nil
}

// ExtendHold pushes an active hold's expiry to now plus the requested
// duration. Extending an expired, released, or consumed hold fails with
// ErrNotFound: a lapsed reservation is gone, not renewable.
func (s *HoldService) ExtendHold(ctx context.Context, organizationID, holdID string, additionalMinutes int) (Hold, error) {
	logger := serviceLogger(ctx, s.logger, "hold", "extend_hold", "organization_id", organizationID, "hold_id", holdID)

	org, err := s.orgs.GetOrganization(ctx, organizationID)
	if err != nil {
		return Hold{}, mapRepoError(err)
	}
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		return Hold{}, fmt.Errorf("organization %s has invalid timezone %q: %w", organizationID, org.Timezone, err)
	}

	ttl := s.defaultTTL
	if additionalMinutes > 0 {
		ttl = time.Duration(additionalMinutes) * time.Minute
	}
	if ttl > maxHoldTTL {
		vErr := &ValidationError{}
		vErr.add("additional_minutes", fmt.Sprintf("must not exceed %d minutes", int(maxHoldTTL.Minutes())))
		return Hold{}, vErr
	}

	now := s.now()
	extended, err := s.holds.ExtendHold(ctx, organizationID, holdID, now.Add(ttl), now)
	if err != nil {
		return Hold{}, mapRepoError(err)
	}

	logger.InfoContext(ctx, "hold extended", "expires_at", extended.ExpiresAt)
	return toHoldView(extended, loc), nil
}

// ReleaseHold frees a hold early. Releasing a hold that already lapsed is a
// no-op; releasing an unknown hold is ErrNotFound.
func (s *HoldService) ReleaseHold(ctx context.Context, organizationID, holdID string) error {
	logger := serviceLogger(ctx, s.logger, "hold", "release_hold", "organization_id", organizationID, "hold_id", holdID)

	released, err := s.holds.ReleaseHold(ctx, organizationID, holdID, s.now())
	if err != nil {
		return mapRepoError(err)
	}
	if !released {
		if _, err := s.holds.GetHold(ctx, organizationID, holdID); err != nil {
			return mapRepoError(err)
		}
		return nil
	}

	logger.InfoContext(ctx, "hold released")
	return nil
}

// ListActiveHolds returns the organization's live holds, optionally limited
// to a local date range.
func (s *HoldService) ListActiveHolds(ctx context.Context, organizationID, dateFrom, dateTo string) ([]Hold, error) {
	org, err := s.orgs.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		return nil, fmt.Errorf("organization %s has invalid timezone %q: %w", organizationID, org.Timezone, err)
	}

	var from, to *time.Time
	vErr := &ValidationError{}
	if dateFrom != "" {
		start, err := timeslot.ParseLocalDateStart(dateFrom, loc)
		if err != nil {
			vErr.add("date_from", "must be a YYYY-MM-DD date")
		} else {
			from = &start
		}
	}
	if dateTo != "" {
		start, err := timeslot.ParseLocalDateStart(dateTo, loc)
		if err != nil {
			vErr.add("date_to", "must be a YYYY-MM-DD date")
		} else {
			end := timeslot.StartOfLocalDay(start.AddDate(0, 0, 1), loc)
			to = &end
		}
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	holds, err := s.holds.ListActiveHolds(ctx, organizationID, from, to, s.now())
	if err != nil {
		return nil, mapRepoError(err)
	}
	out := make([]Hold, 0, len(holds))
	for _, hold := range holds {
		out = append(out, toHoldView(hold, loc))
	}
	return out, nil
}

// CleanupExpired hard-deletes lapsed unconsumed holds. Consumed holds stay
// as the booking audit trail. The conditional writes already treat expired
// holds as inert, so this only reclaims storage.
func (s *HoldService) CleanupExpired(ctx context.Context) (int, error) {
	logger := serviceLogger(ctx, s.logger, "hold", "cleanup_expired")

	deleted, err := s.holds.DeleteExpiredHolds(ctx, s.now())
	if err != nil {
		return 0, mapRepoError(err)
	}
	if deleted > 0 {
		logger.InfoContext(ctx, "expired holds removed", "count", deleted)
	}
	return deleted, nil
}

func toHoldView(hold persistence.AppointmentHold, loc *time.Location) Hold {
	return Hold{
		ID:        hold.ID,
		StaffID:   hold.StaffID,
		RoomID:    hold.RoomID,
		Date:      timeslot.FormatLocalDate(hold.Date, loc),
		StartTime: hold.StartTime,
		EndTime:   hold.EndTime,
		ExpiresAt: hold.ExpiresAt,
		SessionID: hold.SessionID,
	}
}
