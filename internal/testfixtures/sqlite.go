package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/practice-scheduler/internal/persistence"
	"github.com/example/practice-scheduler/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite
// database for integration-style persistence tests.
type SQLiteHarness struct {
	Pool          *sqlite.ConnectionPool
	Organizations persistence.OrganizationRepository
	Staff         persistence.StaffRepository
	Patients      persistence.PatientRepository
	Rooms         persistence.RoomRepository
	Rules         persistence.RuleRepository
	TimeOff       persistence.TimeOffRepository
	Schedules     persistence.ScheduleRepository
	Sessions      persistence.SessionRepository
	Holds         persistence.HoldRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness on a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// also registers a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	dir := tb.TempDir()
	dsn := "file:" + filepath.Join(dir, "scheduler.db")

	pool, err := sqlite.NewConnectionPool(dsn)
	if err != nil {
		tb.Fatalf("failed to open database: %v", err)
	}

	if err := sqlite.Migrate(context.Background(), pool); err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to migrate database: %v", err)
	}

	directory := sqlite.NewDirectoryRepository(pool)

	harness := &SQLiteHarness{
		Pool:          pool,
		Organizations: sqlite.NewOrganizationRepository(pool),
		Staff:         directory,
		Patients:      directory,
		Rooms:         directory,
		Rules:         directory,
		TimeOff:       directory,
		Schedules:     sqlite.NewScheduleRepository(pool),
		Sessions:      sqlite.NewSessionRepository(pool),
		Holds:         sqlite.NewHoldRepository(pool),
		cleanup: func() {
			_ = pool.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
