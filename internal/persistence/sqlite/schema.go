package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration is one versioned schema step. Steps are embedded in the binary
// and applied in order inside a transaction each; schema_migrations records
// what has run so startup is idempotent.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial schema",
		SQL: `
CREATE TABLE organizations (
	id                       TEXT PRIMARY KEY,
	name                     TEXT NOT NULL,
	timezone                 TEXT NOT NULL,
	business_hours           TEXT NOT NULL DEFAULT '{}',
	default_session_minutes  INTEGER NOT NULL DEFAULT 60,
	slot_interval_minutes    INTEGER NOT NULL DEFAULT 30,
	late_cancel_window_hours INTEGER NOT NULL DEFAULT 24,
	require_booking_approval INTEGER NOT NULL DEFAULT 0,
	created_at               TEXT NOT NULL,
	updated_at               TEXT NOT NULL
);

CREATE TABLE staff (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	name            TEXT NOT NULL,
	gender          TEXT NOT NULL DEFAULT '',
	certifications  TEXT NOT NULL DEFAULT '[]',
	working_hours   TEXT NOT NULL DEFAULT '{}',
	status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE INDEX idx_staff_org ON staff(organization_id, status);

CREATE TABLE staff_time_off (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	staff_id        TEXT NOT NULL REFERENCES staff(id),
	date            TEXT NOT NULL,
	start_time      TEXT NOT NULL DEFAULT '',
	end_time        TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'approved' CHECK (status IN ('approved', 'pending')),
	reason          TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE INDEX idx_time_off_staff ON staff_time_off(organization_id, staff_id, date);

CREATE TABLE patients (
	id                         TEXT PRIMARY KEY,
	organization_id            TEXT NOT NULL REFERENCES organizations(id),
	name                       TEXT NOT NULL,
	gender                     TEXT NOT NULL DEFAULT '',
	preferred_staff_gender     TEXT NOT NULL DEFAULT '',
	required_certifications    TEXT NOT NULL DEFAULT '[]',
	required_room_capabilities TEXT NOT NULL DEFAULT '[]',
	preferred_room_id          TEXT,
	sessions_per_week          INTEGER NOT NULL DEFAULT 0,
	session_specs              TEXT NOT NULL DEFAULT '[]',
	status                     TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
	created_at                 TEXT NOT NULL,
	updated_at                 TEXT NOT NULL
);
CREATE INDEX idx_patients_org ON patients(organization_id, status);

CREATE TABLE rooms (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	name            TEXT NOT NULL,
	capabilities    TEXT NOT NULL DEFAULT '[]',
	status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE INDEX idx_rooms_org ON rooms(organization_id);

CREATE TABLE rules (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	category        TEXT NOT NULL,
	logic           TEXT NOT NULL DEFAULT '{}',
	priority        INTEGER NOT NULL DEFAULT 0,
	requires_review INTEGER NOT NULL DEFAULT 0,
	active          INTEGER NOT NULL DEFAULT 1,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE INDEX idx_rules_org ON rules(organization_id, active);

CREATE TABLE schedules (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id),
	week_start_date TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'published', 'archived')),
	version         INTEGER NOT NULL DEFAULT 1,
	created_by      TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	UNIQUE (organization_id, week_start_date, version)
);
CREATE INDEX idx_schedules_org_week ON schedules(organization_id, week_start_date);

CREATE TABLE sessions (
	id                  TEXT PRIMARY KEY,
	organization_id     TEXT NOT NULL REFERENCES organizations(id),
	schedule_id         TEXT NOT NULL REFERENCES schedules(id),
	staff_id            TEXT NOT NULL REFERENCES staff(id),
	patient_id          TEXT NOT NULL REFERENCES patients(id),
	room_id             TEXT REFERENCES rooms(id),
	date                TEXT NOT NULL,
	start_time          TEXT NOT NULL,
	end_time            TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'scheduled',
	notes               TEXT NOT NULL DEFAULT '',
	booked_via          TEXT NOT NULL DEFAULT '',
	confirmed_at        TEXT,
	checked_in_at       TEXT,
	completed_at        TEXT,
	cancelled_at        TEXT,
	cancellation_reason TEXT NOT NULL DEFAULT '',
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL,
	CHECK (end_time > start_time)
);
CREATE INDEX idx_sessions_org_date ON sessions(organization_id, date);
CREATE INDEX idx_sessions_schedule ON sessions(schedule_id);
CREATE INDEX idx_sessions_staff ON sessions(organization_id, staff_id, date);
CREATE INDEX idx_sessions_patient ON sessions(organization_id, patient_id, date);

CREATE TABLE appointment_holds (
	id                 TEXT PRIMARY KEY,
	organization_id    TEXT NOT NULL REFERENCES organizations(id),
	staff_id           TEXT REFERENCES staff(id),
	room_id            TEXT REFERENCES rooms(id),
	date               TEXT NOT NULL,
	start_time         TEXT NOT NULL,
	end_time           TEXT NOT NULL,
	created_by_user_id TEXT NOT NULL DEFAULT '',
	expires_at         TEXT NOT NULL,
	released_at        TEXT,
	consumed_at        TEXT,
	session_id         TEXT,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL,
	CHECK (end_time > start_time),
	CHECK (staff_id IS NOT NULL OR room_id IS NOT NULL)
);
CREATE INDEX idx_holds_org_date ON appointment_holds(organization_id, date);
`,
	},
}

// Migrate applies pending schema migrations. It is safe to call on every
// startup and from concurrent test processes against separate databases.
func Migrate(ctx context.Context, pool *ConnectionPool) error {
	_, err := pool.DB().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, migration := range migrations {
		applied, err := migrationApplied(ctx, pool, migration.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		err = pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.Exec(migration.SQL); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
			}
			_, err := tx.Exec(
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
				migration.Version, migration.Name, time.Now().UTC().Format(time.RFC3339),
			)
			if err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func migrationApplied(ctx context.Context, pool *ConnectionPool, version int) (bool, error) {
	var count int
	err := pool.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %d: %w", version, err)
	}
	return count > 0, nil
}
