package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// migrationLockID serializes migrators across processes (server and worker
// may start together).
const migrationLockID int64 = 0x70726f67

// Migration is one embedded schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations, tracking them in
// schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator with the progress schema migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// Migrate applies pending migrations, each in its own transaction holding
// the migration advisory lock.
func (m *Migrator) Migrate(ctx context.Context) error {
	if _, err := m.conn.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("%w: create schema_migrations: %v", ErrMigrationFailed, err)
	}

	for _, mig := range m.migrations {
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: migration %d has no up SQL", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
				return err
			}

			// Another process may have applied it while we waited.
			var done bool
			if err := tx.QueryRow(ctx,
				"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", mig.Version,
			).Scan(&done); err != nil {
				return err
			}
			if done {
				return nil
			}

			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: %03d_%s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Status lists every embedded migration with its applied time, if any.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	rows, err := m.conn.Query(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("postgres: read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		applied[v] = at
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := applied[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: PROGRESS RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One row per user. data holds the full record document; level and
-- experience are copied out for reporting queries.
CREATE TABLE IF NOT EXISTS progress_records (
    user_id VARCHAR(320) PRIMARY KEY,
    data JSONB NOT NULL,
    level INTEGER NOT NULL DEFAULT 1,
    experience INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT valid_experience CHECK (experience >= 0)
);

CREATE INDEX IF NOT EXISTS idx_progress_records_experience ON progress_records(experience DESC);
CREATE INDEX IF NOT EXISTS idx_progress_records_updated_at ON progress_records(updated_at);
`

const migration001Down = `
DROP TABLE IF EXISTS progress_records;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ACHIEVEMENT UNLOCKS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Append-only unlock log. At most one row per (user, achievement).
CREATE TABLE IF NOT EXISTS achievement_unlocks (
    id UUID PRIMARY KEY,
    user_id VARCHAR(320) NOT NULL,
    achievement_id VARCHAR(50) NOT NULL,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon VARCHAR(16) NOT NULL DEFAULT '',
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL,

    UNIQUE(user_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_achievement_unlocks_user ON achievement_unlocks(user_id, unlocked_at);
`

const migration002Down = `
DROP TABLE IF EXISTS achievement_unlocks;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: KEY-VALUE DOCUMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Backend for the whole-document store (userProgress, userAchievements).
CREATE TABLE IF NOT EXISTS kv_documents (
    key VARCHAR(100) PRIMARY KEY,
    value BYTEA NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration003Down = `
DROP TABLE IF EXISTS kv_documents;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: 64-BIT EXPERIENCE
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Go ints are 64-bit; INTEGER rejected large totals at write time.
ALTER TABLE progress_records ALTER COLUMN experience TYPE BIGINT;
`

const migration004Down = `
ALTER TABLE progress_records ALTER COLUMN experience TYPE INTEGER;
`

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_progress_records",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_achievement_unlocks",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_kv_documents",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
		{
			Version: 4,
			Name:    "widen_progress_experience",
			UpSQL:   migration004Up,
			DownSQL: migration004Down,
		},
	}
}
