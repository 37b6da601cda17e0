// Package postgres implements the relational progress store.
// Records live in progress_records as JSONB with level/experience columns
// for reporting; unlocks live in achievement_unlocks with a unique
// (user_id, achievement_id) pair. kv_documents backs the document store
// when Postgres is used as a plain key-value backend.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrConnectionClosed is returned after Close.
	ErrConnectionClosed = errors.New("postgres: connection pool is closed")

	// ErrMissingURL is returned when no connection string is configured.
	ErrMissingURL = errors.New("postgres: database url is empty")

	// ErrMigrationFailed wraps any failure while applying a migration.
	ErrMigrationFailed = errors.New("postgres: migration failed")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config describes the pool. URL is a postgres:// or key=value connection
// string; zero pool settings keep the pgxpool defaults.
type Config struct {
	URL string

	// ApplicationName shows up in pg_stat_activity.
	ApplicationName string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration

	// StatementTimeout is sent as the statement_timeout runtime parameter.
	StatementTimeout time.Duration
}

// DefaultConfig returns pool settings sized for one API instance.
func DefaultConfig() Config {
	return Config{
		ApplicationName:   "progress-hub",
		MaxConns:          10,
		MinConns:          1,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
		StatementTimeout:  15 * time.Second,
	}
}

// PoolConfig parses URL and applies the pool settings.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	if c.URL == "" {
		return nil, ErrMissingURL
	}

	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse connection string: %w", err)
	}

	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pc.MinConns = c.MinConns
	}
	if c.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = c.MaxConnLifetime
	}
	if c.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = c.MaxConnIdleTime
	}
	if c.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = c.HealthCheckPeriod
	}
	if c.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = c.ConnectTimeout
	}

	params := pc.ConnConfig.RuntimeParams
	if c.ApplicationName != "" {
		if _, set := params["application_name"]; !set {
			params["application_name"] = c.ApplicationName
		}
	}
	if c.StatementTimeout > 0 {
		params["statement_timeout"] = fmt.Sprintf("%d", c.StatementTimeout.Milliseconds())
	}

	return pc, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// Connection wraps a pgx pool and refuses work after Close.
type Connection struct {
	mu     sync.RWMutex
	pool   *pgxpool.Pool
	closed bool
}

// NewConnection opens the pool and pings it once.
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	pc, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Connection{pool: pool}, nil
}

// Close closes the pool. Safe to call twice.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.pool.Close()
}

// Ping reports whether the database answers.
func (c *Connection) Ping(ctx context.Context) error {
	p, err := c.acquire()
	if err != nil {
		return err
	}
	return p.Ping(ctx)
}

// Exec runs a statement without rows.
func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p, err := c.acquire()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return p.Exec(ctx, sql, args...)
}

// Query runs a statement returning rows.
func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	p, err := c.acquire()
	if err != nil {
		return nil, err
	}
	return p.Query(ctx, sql, args...)
}

// QueryRow runs a statement returning at most one row. After Close the
// returned row reports ErrConnectionClosed from Scan.
func (c *Connection) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	p, err := c.acquire()
	if err != nil {
		return errRow{err: err}
	}
	return p.QueryRow(ctx, sql, args...)
}

// WithTx runs fn in a read-committed transaction, committing on nil.
func (c *Connection) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	p, err := c.acquire()
	if err != nil {
		return err
	}

	tx, err := p.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (c *Connection) acquire() (*pgxpool.Pool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrConnectionClosed
	}
	return c.pool, nil
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// ══════════════════════════════════════════════════════════════════════════════
// ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// IsUniqueViolation reports a 23505 error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsNoRows reports pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
