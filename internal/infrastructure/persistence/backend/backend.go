// Package backend opens the storage selected by configuration and returns
// the progress store together with the connections it owns.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eduplatform/progress-hub/config"
	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/document"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/postgres"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/redis"
)

// Pinger is anything that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend is the opened storage layer.
type Backend struct {
	// Store serves records and unlocks.
	Store progress.Store

	// Kind is the configured backend.
	Kind config.StorageBackend

	// Redis is the shared cache connection; nil when Redis is disabled or
	// could not be reached for an optional use.
	Redis *redis.Cache

	// Postgres is set for the postgres backends.
	Postgres *postgres.Connection

	checks  map[string]Pinger
	closers []func()
}

// Options tune Open.
type Options struct {
	Logger *slog.Logger

	// OnWriteFailure is attached to document stores. Optional.
	OnWriteFailure func(key string, err error)
}

// Open connects everything the configured backend needs.
// Redis is opened whenever it is enabled so that caches and the inbox can
// share the connection; it is fatal only for the redis backend.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Backend, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	b := &Backend{
		Kind:   cfg.Storage.Backend,
		checks: make(map[string]Pinger),
	}

	if cfg.Redis.Enabled {
		cache, err := openRedis(cfg.Redis)
		switch {
		case err == nil:
			b.Redis = cache
			b.checks["redis"] = cache
			b.closers = append(b.closers, func() { _ = cache.Close() })
			log.Info("Redis connection established", "addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))
		case cfg.Storage.Backend == config.BackendRedis:
			return nil, fmt.Errorf("redis backend: %w", err)
		default:
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
		}
	}

	var err error
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		err = b.openDocument(ctx, document.NewMemoryKV(), "memory", log, opts)

	case config.BackendFile:
		kv, ferr := document.NewFileKV(cfg.Storage.DataDir)
		if ferr != nil {
			err = ferr
			break
		}
		err = b.openDocument(ctx, kv, "file", log, opts)

	case config.BackendRedis:
		if b.Redis == nil {
			err = errors.New("redis backend requires REDIS_ENABLED=true")
			break
		}
		err = b.openDocument(ctx, redis.NewDocumentKV(b.Redis), "redis", log, opts)

	case config.BackendPostgres, config.BackendPostgresKV:
		err = b.openPostgres(ctx, cfg, log, opts)

	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if err != nil {
		b.Close()
		return nil, err
	}

	log.Info("storage ready", "backend", string(b.Kind))
	return b, nil
}

func openRedis(cfg config.RedisConfig) (*redis.Cache, error) {
	rc := redis.DefaultConfig()
	rc.Host = cfg.Host
	rc.Port = cfg.Port
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	if cfg.KeyPrefix != "" {
		rc.Namespace = cfg.KeyPrefix
	}
	if cfg.PoolSize > 0 {
		rc.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		rc.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		rc.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		rc.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		rc.WriteTimeout = cfg.WriteTimeout
	}
	return redis.NewCache(rc)
}

func (b *Backend) openDocument(ctx context.Context, kv document.KeyValue, name string, log *slog.Logger, opts Options) error {
	store, err := document.NewStore(ctx, kv, document.Config{Name: name, Logger: log})
	if err != nil {
		return err
	}
	store.OnWriteFailure = opts.OnWriteFailure
	b.Store = store
	b.checks["store"] = store
	return nil
}

func (b *Backend) openPostgres(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) error {
	pc := postgres.DefaultConfig()
	pc.URL = cfg.Database.URL
	pc.ApplicationName = cfg.App.Name
	pc.MaxConns = int32(cfg.Database.MaxConns)
	pc.MinConns = int32(cfg.Database.MinConns)
	pc.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pc.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pc.ConnectTimeout = cfg.Database.ConnectTimeout

	log.Info("connecting to database...")
	conn, err := postgres.NewConnection(ctx, pc)
	if err != nil {
		return err
	}
	b.Postgres = conn
	b.checks["postgres"] = conn
	b.closers = append(b.closers, conn.Close)

	if cfg.Database.AutoMigrate {
		if err := migrate(ctx, conn, log); err != nil {
			return err
		}
	}

	if cfg.Storage.Backend == config.BackendPostgresKV {
		return b.openDocument(ctx, postgres.NewKVStore(conn), "postgres-kv", log, opts)
	}
	b.Store = postgres.NewProgressRepository(conn)
	return nil
}

func migrate(ctx context.Context, conn *postgres.Connection, log *slog.Logger) error {
	log.Info("running database migrations...")
	migrator := postgres.NewMigrator(conn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	status, err := migrator.Status(ctx)
	if err != nil {
		log.Warn("failed to get migration status", "error", err)
		return nil
	}
	applied := 0
	for _, m := range status {
		if m.IsApplied {
			applied++
		}
	}
	log.Info("migrations completed", "applied", applied, "total", len(status))
	return nil
}

// HealthChecks returns the pingable dependencies by name.
func (b *Backend) HealthChecks() map[string]Pinger {
	out := make(map[string]Pinger, len(b.checks))
	for k, v := range b.checks {
		out[k] = v
	}
	return out
}

// Close releases connections in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
