// Package redis implements Redis-backed components of the progress service.
//
// Key components:
//   - Cache: connection, JSON/bytes access and the key layout
//   - DocumentKV: backend for the progress document store
//   - StatsCache: short-lived cache of computed user stats
//   - NotificationInbox: pending notices per user
//
// Every key starts with the configured namespace, so several deployments
// can share one Redis database:
//
//	<ns>:doc:<document>            progress documents, no TTL
//	<ns>:stats:<user>              cached stats, TTLStats
//	<ns>:inbox:<user>              pending notices, TTLInbox
//	<ns>:reminder:<date>:<user>    reminder marker, TTLReminderMark
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	// Namespace prefixes every key. Default "progress".
	Namespace string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns settings for a local Redis.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		Namespace:    "progress",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

var (
	// ErrCacheMiss is returned when a key does not exist.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection is returned when the initial PING fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization wraps JSON failures.
	ErrCacheSerialization = errors.New("cache: serialization failed")
)

const (
	// TTLStats is the default stats lifetime. Daily percentages move with
	// the clock, so it stays short.
	TTLStats = time.Minute

	// TTLInbox is how long undelivered notices are kept.
	TTLInbox = 7 * 24 * time.Hour

	// TTLReminderMark outlives one calendar day in any timezone.
	TTLReminderMark = 36 * time.Hour

	// InboxCapacity bounds the pending list per user.
	InboxCapacity = 50
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Cache is a Redis client with the progress key layout.
type Cache struct {
	client *redis.Client
	ns     string
}

// NewCache connects and verifies the connection with PING.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheConnection, cfg.Addr(), err)
	}

	return NewCacheFromClient(client, cfg.Namespace), nil
}

// NewCacheFromClient wraps an existing client without pinging it.
func NewCacheFromClient(client *redis.Client, namespace string) *Cache {
	namespace = strings.TrimSuffix(namespace, ":")
	if namespace == "" {
		namespace = "progress"
	}
	return &Cache{client: client, ns: namespace}
}

// Client returns the underlying client for list and pipeline operations.
func (c *Cache) Client() *redis.Client { return c.client }

// Close closes the connection pool.
func (c *Cache) Close() error { return c.client.Close() }

// Ping checks that Redis answers.
func (c *Cache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// ─────────────────────────────────────────────────────────────────────────────
// Keys
// ─────────────────────────────────────────────────────────────────────────────

func (c *Cache) key(parts ...string) string {
	return c.ns + ":" + strings.Join(parts, ":")
}

// DocumentKey is the key of a progress document.
func (c *Cache) DocumentKey(name string) string { return c.key("doc", name) }

// StatsKey is the key of a user's cached stats.
func (c *Cache) StatsKey(userID string) string { return c.key("stats", userID) }

// InboxKey is the key of a user's pending notices.
func (c *Cache) InboxKey(userID string) string { return c.key("inbox", userID) }

// ReminderKey is the per-day reminder marker; date is YYYY-MM-DD.
func (c *Cache) ReminderKey(userID, date string) string {
	return c.key("reminder", date, userID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Values
// ─────────────────────────────────────────────────────────────────────────────

// SetJSON stores value as JSON. ttl 0 keeps it forever.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetJSON decodes the value at key into dest, or returns ErrCacheMiss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// SetBytes stores raw bytes. ttl 0 keeps them forever.
func (c *Cache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// GetBytes returns raw bytes, or ErrCacheMiss.
func (c *Cache) GetBytes(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// SetNX sets key only if absent and reports whether it did.
func (c *Cache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}
