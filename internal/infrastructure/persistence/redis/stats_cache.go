package redis

import (
	"context"
	"errors"
	"time"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
)

// StatsCache caches computed progress.Stats per user.
type StatsCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewStatsCache creates a new StatsCache. ttl <= 0 uses TTLStats.
func NewStatsCache(cache *Cache, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = TTLStats
	}
	return &StatsCache{cache: cache, ttl: ttl}
}

// Get returns cached stats. found is false on a miss.
func (s *StatsCache) Get(ctx context.Context, userID string) (progress.Stats, bool, error) {
	var st progress.Stats
	err := s.cache.GetJSON(ctx, s.cache.StatsKey(userID), &st)
	if errors.Is(err, ErrCacheMiss) {
		return progress.Stats{}, false, nil
	}
	if err != nil {
		return progress.Stats{}, false, err
	}
	return st, true, nil
}

// Set caches stats for userID.
func (s *StatsCache) Set(ctx context.Context, userID string, st progress.Stats) error {
	return s.cache.SetJSON(ctx, s.cache.StatsKey(userID), st, s.ttl)
}

// Invalidate drops cached stats for userID.
func (s *StatsCache) Invalidate(ctx context.Context, userID string) error {
	return s.cache.Delete(ctx, s.cache.StatsKey(userID))
}
