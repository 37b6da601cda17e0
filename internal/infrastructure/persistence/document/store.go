package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/domain/shared"
	"github.com/eduplatform/progress-hub/pkg/circuitbreaker"
	"github.com/eduplatform/progress-hub/pkg/retry"
)

// Store implements progress.Store over a KeyValue backend.
//
// The whole state lives in memory and every change rewrites the affected
// document. A change becomes visible only after the backend write succeeds.
type Store struct {
	kv      KeyValue
	retrier retry.Policy
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger

	mu      sync.RWMutex
	records map[string]*progress.Record
	unlocks []progress.Unlock

	// OnWriteFailure is called after a write finally fails.
	OnWriteFailure func(key string, err error)
}

// Config configures a Store.
type Config struct {
	// Name labels the circuit breaker in logs.
	Name   string
	Logger *slog.Logger
}

// NewStore creates a Store and loads both documents from kv.
// A missing document means empty state. A document that is not valid JSON
// is an error so that nothing overwrites data the process cannot read.
func NewStore(ctx context.Context, kv KeyValue, cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "progress-store"
	}
	log := cfg.Logger.With("component", "document_store", "backend", cfg.Name)

	s := &Store{kv: kv, logger: log}
	s.retrier = retry.StorePolicy(func(attempt int, err error, delay time.Duration) {
		log.Warn("store write failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	})
	s.breaker = circuitbreaker.StoreBreaker(cfg.Name, func(name string, from, to circuitbreaker.State) {
		log.Warn("store circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
	})

	records, unlocks, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	s.records, s.unlocks = records, unlocks
	log.Info("progress documents loaded", "records", len(records), "unlocks", len(unlocks))
	return s, nil
}

// Reload replaces the in-memory state with the documents currently in kv.
// Processes that only read, such as the worker, call it to see writes made
// by the API. On error the previous state is kept.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, unlocks, err := s.read(ctx)
	if err != nil {
		return err
	}
	s.records, s.unlocks = records, unlocks
	s.logger.Debug("progress documents reloaded", "records", len(records), "unlocks", len(unlocks))
	return nil
}

// read decodes both documents. A missing document means empty state.
func (s *Store) read(ctx context.Context) (map[string]*progress.Record, []progress.Unlock, error) {
	records := make(map[string]*progress.Record)
	raw, found, err := s.kv.Get(ctx, KeyProgress)
	if err != nil {
		return nil, nil, shared.WrapError("store", "Load", shared.ErrStorage, "read "+KeyProgress, err)
	}
	if found && len(raw) > 0 {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, nil, shared.WrapError("store", "Load", shared.ErrCorruptDocument, KeyProgress, err)
		}
		for id, rec := range records {
			if rec == nil {
				delete(records, id)
				continue
			}
			rec.Normalize()
		}
	}

	var unlocks []progress.Unlock
	raw, found, err = s.kv.Get(ctx, KeyAchievements)
	if err != nil {
		return nil, nil, shared.WrapError("store", "Load", shared.ErrStorage, "read "+KeyAchievements, err)
	}
	if found && len(raw) > 0 {
		if err := json.Unmarshal(raw, &unlocks); err != nil {
			return nil, nil, shared.WrapError("store", "Load", shared.ErrCorruptDocument, KeyAchievements, err)
		}
	}
	return records, unlocks, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// progress.Repository
// ─────────────────────────────────────────────────────────────────────────────

// FindRecord implements progress.Repository.
func (s *Store) FindRecord(_ context.Context, userID string) (*progress.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, shared.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// SaveRecord implements progress.Repository.
func (s *Store) SaveRecord(ctx context.Context, userID string, record *progress.Record) error {
	if userID == "" {
		return shared.ErrInvalidUserID
	}
	if record == nil {
		return shared.ErrNothingToPersist
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*progress.Record, len(s.records)+1)
	for id, rec := range s.records {
		next[id] = rec
	}
	next[userID] = record.Clone()

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", KeyProgress, err)
	}
	if err := s.write(ctx, KeyProgress, data); err != nil {
		return err
	}

	s.records = next
	return nil
}

// ListUserIDs implements progress.Repository.
func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// progress.UnlockRepository
// ─────────────────────────────────────────────────────────────────────────────

// ListUnlocks implements progress.UnlockRepository.
func (s *Store) ListUnlocks(_ context.Context, userID string) ([]progress.Unlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []progress.Unlock
	for _, u := range s.unlocks {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	return out, nil
}

// AppendUnlock implements progress.UnlockRepository.
func (s *Store) AppendUnlock(ctx context.Context, unlock progress.Unlock) error {
	if err := unlock.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.unlocks {
		if u.UserID == unlock.UserID && u.AchievementID == unlock.AchievementID {
			return shared.ErrAlreadyUnlocked
		}
	}

	next := make([]progress.Unlock, len(s.unlocks), len(s.unlocks)+1)
	copy(next, s.unlocks)
	next = append(next, unlock)

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", KeyAchievements, err)
	}
	if err := s.write(ctx, KeyAchievements, data); err != nil {
		return err
	}

	s.unlocks = next
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Backend access
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) write(ctx context.Context, key string, data []byte) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			return s.kv.Set(ctx, key, data)
		})
	})
	if err == nil {
		return nil
	}

	if s.OnWriteFailure != nil {
		s.OnWriteFailure(key, err)
	}
	s.logger.Error("store write failed", "key", key, "error", err)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.WrapError("store", "Write", shared.ErrStoreUnavailable, "write "+key, err)
}

// Ping reports backend health when the backend supports it.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.kv.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// WriteCircuit reports the write circuit state and, while it is open, how
// long until a write is attempted again.
func (s *Store) WriteCircuit() (circuitbreaker.State, time.Duration) {
	return s.breaker.State(), s.breaker.RetryIn()
}
