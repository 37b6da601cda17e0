// Package command contains write operations (CQRS - Commands).
//
// Every handler follows the same path for one user at a time:
// resolve identity → lock user → load or create record → mutate a clone →
// persist → publish events → show notices → evaluate achievements.
// Nothing is announced unless the record was persisted.
package command

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eduplatform/progress-hub/internal/application/saga"
	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/domain/shared"
	"github.com/eduplatform/progress-hub/pkg/keylock"
	"github.com/eduplatform/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// AchievementChecker evaluates the catalog after a successful write.
// saga.AchievementFlowSaga implements it.
type AchievementChecker interface {
	Execute(ctx context.Context, userID string, snapshot *progress.Record) (*saga.AchievementFlowResult, error)
}

// StatsInvalidator drops cached stats of a user. redis.StatsCache
// implements it.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Deps bundles the collaborators shared by all command handlers.
// Notifier, Publisher, Achievements and Stats are optional.
type Deps struct {
	Store        progress.Repository
	Identity     progress.IdentityProvider
	Notifier     progress.Notifier
	Publisher    shared.EventPublisher
	Achievements AchievementChecker
	Stats        StatsInvalidator
	Clock        timeutil.Clock
	Location     *time.Location
	Locks        *keylock.KeyLock
	Logger       *slog.Logger
}

// engine is the shared write path used by the handlers.
type engine struct {
	store        progress.Repository
	identity     progress.IdentityProvider
	notifier     progress.Notifier
	publisher    shared.EventPublisher
	achievements AchievementChecker
	stats        StatsInvalidator
	clock        timeutil.Clock
	loc          *time.Location
	locks        *keylock.KeyLock
	logger       *slog.Logger
}

func newEngine(d Deps, name string) *engine {
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Locks == nil {
		d.Locks = keylock.New()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &engine{
		store:        d.Store,
		identity:     d.Identity,
		notifier:     d.Notifier,
		publisher:    d.Publisher,
		achievements: d.Achievements,
		stats:        d.Stats,
		clock:        d.Clock,
		loc:          d.Location,
		locks:        d.Locks,
		logger:       d.Logger.With("command", name),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MUTATION
// ══════════════════════════════════════════════════════════════════════════════

// mutateFunc applies a change to rec. changed=false means there is nothing
// to persist (unless the record was just created).
type mutateFunc func(rec *progress.Record, now time.Time) (effects []progress.Effect, changed bool)

// mutation is the outcome of one write.
type mutation struct {
	Record    *progress.Record
	Effects   []progress.Effect
	Notices   []progress.Notice
	Unlocks   []progress.Unlock
	Created   bool
	Persisted bool

	at    time.Time
	dirty bool
}

// currentUser returns the logged-in user id, or "" when nobody is logged in.
func (e *engine) currentUser(ctx context.Context) string {
	if e.identity == nil || !e.identity.IsLoggedIn(ctx) {
		return ""
	}
	id, ok := e.identity.CurrentUser(ctx)
	if !ok {
		return ""
	}
	return id.Email
}

// mutate runs fn against a clone of the user's record and persists it.
// On a failed write the stored record is unchanged and nothing is announced.
func (e *engine) mutate(ctx context.Context, userID string, evaluate bool, fn mutateFunc) (*mutation, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	m, err := e.apply(ctx, userID, fn)
	if err != nil {
		e.logger.Error("failed to update record", "user_id", userID, "error", err)
		return nil, err
	}
	if !m.Persisted {
		return m, nil
	}
	e.invalidateStats(ctx, userID)

	rec := m.Record
	e.publishEffects(userID, rec, m.Created, m.Effects, m.at)
	m.Notices = progress.Notices(m.Effects)
	e.show(ctx, userID, m.Notices)

	if evaluate && e.achievements != nil {
		res, err := e.achievements.Execute(ctx, userID, rec.Clone())
		if err != nil {
			// Unlocks are re-evaluated on the next mutation.
			e.logger.Warn("achievement evaluation failed", "user_id", userID, "error", err)
		}
		if res != nil && len(res.NewUnlocks) > 0 {
			m.Unlocks = res.NewUnlocks
			e.invalidateStats(ctx, userID)
		}
	}

	return m, nil
}

// apply loads, changes and saves the record. The keylock only serializes
// this process; a store implementing progress.AtomicUpdater also keeps
// other instances out between load and save.
func (e *engine) apply(ctx context.Context, userID string, fn mutateFunc) (*mutation, error) {
	if updater, ok := e.store.(progress.AtomicUpdater); ok {
		var m *mutation
		err := updater.UpdateRecord(ctx, userID, func(current *progress.Record) (*progress.Record, error) {
			m = e.change(current, fn)
			if !m.dirty {
				return nil, nil
			}
			return m.Record, nil
		})
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, shared.ErrNothingToPersist
		}
		m.Persisted = m.dirty
		return m, nil
	}

	rec, err := e.store.FindRecord(ctx, userID)
	if err != nil && !errors.Is(err, shared.ErrRecordNotFound) {
		return nil, err
	}
	m := e.change(rec, fn)
	if !m.dirty {
		return m, nil
	}
	if err := e.store.SaveRecord(ctx, userID, m.Record); err != nil {
		return nil, err
	}
	m.Persisted = true
	return m, nil
}

// change applies fn to rec, or to a fresh default record when rec is nil.
func (e *engine) change(rec *progress.Record, fn mutateFunc) *mutation {
	created := rec == nil
	if created {
		rec = progress.NewRecord()
	}

	now := e.clock.Now().In(e.loc)
	var effects []progress.Effect
	changed := false
	if fn != nil {
		effects, changed = fn(rec, now)
	}

	return &mutation{
		Record:  rec,
		Effects: effects,
		Created: created,
		at:      now,
		dirty:   changed || created,
	}
}

// invalidateStats drops cached stats before the command returns, so the
// next read sees the write. A failure is logged; the cache TTL bounds it.
func (e *engine) invalidateStats(ctx context.Context, userID string) {
	if e.stats == nil {
		return
	}
	if err := e.stats.Invalidate(ctx, userID); err != nil {
		e.logger.Warn("failed to invalidate stats cache", "user_id", userID, "error", err)
	}
}

// show forwards notices to the notifier in order. Failures are logged.
func (e *engine) show(ctx context.Context, userID string, notices []progress.Notice) {
	if e.notifier == nil {
		return
	}
	for _, n := range notices {
		if err := e.notifier.Show(ctx, userID, n.Message, n.Kind); err != nil {
			e.logger.Warn("failed to show notice", "user_id", userID, "kind", n.Kind, "error", err)
		}
	}
}

// publishEffects converts effects to domain events and publishes them.
func (e *engine) publishEffects(userID string, rec *progress.Record, created bool, effects []progress.Effect, now time.Time) {
	if e.publisher == nil {
		return
	}
	var events []shared.Event
	if created {
		events = append(events, shared.NewRecordCreatedEvent(userID, now))
	}
	events = append(events, EffectEvents(userID, rec, effects, now)...)
	e.publishAll(events)
}

func (e *engine) publishAll(events []shared.Event) {
	if e.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := e.publisher.Publish(ev); err != nil {
			e.logger.Warn("failed to publish event", "event_type", ev.EventType(), "error", err)
		}
	}
}

// EffectEvents maps record effects to domain events in the same order.
func EffectEvents(userID string, rec *progress.Record, effects []progress.Effect, at time.Time) []shared.Event {
	events := make([]shared.Event, 0, len(effects))
	for _, ef := range effects {
		switch ef.Type {
		case progress.EffectXPGained:
			events = append(events, shared.NewXPGainedEvent(userID, ef.Amount, ef.Total, ef.Subject, at))
		case progress.EffectLevelUp:
			events = append(events, shared.NewLevelUpEvent(userID, ef.From, ef.To, at))
		case progress.EffectCourseCompleted:
			events = append(events, shared.NewCourseCompletedEvent(userID, ef.Subject, ef.Amount, at))
		case progress.EffectRouteCompleted:
			events = append(events, shared.NewRouteCompletedEvent(userID, ef.Subject, ef.Amount, at))
		case progress.EffectStreakUpdated:
			events = append(events, shared.NewStreakEvent(userID, ef.From, ef.To, rec.LongestStreak, at))
		}
	}
	return events
}
