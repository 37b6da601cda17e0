package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/infrastructure/identity"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/document"
	"github.com/eduplatform/progress-hub/pkg/timeutil"
)

const ana = "ana@example.com"

// Wednesday.
var now = time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *document.Store {
	t.Helper()
	s, err := document.NewStore(context.Background(), document.NewMemoryKV(), document.Config{Name: "test"})
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, s *document.Store) {
	t.Helper()
	rec := progress.NewRecord()
	// Monday of the same week.
	rec.UpdateCourseProgress("c1", 40, 20, now.AddDate(0, 0, -2), time.UTC)
	rec.UpdateCourseProgress("c2", 100, 15, now, time.UTC)
	require.NoError(t, s.SaveRecord(context.Background(), ana, rec))
	def, _ := progress.FindDefinition(progress.AchievementFirstCourse)
	require.NoError(t, s.AppendUnlock(context.Background(), progress.NewUnlock("u1", ana, def, now)))
}

type memCache struct {
	mu    sync.Mutex
	items map[string]progress.Stats
	sets  int
}

func (c *memCache) Get(_ context.Context, userID string) (progress.Stats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.items[userID]
	return st, ok, nil
}

func (c *memCache) Set(_ context.Context, userID string, st progress.Stats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = map[string]progress.Stats{}
	}
	c.items[userID] = st
	c.sets++
	return nil
}

func (c *memCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, userID)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Stats
// ─────────────────────────────────────────────────────────────────────────────

func TestGetUserStats_UnknownUser(t *testing.T) {
	h := NewGetUserStatsHandler(newStore(t), identity.ContextProvider{}, nil, timeutil.NewFixedClock(now), time.UTC, nil)

	res, err := h.Handle(context.Background(), GetUserStatsQuery{UserID: "nobody@example.com"})
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, err = h.Handle(context.Background(), GetUserStatsQuery{})
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, res.UserID)
}

func TestGetUserStats_Aggregates(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	h := NewGetUserStatsHandler(s, identity.ContextProvider{}, nil, timeutil.NewFixedClock(now), time.UTC, nil)

	ctx := identity.WithIdentity(context.Background(), progress.Identity{Email: ana})
	res, err := h.Handle(ctx, GetUserStatsQuery{})
	require.NoError(t, err)
	require.True(t, res.Found)

	st := res.Stats
	assert.Equal(t, 1, st.CoursesCompleted)
	assert.Equal(t, 1, st.CoursesInProgress)
	assert.Equal(t, 1, st.Achievements)
	assert.Equal(t, 35.0, st.TotalWatchTime)
	assert.Equal(t, 107, st.Experience)
	assert.Equal(t, 2, st.Level)
	assert.Equal(t, 400, st.ExperienceForNext)

	assert.Equal(t, 15.0, st.DailyProgress.Minutes)
	assert.Equal(t, 30, st.DailyProgress.Goal)
	assert.InDelta(t, 50.0, st.DailyProgress.Percentage, 0.001)

	assert.Equal(t, 35.0, st.WeeklyProgress.Minutes)
	assert.InDelta(t, 35.0/210*100, st.WeeklyProgress.Percentage, 0.001)
}

func TestGetUserStats_UsesCache(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	cache := &memCache{}
	h := NewGetUserStatsHandler(s, nil, cache, timeutil.NewFixedClock(now), time.UTC, nil)

	first, err := h.Handle(context.Background(), GetUserStatsQuery{UserID: ana})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 1, cache.sets)

	second, err := h.Handle(context.Background(), GetUserStatsQuery{UserID: ana})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Stats, second.Stats)

	third, err := h.Handle(context.Background(), GetUserStatsQuery{UserID: ana, SkipCache: true})
	require.NoError(t, err)
	assert.False(t, third.FromCache)
}

// writingStore saves a newer record right after the first unlock read,
// the way a command landing mid-computation would.
type writingStore struct {
	*document.Store
	once  sync.Once
	write func()
}

func (s *writingStore) ListUnlocks(ctx context.Context, userID string) ([]progress.Unlock, error) {
	s.once.Do(s.write)
	return s.Store.ListUnlocks(ctx, userID)
}

func TestGetUserStats_DropsStatsOutdatedByConcurrentWrite(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	cache := &memCache{}
	ws := &writingStore{Store: s}
	ws.write = func() {
		rec, err := s.FindRecord(context.Background(), ana)
		require.NoError(t, err)
		rec.UpdateCourseProgress("c3", 100, 0, now, time.UTC)
		require.NoError(t, s.SaveRecord(context.Background(), ana, rec))
		require.NoError(t, cache.Invalidate(context.Background(), ana))
	}
	h := NewGetUserStatsHandler(ws, nil, cache, timeutil.NewFixedClock(now), time.UTC, nil)

	first, err := h.Handle(context.Background(), GetUserStatsQuery{UserID: ana})
	require.NoError(t, err)
	assert.Equal(t, 107, first.Stats.Experience)

	_, cached, _ := cache.Get(context.Background(), ana)
	assert.False(t, cached, "stats computed from the old record must not stay cached")

	second, err := h.Handle(context.Background(), GetUserStatsQuery{UserID: ana})
	require.NoError(t, err)
	assert.False(t, second.FromCache)
	assert.Equal(t, 207, second.Stats.Experience)
}

type failingStore struct {
	progress.Store
}

func (failingStore) FindRecord(context.Context, string) (*progress.Record, error) {
	return nil, errors.New("backend down")
}

func TestGetUserStats_StoreError(t *testing.T) {
	h := NewGetUserStatsHandler(failingStore{}, nil, nil, nil, time.UTC, nil)
	_, err := h.Handle(context.Background(), GetUserStatsQuery{UserID: ana})
	assert.Error(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress
// ─────────────────────────────────────────────────────────────────────────────

func TestGetProgress(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	h := NewGetProgressHandler(s, identity.ContextProvider{})

	res, err := h.Handle(context.Background(), GetProgressQuery{UserID: ana})
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, []string{"c2"}, res.Record.CoursesCompleted)

	res, err = h.Handle(context.Background(), GetProgressQuery{UserID: "nobody@example.com"})
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Nil(t, res.Record)
}

// ─────────────────────────────────────────────────────────────────────────────
// Achievements
// ─────────────────────────────────────────────────────────────────────────────

func TestGetAchievements(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	h := NewGetAchievementsHandler(s, identity.ContextProvider{})

	res, err := h.Handle(context.Background(), GetAchievementsQuery{UserID: ana})
	require.NoError(t, err)
	require.Len(t, res.Items, 6)
	assert.Equal(t, 1, res.UnlockedCount)
	assert.Len(t, res.Unlocks, 1)

	assert.Equal(t, progress.AchievementFirstCourse, res.Items[0].ID)
	assert.True(t, res.Items[0].Unlocked)
	require.NotNil(t, res.Items[0].UnlockedAt)
	assert.Equal(t, now, *res.Items[0].UnlockedAt)
	assert.False(t, res.Items[1].Unlocked)
}

func TestGetAchievements_Anonymous(t *testing.T) {
	h := NewGetAchievementsHandler(newStore(t), identity.ContextProvider{})

	res, err := h.Handle(context.Background(), GetAchievementsQuery{})
	require.NoError(t, err)
	assert.Len(t, res.Items, 6)
	assert.Zero(t, res.UnlockedCount)
	assert.Empty(t, res.UserID)
}
