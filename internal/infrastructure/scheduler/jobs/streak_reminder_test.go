package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/domain/shared"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/document"
	"github.com/eduplatform/progress-hub/pkg/timeutil"
)

type fakeRepo struct {
	records map[string]*progress.Record
	listErr error
	saves   int
}

func (r *fakeRepo) FindRecord(_ context.Context, userID string) (*progress.Record, error) {
	rec, ok := r.records[userID]
	if !ok {
		return nil, shared.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (r *fakeRepo) SaveRecord(context.Context, string, *progress.Record) error {
	r.saves++
	return nil
}

func (r *fakeRepo) ListUserIDs(context.Context) ([]string, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type sentNotice struct {
	userID  string
	message string
	kind    progress.Kind
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (n *fakeNotifier) Show(_ context.Context, userID, message string, kind progress.Kind) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotice{userID, message, kind})
	return nil
}

type memMarker struct {
	marks map[string]bool
	err   error
}

func (m *memMarker) MarkOnce(_ context.Context, userID, date string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	key := date + ":" + userID
	if m.marks[key] {
		return false, nil
	}
	m.marks[key] = true
	return true, nil
}

type countObserver struct{ n int }

func (o *countObserver) ObserveReminder() { o.n++ }

func recordWithActivity(at time.Time, streak int) *progress.Record {
	rec := progress.NewRecord()
	rec.LastActivity = &at
	rec.CurrentStreak = streak
	rec.LongestStreak = streak
	return rec
}

type reminderFixture struct {
	repo     *fakeRepo
	notifier *fakeNotifier
	marker   *memMarker
	observer *countObserver
	clock    *timeutil.FixedClock
	job      *StreakReminderJob
}

func newReminderFixture(now time.Time) *reminderFixture {
	f := &reminderFixture{
		repo:     &fakeRepo{records: map[string]*progress.Record{}},
		notifier: &fakeNotifier{},
		marker:   &memMarker{marks: map[string]bool{}},
		observer: &countObserver{},
		clock:    timeutil.NewFixedClock(now),
	}
	cfg := DefaultStreakReminderConfig()
	cfg.Location = time.UTC
	f.job = NewStreakReminderJob(f.repo, f.notifier, f.marker, f.observer, f.clock, nil, cfg)
	return f
}

func TestStreakReminder_RemindsOnlyAtRiskUsers(t *testing.T) {
	now := time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC)
	f := newReminderFixture(now)
	f.repo.records["yesterday@example.com"] = recordWithActivity(now.AddDate(0, 0, -1), 4)
	f.repo.records["today@example.com"] = recordWithActivity(now.Add(-time.Hour), 5)
	f.repo.records["gone@example.com"] = recordWithActivity(now.AddDate(0, 0, -3), 2)
	f.repo.records["new@example.com"] = progress.NewRecord()

	require.NoError(t, f.job.Run(context.Background()))

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "yesterday@example.com", f.notifier.sent[0].userID)
	assert.Equal(t, "¡No pierdas tu racha de 4 días! Mira un video hoy.", f.notifier.sent[0].message)
	assert.Equal(t, progress.KindWarning, f.notifier.sent[0].kind)
	assert.Equal(t, 1, f.observer.n)
	assert.Zero(t, f.repo.saves)

	stats, ok := f.job.LastRunStats()
	require.True(t, ok)
	assert.Equal(t, 4, stats.UsersScanned)
	assert.Equal(t, 1, stats.AtRisk)
	assert.Equal(t, 1, stats.RemindersSent)
}

func TestStreakReminder_OncePerDay(t *testing.T) {
	now := time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC)
	f := newReminderFixture(now)
	f.repo.records["ana@example.com"] = recordWithActivity(now.AddDate(0, 0, -1), 2)

	require.NoError(t, f.job.Run(context.Background()))
	f.clock.Advance(time.Hour)
	require.NoError(t, f.job.Run(context.Background()))

	assert.Len(t, f.notifier.sent, 1)
	stats, _ := f.job.LastRunStats()
	assert.Equal(t, 1, stats.AlreadyMarked)
}

func TestStreakReminder_SkipsBeforeEvening(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	f := newReminderFixture(now)
	f.repo.records["ana@example.com"] = recordWithActivity(now.AddDate(0, 0, -1), 2)

	require.NoError(t, f.job.Run(context.Background()))

	assert.Empty(t, f.notifier.sent)
	stats, _ := f.job.LastRunStats()
	assert.True(t, stats.Skipped)
}

func TestStreakReminder_Errors(t *testing.T) {
	now := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)

	t.Run("list failure", func(t *testing.T) {
		f := newReminderFixture(now)
		f.repo.listErr = errors.New("store down")
		assert.Error(t, f.job.Run(context.Background()))
	})

	t.Run("marker failure", func(t *testing.T) {
		f := newReminderFixture(now)
		f.repo.records["ana@example.com"] = recordWithActivity(now.AddDate(0, 0, -1), 2)
		f.marker.err = errors.New("redis down")

		err := f.job.Run(context.Background())
		assert.Error(t, err)
		assert.Empty(t, f.notifier.sent)
		stats, _ := f.job.LastRunStats()
		assert.Equal(t, 1, stats.Errors)
	})
}

func TestStreakReminder_ReloadsSharedDocuments(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC)
	kv := document.NewMemoryKV()

	api, err := document.NewStore(ctx, kv, document.Config{Name: "api"})
	require.NoError(t, err)
	require.NoError(t, api.SaveRecord(ctx, "bob@example.com", recordWithActivity(now.AddDate(0, 0, -1), 2)))

	worker, err := document.NewStore(ctx, kv, document.Config{Name: "worker"})
	require.NoError(t, err)

	// After the worker started: ana begins a streak, bob studies today.
	require.NoError(t, api.SaveRecord(ctx, "ana@example.com", recordWithActivity(now.AddDate(0, 0, -1), 3)))
	require.NoError(t, api.SaveRecord(ctx, "bob@example.com", recordWithActivity(now.Add(-time.Hour), 3)))

	n := &fakeNotifier{}
	cfg := DefaultStreakReminderConfig()
	cfg.Location = time.UTC
	job := NewStreakReminderJob(worker, n, &memMarker{marks: map[string]bool{}}, nil, timeutil.NewFixedClock(now), nil, cfg)

	require.NoError(t, job.Run(ctx))
	require.Len(t, n.sent, 1)
	assert.Equal(t, "ana@example.com", n.sent[0].userID)
}

type failingReloadRepo struct{ fakeRepo }

func (*failingReloadRepo) Reload(context.Context) error { return errors.New("backend down") }

func TestStreakReminder_ReloadFailure(t *testing.T) {
	now := time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC)
	repo := &failingReloadRepo{fakeRepo{records: map[string]*progress.Record{
		"ana@example.com": recordWithActivity(now.AddDate(0, 0, -1), 2),
	}}}
	n := &fakeNotifier{}
	cfg := DefaultStreakReminderConfig()
	cfg.Location = time.UTC
	job := NewStreakReminderJob(repo, n, &memMarker{marks: map[string]bool{}}, nil, timeutil.NewFixedClock(now), nil, cfg)

	assert.ErrorContains(t, job.Run(context.Background()), "reload records")
	assert.Empty(t, n.sent)
}

func TestStreakReminder_Describe(t *testing.T) {
	f := newReminderFixture(time.Now())
	assert.Equal(t, StreakReminderJobName, f.job.Name())
	assert.Contains(t, f.job.Description(), "18:00")
}
