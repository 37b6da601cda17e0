package document

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/domain/shared"
	"github.com/eduplatform/progress-hub/pkg/circuitbreaker"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T, kv KeyValue) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), kv, Config{Name: "test"})
	require.NoError(t, err)
	return s
}

func TestStore_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := newStore(t, kv)

	_, err := s.FindRecord(ctx, "ana@example.com")
	assert.ErrorIs(t, err, shared.ErrRecordNotFound)
	assert.True(t, shared.IsNotFound(err))

	rec := progress.NewRecord()
	rec.UpdateCourseProgress("c1", 50, 10, now, time.UTC)
	require.NoError(t, s.SaveRecord(ctx, "ana@example.com", rec))

	got, err := s.FindRecord(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Experience)

	// Returned records are copies.
	got.Experience = 999
	again, _ := s.FindRecord(ctx, "ana@example.com")
	assert.Equal(t, 2, again.Experience)

	// The backend holds one document keyed by user id.
	raw, found, err := kv.Get(ctx, KeyProgress)
	require.NoError(t, err)
	require.True(t, found)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "ana@example.com")
}

func TestStore_ReopenLoadsFromBackend(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := newStore(t, kv)

	rec := progress.NewRecord()
	rec.UpdateCourseProgress("c1", 100, 5, now, time.UTC)
	require.NoError(t, s.SaveRecord(ctx, "ana@example.com", rec))

	def, _ := progress.FindDefinition(progress.AchievementFirstCourse)
	require.NoError(t, s.AppendUnlock(ctx, progress.NewUnlock("u1", "ana@example.com", def, now)))

	reopened := newStore(t, kv)
	got, err := reopened.FindRecord(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, got.CoursesCompleted)
	assert.Equal(t, 2, got.Level)

	unlocks, err := reopened.ListUnlocks(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.Equal(t, progress.AchievementFirstCourse, unlocks[0].AchievementID)
}

func TestStore_FailedWriteKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := newStore(t, kv)

	rec := progress.NewRecord()
	rec.UpdateCourseProgress("c1", 50, 10, now, time.UTC)
	require.NoError(t, s.SaveRecord(ctx, "ana@example.com", rec))

	var failures int
	s.OnWriteFailure = func(string, error) { failures++ }
	kv.SetFailWrites(errors.New("disk full"))

	changed := rec.Clone()
	changed.UpdateCourseProgress("c1", 100, 10, now, time.UTC)
	err := s.SaveRecord(ctx, "ana@example.com", changed)

	require.Error(t, err)
	assert.True(t, shared.IsUnavailable(err))
	assert.Equal(t, 1, failures)

	got, err := s.FindRecord(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Empty(t, got.CoursesCompleted)
	assert.Equal(t, 2, got.Experience)

	// Nothing new reached the backend either.
	kv.SetFailWrites(nil)
	reopened := newStore(t, kv)
	persisted, _ := reopened.FindRecord(ctx, "ana@example.com")
	assert.Equal(t, 2, persisted.Experience)
}

func TestStore_WriteCircuitOpensAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := newStore(t, kv)
	kv.SetFailWrites(errors.New("connection reset"))

	rec := progress.NewRecord()
	for i := 0; i < 5; i++ {
		require.Error(t, s.SaveRecord(ctx, "ana@example.com", rec))
	}

	state, retryIn := s.WriteCircuit()
	assert.Equal(t, circuitbreaker.StateOpen, state)
	assert.Greater(t, retryIn, time.Duration(0))

	// While open, writes fail fast even if the backend recovered.
	kv.SetFailWrites(nil)
	err := s.SaveRecord(ctx, "ana@example.com", rec)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.True(t, shared.IsUnavailable(err))
}

func TestStore_AppendUnlockIsUniquePerUser(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, NewMemoryKV())
	def, _ := progress.FindDefinition(progress.AchievementNightOwl)

	require.NoError(t, s.AppendUnlock(ctx, progress.NewUnlock("1", "ana@example.com", def, now)))
	err := s.AppendUnlock(ctx, progress.NewUnlock("2", "ana@example.com", def, now))
	assert.ErrorIs(t, err, shared.ErrAlreadyUnlocked)
	assert.True(t, shared.IsAlreadyExists(err))

	require.NoError(t, s.AppendUnlock(ctx, progress.NewUnlock("3", "bob@example.com", def, now)))

	ana, _ := s.ListUnlocks(ctx, "ana@example.com")
	bob, _ := s.ListUnlocks(ctx, "bob@example.com")
	assert.Len(t, ana, 1)
	assert.Len(t, bob, 1)
}

func TestStore_ListUserIDsSorted(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, NewMemoryKV())

	for _, id := range []string{"zoe@x.io", "ana@x.io", "max@x.io"} {
		require.NoError(t, s.SaveRecord(ctx, id, progress.NewRecord()))
	}

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ana@x.io", "max@x.io", "zoe@x.io"}, ids)
}

func TestStore_CorruptDocumentFailsLoad(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, KeyProgress, []byte("{not json")))

	_, err := NewStore(ctx, kv, Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrCorruptDocument)
}

func TestStore_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, NewMemoryKV())

	assert.ErrorIs(t, s.SaveRecord(ctx, "", progress.NewRecord()), shared.ErrInvalidUserID)
	assert.ErrorIs(t, s.SaveRecord(ctx, "ana@x.io", nil), shared.ErrNothingToPersist)
}

func TestStore_ReloadSeesOtherProcessWrites(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	api := newStore(t, kv)
	worker := newStore(t, kv)

	rec := progress.NewRecord()
	rec.UpdateCourseProgress("c1", 50, 10, now, time.UTC)
	require.NoError(t, api.SaveRecord(ctx, "ana@example.com", rec))
	def, _ := progress.FindDefinition(progress.AchievementFirstCourse)
	require.NoError(t, api.AppendUnlock(ctx, progress.NewUnlock("u1", "ana@example.com", def, now)))

	ids, _ := worker.ListUserIDs(ctx)
	assert.Empty(t, ids)

	require.NoError(t, worker.Reload(ctx))
	ids, _ = worker.ListUserIDs(ctx)
	assert.Equal(t, []string{"ana@example.com"}, ids)
	got, err := worker.FindRecord(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Experience)
	unlocks, _ := worker.ListUnlocks(ctx, "ana@example.com")
	assert.Len(t, unlocks, 1)
}

func TestStore_ReloadKeepsStateOnCorruptDocument(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := newStore(t, kv)
	require.NoError(t, s.SaveRecord(ctx, "ana@example.com", progress.NewRecord()))

	require.NoError(t, kv.Set(ctx, KeyProgress, []byte("{")))
	err := s.Reload(ctx)
	assert.ErrorIs(t, err, shared.ErrCorruptDocument)

	ids, _ := s.ListUserIDs(ctx)
	assert.Equal(t, []string{"ana@example.com"}, ids)
}
