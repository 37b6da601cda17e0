package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/pkg/timeutil"
)

type failingNotifier struct{ calls int }

func (f *failingNotifier) Show(context.Context, string, string, progress.Kind) error {
	f.calls++
	return errors.New("boom")
}

func TestInboxNotifier_PushAndDrain(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewFixedClock(time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC))
	inbox := NewMemoryInbox(0)
	n := NewInboxNotifier(inbox, clock)

	require.NoError(t, n.Show(ctx, "ana@example.com", "uno", progress.KindSuccess))
	require.NoError(t, n.Show(ctx, "ana@example.com", "dos", progress.KindAchievement))

	items, err := inbox.Drain(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "uno", items[0].Message)
	assert.Equal(t, "achievement", items[1].Kind)
	assert.NotEmpty(t, items[0].ID)
	assert.Equal(t, clock.Now(), items[0].CreatedAt)

	items, err = inbox.Drain(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryInbox_Capacity(t *testing.T) {
	ctx := context.Background()
	inbox := NewMemoryInbox(2)
	n := NewInboxNotifier(inbox, nil)

	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, n.Show(ctx, "u", msg, progress.KindInfo))
	}
	items, err := inbox.Drain(ctx, "u")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Message)
	assert.Equal(t, "c", items[1].Message)
}

func TestMemoryInbox_MarkOnce(t *testing.T) {
	ctx := context.Background()
	inbox := NewMemoryInbox(0)

	first, err := inbox.MarkOnce(ctx, "u", "2024-03-10")
	require.NoError(t, err)
	again, err := inbox.MarkOnce(ctx, "u", "2024-03-10")
	require.NoError(t, err)
	nextDay, err := inbox.MarkOnce(ctx, "u", "2024-03-11")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, again)
	assert.True(t, nextDay)
}

func TestFanoutNotifier_ContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	failing := &failingNotifier{}
	inbox := NewMemoryInbox(0)

	f := NewFanoutNotifier(failing, nil, NewInboxNotifier(inbox, nil), NewLogNotifier(nil))
	err := f.Show(ctx, "u", "hola", progress.KindInfo)

	assert.Error(t, err)
	assert.Equal(t, 1, failing.calls)
	items, _ := inbox.Drain(ctx, "u")
	assert.Len(t, items, 1)
}
