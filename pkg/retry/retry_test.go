package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fast = Policy{Attempts: 3, Base: time.Millisecond}

func TestPolicy_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := fast.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_PermanentStopsImmediately(t *testing.T) {
	base := errors.New("bad input")
	calls := 0
	err := fast.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(base)
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, base, err)
}

func TestPolicy_ExhaustsAttempts(t *testing.T) {
	base := errors.New("down")
	calls := 0
	p := fast
	p.Attempts = 4
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return base
	})

	assert.Equal(t, 4, calls)
	assert.Equal(t, base, err)
}

func TestPolicy_ShouldRetryFilters(t *testing.T) {
	calls := 0
	p := fast
	p.ShouldRetry = func(error) bool { return false }
	_ = p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("x")
	})
	assert.Equal(t, 1, calls)
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Cap: 300 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(10))
}

func TestStorePolicy_RetriesPlainErrors(t *testing.T) {
	retries := 0
	calls := 0
	p := StorePolicy(func(int, error, time.Duration) { retries++ })
	p.Base = time.Millisecond

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("disk busy")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, retries)
}

func TestStorePolicy_DoesNotRetryCancellation(t *testing.T) {
	calls := 0
	err := StorePolicy(nil).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
