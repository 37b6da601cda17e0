// Package retry re-runs progress-store writes with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// permanentError stops Do on the spot.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the inner error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Policy describes how often and how patiently to retry.
type Policy struct {
	// Attempts counts the first call. Values below 1 mean 1.
	Attempts int

	// Base is the delay after the first failure; it doubles each time up to Cap.
	Base time.Duration
	Cap  time.Duration

	// Jitter spreads each delay by +-Jitter*delay. 0 disables it.
	Jitter float64

	// ShouldRetry filters errors. Nil retries everything except
	// context errors.
	ShouldRetry func(error) bool

	// OnRetry is called before sleeping.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// StorePolicy is used around document-store writes.
func StorePolicy(onRetry func(attempt int, err error, delay time.Duration)) Policy {
	return Policy{
		Attempts: 3,
		Base:     50 * time.Millisecond,
		Cap:      time.Second,
		Jitter:   0.05,
		OnRetry:  onRetry,
	}
}

// Do calls op until it succeeds, fails permanently, runs out of attempts
// or ctx ends. The last error from op is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}

		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= attempts || !p.retryable(err) {
			return err
		}

		delay := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (p Policy) retryable(err error) bool {
	if p.ShouldRetry != nil {
		return p.ShouldRetry(err)
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Backoff is the delay after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.Base
	for i := 1; i < attempt && (p.Cap <= 0 || d < p.Cap); i++ {
		d *= 2
	}
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}
