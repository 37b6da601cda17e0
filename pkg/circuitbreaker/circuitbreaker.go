// Package circuitbreaker fails progress-store writes fast while the backend
// is down, then lets a probe through after a cool-down.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	// ErrCircuitOpen is returned without calling fn while the circuit is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrProbeInFlight is returned in half-open state when the probe slot is taken.
	ErrProbeInFlight = errors.New("circuit breaker probe in flight")
)

// Config tunes a breaker. Zero fields take the defaults noted.
type Config struct {
	Name string

	// TripAfter consecutive failures open the circuit. Default 5.
	TripAfter int

	// CloseAfter consecutive half-open successes close it. Default 1.
	CloseAfter int

	// CoolDown is how long the circuit stays open. Default 30s.
	CoolDown time.Duration

	// Counts decides whether err is a backend failure. Default: any error.
	Counts func(err error) bool

	// OnStateChange is called with the lock held; keep it short.
	OnStateChange func(name string, from, to State)
}

// Stats is a snapshot of the counters.
type Stats struct {
	Requests            int
	Failures            int
	ConsecutiveFailures int
	Rejected            int
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	stats     Stats
	successes int
	openedAt  time.Time
	probing   bool
}

// New creates a closed breaker.
func New(cfg Config) *CircuitBreaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 5
	}
	if cfg.CloseAfter <= 0 {
		cfg.CloseAfter = 1
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// StoreBreaker is the breaker used in front of document-store writes.
// Cancellation comes from the caller and never trips it.
func StoreBreaker(name string, onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Config{
		Name:          name,
		TripAfter:     5,
		CloseAfter:    1,
		CoolDown:      10 * time.Second,
		OnStateChange: onStateChange,
		Counts: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	})
}

// Execute runs fn unless the circuit rejects it, and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.record(probe, err)
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.CoolDown {
		cb.transition(StateHalfOpen)
	}

	switch cb.state {
	case StateOpen:
		cb.stats.Rejected++
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.probing {
			cb.stats.Rejected++
			return false, ErrProbeInFlight
		}
		cb.probing = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	}
	cb.stats.Requests++

	failed := err != nil
	if failed && cb.cfg.Counts != nil {
		failed = cb.cfg.Counts(err)
	}

	if !failed {
		cb.stats.ConsecutiveFailures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.cfg.CloseAfter {
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.stats.Failures++
	cb.stats.ConsecutiveFailures++
	if cb.state == StateHalfOpen || cb.stats.ConsecutiveFailures >= cb.cfg.TripAfter {
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.successes = 0
	cb.stats.ConsecutiveFailures = 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current state. An open circuit whose cool-down has
// passed still reports open until the next request probes it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// RetryIn is how long until an open circuit admits a probe; zero otherwise.
func (cb *CircuitBreaker) RetryIn() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return 0
	}
	if d := cb.cfg.CoolDown - cb.now().Sub(cb.openedAt); d > 0 {
		return d
	}
	return 0
}

// Stats returns a snapshot of the counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stats
}
