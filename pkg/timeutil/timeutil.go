// Package timeutil provides calendar helpers for a configurable learner timezone.
// Streaks, daily goals and the night-owl achievement are all evaluated against
// local calendar days, so every helper takes the location explicitly.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// FormatDate is the calendar-day key format (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// LoadLocation resolves an IANA name. Empty and "Local" both mean time.Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

func orLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}

// StartOfDay returns 00:00:00 of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(orLocal(loc))
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, l.Location())
}

// StartOfWeek returns Monday 00:00:00 of t's week in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	l := t.In(orLocal(loc))
	weekday := int(l.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(l.AddDate(0, 0, -(weekday-1)), loc)
}

// DateKey formats t's calendar day in loc as YYYY-MM-DD.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(orLocal(loc)).Format(FormatDate)
}

// IsSameDay checks if two instants fall on the same calendar day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	return DateKey(t1, loc) == DateKey(t2, loc)
}

// IsYesterday checks if t falls on the calendar day before now in loc.
func IsYesterday(t, now time.Time, loc *time.Location) bool {
	yesterday := now.In(orLocal(loc)).AddDate(0, 0, -1)
	return IsSameDay(t, yesterday, loc)
}

// ═══════════════════════════════════════════════════════════════════════════════
// CLOCK
// ═══════════════════════════════════════════════════════════════════════════════

// Clock abstracts the current instant so rules that depend on the wall clock
// can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock returns a settable instant. Safe for concurrent use.
type FixedClock struct {
	mu sync.RWMutex
	t  time.Time
}

// NewFixedClock creates a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now returns the frozen instant.
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
