package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule fires every Interval. With a window set it only fires
// between FromHour (inclusive) and ToHour (exclusive) in the location of
// the time passed to Next; outside the window it waits for FromHour.
type IntervalSchedule struct {
	Interval time.Duration
	FromHour int
	ToHour   int
}

// NewIntervalSchedule fires around the clock. Intervals below one second
// are raised to one second.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return NewWindowSchedule(interval, 0, 24)
}

// NewWindowSchedule fires every interval between fromHour and toHour.
// Out-of-range hours are clamped to [0, 24]; an empty window means all day.
func NewWindowSchedule(interval time.Duration, fromHour, toHour int) *IntervalSchedule {
	if interval < time.Second {
		interval = time.Second
	}
	fromHour = min(max(fromHour, 0), 24)
	toHour = min(max(toHour, 0), 24)
	if fromHour >= toHour {
		fromHour, toHour = 0, 24
	}
	return &IntervalSchedule{Interval: interval, FromHour: fromHour, ToHour: toHour}
}

// Next returns t+Interval, moved into the window when needed.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	next := t.Add(s.Interval)
	if s.FromHour == 0 && s.ToHour == 24 {
		return next
	}

	y, m, d := next.Date()
	open := time.Date(y, m, d, s.FromHour, 0, 0, 0, next.Location())
	switch h := next.Hour(); {
	case h < s.FromHour:
		return open
	case h >= s.ToHour:
		return open.AddDate(0, 0, 1)
	}
	return next
}

func (s *IntervalSchedule) String() string {
	if s.FromHour == 0 && s.ToHour == 24 {
		return fmt.Sprintf("@every %s", s.Interval)
	}
	return fmt.Sprintf("@every %s between %02d:00-%02d:00", s.Interval, s.FromHour, s.ToHour)
}
