package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfWeek_Monday(t *testing.T) {
	loc := time.UTC

	sunday := time.Date(2024, 3, 17, 15, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, loc), StartOfWeek(sunday, loc))

	monday := time.Date(2024, 3, 18, 0, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 18, 0, 0, 0, 0, loc), StartOfWeek(monday, loc))
}

func TestIsSameDay_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)

	// 20:00 and 21:00 UTC are the same UTC day but different days at UTC+5.
	a := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	b := time.Date(2024, 3, 10, 19, 30, 0, 0, time.UTC)

	assert.True(t, IsSameDay(a, b, time.UTC))
	assert.False(t, IsSameDay(a, b, loc))
}

func TestIsYesterday(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 3, 1, 0, 10, 0, 0, loc)

	assert.True(t, IsYesterday(time.Date(2024, 2, 29, 23, 59, 0, 0, loc), now, loc))
	assert.False(t, IsYesterday(time.Date(2024, 2, 28, 12, 0, 0, 0, loc), now, loc))
	assert.False(t, IsYesterday(now, now, loc))
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = LoadLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = LoadLocation("Mars/Olympus")
	assert.Error(t, err)
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)

	assert.Equal(t, start, c.Now())
	c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), c.Now())
}
