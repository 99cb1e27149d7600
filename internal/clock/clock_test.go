package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarTodayUsesCanonicalZone(t *testing.T) {
	fake := NewFakeClock(time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC))

	utc := NewCalendarIn(fake, time.UTC)
	assert.Equal(t, "2026-03-02", utc.Today())

	plus := NewCalendarIn(fake, time.FixedZone("UTC+2", 2*60*60))
	assert.Equal(t, "2026-03-03", plus.Today())

	fake.Advance(time.Hour)
	assert.Equal(t, "2026-03-03", utc.Today())
}

func TestDateArithmetic(t *testing.T) {
	next, err := AddDays("2026-02-28", 1)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", next)

	prev, err := AddDays("2026-01-01", -1)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-31", prev)

	days, err := DaysBetween("2026-03-01", "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, 3, days)

	_, err = DaysBetween("bad", "2026-03-04")
	assert.Error(t, err)
}
