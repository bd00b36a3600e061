package presentation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, loc)

	tests := []struct {
		in           string
		hour, minute int
	}{
		{"9:30 AM", 9, 30},
		{"09:30 AM", 9, 30},
		{"12:00 AM", 0, 0},
		{"12:15 PM", 12, 15},
		{"1:05 pm", 13, 5},
		{"4:45PM", 16, 45},
		{"14:05", 14, 5},
		{" 08:00 ", 8, 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in, day, loc)
			require.NoError(t, err)
			assert.Equal(t, time.Date(2026, 3, 14, tt.hour, tt.minute, 0, 0, loc), got)
		})
	}
}

func TestParseClockRejects(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"", "N/A", "noon", "25:00", "9.30"} {
		_, err := ParseClock(in, day, time.UTC)
		assert.Error(t, err, in)
	}
}

func TestParseClockAnchorsToLocalDay(t *testing.T) {
	loc := time.FixedZone("AEST", 10*3600)
	// 20:00 UTC on the 13th is already the 14th in loc.
	day := time.Date(2026, 3, 13, 20, 0, 0, 0, time.UTC)

	got, err := ParseClock("9:00 AM", day, loc)
	require.NoError(t, err)
	assert.Equal(t, 14, got.Day())
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "9:05 AM", FormatClock(time.Date(2026, 1, 1, 9, 5, 0, 0, time.UTC)))
	assert.Equal(t, "12:00 PM", FormatClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "12:30 AM", FormatClock(time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)))
	assert.Equal(t, "Unknown", FormatClock(time.Time{}))
}

func TestTimeslot(t *testing.T) {
	start := time.Date(2026, 1, 1, 15, 4, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, "3:04 PM - 3:30 PM", Timeslot(start, end))
}
