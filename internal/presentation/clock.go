package presentation

import (
	"fmt"
	"strings"
	"time"
)

// clockLayouts are the accepted start/end time renderings, tried in order.
var clockLayouts = []string{
	"3:04 PM",
	"03:04 PM",
	"3:04PM",
	"15:04",
	"15:04:05",
}

// ParseClock parses a wall-clock time such as "9:30 AM" or "14:05" and anchors
// it to the calendar day of day in loc.
func ParseClock(text string, day time.Time, loc *time.Location) (time.Time, error) {
	s := strings.ToUpper(strings.TrimSpace(text))
	if s == "" || s == "N/A" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if loc == nil {
		loc = time.Local
	}

	for _, layout := range clockLayouts {
		clock, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		y, m, d := day.In(loc).Date()
		return time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", text)
}

// ParseDate parses a YYYY-MM-DD session date at midnight in loc.
func ParseDate(text string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout, strings.TrimSpace(text), loc)
}

// FormatClock renders t as "3:04 PM".
func FormatClock(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.Format("3:04 PM")
}

// Timeslot renders "3:04 PM - 3:30 PM".
func Timeslot(start, end time.Time) string {
	return FormatClock(start) + " - " + FormatClock(end)
}
