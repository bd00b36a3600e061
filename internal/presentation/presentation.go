// Package presentation turns presentation board items into a sorted schedule
// and resolves the previous/current/next triple against the clock or a manual
// position.
package presentation

import "time"

// Flag is a Yes/No column value.
type Flag string

const (
	Yes Flag = "Yes"
	No  Flag = "No"
)

// FlagOf converts a boolean into a Flag.
func FlagOf(b bool) Flag {
	if b {
		return Yes
	}
	return No
}

// DateLayout is the session date format used by the board and the cache.
const DateLayout = "2006-01-02"

// Presentation is one scheduled session in a room. StartTime and EndTime are
// anchored to SessionDate in the configured location.
type Presentation struct {
	ID                   string
	Name                 string
	Presenter            string
	Designation          string
	SessionDate          string
	StartTime            time.Time
	EndTime              time.Time
	AllowDemo            Flag
	Record               Flag
	Stream               Flag
	StreamAddress        string
	FilePath             string
	PresenterPassword    string
	SpeakerReadyFilePath string
	RoomID               string
}

// Duration returns the scheduled length of the session.
func (p Presentation) Duration() time.Duration {
	return p.EndTime.Sub(p.StartTime)
}

// Contains reports whether t falls within [StartTime, EndTime).
func (p Presentation) Contains(t time.Time) bool {
	return !t.Before(p.StartTime) && t.Before(p.EndTime)
}

// Timeslot renders "3:04 PM - 3:30 PM".
func (p Presentation) Timeslot() string {
	return Timeslot(p.StartTime, p.EndTime)
}

// Triple is the resolved previous/current/next window. Indexes are zero-based
// positions in the resolved list, or -1 when the slot is empty.
type Triple struct {
	Previous *Presentation
	Current  *Presentation
	Next     *Presentation

	PreviousIndex int
	CurrentIndex  int
	NextIndex     int

	// Count is the length of the list the triple was resolved from.
	Count int

	// Completion is the elapsed percentage of Current, 0 when Current is nil.
	Completion float64
}

func emptyTriple(count int) Triple {
	return Triple{PreviousIndex: -1, CurrentIndex: -1, NextIndex: -1, Count: count}
}

// Position returns the 1-based manual position that keeps the displayed
// presentation when time mode is switched off.
func (t Triple) Position() int {
	switch {
	case t.CurrentIndex >= 0:
		return t.CurrentIndex + 1
	case t.NextIndex >= 0:
		return t.NextIndex + 1
	case t.Count > 0:
		return t.Count
	default:
		return 1
	}
}
