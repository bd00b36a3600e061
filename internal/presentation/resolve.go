package presentation

import (
	"fmt"
	"math"
	"time"

	perrors "github.com/p-blackswan/roomsync/internal/errors"
)

// DefaultThreshold is the completion percentage past which the following
// presentation is treated as current.
const DefaultThreshold = 35.0

// CompletionPercent returns how much of p has elapsed at now, clamped to
// [0, 100] and rounded to two decimals.
func CompletionPercent(p Presentation, now time.Time) float64 {
	if now.Before(p.StartTime) {
		return 0
	}
	if !now.Before(p.EndTime) {
		return 100
	}
	total := p.EndTime.Sub(p.StartTime)
	if total <= 0 {
		return 100
	}
	pct := float64(now.Sub(p.StartTime)) / float64(total) * 100
	return math.Round(pct*100) / 100
}

// ResolveByTime picks the previous/current/next window for now from a list
// sorted by start time. When the current presentation is more than threshold
// percent complete and another follows, the following one becomes current.
func ResolveByTime(list []Presentation, now time.Time, threshold float64) Triple {
	t := emptyTriple(len(list))

	candidate := -1
	for i := range list {
		p := list[i]
		if p.Contains(now) {
			candidate = i
			t.PreviousIndex = i - 1
			t.NextIndex = i + 1
			break
		}
		if p.StartTime.After(now) {
			t.NextIndex = i
			t.PreviousIndex = i - 1
			break
		}
		t.PreviousIndex = i
	}

	if candidate >= 0 {
		t.CurrentIndex = candidate
		if candidate+1 < len(list) && CompletionPercent(list[candidate], now) > threshold {
			t.PreviousIndex = candidate
			t.CurrentIndex = candidate + 1
			t.NextIndex = candidate + 2
		}
	}

	return t.fill(list, now)
}

// ResolveByPosition picks the window around a 1-based position. Positions
// outside [1, len(list)] are reported, not clamped.
func ResolveByPosition(list []Presentation, position int, now time.Time) (Triple, error) {
	if position < 1 || position > len(list) {
		return emptyTriple(len(list)), fmt.Errorf("position %d of %d: %w", position, len(list), perrors.ErrOutOfRange)
	}
	t := emptyTriple(len(list))
	t.PreviousIndex = position - 2
	t.CurrentIndex = position - 1
	t.NextIndex = position
	return t.fill(list, now), nil
}

// ClampPosition bounds a manual position to [1, n]. An empty list yields 1.
func ClampPosition(position, n int) int {
	if n < 1 || position < 1 {
		return 1
	}
	if position > n {
		return n
	}
	return position
}

// fill resolves the indexes into presentation pointers, clearing any index
// that falls outside the list.
func (t Triple) fill(list []Presentation, now time.Time) Triple {
	at := func(idx *int) *Presentation {
		if *idx < 0 || *idx >= len(list) {
			*idx = -1
			return nil
		}
		p := list[*idx]
		return &p
	}
	t.Previous = at(&t.PreviousIndex)
	t.Current = at(&t.CurrentIndex)
	t.Next = at(&t.NextIndex)
	if t.Current != nil {
		t.Completion = CompletionPercent(*t.Current, now)
	}
	return t
}
