package presentation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/roomsync/internal/errors"
)

var testDay = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return testDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func session(id string, startH, startM, endH, endM int) Presentation {
	return Presentation{
		ID:          id,
		Name:        id,
		SessionDate: testDay.Format(DateLayout),
		StartTime:   at(startH, startM),
		EndTime:     at(endH, endM),
		AllowDemo:   No,
		Record:      No,
		Stream:      No,
	}
}

func twoSessions() []Presentation {
	return []Presentation{
		session("A", 9, 0, 9, 30),
		session("B", 9, 30, 10, 0),
	}
}

func TestResolveByTimeSkipsNearlyFinished(t *testing.T) {
	triple := ResolveByTime(twoSessions(), at(9, 28), 35)

	require.NotNil(t, triple.Current)
	require.NotNil(t, triple.Previous)
	assert.Equal(t, "B", triple.Current.ID)
	assert.Equal(t, "A", triple.Previous.ID)
	assert.Nil(t, triple.Next)
	assert.Equal(t, 1, triple.CurrentIndex)
	assert.Equal(t, -1, triple.NextIndex)
	assert.Equal(t, 0.0, triple.Completion)
}

func TestResolveByTimeBelowThreshold(t *testing.T) {
	triple := ResolveByTime(twoSessions(), at(9, 10), 35)

	require.NotNil(t, triple.Current)
	assert.Equal(t, "A", triple.Current.ID)
	assert.Nil(t, triple.Previous)
	require.NotNil(t, triple.Next)
	assert.Equal(t, "B", triple.Next.ID)
	assert.Equal(t, 33.33, triple.Completion)
}

func TestResolveByTimeLastSessionNeverSkips(t *testing.T) {
	triple := ResolveByTime(twoSessions(), at(9, 55), 35)

	require.NotNil(t, triple.Current)
	assert.Equal(t, "B", triple.Current.ID)
	assert.Equal(t, "A", triple.Previous.ID)
	assert.Nil(t, triple.Next)
}

func TestResolveByTimeBeforeFirst(t *testing.T) {
	triple := ResolveByTime(twoSessions(), at(8, 0), 35)

	assert.Nil(t, triple.Previous)
	assert.Nil(t, triple.Current)
	require.NotNil(t, triple.Next)
	assert.Equal(t, "A", triple.Next.ID)
	assert.Equal(t, 1, triple.Position())
}

func TestResolveByTimeGap(t *testing.T) {
	list := []Presentation{
		session("A", 9, 0, 9, 30),
		session("B", 10, 0, 10, 30),
		session("C", 11, 0, 11, 30),
	}
	triple := ResolveByTime(list, at(9, 45), 35)

	assert.Nil(t, triple.Current)
	assert.Equal(t, "A", triple.Previous.ID)
	assert.Equal(t, "B", triple.Next.ID)
	assert.Equal(t, 2, triple.Position())
}

func TestResolveByTimeAfterLast(t *testing.T) {
	triple := ResolveByTime(twoSessions(), at(12, 0), 35)

	assert.Nil(t, triple.Current)
	assert.Nil(t, triple.Next)
	require.NotNil(t, triple.Previous)
	assert.Equal(t, "B", triple.Previous.ID)
	assert.Equal(t, 2, triple.Position())
}

func TestResolveByTimeEmpty(t *testing.T) {
	triple := ResolveByTime(nil, at(9, 0), 35)

	assert.Nil(t, triple.Previous)
	assert.Nil(t, triple.Current)
	assert.Nil(t, triple.Next)
	assert.Equal(t, 1, triple.Position())
}

func TestResolveByTimeContainsExactlyOne(t *testing.T) {
	list := []Presentation{
		session("A", 9, 0, 9, 30),
		session("B", 9, 30, 10, 0),
		session("C", 10, 0, 10, 30),
	}
	for _, tt := range []struct {
		now  time.Time
		want string
	}{
		{at(9, 0), "A"},
		{at(9, 30), "B"},
		{at(10, 5), "C"},
		{at(10, 29), "C"},
	} {
		// A threshold of 100 disables the skip rule.
		triple := ResolveByTime(list, tt.now, 100)
		require.NotNil(t, triple.Current, tt.now.String())
		assert.Equal(t, tt.want, triple.Current.ID, tt.now.String())
	}
}

func TestCompletionPercent(t *testing.T) {
	p := session("A", 9, 0, 9, 30)

	assert.Equal(t, 0.0, CompletionPercent(p, at(8, 59)))
	assert.Equal(t, 0.0, CompletionPercent(p, at(9, 0)))
	assert.Equal(t, 50.0, CompletionPercent(p, at(9, 15)))
	assert.Equal(t, 93.33, CompletionPercent(p, at(9, 28)))
	assert.Equal(t, 100.0, CompletionPercent(p, at(9, 30)))
	assert.Equal(t, 100.0, CompletionPercent(p, at(11, 0)))
}

func TestCompletionPercentMonotonic(t *testing.T) {
	p := session("A", 9, 0, 10, 0)

	last := -1.0
	for now := at(8, 50); now.Before(at(10, 10)); now = now.Add(37 * time.Second) {
		pct := CompletionPercent(p, now)
		assert.GreaterOrEqual(t, pct, last)
		assert.GreaterOrEqual(t, pct, 0.0)
		assert.LessOrEqual(t, pct, 100.0)
		last = pct
	}
}

func TestResolveByPosition(t *testing.T) {
	list := []Presentation{
		session("A", 9, 0, 9, 30),
		session("B", 9, 30, 10, 0),
		session("C", 10, 0, 10, 30),
	}

	first, err := ResolveByPosition(list, 1, at(8, 0))
	require.NoError(t, err)
	assert.Nil(t, first.Previous)
	assert.Equal(t, "A", first.Current.ID)
	assert.Equal(t, "B", first.Next.ID)

	middle, err := ResolveByPosition(list, 2, at(8, 0))
	require.NoError(t, err)
	assert.Equal(t, "A", middle.Previous.ID)
	assert.Equal(t, "B", middle.Current.ID)
	assert.Equal(t, "C", middle.Next.ID)
	assert.Equal(t, 2, middle.Position())

	last, err := ResolveByPosition(list, 3, at(8, 0))
	require.NoError(t, err)
	assert.Equal(t, "B", last.Previous.ID)
	assert.Equal(t, "C", last.Current.ID)
	assert.Nil(t, last.Next)
}

func TestResolveByPositionOutOfRange(t *testing.T) {
	list := twoSessions()

	_, err := ResolveByPosition(list, 0, at(9, 0))
	assert.ErrorIs(t, err, perrors.ErrOutOfRange)

	_, err = ResolveByPosition(list, 3, at(9, 0))
	assert.ErrorIs(t, err, perrors.ErrOutOfRange)

	_, err = ResolveByPosition(nil, 1, at(9, 0))
	assert.ErrorIs(t, err, perrors.ErrOutOfRange)
}

func TestPositionSeedsFromTimeResolution(t *testing.T) {
	list := []Presentation{
		session("A", 9, 0, 9, 30),
		session("B", 9, 30, 10, 0),
		session("C", 10, 0, 10, 30),
	}
	now := at(9, 40)

	byTime := ResolveByTime(list, now, 35)
	byPos, err := ResolveByPosition(list, byTime.Position(), now)
	require.NoError(t, err)
	assert.Equal(t, byTime.Current.ID, byPos.Current.ID)
}

func TestClampPosition(t *testing.T) {
	assert.Equal(t, 1, ClampPosition(0, 3))
	assert.Equal(t, 2, ClampPosition(2, 3))
	assert.Equal(t, 3, ClampPosition(7, 3))
	assert.Equal(t, 1, ClampPosition(4, 0))
}
