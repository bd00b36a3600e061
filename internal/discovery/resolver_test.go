package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/roomsync/internal/boards"
	perrors "github.com/p-blackswan/roomsync/internal/errors"
	"github.com/p-blackswan/roomsync/internal/monday"
)

type fakeQuerier struct {
	mu         sync.Mutex
	boards     map[string][]monday.BoardItem
	items      map[string]*monday.BoardItem
	boardErr   map[string]error
	boardCalls int
	itemCalls  int
}

func (f *fakeQuerier) QueryBoard(_ context.Context, boardID string) ([]monday.BoardItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boardCalls++
	if err := f.boardErr[boardID]; err != nil {
		return nil, err
	}
	return f.boards[boardID], nil
}

func (f *fakeQuerier) QueryItem(_ context.Context, itemID string) (*monday.BoardItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.itemCalls++
	item, ok := f.items[itemID]
	if !ok {
		return nil, perrors.ErrNotFound
	}
	return item, nil
}

func (f *fakeQuerier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.boardCalls + f.itemCalls
}

func linked(ids ...string) string {
	raw := `{"linkedPulseIds":[`
	for i, id := range ids {
		if i > 0 {
			raw += ","
		}
		raw += `{"linkedPulseId":` + id + `}`
	}
	return raw + `]}`
}

func overviewItem(id, status string) *monday.BoardItem {
	l := boards.DefaultLayout().ProjectOverview
	return &monday.BoardItem{
		ID:   id,
		Name: "Overview",
		Fields: []monday.ColumnValue{
			{ID: l.SyncStatus, Text: status},
			{ID: l.RoomInfoBoard, Text: "3001", RawValue: `"3001"`},
			{ID: l.PresentationBoard, Text: "4001", RawValue: `"4001"`},
			{ID: l.HelpRequestsBoard, Text: "5001", RawValue: `"5001"`},
			{ID: l.DashboardBoard, Text: "6001", RawValue: `"6001"`},
			{ID: l.ProjectID, Text: "P-77", RawValue: `"P-77"`},
			{ID: l.ProjectLogistics, Text: monday.NotAvailable, RawValue: monday.NotAvailable},
		},
	}
}

// newFixture builds a workspace with one syncing project whose room 9001 is
// assigned kit 555.
func newFixture() *fakeQuerier {
	layout := boards.DefaultLayout()
	return &fakeQuerier{
		boards: map[string][]monday.BoardItem{
			layout.ProjectsBoardID: {
				{ID: "p1", Name: "Broken project", Fields: []monday.ColumnValue{{ID: layout.Projects.ProjectBoardID, Text: monday.NotAvailable}}},
				{ID: "p2", Name: "Expo", Fields: []monday.ColumnValue{{ID: layout.Projects.ProjectBoardID, Text: "2001"}}},
			},
			"2001": {{ID: "overview-1", Name: "Overview"}},
			"3001": {
				{ID: "9000", Name: "Hall A", Fields: []monday.ColumnValue{{ID: layout.RoomInfo.KitAssigned, RawValue: linked("111")}}},
				{ID: "9001", Name: "Hall B", Fields: []monday.ColumnValue{{ID: layout.RoomInfo.KitAssigned, RawValue: linked("222", "555")}}},
			},
		},
		items: map[string]*monday.BoardItem{
			"overview-1": overviewItem("overview-1", "Syncing"),
		},
	}
}

func newResolver(q BoardQuerier, kit string) *Resolver {
	layout := boards.DefaultLayout()
	return NewResolver(q, layout, boards.KitMode(layout), kit, nil, zerolog.Nop())
}

func TestResolveFindsRoom(t *testing.T) {
	q := newFixture()
	r := newResolver(q, "555")

	cfg, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SyncedConfiguration{
		ProjectOverviewItemID:         "overview-1",
		RoomInfoBoardID:               "3001",
		PresentationManagementBoardID: "4001",
		HelpRequestsBoardID:           "5001",
		MyRoomID:                      "9001",
		DashboardBoardID:              "6001",
		ProjectID:                     "P-77",
	}, cfg)
	assert.True(t, cfg.Complete())
	assert.Equal(t, StateResolved, r.State())
}

func TestResolveIsIdempotent(t *testing.T) {
	q := newFixture()
	r := newResolver(q, "555")

	first, err := r.Resolve(context.Background())
	require.NoError(t, err)
	calls := q.calls()

	second, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, calls, q.calls(), "resolved discovery must not query again")
}

func TestResolveNotSyncing(t *testing.T) {
	q := newFixture()
	q.items["overview-1"] = overviewItem("overview-1", "Paused")
	r := newResolver(q, "555")

	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNotSyncing)
	assert.Equal(t, StateResolving, r.State())
}

func TestResolveNoMatchingKit(t *testing.T) {
	q := newFixture()
	r := newResolver(q, "999")

	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.Equal(t, StateResolving, r.State())
	_, ok := r.Configuration()
	assert.False(t, ok)
}

func TestResolveMissingKit(t *testing.T) {
	q := newFixture()
	r := newResolver(q, "")

	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, perrors.ErrMissingKit)
	assert.Zero(t, q.calls())
}

func TestResolveIncompleteConfiguration(t *testing.T) {
	q := newFixture()
	item := overviewItem("overview-1", "Syncing")
	// Drop the help requests board id.
	for i := range item.Fields {
		if item.Fields[i].ID == boards.DefaultLayout().ProjectOverview.HelpRequestsBoard {
			item.Fields[i].Text = monday.NotAvailable
			item.Fields[i].RawValue = monday.NotAvailable
		}
	}
	q.items["overview-1"] = item
	r := newResolver(q, "555")

	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.NotEqual(t, StateResolved, r.State())
}

func TestResolveTriesNextProject(t *testing.T) {
	q := newFixture()
	layout := boards.DefaultLayout()
	q.boards[layout.ProjectsBoardID] = append(
		[]monday.BoardItem{{ID: "p0", Fields: []monday.ColumnValue{{ID: layout.Projects.ProjectBoardID, Text: "1999"}}}},
		q.boards[layout.ProjectsBoardID]...,
	)
	// Board 1999 exists but has no items.
	q.boards["1999"] = nil
	r := newResolver(q, "555")

	cfg, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9001", cfg.MyRoomID)
}

func TestResolveRemoteFailure(t *testing.T) {
	q := newFixture()
	q.boardErr = map[string]error{boards.DefaultLayout().ProjectsBoardID: perrors.ErrUnavailable}
	r := newResolver(q, "555")

	_, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrUnavailable))
}

func TestResetForcesRediscovery(t *testing.T) {
	q := newFixture()
	r := newResolver(q, "555")

	_, err := r.Resolve(context.Background())
	require.NoError(t, err)

	r.Reset()
	assert.Equal(t, StateUnresolved, r.State())

	calls := q.calls()
	_, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Greater(t, q.calls(), calls)
}

// gatedQuerier blocks QueryBoard for one board until release is closed.
type gatedQuerier struct {
	*fakeQuerier
	board   string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedQuerier) QueryBoard(ctx context.Context, boardID string) ([]monday.BoardItem, error) {
	if boardID == g.board {
		close(g.entered)
		<-g.release
	}
	return g.fakeQuerier.QueryBoard(ctx, boardID)
}

func TestResetDuringWalkDiscardsResult(t *testing.T) {
	q := &gatedQuerier{
		fakeQuerier: newFixture(),
		board:       "3001",
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	r := newResolver(q, "555")

	type outcome struct {
		cfg SyncedConfiguration
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		cfg, err := r.Resolve(context.Background())
		done <- outcome{cfg, err}
	}()

	<-q.entered
	r.Reset()
	close(q.release)

	got := <-done
	require.Error(t, got.err)
	assert.ErrorIs(t, got.err, ErrReset)
	assert.ErrorIs(t, got.err, context.Canceled)
	assert.Empty(t, got.cfg.MyRoomID)

	_, ok := r.Configuration()
	assert.False(t, ok)
	assert.Equal(t, StateUnresolved, r.State())

	// A walk started after the reset commits normally.
	q.board = ""
	cfg, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9001", cfg.MyRoomID)
	assert.Equal(t, StateResolved, r.State())
}

func TestResolveSpeakerReadyMode(t *testing.T) {
	q := newFixture()
	layout := boards.DefaultLayout()
	q.boards["3001"] = []monday.BoardItem{
		{ID: "9100", Fields: []monday.ColumnValue{
			{ID: layout.RoomInfo.KitAssigned, RawValue: linked("555")},
			{ID: layout.RoomInfo.SpeakerReadyAssigned, RawValue: linked("808")},
		}},
	}
	r := NewResolver(q, layout, boards.SpeakerReadyMode(layout), "808", nil, zerolog.Nop())

	cfg, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.MyRoomID)
}

func TestSyncedConfigurationComplete(t *testing.T) {
	cfg := SyncedConfiguration{
		ProjectOverviewItemID:         "1",
		RoomInfoBoardID:               "2",
		PresentationManagementBoardID: "3",
		HelpRequestsBoardID:           "4",
	}
	assert.False(t, cfg.Complete())
	cfg.MyRoomID = "5"
	assert.True(t, cfg.Complete())
}
