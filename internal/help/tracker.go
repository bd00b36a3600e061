package help

import (
	"context"
	"fmt"
	"strings"

	"github.com/p-blackswan/roomsync/internal/boards"
	"github.com/p-blackswan/roomsync/internal/monday"
)

// BoardQuerier reads a board's items.
type BoardQuerier interface {
	QueryBoard(ctx context.Context, boardID string) ([]monday.BoardItem, error)
}

// Tracker checks the help requests board for a closed request.
type Tracker struct {
	client BoardQuerier
	table  boards.Table
	closed string
}

// NewTracker creates a tracker using the layout's help board columns.
func NewTracker(client BoardQuerier, layout boards.Layout) *Tracker {
	return &Tracker{
		client: client,
		table:  layout.HelpRequestsTable(),
		closed: layout.ClosedStatus,
	}
}

// IsClosed reports whether the board holds an item with the given timestamp
// whose status is closed.
func (t *Tracker) IsClosed(ctx context.Context, boardID, timestamp string) (bool, error) {
	if boardID == "" || timestamp == "" {
		return false, nil
	}
	items, err := t.client.QueryBoard(ctx, boardID)
	if err != nil {
		return false, fmt.Errorf("query help requests board %s: %w", boardID, err)
	}
	for _, item := range items {
		fields := t.table.Extract(item.Fields)
		if strings.TrimSpace(fields.Text(boards.KeyHelpTimestamp)) != timestamp {
			continue
		}
		if strings.EqualFold(fields.Text(boards.KeyHelpStatus), t.closed) {
			return true, nil
		}
	}
	return false, nil
}
