// Package discovery finds the project, room and boards that belong to the
// configured kit by walking the projects board.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/roomsync/internal/boards"
	perrors "github.com/p-blackswan/roomsync/internal/errors"
	"github.com/p-blackswan/roomsync/internal/metrics"
	"github.com/p-blackswan/roomsync/internal/monday"
)

var (
	// ErrNotSyncing means the candidate project overview is not in the
	// syncing state. The whole discovery cycle stops until the next tick.
	ErrNotSyncing = errors.New("project not in syncing state")

	// ErrNoMatch means no project lists a room assigned to the kit.
	ErrNoMatch = errors.New("no room assigned to kit")

	// ErrReset means Reset ran while a walk was in flight and its result
	// was discarded.
	ErrReset = errors.New("discovery reset during walk")
)

// State is the discovery state machine position.
type State string

const (
	StateUnresolved State = "unresolved"
	StateResolving  State = "resolving"
	StateResolved   State = "resolved"
)

// BoardQuerier is the subset of the remote client used by discovery.
type BoardQuerier interface {
	QueryBoard(ctx context.Context, boardID string) ([]monday.BoardItem, error)
	QueryItem(ctx context.Context, itemID string) (*monday.BoardItem, error)
}

// SyncedConfiguration is the set of ids a resolved kit syncs against.
type SyncedConfiguration struct {
	ProjectOverviewItemID         string `json:"project_overview_item_id"`
	RoomInfoBoardID               string `json:"room_info_board_id"`
	PresentationManagementBoardID string `json:"presentation_management_board_id"`
	HelpRequestsBoardID           string `json:"help_requests_board_id"`
	MyRoomID                      string `json:"my_room_id"`

	DashboardBoardID        string `json:"dashboard_board_id,omitempty"`
	ProjectID               string `json:"project_id,omitempty"`
	ProjectLogisticsBoardID string `json:"project_logistics_board_id,omitempty"`
}

// Complete reports whether every required id is present.
func (c SyncedConfiguration) Complete() bool {
	return c.ProjectOverviewItemID != "" &&
		c.RoomInfoBoardID != "" &&
		c.PresentationManagementBoardID != "" &&
		c.HelpRequestsBoardID != "" &&
		c.MyRoomID != ""
}

// Resolver runs discovery and caches the result once resolved.
type Resolver struct {
	client  BoardQuerier
	layout  boards.Layout
	mode    boards.Mode
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu       sync.Mutex
	kitID    string
	state    State
	resolved SyncedConfiguration
	gen      uint64 // bumped by Reset
}

// NewResolver creates a resolver for the given kit (or speaker-ready) id.
func NewResolver(client BoardQuerier, layout boards.Layout, mode boards.Mode, kitID string, m *metrics.Metrics, logger zerolog.Logger) *Resolver {
	return &Resolver{
		client:  client,
		layout:  layout,
		mode:    mode,
		metrics: m,
		kitID:   strings.TrimSpace(kitID),
		state:   StateUnresolved,
		logger:  logger.With().Str("component", "discovery").Logger(),
	}
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Configuration returns the resolved configuration, if any.
func (r *Resolver) Configuration() (SyncedConfiguration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved, r.state == StateResolved
}

// SetKit changes the kit id. A resolved configuration is kept.
func (r *Resolver) SetKit(kitID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kitID = strings.TrimSpace(kitID)
}

// Reset discards the resolved configuration.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateUnresolved
	r.resolved = SyncedConfiguration{}
	r.gen++
	r.logger.Info().Msg("discovery reset")
}

// Resolve returns the synced configuration, walking the boards when it is not
// yet resolved. Once resolved no remote calls are made.
func (r *Resolver) Resolve(ctx context.Context) (SyncedConfiguration, error) {
	r.mu.Lock()
	if r.state == StateResolved {
		cfg := r.resolved
		r.mu.Unlock()
		return cfg, nil
	}
	kitID := r.kitID
	gen := r.gen
	r.state = StateResolving
	r.mu.Unlock()

	if kitID == "" {
		r.metrics.RecordDiscovery("config_error")
		return SyncedConfiguration{}, perrors.ErrMissingKit
	}

	cfg, err := r.discover(ctx, kitID)
	if err != nil {
		r.metrics.RecordDiscovery(resultLabel(err))
		return SyncedConfiguration{}, err
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		r.metrics.RecordDiscovery("reset")
		r.logger.Info().Str("room", cfg.MyRoomID).Msg("discarding discovery result after reset")
		return SyncedConfiguration{}, fmt.Errorf("%w: %w", ErrReset, context.Canceled)
	}
	r.state = StateResolved
	r.resolved = cfg
	r.mu.Unlock()

	r.metrics.RecordDiscovery("resolved")
	r.logger.Info().
		Str("project_overview", cfg.ProjectOverviewItemID).
		Str("room", cfg.MyRoomID).
		Str("presentations_board", cfg.PresentationManagementBoardID).
		Msg("discovery resolved")
	return cfg, nil
}

func (r *Resolver) discover(ctx context.Context, kitID string) (SyncedConfiguration, error) {
	projects, err := r.client.QueryBoard(ctx, r.layout.ProjectsBoardID)
	if err != nil {
		return SyncedConfiguration{}, fmt.Errorf("query projects board: %w", err)
	}
	if len(projects) == 0 {
		r.logger.Warn().Str("board", r.layout.ProjectsBoardID).Msg("no projects found")
		return SyncedConfiguration{}, ErrNoMatch
	}

	projectTable := r.layout.ProjectsTable()
	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return SyncedConfiguration{}, err
		}

		boardID := projectTable.Extract(project.Fields).Value(boards.KeyProjectBoardID)
		if !boards.IsNumericID(boardID) {
			r.logger.Debug().Str("project", project.ID).Str("board", boardID).Msg("skipping project without board id")
			continue
		}

		cfg, err := r.tryProject(ctx, boardID, kitID)
		switch {
		case err == nil:
			return cfg, nil
		case errors.Is(err, ErrNoMatch):
			continue
		default:
			return SyncedConfiguration{}, err
		}
	}

	r.logger.Warn().Str("kit", kitID).Msg("no project assigns a room to this kit")
	return SyncedConfiguration{}, ErrNoMatch
}

// tryProject checks one project overview board. ErrNoMatch lets the caller
// move on to the next project; any other error ends the cycle.
func (r *Resolver) tryProject(ctx context.Context, boardID, kitID string) (SyncedConfiguration, error) {
	items, err := r.client.QueryBoard(ctx, boardID)
	if err != nil {
		return SyncedConfiguration{}, fmt.Errorf("query project board %s: %w", boardID, err)
	}
	if len(items) == 0 {
		r.logger.Warn().Str("board", boardID).Msg("project board has no items")
		return SyncedConfiguration{}, ErrNoMatch
	}

	overview, err := r.client.QueryItem(ctx, items[0].ID)
	if err != nil {
		return SyncedConfiguration{}, fmt.Errorf("query project overview %s: %w", items[0].ID, err)
	}

	fields := r.layout.ProjectOverviewTable().Extract(overview.Fields)
	if status := fields.Text(boards.KeySyncStatus); status != r.layout.SyncingStatus {
		r.logger.Warn().Str("item", overview.ID).Str("status", status).Msg("project not syncing")
		return SyncedConfiguration{}, ErrNotSyncing
	}

	cfg := SyncedConfiguration{
		ProjectOverviewItemID:         items[0].ID,
		RoomInfoBoardID:               fields.Value(boards.KeyRoomInfoBoard),
		PresentationManagementBoardID: fields.Value(boards.KeyPresentationBoard),
		HelpRequestsBoardID:           fields.Value(boards.KeyHelpRequestsBoard),
		DashboardBoardID:              fields.Value(boards.KeyDashboardBoard),
		ProjectID:                     fields.Value(boards.KeyProjectID),
		ProjectLogisticsBoardID:       fields.Value(boards.KeyProjectLogistics),
	}

	if !boards.IsNumericID(cfg.RoomInfoBoardID) {
		r.logger.Warn().Str("item", overview.ID).Str("room_info", cfg.RoomInfoBoardID).Msg("invalid room info board id")
		return SyncedConfiguration{}, ErrNoMatch
	}

	roomID, err := r.findRoom(ctx, cfg.RoomInfoBoardID, kitID)
	if err != nil {
		return SyncedConfiguration{}, err
	}
	cfg.MyRoomID = roomID

	if !cfg.Complete() {
		r.logger.Warn().Interface("config", cfg).Msg("matched room but configuration is incomplete")
		return SyncedConfiguration{}, ErrNoMatch
	}
	return cfg, nil
}

func (r *Resolver) findRoom(ctx context.Context, roomInfoBoardID, kitID string) (string, error) {
	rooms, err := r.client.QueryBoard(ctx, roomInfoBoardID)
	if err != nil {
		return "", fmt.Errorf("query room info board %s: %w", roomInfoBoardID, err)
	}

	var assigned []string
	for _, room := range rooms {
		ids := r.mode.RoomInfo.Extract(room.Fields).LinkedIDs(boards.KeyAssignedTerminals)
		assigned = append(assigned, ids...)
		for _, id := range ids {
			if id == kitID {
				r.logger.Info().Str("room", room.ID).Str("kit", kitID).Msg("matched room")
				return room.ID, nil
			}
		}
	}

	r.logger.Debug().Strs("assigned", assigned).Str("kit", kitID).Msg("kit not assigned on room info board")
	return "", ErrNoMatch
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotSyncing):
		return "not_syncing"
	case errors.Is(err, ErrNoMatch):
		return "no_match"
	case perrors.IsConfiguration(err):
		return "config_error"
	default:
		return "error"
	}
}
