// Package syncer drives discovery and the periodic presentation sync, and
// implements the host actions and feedbacks on top of the session state.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/roomsync/internal/boards"
	"github.com/p-blackswan/roomsync/internal/cache"
	"github.com/p-blackswan/roomsync/internal/discovery"
	perrors "github.com/p-blackswan/roomsync/internal/errors"
	"github.com/p-blackswan/roomsync/internal/help"
	"github.com/p-blackswan/roomsync/internal/metrics"
	"github.com/p-blackswan/roomsync/internal/presentation"
	"github.com/p-blackswan/roomsync/internal/variables"
)

// Resolver is the discovery state machine.
type Resolver interface {
	Resolve(ctx context.Context) (discovery.SyncedConfiguration, error)
	Configuration() (discovery.SyncedConfiguration, bool)
	State() discovery.State
	Reset()
	SetKit(kitID string)
}

// PresentationSource fetches a room's schedule.
type PresentationSource interface {
	GetPresentations(ctx context.Context, boardID, roomID string) ([]presentation.Presentation, error)
}

// CacheStore persists the last schedule.
type CacheStore interface {
	Write(list []presentation.Presentation, meta cache.Metadata) error
	Read() (*cache.Snapshot, error)
	Clear() error
}

// HelpTracker checks whether a help request was closed on the board.
type HelpTracker interface {
	IsClosed(ctx context.Context, boardID, timestamp string) (bool, error)
}

// Settings are the reloadable tunables.
type Settings struct {
	KitID             string
	PollingInterval   time.Duration
	DiscoveryInterval time.Duration
	Threshold         float64
	HelpGroup         string
	HelpCrew          string
	NotifyTimeout     time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.PollingInterval <= 0 {
		s.PollingInterval = 30 * time.Minute
	}
	if s.DiscoveryInterval <= 0 {
		s.DiscoveryInterval = 10 * time.Second
	}
	if s.NotifyTimeout <= 0 {
		s.NotifyTimeout = 10 * time.Second
	}
	return s
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Resolver  Resolver
	Fetcher   PresentationSource
	Cache     CacheStore
	Variables variables.Store
	Help      HelpTracker
	Notifier  help.Notifier
	Mode      boards.Mode
	Location  *time.Location
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// Orchestrator owns the session and its timers.
type Orchestrator struct {
	resolver Resolver
	fetcher  PresentationSource
	cache    CacheStore
	vars     variables.Store
	help     HelpTracker
	notifier help.Notifier
	mode     boards.Mode
	loc      *time.Location
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time

	settingsMu sync.RWMutex
	settings   Settings

	session *Session

	// cycleMu serialises sync cycles so a forced sync waits for a running one.
	cycleMu sync.Mutex
	// actionMu serialises host actions.
	actionMu sync.Mutex

	runMu   sync.Mutex
	rootCtx context.Context
	timers  []*Ticker
	helpWG  sync.WaitGroup
}

// New creates an orchestrator. Call Start to begin discovery.
func New(deps Deps, settings Settings) *Orchestrator {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	return &Orchestrator{
		resolver: deps.Resolver,
		fetcher:  deps.Fetcher,
		cache:    deps.Cache,
		vars:     deps.Variables,
		help:     deps.Help,
		notifier: deps.Notifier,
		mode:     deps.Mode,
		loc:      loc,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With().Str("component", "syncer").Logger(),
		now:      time.Now,
		settings: settings.withDefaults(),
		session:  newSession(),
		rootCtx:  context.Background(),
	}
}

// SetClock overrides the wall clock.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Settings returns the current settings.
func (o *Orchestrator) Settings() Settings {
	o.settingsMu.RLock()
	defer o.settingsMu.RUnlock()
	return o.settings
}

// Start publishes the default variables, restores persisted toggles and
// starts the discovery timer.
func (o *Orchestrator) Start(ctx context.Context) {
	o.runMu.Lock()
	o.rootCtx = ctx
	o.runMu.Unlock()

	s := o.session
	s.mu.Lock()
	s.autoSync = variables.GetOr(o.vars, variables.AutoSync, variables.Enabled) == variables.Enabled
	s.timeMode = variables.GetOr(o.vars, variables.TimeMode, variables.Enabled) == variables.Enabled
	if pos, err := strconv.Atoi(variables.GetOr(o.vars, variables.ManualPosition, "1")); err == nil && pos > 0 {
		s.position = pos
	}
	values := variables.Defaults()
	values[variables.AutoSync] = boolToggle(s.autoSync)
	values[variables.TimeMode] = boolToggle(s.timeMode)
	values[variables.ManualPosition] = strconv.Itoa(s.position)
	s.mu.Unlock()

	o.vars.SetMany(values)
	o.startDiscovery()

	o.logger.Info().
		Str("mode", o.mode.Name).
		Dur("polling_interval", o.Settings().PollingInterval).
		Msg("orchestrator started")
}

// Stop cancels both timers.
func (o *Orchestrator) Stop() {
	if t := o.session.swapDiscoveryTimer(nil); t != nil {
		t.Stop()
	}
	if t := o.session.swapSyncTimer(nil); t != nil {
		t.Stop()
	}
	o.logger.Info().Msg("orchestrator stopped")
}

// Wait blocks until in-flight timer runs and help notifications finish. Call
// it after Stop.
func (o *Orchestrator) Wait() {
	o.runMu.Lock()
	timers := o.timers
	o.timers = nil
	o.runMu.Unlock()
	for _, t := range timers {
		t.Wait()
	}
	o.helpWG.Wait()
}

// track remembers t so Wait can drain its in-flight run after a swap.
func (o *Orchestrator) track(t *Ticker) {
	o.runMu.Lock()
	o.timers = append(o.timers, t)
	o.runMu.Unlock()
}

func (o *Orchestrator) context() context.Context {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return o.rootCtx
}

// startDiscovery replaces the discovery timer. The session lock is held while
// the timer is installed so its first run sees itself as the active timer.
func (o *Orchestrator) startDiscovery() {
	interval := o.Settings().DiscoveryInterval
	ctx := o.context()

	s := o.session
	s.mu.Lock()
	old := s.discoveryTimer
	s.discoveryTimer = Every(ctx, "discovery", interval, o.discoveryTick, o.logger)
	o.track(s.discoveryTimer)
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
}

func (o *Orchestrator) startSync() {
	interval := o.Settings().PollingInterval
	ctx := o.context()

	s := o.session
	s.mu.Lock()
	old := s.syncTimer
	s.syncTimer = Every(ctx, "sync", interval, func(ctx context.Context) {
		o.SyncEvent(ctx, false)
	}, o.logger)
	o.track(s.syncTimer)
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	o.logger.Info().Dur("interval", interval).Msg("sync timer started")
}

func (o *Orchestrator) discoveryTick(ctx context.Context) {
	cfg, err := o.resolver.Resolve(ctx)
	if err != nil {
		o.vars.SetMany(map[string]string{variables.DiscoveryState: string(o.resolver.State())})
		switch {
		case errors.Is(err, discovery.ErrNoMatch), errors.Is(err, discovery.ErrNotSyncing):
			o.logger.Info().Err(err).Msg("discovery not resolved yet")
		case perrors.IsConfiguration(err):
			o.logger.Error().Err(err).Msg("discovery cannot run")
			o.setStatus(variables.StatusFailed)
		case errors.Is(err, context.Canceled):
		default:
			o.logger.Warn().Err(err).Msg("discovery failed")
		}
		return
	}

	// Another tick or a reset may already have handled this.
	if t := o.session.swapDiscoveryTimer(nil); t != nil {
		t.Stop()
	} else {
		return
	}

	o.vars.SetMany(map[string]string{
		variables.SyncedProjectItem:   cfg.ProjectOverviewItemID,
		variables.SyncedRoomInfo:      cfg.RoomInfoBoardID,
		variables.SyncedPresentations: cfg.PresentationManagementBoardID,
		variables.SyncedHelpRequests:  cfg.HelpRequestsBoardID,
		variables.MyRoom:              cfg.MyRoomID,
		variables.DiscoveryState:      string(discovery.StateResolved),
	})
	o.startSync()
}

// ReportFailure is installed as the board client's failure reporter.
func (o *Orchestrator) ReportFailure(operation string, err error) {
	o.logger.Debug().Err(err).Str("operation", operation).Msg("remote failure reported")
	o.setStatus(variables.StatusFailed)
}

func (o *Orchestrator) setStatus(status string) {
	o.session.mu.Lock()
	o.session.status = status
	o.session.mu.Unlock()
	o.vars.SetMany(map[string]string{variables.BoardSyncStatus: status})
}

// SyncEvent runs one sync cycle and returns the resulting status. It never
// panics and never returns an error; failures end in a status update.
func (o *Orchestrator) SyncEvent(ctx context.Context, forced bool) (status string) {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	trigger := "timer"
	if forced {
		trigger = "forced"
	}
	log := o.logger.With().Str("cycle_id", uuid.NewString()).Str("trigger", trigger).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("sync cycle panicked")
			o.metrics.RecordError("syncer", "panic")
			o.metrics.RecordSync("failed", trigger)
			o.setStatus(variables.StatusFailed)
			status = variables.StatusFailed
		}
	}()

	cfg, ok := o.resolver.Configuration()
	if !ok {
		log.Warn().Msg("sync skipped: room not resolved")
		o.metrics.RecordSync("skipped", trigger)
		return o.session.snapshot().Status
	}

	if !o.session.snapshot().AutoSync && !forced {
		log.Debug().Msg("auto sync disabled, serving cache")
		return o.offline(log, trigger)
	}

	list, err := o.fetcher.GetPresentations(ctx, cfg.PresentationManagementBoardID, cfg.MyRoomID)
	if err != nil {
		log.Warn().Err(err).Msg("presentation fetch failed")
		o.metrics.RecordError("syncer", "fetch")
		o.setStatus(variables.StatusFailed)
		if forced {
			o.metrics.RecordSync("failed", trigger)
			return variables.StatusFailed
		}
		return o.offline(log, trigger)
	}

	now := o.now()
	if err := o.cache.Write(list, cache.Metadata{
		LastBoardSync:                     now,
		SyncedRoomInfoBoard:               cfg.RoomInfoBoardID,
		SyncedPresentationManagementBoard: cfg.PresentationManagementBoardID,
		MyRoom:                            cfg.MyRoomID,
	}); err != nil {
		log.Warn().Err(err).Msg("cache write failed")
	}

	o.checkHelp(ctx, cfg)

	s := o.session
	s.mu.Lock()
	s.list = list
	s.status = variables.StatusSynced
	s.lastSync = now
	timeMode := s.timeMode
	values := map[string]string{
		variables.BoardSyncStatus:   variables.StatusSynced,
		variables.LastBoardSync:     formatLastSync(now, o.loc),
		variables.PresentationCount: strconv.Itoa(len(list)),
	}
	if timeMode {
		triple := presentation.ResolveByTime(list, now, o.Settings().Threshold)
		s.triple = triple
		for k, v := range tripleValues(triple, o.mode) {
			values[k] = v
		}
		o.resetBeganLocked(triple, values)
	} else if clamped := presentation.ClampPosition(s.position, len(list)); clamped != s.position {
		s.position = clamped
		values[variables.ManualPosition] = strconv.Itoa(clamped)
	}
	triple := s.triple
	s.mu.Unlock()

	o.vars.SetMany(values)
	o.metrics.SetPresentations(len(list))
	o.metrics.SetCompletion(triple.Completion)
	o.metrics.RecordSync("synced", trigger)

	log.Info().
		Int("presentations", len(list)).
		Bool("time_mode", timeMode).
		Str("current", nameOf(triple.Current)).
		Msg("sync complete")
	return variables.StatusSynced
}

// offline serves the cached schedule with status Offline.
func (o *Orchestrator) offline(log zerolog.Logger, trigger string) string {
	list, err := o.cachedSchedule()
	values := map[string]string{variables.BoardSyncStatus: variables.StatusOffline}

	s := o.session
	s.mu.Lock()
	s.status = variables.StatusOffline
	if err != nil {
		log.Info().Err(err).Msg("no cached schedule, publishing placeholders")
		s.triple = presentation.ResolveByTime(nil, o.now(), 0)
		for k, v := range variables.EmptyTriple() {
			values[k] = v
		}
		values[variables.CompletionPercent] = "0"
	} else {
		s.list = list
		values[variables.PresentationCount] = strconv.Itoa(len(list))
		triple := o.resolveLocked(list)
		s.triple = triple
		if !s.timeMode {
			values[variables.ManualPosition] = strconv.Itoa(s.position)
		}
		for k, v := range tripleValues(triple, o.mode) {
			values[k] = v
		}
		o.resetBeganLocked(triple, values)
	}
	s.mu.Unlock()

	o.vars.SetMany(values)
	o.metrics.RecordSync("offline", trigger)
	return variables.StatusOffline
}

// resolveLocked resolves by time or by the manual position. Must be called
// with the session lock held.
func (o *Orchestrator) resolveLocked(list []presentation.Presentation) presentation.Triple {
	s := o.session
	now := o.now()
	if s.timeMode {
		return presentation.ResolveByTime(list, now, o.Settings().Threshold)
	}
	if len(list) == 0 {
		return presentation.ResolveByTime(nil, now, 0)
	}
	s.position = presentation.ClampPosition(s.position, len(list))
	triple, err := presentation.ResolveByPosition(list, s.position, now)
	if err != nil {
		o.logger.Warn().Err(err).Msg("manual position out of range")
	}
	return triple
}

// resetBeganLocked clears the actual start once the current presentation
// changes. Must be called with the session lock held.
func (o *Orchestrator) resetBeganLocked(triple presentation.Triple, values map[string]string) {
	s := o.session
	if !s.began {
		return
	}
	if triple.Current != nil && triple.Current.ID == s.beganID {
		return
	}
	s.began = false
	s.beganID = ""
	s.beganEnd = time.Time{}
	values[variables.ActualStartTime] = variables.None
	values[variables.ActualDuration] = variables.None
}

// cachedSchedule reads the cache and applies the mode's date filter.
func (o *Orchestrator) cachedSchedule() ([]presentation.Presentation, error) {
	snap, err := o.cache.Read()
	if err != nil {
		return nil, err
	}
	today := o.now().In(o.loc).Format(presentation.DateLayout)
	all := snap.Rehydrate(o.loc)
	list := make([]presentation.Presentation, 0, len(all))
	for _, p := range all {
		if o.mode.Admit(p.SessionDate, today) {
			list = append(list, p)
		}
	}
	return list, nil
}

// todaysSchedule returns the cached schedule, falling back to the last
// fetched list.
func (o *Orchestrator) todaysSchedule() []presentation.Presentation {
	if list, err := o.cachedSchedule(); err == nil {
		return list
	}
	return o.session.schedule()
}

// Reload applies new settings. A resolved room is kept and its sync timer is
// restarted with the new interval; otherwise discovery restarts.
func (o *Orchestrator) Reload(settings Settings) {
	settings = settings.withDefaults()
	o.settingsMu.Lock()
	o.settings = settings
	o.settingsMu.Unlock()

	o.resolver.SetKit(settings.KitID)

	if _, ok := o.resolver.Configuration(); ok {
		o.logger.Info().Msg("settings reloaded, restarting sync timer")
		o.startSync()
		return
	}
	o.logger.Info().Msg("settings reloaded, restarting discovery")
	if t := o.session.swapSyncTimer(nil); t != nil {
		t.Stop()
	}
	o.startDiscovery()
}

// Ready reports whether a room is resolved and syncing.
func (o *Orchestrator) Ready() bool {
	_, ok := o.resolver.Configuration()
	return ok
}

// Status is the engine state served by the control API.
type Status struct {
	DiscoveryState string                         `json:"discovery_state"`
	Configuration  *discovery.SyncedConfiguration `json:"configuration,omitempty"`
	Mode           string                         `json:"mode"`
	SyncStatus     string                         `json:"sync_status"`
	LastSync       *time.Time                     `json:"last_sync,omitempty"`
	AutoSync       bool                           `json:"auto_sync"`
	TimeMode       bool                           `json:"time_mode"`
	Position       int                            `json:"position"`
	Presentations  int                            `json:"presentations"`
	Current        string                         `json:"current,omitempty"`
	Completion     float64                        `json:"completion"`
	HelpStatus     string                         `json:"help_status"`
	PollingMinutes float64                        `json:"polling_minutes"`
	Threshold      float64                        `json:"threshold"`
	DiscoveryTimer bool                           `json:"discovery_timer"`
	SyncTimer      bool                           `json:"sync_timer"`
}

// Status returns a snapshot of the engine state.
func (o *Orchestrator) Status() Status {
	snap := o.session.snapshot()
	settings := o.Settings()
	st := Status{
		DiscoveryState: string(o.resolver.State()),
		Mode:           o.mode.Name,
		SyncStatus:     snap.Status,
		AutoSync:       snap.AutoSync,
		TimeMode:       snap.TimeMode,
		Position:       snap.Position,
		Presentations:  snap.Count,
		Current:        nameOf(snap.Triple.Current),
		Completion:     snap.Triple.Completion,
		HelpStatus:     snap.HelpStatus,
		PollingMinutes: settings.PollingInterval.Minutes(),
		Threshold:      settings.Threshold,
		DiscoveryTimer: snap.DiscoveryOn,
		SyncTimer:      snap.SyncOn,
	}
	if cfg, ok := o.resolver.Configuration(); ok {
		st.Configuration = &cfg
	}
	if !snap.LastSync.IsZero() {
		last := snap.LastSync
		st.LastSync = &last
	}
	return st
}

func nameOf(p *presentation.Presentation) string {
	if p == nil {
		return ""
	}
	return p.Name
}

var errNotResolved = fmt.Errorf("room: %w", perrors.ErrNotResolved)
