package syncer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	perrors "github.com/p-blackswan/roomsync/internal/errors"
	"github.com/p-blackswan/roomsync/internal/presentation"
	"github.com/p-blackswan/roomsync/internal/variables"
)

// Action ids.
const (
	ActionForceSync          = "force_sync"
	ActionToggleAutoSync     = "toggle_auto_sync"
	ActionToggleTimeMode     = "toggle_time_mode"
	ActionSwitchToPrevious   = "switch_to_previous"
	ActionSwitchToNext       = "switch_to_next"
	ActionBeginCurrent       = "begin_current_presentation"
	ActionAddPasswordLetter  = "add_letter_to_password"
	ActionRemovePasswordChar = "remove_last_letter_from_password"
	ActionClearPassword      = "clear_password"
	ActionLookupByPassword   = "lookup_presentation_by_password"
	ActionResetSync          = "reset_sync"
	ActionRequestHelp        = "request_help"
	ActionCancelHelp         = "cancel_help_request"
)

// Roles an action can require.
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// MaxPasswordLength caps the password accumulator.
const MaxPasswordLength = 5

// ErrUnknownAction is returned for an unregistered action id.
var ErrUnknownAction = errors.New("unknown action")

var letterPattern = regexp.MustCompile(`^[a-zA-Z]$`)

// Option describes an action or feedback parameter.
type Option struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Pattern string   `json:"pattern,omitempty"`
	Choices []string `json:"choices,omitempty"`
	Default string   `json:"default,omitempty"`
}

// ActionInfo describes a host action.
type ActionInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Role        string   `json:"role"`
	Options     []Option `json:"options,omitempty"`
}

// Result is the outcome of an action.
type Result struct {
	Action  string            `json:"action"`
	Message string            `json:"message"`
	Values  map[string]string `json:"values,omitempty"`
}

type actionFunc func(ctx context.Context, opts map[string]string) (Result, error)

type action struct {
	info ActionInfo
	run  actionFunc
}

func (o *Orchestrator) registry() []action {
	return []action{
		{ActionInfo{ID: ActionForceSync, Name: "Force Sync Event", Description: "Runs a sync cycle now and waits for it.", Role: RoleOperator}, o.forceSync},
		{ActionInfo{ID: ActionToggleAutoSync, Name: "Toggle Auto Sync", Description: "Switches remote polling on or off.", Role: RoleOperator}, o.toggleAutoSync},
		{ActionInfo{ID: ActionToggleTimeMode, Name: "Toggle Time Mode", Description: "Switches between clock-driven and manual presentation selection.", Role: RoleOperator}, o.toggleTimeMode},
		{ActionInfo{ID: ActionSwitchToPrevious, Name: "Switch to Previous Presentation", Description: "Steps the manual position back.", Role: RoleOperator}, o.switchToPrevious},
		{ActionInfo{ID: ActionSwitchToNext, Name: "Switch to Next Presentation", Description: "Steps the manual position forward.", Role: RoleOperator}, o.switchToNext},
		{ActionInfo{ID: ActionBeginCurrent, Name: "Begin Current Presentation", Description: "Records the actual start and the remaining duration.", Role: RoleOperator}, o.beginCurrent},
		{ActionInfo{ID: ActionAddPasswordLetter, Name: "Add Letter to Password", Description: "Appends a letter to the password input.", Role: RoleOperator,
			Options: []Option{{ID: "letter", Label: "Letter to Add", Pattern: letterPattern.String()}}}, o.addPasswordLetter},
		{ActionInfo{ID: ActionRemovePasswordChar, Name: "Remove Last Letter from Password", Description: "Removes the last letter of the password input.", Role: RoleOperator}, o.removePasswordLetter},
		{ActionInfo{ID: ActionClearPassword, Name: "Clear Password", Description: "Empties the password input.", Role: RoleOperator}, o.clearPassword},
		{ActionInfo{ID: ActionLookupByPassword, Name: "Lookup Presentation by Password", Description: "Finds the cached presentation matching the password input.", Role: RoleOperator}, o.lookupByPassword},
		{ActionInfo{ID: ActionResetSync, Name: "Reset Sync Data", Description: "Clears synced state and the cache and restarts discovery.", Role: RoleAdmin}, o.resetSync},
		{ActionInfo{ID: ActionRequestHelp, Name: "Request Help", Description: "Flags the room as needing help and notifies the crew.", Role: RoleOperator}, o.requestHelpAction},
		{ActionInfo{ID: ActionCancelHelp, Name: "Cancel Help Request", Description: "Clears the help request locally.", Role: RoleOperator}, o.cancelHelp},
	}
}

// Actions lists the registered actions.
func (o *Orchestrator) Actions() []ActionInfo {
	reg := o.registry()
	out := make([]ActionInfo, 0, len(reg))
	for _, a := range reg {
		out = append(out, a.info)
	}
	return out
}

// Action returns the description of one action.
func (o *Orchestrator) Action(id string) (ActionInfo, bool) {
	for _, a := range o.registry() {
		if a.info.ID == id {
			return a.info, true
		}
	}
	return ActionInfo{}, false
}

// Execute runs an action. Actions are serialised with each other.
func (o *Orchestrator) Execute(ctx context.Context, id string, opts map[string]string) (Result, error) {
	var run actionFunc
	for _, a := range o.registry() {
		if a.info.ID == id {
			run = a.run
			break
		}
	}
	if run == nil {
		o.metrics.RecordAction(id, "unknown")
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}

	o.actionMu.Lock()
	defer o.actionMu.Unlock()

	res, err := run(ctx, opts)
	res.Action = id
	if err != nil {
		o.metrics.RecordAction(id, "error")
		o.logger.Warn().Err(err).Str("action", id).Msg("action failed")
		return res, err
	}
	o.metrics.RecordAction(id, "ok")
	o.logger.Info().Str("action", id).Str("result", res.Message).Msg("action executed")
	return res, nil
}

func (o *Orchestrator) forceSync(ctx context.Context, _ map[string]string) (Result, error) {
	if !o.Ready() {
		return Result{}, errNotResolved
	}
	status := o.SyncEvent(ctx, true)
	return Result{Message: status, Values: map[string]string{variables.BoardSyncStatus: status}}, nil
}

func (o *Orchestrator) toggleAutoSync(context.Context, map[string]string) (Result, error) {
	s := o.session
	s.mu.Lock()
	s.autoSync = !s.autoSync
	v := boolToggle(s.autoSync)
	s.mu.Unlock()

	values := map[string]string{variables.AutoSync: v}
	o.vars.SetMany(values)
	return Result{Message: "auto sync " + v, Values: values}, nil
}

func (o *Orchestrator) toggleTimeMode(context.Context, map[string]string) (Result, error) {
	s := o.session
	s.mu.Lock()
	enable := !s.timeMode
	s.mu.Unlock()

	var values map[string]string
	if enable {
		values = o.enableTimeMode()
	} else {
		values = o.disableTimeMode()
	}
	return Result{Message: "time mode " + values[variables.TimeMode], Values: values}, nil
}

// enableTimeMode re-resolves the known schedule against the clock.
func (o *Orchestrator) enableTimeMode() map[string]string {
	list := o.todaysSchedule()
	now := o.now()

	s := o.session
	s.mu.Lock()
	s.timeMode = true
	triple := presentation.ResolveByTime(list, now, o.Settings().Threshold)
	s.triple = triple
	values := tripleValues(triple, o.mode)
	values[variables.TimeMode] = variables.Enabled
	o.resetBeganLocked(triple, values)
	s.mu.Unlock()

	o.vars.SetMany(values)
	return values
}

// disableTimeMode seeds the manual position from the clock resolution so the
// displayed presentation does not jump, then publishes the manual triple.
func (o *Orchestrator) disableTimeMode() map[string]string {
	list := o.todaysSchedule()
	now := o.now()

	s := o.session
	s.mu.Lock()
	s.timeMode = false
	s.position = presentation.ResolveByTime(list, now, o.Settings().Threshold).Position()
	values := o.manualValuesLocked(list)
	values[variables.TimeMode] = variables.Disabled
	s.mu.Unlock()

	o.vars.SetMany(values)
	return values
}

// manualValuesLocked resolves the current manual position. Must be called
// with the session lock held.
func (o *Orchestrator) manualValuesLocked(list []presentation.Presentation) map[string]string {
	s := o.session
	triple := o.resolveLocked(list)
	s.triple = triple
	values := tripleValues(triple, o.mode)
	values[variables.ManualPosition] = strconv.Itoa(s.position)
	values[variables.PresentationCount] = strconv.Itoa(len(list))
	return values
}

func (o *Orchestrator) switchToPrevious(context.Context, map[string]string) (Result, error) {
	return o.step(-1)
}

func (o *Orchestrator) switchToNext(context.Context, map[string]string) (Result, error) {
	return o.step(1)
}

// step moves the manual position by delta, leaving time mode first if needed.
func (o *Orchestrator) step(delta int) (Result, error) {
	if o.session.snapshot().TimeMode {
		o.disableTimeMode()
	}

	list := o.todaysSchedule()
	if len(list) == 0 {
		return Result{}, fmt.Errorf("no presentations to step through: %w", perrors.ErrNotFound)
	}

	s := o.session
	s.mu.Lock()
	s.position = presentation.ClampPosition(s.position+delta, len(list))
	values := o.manualValuesLocked(list)
	values[variables.TimeMode] = variables.Disabled
	pos := s.position
	s.mu.Unlock()

	o.vars.SetMany(values)
	return Result{Message: fmt.Sprintf("position %d of %d", pos, len(list)), Values: values}, nil
}

func (o *Orchestrator) beginCurrent(context.Context, map[string]string) (Result, error) {
	now := o.now().In(o.loc)

	s := o.session
	s.mu.Lock()
	if !s.timeMode {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("time mode is disabled: %w", perrors.ErrInvalidInput)
	}
	current := s.triple.Current
	if current == nil {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("no current presentation: %w", perrors.ErrNotFound)
	}

	start := now.Truncate(time.Minute)
	minutes := math.Max(0, math.Floor(current.EndTime.Sub(start).Minutes()))
	s.began = true
	s.beganID = current.ID
	s.beganEnd = current.EndTime
	s.beganTime = start
	s.mu.Unlock()

	values := map[string]string{
		variables.ActualStartTime: start.Format("15:04"),
		variables.ActualDuration:  strconv.Itoa(int(minutes)) + " minutes",
	}
	o.vars.SetMany(values)
	return Result{Message: "started " + current.Name, Values: values}, nil
}

func (o *Orchestrator) addPasswordLetter(_ context.Context, opts map[string]string) (Result, error) {
	letter := opts["letter"]
	if !letterPattern.MatchString(letter) {
		return Result{}, fmt.Errorf("letter %q must be a single ASCII letter: %w", letter, perrors.ErrInvalidInput)
	}

	s := o.session
	s.mu.Lock()
	if len(s.password) >= MaxPasswordLength {
		pw := s.password
		s.mu.Unlock()
		return Result{Message: "password input at max length", Values: map[string]string{variables.PasswordInput: pw}}, nil
	}
	s.password += letter
	pw := s.password
	s.mu.Unlock()

	values := map[string]string{variables.PasswordInput: pw}
	o.vars.SetMany(values)
	return Result{Message: "letter added", Values: values}, nil
}

func (o *Orchestrator) removePasswordLetter(context.Context, map[string]string) (Result, error) {
	s := o.session
	s.mu.Lock()
	if s.password == "" {
		s.mu.Unlock()
		return Result{Message: "password input already empty", Values: map[string]string{variables.PasswordInput: ""}}, nil
	}
	s.password = s.password[:len(s.password)-1]
	pw := s.password
	s.mu.Unlock()

	values := map[string]string{variables.PasswordInput: pw}
	o.vars.SetMany(values)
	return Result{Message: "letter removed", Values: values}, nil
}

func (o *Orchestrator) clearPassword(context.Context, map[string]string) (Result, error) {
	s := o.session
	s.mu.Lock()
	s.password = ""
	s.mu.Unlock()

	values := map[string]string{variables.PasswordInput: ""}
	o.vars.SetMany(values)
	return Result{Message: "password input cleared", Values: values}, nil
}

// lookupByPassword matches the password input against the cached schedule.
func (o *Orchestrator) lookupByPassword(context.Context, map[string]string) (Result, error) {
	pw := o.session.snapshot().Password
	if pw == "" {
		return Result{}, fmt.Errorf("no password entered: %w", perrors.ErrInvalidInput)
	}

	snap, err := o.cache.Read()
	if err != nil {
		return Result{}, fmt.Errorf("password lookup: %w", err)
	}
	entry, ok := snap.FindByPassword(pw)
	if !ok {
		return Result{}, fmt.Errorf("no presentation for password: %w", perrors.ErrNotFound)
	}

	values := map[string]string{
		variables.MatchedFilePath: filePath(presentation.Presentation{
			FilePath:             entry.FilePath,
			SpeakerReadyFilePath: entry.SpeakerReadyFilePath,
		}, o.mode),
		variables.MatchedName:     entry.Name,
	}
	o.vars.SetMany(values)
	return Result{Message: "matched " + entry.Name, Values: values}, nil
}

// resetSync forgets the resolved room, clears the cache and restarts
// discovery.
func (o *Orchestrator) resetSync(context.Context, map[string]string) (Result, error) {
	if t := o.session.swapSyncTimer(nil); t != nil {
		t.Stop()
	}

	// An in-flight cycle finishes before the cache and room are dropped.
	o.cycleMu.Lock()
	if err := o.cache.Clear(); err != nil {
		o.logger.Error().Err(err).Msg("failed to clear cache")
	}
	o.resolver.Reset()

	s := o.session
	s.mu.Lock()
	s.status = variables.StatusUnsynced
	s.lastSync = time.Time{}
	s.list = nil
	s.triple = presentation.ResolveByTime(nil, o.now(), 0)
	s.began = false
	s.mu.Unlock()

	values := variables.EmptyTriple()
	for k, v := range map[string]string{
		variables.LastBoardSync:       variables.Never,
		variables.BoardSyncStatus:     variables.StatusUnsynced,
		variables.SyncedRoomInfo:      variables.Unknown,
		variables.SyncedPresentations: variables.Unknown,
		variables.SyncedProjectItem:   variables.Unknown,
		variables.SyncedHelpRequests:  variables.Unknown,
		variables.MyRoom:              variables.Unknown,
		variables.PresentationCount:   "0",
		variables.CompletionPercent:   "0",
		variables.ActualStartTime:     variables.None,
		variables.ActualDuration:      variables.None,
		variables.DiscoveryState:      string(o.resolver.State()),
	} {
		values[k] = v
	}
	o.vars.SetMany(values)
	o.cycleMu.Unlock()

	o.startDiscovery()
	return Result{Message: "sync reset, discovery restarted", Values: values}, nil
}

func (o *Orchestrator) requestHelpAction(context.Context, map[string]string) (Result, error) {
	req := o.requestHelp()
	return Result{
		Message: "help requested",
		Values: map[string]string{
			variables.HelpRequestStatus:    variables.HelpRequested,
			variables.HelpRequestTimestamp: req.Timestamp,
		},
	}, nil
}

func (o *Orchestrator) cancelHelp(context.Context, map[string]string) (Result, error) {
	o.clearHelp()
	return Result{Message: "help request cleared", Values: map[string]string{variables.HelpRequestStatus: variables.HelpNotRequested}}, nil
}

// ParseOptions normalises host option values to strings.
func ParseOptions(raw map[string]interface{}) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			out[k] = strings.TrimSpace(fmt.Sprint(val))
		}
	}
	return out
}
