// Package variables holds the string key/value store the button host reads.
package variables

// Slot suffixes for the previous/current/next triple.
const (
	SlotPrevious = "p"
	SlotCurrent  = "c"
	SlotNext     = "n"
)

// Per-slot variable prefixes. The full name is prefix + "-" + slot.
const (
	PresentationName      = "presentation-name"
	PresentationPresenter = "presentation-presenter"
	PresentationTimeslot  = "presentation-timeslot"
	PresentationFilePath  = "presentation-file-path"
	AllowDemo             = "allow-demo"
	AllowRecord           = "allow-record"
	AllowStream           = "allow-stream"
	StreamAddress         = "stream-address"
)

// SlotPrefixes lists every per-slot prefix.
var SlotPrefixes = []string{
	PresentationName,
	PresentationPresenter,
	PresentationTimeslot,
	PresentationFilePath,
	AllowDemo,
	AllowRecord,
	AllowStream,
	StreamAddress,
}

// Slotted returns the variable name for prefix in slot.
func Slotted(prefix, slot string) string {
	return prefix + "-" + slot
}

// Scalar variables.
const (
	CompletionPercent    = "current-presentation-completion-percent"
	BoardSyncStatus      = "board-sync-status"
	LastBoardSync        = "last-board-sync"
	AutoSync             = "auto-sync"
	TimeMode             = "time-mode"
	ManualPosition       = "time-mode-disabled-presentation-position"
	PresentationCount    = "presentation-count"
	ActualStartTime      = "current-presentation-actual-start-time"
	ActualDuration       = "current-presentation-actual-duration"
	PasswordInput        = "presentation-password-input"
	MatchedFilePath      = "matched-presentation-file-path"
	MatchedName          = "matched-presentation-name"
	HelpRequestStatus    = "help-request-status"
	HelpRequestTimestamp = "help-request-timestamp"
	SyncedProjectItem    = "synced-project-overview-item-id"
	SyncedRoomInfo       = "synced-room-info-board"
	SyncedPresentations  = "synced-presentation-management-board"
	SyncedHelpRequests   = "synced-help-requests-board"
	MyRoom               = "my-room"
	DiscoveryState       = "discovery-state"
)

// Sync status values.
const (
	StatusSynced     = "Synced"
	StatusOffline    = "Offline"
	StatusFailed     = "Last Sync Failed"
	StatusUnsynced   = "Unsynced"
	Unknown          = "Unknown"
	Never            = "Never"
	None             = "None"
	Enabled          = "enabled"
	Disabled         = "disabled"
	HelpRequested    = "help requested"
	HelpNotRequested = "no request"
)

// Defaults returns the values published before the first sync. Toggles and
// the manual position are absent so a persistent store keeps them across
// restarts.
func Defaults() map[string]string {
	v := map[string]string{
		CompletionPercent:    "0",
		BoardSyncStatus:      StatusUnsynced,
		LastBoardSync:        Never,
		PresentationCount:    "0",
		ActualStartTime:      None,
		ActualDuration:       None,
		PasswordInput:        "",
		MatchedFilePath:      Unknown,
		MatchedName:          Unknown,
		HelpRequestStatus:    HelpNotRequested,
		HelpRequestTimestamp: "",
		SyncedProjectItem:    Unknown,
		SyncedRoomInfo:       Unknown,
		SyncedPresentations:  Unknown,
		SyncedHelpRequests:   Unknown,
		MyRoom:               Unknown,
		DiscoveryState:       "unresolved",
	}
	for k, val := range EmptyTriple() {
		v[k] = val
	}
	return v
}

// EmptyTriple returns placeholders for every per-slot variable.
func EmptyTriple() map[string]string {
	v := make(map[string]string, len(SlotPrefixes)*3)
	for _, slot := range []string{SlotPrevious, SlotCurrent, SlotNext} {
		for _, prefix := range SlotPrefixes {
			v[Slotted(prefix, slot)] = Unknown
		}
	}
	return v
}

// Names returns every variable name the engine publishes.
func Names() []string {
	names := make([]string, 0, 64)
	for k := range Defaults() {
		names = append(names, k)
	}
	return append(names, AutoSync, TimeMode, ManualPosition)
}
