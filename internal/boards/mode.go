package boards

import (
	"fmt"
	"strings"
)

// Terminal mode names accepted by ParseMode.
const (
	ModeKit          = "kit"
	ModeSpeakerReady = "speaker-ready"
)

// Mode is the terminal-mode strategy. Kit terminals follow the rooms a kit is
// assigned to and show only today's sessions; speaker-ready terminals follow a
// separate linkage column and show every session.
type Mode struct {
	Name string

	// RoomInfo maps the room-info assignment column to KeyAssignedTerminals.
	RoomInfo Table

	// Presentations maps the presentation board columns, with the mode's
	// room-link column as KeyRoomLink.
	Presentations Table

	// TodayOnly restricts the presentation list to the local calendar day.
	TodayOnly bool
}

// KitMode builds the kit terminal strategy.
func KitMode(l Layout) Mode {
	return Mode{
		Name:          ModeKit,
		RoomInfo:      Table{l.RoomInfo.KitAssigned: KeyAssignedTerminals},
		Presentations: l.presentationTable(l.Presentations.RoomKit),
		TodayOnly:     true,
	}
}

// SpeakerReadyMode builds the speaker-ready terminal strategy.
func SpeakerReadyMode(l Layout) Mode {
	return Mode{
		Name:          ModeSpeakerReady,
		RoomInfo:      Table{l.RoomInfo.SpeakerReadyAssigned: KeyAssignedTerminals},
		Presentations: l.presentationTable(l.Presentations.RoomSpeakerReady),
	}
}

// ParseMode selects the strategy by name. An empty name selects kit mode.
func ParseMode(name string, l Layout) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ModeKit:
		return KitMode(l), nil
	case ModeSpeakerReady, "sr", "speaker_ready":
		return SpeakerReadyMode(l), nil
	default:
		return Mode{}, fmt.Errorf("unknown terminal mode %q", name)
	}
}

// Admit reports whether a record with the given session date (YYYY-MM-DD)
// belongs in the list for the given local day.
func (m Mode) Admit(sessionDate, today string) bool {
	if !m.TodayOnly {
		return true
	}
	return strings.TrimSpace(sessionDate) == today
}
