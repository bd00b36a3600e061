package boards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	layout := DefaultLayout()

	kit, err := ParseMode("", layout)
	require.NoError(t, err)
	assert.Equal(t, ModeKit, kit.Name)
	assert.True(t, kit.TodayOnly)

	sr, err := ParseMode("Speaker-Ready", layout)
	require.NoError(t, err)
	assert.Equal(t, ModeSpeakerReady, sr.Name)
	assert.False(t, sr.TodayOnly)

	_, err = ParseMode("projector", layout)
	assert.Error(t, err)
}

func TestModeRoomLinkColumns(t *testing.T) {
	layout := DefaultLayout()

	kit := KitMode(layout)
	assert.Equal(t, KeyRoomLink, kit.Presentations[layout.Presentations.RoomKit])
	assert.Equal(t, KeyAssignedTerminals, kit.RoomInfo[layout.RoomInfo.KitAssigned])
	_, ok := kit.Presentations[layout.Presentations.RoomSpeakerReady]
	assert.False(t, ok)

	sr := SpeakerReadyMode(layout)
	assert.Equal(t, KeyRoomLink, sr.Presentations[layout.Presentations.RoomSpeakerReady])
	assert.Equal(t, KeyAssignedTerminals, sr.RoomInfo[layout.RoomInfo.SpeakerReadyAssigned])
}

func TestModeAdmit(t *testing.T) {
	layout := DefaultLayout()

	kit := KitMode(layout)
	assert.True(t, kit.Admit("2026-10-19", "2026-10-19"))
	assert.False(t, kit.Admit("2026-10-18", "2026-10-19"))
	assert.False(t, kit.Admit("", "2026-10-19"))

	sr := SpeakerReadyMode(layout)
	assert.True(t, sr.Admit("2026-10-18", "2026-10-19"))
	assert.True(t, sr.Admit("", "2026-10-19"))
}
