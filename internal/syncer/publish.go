package syncer

import (
	"strconv"
	"time"

	"github.com/p-blackswan/roomsync/internal/boards"
	"github.com/p-blackswan/roomsync/internal/monday"
	"github.com/p-blackswan/roomsync/internal/presentation"
	"github.com/p-blackswan/roomsync/internal/variables"
)

// LastSyncLayout renders last-board-sync.
const LastSyncLayout = "2006-01-02 15:04:05"

// tripleValues renders the previous/current/next variables. Empty slots get
// placeholders.
func tripleValues(t presentation.Triple, mode boards.Mode) map[string]string {
	v := variables.EmptyTriple()
	slots := []struct {
		name string
		p    *presentation.Presentation
	}{
		{variables.SlotPrevious, t.Previous},
		{variables.SlotCurrent, t.Current},
		{variables.SlotNext, t.Next},
	}
	for _, s := range slots {
		if s.p == nil {
			continue
		}
		p := s.p
		v[variables.Slotted(variables.PresentationName, s.name)] = p.Name
		v[variables.Slotted(variables.PresentationPresenter, s.name)] = p.Presenter
		v[variables.Slotted(variables.PresentationTimeslot, s.name)] = p.Timeslot()
		v[variables.Slotted(variables.PresentationFilePath, s.name)] = filePath(*p, mode)
		v[variables.Slotted(variables.AllowDemo, s.name)] = string(p.AllowDemo)
		v[variables.Slotted(variables.AllowRecord, s.name)] = string(p.Record)
		v[variables.Slotted(variables.AllowStream, s.name)] = string(p.Stream)
		v[variables.Slotted(variables.StreamAddress, s.name)] = p.StreamAddress
	}
	v[variables.CompletionPercent] = formatPercent(t.Completion)
	return v
}

// filePath picks the deck path for the terminal mode.
func filePath(p presentation.Presentation, mode boards.Mode) string {
	if mode.Name == boards.ModeSpeakerReady && usable(p.SpeakerReadyFilePath) {
		return p.SpeakerReadyFilePath
	}
	if usable(p.FilePath) {
		return p.FilePath
	}
	return variables.Unknown
}

func usable(s string) bool {
	return s != "" && s != monday.NotAvailable
}

func formatPercent(pct float64) string {
	return strconv.FormatFloat(pct, 'f', 2, 64)
}

func formatLastSync(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(LastSyncLayout)
}
