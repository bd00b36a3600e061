package syncer

import (
	"sync"
	"time"

	"github.com/p-blackswan/roomsync/internal/presentation"
	"github.com/p-blackswan/roomsync/internal/variables"
)

// Session is the mutable state of one running engine: toggles, manual
// position, last resolution, password input, help request and timers.
type Session struct {
	mu sync.Mutex

	autoSync bool
	timeMode bool
	position int

	status   string
	lastSync time.Time

	list   []presentation.Presentation
	triple presentation.Triple

	password string

	began     bool
	beganID   string
	beganEnd  time.Time
	beganTime time.Time

	helpStatus    string
	helpTimestamp string

	discoveryTimer *Ticker
	syncTimer      *Ticker
}

func newSession() *Session {
	return &Session{
		autoSync:   true,
		timeMode:   true,
		position:   1,
		status:     variables.StatusUnsynced,
		helpStatus: variables.HelpNotRequested,
	}
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	AutoSync      bool
	TimeMode      bool
	Position      int
	Status        string
	LastSync      time.Time
	Count         int
	Triple        presentation.Triple
	Password      string
	Began         bool
	BeganEnd      time.Time
	HelpStatus    string
	HelpTimestamp string
	DiscoveryOn   bool
	SyncOn        bool
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		AutoSync:      s.autoSync,
		TimeMode:      s.timeMode,
		Position:      s.position,
		Status:        s.status,
		LastSync:      s.lastSync,
		Count:         len(s.list),
		Triple:        s.triple,
		Password:      s.password,
		Began:         s.began,
		BeganEnd:      s.beganEnd,
		HelpStatus:    s.helpStatus,
		HelpTimestamp: s.helpTimestamp,
		DiscoveryOn:   s.discoveryTimer != nil,
		SyncOn:        s.syncTimer != nil,
	}
}

func (s *Session) schedule() []presentation.Presentation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]presentation.Presentation(nil), s.list...)
}

// swapDiscoveryTimer installs t and returns the previous timer.
func (s *Session) swapDiscoveryTimer(t *Ticker) *Ticker {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.discoveryTimer
	s.discoveryTimer = t
	return old
}

// swapSyncTimer installs t and returns the previous timer.
func (s *Session) swapSyncTimer(t *Ticker) *Ticker {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.syncTimer
	s.syncTimer = t
	return old
}

func boolToggle(b bool) string {
	if b {
		return variables.Enabled
	}
	return variables.Disabled
}
