// Package cache persists the last successful presentation fetch as a single
// JSON snapshot so the engine can keep serving a schedule while offline.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/roomsync/internal/metrics"
	"github.com/p-blackswan/roomsync/internal/presentation"
)

// FileName is the snapshot file inside the cache directory.
const FileName = "presentation_sync_data.json"

// ErrCacheMiss is returned when no usable snapshot exists.
var ErrCacheMiss = errors.New("cache miss")

// Metadata describes where a snapshot came from.
type Metadata struct {
	LastBoardSync                     time.Time
	SyncedRoomInfoBoard               string
	SyncedPresentationManagementBoard string
	MyRoom                            string
}

// Snapshot is the on-disk document.
type Snapshot struct {
	Timestamp                         string  `json:"timestamp"`
	LastBoardSync                     string  `json:"lastBoardSync"`
	SyncedRoomInfoBoard               string  `json:"syncedRoomInfoBoard"`
	SyncedPresentationManagementBoard string  `json:"syncedPresentationManagementBoard"`
	MyRoom                            string  `json:"myRoom"`
	Presentations                     []Entry `json:"presentations"`
}

// Entry is a presentation with its times serialised as RFC 3339 strings.
type Entry struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Presenter            string `json:"presenter"`
	Designation          string `json:"designation"`
	SessionDate          string `json:"sessionDate"`
	StartTime            string `json:"startTime"`
	EndTime              string `json:"endTime"`
	AllowDemo            string `json:"allowDemo"`
	Record               string `json:"record"`
	Stream               string `json:"stream"`
	StreamAddress        string `json:"streamAddress"`
	FilePath             string `json:"filePath"`
	PresenterPassword    string `json:"presenterPassword"`
	SpeakerReadyFilePath string `json:"speakerReadyFilePath"`
	RoomID               string `json:"roomId,omitempty"`
}

// EntryOf serialises a presentation.
func EntryOf(p presentation.Presentation) Entry {
	return Entry{
		ID:                   p.ID,
		Name:                 p.Name,
		Presenter:            p.Presenter,
		Designation:          p.Designation,
		SessionDate:          p.SessionDate,
		StartTime:            p.StartTime.Format(time.RFC3339),
		EndTime:              p.EndTime.Format(time.RFC3339),
		AllowDemo:            string(p.AllowDemo),
		Record:               string(p.Record),
		Stream:               string(p.Stream),
		StreamAddress:        p.StreamAddress,
		FilePath:             p.FilePath,
		PresenterPassword:    p.PresenterPassword,
		SpeakerReadyFilePath: p.SpeakerReadyFilePath,
		RoomID:               p.RoomID,
	}
}

// Presentation re-hydrates the entry in loc.
func (e Entry) Presentation(loc *time.Location) (presentation.Presentation, error) {
	if loc == nil {
		loc = time.Local
	}
	start, err := time.Parse(time.RFC3339, e.StartTime)
	if err != nil {
		return presentation.Presentation{}, fmt.Errorf("entry %s start: %w", e.ID, err)
	}
	end, err := time.Parse(time.RFC3339, e.EndTime)
	if err != nil {
		return presentation.Presentation{}, fmt.Errorf("entry %s end: %w", e.ID, err)
	}
	return presentation.Presentation{
		ID:                   e.ID,
		Name:                 e.Name,
		Presenter:            e.Presenter,
		Designation:          e.Designation,
		SessionDate:          e.SessionDate,
		StartTime:            start.In(loc),
		EndTime:              end.In(loc),
		AllowDemo:            flag(e.AllowDemo),
		Record:               flag(e.Record),
		Stream:               flag(e.Stream),
		StreamAddress:        e.StreamAddress,
		FilePath:             e.FilePath,
		PresenterPassword:    e.PresenterPassword,
		SpeakerReadyFilePath: e.SpeakerReadyFilePath,
		RoomID:               e.RoomID,
	}, nil
}

func flag(s string) presentation.Flag {
	if presentation.Flag(s) == presentation.Yes {
		return presentation.Yes
	}
	return presentation.No
}

// Rehydrate converts every entry back into a presentation, sorted by start
// time. Entries with unreadable times are skipped.
func (s *Snapshot) Rehydrate(loc *time.Location) []presentation.Presentation {
	list := make([]presentation.Presentation, 0, len(s.Presentations))
	for _, e := range s.Presentations {
		p, err := e.Presentation(loc)
		if err != nil {
			continue
		}
		list = append(list, p)
	}
	presentation.Sort(list)
	return list
}

// FindByPassword returns the entry whose presenter password matches.
func (s *Snapshot) FindByPassword(password string) (Entry, bool) {
	if password == "" {
		return Entry{}, false
	}
	for _, e := range s.Presentations {
		if e.PresenterPassword == password {
			return e, true
		}
	}
	return Entry{}, false
}

// Store reads and writes the snapshot file.
type Store struct {
	mu      sync.Mutex
	dir     string
	path    string
	now     func() time.Time
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewStore creates a store in dir. An empty dir uses DefaultDir.
func NewStore(dir string, m *metrics.Metrics, logger zerolog.Logger) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{
		dir:     dir,
		path:    filepath.Join(dir, FileName),
		now:     time.Now,
		metrics: m,
		logger:  logger.With().Str("component", "cache").Logger(),
	}
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Write replaces the snapshot atomically (temp file, fsync, rename).
func (s *Store) Write(list []presentation.Presentation, meta Metadata) error {
	snap := Snapshot{
		Timestamp:                         s.now().Format(time.RFC3339),
		SyncedRoomInfoBoard:               meta.SyncedRoomInfoBoard,
		SyncedPresentationManagementBoard: meta.SyncedPresentationManagementBoard,
		MyRoom:                            meta.MyRoom,
		Presentations:                     make([]Entry, 0, len(list)),
	}
	if !meta.LastBoardSync.IsZero() {
		snap.LastBoardSync = meta.LastBoardSync.Format(time.RFC3339)
	}
	for _, p := range list {
		snap.Presentations = append(snap.Presentations, EntryOf(p))
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		s.metrics.RecordCacheWrite("error")
		return fmt.Errorf("cache: marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeFile(data); err != nil {
		s.metrics.RecordCacheWrite("error")
		s.logger.Error().Err(err).Str("path", s.path).Msg("cache write failed")
		return err
	}

	s.metrics.RecordCacheWrite("ok")
	s.logger.Debug().Str("path", s.path).Int("presentations", len(list)).Msg("cache written")
	return nil
}

// writeFile must be called with the lock held.
func (s *Store) writeFile(data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("cache: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("cache: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("cache: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("cache: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return fmt.Errorf("cache: rename temp file: %w", err)
	}
	return nil
}

// Read loads the snapshot. A missing or malformed file is ErrCacheMiss.
func (s *Store) Read() (*Snapshot, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()

	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug().Str("path", s.path).Msg("no cache file")
			return nil, ErrCacheMiss
		}
		s.logger.Warn().Err(err).Str("path", s.path).Msg("cache file unreadable")
		return nil, fmt.Errorf("%w: %v", ErrCacheMiss, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("cache file malformed")
		return nil, fmt.Errorf("%w: %v", ErrCacheMiss, err)
	}
	return &snap, nil
}

// Clear deletes the snapshot. A missing file is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cache: remove: %w", err)
	}
	s.logger.Info().Str("path", s.path).Msg("cache cleared")
	return nil
}

// DefaultDir returns the per-platform cache directory.
func DefaultDir() string {
	if runtime.GOOS == "windows" {
		base := os.Getenv("APPDATA")
		if base == "" {
			base = `C:\ProgramData`
		}
		return filepath.Join(base, "BitCompanionSync")
	}
	return filepath.Join("/var/lib", "BitCompanionSync")
}
