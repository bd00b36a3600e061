package variables

import (
	"sort"
	"sync"
)

// Store is the host-facing variable store. Related values are published
// together through SetMany.
type Store interface {
	Get(name string) (string, bool)
	Snapshot() map[string]string
	SetMany(values map[string]string)
	Subscribe(buffer int) (<-chan map[string]string, func())
}

// MemoryStore is an in-process Store. Subscribers receive the changed subset
// of every SetMany; a slow subscriber misses updates rather than blocking.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		subs:   make(map[int]chan map[string]string),
	}
}

// Get returns a single value.
func (s *MemoryStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// GetOr returns the value or def when unset.
func GetOr(s Store, name, def string) string {
	if v, ok := s.Get(name); ok && v != "" {
		return v
	}
	return def
}

// Snapshot returns a copy of all values.
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// SetMany applies values and notifies subscribers of the ones that changed.
func (s *MemoryStore) SetMany(values map[string]string) {
	changed := s.apply(values)
	if len(changed) > 0 {
		s.broadcast(changed)
	}
}

func (s *MemoryStore) apply(values map[string]string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := make(map[string]string)
	for k, v := range values {
		if old, ok := s.values[k]; ok && old == v {
			continue
		}
		s.values[k] = v
		changed[k] = v
	}
	return changed
}

func (s *MemoryStore) broadcast(changed map[string]string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		msg := make(map[string]string, len(changed))
		for k, v := range changed {
			msg[k] = v
		}
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe registers for change notifications. The returned func
// unsubscribes and closes the channel.
func (s *MemoryStore) Subscribe(buffer int) (<-chan map[string]string, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan map[string]string, buffer)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

// SortedNames returns the keys of values in order.
func SortedNames(values map[string]string) []string {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
