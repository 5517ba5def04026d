package diagnostic

import (
	"sort"
	"sync"

	"github.com/repolens/repolens/internal/model"
)

// store is the ring-bounded event store backing the aggregator. Streams are
// created on first append. All access goes through the mutex so writes are
// serialized per stream and insertion order equals chronological order.
// Readers always receive copies of the backing slices.
type store struct {
	mu      sync.RWMutex
	cap     int
	streams map[string][]model.Event
}

func newStore(cap int) *store {
	return &store{
		cap:     cap,
		streams: make(map[string][]model.Event),
	}
}

// append adds an event to its stream, evicting the oldest event first when
// the stream is at capacity
func (s *store) append(event model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.streams[event.Stream]
	if len(events) >= s.cap {
		drop := len(events) - s.cap + 1
		events = append(events[:0], events[drop:]...)
	}
	s.streams[event.Stream] = append(events, event)
}

// events returns a copy of the stream's retained history in insertion order.
// A missing stream yields an empty slice.
func (s *store) events(stream string) []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.streams[stream]
	out := make([]model.Event, len(events))
	copy(out, events)
	return out
}

// keys returns the known stream keys in sorted order
func (s *store) keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.streams))
	for key := range s.streams {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *store) len(stream string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams[stream])
}
