package store

import (
	"sort"
	"sync"
	"time"

	"github.com/slickerian/siem/pkg/models"
)

// Bounded is a fixed-capacity, recency-ordered store of the most recent
// events. Events are ordered by timestamp descending and deduplicated by
// event id. Mutation happens only from the engine's update step; reads may
// come from the view server concurrently.
type Bounded struct {
	mu       sync.RWMutex
	capacity int
	events   []models.Event
	ids      map[int64]struct{}
}

// NewBounded creates a store holding at most capacity events.
func NewBounded(capacity int) *Bounded {
	if capacity <= 0 {
		capacity = 500
	}
	return &Bounded{
		capacity: capacity,
		events:   make([]models.Event, 0, capacity),
		ids:      make(map[int64]struct{}, capacity),
	}
}

// Insert merges a batch into the store, keeping timestamp-descending order
// and evicting the oldest events beyond capacity. Events whose id is already
// present are skipped. It returns the events actually inserted, in the
// batch's arrival order.
func (s *Bounded) Insert(batch []models.Event) []models.Event {
	if len(batch) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := make([]models.Event, 0, len(batch))
	for _, ev := range batch {
		if _, dup := s.ids[ev.ID]; dup {
			continue
		}
		s.ids[ev.ID] = struct{}{}
		s.events = append(s.events, ev)
		inserted = append(inserted, ev)
	}
	if len(inserted) == 0 {
		return nil
	}

	sort.SliceStable(s.events, func(i, j int) bool {
		return s.events[i].Timestamp.After(s.events[j].Timestamp)
	})

	if len(s.events) > s.capacity {
		for _, ev := range s.events[s.capacity:] {
			delete(s.ids, ev.ID)
		}
		s.events = s.events[:s.capacity]
	}
	return inserted
}

// Replace discards all state and reseeds the store from a snapshot page.
func (s *Bounded) Replace(events []models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = s.events[:0]
	s.ids = make(map[int64]struct{}, s.capacity)
	for _, ev := range events {
		if _, dup := s.ids[ev.ID]; dup {
			continue
		}
		s.ids[ev.ID] = struct{}{}
		s.events = append(s.events, ev)
	}
	sort.SliceStable(s.events, func(i, j int) bool {
		return s.events[i].Timestamp.After(s.events[j].Timestamp)
	})
	if len(s.events) > s.capacity {
		for _, ev := range s.events[s.capacity:] {
			delete(s.ids, ev.ID)
		}
		s.events = s.events[:s.capacity]
	}
}

// Snapshot returns a copy of the stored events, newest first.
func (s *Bounded) Snapshot() []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of stored events.
func (s *Bounded) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Capacity returns the configured bound.
func (s *Bounded) Capacity() int {
	return s.capacity
}

// Earliest returns the oldest stored timestamp, or zero when empty.
func (s *Bounded) Earliest() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return time.Time{}
	}
	return s.events[len(s.events)-1].Timestamp
}

// CountIn returns the number of stored events with timestamps in [from, to].
func (s *Bounded) CountIn(from, to time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, ev := range s.events {
		if !ev.Timestamp.Before(from) && !ev.Timestamp.After(to) {
			n++
		}
	}
	return n
}
