package store

import (
	"testing"
	"time"

	"github.com/slickerian/siem/pkg/models"
)

func ev(id int64, ts time.Time) models.Event {
	return models.Event{ID: id, NodeID: "node-1", Timestamp: ts, Category: "INFO"}
}

func TestInsertKeepsNewestFirstOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewBounded(10)

	s.Insert([]models.Event{
		ev(1, base.Add(2*time.Minute)),
		ev(2, base),
		ev(3, base.Add(5*time.Minute)),
	})

	got := s.Snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatalf("events out of order at %d: %v after %v", i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}
	if got[0].ID != 3 || got[2].ID != 2 {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestInsertEvictsOldestBeyondCapacity(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewBounded(3)

	for i := int64(1); i <= 5; i++ {
		s.Insert([]models.Event{ev(i, base.Add(time.Duration(i) * time.Minute))})
	}

	got := s.Snapshot()
	if len(got) != 3 {
		t.Fatalf("expected capacity bound of 3, got %d", len(got))
	}
	if got[0].ID != 5 || got[2].ID != 3 {
		t.Fatalf("expected events 5..3 retained, got %v", got)
	}

	// An evicted id can come back; it is no longer tracked as a duplicate.
	inserted := s.Insert([]models.Event{ev(1, base.Add(10 * time.Minute))})
	if len(inserted) != 1 {
		t.Fatalf("expected evicted id to be insertable again, got %d inserted", len(inserted))
	}
}

func TestInsertSkipsDuplicateIDs(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewBounded(10)

	first := s.Insert([]models.Event{ev(1, base), ev(2, base.Add(time.Minute))})
	if len(first) != 2 {
		t.Fatalf("expected 2 inserted, got %d", len(first))
	}

	second := s.Insert([]models.Event{ev(2, base.Add(time.Minute)), ev(3, base.Add(2*time.Minute))})
	if len(second) != 1 || second[0].ID != 3 {
		t.Fatalf("expected only event 3 inserted, got %v", second)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 stored events, got %d", s.Len())
	}
}

func TestReplaceDiscardsPreviousState(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewBounded(10)
	s.Insert([]models.Event{ev(1, base), ev(2, base.Add(time.Minute))})

	s.Replace([]models.Event{ev(7, base.Add(3*time.Minute)), ev(8, base.Add(4*time.Minute))})

	got := s.Snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 events after replace, got %d", len(got))
	}
	if got[0].ID != 8 || got[1].ID != 7 {
		t.Fatalf("unexpected events after replace: %v", got)
	}

	// Old ids are insertable again after a replace.
	if inserted := s.Insert([]models.Event{ev(1, base.Add(5 * time.Minute))}); len(inserted) != 1 {
		t.Fatalf("expected old id insertable after replace, got %d inserted", len(inserted))
	}
}

func TestEarliestAndCountIn(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewBounded(10)

	if !s.Earliest().IsZero() {
		t.Fatalf("expected zero earliest on empty store")
	}

	s.Insert([]models.Event{
		ev(1, base),
		ev(2, base.Add(10*time.Minute)),
		ev(3, base.Add(20*time.Minute)),
	})

	if got := s.Earliest(); !got.Equal(base) {
		t.Fatalf("unexpected earliest: %v", got)
	}
	if got := s.CountIn(base.Add(5*time.Minute), base.Add(15*time.Minute)); got != 1 {
		t.Fatalf("expected 1 event in range, got %d", got)
	}
	if got := s.CountIn(base, base.Add(20*time.Minute)); got != 3 {
		t.Fatalf("expected 3 events in inclusive range, got %d", got)
	}
}
