package aggregate

import (
	"sync"
	"time"

	"github.com/slickerian/siem/pkg/models"
)

// Stats derives the rolling statistics. Totals are anchored on the backing
// snapshot's aggregate fields and patched incrementally from live events
// between refreshes, so a reconnect never double counts: a batch that
// overlaps the snapshot's coverage reports a refetch instead of patching.
type Stats struct {
	mu sync.RWMutex

	anchor   models.LiveStats
	anchorAt time.Time
	seeded   bool

	incrTotal    int
	incrCritical int
	incrLast24h  int

	earliest time.Time
	now      func() time.Time
}

// NewStats creates an empty stats engine.
func NewStats() *Stats {
	return &Stats{now: time.Now}
}

// Seed anchors the totals on a snapshot page's aggregate fields and discards
// live increments accumulated so far.
func (s *Stats) Seed(page models.LogPage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.anchor = models.LiveStats{
		Total:      page.Total,
		Critical:   page.Critical,
		Last24h:    page.Last24h,
		AvgPerHour: page.AvgPerHour,
	}
	s.anchorAt = s.now()
	s.seeded = true
	s.incrTotal = 0
	s.incrCritical = 0
	s.incrLast24h = 0

	for _, ev := range page.Items {
		s.observeEarliest(ev.Timestamp)
	}
}

// Patch adopts authoritative aggregate fields piggybacked on a live frame as
// the new anchor, replacing any increments they already cover.
func (s *Stats) Patch(stats models.LiveStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.anchor = stats
	s.anchorAt = s.now()
	s.seeded = true
	s.incrTotal = 0
	s.incrCritical = 0
	s.incrLast24h = 0
}

// Ingest patches the totals from a batch of deduplicated live events. It
// returns true when the batch overlaps the snapshot's coverage (a historical
// backfill), in which case the caller must refetch the snapshot instead of
// trusting the incremental counts.
func (s *Stats) Ingest(events []models.Event) (refetch bool) {
	if len(events) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dayAgo := s.now().Add(-24 * time.Hour)
	for _, ev := range events {
		if s.seeded && !s.anchorAt.IsZero() && ev.Timestamp.Before(s.anchorAt) {
			refetch = true
		}
		s.incrTotal++
		if ev.Severity == models.SeverityCritical {
			s.incrCritical++
		}
		if !ev.Timestamp.Before(dayAgo) {
			s.incrLast24h++
		}
		s.observeEarliest(ev.Timestamp)
	}
	return refetch
}

// observeEarliest assumes the lock is held.
func (s *Stats) observeEarliest(ts time.Time) {
	if ts.IsZero() {
		return
	}
	if s.earliest.IsZero() || ts.Before(s.earliest) {
		s.earliest = ts
	}
}

// Snapshot recomputes and returns the current statistics.
func (s *Stats) Snapshot() models.LiveStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := models.LiveStats{
		Total:      s.anchor.Total + s.incrTotal,
		Critical:   s.anchor.Critical + s.incrCritical,
		Last24h:    s.anchor.Last24h + s.incrLast24h,
		AvgPerHour: s.anchor.AvgPerHour,
	}

	if s.incrTotal > 0 || !s.seeded {
		hours := 1.0
		if !s.earliest.IsZero() {
			if h := s.now().Sub(s.earliest).Hours(); h > 1 {
				hours = h
			}
		}
		out.AvgPerHour = int(float64(out.Total)/hours + 0.5)
	}
	return out
}
