package aggregate

import (
	"sort"
	"sync"
	"time"

	"github.com/slickerian/siem/internal/logger"
	"github.com/slickerian/siem/pkg/models"
)

// BucketSet is a time-windowed event-count histogram. Bucket keys are the
// event timestamp floored in UTC to a multiple of the bucket width; no two
// buckets share a key and the set stays ordered by start time. Buckets older
// than the retention horizon are pruned lazily on ingest.
type BucketSet struct {
	mu        sync.RWMutex
	width     time.Duration
	retention time.Duration
	buckets   []models.TimeBucket
	now       func() time.Time
}

// NewBucketSet creates a histogram with the given bucket width and retention
// horizon.
func NewBucketSet(widthMinutes int, retention time.Duration) *BucketSet {
	if widthMinutes <= 0 {
		widthMinutes = 5
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &BucketSet{
		width:     time.Duration(widthMinutes) * time.Minute,
		retention: retention,
		now:       time.Now,
	}
}

// Key floors a timestamp to its bucket start in UTC.
func (b *BucketSet) Key(ts time.Time) time.Time {
	return ts.UTC().Truncate(b.width)
}

// WidthMinutes returns the configured bucket width.
func (b *BucketSet) WidthMinutes() int {
	return int(b.width / time.Minute)
}

// Ingest adds a batch of events to the histogram, pruning expired buckets.
func (b *BucketSet) Ingest(events []models.Event) {
	if len(events) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ev := range events {
		b.add(b.Key(ev.Timestamp), 1)
	}
	b.prune()
}

// add assumes the lock is held.
func (b *BucketSet) add(key time.Time, count int) {
	idx := sort.Search(len(b.buckets), func(i int) bool {
		return !b.buckets[i].Start.Before(key)
	})
	if idx < len(b.buckets) && b.buckets[idx].Start.Equal(key) {
		b.buckets[idx].Count += count
		return
	}
	b.buckets = append(b.buckets, models.TimeBucket{})
	copy(b.buckets[idx+1:], b.buckets[idx:])
	b.buckets[idx] = models.TimeBucket{
		Start:        key,
		WidthMinutes: b.WidthMinutes(),
		Count:        count,
	}
}

// prune assumes the lock is held.
func (b *BucketSet) prune() {
	cutoff := b.Key(b.now().Add(-b.retention))
	idx := 0
	for idx < len(b.buckets) && b.buckets[idx].Start.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		b.buckets = append(b.buckets[:0], b.buckets[idx:]...)
	}
}

// Replace reseeds the histogram from a snapshot stats report, discarding all
// live increments. Timeseries points that fail to parse are skipped.
func (b *BucketSet) Replace(report models.StatsReport) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buckets = b.buckets[:0]
	for _, p := range report.Timeseries {
		ts, err := p.Time()
		if err != nil {
			logger.Warnf("Skipping timeseries point with bad bucket label %q: %v", p.Bucket, err)
			continue
		}
		b.add(b.Key(ts), p.Count)
	}
	b.prune()
}

// Buckets returns a copy of the bucket set ordered by start time.
func (b *BucketSet) Buckets() []models.TimeBucket {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.TimeBucket, len(b.buckets))
	copy(out, b.buckets)
	return out
}

// CountIn sums bucket counts for buckets whose window overlaps [from, to].
func (b *BucketSet) CountIn(from, to time.Time) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, bucket := range b.buckets {
		end := bucket.Start.Add(b.width)
		if bucket.Start.Before(to) && end.After(from) {
			n += bucket.Count
		}
	}
	return n
}

// Earliest returns the start of the oldest bucket, or zero when empty.
func (b *BucketSet) Earliest() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.buckets) == 0 {
		return time.Time{}
	}
	return b.buckets[0].Start
}
