package buffer

import (
	"sync"
	"time"

	"github.com/slickerian/siem/internal/metrics"
	"github.com/slickerian/siem/pkg/models"
)

// Batcher accumulates live events in arrival order and releases them in one
// atomic flush. A flush is triggered by whichever comes first: a quiescence
// timer armed on the first buffered event, the max batch size, or an
// explicit Flush call. After Close no further deliveries happen.
type Batcher struct {
	mu         sync.Mutex
	quiescence time.Duration
	maxBatch   int
	deliver    func([]models.Event)
	pending    []models.Event
	timer      *time.Timer
	closed     bool
}

// NewBatcher creates a batcher delivering batches to deliver. The callback
// runs without the batcher lock held and receives ownership of the slice.
func NewBatcher(quiescence time.Duration, maxBatch int, deliver func([]models.Event)) *Batcher {
	if quiescence <= 0 {
		quiescence = 750 * time.Millisecond
	}
	if maxBatch <= 0 {
		maxBatch = 200
	}
	return &Batcher{
		quiescence: quiescence,
		maxBatch:   maxBatch,
		deliver:    deliver,
	}
}

// Push buffers one event. The quiescence timer is armed once, on the first
// event of a burst, so low-traffic events still flush promptly.
func (b *Batcher) Push(ev models.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	b.pending = append(b.pending, ev)
	if len(b.pending) >= b.maxBatch {
		batch := b.take()
		b.mu.Unlock()
		b.dispatch(batch)
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.quiescence, b.onTimer)
	}
	b.mu.Unlock()
}

// Flush delivers any buffered events immediately.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	batch := b.take()
	b.mu.Unlock()
	b.dispatch(batch)
}

// Close cancels the quiescence timer and drops any buffered events. It is
// idempotent; no delivery happens during or after Close.
func (b *Batcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = nil
}

func (b *Batcher) onTimer() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	batch := b.take()
	b.mu.Unlock()
	b.dispatch(batch)
}

// take assumes the lock is held. It releases the timer handle so the next
// Push arms a fresh one.
func (b *Batcher) take() []models.Event {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.pending
	b.pending = nil
	return batch
}

func (b *Batcher) dispatch(batch []models.Event) {
	if len(batch) == 0 {
		return
	}
	metrics.BatchSize.Observe(float64(len(batch)))
	b.deliver(batch)
}
