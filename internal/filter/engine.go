package filter

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slickerian/siem/internal/logger"
	"github.com/slickerian/siem/internal/metrics"
	"github.com/slickerian/siem/pkg/models"
)

// Fetcher requests criteria-scoped snapshots from the backing query API.
// *query.Client satisfies it.
type Fetcher interface {
	FetchLogs(ctx context.Context, criteria models.FilterCriteria, limit, offset int) (models.LogPage, error)
	FetchStats(ctx context.Context, criteria models.FilterCriteria, bucketMinutes int) (models.StatsReport, error)
}

// Seed is a complete criteria-scoped snapshot: the page reseeds the bounded
// store and stats anchors, the report reseeds the bucket set.
type Seed struct {
	Criteria models.FilterCriteria
	Page     models.LogPage
	Report   models.StatsReport
}

// Config configures the filter engine.
type Config struct {
	Debounce      time.Duration
	PageLimit     int
	BucketMinutes int
}

// Engine debounces filter-criteria changes and turns each settled change
// into one snapshot request. Concurrent changes coalesce: only the most
// recent criteria after the debounce window executes, and superseded
// in-flight requests are discarded even if their responses arrive later.
type Engine struct {
	cfg     Config
	fetcher Fetcher
	onSeed  func(Seed)
	onError func(error)

	mu       sync.Mutex
	criteria models.FilterCriteria
	timer    *time.Timer
	latest   uuid.UUID
	cancel   context.CancelFunc
	closed   bool
}

// NewEngine creates a filter engine. onSeed receives snapshots that are
// still current when their responses arrive; onError receives fetch failures
// for non-superseded requests only.
func NewEngine(cfg Config, fetcher Fetcher, onSeed func(Seed), onError func(error)) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 250 * time.Millisecond
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 500
	}
	if cfg.BucketMinutes <= 0 {
		cfg.BucketMinutes = 5
	}
	return &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		onSeed:  onSeed,
		onError: onError,
	}
}

// Current returns the criteria live events are matched against.
func (e *Engine) Current() models.FilterCriteria {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.criteria
}

// SetCriteria replaces the criteria wholesale and arms the debounce timer.
// Calls within the window coalesce into one snapshot request carrying the
// last criteria.
func (e *Engine) SetCriteria(c models.FilterCriteria) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.criteria = c
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.cfg.Debounce, e.fire)
}

// Refresh requests a fresh snapshot for the current criteria immediately,
// bypassing the debounce window. Used for the manual retry action and for
// the refetch forced by a reconnect backfill.
func (e *Engine) Refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.launch()
}

// Close cancels the debounce timer and any in-flight request. Responses
// arriving after Close are dropped.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *Engine) fire() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.timer = nil
	e.launch()
}

// launch assumes the lock is held. It supersedes any in-flight request.
func (e *Engine) launch() {
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	id := uuid.New()
	e.latest = id
	criteria := e.criteria

	go e.fetch(ctx, id, criteria)
}

func (e *Engine) fetch(ctx context.Context, id uuid.UUID, criteria models.FilterCriteria) {
	page, err := e.fetcher.FetchLogs(ctx, criteria, e.cfg.PageLimit, 0)
	if err != nil {
		e.finishErr(id, err)
		return
	}
	report, err := e.fetcher.FetchStats(ctx, criteria, e.cfg.BucketMinutes)
	if err != nil {
		e.finishErr(id, err)
		return
	}

	e.mu.Lock()
	stale := e.closed || id != e.latest
	e.mu.Unlock()
	if stale {
		metrics.SnapshotFetches.WithLabelValues("stale").Inc()
		logger.Debugf("Discarding superseded snapshot response")
		return
	}

	metrics.SnapshotFetches.WithLabelValues("ok").Inc()
	e.onSeed(Seed{Criteria: criteria, Page: page, Report: report})
}

func (e *Engine) finishErr(id uuid.UUID, err error) {
	e.mu.Lock()
	stale := e.closed || id != e.latest
	e.mu.Unlock()
	if stale {
		metrics.SnapshotFetches.WithLabelValues("stale").Inc()
		return
	}
	metrics.SnapshotFetches.WithLabelValues("error").Inc()
	if e.onError != nil {
		e.onError(err)
	}
}
