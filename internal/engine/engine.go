package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slickerian/siem/internal/aggregate"
	"github.com/slickerian/siem/internal/buffer"
	"github.com/slickerian/siem/internal/filter"
	"github.com/slickerian/siem/internal/logger"
	"github.com/slickerian/siem/internal/metrics"
	"github.com/slickerian/siem/internal/output/eventjson"
	"github.com/slickerian/siem/internal/severity"
	"github.com/slickerian/siem/internal/store"
	"github.com/slickerian/siem/internal/stream"
	"github.com/slickerian/siem/internal/topology"
	"github.com/slickerian/siem/pkg/models"
)

// Querier is the backing query API surface the engine depends on.
// *query.Client satisfies it.
type Querier interface {
	filter.Fetcher
	FetchNodes(ctx context.Context) ([]models.NodeStatus, error)
	FetchAnomalies(ctx context.Context, limit int) ([]models.Anomaly, error)
}

// Config controls the engine.
type Config struct {
	StoreCapacity    int
	BucketMinutes    int
	BucketRetention  time.Duration
	Quiescence       time.Duration
	MaxBatch         int
	Debounce         time.Duration
	PageLimit        int
	TopologyInterval time.Duration
	TopologyScope    string
	QueryTimeout     time.Duration
}

// View is one consistent observation of the aggregated state. A batch is
// always applied to the store, bucket set and stats together before a new
// view is published, so readers never see a store update without the
// matching aggregator update.
type View struct {
	Events   []models.Event        `json:"events"`
	Buckets  []models.TimeBucket   `json:"buckets"`
	Stats    models.LiveStats      `json:"stats"`
	Criteria models.FilterCriteria `json:"criteria"`
	SeededAt time.Time             `json:"seeded_at,omitempty"`
}

// Engine owns ingestion-to-aggregation: exactly one loop applies batches,
// snapshot seeds and connection transitions to the stateful components.
// Everything outside that loop only reads published views or posts inputs.
type Engine struct {
	cfg        Config
	feed       stream.Feed
	classifier *severity.Classifier
	querier    Querier
	topo       *topology.Builder
	capture    *eventjson.Writer

	events  *store.Bounded
	buckets *aggregate.BucketSet
	stats   *aggregate.Stats
	filters *filter.Engine
	batcher *buffer.Batcher

	batchCh chan []models.Event
	seedCh  chan filter.Seed
	stateCh chan models.ConnectionState
	errCh   chan error
	topoCh  chan models.TopologyGraph
	nodesCh chan []models.NodeStatus
	rulesCh chan models.SeverityRules

	lastPatch atomic.Pointer[models.LiveStats]

	mu        sync.RWMutex
	view      View
	conn      models.ConnectionState
	topoGraph models.TopologyGraph
	nodes     []models.NodeStatus
	lastErr   error

	handle       *stream.Handle
	loopDone     chan struct{}
	closeOnce    sync.Once
	wasConnected bool
}

// New wires an engine from its collaborators. capture may be nil.
func New(cfg Config, feed stream.Feed, classifier *severity.Classifier, querier Querier, topo *topology.Builder, capture *eventjson.Writer) *Engine {
	if cfg.StoreCapacity <= 0 {
		cfg.StoreCapacity = 500
	}
	if cfg.BucketMinutes <= 0 {
		cfg.BucketMinutes = 5
	}
	if cfg.BucketRetention <= 0 {
		cfg.BucketRetention = 24 * time.Hour
	}
	if cfg.TopologyInterval <= 0 {
		cfg.TopologyInterval = 30 * time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 10 * time.Second
	}

	e := &Engine{
		cfg:        cfg,
		feed:       feed,
		classifier: classifier,
		querier:    querier,
		topo:       topo,
		capture:    capture,
		events:     store.NewBounded(cfg.StoreCapacity),
		buckets:    aggregate.NewBucketSet(cfg.BucketMinutes, cfg.BucketRetention),
		stats:      aggregate.NewStats(),
		batchCh:    make(chan []models.Event, 16),
		seedCh:     make(chan filter.Seed, 4),
		stateCh:    make(chan models.ConnectionState, 16),
		errCh:      make(chan error, 4),
		topoCh:     make(chan models.TopologyGraph, 1),
		nodesCh:    make(chan []models.NodeStatus, 1),
		rulesCh:    make(chan models.SeverityRules, 1),
		loopDone:   make(chan struct{}),
	}

	e.filters = filter.NewEngine(filter.Config{
		Debounce:      cfg.Debounce,
		PageLimit:     cfg.PageLimit,
		BucketMinutes: cfg.BucketMinutes,
	}, querier, e.postSeed, e.postError)

	e.batcher = buffer.NewBatcher(cfg.Quiescence, cfg.MaxBatch, e.postBatch)
	return e
}

// Run opens the feed, requests the initial snapshot and processes inputs
// until ctx is canceled or Close is called.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.loopDone)

	handle, err := e.feed.Open(e.onEvent, e.onState)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.handle = handle
	e.mu.Unlock()

	// Initial seed, bypassing the debounce window.
	e.filters.Refresh()

	topoTicker := time.NewTicker(e.cfg.TopologyInterval)
	defer topoTicker.Stop()
	go e.rebuildTopology(ctx)
	go e.refreshNodes(ctx)

	logger.Infof("Ingestion engine started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch := <-e.batchCh:
			e.applyBatch(batch)
		case seed := <-e.seedCh:
			e.applySeed(seed)
		case state := <-e.stateCh:
			e.applyState(state)
		case err := <-e.errCh:
			e.applyError(err)
		case <-topoTicker.C:
			go e.rebuildTopology(ctx)
			go e.refreshNodes(ctx)
		case graph := <-e.topoCh:
			e.mu.Lock()
			e.topoGraph = graph
			e.mu.Unlock()
		case nodes := <-e.nodesCh:
			e.mu.Lock()
			e.nodes = nodes
			e.mu.Unlock()
		case rules := <-e.rulesCh:
			e.applyRules(rules)
		}
	}
}

// Close tears the engine down in dependency order: quiescence timer first,
// then the debounce timer, then the connector with its reconnect timer. No
// state mutation happens after Close starts; late snapshot responses and
// batches are dropped.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.batcher.Close()
		e.filters.Close()
		e.mu.RLock()
		handle := e.handle
		e.mu.RUnlock()
		if handle != nil {
			handle.Close()
		}
		if e.capture != nil {
			if err := e.capture.Close(); err != nil {
				logger.Errorf("Failed to close capture writer: %v", err)
			}
		}
		logger.Infof("Ingestion engine stopped")
	})
	return nil
}

// SetCriteria replaces the filter criteria; the change debounces before it
// triggers a criteria-scoped reseed.
func (e *Engine) SetCriteria(c models.FilterCriteria) {
	e.filters.SetCriteria(c)
}

// Retry re-requests the snapshot after a surfaced fetch failure.
func (e *Engine) Retry() {
	e.filters.Refresh()
}

// UpdateRules swaps the classification rule table and requests an explicit
// recompute of already-displayed events.
func (e *Engine) UpdateRules(rules models.SeverityRules) {
	select {
	case e.rulesCh <- rules:
	case <-e.loopDone:
	}
}

// CurrentView returns the latest consistent view of events, histogram and
// stats.
func (e *Engine) CurrentView() View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view
}

// Connection returns the live-feed connection state.
func (e *Engine) Connection() models.ConnectionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.conn
}

// Topology returns the latest derived device graph.
func (e *Engine) Topology() models.TopologyGraph {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.topoGraph
}

// Nodes returns the known collector nodes.
func (e *Engine) Nodes() []models.NodeStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nodes
}

// LastError returns the most recent surfaced snapshot failure, cleared by
// the next successful seed.
func (e *Engine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// onEvent runs on the feed goroutine: it only buffers.
func (e *Engine) onEvent(ev models.Event, patch *models.LiveStats) {
	if patch != nil {
		e.lastPatch.Store(patch)
	}
	e.batcher.Push(ev)
}

// onState runs on the feed goroutine.
func (e *Engine) onState(state models.ConnectionState) {
	metrics.ConnectionPhase.Set(float64(state.Phase))
	select {
	case e.stateCh <- state:
	case <-e.loopDone:
	}
}

func (e *Engine) postBatch(batch []models.Event) {
	select {
	case e.batchCh <- batch:
	case <-e.loopDone:
	}
}

func (e *Engine) postSeed(seed filter.Seed) {
	select {
	case e.seedCh <- seed:
	case <-e.loopDone:
	}
}

func (e *Engine) postError(err error) {
	select {
	case e.errCh <- err:
	case <-e.loopDone:
	}
}

// applyBatch is the atomic update step: membership test, severity tagging,
// store merge, bucket ingest and stats patch all land before the new view
// is published.
func (e *Engine) applyBatch(batch []models.Event) {
	criteria := e.filters.Current()

	matched := batch[:0]
	for _, ev := range batch {
		if filter.Matches(criteria, ev) {
			matched = append(matched, ev)
		} else {
			metrics.EventsDropped.WithLabelValues(metrics.ReasonFiltered).Inc()
		}
	}
	if len(matched) == 0 {
		return
	}

	tagged := e.classifier.Tag(matched)
	inserted := e.events.Insert(tagged)
	if dups := len(tagged) - len(inserted); dups > 0 {
		metrics.EventsDropped.WithLabelValues(metrics.ReasonDuplicate).Add(float64(dups))
	}
	if len(inserted) == 0 {
		return
	}

	e.buckets.Ingest(inserted)
	refetch := e.stats.Ingest(inserted)

	// Aggregate fields piggybacked on live frames are authoritative for
	// the unfiltered scope; adopting them clears the increments they
	// already cover.
	if patch := e.lastPatch.Swap(nil); patch != nil && criteria.IsZero() {
		e.stats.Patch(*patch)
	}

	if e.capture != nil {
		if err := e.capture.WriteEvents(inserted); err != nil {
			logger.Errorf("Failed to capture events: %v", err)
		}
	}

	e.publish()

	if refetch {
		logger.Infof("Backfill overlaps snapshot coverage, refetching")
		e.filters.Refresh()
	}
}

// applySeed replaces the store, bucket set and stats anchors wholesale from
// a criteria-scoped snapshot.
func (e *Engine) applySeed(seed filter.Seed) {
	e.events.Replace(e.classifier.Tag(seed.Page.Items))
	e.buckets.Replace(seed.Report)
	e.stats.Seed(seed.Page)

	e.mu.Lock()
	e.lastErr = nil
	e.mu.Unlock()

	e.publish()
	logger.Debugf("Reseeded views: %d events, criteria=%+v", len(seed.Page.Items), seed.Criteria)
}

func (e *Engine) applyState(state models.ConnectionState) {
	e.mu.Lock()
	prevConnected := e.wasConnected
	if state.Phase == models.PhaseConnected {
		e.wasConnected = true
	}
	e.conn = state
	e.mu.Unlock()

	// A reconnect is an explicit refetch boundary: anything missed while
	// down is recovered by reseeding, not by patching.
	if state.Phase == models.PhaseConnected && prevConnected {
		logger.Infof("Live feed restored, refetching snapshot")
		e.filters.Refresh()
	}
}

// applyRules retags the stored events under the new table, then reseeds so
// the stats anchors also reflect it.
func (e *Engine) applyRules(rules models.SeverityRules) {
	e.classifier.Update(rules)
	e.events.Replace(e.classifier.Tag(e.events.Snapshot()))
	e.publish()
	logger.Infof("Severity rules updated, recomputing")
	e.filters.Refresh()
}

func (e *Engine) applyError(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
	logger.Errorf("Snapshot fetch failed: %v", err)
}

func (e *Engine) publish() {
	view := View{
		Events:   e.events.Snapshot(),
		Buckets:  e.buckets.Buckets(),
		Stats:    e.stats.Snapshot(),
		Criteria: e.filters.Current(),
		SeededAt: time.Now().UTC(),
	}
	e.mu.Lock()
	e.view = view
	e.mu.Unlock()
}

func (e *Engine) rebuildTopology(ctx context.Context) {
	if e.topo == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	graph, err := e.topo.Rebuild(rctx, e.cfg.TopologyScope)
	if err != nil {
		metrics.TopologyRebuilds.WithLabelValues("error").Inc()
		logger.Warnf("Topology rebuild failed: %v", err)
		return
	}
	metrics.TopologyRebuilds.WithLabelValues("ok").Inc()
	select {
	case e.topoCh <- graph:
	case <-e.loopDone:
	case <-ctx.Done():
	}
}

func (e *Engine) refreshNodes(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	nodes, err := e.querier.FetchNodes(rctx)
	if err != nil {
		logger.Warnf("Node list refresh failed: %v", err)
		return
	}
	select {
	case e.nodesCh <- nodes:
	case <-e.loopDone:
	case <-ctx.Done():
	}
}
