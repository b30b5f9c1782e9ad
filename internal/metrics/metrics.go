package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters and gauges for the ingestion engine. All are registered on the
// default registry and exposed by the view server's /metrics endpoint.
var (
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siemview_events_ingested_total",
		Help: "Events accepted from the live feed.",
	})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siemview_events_dropped_total",
		Help: "Events dropped before reaching the views, by reason.",
	}, []string{"reason"})

	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siemview_reconnect_attempts_total",
		Help: "Live-feed reconnect attempts.",
	})

	ConnectionPhase = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "siemview_connection_phase",
		Help: "Current connection phase (0 connecting, 1 connected, 2 disconnected, 3 reconnecting).",
	})

	SnapshotFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siemview_snapshot_fetches_total",
		Help: "Backing snapshot fetches, by outcome.",
	}, []string{"outcome"})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "siemview_batch_size",
		Help:    "Events per delivered batch.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	TopologyRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siemview_topology_rebuilds_total",
		Help: "Topology graph rebuilds, by outcome.",
	}, []string{"outcome"})
)

// Drop reasons.
const (
	ReasonMalformed  = "malformed"
	ReasonFiltered   = "filtered"
	ReasonDuplicate  = "duplicate"
	ReasonUnparsable = "unparsable_payload"
)
