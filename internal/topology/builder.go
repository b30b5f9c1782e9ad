package topology

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/slickerian/siem/internal/logger"
	"github.com/slickerian/siem/internal/metrics"
	"github.com/slickerian/siem/pkg/models"
)

// Discovery and communication event categories on the wire.
const (
	CategoryDiscovery     = "DEVICE_DISCOVERED"
	CategoryCommunication = "COMMUNICATION_PATTERN"
)

// Source provides the event and anomaly queries the builder derives from.
// *query.Client satisfies it.
type Source interface {
	FetchLogs(ctx context.Context, criteria models.FilterCriteria, limit, offset int) (models.LogPage, error)
	FetchAnomalies(ctx context.Context, limit int) ([]models.Anomaly, error)
}

// Config configures the builder.
type Config struct {
	QueryLimit   int
	AnomalyLimit int
}

// Builder derives the device graph from discovery and communication events
// plus the anomaly feed. Rebuild is idempotent: unchanged inputs produce an
// identical graph, including node order, edge weights and flags.
type Builder struct {
	src        Source
	cfg        Config
	unparsable atomic.Int64
	now        func() time.Time
}

// NewBuilder creates a topology builder over a query source.
func NewBuilder(src Source, cfg Config) *Builder {
	if cfg.QueryLimit <= 0 {
		cfg.QueryLimit = 1000
	}
	if cfg.AnomalyLimit <= 0 {
		cfg.AnomalyLimit = 500
	}
	return &Builder{src: src, cfg: cfg, now: time.Now}
}

// Unparsable returns the count of payloads dropped during rebuilds.
func (b *Builder) Unparsable() int64 {
	return b.unparsable.Load()
}

// Rebuild queries the two event categories and the anomaly feed for the
// given node scope and derives a fresh graph.
func (b *Builder) Rebuild(ctx context.Context, nodeID string) (models.TopologyGraph, error) {
	discovery, err := b.src.FetchLogs(ctx, models.FilterCriteria{NodeID: nodeID, Category: CategoryDiscovery}, b.cfg.QueryLimit, 0)
	if err != nil {
		return models.TopologyGraph{}, fmt.Errorf("query discovery events: %w", err)
	}
	comm, err := b.src.FetchLogs(ctx, models.FilterCriteria{NodeID: nodeID, Category: CategoryCommunication}, b.cfg.QueryLimit, 0)
	if err != nil {
		return models.TopologyGraph{}, fmt.Errorf("query communication events: %w", err)
	}
	anomalies, err := b.src.FetchAnomalies(ctx, b.cfg.AnomalyLimit)
	if err != nil {
		return models.TopologyGraph{}, fmt.Errorf("query anomaly feed: %w", err)
	}

	graph := b.Derive(discovery.Items, comm.Items, anomalies)
	graph.BuiltAt = b.now().UTC()
	return graph, nil
}

// Derive builds the graph from already-fetched inputs. Pure except for the
// unparsable counter, so two calls with the same inputs yield the same
// device set, edge set and weights.
func (b *Builder) Derive(discovery, comm []models.Event, anomalies []models.Anomaly) models.TopologyGraph {
	devices := make(map[string]models.Device)

	// Query pages arrive newest first; walk oldest first so the latest
	// discovery record per IP wins.
	for i := len(discovery) - 1; i >= 0; i-- {
		rec, err := ParseDiscovery(discovery[i].Data)
		if err != nil {
			b.drop(err)
			continue
		}
		devices[rec.IP] = models.Device{
			IP:       rec.IP,
			MAC:      rec.MAC,
			Hostname: rec.Hostname,
			Category: models.DeviceRegular,
		}
	}

	type edgeKey struct{ a, b string }
	weights := make(map[edgeKey]int)
	for i := len(comm) - 1; i >= 0; i-- {
		rec, err := ParseCommunication(comm[i].Data)
		if err != nil {
			b.drop(err)
			continue
		}
		a, bip := rec.SrcIP, rec.DstIP
		if ipLess(bip, a) {
			a, bip = bip, a
		}
		weights[edgeKey{a, bip}] += rec.Count

		// Endpoints never seen in discovery join as external.
		for _, ip := range []string{rec.SrcIP, rec.DstIP} {
			if _, seen := devices[ip]; !seen {
				devices[ip] = models.Device{IP: ip, Category: models.DeviceExternal}
			}
		}
	}

	if gw := gatewayIP(devices); gw != "" {
		d := devices[gw]
		d.Category = models.DeviceGateway
		devices[gw] = d

		// Synthetic star edges keep devices without an observed path to
		// the gateway from rendering orphaned.
		for ip := range devices {
			if ip == gw {
				continue
			}
			a, bip := ip, gw
			if ipLess(bip, a) {
				a, bip = bip, a
			}
			if _, direct := weights[edgeKey{a, bip}]; !direct {
				weights[edgeKey{a, bip}] = -1 // marker, materialized below
			}
		}
	}

	rogue := rogueSet(anomalies)
	for ip := range rogue {
		if d, seen := devices[ip]; seen {
			d.Rogue = true
			devices[ip] = d
		}
	}

	graph := models.TopologyGraph{
		Devices: make([]models.Device, 0, len(devices)),
		Edges:   make([]models.CommunicationEdge, 0, len(weights)),
	}
	for _, d := range devices {
		graph.Devices = append(graph.Devices, d)
	}
	sort.Slice(graph.Devices, func(i, j int) bool {
		return ipLess(graph.Devices[i].IP, graph.Devices[j].IP)
	})

	for key, w := range weights {
		edge := models.CommunicationEdge{A: key.a, B: key.b, Weight: w}
		if w == -1 {
			edge.Weight = 1
			edge.Inferred = true
		}
		graph.Edges = append(graph.Edges, edge)
	}
	sort.Slice(graph.Edges, func(i, j int) bool {
		if graph.Edges[i].A != graph.Edges[j].A {
			return ipLess(graph.Edges[i].A, graph.Edges[j].A)
		}
		return ipLess(graph.Edges[i].B, graph.Edges[j].B)
	})

	Layout(graph.Devices, graph.Edges)
	return graph
}

func (b *Builder) drop(err error) {
	b.unparsable.Add(1)
	metrics.EventsDropped.WithLabelValues(metrics.ReasonUnparsable).Inc()
	logger.Debugf("Dropping unparsable topology payload: %v", err)
}

// gatewayIP picks the discovered device most likely to be the gateway: the
// address whose host part sits next to the network or broadcast address
// (.1, then .254). Ties break to the lowest address so the pick is stable
// across rebuilds.
func gatewayIP(devices map[string]models.Device) string {
	var primary, fallback string
	for ip, d := range devices {
		if d.Category == models.DeviceExternal {
			continue
		}
		if strings.HasSuffix(ip, ".1") {
			if primary == "" || ipLess(ip, primary) {
				primary = ip
			}
		}
		if strings.HasSuffix(ip, ".254") {
			if fallback == "" || ipLess(ip, fallback) {
				fallback = ip
			}
		}
	}
	if primary != "" {
		return primary
	}
	return fallback
}

func rogueSet(anomalies []models.Anomaly) map[string]struct{} {
	out := make(map[string]struct{})
	for _, a := range anomalies {
		if a.Type == models.AnomalyRogueDevice && a.NodeIP != "" {
			out[a.NodeIP] = struct{}{}
		}
	}
	return out
}

// ipLess orders dotted-quad addresses numerically, falling back to string
// order for anything unparseable.
func ipLess(a, b string) bool {
	ao := strings.Split(a, ".")
	bo := strings.Split(b, ".")
	if len(ao) != 4 || len(bo) != 4 {
		return a < b
	}
	for i := 0; i < 4; i++ {
		av, aerr := strconv.Atoi(ao[i])
		bv, berr := strconv.Atoi(bo[i])
		if aerr != nil || berr != nil {
			return a < b
		}
		if av != bv {
			return av < bv
		}
	}
	return false
}
