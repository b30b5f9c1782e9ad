package models

import "time"

// LogPage is one page of events from the backing query API, together with
// the aggregate fields the server computes for the same filter scope.
type LogPage struct {
	Total      int     `json:"total"`
	Critical   int     `json:"critical"`
	Last24h    int     `json:"last24h"`
	AvgPerHour int     `json:"avgPerHour"`
	Items      []Event `json:"items"`
}

// HistogramEntry is a per-category count from the stats endpoint.
type HistogramEntry struct {
	Category string `json:"event_type"`
	Count    int    `json:"count"`
}

// TimeseriesPoint is one bucketed count from the stats endpoint. The server
// formats the bucket as "2006-01-02 15:04:05" in UTC.
type TimeseriesPoint struct {
	Bucket string `json:"bucket"`
	Count  int    `json:"count"`
}

// Time parses the bucket label as a UTC timestamp.
func (p TimeseriesPoint) Time() (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04:05", p.Bucket, time.UTC)
}

// StatsReport is the stats-query response used to seed the local histogram.
type StatsReport struct {
	Histogram     []HistogramEntry  `json:"histogram"`
	Timeseries    []TimeseriesPoint `json:"timeseries"`
	BucketMinutes int               `json:"bucket_minutes"`
	Start         string            `json:"start,omitempty"`
	End           string            `json:"end,omitempty"`
}

// NodeStatus is one collector node and its liveness.
type NodeStatus struct {
	NodeID string `json:"node_id"`
	Online bool   `json:"online"`
}

// NodeSettings is the per-node collection configuration.
type NodeSettings struct {
	NodeID              string `json:"node_id"`
	Name                string `json:"name"`
	EnableCollection    bool   `json:"enable_collection"`
	SendIntervalSeconds int    `json:"send_interval_seconds"`
}

// SeverityRules are the server-held classification pattern lists. Each field
// is a comma-separated list of category substrings.
type SeverityRules struct {
	Critical string `json:"critical"`
	Warning  string `json:"warning"`
	Info     string `json:"info"`
}

// Anomaly types reported by the anomaly feed.
const (
	AnomalyNewNode           = "NEW_NODE"
	AnomalyExcessiveRequests = "EXCESSIVE_REQUESTS"
	AnomalyRogueDevice       = "ROGUE_DEVICE"
)

// Anomaly is one entry from the anomaly report feed. Only the fields
// relevant to the reported type are populated.
type Anomaly struct {
	Type       string  `json:"type"`
	Timestamp  float64 `json:"timestamp"`
	NodeIP     string  `json:"node_ip"`
	MAC        string  `json:"mac,omitempty"`
	Hostname   string  `json:"hostname,omitempty"`
	Severity   string  `json:"severity"`
	Baseline   float64 `json:"baseline,omitempty"`
	Current    int     `json:"current,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
}
