package models

import "time"

// Severity is the derived classification of an event's category.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeverityDefault  Severity = "default"
)

// Event is a single security-relevant record reported by a collector node.
// Severity is derived locally from the category and is never authoritative
// on the wire. Events are immutable once received.
type Event struct {
	ID        int64     `json:"id"`
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"created_at"`
	Category  string    `json:"event_type"`
	Data      string    `json:"data"`
	Severity  Severity  `json:"severity,omitempty"`
}

// ConnectionPhase is the lifecycle phase of the live-feed connection.
type ConnectionPhase int

const (
	PhaseConnecting ConnectionPhase = iota
	PhaseConnected
	PhaseDisconnected
	PhaseReconnecting
)

// String returns the display name of the phase.
func (p ConnectionPhase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ConnectionState describes the live-feed connection. Attempt is only
// meaningful while reconnecting and resets to zero on reaching Connected.
type ConnectionState struct {
	Phase   ConnectionPhase `json:"phase"`
	Attempt int             `json:"attempt,omitempty"`
}

// LiveStats is a pure snapshot of the rolling statistics, recomputed from
// the store, bucket set and snapshot anchors rather than patched in place.
type LiveStats struct {
	Total      int `json:"total"`
	Critical   int `json:"critical"`
	Last24h    int `json:"last24h"`
	AvgPerHour int `json:"avgPerHour"`
}

// TimeBucket is one fixed-width histogram bucket. Start is always the event
// timestamp floored in UTC to a multiple of WidthMinutes.
type TimeBucket struct {
	Start        time.Time `json:"start"`
	WidthMinutes int       `json:"width_minutes"`
	Count        int       `json:"count"`
}
