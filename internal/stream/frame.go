package stream

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/slickerian/siem/pkg/models"
)

type wireFrame struct {
	ID        int64  `json:"id"`
	NodeID    string `json:"node_id"`
	CreatedAt string `json:"created_at"`
	Category  string `json:"event_type"`
	Data      string `json:"data"`

	Total      *int `json:"total"`
	Critical   *int `json:"critical"`
	Last24h    *int `json:"last24h"`
	AvgPerHour *int `json:"avgPerHour"`
}

// DecodeFrame parses one live-feed message into an event plus any aggregate
// fields the server piggybacked on the frame. A frame without an id, node id
// or category is malformed.
func DecodeFrame(data []byte) (models.Event, *models.LiveStats, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return models.Event{}, nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.ID == 0 {
		return models.Event{}, nil, fmt.Errorf("frame missing event id")
	}
	if f.NodeID == "" || f.Category == "" {
		return models.Event{}, nil, fmt.Errorf("frame missing node_id or event_type")
	}

	ts, ok := parseTimestamp(f.CreatedAt)
	if !ok {
		return models.Event{}, nil, fmt.Errorf("frame has unparsable created_at %q", f.CreatedAt)
	}

	ev := models.Event{
		ID:        f.ID,
		NodeID:    f.NodeID,
		Timestamp: ts,
		Category:  f.Category,
		Data:      f.Data,
	}

	var patch *models.LiveStats
	if f.Total != nil && f.Critical != nil && f.Last24h != nil && f.AvgPerHour != nil {
		patch = &models.LiveStats{
			Total:      *f.Total,
			Critical:   *f.Critical,
			Last24h:    *f.Last24h,
			AvgPerHour: *f.AvgPerHour,
		}
	}
	return ev, patch, nil
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
