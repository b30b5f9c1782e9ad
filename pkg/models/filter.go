package models

import "time"

// FilterCriteria scopes the event views. The zero value matches everything.
// Criteria are immutable values replaced wholesale on change.
type FilterCriteria struct {
	NodeID     string    `json:"node_id,omitempty"`
	Category   string    `json:"event_type,omitempty"`
	SearchText string    `json:"q,omitempty"`
	StartTime  time.Time `json:"start,omitempty"`
	EndTime    time.Time `json:"end,omitempty"`
}

// IsZero reports whether no filter is active.
func (c FilterCriteria) IsZero() bool {
	return c.NodeID == "" && c.Category == "" && c.SearchText == "" &&
		c.StartTime.IsZero() && c.EndTime.IsZero()
}
