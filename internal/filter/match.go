package filter

import (
	"strings"

	"github.com/slickerian/siem/pkg/models"
)

// Matches is the live membership test: stream events join the views only if
// they satisfy the current criteria. Category and node are exact matches,
// search text is a case-insensitive substring over category and payload, and
// the time range is inclusive.
func Matches(c models.FilterCriteria, ev models.Event) bool {
	if c.NodeID != "" && ev.NodeID != c.NodeID {
		return false
	}
	if c.Category != "" && ev.Category != c.Category {
		return false
	}
	if c.SearchText != "" {
		q := strings.ToLower(c.SearchText)
		if !strings.Contains(strings.ToLower(ev.Category), q) &&
			!strings.Contains(strings.ToLower(ev.Data), q) {
			return false
		}
	}
	if !c.StartTime.IsZero() && ev.Timestamp.Before(c.StartTime) {
		return false
	}
	if !c.EndTime.IsZero() && ev.Timestamp.After(c.EndTime) {
		return false
	}
	return true
}
