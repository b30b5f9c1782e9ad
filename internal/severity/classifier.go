package severity

import (
	"strings"
	"sync/atomic"

	"github.com/slickerian/siem/pkg/models"
)

// ruleSet is an immutable, lowercased pattern table. Readers always see a
// complete table; updates swap the whole pointer.
type ruleSet struct {
	critical []string
	warning  []string
	info     []string
}

// Classifier maps an event category to a severity class using substring
// patterns. Safe for concurrent use; Update may be called from outside the
// ingestion task and takes effect on the next classification.
type Classifier struct {
	rules atomic.Pointer[ruleSet]
}

// DefaultRules mirror the server's built-in pattern lists, used until the
// server-held rules are fetched.
func DefaultRules() models.SeverityRules {
	return models.SeverityRules{
		Critical: "ERROR,CRITICAL,FAIL,ACTION_FAILED",
		Warning:  "WARN,SUSPICIOUS,DENIED",
		Info:     "INFO,STARTED,DISCOVERED",
	}
}

// NewClassifier creates a classifier from a pattern table.
func NewClassifier(rules models.SeverityRules) *Classifier {
	c := &Classifier{}
	c.Update(rules)
	return c
}

// Update atomically replaces the pattern table.
func (c *Classifier) Update(rules models.SeverityRules) {
	c.rules.Store(&ruleSet{
		critical: splitPatterns(rules.Critical),
		warning:  splitPatterns(rules.Warning),
		info:     splitPatterns(rules.Info),
	})
}

// Classify returns the severity class for a category.
func (c *Classifier) Classify(category string) models.Severity {
	rs := c.rules.Load()
	if rs == nil {
		return models.SeverityDefault
	}
	cat := strings.ToLower(strings.TrimSpace(category))
	switch {
	case matchAny(cat, rs.critical):
		return models.SeverityCritical
	case matchAny(cat, rs.warning):
		return models.SeverityWarning
	case matchAny(cat, rs.info):
		return models.SeverityInfo
	default:
		return models.SeverityDefault
	}
}

// Tag derives severities for a batch in place and returns it.
func (c *Classifier) Tag(events []models.Event) []models.Event {
	for i := range events {
		events[i].Severity = c.Classify(events[i].Category)
	}
	return events
}

func matchAny(category string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(category, p) {
			return true
		}
	}
	return false
}

func splitPatterns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.ToLower(strings.TrimSpace(p))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
