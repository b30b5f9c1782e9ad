package severity

import (
	"testing"

	"github.com/slickerian/siem/pkg/models"
)

func TestClassifyDefaultRules(t *testing.T) {
	c := NewClassifier(DefaultRules())

	cases := []struct {
		category string
		want     models.Severity
	}{
		{"ERROR", models.SeverityCritical},
		{"ACTION_FAILED", models.SeverityCritical},
		{"auth_failure", models.SeverityCritical},
		{"LOGIN_DENIED", models.SeverityWarning},
		{"DEVICE_DISCOVERED", models.SeverityInfo},
		{"HEARTBEAT", models.SeverityDefault},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.category); got != tc.want {
			t.Fatalf("Classify(%q) = %q, want %q", tc.category, got, tc.want)
		}
	}
}

func TestClassifyMatchesCaseInsensitiveSubstring(t *testing.T) {
	c := NewClassifier(models.SeverityRules{Critical: "fail"})

	if got := c.Classify("ACTION_FAILED"); got != models.SeverityCritical {
		t.Fatalf("expected substring match to classify as critical, got %q", got)
	}
	if got := c.Classify("SUCCESS"); got != models.SeverityDefault {
		t.Fatalf("expected default severity, got %q", got)
	}
}

func TestUpdateReplacesRules(t *testing.T) {
	c := NewClassifier(models.SeverityRules{Critical: "ERROR"})
	if got := c.Classify("ERROR"); got != models.SeverityCritical {
		t.Fatalf("expected critical before update, got %q", got)
	}

	c.Update(models.SeverityRules{Warning: "ERROR"})
	if got := c.Classify("ERROR"); got != models.SeverityWarning {
		t.Fatalf("expected warning after update, got %q", got)
	}
}

func TestTagSetsSeverityInPlace(t *testing.T) {
	c := NewClassifier(DefaultRules())
	events := []models.Event{
		{ID: 1, Category: "ERROR"},
		{ID: 2, Category: "HEARTBEAT"},
	}

	tagged := c.Tag(events)
	if tagged[0].Severity != models.SeverityCritical {
		t.Fatalf("expected first event critical, got %q", tagged[0].Severity)
	}
	if tagged[1].Severity != models.SeverityDefault {
		t.Fatalf("expected second event default, got %q", tagged[1].Severity)
	}
}
