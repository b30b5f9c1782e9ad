package filter

import (
	"testing"
	"time"

	"github.com/slickerian/siem/pkg/models"
)

func TestMatchesZeroCriteriaAcceptsEverything(t *testing.T) {
	ev := models.Event{ID: 1, NodeID: "node-1", Category: "ERROR", Data: "disk full"}
	if !Matches(models.FilterCriteria{}, ev) {
		t.Fatalf("zero criteria should match any event")
	}
}

func TestMatchesNodeAndCategoryAreExact(t *testing.T) {
	ev := models.Event{ID: 1, NodeID: "node-1", Category: "ERROR"}

	if !Matches(models.FilterCriteria{NodeID: "node-1", Category: "ERROR"}, ev) {
		t.Fatalf("expected exact node and category to match")
	}
	if Matches(models.FilterCriteria{NodeID: "node-2"}, ev) {
		t.Fatalf("expected node mismatch to reject")
	}
	if Matches(models.FilterCriteria{Category: "ERR"}, ev) {
		t.Fatalf("category matching must be exact, not a prefix")
	}
}

func TestMatchesSearchTextIsCaseInsensitiveSubstring(t *testing.T) {
	ev := models.Event{ID: 1, Category: "LOGIN_DENIED", Data: "user=Admin from 10.0.0.9"}

	if !Matches(models.FilterCriteria{SearchText: "admin"}, ev) {
		t.Fatalf("expected search to match payload case-insensitively")
	}
	if !Matches(models.FilterCriteria{SearchText: "denied"}, ev) {
		t.Fatalf("expected search to match category case-insensitively")
	}
	if Matches(models.FilterCriteria{SearchText: "firmware"}, ev) {
		t.Fatalf("expected non-matching search to reject")
	}
}

func TestMatchesTimeRangeIsInclusive(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := models.Event{ID: 1, Timestamp: ts}

	if !Matches(models.FilterCriteria{StartTime: ts, EndTime: ts}, ev) {
		t.Fatalf("expected boundary timestamps to be included")
	}
	if Matches(models.FilterCriteria{StartTime: ts.Add(time.Second)}, ev) {
		t.Fatalf("expected event before start to be rejected")
	}
	if Matches(models.FilterCriteria{EndTime: ts.Add(-time.Second)}, ev) {
		t.Fatalf("expected event after end to be rejected")
	}
}
