package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/slickerian/siem/pkg/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "secret", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func TestFetchLogsSendsCriteriaAndPaging(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	var gotKey string

	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotKey = r.Header.Get("X-API-Key")
		json.NewEncoder(w).Encode(models.LogPage{
			Total:    2,
			Critical: 1,
			Items: []models.Event{
				{ID: 2, NodeID: "node-1", Category: "ERROR"},
				{ID: 1, NodeID: "node-1", Category: "INFO"},
			},
		})
	})
	defer srv.Close()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	page, err := c.FetchLogs(context.Background(), models.FilterCriteria{
		NodeID:     "node-1",
		Category:   "ERROR",
		SearchText: "disk",
		StartTime:  start,
	}, 100, 50)
	if err != nil {
		t.Fatalf("fetch logs: %v", err)
	}

	if gotPath != "/api/logs" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotKey != "secret" {
		t.Fatalf("expected API key header, got %q", gotKey)
	}
	if gotQuery.Get("node_id") != "node-1" || gotQuery.Get("event_type") != "ERROR" || gotQuery.Get("q") != "disk" {
		t.Fatalf("unexpected criteria params: %v", gotQuery)
	}
	if gotQuery.Get("start") != "2026-03-01T00:00:00Z" {
		t.Fatalf("unexpected start param: %q", gotQuery.Get("start"))
	}
	if gotQuery.Get("limit") != "100" || gotQuery.Get("offset") != "50" {
		t.Fatalf("unexpected paging params: %v", gotQuery)
	}
	if page.Total != 2 || len(page.Items) != 2 || page.Items[0].ID != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestFetchStatsDecodesReport(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("bucket_minutes") != "5" {
			t.Errorf("unexpected bucket_minutes: %v", r.URL.Query())
		}
		json.NewEncoder(w).Encode(models.StatsReport{
			Histogram:     []models.HistogramEntry{{Category: "ERROR", Count: 3}},
			Timeseries:    []models.TimeseriesPoint{{Bucket: "2026-03-01 10:00:00", Count: 3}},
			BucketMinutes: 5,
		})
	})
	defer srv.Close()

	report, err := c.FetchStats(context.Background(), models.FilterCriteria{}, 5)
	if err != nil {
		t.Fatalf("fetch stats: %v", err)
	}
	if len(report.Timeseries) != 1 || report.Timeseries[0].Count != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	ts, err := report.Timeseries[0].Time()
	if err != nil {
		t.Fatalf("parse bucket label: %v", err)
	}
	if !ts.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected bucket time: %v", ts)
	}
}

func TestFetchNodesAndAnomalies(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/nodes":
			json.NewEncoder(w).Encode([]models.NodeStatus{{NodeID: "node-1", Online: true}})
		case "/api/anomalies/report":
			if r.URL.Query().Get("limit") != "10" {
				t.Errorf("unexpected limit: %v", r.URL.Query())
			}
			json.NewEncoder(w).Encode([]models.Anomaly{{Type: models.AnomalyRogueDevice, NodeIP: "192.168.1.66"}})
		default:
			http.NotFound(w, r)
		}
	})
	defer srv.Close()

	nodes, err := c.FetchNodes(context.Background())
	if err != nil {
		t.Fatalf("fetch nodes: %v", err)
	}
	if len(nodes) != 1 || !nodes[0].Online {
		t.Fatalf("unexpected nodes: %v", nodes)
	}

	anomalies, err := c.FetchAnomalies(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch anomalies: %v", err)
	}
	if len(anomalies) != 1 || anomalies[0].NodeIP != "192.168.1.66" {
		t.Fatalf("unexpected anomalies: %v", anomalies)
	}
}

func TestUpdateSeverityRulesPutsJSON(t *testing.T) {
	var gotMethod string
	var gotBody models.SeverityRules

	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	rules := models.SeverityRules{Critical: "ERROR,FAIL"}
	if err := c.UpdateSeverityRules(context.Background(), rules); err != nil {
		t.Fatalf("update rules: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("expected PUT, got %s", gotMethod)
	}
	if gotBody.Critical != "ERROR,FAIL" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestErrorStatusSurfacesAsError(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	defer srv.Close()

	if _, err := c.FetchNodes(context.Background()); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}

func TestExportURLCarriesCriteria(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://siem.local/"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	got := c.ExportURL(models.FilterCriteria{NodeID: "node-1", SearchText: "disk"})
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse export url: %v", err)
	}
	if u.Path != "/export.csv" {
		t.Fatalf("unexpected path: %s", u.Path)
	}
	q := u.Query()
	if q.Get("node_id") != "node-1" || q.Get("q") != "disk" {
		t.Fatalf("unexpected query: %v", q)
	}

	plain := c.ExportURL(models.FilterCriteria{})
	if plain != "http://siem.local/export.csv" {
		t.Fatalf("unexpected bare export url: %s", plain)
	}
}
