package viewserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slickerian/siem/internal/engine"
	"github.com/slickerian/siem/internal/query"
	"github.com/slickerian/siem/internal/severity"
	"github.com/slickerian/siem/internal/stream"
	"github.com/slickerian/siem/pkg/models"
)

type noopFeed struct{}

func (noopFeed) Open(stream.OnEvent, stream.OnState) (*stream.Handle, error) {
	done := make(chan struct{})
	return stream.NewHandle(func() { close(done) }, done), nil
}

type noopQuerier struct{}

func (noopQuerier) FetchLogs(ctx context.Context, criteria models.FilterCriteria, limit, offset int) (models.LogPage, error) {
	return models.LogPage{}, nil
}

func (noopQuerier) FetchStats(ctx context.Context, criteria models.FilterCriteria, bucketMinutes int) (models.StatsReport, error) {
	return models.StatsReport{}, nil
}

func (noopQuerier) FetchNodes(ctx context.Context) ([]models.NodeStatus, error) {
	return nil, nil
}

func (noopQuerier) FetchAnomalies(ctx context.Context, limit int) ([]models.Anomaly, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	eng := engine.New(engine.Config{}, noopFeed{}, severity.NewClassifier(severity.DefaultRules()), noopQuerier{}, nil, nil)
	t.Cleanup(func() { eng.Close() })

	client, err := query.NewClient(query.Config{BaseURL: "http://siem.local", Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	srv := httptest.NewServer(NewServer(eng, client).Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestConnectionViewReportsPhase(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/views/connection")
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Phase   string `json:"phase"`
		Attempt int    `json:"attempt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Phase != "connecting" {
		t.Fatalf("unexpected phase: %q", body.Phase)
	}
}

func TestSetFilterValidatesPayload(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/views/filter", "application/json", strings.NewReader(`{"node_id":"node-1"}`))
	if err != nil {
		t.Fatalf("post filter: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for valid criteria, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/views/filter", "application/json", strings.NewReader(`not json`))
	if err != nil {
		t.Fatalf("post filter: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid criteria, got %d", resp.StatusCode)
	}
}

func TestExportURLView(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/views/export-url")
	if err != nil {
		t.Fatalf("get export url: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["url"] != "http://siem.local/export.csv" {
		t.Fatalf("unexpected export url: %q", body["url"])
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", resp.StatusCode)
	}
}
