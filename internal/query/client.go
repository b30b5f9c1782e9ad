package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/slickerian/siem/pkg/models"
)

// Config configures the backing query API client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is a read-mostly client for the SIEM server's query API. Requests
// use a bounded timeout; a timeout is a failure, never retried here.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a query client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("query base URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// criteriaValues maps filter criteria onto the query parameters shared by
// the logs, stats and export endpoints.
func criteriaValues(c models.FilterCriteria) url.Values {
	v := url.Values{}
	if c.NodeID != "" {
		v.Set("node_id", c.NodeID)
	}
	if c.Category != "" {
		v.Set("event_type", c.Category)
	}
	if c.SearchText != "" {
		v.Set("q", c.SearchText)
	}
	if !c.StartTime.IsZero() {
		v.Set("start", c.StartTime.UTC().Format(time.RFC3339))
	}
	if !c.EndTime.IsZero() {
		v.Set("end", c.EndTime.UTC().Format(time.RFC3339))
	}
	return v
}

// FetchLogs returns one page of events plus aggregate fields for the scope.
func (c *Client) FetchLogs(ctx context.Context, criteria models.FilterCriteria, limit, offset int) (models.LogPage, error) {
	if limit <= 0 {
		limit = 500
	}
	v := criteriaValues(criteria)
	v.Set("limit", strconv.Itoa(limit))
	v.Set("offset", strconv.Itoa(offset))

	var page models.LogPage
	if err := c.getJSON(ctx, "/api/logs", v, &page); err != nil {
		return models.LogPage{}, fmt.Errorf("fetch logs: %w", err)
	}
	return page, nil
}

// FetchStats returns the histogram and timeseries for the scope.
func (c *Client) FetchStats(ctx context.Context, criteria models.FilterCriteria, bucketMinutes int) (models.StatsReport, error) {
	v := criteriaValues(criteria)
	if bucketMinutes > 0 {
		v.Set("bucket_minutes", strconv.Itoa(bucketMinutes))
	}

	var report models.StatsReport
	if err := c.getJSON(ctx, "/api/stats", v, &report); err != nil {
		return models.StatsReport{}, fmt.Errorf("fetch stats: %w", err)
	}
	return report, nil
}

// FetchNodes returns the known collector nodes and their liveness.
func (c *Client) FetchNodes(ctx context.Context) ([]models.NodeStatus, error) {
	var nodes []models.NodeStatus
	if err := c.getJSON(ctx, "/api/nodes", nil, &nodes); err != nil {
		return nil, fmt.Errorf("fetch nodes: %w", err)
	}
	return nodes, nil
}

// FetchAnomalies returns the bounded anomaly report feed.
func (c *Client) FetchAnomalies(ctx context.Context, limit int) ([]models.Anomaly, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var anomalies []models.Anomaly
	if err := c.getJSON(ctx, "/api/anomalies/report", v, &anomalies); err != nil {
		return nil, fmt.Errorf("fetch anomalies: %w", err)
	}
	return anomalies, nil
}

// SeverityRules returns the server-held classification pattern lists.
func (c *Client) SeverityRules(ctx context.Context) (models.SeverityRules, error) {
	var rules models.SeverityRules
	if err := c.getJSON(ctx, "/api/severity-rules", nil, &rules); err != nil {
		return models.SeverityRules{}, fmt.Errorf("fetch severity rules: %w", err)
	}
	return rules, nil
}

// UpdateSeverityRules replaces the server-held pattern lists.
func (c *Client) UpdateSeverityRules(ctx context.Context, rules models.SeverityRules) error {
	if err := c.putJSON(ctx, "/api/severity-rules", rules); err != nil {
		return fmt.Errorf("update severity rules: %w", err)
	}
	return nil
}

// NodeSettings returns the collection settings for one node.
func (c *Client) NodeSettings(ctx context.Context, nodeID string) (models.NodeSettings, error) {
	var settings models.NodeSettings
	path := "/api/nodes/" + url.PathEscape(nodeID) + "/settings"
	if err := c.getJSON(ctx, path, nil, &settings); err != nil {
		return models.NodeSettings{}, fmt.Errorf("fetch node settings: %w", err)
	}
	return settings, nil
}

// UpdateNodeSettings replaces the collection settings for one node.
func (c *Client) UpdateNodeSettings(ctx context.Context, settings models.NodeSettings) error {
	path := "/api/nodes/" + url.PathEscape(settings.NodeID) + "/settings"
	if err := c.putJSON(ctx, path, settings); err != nil {
		return fmt.Errorf("update node settings: %w", err)
	}
	return nil
}

// ExportURL builds the CSV export URL for the given criteria. The export
// itself streams from the server; only criteria construction lives here.
func (c *Client) ExportURL(criteria models.FilterCriteria) string {
	v := criteriaValues(criteria)
	u := c.baseURL + "/export.csv"
	if enc := v.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if enc := params.Encode(); enc != "" {
		u += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http request failed with status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) putJSON(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http request failed with status %s", resp.Status)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}
