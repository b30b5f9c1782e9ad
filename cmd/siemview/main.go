package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/slickerian/siem/config"
	"github.com/slickerian/siem/internal/engine"
	"github.com/slickerian/siem/internal/logger"
	"github.com/slickerian/siem/internal/output/eventjson"
	"github.com/slickerian/siem/internal/query"
	"github.com/slickerian/siem/internal/severity"
	"github.com/slickerian/siem/internal/stream"
	"github.com/slickerian/siem/internal/topology"
	"github.com/slickerian/siem/internal/viewserver"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("siemview.yml"); err == nil {
		return "siemview.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "siemview.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "siemview.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.SIEMView.Server.BaseURL == "" {
		cfg.SIEMView.Server.BaseURL = "http://127.0.0.1:8000"
	}
	if cfg.SIEMView.Server.WSPath == "" {
		cfg.SIEMView.Server.WSPath = "/ws/logs"
	}
	if cfg.SIEMView.Server.Timeout <= 0 {
		cfg.SIEMView.Server.Timeout = 10 * time.Second
	}

	if cfg.SIEMView.Stream.Source == "" {
		cfg.SIEMView.Stream.Source = "websocket"
	}
	if cfg.SIEMView.Stream.BackoffBase <= 0 {
		cfg.SIEMView.Stream.BackoffBase = 1 * time.Second
	}
	if cfg.SIEMView.Stream.BackoffMax <= 0 {
		cfg.SIEMView.Stream.BackoffMax = 30 * time.Second
	}
	if cfg.SIEMView.Stream.MaxRetries <= 0 {
		cfg.SIEMView.Stream.MaxRetries = 10
	}
	if cfg.SIEMView.Stream.Redis.Addr == "" {
		cfg.SIEMView.Stream.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.SIEMView.Stream.Redis.Key == "" {
		cfg.SIEMView.Stream.Redis.Key = "siem_events"
	}
	if cfg.SIEMView.Stream.Redis.BlockTimeout <= 0 {
		cfg.SIEMView.Stream.Redis.BlockTimeout = 5 * time.Second
	}

	if cfg.SIEMView.Buffer.Quiescence <= 0 {
		cfg.SIEMView.Buffer.Quiescence = 750 * time.Millisecond
	}
	if cfg.SIEMView.Buffer.MaxBatch <= 0 {
		cfg.SIEMView.Buffer.MaxBatch = 200
	}

	if cfg.SIEMView.Store.Capacity <= 0 {
		cfg.SIEMView.Store.Capacity = 500
	}

	if cfg.SIEMView.Buckets.WidthMinutes <= 0 {
		cfg.SIEMView.Buckets.WidthMinutes = 5
	}
	if cfg.SIEMView.Buckets.Retention <= 0 {
		cfg.SIEMView.Buckets.Retention = 24 * time.Hour
	}
	if cfg.SIEMView.Buckets.SnapshotLimit <= 0 {
		cfg.SIEMView.Buckets.SnapshotLimit = 200
	}

	if cfg.SIEMView.Filter.Debounce <= 0 {
		cfg.SIEMView.Filter.Debounce = 250 * time.Millisecond
	}

	if cfg.SIEMView.Topology.RebuildInterval <= 0 {
		cfg.SIEMView.Topology.RebuildInterval = 30 * time.Second
	}
	if cfg.SIEMView.Topology.QueryLimit <= 0 {
		cfg.SIEMView.Topology.QueryLimit = 1000
	}
	if cfg.SIEMView.Topology.AnomalyLimit <= 0 {
		cfg.SIEMView.Topology.AnomalyLimit = 200
	}

	if cfg.SIEMView.Capture.Path == "" {
		cfg.SIEMView.Capture.Path = "output/events.jsonl"
	}

	if cfg.SIEMView.View.Addr == "" {
		cfg.SIEMView.View.Addr = "127.0.0.1:9090"
	}

	if cfg.SIEMView.Logging.Level == "" {
		cfg.SIEMView.Logging.Level = "info"
	}
}

// feedURL derives the websocket endpoint from the server base URL.
func feedURL(baseURL, wsPath string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + wsPath
	return u.String(), nil
}

func main() {
	configArg := ""
	if len(os.Args) > 1 {
		configArg = os.Args[1]
	}

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.SIEMView.Logging.Enabled, cfg.SIEMView.Logging.Level, cfg.SIEMView.Logging.File, cfg.SIEMView.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("SIEMView starting")
	logger.Infof("Config loaded from: %s", configPath)

	client, err := query.NewClient(query.Config{
		BaseURL: cfg.SIEMView.Server.BaseURL,
		APIKey:  cfg.SIEMView.Server.APIKey,
		Timeout: cfg.SIEMView.Server.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to create query client: %v", err)
	}

	rules := severity.DefaultRules()
	rctx, rcancel := context.WithTimeout(context.Background(), cfg.SIEMView.Server.Timeout)
	if serverRules, err := client.SeverityRules(rctx); err != nil {
		logger.Warnf("Failed to fetch severity rules, using defaults: %v", err)
	} else {
		rules = serverRules
	}
	rcancel()
	classifier := severity.NewClassifier(rules)

	var feed stream.Feed
	switch cfg.SIEMView.Stream.Source {
	case "websocket":
		wsURL, err := feedURL(cfg.SIEMView.Server.BaseURL, cfg.SIEMView.Server.WSPath)
		if err != nil {
			log.Fatalf("Invalid server base URL: %v", err)
		}
		feed = stream.NewConnector(stream.ConnectorConfig{
			URL:         wsURL,
			DialTimeout: cfg.SIEMView.Stream.DialTimeout,
			BackoffBase: cfg.SIEMView.Stream.BackoffBase,
			BackoffMax:  cfg.SIEMView.Stream.BackoffMax,
			MaxRetries:  cfg.SIEMView.Stream.MaxRetries,
		})
		logger.Infof("Stream source: websocket (%s)", wsURL)
	case "redis":
		rf, err := stream.NewRedisFeed(stream.RedisConfig{
			Addr:         cfg.SIEMView.Stream.Redis.Addr,
			Password:     cfg.SIEMView.Stream.Redis.Password,
			DB:           cfg.SIEMView.Stream.Redis.DB,
			Key:          cfg.SIEMView.Stream.Redis.Key,
			BlockTimeout: cfg.SIEMView.Stream.Redis.BlockTimeout,
			BackoffBase:  cfg.SIEMView.Stream.BackoffBase,
			BackoffMax:   cfg.SIEMView.Stream.BackoffMax,
			MaxRetries:   cfg.SIEMView.Stream.MaxRetries,
		})
		if err != nil {
			log.Fatalf("Failed to create Redis feed: %v", err)
		}
		feed = rf
		logger.Infof("Stream source: redis (%s key=%s)", cfg.SIEMView.Stream.Redis.Addr, cfg.SIEMView.Stream.Redis.Key)
	default:
		log.Fatalf("Unknown stream source: %s", cfg.SIEMView.Stream.Source)
	}

	topo := topology.NewBuilder(client, topology.Config{
		QueryLimit:   cfg.SIEMView.Topology.QueryLimit,
		AnomalyLimit: cfg.SIEMView.Topology.AnomalyLimit,
	})

	var capture *eventjson.Writer
	if cfg.SIEMView.Capture.Enabled {
		capture, err = eventjson.NewWriter(cfg.SIEMView.Capture.Path)
		if err != nil {
			log.Fatalf("Failed to create capture writer: %v", err)
		}
		logger.Infof("Event capture: file (%s)", cfg.SIEMView.Capture.Path)
	}

	eng := engine.New(engine.Config{
		StoreCapacity:    cfg.SIEMView.Store.Capacity,
		BucketMinutes:    cfg.SIEMView.Buckets.WidthMinutes,
		BucketRetention:  cfg.SIEMView.Buckets.Retention,
		Quiescence:       cfg.SIEMView.Buffer.Quiescence,
		MaxBatch:         cfg.SIEMView.Buffer.MaxBatch,
		Debounce:         cfg.SIEMView.Filter.Debounce,
		PageLimit:        cfg.SIEMView.Buckets.SnapshotLimit,
		TopologyInterval: cfg.SIEMView.Topology.RebuildInterval,
		QueryTimeout:     cfg.SIEMView.Server.Timeout,
	}, feed, classifier, client, topo, capture)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Engine error: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:    cfg.SIEMView.View.Addr,
		Handler: viewserver.NewServer(eng, client).Router(),
	}
	go func() {
		logger.Infof("View server listening on %s", cfg.SIEMView.View.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("View server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error shutting down view server: %v", err)
	}

	if err := eng.Close(); err != nil {
		logger.Errorf("Error closing engine: %v", err)
	}

	logger.Infof("SIEMView stopped")
}
