package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	SIEMView SIEMViewConfig `yaml:"siemview"`
}

// SIEMViewConfig is the project configuration.
type SIEMViewConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Stream   StreamConfig   `yaml:"stream"`
	Buffer   BufferConfig   `yaml:"buffer"`
	Store    StoreConfig    `yaml:"store"`
	Buckets  BucketConfig   `yaml:"buckets"`
	Filter   FilterConfig   `yaml:"filter"`
	Topology TopologyConfig `yaml:"topology"`
	Capture  CaptureConfig  `yaml:"capture"`
	View     ViewConfig     `yaml:"view"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig locates the backing SIEM server.
type ServerConfig struct {
	BaseURL string        `yaml:"base_url"`
	WSPath  string        `yaml:"ws_path"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// StreamConfig controls the live-feed connection.
type StreamConfig struct {
	Source      string        `yaml:"source"` // websocket|redis
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	MaxRetries  int           `yaml:"max_retries"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Redis       RedisConfig   `yaml:"redis"`
}

// RedisConfig controls the alternate Redis list ingest source.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// BufferConfig controls batch coalescing.
type BufferConfig struct {
	Quiescence time.Duration `yaml:"quiescence"`
	MaxBatch   int           `yaml:"max_batch"`
}

// StoreConfig controls the bounded event store.
type StoreConfig struct {
	Capacity int `yaml:"capacity"`
}

// BucketConfig controls the time-bucketed histogram.
type BucketConfig struct {
	WidthMinutes  int           `yaml:"width_minutes"`
	Retention     time.Duration `yaml:"retention"`
	SnapshotLimit int           `yaml:"snapshot_limit"`
}

// FilterConfig controls the filter/search engine.
type FilterConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// TopologyConfig controls the topology graph builder.
type TopologyConfig struct {
	RebuildInterval time.Duration `yaml:"rebuild_interval"`
	QueryLimit      int           `yaml:"query_limit"`
	AnomalyLimit    int           `yaml:"anomaly_limit"`
}

// CaptureConfig controls optional raw-event JSONL capture.
type CaptureConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ViewConfig controls the local view/metrics HTTP listener.
type ViewConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
