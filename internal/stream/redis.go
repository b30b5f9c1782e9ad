package stream

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/slickerian/siem/internal/logger"
	"github.com/slickerian/siem/internal/metrics"
	"github.com/slickerian/siem/pkg/models"
)

// RedisConfig configures the Redis list feed.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	MaxRetries   int
}

// RedisFeed consumes JSON events from a Redis list, for colocated
// deployments where the collector pushes to a local queue instead of the
// server websocket. It implements the same Feed contract as the websocket
// connector, including backoff on connection loss.
type RedisFeed struct {
	cfg       RedisConfig
	malformed atomic.Int64
}

// NewRedisFeed creates a Redis list feed.
func NewRedisFeed(cfg RedisConfig) (*RedisFeed, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 1 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	return &RedisFeed{cfg: cfg}, nil
}

// Malformed returns the count of payloads dropped as undecodable.
func (f *RedisFeed) Malformed() int64 {
	return f.malformed.Load()
}

// Open connects to Redis and starts popping events.
func (f *RedisFeed) Open(onEvent OnEvent, onState OnState) (*Handle, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     f.cfg.Addr,
		Password: f.cfg.Password,
		DB:       f.cfg.DB,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer client.Close()
		f.run(ctx, client, onEvent, onState)
	}()

	return NewHandle(cancel, done), nil
}

func (f *RedisFeed) run(ctx context.Context, client *redis.Client, onEvent OnEvent, onState OnState) {
	emitState(onState, models.ConnectionState{Phase: models.PhaseConnecting})
	if err := client.Ping(ctx).Err(); err != nil {
		if ctx.Err() != nil {
			emitState(onState, models.ConnectionState{Phase: models.PhaseDisconnected})
			return
		}
		logger.Warnf("Redis feed ping failed: %v", err)
	}
	emitState(onState, models.ConnectionState{Phase: models.PhaseConnected})

	failures := 0
	for {
		res, err := client.BLPop(ctx, f.cfg.BlockTimeout, f.cfg.Key).Result()
		if err == redis.Nil {
			failures = 0
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				emitState(onState, models.ConnectionState{Phase: models.PhaseDisconnected})
				return
			}
			failures++
			if failures > f.cfg.MaxRetries {
				logger.Errorf("Redis feed retry budget exhausted after %d attempts", f.cfg.MaxRetries)
				emitState(onState, models.ConnectionState{Phase: models.PhaseDisconnected})
				return
			}
			metrics.ReconnectAttempts.Inc()
			emitState(onState, models.ConnectionState{Phase: models.PhaseReconnecting, Attempt: failures})
			if !sleep(ctx, Backoff(f.cfg.BackoffBase, f.cfg.BackoffMax, failures-1)) {
				emitState(onState, models.ConnectionState{Phase: models.PhaseDisconnected})
				return
			}
			continue
		}
		if failures > 0 {
			failures = 0
			emitState(onState, models.ConnectionState{Phase: models.PhaseConnected})
		}
		if len(res) < 2 {
			continue
		}

		ev, patch, derr := DecodeFrame([]byte(res[1]))
		if derr != nil {
			f.malformed.Add(1)
			metrics.EventsDropped.WithLabelValues(metrics.ReasonMalformed).Inc()
			logger.Warnf("Dropping malformed redis payload: %v", derr)
			continue
		}
		metrics.EventsIngested.Inc()
		onEvent(ev, patch)
	}
}
