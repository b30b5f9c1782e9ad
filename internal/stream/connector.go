package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slickerian/siem/internal/logger"
	"github.com/slickerian/siem/internal/metrics"
	"github.com/slickerian/siem/pkg/models"
)

// ConnectorConfig configures the websocket live-feed connector.
type ConnectorConfig struct {
	URL         string
	DialTimeout time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
	MaxRetries  int
}

// Connector maintains the live-feed websocket connection. On unexpected
// closure it reconnects with exponential backoff until the retry budget is
// exhausted, then surfaces a terminal Disconnected state and stops retrying
// until reopened. Malformed frames are dropped and counted, never fatal.
type Connector struct {
	cfg       ConnectorConfig
	malformed atomic.Int64
}

// NewConnector creates a connector for the given feed URL.
func NewConnector(cfg ConnectorConfig) *Connector {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
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
	return &Connector{cfg: cfg}
}

// Malformed returns the count of frames dropped as undecodable.
func (c *Connector) Malformed() int64 {
	return c.malformed.Load()
}

// Backoff returns the reconnect delay for a zero-based attempt:
// base*2^attempt, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Open dials the feed and starts delivering events. The returned handle owns
// the connection and the reconnect timer; closing it cancels both.
func (c *Connector) Open(onEvent OnEvent, onState OnState) (*Handle, error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	var mu sync.Mutex
	var conn *websocket.Conn

	setConn := func(ws *websocket.Conn) {
		mu.Lock()
		conn = ws
		mu.Unlock()
	}
	closeConn := func() {
		mu.Lock()
		if conn != nil {
			conn.Close()
			conn = nil
		}
		mu.Unlock()
	}

	go func() {
		defer close(done)
		c.run(ctx, onEvent, onState, setConn, closeConn)
	}()

	stop := func() {
		cancel()
		closeConn()
	}
	return NewHandle(stop, done), nil
}

// run is the connection loop. attempt counts reconnect dials since the last
// successful connection; it is zero only for the very first dial.
func (c *Connector) run(ctx context.Context, onEvent OnEvent, onState OnState, setConn func(*websocket.Conn), closeConn func()) {
	attempt := 0
	for {
		if attempt == 0 {
			emitState(onState, models.ConnectionState{Phase: models.PhaseConnecting})
		} else {
			metrics.ReconnectAttempts.Inc()
			emitState(onState, models.ConnectionState{Phase: models.PhaseReconnecting, Attempt: attempt})
			if !sleep(ctx, Backoff(c.cfg.BackoffBase, c.cfg.BackoffMax, attempt-1)) {
				emitState(onState, models.ConnectionState{Phase: models.PhaseDisconnected})
				return
			}
		}

		dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
		ws, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				emitState(onState, models.ConnectionState{Phase: models.PhaseDisconnected})
				return
			}
			logger.Warnf("Live feed dial failed (attempt %d): %v", attempt, err)
			attempt++
			if attempt > c.cfg.MaxRetries {
				logger.Errorf("Live feed retry budget exhausted after %d attempts", c.cfg.MaxRetries)
				emitState(onState, models.ConnectionState{Phase: models.PhaseDisconnected})
				return
			}
			continue
		}

		setConn(ws)
		attempt = 0
		emitState(onState, models.ConnectionState{Phase: models.PhaseConnected})
		logger.Infof("Live feed connected: %s", c.cfg.URL)

		c.readLoop(ws, onEvent)
		closeConn()

		if ctx.Err() != nil {
			emitState(onState, models.ConnectionState{Phase: models.PhaseDisconnected})
			return
		}
		logger.Warnf("Live feed connection lost")
		attempt = 1
	}
}

func (c *Connector) readLoop(ws *websocket.Conn, onEvent OnEvent) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		ev, patch, derr := DecodeFrame(data)
		if derr != nil {
			c.malformed.Add(1)
			metrics.EventsDropped.WithLabelValues(metrics.ReasonMalformed).Inc()
			logger.Warnf("Dropping malformed frame: %v", derr)
			continue
		}
		metrics.EventsIngested.Inc()
		onEvent(ev, patch)
	}
}

func emitState(onState OnState, state models.ConnectionState) {
	if onState != nil {
		onState(state)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
