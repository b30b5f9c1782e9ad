package stream

import (
	"sync"

	"github.com/slickerian/siem/pkg/models"
)

// OnEvent delivers one decoded live event. patch carries aggregate fields
// piggybacked on the frame, or nil when the frame had none.
type OnEvent func(ev models.Event, patch *models.LiveStats)

// OnState fires on every connection state transition.
type OnState func(state models.ConnectionState)

// Feed is a live event source. Open starts delivery and returns a handle
// owning the connection lifecycle; the same feed can be reopened after the
// handle is closed.
type Feed interface {
	Open(onEvent OnEvent, onState OnState) (*Handle, error)
}

// Handle owns one open feed. Close is idempotent, cancels any pending
// reconnect timer and stops all delivery before returning.
type Handle struct {
	once sync.Once
	stop func()
	done chan struct{}
}

// NewHandle wraps a stop function and a done channel for a custom feed.
// stop must be safe to call once; done must close when delivery has stopped.
func NewHandle(stop func(), done chan struct{}) *Handle {
	return &Handle{stop: stop, done: done}
}

// Close tears the feed down and waits for delivery to stop.
func (h *Handle) Close() error {
	h.once.Do(h.stop)
	<-h.done
	return nil
}

// Done is closed once delivery has fully stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
