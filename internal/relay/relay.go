// Package relay forwards event bus traffic to an external publisher.
//
// Bus delivery is synchronous, so Attach only enqueues; Run drains the
// queue on its own goroutine. A full queue drops events rather than
// blocking the emitter.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lythra/lythra/internal/bus"
)

// DefaultBuffer is the queue size used when New is given a non-positive one.
const DefaultBuffer = 256

// Relay queues bus events and publishes them keyed by module id.
type Relay struct {
	pub     Publisher
	queue   chan bus.Event
	dropped atomic.Int64

	// Attempts and Backoff control publish retries.
	Attempts int
	Backoff  time.Duration

	mu    sync.Mutex
	unsub func()
}

// New creates a relay for pub.
func New(pub Publisher, buffer int) *Relay {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Relay{
		pub:      pub,
		queue:    make(chan bus.Event, buffer),
		Attempts: 3,
		Backoff:  500 * time.Millisecond,
	}
}

// Attach subscribes the relay to every known event type on events.
func (r *Relay) Attach(events *bus.EventBus) {
	unsub := events.SubscribeAll(r.enqueue)
	r.mu.Lock()
	prev := r.unsub
	r.unsub = unsub
	r.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Detach stops receiving events.
func (r *Relay) Detach() {
	r.mu.Lock()
	unsub := r.unsub
	r.unsub = nil
	r.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (r *Relay) enqueue(e bus.Event) {
	select {
	case r.queue <- e:
	default:
		n := r.dropped.Add(1)
		slog.Warn("Relay queue full, dropping event", "type", e.Type, "module_id", e.ModuleID, "dropped_total", n)
	}
}

// Dropped returns how many events were dropped on a full queue.
func (r *Relay) Dropped() int64 { return r.dropped.Load() }

// Run publishes queued events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-r.queue:
			r.publish(ctx, e)
		}
	}
}

// Flush publishes everything currently queued and returns once the queue
// is empty. Call it after Detach and before exiting a short-lived process.
func (r *Relay) Flush(ctx context.Context) {
	for {
		select {
		case e := <-r.queue:
			r.publish(ctx, e)
		default:
			return
		}
	}
}

func (r *Relay) publish(ctx context.Context, e bus.Event) {
	value, err := EncodeEvent(e)
	if err != nil {
		slog.Warn("Relay encode failed", "type", e.Type, "error", err)
		return
	}
	key := []byte(e.ModuleID)
	if len(key) == 0 {
		key = []byte(e.ModuleType)
	}
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * r.Backoff):
			}
		}
		if err = r.pub.Publish(ctx, key, value); err == nil {
			return
		}
		slog.Debug("Relay publish retry", "type", e.Type, "attempt", attempt+1, "error", err)
	}
	slog.Error("Relay publish failed", "type", e.Type, "module_id", e.ModuleID, "error", err)
}
