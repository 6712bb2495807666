// Package bus provides the synchronous event bus for module lifecycle and
// state-change notifications.
package bus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// LogCapacity is the number of most recent events retained by the bus.
const LogCapacity = 100

// Well-known event types.
const (
	EventModuleInitialized     = "module:initialized"
	EventModuleCreated         = "module:created"
	EventModuleStateChanged    = "module:state-changed"
	EventModuleSettingsChanged = "module:settings-changed"
	EventModuleError           = "module:error"
	EventModuleDestroyed       = "module:destroyed"
	EventModuleUnmounted       = "module:unmounted"
	EventMetronomeBeat         = "metronome:beat"
	EventTimerCompleted        = "timer:completed"
)

// KnownEventTypes returns every event type SubscribeAll attaches to.
func KnownEventTypes() []string {
	return []string{
		EventModuleInitialized,
		EventModuleCreated,
		EventModuleStateChanged,
		EventModuleSettingsChanged,
		EventModuleError,
		EventModuleDestroyed,
		EventModuleUnmounted,
		EventMetronomeBeat,
		EventTimerCompleted,
	}
}

// Event is an immutable record of a single notable occurrence.
type Event struct {
	Type       string    `json:"type"`
	ModuleID   string    `json:"moduleId,omitempty"`
	ModuleType string    `json:"moduleType,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Handler receives events for the types it subscribed to.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// EventBus decouples emitters (widgets, registry, grid) from listeners.
// Delivery is synchronous: Emit returns after every handler has run.
type EventBus struct {
	mu     sync.Mutex
	subs   map[string][]subscription
	log    []Event
	nextID uint64
	now    func() time.Time
}

// New creates an empty event bus.
func New() *EventBus {
	return &EventBus{
		subs: make(map[string][]subscription),
		now:  time.Now,
	}
}

// SetClock replaces the time source used to stamp events.
func (b *EventBus) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	b.now = now
}

// Subscribe registers handler for eventType and returns its unsubscribe
// function. Unsubscribing twice is harmless and never touches other handlers.
func (b *EventBus) Subscribe(eventType string, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(eventType, id) })
	}
}

func (b *EventBus) unsubscribe(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.subs[eventType]
	for i, s := range current {
		if s.id != id {
			continue
		}
		next := make([]subscription, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, eventType)
		} else {
			b.subs[eventType] = next
		}
		return
	}
}

// SubscribeForInstance registers handler for eventType, invoked only for
// events whose ModuleID equals instanceID.
func (b *EventBus) SubscribeForInstance(eventType, instanceID string, handler Handler) func() {
	return b.Subscribe(eventType, func(e Event) {
		if e.ModuleID == instanceID {
			handler(e)
		}
	})
}

// SubscribeAll registers handler for every known event type. The returned
// function tears all of those subscriptions down together.
func (b *EventBus) SubscribeAll(handler Handler) func() {
	types := KnownEventTypes()
	unsubs := make([]func(), 0, len(types))
	for _, t := range types {
		unsubs = append(unsubs, b.Subscribe(t, handler))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Emit records an event and delivers it to the current subscribers of
// eventType in subscription order. A panicking handler is logged and skipped.
func (b *EventBus) Emit(eventType string, payload any, moduleID, moduleType string) {
	b.mu.Lock()
	event := Event{
		Type:       eventType,
		ModuleID:   moduleID,
		ModuleType: moduleType,
		Payload:    payload,
		Timestamp:  b.now(),
	}
	b.log = append(b.log, event)
	if over := len(b.log) - LogCapacity; over > 0 {
		b.log = append(b.log[:0:0], b.log[over:]...)
	}
	handlers := make([]Handler, 0, len(b.subs[eventType]))
	for _, s := range b.subs[eventType] {
		handlers = append(handlers, s.handler)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		b.deliver(h, event)
	}
}

func (b *EventBus) deliver(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler failed",
				"type", event.Type,
				"module_id", event.ModuleID,
				"error", fmt.Sprint(r))
		}
	}()
	h(event)
}

// Log returns a snapshot of the retained events, oldest first.
func (b *EventBus) Log() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.log))
	copy(out, b.log)
	return out
}

// SubscriberCount returns the number of live subscriptions for eventType.
func (b *EventBus) SubscriberCount(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[eventType])
}

// ClearSubscriptions removes every subscription.
func (b *EventBus) ClearSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]subscription)
}

// ClearLog drops every retained event.
func (b *EventBus) ClearLog() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = nil
}
