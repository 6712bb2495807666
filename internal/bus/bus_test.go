package bus

import (
	"fmt"
	"testing"
	"time"
)

func TestEmitDeliversInSubscriptionOrder(t *testing.T) {
	b := New()
	var calls []string
	for i := 1; i <= 5; i++ {
		name := fmt.Sprintf("s%d", i)
		b.Subscribe(EventModuleStateChanged, func(Event) { calls = append(calls, name) })
	}

	b.Emit(EventModuleStateChanged, nil, "inst-1", "metronome")

	want := []string{"s1", "s2", "s3", "s4", "s5"}
	if len(calls) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d = %s, want %s (all: %v)", i, calls[i], want[i], calls)
		}
	}
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	b := New()
	var after int
	b.Subscribe(EventModuleError, func(Event) { after++ })
	b.Subscribe(EventModuleError, func(Event) { panic("boom") })
	b.Subscribe(EventModuleError, func(Event) { after++ })

	b.Emit(EventModuleError, "x", "", "")

	if after != 2 {
		t.Fatalf("expected both healthy handlers to run, got %d", after)
	}
}

func TestEmitWithoutSubscribersIsNoop(t *testing.T) {
	b := New()
	b.Emit("nobody:listens", nil, "", "")
	if got := len(b.Log()); got != 1 {
		t.Fatalf("event should still be logged, got %d entries", got)
	}
}

func TestUnsubscribeIsIdempotentAndScoped(t *testing.T) {
	b := New()
	var first, second int
	unsubFirst := b.Subscribe(EventModuleCreated, func(Event) { first++ })
	b.Subscribe(EventModuleCreated, func(Event) { second++ })

	unsubFirst()
	unsubFirst()

	b.Emit(EventModuleCreated, nil, "", "")
	if first != 0 {
		t.Fatalf("unsubscribed handler still called %d times", first)
	}
	if second != 1 {
		t.Fatalf("other handler should still be called once, got %d", second)
	}
}

func TestLastUnsubscribePrunesTopic(t *testing.T) {
	b := New()
	unsub := b.Subscribe(EventModuleCreated, func(Event) {})
	if b.SubscriberCount(EventModuleCreated) != 1 {
		t.Fatal("expected one subscriber")
	}
	unsub()
	b.mu.Lock()
	_, exists := b.subs[EventModuleCreated]
	b.mu.Unlock()
	if exists {
		t.Fatal("expected empty topic to be pruned")
	}
}

func TestSubscribeForInstanceFilters(t *testing.T) {
	b := New()
	var inst1Calls, inst2Calls int
	var tempo any
	b.SubscribeForInstance(EventModuleStateChanged, "inst-1", func(e Event) {
		inst1Calls++
		tempo = e.Payload.(map[string]any)["tempo"]
	})
	b.SubscribeForInstance(EventModuleStateChanged, "inst-2", func(Event) { inst2Calls++ })

	b.Emit(EventModuleStateChanged, map[string]any{"tempo": 90}, "inst-1", "metronome")

	if inst1Calls != 1 {
		t.Fatalf("inst-1 subscriber expected 1 call, got %d", inst1Calls)
	}
	if tempo != 90 {
		t.Fatalf("expected tempo 90, got %v", tempo)
	}
	if inst2Calls != 0 {
		t.Fatalf("inst-2 subscriber expected 0 calls, got %d", inst2Calls)
	}
}

func TestSubscribeAllCoversKnownTypes(t *testing.T) {
	b := New()
	seen := map[string]int{}
	unsub := b.SubscribeAll(func(e Event) { seen[e.Type]++ })

	for _, et := range KnownEventTypes() {
		b.Emit(et, nil, "", "")
	}
	for _, et := range KnownEventTypes() {
		if seen[et] != 1 {
			t.Fatalf("expected 1 delivery for %s, got %d", et, seen[et])
		}
	}

	unsub()
	b.Emit(EventModuleCreated, nil, "", "")
	if seen[EventModuleCreated] != 1 {
		t.Fatal("composite unsubscribe should remove every subscription")
	}
	for _, et := range KnownEventTypes() {
		if n := b.SubscriberCount(et); n != 0 {
			t.Fatalf("expected no subscribers for %s, got %d", et, n)
		}
	}
}

func TestLogIsBoundedOldestFirst(t *testing.T) {
	b := New()
	for i := 0; i < 150; i++ {
		b.Emit(EventModuleStateChanged, i, "", "")
	}
	log := b.Log()
	if len(log) != LogCapacity {
		t.Fatalf("expected %d events, got %d", LogCapacity, len(log))
	}
	if log[0].Payload != 50 || log[len(log)-1].Payload != 149 {
		t.Fatalf("unexpected window: first=%v last=%v", log[0].Payload, log[len(log)-1].Payload)
	}
}

func TestLogReturnsSnapshot(t *testing.T) {
	b := New()
	b.Emit(EventModuleCreated, "a", "", "")
	snap := b.Log()
	snap[0].Type = "mutated"
	b.Emit(EventModuleCreated, "b", "", "")

	if got := b.Log()[0].Type; got != EventModuleCreated {
		t.Fatalf("log was mutated through snapshot: %s", got)
	}
	if len(snap) != 1 {
		t.Fatalf("snapshot should not grow, got %d", len(snap))
	}
}

func TestEmitStampsTimestampFromClock(t *testing.T) {
	b := New()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.SetClock(func() time.Time { return fixed })

	var got time.Time
	b.Subscribe(EventModuleCreated, func(e Event) { got = e.Timestamp })
	b.Emit(EventModuleCreated, nil, "inst-1", "timer")

	if !got.Equal(fixed) {
		t.Fatalf("expected %v, got %v", fixed, got)
	}
	if e := b.Log()[0]; e.ModuleID != "inst-1" || e.ModuleType != "timer" {
		t.Fatalf("unexpected logged event: %+v", e)
	}
}

func TestHandlersMayReenterBus(t *testing.T) {
	b := New()
	var nested int
	b.Subscribe(EventModuleCreated, func(Event) {
		b.Subscribe(EventModuleDestroyed, func(Event) { nested++ })
		b.Emit(EventModuleDestroyed, nil, "", "")
	})
	b.Emit(EventModuleCreated, nil, "", "")
	if nested != 1 {
		t.Fatalf("expected nested emit to deliver once, got %d", nested)
	}
}

func TestClearResets(t *testing.T) {
	b := New()
	var calls int
	b.Subscribe(EventModuleCreated, func(Event) { calls++ })
	b.Emit(EventModuleCreated, nil, "", "")

	b.ClearSubscriptions()
	b.ClearLog()
	b.Emit(EventModuleCreated, nil, "", "")

	if calls != 1 {
		t.Fatalf("expected subscriptions cleared, calls=%d", calls)
	}
	if len(b.Log()) != 1 {
		t.Fatalf("expected log cleared before last emit, got %d", len(b.Log()))
	}
}
