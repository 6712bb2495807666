package metronome

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lythra/lythra/internal/atoms"
	"github.com/lythra/lythra/internal/bus"
	"github.com/lythra/lythra/internal/platform"
	"github.com/lythra/lythra/internal/registry"
	"github.com/lythra/lythra/internal/sandbox"
	"github.com/lythra/lythra/internal/storage"
)

type recordingAudio struct {
	mu      sync.Mutex
	sources []string
}

func (r *recordingAudio) Open(source string) (platform.Sound, error) {
	r.mu.Lock()
	r.sources = append(r.sources, source)
	r.mu.Unlock()
	return platform.NewHeadlessAudio(0).Open(source)
}

func newSandbox(t *testing.T, rec *recordingAudio) *sandbox.Sandbox {
	t.Helper()
	f := &sandbox.Factory{Store: storage.NewMemoryKV(), Audio: rec}
	return f.New("metro-1", Definition().Permissions)
}

func TestDefinitionRegisters(t *testing.T) {
	reg := registry.New(bus.New(), atoms.NewRegistry())
	if err := reg.Register(Definition()); err != nil {
		t.Fatalf("register: %v", err)
	}
	res := reg.ValidateSettings(Type, registry.Settings{"tempo": 400})
	if res.Valid {
		t.Fatal("tempo above 300 should be rejected")
	}
}

func TestTickAccentsDownbeatAndEmits(t *testing.T) {
	rec := &recordingAudio{}
	sb := newSandbox(t, rec)
	events := bus.New()
	var beats []map[string]any
	events.Subscribe(bus.EventMetronomeBeat, func(e bus.Event) {
		beats = append(beats, e.Payload.(map[string]any))
	})

	a := NewAtoms().(*Atoms)
	a.Apply(registry.Settings{"tempo": 90, "beatsPerMeasure": 3, "sound": "wood"})

	if err := a.Tick(context.Background(), sb, events, "metro-1"); err != nil {
		t.Fatalf("tick while stopped: %v", err)
	}
	if len(rec.sources) != 0 {
		t.Fatal("stopped metronome must not play")
	}

	a.Start(sb, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	for i := 0; i < 4; i++ {
		if err := a.Tick(context.Background(), sb, events, "metro-1"); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	want := []string{"sounds/wood-accent.wav", "sounds/wood.wav", "sounds/wood.wav", "sounds/wood-accent.wav"}
	if len(rec.sources) != len(want) {
		t.Fatalf("expected %d clicks, got %v", len(want), rec.sources)
	}
	for i := range want {
		if rec.sources[i] != want[i] {
			t.Fatalf("click %d: expected %s, got %s", i, want[i], rec.sources[i])
		}
	}
	if len(beats) != 4 || beats[0]["accent"] != true || beats[1]["beat"] != 2 {
		t.Fatalf("unexpected beat events: %v", beats)
	}
	if got := sb.Audio.Active(); len(got) != 1 || got[0] != soundID {
		t.Fatalf("clicks should reuse one sound id, active=%v", got)
	}

	var stored int
	if !sb.Storage.GetInto(storageTempoKey, &stored) || stored != 90 {
		t.Fatalf("start should remember tempo, got %d", stored)
	}

	a.Stop(sb)
	if a.Playing.Get() || len(sb.Audio.Active()) != 0 {
		t.Fatal("stop should halt playback and silence the click")
	}
}

func TestTickWithoutAudioPermissionFails(t *testing.T) {
	f := &sandbox.Factory{Store: storage.NewMemoryKV(), Audio: &recordingAudio{}}
	sb := f.New("metro-2", nil)
	a := NewAtoms().(*Atoms)
	a.Start(nil, time.Now())

	err := a.Tick(context.Background(), sb, nil, "metro-2")
	if !errors.Is(err, sandbox.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if a.Error.Get() == "" {
		t.Fatal("failed tick should record the error")
	}
}

func TestIntervalFollowsTempo(t *testing.T) {
	a := NewAtoms().(*Atoms)
	if a.IntervalMs.Get() != 500 {
		t.Fatalf("expected 500ms at default tempo, got %d", a.IntervalMs.Get())
	}
	a.Tempo.Set(60)
	if a.IntervalMs.Get() != 1000 {
		t.Fatalf("expected 1000ms at 60bpm, got %d", a.IntervalMs.Get())
	}
}

func TestMigrateRenamesBPM(t *testing.T) {
	out, err := Migrate(registry.Settings{"bpm": 100.0, "volume": 0.5}, "1.2.0", Version)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if out["tempo"] != 100.0 {
		t.Fatalf("expected tempo from bpm, got %v", out["tempo"])
	}
	if _, ok := out["bpm"]; ok {
		t.Fatal("bpm should be removed")
	}

	same, _ := Migrate(registry.Settings{"bpm": 1}, "2.0.0", Version)
	if _, ok := same["bpm"]; !ok {
		t.Fatal("non-1.x settings should pass through")
	}
}

func TestRenderReflectsSettings(t *testing.T) {
	rec := &recordingAudio{}
	sb := newSandbox(t, rec)
	a := NewAtoms().(*Atoms)
	sb.Storage.Set(storageTempoKey, 72)

	view, err := Definition().Component.Render(context.Background(), registry.Props{
		InstanceID: "metro-1",
		ModuleType: Type,
		Settings:   registry.Settings{"tempo": 150.0},
		Sandbox:    sb,
		Atoms:      a,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if view.Kind != Type || view.Fields["tempo"] != 150 || view.Fields["intervalMs"] != 400 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Fields["lastTempo"] != 72 {
		t.Fatalf("expected stored tempo in view, got %v", view.Fields["lastTempo"])
	}
}

func TestActionsStartTickStop(t *testing.T) {
	rec := &recordingAudio{}
	sb := newSandbox(t, rec)
	events := bus.New()
	var beats []bus.Event
	events.Subscribe(bus.EventMetronomeBeat, func(e bus.Event) { beats = append(beats, e) })

	a := NewAtoms().(*Atoms)
	props := registry.Props{
		InstanceID: "metro-1",
		ModuleType: Type,
		Settings:   registry.Settings{"tempo": 100.0, "beatsPerMeasure": 2.0, "sound": "wood"},
		Sandbox:    sb,
		Atoms:      a,
		Events:     events,
	}
	ctx := context.Background()
	act := func(name string, args map[string]any) error {
		t.Helper()
		return Definition().Actions[name](ctx, props, args)
	}

	if err := act("tick", nil); err != nil || len(beats) != 0 {
		t.Fatalf("tick before start should be silent: %v %d", err, len(beats))
	}
	if err := act("start", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if a.Tempo.Get() != 100 || !a.Playing.Get() {
		t.Fatalf("start should apply settings and play, tempo=%d", a.Tempo.Get())
	}
	var stored int
	if !sb.Storage.GetInto(storageTempoKey, &stored) || stored != 100 {
		t.Fatalf("start should remember the tempo, got %d", stored)
	}

	if err := act("tick", map[string]any{"beats": 3.0}); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(beats) != 3 {
		t.Fatalf("expected 3 beats, got %d", len(beats))
	}
	rec.mu.Lock()
	sources := append([]string(nil), rec.sources...)
	rec.mu.Unlock()
	want := []string{"sounds/wood-accent.wav", "sounds/wood.wav", "sounds/wood-accent.wav"}
	if len(sources) != len(want) {
		t.Fatalf("unexpected sources %v", sources)
	}
	for i := range want {
		if sources[i] != want[i] {
			t.Fatalf("source %d = %s, want %s", i, sources[i], want[i])
		}
	}

	for _, bad := range []map[string]any{{"beats": 0}, {"beats": maxTicks + 1}} {
		if err := act("tick", bad); !errors.Is(err, registry.ErrInvalidActionArgs) {
			t.Fatalf("tick %v: expected ErrInvalidActionArgs, got %v", bad, err)
		}
	}

	if err := act("stop", nil); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if a.Playing.Get() || a.Beat.Get() != 0 {
		t.Fatal("stop should halt at the downbeat")
	}
}
