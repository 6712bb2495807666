// Package metronome is the built-in click-track module.
package metronome

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/lythra/lythra/internal/atoms"
	"github.com/lythra/lythra/internal/bus"
	"github.com/lythra/lythra/internal/policy"
	"github.com/lythra/lythra/internal/registry"
	"github.com/lythra/lythra/internal/sandbox"
)

const (
	Type    = "metronome"
	Version = "2.0.0"

	DefaultTempo           = 120
	DefaultBeatsPerMeasure = 4
	DefaultVolume          = 0.8
	DefaultSound           = "click"

	// storageTempoKey remembers the last tempo the metronome was started at.
	storageTempoKey = "lastTempo"
	soundID         = "beat"
)

// Definition describes the metronome module type.
func Definition() registry.Definition {
	return registry.Definition{
		Type:           Type,
		Name:           "Metronome",
		Description:    "Audible click track with accented downbeats.",
		Version:        Version,
		CompatibleWith: []string{"1.0.0", "1.1.0", "1.2.0"},
		Category:       "music",
		DefaultSize:    registry.Size{W: 2, H: 2},
		DefaultSettings: registry.Settings{
			"tempo":           DefaultTempo,
			"beatsPerMeasure": DefaultBeatsPerMeasure,
			"volume":          DefaultVolume,
			"sound":           DefaultSound,
		},
		Permissions: []policy.Permission{policy.AudioPlay, policy.StorageRead, policy.StorageWrite},
		SettingsSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"tempo":           {Type: "integer", Minimum: jsonschema.Ptr(20.0), Maximum: jsonschema.Ptr(300.0)},
				"beatsPerMeasure": {Type: "integer", Minimum: jsonschema.Ptr(1.0), Maximum: jsonschema.Ptr(16.0)},
				"volume":          {Type: "number", Minimum: jsonschema.Ptr(0.0), Maximum: jsonschema.Ptr(1.0)},
				"sound":           {Type: "string"},
			},
		},
		Component: registry.ComponentFunc(render),
		Migrate:   Migrate,
		Actions:   actions(),
	}
}

// Migrate upgrades 1.x settings, which stored the tempo under "bpm".
func Migrate(old registry.Settings, from, to string) (registry.Settings, error) {
	if !strings.HasPrefix(from, "1.") {
		return old, nil
	}
	out := make(registry.Settings, len(old))
	for k, v := range old {
		out[k] = v
	}
	if bpm, ok := out["bpm"]; ok {
		if _, has := out["tempo"]; !has {
			out["tempo"] = bpm
		}
		delete(out, "bpm")
	}
	return out, nil
}

// Atoms is the per-instance metronome state.
type Atoms struct {
	*atoms.BaseCells
	Tempo           *atoms.Cell[int]
	BeatsPerMeasure *atoms.Cell[int]
	Volume          *atoms.Cell[float64]
	Sound           *atoms.Cell[string]
	Playing         *atoms.Cell[bool]
	// Beat is the zero-based position within the current measure.
	Beat       *atoms.Cell[int]
	IntervalMs *atoms.Derived[int]
}

// NewAtoms creates a stopped metronome at the default tempo.
func NewAtoms() atoms.Bundle {
	a := &Atoms{
		BaseCells:       atoms.NewBaseCells(),
		Tempo:           atoms.NewCell(DefaultTempo),
		BeatsPerMeasure: atoms.NewCell(DefaultBeatsPerMeasure),
		Volume:          atoms.NewCell(DefaultVolume),
		Sound:           atoms.NewCell(DefaultSound),
		Playing:         atoms.NewCell(false),
		Beat:            atoms.NewCell(0),
	}
	a.IntervalMs = atoms.NewDerived(func() int {
		tempo := a.Tempo.Get()
		if tempo <= 0 {
			return 0
		}
		return 60000 / tempo
	}, a.Tempo)
	return a
}

// Apply loads settings into the cells.
func (a *Atoms) Apply(s registry.Settings) {
	a.Tempo.Set(s.Int("tempo", DefaultTempo))
	beats := s.Int("beatsPerMeasure", DefaultBeatsPerMeasure)
	if beats < 1 {
		beats = 1
	}
	a.BeatsPerMeasure.Set(beats)
	a.Volume.Set(s.Float("volume", DefaultVolume))
	a.Sound.Set(s.String("sound", DefaultSound))
}

// Start begins playback from the downbeat and remembers the tempo.
func (a *Atoms) Start(sb *sandbox.Sandbox, now time.Time) {
	a.Beat.Set(0)
	a.Playing.Set(true)
	a.Touch(now)
	if sb != nil {
		sb.Storage.Set(storageTempoKey, a.Tempo.Get())
	}
}

// Stop halts playback and silences the last click.
func (a *Atoms) Stop(sb *sandbox.Sandbox) {
	a.Playing.Set(false)
	a.Beat.Set(0)
	if sb != nil {
		sb.Audio.Stop(soundID)
	}
}

// Tick plays one click and advances the beat. The first beat of each
// measure is accented. Ticks while stopped do nothing.
func (a *Atoms) Tick(ctx context.Context, sb *sandbox.Sandbox, events *bus.EventBus, instanceID string) error {
	if !a.Playing.Get() {
		return nil
	}
	beat := a.Beat.Get()
	accent := beat == 0
	source := "sounds/" + a.Sound.Get() + ".wav"
	if accent {
		source = "sounds/" + a.Sound.Get() + "-accent.wav"
	}
	volume := a.Volume.Get()
	if _, err := sb.Audio.Play(ctx, source, sandbox.PlayOptions{Volume: &volume, ID: soundID}); err != nil {
		a.Fail(err)
		return fmt.Errorf("metronome tick: %w", err)
	}
	a.Beat.Set((beat + 1) % a.BeatsPerMeasure.Get())
	if events != nil {
		events.Emit(bus.EventMetronomeBeat, map[string]any{
			"beat":   beat + 1,
			"accent": accent,
			"tempo":  a.Tempo.Get(),
		}, instanceID, Type)
	}
	return nil
}

func render(ctx context.Context, props registry.Props) (registry.View, error) {
	a, err := atomsOf(props)
	if err != nil {
		return registry.View{}, err
	}
	if !a.Playing.Get() {
		a.Apply(props.Settings)
	}
	fields := map[string]any{
		"tempo":           a.Tempo.Get(),
		"beatsPerMeasure": a.BeatsPerMeasure.Get(),
		"volume":          a.Volume.Get(),
		"playing":         a.Playing.Get(),
		"beat":            a.Beat.Get(),
		"intervalMs":      a.IntervalMs.Get(),
	}
	var last int
	if props.Sandbox != nil && props.Sandbox.Storage.GetInto(storageTempoKey, &last) {
		fields["lastTempo"] = last
	}
	return registry.View{Kind: Type, Title: "Metronome", Fields: fields}, nil
}
