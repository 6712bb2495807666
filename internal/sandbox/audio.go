package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/lythra/lythra/internal/platform"
	"github.com/lythra/lythra/internal/policy"
)

// PlayOptions configures Play. A nil Volume means full volume; an empty ID
// is generated.
type PlayOptions struct {
	Volume *float64
	Loop   bool
	ID     string
}

// Audio owns the live sounds of one instance.
type Audio struct {
	gate
	device platform.AudioDevice

	mu     sync.Mutex
	sounds map[string]platform.Sound
}

func clampVolume(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Play starts source and returns the sound id. An active sound with the same
// id is stopped first.
func (a *Audio) Play(ctx context.Context, source string, opts PlayOptions) (string, error) {
	if err := a.check(policy.AudioPlay, "audio.play"); err != nil {
		return "", err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	a.Stop(id)

	snd, err := a.device.Open(source)
	if err != nil {
		return "", fmt.Errorf("open sound %s: %w", source, err)
	}
	volume := 1.0
	if opts.Volume != nil {
		volume = clampVolume(*opts.Volume)
	}
	snd.SetVolume(volume)
	snd.SetLoop(opts.Loop)
	if !opts.Loop {
		snd.OnEnded(func() { a.release(id, snd) })
	}

	a.mu.Lock()
	a.sounds[id] = snd
	a.mu.Unlock()

	if err := snd.Play(ctx); err != nil {
		a.release(id, snd)
		return "", fmt.Errorf("play sound %s: %w", source, err)
	}
	return id, nil
}

// release drops id only while it still maps to snd.
func (a *Audio) release(id string, snd platform.Sound) {
	a.mu.Lock()
	if cur, ok := a.sounds[id]; ok && cur == snd {
		delete(a.sounds, id)
	}
	a.mu.Unlock()
	snd.Stop()
}

func (a *Audio) lookup(id string) (platform.Sound, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	snd, ok := a.sounds[id]
	return snd, ok
}

// Stop halts and releases id. Unknown ids are ignored.
func (a *Audio) Stop(id string) {
	a.mu.Lock()
	snd, ok := a.sounds[id]
	delete(a.sounds, id)
	a.mu.Unlock()
	if ok {
		snd.Stop()
	}
}

// Pause pauses id and keeps the handle.
func (a *Audio) Pause(id string) {
	if snd, ok := a.lookup(id); ok {
		snd.Pause()
	}
}

// Resume restarts a paused sound. Failures are logged.
func (a *Audio) Resume(ctx context.Context, id string) {
	snd, ok := a.lookup(id)
	if !ok {
		return
	}
	if err := snd.Play(ctx); err != nil {
		slog.Warn("Sandbox audio resume failed", "instance", a.instanceID, "sound", id, "error", err)
	}
}

// SetVolume applies v clamped to [0, 1].
func (a *Audio) SetVolume(id string, v float64) {
	if snd, ok := a.lookup(id); ok {
		snd.SetVolume(clampVolume(v))
	}
}

// StopAll releases every sound owned by the instance.
func (a *Audio) StopAll() {
	a.mu.Lock()
	sounds := a.sounds
	a.sounds = make(map[string]platform.Sound)
	a.mu.Unlock()
	for _, snd := range sounds {
		snd.Stop()
	}
	if len(sounds) > 0 {
		slog.Debug("Sandbox audio stopped", "instance", a.instanceID, "count", len(sounds))
	}
}

// Active lists the ids of live sounds, sorted.
func (a *Audio) Active() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.sounds))
	for id := range a.sounds {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
