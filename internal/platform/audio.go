package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// HeadlessAudio is an AudioDevice for hosts without a sound card. Sounds
// only log; a non-looping sound ends after Duration (never, when zero).
type HeadlessAudio struct {
	Duration time.Duration
}

// NewHeadlessAudio creates a headless device whose sounds end after d.
func NewHeadlessAudio(d time.Duration) *HeadlessAudio {
	return &HeadlessAudio{Duration: d}
}

// Open validates the source and returns a simulated sound.
func (a *HeadlessAudio) Open(source string) (Sound, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("audio source is empty")
	}
	return &headlessSound{source: source, duration: a.Duration, volume: 1}, nil
}

type headlessSound struct {
	mu       sync.Mutex
	source   string
	duration time.Duration
	volume   float64
	loop     bool
	ended    func()
	timer    *time.Timer
	stopped  bool
}

func (s *headlessSound) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

func (s *headlessSound) SetLoop(loop bool) {
	s.mu.Lock()
	s.loop = loop
	s.mu.Unlock()
}

func (s *headlessSound) OnEnded(fn func()) {
	s.mu.Lock()
	s.ended = fn
	s.mu.Unlock()
}

func (s *headlessSound) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("sound %s already released", s.source)
	}
	slog.Debug("Headless audio playing", "source", s.source, "volume", s.volume, "loop", s.loop)
	if s.loop || s.duration <= 0 {
		return nil
	}
	s.timer = time.AfterFunc(s.duration, func() {
		s.mu.Lock()
		fn := s.ended
		stopped := s.stopped
		s.mu.Unlock()
		if fn != nil && !stopped {
			fn()
		}
	})
	return nil
}

func (s *headlessSound) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *headlessSound) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}
