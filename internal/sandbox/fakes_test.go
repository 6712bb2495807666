package sandbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/lythra/lythra/internal/platform"
)

type fakeSound struct {
	mu      sync.Mutex
	source  string
	volume  float64
	loop    bool
	ended   func()
	plays   int
	paused  bool
	stopped bool
	playErr error
}

func (s *fakeSound) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

func (s *fakeSound) SetLoop(l bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = l
}

func (s *fakeSound) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = fn
}

func (s *fakeSound) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *fakeSound) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *fakeSound) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	s.paused = false
	return s.playErr
}

func (s *fakeSound) finish() {
	s.mu.Lock()
	fn := s.ended
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type recordingDevice struct {
	mu      sync.Mutex
	opened  []*fakeSound
	playErr error
}

func (d *recordingDevice) Open(source string) (platform.Sound, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &fakeSound{source: source, playErr: d.playErr}
	d.opened = append(d.opened, s)
	return s, nil
}

func (d *recordingDevice) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.opened)
}

type recordingNotifier struct {
	mu         sync.Mutex
	permission platform.NotificationPermission
	grantOnAsk platform.NotificationPermission
	askErr     error
	asked      int
	shown      []platform.Notification
}

func (n *recordingNotifier) Permission() platform.NotificationPermission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.permission
}

func (n *recordingNotifier) RequestPermission(ctx context.Context) (platform.NotificationPermission, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.asked++
	if n.askErr != nil {
		return platform.PermissionDenied, n.askErr
	}
	n.permission = n.grantOnAsk
	return n.permission, nil
}

func (n *recordingNotifier) Show(ctx context.Context, note platform.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, note)
	return nil
}

type closingNotifier struct {
	recordingNotifier
	closed []string
}

func (n *closingNotifier) Close(ctx context.Context, tag string) error {
	n.closed = append(n.closed, tag)
	return nil
}

// handlerDoer serves requests in-process through an http.Handler and counts them.
type handlerDoer struct {
	mu       sync.Mutex
	handler  http.Handler
	requests []*http.Request
	err      error
}

func (d *handlerDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	rec := httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	return rec.Result(), nil
}

func (d *handlerDoer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

var errTransport = errors.New("connection reset")
