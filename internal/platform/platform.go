// Package platform provides the host primitives module sandboxes delegate
// to: HTTP fetch, audio playback and notification display.
package platform

import (
	"context"
	"net/http"
	"time"
)

// HTTPDoer performs outbound HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a client with pooled connections and the given timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// AudioDevice constructs playable sounds from a source locator.
type AudioDevice interface {
	Open(source string) (Sound, error)
}

// Sound is a live playable handle.
type Sound interface {
	SetVolume(v float64)
	SetLoop(loop bool)
	// OnEnded registers fn to run when playback finishes naturally.
	OnEnded(fn func())
	Play(ctx context.Context) error
	Pause()
	// Stop halts playback and releases the handle.
	Stop()
}

// NotificationPermission mirrors the host's notification permission state.
type NotificationPermission string

const (
	PermissionDefault NotificationPermission = "default"
	PermissionGranted NotificationPermission = "granted"
	PermissionDenied  NotificationPermission = "denied"
)

// Notification is a single notification to display.
type Notification struct {
	Title string
	Body  string
	Icon  string
	Tag   string
}

// Notifier displays notifications on the host.
type Notifier interface {
	Permission() NotificationPermission
	RequestPermission(ctx context.Context) (NotificationPermission, error)
	Show(ctx context.Context, n Notification) error
}

// NotificationCloser is implemented by notifiers that can dismiss a
// notification after it was shown.
type NotificationCloser interface {
	Close(ctx context.Context, tag string) error
}
