// Package timer is the built-in countdown module.
package timer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/lythra/lythra/internal/atoms"
	"github.com/lythra/lythra/internal/bus"
	"github.com/lythra/lythra/internal/policy"
	"github.com/lythra/lythra/internal/registry"
	"github.com/lythra/lythra/internal/sandbox"
)

const (
	Type    = "timer"
	Version = "1.0.0"

	// DefaultDuration is in seconds.
	DefaultDuration = 60
	DefaultSound    = "chime"

	notificationTag = "done"
)

// Definition describes the timer module type.
func Definition() registry.Definition {
	return registry.Definition{
		Type:        Type,
		Name:        "Timer",
		Description: "Countdown with an alarm and an optional notification.",
		Version:     Version,
		Category:    "productivity",
		DefaultSize: registry.Size{W: 2, H: 1},
		DefaultSettings: registry.Settings{
			"duration": DefaultDuration,
			"sound":    DefaultSound,
			"notify":   true,
		},
		Permissions: []policy.Permission{policy.AudioPlay, policy.NotificationsCreate},
		SettingsSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"duration": {Type: "integer", Minimum: jsonschema.Ptr(1.0), Maximum: jsonschema.Ptr(86400.0)},
				"sound":    {Type: "string"},
				"notify":   {Type: "boolean"},
			},
		},
		Component: registry.ComponentFunc(render),
		Actions:   actions(),
	}
}

// Atoms is the per-instance countdown state.
type Atoms struct {
	*atoms.BaseCells
	Duration  *atoms.Cell[time.Duration]
	Remaining *atoms.Cell[time.Duration]
	Running   *atoms.Cell[bool]
	// Display is Remaining formatted as mm:ss, rounded up.
	Display *atoms.Derived[string]
}

// NewAtoms creates a stopped timer at the default duration.
func NewAtoms() atoms.Bundle {
	d := DefaultDuration * time.Second
	a := &Atoms{
		BaseCells: atoms.NewBaseCells(),
		Duration:  atoms.NewCell(d),
		Remaining: atoms.NewCell(d),
		Running:   atoms.NewCell(false),
	}
	a.Display = atoms.NewDerived(func() string { return FormatRemaining(a.Remaining.Get()) }, a.Remaining)
	return a
}

// FormatRemaining renders d as mm:ss, rounding partial seconds up.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Reset stops the timer and rewinds it to d.
func (a *Atoms) Reset(d time.Duration) {
	a.Running.Set(false)
	a.Duration.Set(d)
	a.Remaining.Set(d)
	a.Error.Set("")
}

// Start resumes the countdown. A finished timer restarts from its duration.
func (a *Atoms) Start(now time.Time) {
	if a.Remaining.Get() <= 0 {
		a.Remaining.Set(a.Duration.Get())
	}
	a.Running.Set(true)
	a.Touch(now)
}

// Pause freezes the countdown.
func (a *Atoms) Pause() {
	a.Running.Set(false)
}

// Advance subtracts d from a running timer and reports whether it reached zero.
func (a *Atoms) Advance(d time.Duration) bool {
	if !a.Running.Get() {
		return false
	}
	left := a.Remaining.Update(func(r time.Duration) time.Duration {
		r -= d
		if r < 0 {
			r = 0
		}
		return r
	})
	return left == 0
}

// Complete stops the timer, sounds the alarm, optionally notifies and emits
// timer:completed. Alarm and notification failures are recorded, not returned.
func (a *Atoms) Complete(ctx context.Context, sb *sandbox.Sandbox, events *bus.EventBus, instanceID string, settings registry.Settings) {
	a.Running.Set(false)
	a.Remaining.Set(0)

	if sound := settings.String("sound", DefaultSound); sound != "" {
		if _, err := sb.Audio.Play(ctx, "sounds/"+sound+".wav", sandbox.PlayOptions{ID: "alarm"}); err != nil {
			a.Fail(err)
		}
	}
	notified := false
	if settings.Bool("notify", true) {
		_, shown, err := sb.Notifications.Show(ctx, "Timer finished", sandbox.NotificationOptions{
			Body: FormatRemaining(a.Duration.Get()) + " elapsed",
			Tag:  notificationTag,
		})
		if err != nil {
			a.Fail(err)
		}
		notified = shown
	}
	if events != nil {
		events.Emit(bus.EventTimerCompleted, map[string]any{
			"duration": int(a.Duration.Get() / time.Second),
			"notified": notified,
		}, instanceID, Type)
	}
}

func render(ctx context.Context, props registry.Props) (registry.View, error) {
	a, err := atomsOf(props)
	if err != nil {
		return registry.View{}, err
	}
	syncDuration(a, props.Settings)
	fields := map[string]any{
		"display":   a.Display.Get(),
		"running":   a.Running.Get(),
		"remaining": int((a.Remaining.Get() + time.Second - 1) / time.Second),
		"duration":  int(a.Duration.Get() / time.Second),
	}
	if msg := a.Error.Get(); msg != "" {
		fields["error"] = msg
	}
	return registry.View{Kind: Type, Title: "Timer", Fields: fields}, nil
}
