package timer

import (
	"context"
	"fmt"
	"time"

	"github.com/lythra/lythra/internal/registry"
)

// maxAdvance bounds one advance request.
const maxAdvance = 24 * time.Hour

func actions() map[string]registry.ActionFunc {
	return map[string]registry.ActionFunc{
		"start":    startAction,
		"pause":    pauseAction,
		"reset":    resetAction,
		"advance":  advanceAction,
		"complete": completeAction,
	}
}

func atomsOf(props registry.Props) (*Atoms, error) {
	a, ok := props.Atoms.(*Atoms)
	if !ok {
		return nil, fmt.Errorf("timer: unexpected atoms %T", props.Atoms)
	}
	return a, nil
}

func configuredDuration(s registry.Settings) time.Duration {
	return time.Duration(s.Int("duration", DefaultDuration)) * time.Second
}

// syncDuration rewinds a stopped timer whose duration setting changed.
func syncDuration(a *Atoms, s registry.Settings) {
	if want := configuredDuration(s); !a.Running.Get() && a.Duration.Get() != want {
		a.Reset(want)
	}
}

func startAction(ctx context.Context, props registry.Props, args map[string]any) error {
	a, err := atomsOf(props)
	if err != nil {
		return err
	}
	syncDuration(a, props.Settings)
	a.Start(time.Now())
	return nil
}

func pauseAction(ctx context.Context, props registry.Props, args map[string]any) error {
	a, err := atomsOf(props)
	if err != nil {
		return err
	}
	a.Pause()
	return nil
}

func resetAction(ctx context.Context, props registry.Props, args map[string]any) error {
	a, err := atomsOf(props)
	if err != nil {
		return err
	}
	a.Reset(configuredDuration(props.Settings))
	return nil
}

// advanceAction moves a running countdown forward by args["seconds"] and
// completes it on reaching zero. A paused timer is left alone.
func advanceAction(ctx context.Context, props registry.Props, args map[string]any) error {
	a, err := atomsOf(props)
	if err != nil {
		return err
	}
	secs := registry.Settings(args).Float("seconds", 0)
	if secs <= 0 || secs > maxAdvance.Seconds() {
		return fmt.Errorf("%w: seconds must be in (0, %d]", registry.ErrInvalidActionArgs, int(maxAdvance.Seconds()))
	}
	if a.Advance(time.Duration(secs * float64(time.Second))) {
		a.Complete(ctx, props.Sandbox, props.Events, props.InstanceID, props.Settings)
	}
	return nil
}

func completeAction(ctx context.Context, props registry.Props, args map[string]any) error {
	a, err := atomsOf(props)
	if err != nil {
		return err
	}
	syncDuration(a, props.Settings)
	a.Complete(ctx, props.Sandbox, props.Events, props.InstanceID, props.Settings)
	return nil
}
