package metronome

import (
	"context"
	"fmt"
	"time"

	"github.com/lythra/lythra/internal/registry"
)

// maxTicks bounds how many beats one tick request may play.
const maxTicks = 64

func actions() map[string]registry.ActionFunc {
	return map[string]registry.ActionFunc{
		"start": startAction,
		"stop":  stopAction,
		"tick":  tickAction,
	}
}

func atomsOf(props registry.Props) (*Atoms, error) {
	a, ok := props.Atoms.(*Atoms)
	if !ok {
		return nil, fmt.Errorf("metronome: unexpected atoms %T", props.Atoms)
	}
	return a, nil
}

// startAction loads the current settings and starts from the downbeat.
// Starting a playing metronome restarts the measure at the same tempo.
func startAction(ctx context.Context, props registry.Props, args map[string]any) error {
	a, err := atomsOf(props)
	if err != nil {
		return err
	}
	if !a.Playing.Get() {
		a.Apply(props.Settings)
	}
	a.Start(props.Sandbox, time.Now())
	return nil
}

func stopAction(ctx context.Context, props registry.Props, args map[string]any) error {
	a, err := atomsOf(props)
	if err != nil {
		return err
	}
	a.Stop(props.Sandbox)
	return nil
}

// tickAction plays args["beats"] clicks, one by default.
func tickAction(ctx context.Context, props registry.Props, args map[string]any) error {
	a, err := atomsOf(props)
	if err != nil {
		return err
	}
	beats := registry.Settings(args).Int("beats", 1)
	if beats < 1 || beats > maxTicks {
		return fmt.Errorf("%w: beats must be between 1 and %d", registry.ErrInvalidActionArgs, maxTicks)
	}
	for i := 0; i < beats; i++ {
		if err := a.Tick(ctx, props.Sandbox, props.Events, props.InstanceID); err != nil {
			return err
		}
	}
	return nil
}
