// Package webcheck is the built-in uptime probe module.
package webcheck

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/lythra/lythra/internal/atoms"
	"github.com/lythra/lythra/internal/policy"
	"github.com/lythra/lythra/internal/registry"
	"github.com/lythra/lythra/internal/sandbox"
)

const (
	Type    = "webcheck"
	Version = "1.0.0"
)

// Definition describes the webcheck module type.
func Definition() registry.Definition {
	return registry.Definition{
		Type:            Type,
		Name:            "Web Check",
		Description:     "Probes a URL and shows its HTTP status.",
		Version:         Version,
		Category:        "utility",
		DefaultSize:     registry.Size{W: 2, H: 1},
		DefaultSettings: registry.Settings{"url": ""},
		Permissions:     []policy.Permission{policy.NetworkRead},
		SettingsSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"url": {Type: "string"},
			},
		},
		Component: registry.ComponentFunc(render),
	}
}

// Atoms holds the outcome of the last probe.
type Atoms struct {
	*atoms.BaseCells
	Status  *atoms.Cell[int]
	Latency *atoms.Cell[time.Duration]
}

// NewAtoms creates a bundle with no probe recorded.
func NewAtoms() atoms.Bundle {
	return &Atoms{
		BaseCells: atoms.NewBaseCells(),
		Status:    atoms.NewCell(0),
		Latency:   atoms.NewCell(time.Duration(0)),
	}
}

// Check fetches target through the sandbox and records the result.
func (a *Atoms) Check(ctx context.Context, sb *sandbox.Sandbox, target string) error {
	a.Loading.Set(true)
	start := time.Now()
	resp, err := sb.Network.Fetch(ctx, target, sandbox.FetchOptions{Method: "GET"})
	if err != nil {
		a.Status.Set(0)
		a.Fail(err)
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	a.Latency.Set(time.Since(start))
	a.Status.Set(resp.StatusCode)
	a.Loading.Set(false)
	if resp.StatusCode >= 400 {
		a.Error.Set(fmt.Sprintf("HTTP %d", resp.StatusCode))
	} else {
		a.Error.Set("")
	}
	a.Touch(time.Now())
	return nil
}

func render(ctx context.Context, props registry.Props) (registry.View, error) {
	target := strings.TrimSpace(props.Settings.String("url", ""))
	if target == "" {
		return registry.View{Kind: Type, Title: "Web Check", Fields: map[string]any{"configured": false}}, nil
	}
	a, ok := props.Atoms.(*Atoms)
	if !ok {
		return registry.View{}, fmt.Errorf("webcheck: unexpected atoms %T", props.Atoms)
	}
	fields := map[string]any{"configured": true, "url": target}
	if err := a.Check(ctx, props.Sandbox, target); err != nil {
		fields["ok"] = false
		fields["error"] = err.Error()
	} else {
		status := a.Status.Get()
		fields["ok"] = status < 400
		fields["status"] = status
		fields["latencyMs"] = a.Latency.Get().Milliseconds()
	}
	return registry.View{Kind: Type, Title: "Web Check", Fields: fields}, nil
}
