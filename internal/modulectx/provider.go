// Package modulectx mounts module instances: it builds the sandbox for an
// instance, exposes it through context.Context and tears it down on close.
package modulectx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lythra/lythra/internal/atoms"
	"github.com/lythra/lythra/internal/bus"
	"github.com/lythra/lythra/internal/registry"
	"github.com/lythra/lythra/internal/sandbox"
)

var (
	// ErrNoProvider is returned when no sandbox is bound to the context.
	ErrNoProvider = errors.New("module sandbox accessed outside a mounted module")
	// ErrUnknownAction is returned for actions the module type does not define.
	ErrUnknownAction = errors.New("unknown module action")
)

type sandboxKey struct{}

// WithSandbox returns ctx carrying sb.
func WithSandbox(ctx context.Context, sb *sandbox.Sandbox) context.Context {
	return context.WithValue(ctx, sandboxKey{}, sb)
}

// SandboxFrom returns the sandbox bound to ctx.
func SandboxFrom(ctx context.Context) (*sandbox.Sandbox, error) {
	if ctx != nil {
		if sb, ok := ctx.Value(sandboxKey{}).(*sandbox.Sandbox); ok && sb != nil {
			return sb, nil
		}
	}
	return nil, ErrNoProvider
}

// MustSandbox is like SandboxFrom but panics without a mounted module.
func MustSandbox(ctx context.Context) *sandbox.Sandbox {
	sb, err := SandboxFrom(ctx)
	if err != nil {
		panic(err)
	}
	return sb
}

// Provider composes the registry, sandbox factory, bus and atoms registry.
type Provider struct {
	Registry *registry.Registry
	Factory  *sandbox.Factory
	Events   *bus.EventBus
	Atoms    *atoms.Registry
}

// Mount is one mounted instance.
type Mount struct {
	provider   *Provider
	instanceID string
	moduleType string
	def        registry.Definition
	known      bool
	sandbox    *sandbox.Sandbox
	closeOnce  sync.Once
}

// Mount builds the sandbox for instanceID and returns the mount with a
// context carrying it. Unregistered types get a sandbox with no permissions.
func (p *Provider) Mount(ctx context.Context, instanceID, moduleType string) (*Mount, context.Context) {
	def, known := p.Registry.Definition(moduleType)
	perms := def.Permissions
	if !known {
		perms = nil
		slog.Warn("Mounting unregistered module type", "id", instanceID, "type", moduleType)
	}
	m := &Mount{
		provider:   p,
		instanceID: instanceID,
		moduleType: moduleType,
		def:        def,
		known:      known,
		sandbox:    p.Factory.New(instanceID, perms),
	}
	p.Events.Emit(bus.EventModuleInitialized, map[string]any{"mounted": true}, instanceID, moduleType)
	return m, WithSandbox(ctx, m.sandbox)
}

// InstanceID returns the mounted instance id.
func (m *Mount) InstanceID() string { return m.instanceID }

// ModuleType returns the mounted module type.
func (m *Mount) ModuleType() string { return m.moduleType }

// Known reports whether the module type is registered.
func (m *Mount) Known() bool { return m.known }

// Sandbox returns the instance's sandbox.
func (m *Mount) Sandbox() *sandbox.Sandbox { return m.sandbox }

// Atoms returns the instance's state bundle.
func (m *Mount) Atoms() (atoms.Bundle, error) {
	return m.provider.Atoms.GetOrCreate(m.moduleType, m.instanceID)
}

// Render renders the instance with its current settings.
func (m *Mount) Render(ctx context.Context) (view registry.View, err error) {
	if !m.known {
		return registry.UnknownModuleView(m.moduleType), nil
	}
	if m.def.Component == nil {
		return registry.View{Kind: "empty", Title: m.def.Name}, nil
	}
	props, err := m.props()
	if err != nil {
		return registry.View{}, err
	}

	defer m.recoverInto(&err, "render")
	return m.def.Component.Render(WithSandbox(ctx, m.sandbox), props)
}

// Act runs the module action name against the instance. A failing or
// panicking action emits module:error like a failed render.
func (m *Mount) Act(ctx context.Context, name string, args map[string]any) (err error) {
	action, ok := m.def.Actions[name]
	if !m.known || !ok {
		return fmt.Errorf("%w: %s has no action %q (available: %s)",
			ErrUnknownAction, m.moduleType, name, strings.Join(m.def.ActionNames(), ", "))
	}
	props, err := m.props()
	if err != nil {
		return err
	}

	defer m.recoverInto(&err, "action "+name)
	return action(WithSandbox(ctx, m.sandbox), props, args)
}

// props assembles what components and actions receive. Instances whose type
// has no atom creator get a nil bundle.
func (m *Mount) props() (registry.Props, error) {
	settings := m.def.DefaultSettings
	if cfg, ok := m.provider.Registry.Instance(m.instanceID); ok {
		settings = cfg.Settings
	}
	bundle, err := m.Atoms()
	if err != nil && !errors.Is(err, atoms.ErrNoCreator) {
		return registry.Props{}, err
	}
	return registry.Props{
		InstanceID: m.instanceID,
		ModuleType: m.moduleType,
		Settings:   settings,
		Sandbox:    m.sandbox,
		Atoms:      bundle,
		Events:     m.provider.Events,
	}, nil
}

// recoverInto turns a panic into *err and reports any failure on the bus.
// It must be deferred directly.
func (m *Mount) recoverInto(err *error, op string) {
	if rec := recover(); rec != nil {
		*err = fmt.Errorf("%s %s panicked: %v", op, m.moduleType, rec)
	}
	if *err != nil {
		slog.Error("Module "+op+" failed", "id", m.instanceID, "type", m.moduleType, "error", *err)
		m.provider.Events.Emit(bus.EventModuleError, map[string]any{"error": (*err).Error(), "op": op}, m.instanceID, m.moduleType)
	}
}

// Close stops all sandbox audio and announces the unmount. Repeated calls
// are no-ops.
func (m *Mount) Close() {
	m.closeOnce.Do(func() {
		m.sandbox.Audio.StopAll()
		m.provider.Events.Emit(bus.EventModuleUnmounted, nil, m.instanceID, m.moduleType)
	})
}

// RenderInstance mounts the stored instance id, renders it and unmounts.
func (p *Provider) RenderInstance(ctx context.Context, id string) (registry.View, error) {
	cfg, ok := p.Registry.Instance(id)
	if !ok {
		return registry.View{}, fmt.Errorf("%w: %s", registry.ErrInstanceNotFound, id)
	}
	m, mctx := p.Mount(ctx, cfg.ID, cfg.Type)
	defer m.Close()
	return m.Render(mctx)
}

// ActOnInstance mounts the stored instance id, runs action name and returns
// the view rendered afterwards.
func (p *Provider) ActOnInstance(ctx context.Context, id, name string, args map[string]any) (registry.View, error) {
	cfg, ok := p.Registry.Instance(id)
	if !ok {
		return registry.View{}, fmt.Errorf("%w: %s", registry.ErrInstanceNotFound, id)
	}
	m, mctx := p.Mount(ctx, cfg.ID, cfg.Type)
	defer m.Close()
	if err := m.Act(mctx, name, args); err != nil {
		return registry.View{}, err
	}
	return m.Render(mctx)
}
