// Package sandbox builds capability-scoped accessors for one module instance.
//
// A Sandbox is cheap to build and never fails to construct; every accessor
// call checks the instance's granted permissions before touching the
// platform.
package sandbox

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/lythra/lythra/internal/platform"
	"github.com/lythra/lythra/internal/policy"
	"github.com/lythra/lythra/internal/storage"
)

var (
	// ErrPermissionDenied is wrapped by every PermissionError.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrBlockedTarget is returned for requests to blocked hosts or paths.
	ErrBlockedTarget = errors.New("network target blocked")
)

// PermissionError reports a capability the instance was not granted.
type PermissionError struct {
	InstanceID string
	Permission policy.Permission
	Op         string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("module %s: %s requires %q permission", e.InstanceID, e.Op, e.Permission)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// Factory holds the platform primitives shared by all sandboxes. Nil fields
// fall back to in-process defaults.
type Factory struct {
	Store     storage.KV
	HTTP      platform.HTTPDoer
	Audio     platform.AudioDevice
	Notifier  platform.Notifier
	Engine    policy.Engine
	Blocklist Blocklist

	once     sync.Once
	fallback storage.KV
}

// Sandbox is the capability bundle handed to one mounted instance.
type Sandbox struct {
	InstanceID    string
	Permissions   []policy.Permission
	Storage       *Storage
	Network       *Network
	Audio         *Audio
	Notifications *Notifications

	granted policy.Set
}

// Has reports whether p was granted.
func (s *Sandbox) Has(p policy.Permission) bool { return s.granted.Has(p) }

// New builds a sandbox for instanceID with the given permissions.
func (f *Factory) New(instanceID string, permissions []policy.Permission) *Sandbox {
	granted := policy.NewSet(permissions)
	g := gate{instanceID: instanceID, granted: granted, engine: f.engine()}

	sb := &Sandbox{
		InstanceID:  instanceID,
		Permissions: granted.List(),
		granted:     granted,
		Storage:     &Storage{instanceID: instanceID, prefix: namespace(instanceID), kv: f.store()},
		Network: &Network{
			gate:      g,
			client:    f.httpClient(),
			blocklist: DefaultBlocklist().Merge(f.Blocklist),
		},
		Audio: &Audio{
			gate:   g,
			device: f.audioDevice(),
			sounds: make(map[string]platform.Sound),
		},
		Notifications: &Notifications{gate: g, notifier: f.notifier()},
	}
	slog.Debug("Sandbox created", "instance", instanceID, "permissions", sb.Permissions)
	return sb
}

func (f *Factory) store() storage.KV {
	if f.Store != nil {
		return f.Store
	}
	f.once.Do(func() { f.fallback = storage.NewMemoryKV() })
	return f.fallback
}

func (f *Factory) engine() policy.Engine {
	if f.Engine != nil {
		return f.Engine
	}
	return policy.NewDefaultEngine()
}

func (f *Factory) httpClient() platform.HTTPDoer {
	if f.HTTP != nil {
		return f.HTTP
	}
	return http.DefaultClient
}

func (f *Factory) audioDevice() platform.AudioDevice {
	if f.Audio != nil {
		return f.Audio
	}
	return platform.NewHeadlessAudio(0)
}

func (f *Factory) notifier() platform.Notifier {
	if f.Notifier != nil {
		return f.Notifier
	}
	return platform.LogNotifier{}
}

type gate struct {
	instanceID string
	granted    policy.Set
	engine     policy.Engine
}

func (g gate) check(p policy.Permission, op string) error {
	d := g.engine.Evaluate(policy.Request{
		InstanceID: g.instanceID,
		Permission: p,
		Granted:    g.granted,
		Op:         op,
	})
	if d.Allow {
		return nil
	}
	slog.Warn("Sandbox permission denied", "instance", g.instanceID, "op", op, "reason", d.Reason)
	return &PermissionError{InstanceID: g.instanceID, Permission: p, Op: op, Reason: d.Reason}
}
