// Package atoms keeps one reactive state bundle per module instance.
//
// Bundles are created lazily by the creator registered for the module type
// and live until Remove is called for their (type, instance) key. Nothing is
// collected implicitly: an instance deleted without Remove leaks its bundle.
package atoms

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrNoCreator is returned when no creator is registered for a module type.
var ErrNoCreator = errors.New("no atom creator registered")

// Bundle is the state cell collection private to one module instance.
type Bundle interface {
	Base() *BaseCells
}

// Creator builds a fresh bundle for a new instance.
type Creator func() Bundle

// Key identifies one instance's bundle.
type Key struct {
	ModuleType string
	InstanceID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.ModuleType, k.InstanceID)
}

// Registry maps module types to creators and keys to live bundles.
type Registry struct {
	mu       sync.Mutex
	creators map[string]Creator
	bundles  map[Key]Bundle
}

// NewRegistry creates an empty atoms registry.
func NewRegistry() *Registry {
	return &Registry{
		creators: make(map[string]Creator),
		bundles:  make(map[Key]Bundle),
	}
}

// RegisterCreator associates creator with moduleType. Re-registering
// overwrites the previous creator; existing bundles are kept.
func (r *Registry) RegisterCreator(moduleType string, creator Creator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.creators[moduleType]; exists {
		slog.Warn("Atom creator re-registered, overwriting", "module_type", moduleType)
	}
	r.creators[moduleType] = creator
}

// GetOrCreate returns the bundle for (moduleType, instanceID), creating it
// with the registered creator on first access.
func (r *Registry) GetOrCreate(moduleType, instanceID string) (Bundle, error) {
	key := Key{ModuleType: moduleType, InstanceID: instanceID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bundles[key]; ok {
		return b, nil
	}
	creator, ok := r.creators[moduleType]
	if !ok {
		return nil, fmt.Errorf("%w for module type %q", ErrNoCreator, moduleType)
	}
	b := creator()
	if b == nil || b.Base() == nil {
		return nil, fmt.Errorf("atom creator for %q returned an empty bundle", moduleType)
	}
	r.bundles[key] = b
	slog.Debug("Atoms bundle created", "key", key.String())
	return b, nil
}

// Has reports whether a bundle exists for (moduleType, instanceID).
func (r *Registry) Has(moduleType, instanceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bundles[Key{ModuleType: moduleType, InstanceID: instanceID}]
	return ok
}

// Remove evicts the bundle for (moduleType, instanceID). The next
// GetOrCreate for that key builds a brand-new bundle.
func (r *Registry) Remove(moduleType, instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bundles, Key{ModuleType: moduleType, InstanceID: instanceID})
}

// RegisteredTypes lists module types with a creator, sorted.
func (r *Registry) RegisteredTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.creators))
	for t := range r.creators {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of live bundles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bundles)
}
