// Package registry holds module type definitions and the module instances
// placed on a dashboard.
//
// Lifecycle changes are announced on the event bus after the registry lock
// is released, so subscribers may call back into the registry.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/lythra/lythra/internal/atoms"
	"github.com/lythra/lythra/internal/bus"
)

var (
	// ErrDuplicateType is returned when a module type is registered twice.
	ErrDuplicateType = errors.New("module type already registered")
	// ErrUnknownType is returned when creating an instance of an unregistered type.
	ErrUnknownType = errors.New("unknown module type")
	// ErrInstanceNotFound is returned by lookups of missing instances.
	ErrInstanceNotFound = errors.New("instance not found")
	// ErrDuplicateInstance is returned when a create or restore reuses an id.
	ErrDuplicateInstance = errors.New("instance id already exists")
	// ErrInvalidDefinition is returned by Register for malformed definitions.
	ErrInvalidDefinition = errors.New("invalid module definition")
	// ErrInvalidActionArgs is wrapped by actions rejecting their arguments.
	ErrInvalidActionArgs = errors.New("invalid action arguments")
)

// fallbackSize is recommended for types without a definition.
var fallbackSize = Size{W: 2, H: 2}

type entry struct {
	def    Definition
	schema *jsonschema.Resolved
}

// Registry stores definitions and instances.
type Registry struct {
	mu        sync.RWMutex
	defs      map[string]*entry
	instances map[string]Config

	events *bus.EventBus
	atoms  *atoms.Registry
	now    func() time.Time
	newID  func() string
}

// New creates a registry publishing to events. atomsReg may be nil.
func New(events *bus.EventBus, atomsReg *atoms.Registry) *Registry {
	if events == nil {
		events = bus.New()
	}
	return &Registry{
		defs:      make(map[string]*entry),
		instances: make(map[string]Config),
		events:    events,
		atoms:     atomsReg,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// SetClock replaces the time source used for instance timestamps.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Events returns the bus the registry publishes to.
func (r *Registry) Events() *bus.EventBus { return r.events }

// Register validates and stores def.
func (r *Registry) Register(def Definition) error {
	def.Type = strings.TrimSpace(def.Type)
	if def.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidDefinition)
	}
	if strings.TrimSpace(def.Version) == "" {
		return fmt.Errorf("%w: %s: version is required", ErrInvalidDefinition, def.Type)
	}
	for _, p := range def.Permissions {
		if !p.Valid() {
			return fmt.Errorf("%w: %s: unknown permission %q", ErrInvalidDefinition, def.Type, p)
		}
	}
	if err := CheckJSONValue(map[string]any(def.DefaultSettings)); err != nil {
		return fmt.Errorf("%w: %s: default settings: %v", ErrInvalidDefinition, def.Type, err)
	}

	e := &entry{def: def}
	e.def.SettingsSchema = cloneSchema(def.SettingsSchema)
	if e.def.SettingsSchema != nil {
		resolved, err := e.def.SettingsSchema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("%w: %s: settings schema: %v", ErrInvalidDefinition, def.Type, err)
		}
		if err := resolved.Validate(map[string]any(cloneSettings(def.DefaultSettings))); err != nil {
			return fmt.Errorf("%w: %s: default settings violate schema: %v", ErrInvalidDefinition, def.Type, err)
		}
		e.schema = resolved
	}
	e.def.DefaultSettings = cloneSettings(def.DefaultSettings)
	e.def.CompatibleWith = append([]string(nil), def.CompatibleWith...)
	e.def.Permissions = append(e.def.Permissions[:0:0], def.Permissions...)
	e.def.Actions = maps.Clone(def.Actions)

	r.mu.Lock()
	if _, exists := r.defs[def.Type]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateType, def.Type)
	}
	r.defs[def.Type] = e
	r.mu.Unlock()

	slog.Debug("Module registered", "type", def.Type, "version", def.Version)
	r.events.Emit(bus.EventModuleInitialized, map[string]any{"version": def.Version}, "", def.Type)
	return nil
}

func copyDefinition(d Definition) Definition {
	d.SettingsSchema = cloneSchema(d.SettingsSchema)
	d.DefaultSettings = cloneSettings(d.DefaultSettings)
	d.CompatibleWith = append([]string(nil), d.CompatibleWith...)
	d.Permissions = append(d.Permissions[:0:0], d.Permissions...)
	d.Actions = maps.Clone(d.Actions)
	return d
}

// cloneSchema deep-copies s. CloneSchemas alone still shares non-schema
// fields such as Required and Enum with the original.
func cloneSchema(s *jsonschema.Schema) *jsonschema.Schema {
	if s == nil {
		return nil
	}
	if data, err := json.Marshal(s); err == nil {
		var out jsonschema.Schema
		if err := json.Unmarshal(data, &out); err == nil {
			return &out
		}
	}
	return s.CloneSchemas()
}

// Definition returns the definition for moduleType.
func (r *Registry) Definition(moduleType string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.defs[moduleType]
	if !ok {
		return Definition{}, false
	}
	return copyDefinition(e.def), true
}

// Definitions returns every definition sorted by type.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	out := make([]Definition, 0, len(r.defs))
	for _, e := range r.defs {
		out = append(out, copyDefinition(e.def))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// DefinitionsByCategory returns the definitions in category, sorted by type.
func (r *Registry) DefinitionsByCategory(category string) []Definition {
	all := r.Definitions()
	out := make([]Definition, 0, len(all))
	for _, d := range all {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// Create adds a new instance of moduleType. opts may be nil.
func (r *Registry) Create(moduleType string, opts *CreateOptions) (Config, error) {
	if opts == nil {
		opts = &CreateOptions{}
	}
	if err := CheckJSONValue(map[string]any(opts.Settings)); err != nil {
		return Config{}, fmt.Errorf("settings: %w", err)
	}

	r.mu.Lock()
	e, ok := r.defs[moduleType]
	if !ok {
		r.mu.Unlock()
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownType, moduleType)
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = r.newID()
	}
	if _, exists := r.instances[id]; exists {
		r.mu.Unlock()
		return Config{}, fmt.Errorf("%w: %s", ErrDuplicateInstance, id)
	}

	now := r.now()
	cfg := Config{
		ID:        id,
		Type:      moduleType,
		Version:   e.def.Version,
		Size:      e.def.DefaultSize,
		Settings:  cloneSettings(e.def.DefaultSettings),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if opts.Position != nil {
		cfg.Position = *opts.Position
	}
	if opts.Size != nil {
		cfg.Size = *opts.Size
	}
	for k, v := range opts.Settings {
		cfg.Settings[k] = cloneValue(v)
	}
	r.instances[id] = cfg
	r.mu.Unlock()

	slog.Info("Module instance created", "id", id, "type", moduleType)
	r.events.Emit(bus.EventModuleCreated, cloneConfig(cfg), id, moduleType)
	return cloneConfig(cfg), nil
}

// Restore inserts a persisted instance as-is. Unregistered types are
// accepted and render as unknown modules.
func (r *Registry) Restore(cfg Config) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return errors.New("restore: instance id is required")
	}
	if err := CheckJSONValue(map[string]any(cfg.Settings)); err != nil {
		return fmt.Errorf("restore %s: %w", cfg.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[cfg.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateInstance, cfg.ID)
	}
	if _, known := r.defs[cfg.Type]; !known {
		slog.Warn("Restored instance of unregistered module type", "id", cfg.ID, "type", cfg.Type)
	}
	r.instances[cfg.ID] = cloneConfig(cfg)
	return nil
}

// Instance returns the instance with id.
func (r *Registry) Instance(id string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.instances[id]
	if !ok {
		return Config{}, false
	}
	return cloneConfig(cfg), true
}

// Instances returns every instance ordered by creation time.
func (r *Registry) Instances() []Config {
	r.mu.RLock()
	out := make([]Config, 0, len(r.instances))
	for _, cfg := range r.instances {
		out = append(out, cloneConfig(cfg))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Update applies patch to the instance with id and reports whether it
// exists. A version change runs the definition's migration; a failed
// migration keeps the previous version and settings.
func (r *Registry) Update(id string, patch Patch) (Config, bool) {
	r.mu.Lock()
	prev, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return Config{}, false
	}
	var def *Definition
	if e, known := r.defs[prev.Type]; known {
		d := e.def
		def = &d
	}

	next := cloneConfig(prev)
	if patch.Position != nil {
		next.Position = *patch.Position
	}
	if patch.Size != nil {
		next.Size = *patch.Size
	}
	if patch.Settings != nil {
		if err := CheckJSONValue(map[string]any(patch.Settings)); err != nil {
			slog.Warn("Ignoring non-JSON settings patch", "id", id, "error", err)
		} else {
			mergeSettings(next.Settings, patch.Settings)
		}
	}
	if patch.Version != nil && *patch.Version != prev.Version {
		next.Version = *patch.Version
		if def != nil {
			migrated, err := migrate(*def, next.Settings, prev.Version, next.Version)
			if err != nil {
				slog.Error("Settings migration failed, keeping previous version",
					"id", id, "type", prev.Type, "from", prev.Version, "to", next.Version, "error", err)
				next.Version = prev.Version
				next.Settings = cloneSettings(prev.Settings)
			} else {
				next.Settings = migrated
			}
		}
	}
	next.UpdatedAt = r.now()
	r.instances[id] = next
	r.mu.Unlock()

	r.events.Emit(bus.EventModuleSettingsChanged, cloneConfig(next), id, next.Type)
	return cloneConfig(next), true
}

func mergeSettings(dst, patch Settings) {
	for k, v := range patch {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = cloneValue(v)
	}
}

// Remove deletes the instance and its atoms bundle.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	cfg, ok := r.instances[id]
	if ok {
		delete(r.instances, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	if r.atoms != nil {
		r.atoms.Remove(cfg.Type, id)
	}
	slog.Info("Module instance removed", "id", id, "type", cfg.Type)
	r.events.Emit(bus.EventModuleDestroyed, cloneConfig(cfg), id, cfg.Type)
	return true
}

// ValidateSettings checks settings against moduleType's schema.
func (r *Registry) ValidateSettings(moduleType string, settings Settings) ValidationResult {
	r.mu.RLock()
	e, ok := r.defs[moduleType]
	r.mu.RUnlock()
	if !ok {
		return ValidationResult{Errors: []string{fmt.Sprintf("unknown module type %q", moduleType)}}
	}
	if err := CheckJSONValue(map[string]any(settings)); err != nil {
		return ValidationResult{Errors: []string{err.Error()}}
	}
	if e.schema == nil {
		return ValidationResult{Valid: true}
	}
	if err := e.schema.Validate(map[string]any(cloneSettings(settings))); err != nil {
		return ValidationResult{Errors: []string{err.Error()}}
	}
	return ValidationResult{Valid: true}
}

// RecommendedSize returns moduleType's default size clamped to the
// available space.
func (r *Registry) RecommendedSize(moduleType string, availW, availH int) Size {
	size := fallbackSize
	if def, ok := r.Definition(moduleType); ok {
		size = def.DefaultSize
	}
	return Size{W: clampDim(size.W, availW), H: clampDim(size.H, availH)}
}

func clampDim(want, avail int) int {
	if avail > 0 && want > avail {
		want = avail
	}
	if want < 1 {
		want = 1
	}
	return want
}
