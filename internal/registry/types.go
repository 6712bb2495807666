package registry

import (
	"context"
	"sort"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/lythra/lythra/internal/atoms"
	"github.com/lythra/lythra/internal/bus"
	"github.com/lythra/lythra/internal/policy"
	"github.com/lythra/lythra/internal/sandbox"
)

// UnknownModuleKind is the view kind rendered for unregistered module types.
const UnknownModuleKind = "unknown-module"

// Position is the grid cell of an instance's top-left corner.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is an instance's footprint in grid cells.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Settings holds JSON values only; see CheckJSONValue.
type Settings map[string]any

// MigrationFunc converts settings written by fromVersion to toVersion.
type MigrationFunc func(old Settings, fromVersion, toVersion string) (Settings, error)

// Props is what a component receives when rendered.
type Props struct {
	InstanceID string
	ModuleType string
	Settings   Settings
	Sandbox    *sandbox.Sandbox
	Atoms      atoms.Bundle
	Events     *bus.EventBus
}

// ActionFunc drives an instance outside of rendering, e.g. starting a timer.
// args is the decoded request body and may be nil.
type ActionFunc func(ctx context.Context, props Props, args map[string]any) error

// View is the renderer-neutral output of a component.
type View struct {
	Kind        string         `json:"kind"`
	Title       string         `json:"title,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Body        string         `json:"body,omitempty"`
	ContentType string         `json:"contentType,omitempty"`
}

// Component renders one module instance.
type Component interface {
	Render(ctx context.Context, props Props) (View, error)
}

// ComponentFunc adapts a function to Component.
type ComponentFunc func(ctx context.Context, props Props) (View, error)

func (f ComponentFunc) Render(ctx context.Context, props Props) (View, error) { return f(ctx, props) }

// UnknownModuleView is rendered for configs whose type is not registered.
func UnknownModuleView(moduleType string) View {
	return View{
		Kind:  UnknownModuleKind,
		Title: "Unknown module",
		Fields: map[string]any{
			"type": moduleType,
		},
	}
}

// Definition describes a module type. It is immutable once registered.
type Definition struct {
	Type            string                `json:"type"`
	Name            string                `json:"name"`
	Description     string                `json:"description,omitempty"`
	Version         string                `json:"version"`
	CompatibleWith  []string              `json:"compatibleWith,omitempty"`
	Category        string                `json:"category,omitempty"`
	DefaultSize     Size                  `json:"defaultSize"`
	DefaultSettings Settings              `json:"defaultSettings"`
	Permissions     []policy.Permission   `json:"permissions"`
	SettingsSchema  *jsonschema.Schema    `json:"settingsSchema,omitempty"`
	Component       Component             `json:"-"`
	Migrate         MigrationFunc         `json:"-"`
	Actions         map[string]ActionFunc `json:"-"`
}

// ActionNames returns the names of the definition's actions, sorted.
func (d Definition) ActionNames() []string {
	names := make([]string, 0, len(d.Actions))
	for name := range d.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compatible reports whether settings written by version can be migrated.
func (d Definition) Compatible(version string) bool {
	for _, v := range d.CompatibleWith {
		if v == "*" || v == version {
			return true
		}
	}
	return false
}

// Config is one module instance on a dashboard.
type Config struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	Position  Position  `json:"position"`
	Size      Size      `json:"size"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateOptions overrides the defaults used by Create. Settings are merged
// over the definition's defaults.
type CreateOptions struct {
	ID       string    `json:"id,omitempty"`
	Position *Position `json:"position,omitempty"`
	Size     *Size     `json:"size,omitempty"`
	Settings Settings  `json:"settings,omitempty"`
}

// Patch is a partial update. ID, Type and CreatedAt are accepted so that
// arbitrary update payloads decode, and are always ignored. Settings keys
// are merged; a nil value deletes the key.
type Patch struct {
	ID        *string    `json:"id,omitempty"`
	Type      *string    `json:"type,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`

	Version  *string   `json:"version,omitempty"`
	Position *Position `json:"position,omitempty"`
	Size     *Size     `json:"size,omitempty"`
	Settings Settings  `json:"settings,omitempty"`
}

// ValidationResult is the outcome of ValidateSettings.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}
