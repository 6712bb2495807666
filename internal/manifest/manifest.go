// Package manifest loads declarative module definitions from disk.
//
// Manifests are JSON, JSONC (comments and trailing commas) or YAML files
// describing a module type. Their component is static: it renders the
// instance settings and expands ${name} references in the manifest's
// template against them.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/lythra/lythra/internal/policy"
	"github.com/lythra/lythra/internal/registry"
)

// Manifest is the on-disk form of a module definition.
type Manifest struct {
	Type            string             `json:"type"`
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	Version         string             `json:"version"`
	CompatibleWith  []string           `json:"compatibleWith"`
	Category        string             `json:"category"`
	DefaultSize     registry.Size      `json:"defaultSize"`
	DefaultSettings registry.Settings  `json:"defaultSettings"`
	Permissions     []string           `json:"permissions"`
	SettingsSchema  *jsonschema.Schema `json:"settingsSchema"`
	Template        string             `json:"template"`
}

// Parse decodes data according to the extension of name.
func Parse(name string, data []byte) (Manifest, error) {
	var raw []byte
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc":
		raw = jsonc.ToJSON(data)
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Manifest{}, fmt.Errorf("parsing yaml: %w", err)
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return Manifest{}, fmt.Errorf("converting yaml: %w", err)
		}
		raw = b
	default:
		return Manifest{}, fmt.Errorf("unsupported manifest extension %q", filepath.Ext(name))
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest: %w", err)
	}
	return m, nil
}

// Definition converts the manifest into a registry definition.
func (m Manifest) Definition() (registry.Definition, error) {
	perms, err := policy.ParsePermissions(m.Permissions)
	if err != nil {
		return registry.Definition{}, fmt.Errorf("manifest %s: %w", m.Type, err)
	}
	size := m.DefaultSize
	if size.W <= 0 || size.H <= 0 {
		size = registry.Size{W: 2, H: 2}
	}
	name := m.Name
	if name == "" {
		name = m.Type
	}
	return registry.Definition{
		Type:            m.Type,
		Name:            name,
		Description:     m.Description,
		Version:         m.Version,
		CompatibleWith:  m.CompatibleWith,
		Category:        m.Category,
		DefaultSize:     size,
		DefaultSettings: m.DefaultSettings,
		Permissions:     perms,
		SettingsSchema:  m.SettingsSchema,
		Component:       StaticComponent{Title: name, Template: m.Template},
	}, nil
}

// ReadFile parses one manifest file into a definition.
func ReadFile(path string) (registry.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return registry.Definition{}, fmt.Errorf("reading %s: %w", path, err)
	}
	m, err := Parse(path, data)
	if err != nil {
		return registry.Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	def, err := m.Definition()
	if err != nil {
		return registry.Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// IsManifest reports whether name has a manifest extension.
func IsManifest(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadDir reads every manifest in dir, sorted by file name. A missing
// directory yields no definitions.
func LoadDir(dir string) ([]registry.Definition, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && IsManifest(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	defs := make([]registry.Definition, 0, len(names))
	for _, name := range names {
		def, err := ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// StaticComponent renders settings and an expanded template.
type StaticComponent struct {
	Title    string
	Template string
}

// Render implements registry.Component.
func (c StaticComponent) Render(ctx context.Context, props registry.Props) (registry.View, error) {
	fields := make(map[string]any, len(props.Settings))
	for k, v := range props.Settings {
		fields[k] = v
	}
	body := os.Expand(c.Template, func(key string) string {
		v, ok := props.Settings[key]
		if !ok || v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	})
	return registry.View{Kind: "static", Title: c.Title, Fields: fields, Body: body}, nil
}
