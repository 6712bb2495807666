package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lythra/lythra/internal/bus"
	"github.com/lythra/lythra/internal/policy"
	"github.com/lythra/lythra/internal/registry"
)

const quoteJSONC = `{
	// shown on the palette
	"type": "quote",
	"name": "Quote",
	"version": "1.0.0",
	"category": "text",
	"defaultSize": {"w": 4, "h": 1},
	"defaultSettings": {"text": "Stay curious", "author": "anon",},
	"permissions": ["storage:read"],
	"settingsSchema": {
		"type": "object",
		"properties": {"text": {"type": "string", "minLength": 1}},
		"required": ["text"],
	},
	"template": "${text} (${author})",
}`

const weatherYAML = `
type: weather
version: 0.3.0
category: info
permissions: [network:read]
defaultSettings:
  city: Lisbon
  units: metric
settingsSchema:
  type: object
  properties:
    units:
      enum: [metric, imperial]
template: "Weather for ${city}"
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quote.jsonc", quoteJSONC)
	writeFile(t, dir, "weather.yaml", weatherYAML)
	writeFile(t, dir, "README.md", "not a manifest")

	defs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(defs) != 2 || defs[0].Type != "quote" || defs[1].Type != "weather" {
		t.Fatalf("unexpected definitions: %+v", defs)
	}
	quote, weather := defs[0], defs[1]
	if quote.DefaultSize != (registry.Size{W: 4, H: 1}) || len(quote.Permissions) != 1 || quote.Permissions[0] != policy.StorageRead {
		t.Fatalf("unexpected quote definition: %+v", quote)
	}
	if weather.DefaultSize != (registry.Size{W: 2, H: 2}) || weather.Name != "weather" {
		t.Fatalf("weather defaults not applied: %+v", weather)
	}

	reg := registry.New(bus.New(), nil)
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			t.Fatalf("register %s: %v", def.Type, err)
		}
	}
	if res := reg.ValidateSettings("quote", registry.Settings{"text": ""}); res.Valid {
		t.Fatal("schema from manifest should reject empty text")
	}
	if res := reg.ValidateSettings("weather", registry.Settings{"units": "kelvin"}); res.Valid {
		t.Fatal("yaml schema enum should reject kelvin")
	}
	if res := reg.ValidateSettings("weather", registry.Settings{"units": "imperial"}); !res.Valid {
		t.Fatalf("imperial should be valid: %+v", res)
	}
}

func TestLoadDirMissing(t *testing.T) {
	defs, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil || len(defs) != 0 {
		t.Fatalf("missing dir should be empty, got %v %v", defs, err)
	}
}

func TestLoadDirRejectsBadPermission(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cam.json", `{"type":"cam","version":"1","permissions":["camera:use"]}`)
	if _, err := LoadDir(dir); err == nil {
		t.Fatal("expected error for unknown permission")
	}
}

func TestStaticComponentRender(t *testing.T) {
	c := StaticComponent{Title: "Quote", Template: "${text} x${count} ${missing}!"}
	view, err := c.Render(context.Background(), registry.Props{
		Settings: registry.Settings{"text": "hi", "count": 3},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if view.Kind != "static" || view.Body != "hi x3 !" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Fields["count"] != 3 {
		t.Fatalf("settings should be exposed as fields: %v", view.Fields)
	}
}
