package cliconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// isolate points HOME at a fresh directory and clears lythra overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"LYTHRA_HOME", "LYTHRA_CONFIG", "LYTHRA_ENV_FILE", "LYTHRA_SERVER_HOST", "LYTHRA_SERVER_PORT"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	return home
}

func writeConfig(t *testing.T, home, body string) string {
	t.Helper()
	path := filepath.Join(home, ".lythra", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func readTree(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	return m
}

func TestParsePath(t *testing.T) {
	segs, err := parsePath(" network.blockedHosts[0] ")
	if err != nil {
		t.Fatalf("parse path: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	if segs[0].key != "network" || segs[1].key != "blockedHosts" || !segs[2].isIdx || segs[2].index != 0 {
		t.Fatalf("unexpected segments: %#v", segs)
	}

	nested, err := parsePath("a[1][2].b")
	if err != nil || len(nested) != 4 || nested[2].index != 2 || nested[3].key != "b" {
		t.Fatalf("unexpected nested segments: %#v err=%v", nested, err)
	}

	for _, bad := range []string{"", " ", "a[nope]", "a[1", "a[-1]", "a[0]x"} {
		if _, err := parsePath(bad); err == nil {
			t.Errorf("expected parse error for %q", bad)
		}
	}
}

func TestParseValue(t *testing.T) {
	if n, ok := ParseValue("123").(float64); !ok || n != 123 {
		t.Fatalf("expected numeric JSON parse, got %#v", ParseValue("123"))
	}
	m, ok := ParseValue(`{"a":1}`).(map[string]any)
	if !ok || m["a"].(float64) != 1 {
		t.Fatalf("expected map parse, got %#v", m)
	}
	if s, ok := ParseValue("plain-string").(string); !ok || s != "plain-string" {
		t.Fatalf("expected plain string fallback, got %#v", s)
	}
}

func TestTreeHelpersWithArrayIndex(t *testing.T) {
	segs, _ := parsePath("a.b[1].c")
	root := assign(map[string]any{}, segs, 42).(map[string]any)

	v, ok := lookup(root, segs)
	if !ok || v.(int) != 42 {
		t.Fatalf("expected nested indexed value, got %#v ok=%v", v, ok)
	}
	if first, ok := lookup(root, []segment{{key: "a"}, {key: "b"}, {index: 0, isIdx: true}}); !ok || first != nil {
		t.Fatalf("gap should be filled with nil, got %#v", first)
	}

	updated, removed := remove(root, segs)
	if !removed {
		t.Fatal("expected remove success")
	}
	if _, ok := lookup(updated, segs); ok {
		t.Fatal("expected key removed")
	}
	if _, removed := remove(updated, segs); removed {
		t.Fatal("second remove should report nothing removed")
	}
}

func TestSetGetUnsetRoundTrip(t *testing.T) {
	home := isolate(t)
	path := writeConfig(t, home, `{
	  // served locally
	  "server": {"port": 18800},
	  "network": {"blockedHosts": []}
	}`)

	if err := Set("server.port", "9999"); err != nil {
		t.Fatalf("set server.port: %v", err)
	}
	v, err := Get("server.port")
	if err != nil {
		t.Fatalf("get server.port: %v", err)
	}
	if n, ok := v.(float64); !ok || n != 9999 {
		t.Fatalf("expected 9999, got %#v", v)
	}

	if err := Set("network.blockedHosts[0]", "intranet.local"); err != nil {
		t.Fatalf("set array value: %v", err)
	}
	v, err = Get("network.blockedHosts[0]")
	if err != nil {
		t.Fatalf("get array value: %v", err)
	}
	if s, ok := v.(string); !ok || s != "intranet.local" {
		t.Fatalf("expected intranet.local, got %#v", v)
	}

	if err := Unset("network.blockedHosts[0]"); err != nil {
		t.Fatalf("unset array value: %v", err)
	}
	network := readTree(t, path)["network"].(map[string]any)
	if hosts := network["blockedHosts"].([]any); len(hosts) != 0 {
		t.Fatalf("expected empty blockedHosts, got %v", hosts)
	}
}

func TestSetRejectsWrongType(t *testing.T) {
	home := isolate(t)
	path := writeConfig(t, home, `{"server": {"port": 18800}}`)

	if err := Set("server.port", "not-a-port"); err == nil {
		t.Fatal("expected type error for string port")
	}
	server := readTree(t, path)["server"].(map[string]any)
	if server["port"] != float64(18800) {
		t.Fatalf("rejected set must not touch the file, got %v", server["port"])
	}
}

func TestSetCreatesConfigFileWhenMissing(t *testing.T) {
	home := isolate(t)

	if err := Set("telemetry.enabled", "true"); err != nil {
		t.Fatalf("set when missing config: %v", err)
	}
	m := readTree(t, filepath.Join(home, ".lythra", "config.json"))
	telemetry, ok := m["telemetry"].(map[string]any)
	if !ok || telemetry["enabled"] != true {
		t.Fatalf("expected telemetry.enabled=true, got %#v", m)
	}
}

func TestUnsetMissingPathReturnsError(t *testing.T) {
	home := isolate(t)
	writeConfig(t, home, `{"server": {"port": 1}}`)

	if err := Unset("missing.path"); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestGetMissingPathReturnsError(t *testing.T) {
	isolate(t)
	if _, err := Get("server.nothing"); err == nil {
		t.Fatal("expected error for unknown key")
	}
	if v, err := Get("storage.driver"); err != nil || v != "sqlite" {
		t.Fatalf("defaults should be visible without a file, got %v %v", v, err)
	}
}

func TestReadFileTreeInvalidJSON(t *testing.T) {
	home := isolate(t)
	writeConfig(t, home, `{"bad":`)

	if _, _, err := readFileTree(); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if err := Set("server.port", "1"); err == nil {
		t.Fatal("set should surface the parse error")
	}
}

func TestWriteFileTreeMarshalError(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), ".lythra", "config.json")
	if err := writeFileTree(cfgPath, map[string]any{"bad": func() {}}); err == nil {
		t.Fatal("expected marshal error for non-JSON values")
	}
}
