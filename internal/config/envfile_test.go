package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// clearEnv unsets keys for the test and restores them afterwards.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func writeEnvFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir env dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
}

func TestParseEnvEntriesAndInvalidLines(t *testing.T) {
	body := "# comment\n\nexport LYTHRA_LOG_LEVEL=debug\nQUOTED=\"hello world\"\nSINGLE='x y'\nNO_EQUALS\nBAD KEY=1\n=novalue\n"
	entries, invalid, err := parseEnv(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []EnvEntry{
		{Key: "LYTHRA_LOG_LEVEL", Value: "debug", Line: 3},
		{Key: "QUOTED", Value: "hello world", Line: 4},
		{Key: "SINGLE", Value: "x y", Line: 5},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("entries = %+v, want %+v", entries, want)
	}
	if !reflect.DeepEqual(invalid, []int{6, 7, 8}) {
		t.Fatalf("invalid lines = %v", invalid)
	}
}

func TestEnvFileCandidatesOrderAndDedup(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	explicit := filepath.Join(home, ".lythra", "env")
	t.Setenv("LYTHRA_ENV_FILE", explicit)

	got := EnvFileCandidates()
	want := []string{
		explicit,
		filepath.Join(home, ".config", "lythra", "env"),
		filepath.Join(home, ".lythra", ".env"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
}

func TestLoadEnvFilesReportsAppliedShadowedIgnored(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t, "LYTHRA_ENV_FILE", "LYTHRA_LOG_FORMAT", "LYTHRA_NOTIFICATIONS_SLACK_CHANNEL", "EDITOR_THEME")
	t.Setenv("LYTHRA_LOG_LEVEL", "warn")

	path := filepath.Join(home, ".config", "lythra", "env")
	writeEnvFile(t, path, "LYTHRA_LOG_FORMAT=json\nLYTHRA_LOG_LEVEL=debug\nSLACK_CHANNEL=C42\nEDITOR_THEME=dark\noops\n")

	reports, err := LoadEnvFiles()
	if err != nil {
		t.Fatalf("load env files: %v", err)
	}
	if len(reports) != 1 || reports[0].Path != path {
		t.Fatalf("unexpected reports: %+v", reports)
	}
	rep := reports[0]
	if !reflect.DeepEqual(rep.Applied, []string{"LYTHRA_LOG_FORMAT", "LYTHRA_NOTIFICATIONS_SLACK_CHANNEL"}) {
		t.Fatalf("applied = %v", rep.Applied)
	}
	if !reflect.DeepEqual(rep.Shadowed, []string{"LYTHRA_LOG_LEVEL"}) {
		t.Fatalf("shadowed = %v", rep.Shadowed)
	}
	if !reflect.DeepEqual(rep.Ignored, []string{"EDITOR_THEME"}) {
		t.Fatalf("ignored = %v", rep.Ignored)
	}
	if !reflect.DeepEqual(rep.Invalid, []int{5}) {
		t.Fatalf("invalid = %v", rep.Invalid)
	}

	if got := os.Getenv("LYTHRA_LOG_LEVEL"); got != "warn" {
		t.Fatalf("process env must win, got %q", got)
	}
	if got := os.Getenv("LYTHRA_NOTIFICATIONS_SLACK_CHANNEL"); got != "C42" {
		t.Fatalf("alias not applied, got %q", got)
	}
	if _, set := os.LookupEnv("EDITOR_THEME"); set {
		t.Fatal("unrelated keys must not be exported")
	}

	// A second load in the same process still attributes the values to the file.
	again, err := LoadEnvFiles()
	if err != nil {
		t.Fatalf("reload env files: %v", err)
	}
	if !reflect.DeepEqual(again[0].Applied, rep.Applied) || !reflect.DeepEqual(again[0].Shadowed, rep.Shadowed) {
		t.Fatalf("reload report differs: %+v vs %+v", again[0], rep)
	}
}

func TestLoadEnvFilesExplicitPathWins(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t, "LYTHRA_TELEMETRY_TOPIC")

	explicit := filepath.Join(home, "custom.env")
	writeEnvFile(t, explicit, "KAFKA_TOPIC=from-explicit\n")
	writeEnvFile(t, filepath.Join(home, ".lythra", "env"), "LYTHRA_TELEMETRY_TOPIC=from-home\n")
	t.Setenv("LYTHRA_ENV_FILE", explicit)

	reports, err := LoadEnvFiles()
	if err != nil {
		t.Fatalf("load env files: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected two files, got %+v", reports)
	}
	if got := os.Getenv("LYTHRA_TELEMETRY_TOPIC"); got != "from-explicit" {
		t.Fatalf("expected explicit file to win, got %q", got)
	}
	if !reflect.DeepEqual(reports[1].Shadowed, []string{"LYTHRA_TELEMETRY_TOPIC"}) {
		t.Fatalf("home file should be shadowed: %+v", reports[1])
	}
}

func TestLoadEnvFilesSkipsMissingAndReportsUnreadable(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LYTHRA_ENV_FILE", filepath.Join(home, "does-not-exist.env"))

	reports, err := LoadEnvFiles()
	if err != nil || len(reports) != 0 {
		t.Fatalf("missing files should be skipped: %+v %v", reports, err)
	}

	dir := filepath.Join(home, "as-dir.env")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Setenv("LYTHRA_ENV_FILE", dir)
	if _, err := LoadEnvFiles(); err == nil || !strings.Contains(err.Error(), dir) {
		t.Fatalf("expected error naming %s, got %v", dir, err)
	}
}

func TestEnvFileFeedsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t, "LYTHRA_HOME", "LYTHRA_CONFIG", "LYTHRA_ENV_FILE", "LYTHRA_SERVER_PORT", "LYTHRA_TELEMETRY_BROKERS")
	writeEnvFile(t, filepath.Join(home, ".config", "lythra", "env"), "LYTHRA_SERVER_PORT=19999\nKAFKA_BROKERS=k1:9092,k2:9092\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Port != 19999 {
		t.Fatalf("expected port from env file, got %d", cfg.Server.Port)
	}
	if cfg.Telemetry.Brokers != "k1:9092,k2:9092" {
		t.Fatalf("expected brokers from alias, got %q", cfg.Telemetry.Brokers)
	}
}
