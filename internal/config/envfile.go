package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// envAliases maps conventional third-party variable names onto the config
// overlay. An alias never overrides its target when both are present.
var envAliases = map[string]string{
	"SLACK_BOT_TOKEN": EnvPrefix + "_NOTIFICATIONS_SLACK_TOKEN",
	"SLACK_CHANNEL":   EnvPrefix + "_NOTIFICATIONS_SLACK_CHANNEL",
	"KAFKA_BROKERS":   EnvPrefix + "_TELEMETRY_BROKERS",
	"KAFKA_TOPIC":     EnvPrefix + "_TELEMETRY_TOPIC",
}

// EnvEntry is one KEY=value assignment read from an env file.
type EnvEntry struct {
	Key   string
	Value string
	Line  int
}

// EnvFileReport describes what applying one env file did.
type EnvFileReport struct {
	Path string `json:"path"`
	// Applied lists the config variables now set from this file.
	Applied []string `json:"applied"`
	// Shadowed lists variables the process environment already set.
	Shadowed []string `json:"shadowed,omitempty"`
	// Ignored lists keys with no meaning for lythra.
	Ignored []string `json:"ignored,omitempty"`
	// Invalid lists line numbers that are not KEY=value assignments.
	Invalid []int `json:"invalid,omitempty"`
}

var (
	fromFileMu sync.Mutex
	// fromFile remembers values this process copied out of env files, so a
	// later load reports them as applied rather than shadowed.
	fromFile = map[string]string{}
)

// EnvFileCandidates lists the env files consulted by Load, highest
// precedence first.
func EnvFileCandidates() []string {
	candidates := make([]string, 0, 4)
	if explicit := strings.TrimSpace(os.Getenv(EnvPrefix + "_ENV_FILE")); explicit != "" {
		candidates = append(candidates, explicit)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "lythra", "env"),
			filepath.Join(home, ConfigDir, "env"),
			filepath.Join(home, ConfigDir, ".env"),
		)
	}
	out := candidates[:0]
	seen := map[string]struct{}{}
	for _, p := range candidates {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// LoadEnvFiles applies every existing candidate file to the process
// environment and reports per file what happened. Missing files are
// skipped; unreadable ones are returned as a joined error after the rest
// were applied.
func LoadEnvFiles() ([]EnvFileReport, error) {
	var reports []EnvFileReport
	var errs []error
	for _, path := range EnvFileCandidates() {
		rep, err := applyEnvFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("env file %s: %w", path, err))
			continue
		}
		reports = append(reports, rep)
	}
	return reports, errors.Join(errs...)
}

// ReadEnvFile parses path without touching the environment.
func ReadEnvFile(path string) ([]EnvEntry, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return parseEnv(f)
}

func parseEnv(r io.Reader) ([]EnvEntry, []int, error) {
	var entries []EnvEntry
	var invalid []int
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			invalid = append(invalid, n)
			continue
		}
		entries = append(entries, EnvEntry{Key: key, Value: unquote(strings.TrimSpace(val)), Line: n})
	}
	return entries, invalid, sc.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// EnvTarget returns the variable key should set, or "" when lythra does
// not read it.
func EnvTarget(key string) string {
	if strings.HasPrefix(key, EnvPrefix+"_") {
		return key
	}
	return envAliases[key]
}

func applyEnvFile(path string) (EnvFileReport, error) {
	entries, invalid, err := ReadEnvFile(path)
	if err != nil {
		return EnvFileReport{Path: path}, err
	}
	rep := EnvFileReport{Path: path, Applied: []string{}, Invalid: invalid}

	fromFileMu.Lock()
	defer fromFileMu.Unlock()
	for _, e := range entries {
		target := EnvTarget(e.Key)
		if target == "" {
			rep.Ignored = append(rep.Ignored, e.Key)
			continue
		}
		if cur, exists := os.LookupEnv(target); exists {
			if prev, ours := fromFile[target]; ours && prev == cur && e.Value == cur {
				rep.Applied = append(rep.Applied, target)
			} else {
				rep.Shadowed = append(rep.Shadowed, target)
			}
			continue
		}
		if err := os.Setenv(target, e.Value); err != nil {
			return rep, err
		}
		fromFile[target] = e.Value
		rep.Applied = append(rep.Applied, target)
	}
	sort.Strings(rep.Applied)
	sort.Strings(rep.Shadowed)
	sort.Strings(rep.Ignored)
	if len(rep.Ignored) > 0 {
		slog.Debug("Env file keys ignored", "path", path, "keys", rep.Ignored)
	}
	return rep, nil
}
