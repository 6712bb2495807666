package cliconfig

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lythra/lythra/internal/config"
	"github.com/lythra/lythra/internal/manifest"
	"github.com/lythra/lythra/internal/storage"
)

type DoctorStatus string

const (
	DoctorPass DoctorStatus = "pass"
	DoctorWarn DoctorStatus = "warn"
	DoctorFail DoctorStatus = "fail"
)

type DoctorCheck struct {
	Name    string       `json:"name"`
	Status  DoctorStatus `json:"status"`
	Message string       `json:"message"`
}

type DoctorReport struct {
	Checks   []DoctorCheck          `json:"checks"`
	EnvFiles []config.EnvFileReport `json:"envFiles"`
}

// DoctorOptions enables repairs. Fix creates missing directories and merges
// stray env files into ~/.config/lythra/env.
type DoctorOptions struct {
	Fix bool
}

func (r DoctorReport) HasFailures() bool {
	for _, c := range r.Checks {
		if c.Status == DoctorFail {
			return true
		}
	}
	return false
}

func (r *DoctorReport) add(name string, status DoctorStatus, format string, args ...any) {
	r.Checks = append(r.Checks, DoctorCheck{Name: name, Status: status, Message: fmt.Sprintf(format, args...)})
}

func RunDoctor() (DoctorReport, error) {
	return RunDoctorWithOptions(DoctorOptions{})
}

func RunDoctorWithOptions(opts DoctorOptions) (DoctorReport, error) {
	report := DoctorReport{Checks: make([]DoctorCheck, 0, 10)}

	cfgPath, err := config.ConfigPath()
	if err != nil {
		report.add("config_path", DoctorFail, "cannot resolve config path: %v", err)
		return report, nil
	}
	switch _, err := os.Stat(cfgPath); {
	case os.IsNotExist(err):
		report.add("config_file", DoctorWarn, "config file not found at %s (defaults will be used)", cfgPath)
	case err != nil:
		report.add("config_file", DoctorFail, "cannot access config file: %v", err)
	default:
		report.add("config_file", DoctorPass, "config file found at %s", cfgPath)
	}

	if opts.Fix {
		envPath, merged, dropped, err := mergeDiscoveredEnvFiles()
		switch {
		case err != nil:
			report.add("env_merge", DoctorFail, "failed to merge env files: %v", err)
		case dropped > 0:
			report.add("env_merge", DoctorWarn, "merged %d env key(s) into %s, dropped %d unrelated key(s)", merged, envPath, dropped)
		default:
			report.add("env_merge", DoctorPass, "merged %d env key(s) into %s", merged, envPath)
		}
	}
	checkEnvFiles(&report)

	cfg, err := config.Load()
	if err != nil {
		report.add("config_load", DoctorFail, "config load failed: %v", err)
		return report, nil
	}
	report.add("config_load", DoctorPass, "config loaded successfully")

	dataReady := checkDir(&report, "data_dir", cfg.Paths.DataDir, opts.Fix)
	if dataReady {
		checkStorage(&report, cfg)
	}
	checkDir(&report, "manifests_dir", cfg.Manifests.Dir, opts.Fix)
	if defs, err := manifest.LoadDir(cfg.Manifests.Dir); err != nil {
		report.add("manifests", DoctorFail, "manifest load failed: %v", err)
	} else {
		report.add("manifests", DoctorPass, "%d manifest module(s) in %s", len(defs), cfg.Manifests.Dir)
	}

	if cfg.Notifications.Provider == "slack" {
		if strings.TrimSpace(cfg.Notifications.SlackToken) == "" || strings.TrimSpace(cfg.Notifications.SlackChannel) == "" {
			report.add("notifications", DoctorWarn, "slack provider needs slackToken and slackChannel (falling back to log)")
		} else {
			report.add("notifications", DoctorPass, "slack notifications to %s", cfg.Notifications.SlackChannel)
		}
	} else {
		report.add("notifications", DoctorPass, "notifications are logged")
	}

	if cfg.Telemetry.Enabled {
		if strings.TrimSpace(cfg.Telemetry.Brokers) == "" || strings.TrimSpace(cfg.Telemetry.Topic) == "" {
			report.add("telemetry", DoctorFail, "telemetry enabled without brokers or topic")
		} else {
			report.add("telemetry", DoctorPass, "relaying events to %s on %s", cfg.Telemetry.Topic, cfg.Telemetry.Brokers)
		}
	} else {
		report.add("telemetry", DoctorPass, "telemetry relay disabled")
	}

	if isLoopbackHost(cfg.Server.Host) {
		report.add("server_loopback", DoctorPass, "server.host is loopback (%s)", cfg.Server.Host)
	} else {
		report.add("server_loopback", DoctorWarn, "server.host is not loopback (%s) and the API has no authentication", cfg.Server.Host)
	}

	return report, nil
}

// checkDir reports whether dir exists and is writable, creating it when fix
// is set.
func checkDir(report *DoctorReport, name, dir string, fix bool) bool {
	if strings.TrimSpace(dir) == "" {
		report.add(name, DoctorFail, "%s is empty", name)
		return false
	}
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		if !fix {
			report.add(name, DoctorWarn, "%s does not exist (created on first run)", dir)
			return false
		}
		if err := config.EnsureDir(dir); err != nil {
			report.add(name, DoctorFail, "cannot create %s: %v", dir, err)
			return false
		}
		report.add(name, DoctorPass, "created %s", dir)
		return true
	}
	if err != nil {
		report.add(name, DoctorFail, "cannot access %s: %v", dir, err)
		return false
	}
	if !info.IsDir() {
		report.add(name, DoctorFail, "%s is not a directory", dir)
		return false
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		report.add(name, DoctorFail, "%s is not writable: %v", dir, err)
		return false
	}
	probe.Close()
	os.Remove(probe.Name())
	report.add(name, DoctorPass, "%s is writable", dir)
	return true
}

func checkStorage(report *DoctorReport, cfg *config.Config) {
	db, err := storage.Open(cfg.DatabasePath(), cfg.Storage.Driver)
	if err != nil {
		report.add("storage", DoctorFail, "cannot open %s: %v", cfg.DatabasePath(), err)
		return
	}
	defer db.Close()
	recs, err := db.ListInstances()
	if err != nil {
		report.add("storage", DoctorFail, "cannot read instances: %v", err)
		return
	}
	report.add("storage", DoctorPass, "%s (%s driver, %d instance(s))", cfg.DatabasePath(), db.Driver(), len(recs))
}

// checkEnvFiles applies the env files Load reads and reports one check per
// file. Keys lythra never reads and malformed lines are warnings.
func checkEnvFiles(report *DoctorReport) {
	reports, err := config.LoadEnvFiles()
	report.EnvFiles = reports
	if err != nil {
		report.add("env_files", DoctorFail, "%v", err)
	}
	if len(reports) == 0 && err == nil {
		report.add("env_files", DoctorPass, "no env files found (looked in %s)", strings.Join(config.EnvFileCandidates(), ", "))
		return
	}
	for _, rep := range reports {
		status := DoctorPass
		msg := fmt.Sprintf("%s: %d applied, %d shadowed by the environment", rep.Path, len(rep.Applied), len(rep.Shadowed))
		if len(rep.Ignored) > 0 {
			status = DoctorWarn
			msg += fmt.Sprintf("; ignored %s", strings.Join(rep.Ignored, ", "))
		}
		if len(rep.Invalid) > 0 {
			status = DoctorWarn
			lines := make([]string, len(rep.Invalid))
			for i, n := range rep.Invalid {
				lines[i] = fmt.Sprint(n)
			}
			msg += fmt.Sprintf("; malformed line(s) %s", strings.Join(lines, ", "))
		}
		report.add("env_file", status, "%s", msg)
	}
}

// mergeDiscoveredEnvFiles folds stray env files into ~/.config/lythra/env.
// Later sources win. Keys lythra does not read are dropped and counted.
func mergeDiscoveredEnvFiles() (string, int, int, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", 0, 0, err
	}
	targetPath := filepath.Join(home, ".config", "lythra", "env")
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o700); err != nil {
		return "", 0, 0, err
	}

	cwd, _ := os.Getwd()
	sources := []string{
		filepath.Join(cwd, ".env"),
		filepath.Join(home, ".lythra", ".env"),
		filepath.Join(home, ".lythra", "env"),
		targetPath,
	}

	merged := map[string]string{}
	dropped := map[string]struct{}{}
	seen := map[string]struct{}{}
	for _, src := range sources {
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		entries, _, err := config.ReadEnvFile(src)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", 0, 0, fmt.Errorf("read %s: %w", src, err)
		}
		for _, e := range entries {
			if config.EnvTarget(e.Key) == "" {
				dropped[e.Key] = struct{}{}
				continue
			}
			merged[e.Key] = e.Value
		}
	}

	if err := writeEnvFile(targetPath, merged); err != nil {
		return "", 0, 0, err
	}
	return targetPath, len(merged), len(dropped), nil
}

func writeEnvFile(path string, kv map[string]string) error {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("# lythra env (managed by doctor --fix)\n")
	for _, k := range keys {
		v := kv[k]
		if strings.ContainsAny(v, " \t#") {
			v = fmt.Sprintf("%q", v)
		}
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "" {
		return false
	}
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
