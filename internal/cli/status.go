package cli

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lythra/lythra/internal/config"
	"github.com/lythra/lythra/internal/manifest"
	"github.com/lythra/lythra/internal/storage"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		printHeader(out, "Lythra Version")
		fmt.Fprintf(out, "Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and storage status",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		printHeader(out, "Lythra Status")
		fmt.Fprintf(out, "Version:   %s\n", version)

		cfgPath, err := config.ConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(cfgPath); err == nil {
			fmt.Fprintf(out, "Config:    %s Found (%s)\n", mark(true), cfgPath)
		} else {
			fmt.Fprintf(out, "Config:    %s Not found, using defaults (%s)\n", mark(false), cfgPath)
		}

		printEnvFiles(out)

		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(out, "Load:      %s %v\n", mark(false), err)
			return nil
		}

		dbPath := cfg.DatabasePath()
		if _, err := os.Stat(dbPath); err == nil {
			count := "?"
			if db, err := storage.Open(dbPath, cfg.Storage.Driver); err == nil {
				if recs, err := db.ListInstances(); err == nil {
					count = strconv.Itoa(len(recs))
				}
				db.Close()
			}
			fmt.Fprintf(out, "Storage:   %s %s (%s instance(s))\n", mark(true), dbPath, count)
		} else {
			fmt.Fprintf(out, "Storage:   %s %s not created yet\n", mark(false), dbPath)
		}

		if defs, err := manifest.LoadDir(cfg.Manifests.Dir); err == nil {
			fmt.Fprintf(out, "Manifests: %d in %s\n", len(defs), cfg.Manifests.Dir)
		} else {
			fmt.Fprintf(out, "Manifests: %s %v\n", mark(false), err)
		}
		fmt.Fprintf(out, "Notify:    %s\n", cfg.Notifications.Provider)
		if cfg.Telemetry.Enabled {
			fmt.Fprintf(out, "Telemetry: %s %s -> %s\n", mark(true), cfg.Telemetry.Brokers, cfg.Telemetry.Topic)
		} else {
			fmt.Fprintf(out, "Telemetry: disabled\n")
		}
		fmt.Fprintf(out, "API:       http://%s\n", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)))
		return nil
	},
}

// printEnvFiles writes one status line per env file Load reads.
func printEnvFiles(out io.Writer) {
	reports, err := config.LoadEnvFiles()
	if err != nil {
		fmt.Fprintf(out, "Env:       %s %v\n", mark(false), err)
	}
	if len(reports) == 0 && err == nil {
		fmt.Fprintf(out, "Env:       no env files\n")
	}
	for _, rep := range reports {
		clean := len(rep.Ignored) == 0 && len(rep.Invalid) == 0
		fmt.Fprintf(out, "Env:       %s %s (%d applied, %d shadowed, %d ignored)\n",
			mark(clean), rep.Path, len(rep.Applied), len(rep.Shadowed), len(rep.Ignored))
	}
}
