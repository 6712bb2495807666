package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lythra/lythra/internal/app"
	"github.com/lythra/lythra/internal/config"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/lythra/lythra/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  _       _   _\n" +
		" | |_   _| |_| |__  _ __ __ _\n" +
		" | | | | | __| '_ \\| '__/ _` |\n" +
		" | | |_| | |_| | | | | | (_| |\n" +
		" |_|\\__, |\\__|_| |_|_|  \\__,_|\n" +
		"    |___/\n"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:           "lythra",
	Short:         "Lythra - dashboard module core",
	Long:          color.CyanString(logo) + "\nHosts sandboxed dashboard modules and serves them over a JSON API.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path := strings.TrimSpace(configFlag); path != "" {
			if err := os.Setenv("LYTHRA_CONFIG", path); err != nil {
				return err
			}
		}
		// A broken config is reported by the command that needs it.
		if cfg, err := config.Load(); err == nil {
			slog.SetDefault(app.NewLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr()))
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		color.New(color.FgRed).Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file path (overrides LYTHRA_CONFIG)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
}

// openApp loads the configuration and assembles the module core.
func openApp() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, app.Options{})
}
