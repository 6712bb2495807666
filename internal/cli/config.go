package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lythra/lythra/internal/cliconfig"
	"github.com/lythra/lythra/internal/config"
)

var (
	configGetOutput outputFlags
	configEnvOutput outputFlags
)

// configValue is the --json shape of config get.
type configValue struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the lythra config file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Print the effective value at a dotted path (env and defaults applied)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := cliconfig.Get(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if done, err := configGetOutput.emit(out, configValue{Path: args[0], Value: val}); done {
			return err
		}
		return printConfigValue(out, val)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Write a value into the config file (JSON literal or plain string)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		before, _ := cliconfig.Get(args[0])
		if err := cliconfig.Set(args[0], args[1]); err != nil {
			return err
		}
		return reportChange(cmd.OutOrStdout(), args[0], before)
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <path>",
	Short: "Remove a value from the config file so the default applies again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		before, _ := cliconfig.Get(args[0])
		if err := cliconfig.Unset(args[0]); err != nil {
			return err
		}
		return reportChange(cmd.OutOrStdout(), args[0], before)
	},
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List the env files lythra reads and the variables each one sets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reports, loadErr := config.LoadEnvFiles()
		out := cmd.OutOrStdout()
		if done, err := configEnvOutput.emit(out, reports); done {
			if err != nil {
				return err
			}
			return loadErr
		}
		if len(reports) == 0 && loadErr == nil {
			fmt.Fprintln(out, "No env files found. Looked in:")
			for _, p := range config.EnvFileCandidates() {
				fmt.Fprintf(out, "  %s\n", p)
			}
			return nil
		}
		for _, rep := range reports {
			fmt.Fprintf(out, "%s %s\n", mark(len(rep.Ignored) == 0 && len(rep.Invalid) == 0), rep.Path)
			printKeys(out, "applied", rep.Applied)
			printKeys(out, "shadowed", rep.Shadowed)
			printKeys(out, "ignored", rep.Ignored)
			if len(rep.Invalid) > 0 {
				fmt.Fprintf(out, "  malformed lines: %s\n", strings.Trim(fmt.Sprint(rep.Invalid), "[]"))
			}
		}
		return loadErr
	},
}

func printConfigValue(w io.Writer, val any) error {
	switch v := val.(type) {
	case map[string]any, []any:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	default:
		fmt.Fprintln(w, v)
	}
	return nil
}

// reportChange prints the effective value at path after an edit, with the
// previous one when it differs.
func reportChange(w io.Writer, path string, before any) error {
	after, err := cliconfig.Get(path)
	if err != nil {
		fmt.Fprintf(w, "%s: removed\n", path)
		return nil
	}
	prev, _ := json.Marshal(before)
	next, _ := json.Marshal(after)
	if string(prev) == string(next) {
		fmt.Fprintf(w, "%s: %s (unchanged)\n", path, next)
		return nil
	}
	fmt.Fprintf(w, "%s: %s -> %s\n", path, prev, next)
	return nil
}

func printKeys(w io.Writer, label string, keys []string) {
	if len(keys) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s: %s\n", label, strings.Join(keys, ", "))
}

func init() {
	configGetOutput.AddFlags(configGetCmd.Flags())
	configEnvOutput.AddFlags(configEnvCmd.Flags())
	configCmd.AddCommand(configPathCmd, configGetCmd, configSetCmd, configUnsetCmd, configEnvCmd)
	rootCmd.AddCommand(configCmd)
}
