package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lythra/lythra/internal/cliconfig"
	"github.com/lythra/lythra/internal/registry"
)

var (
	instanceOutput outputFlags

	createID       string
	createPosition string
	createSize     string
	createSets     []string

	updatePosition string
	updateSize     string
	updateVersion  string
	updateSets     []string
	updateUnsets   []string

	actArgs []string
)

var instanceCmd = &cobra.Command{
	Use:     "instance",
	Aliases: []string{"instances"},
	Short:   "Manage dashboard module instances",
}

var instanceCreateCmd = &cobra.Command{
	Use:   "create <type>",
	Short: "Create an instance of a module type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := parseSettings(createSets, nil)
		if err != nil {
			return err
		}
		opts := &registry.CreateOptions{ID: createID, Settings: settings}
		if createPosition != "" {
			pos, err := parsePosition(createPosition)
			if err != nil {
				return err
			}
			opts.Position = &pos
		}
		if createSize != "" {
			size, err := parseSize(createSize)
			if err != nil {
				return err
			}
			opts.Size = &size
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		def, ok := a.Registry.Definition(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", registry.ErrUnknownType, args[0])
		}
		if res := a.Registry.ValidateSettings(def.Type, def.DefaultSettings.Merged(settings)); !res.Valid {
			return invalidSettings(res)
		}
		cfg, err := a.Registry.Create(def.Type, opts)
		if err != nil {
			return err
		}
		if done, err := instanceOutput.emit(cmd.OutOrStdout(), cfg); done {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s v%s)\n", cfg.ID, cfg.Type, cfg.Version)
		return nil
	},
}

var instanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List instances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list := a.Registry.Instances()
		if done, err := instanceOutput.emit(cmd.OutOrStdout(), list); done {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tVERSION\tPOSITION\tSIZE")
		for _, c := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d,%d\t%dx%d\n", c.ID, c.Type, c.Version, c.Position.X, c.Position.Y, c.Size.W, c.Size.H)
		}
		return tw.Flush()
	},
}

var instanceShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an instance as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		cfg, ok := a.Registry.Instance(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", registry.ErrInstanceNotFound, args[0])
		}
		return writeJSON(cmd.OutOrStdout(), cfg)
	},
}

var instanceUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an instance's settings, layout or version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := parseSettings(updateSets, updateUnsets)
		if err != nil {
			return err
		}
		var patch registry.Patch
		patch.Settings = settings
		if updatePosition != "" {
			pos, err := parsePosition(updatePosition)
			if err != nil {
				return err
			}
			patch.Position = &pos
		}
		if updateSize != "" {
			size, err := parseSize(updateSize)
			if err != nil {
				return err
			}
			patch.Size = &size
		}
		if v := strings.TrimSpace(updateVersion); v != "" {
			patch.Version = &v
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		cur, ok := a.Registry.Instance(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", registry.ErrInstanceNotFound, args[0])
		}
		if settings != nil && (patch.Version == nil || *patch.Version == cur.Version) {
			if _, known := a.Registry.Definition(cur.Type); known {
				if res := a.Registry.ValidateSettings(cur.Type, cur.Settings.Merged(settings)); !res.Valid {
					return invalidSettings(res)
				}
			}
		}
		cfg, ok := a.Registry.Update(args[0], patch)
		if !ok {
			return fmt.Errorf("%w: %s", registry.ErrInstanceNotFound, args[0])
		}
		if done, err := instanceOutput.emit(cmd.OutOrStdout(), cfg); done {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s v%s)\n", cfg.ID, cfg.Type, cfg.Version)
		return nil
	},
}

var instanceRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove an instance",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.Registry.Remove(args[0]) {
			return fmt.Errorf("%w: %s", registry.ErrInstanceNotFound, args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

var instanceValidateCmd = &cobra.Command{
	Use:   "validate <id>",
	Short: "Validate an instance's settings against its schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		cfg, ok := a.Registry.Instance(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", registry.ErrInstanceNotFound, args[0])
		}
		res := a.Registry.ValidateSettings(cfg.Type, cfg.Settings)
		if done, err := instanceOutput.emit(cmd.OutOrStdout(), res); done {
			if err != nil {
				return err
			}
		} else if res.Valid {
			fmt.Fprintf(cmd.OutOrStdout(), "%s settings are valid\n", cfg.ID)
		}
		if !res.Valid {
			return invalidSettings(res)
		}
		return nil
	},
}

var instanceActCmd = &cobra.Command{
	Use:   "act <id> <action> [action...]",
	Short: "Run module actions in order and print the resulting view",
	Long: `Run module actions (e.g. timer start, advance, complete) against an
instance. Module state lives in the process, so a sequence of actions must be
given in one invocation; a running server keeps state between API calls.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actionArgs, err := parseSettings(actArgs, nil)
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var view registry.View
		for _, name := range args[1:] {
			view, err = a.Provider.ActOnInstance(cmd.Context(), args[0], name, actionArgs)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
		out := cmd.OutOrStdout()
		if done, err := instanceOutput.emit(out, view); done {
			return err
		}
		printView(out, view)
		return nil
	},
}

func invalidSettings(res registry.ValidationResult) error {
	return errors.New("invalid settings: " + strings.Join(res.Errors, "; "))
}

// parseSettings turns key=value pairs into settings. Values are decoded as
// JSON when possible. Unset keys map to nil, which deletes them on update.
func parseSettings(sets, unsets []string) (registry.Settings, error) {
	if len(sets) == 0 && len(unsets) == 0 {
		return nil, nil
	}
	out := make(registry.Settings, len(sets)+len(unsets))
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid %q, expected key=value", kv)
		}
		out[k] = cliconfig.ParseValue(v)
	}
	for _, k := range unsets {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, errors.New("--unset needs a key")
		}
		out[k] = nil
	}
	return out, nil
}

func parsePosition(s string) (registry.Position, error) {
	x, y, err := parsePair(s, ",")
	if err != nil {
		return registry.Position{}, fmt.Errorf("invalid position %q, expected X,Y", s)
	}
	return registry.Position{X: x, Y: y}, nil
}

func parseSize(s string) (registry.Size, error) {
	w, h, err := parsePair(strings.ToLower(s), "x")
	if err != nil || w <= 0 || h <= 0 {
		return registry.Size{}, fmt.Errorf("invalid size %q, expected WxH with positive values", s)
	}
	return registry.Size{W: w, H: h}, nil
}

func parsePair(s, sep string) (int, int, error) {
	a, b, ok := strings.Cut(strings.TrimSpace(s), sep)
	if !ok {
		return 0, 0, fmt.Errorf("missing %q", sep)
	}
	x, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func init() {
	instanceOutput.AddFlags(instanceCmd.PersistentFlags())

	instanceCreateCmd.Flags().StringVar(&createID, "id", "", "Instance id (generated when empty)")
	instanceCreateCmd.Flags().StringVar(&createPosition, "position", "", "Grid position as X,Y")
	instanceCreateCmd.Flags().StringVar(&createSize, "size", "", "Grid size as WxH (module default when empty)")
	instanceCreateCmd.Flags().StringArrayVar(&createSets, "set", nil, "Setting as key=value (repeatable)")

	instanceUpdateCmd.Flags().StringVar(&updatePosition, "position", "", "Grid position as X,Y")
	instanceUpdateCmd.Flags().StringVar(&updateSize, "size", "", "Grid size as WxH")
	instanceUpdateCmd.Flags().StringVar(&updateVersion, "version", "", "Target module version (migrates settings)")
	instanceUpdateCmd.Flags().StringArrayVar(&updateSets, "set", nil, "Setting as key=value (repeatable)")
	instanceUpdateCmd.Flags().StringArrayVar(&updateUnsets, "unset", nil, "Setting key to delete (repeatable)")

	instanceCmd.AddCommand(instanceCreateCmd)
	instanceCmd.AddCommand(instanceListCmd)
	instanceCmd.AddCommand(instanceShowCmd)
	instanceCmd.AddCommand(instanceUpdateCmd)
	instanceCmd.AddCommand(instanceRemoveCmd)
	instanceCmd.AddCommand(instanceValidateCmd)

	instanceActCmd.Flags().StringArrayVar(&actArgs, "arg", nil, "Action argument as key=value (repeatable)")
	instanceCmd.AddCommand(instanceActCmd)
	rootCmd.AddCommand(instanceCmd)
}
