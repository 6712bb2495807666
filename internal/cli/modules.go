package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lythra/lythra/internal/policy"
	"github.com/lythra/lythra/internal/registry"
)

var (
	modulesCategory string
	modulesOutput   outputFlags
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Inspect registered module types",
}

var modulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List module types (built-in and manifests)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var defs []registry.Definition
		if c := strings.TrimSpace(modulesCategory); c != "" {
			defs = a.Registry.DefinitionsByCategory(c)
		} else {
			defs = a.Registry.Definitions()
		}
		if done, err := modulesOutput.emit(cmd.OutOrStdout(), defs); done {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tVERSION\tCATEGORY\tSIZE\tPERMISSIONS")
		for _, d := range defs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%dx%d\t%s\n",
				d.Type, d.Version, d.Category, d.DefaultSize.W, d.DefaultSize.H, joinPermissions(d.Permissions))
		}
		return tw.Flush()
	},
}

func joinPermissions(perms []policy.Permission) string {
	if len(perms) == 0 {
		return "-"
	}
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

func init() {
	modulesListCmd.Flags().StringVar(&modulesCategory, "category", "", "Only list this category")
	modulesOutput.AddFlags(modulesListCmd.Flags())
	modulesCmd.AddCommand(modulesListCmd)
	rootCmd.AddCommand(modulesCmd)
}
