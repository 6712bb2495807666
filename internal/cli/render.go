package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lythra/lythra/internal/registry"
)

var renderOutput outputFlags

var renderCmd = &cobra.Command{
	Use:   "render <id>",
	Short: "Mount an instance in its sandbox and render it once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		view, err := a.Provider.RenderInstance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if done, err := renderOutput.emit(out, view); done {
			return err
		}
		printView(out, view)
		return nil
	},
}

func printView(out io.Writer, view registry.View) {
	title := view.Title
	if title == "" {
		title = view.Kind
	}
	printHeader(out, title)
	keys := make([]string, 0, len(view.Fields))
	for k := range view.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s: %v\n", k, view.Fields[k])
	}
	switch {
	case view.Body == "":
	case view.ContentType != "" && view.ContentType != "text/plain":
		fmt.Fprintf(out, "[%s, %d bytes encoded]\n", view.ContentType, len(view.Body))
	default:
		fmt.Fprintln(out, view.Body)
	}
}

func init() {
	renderOutput.AddFlags(renderCmd.Flags())
	rootCmd.AddCommand(renderCmd)
}
