package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
)

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, color.New(color.FgCyan, color.Bold).Sprint(title))
	fmt.Fprintln(w, color.CyanString("----------------------------------------"))
}

// outputFlags adds --json to a command.
type outputFlags struct {
	JSON bool
}

func (o *outputFlags) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.JSON, "json", false, "Output as JSON")
}

// emit writes v as indented JSON when --json is set and reports whether it
// did. Nil slices are written as [].
func (o *outputFlags) emit(w io.Writer, v any) (bool, error) {
	if !o.JSON {
		return false, nil
	}
	return true, writeJSON(w, v)
}

func writeJSON(w io.Writer, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		v = reflect.MakeSlice(rv.Type(), 0, 0).Interface()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func mark(ok bool) string {
	if ok {
		return color.GreenString("✓")
	}
	return color.RedString("✗")
}
