// Package main is the entry point for the lythra CLI.
package main

import (
	"os"

	"github.com/lythra/lythra/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
