// Package main is the entry point for the ollamatray tray/CLI.
package main

import (
	"os"

	"github.com/ollamatray-io/ollamatray/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
