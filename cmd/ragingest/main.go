// Package main provides the entry point for the ragingest CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/ragingest/cmd/ragingest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
