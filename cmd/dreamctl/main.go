// Package main is the entry point for dreamctl, the DreamFrame terminal tool.
package main

import (
	"os"

	"dreamframe/cmd/dreamctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
