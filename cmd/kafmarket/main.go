// Package main is the entry point for the kafmarket CLI.
package main

import (
	"os"

	"github.com/KafClaw/KafMarket/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
