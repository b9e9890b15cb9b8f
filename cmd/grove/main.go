package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "grove",
	Short: "Grove - Fractal-tree resource allocator",
	Long: `Grove partitions bounded memory and compute pools into self-similar
capacity trees and serves allocation requests with priority-aware
placement, trust-gated node selection, and load-balancing feedback.

The serve command runs the allocator as a daemon with Prometheus
metrics and an audit journal; bench drives the public API under
concurrent load.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Grove version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
}
