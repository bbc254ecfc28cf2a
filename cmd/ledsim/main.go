// Package main is the entry point for the ledsim CLI.
//
// ledsim can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach,
// plus a few controller commands that talk to a running simulator.
//
// Usage:
//
//	ledsim serve -c config.yaml     # Start the simulator
//	ledsim validate -c config.yaml  # Validate configuration
//	ledsim render -c config.yaml    # Render a Redis-backed simulator elsewhere
//	ledsim tail --url http://host   # Follow activation progress
//	ledsim poke --url http://host   # Send random LED updates
//	ledsim version                  # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "ledsim",
	Short: "A virtual LED array for testing light controllers",
	Long: `ledsim simulates an addressable LED array.

Controllers switch LEDs on and off over HTTP, and a renderer draws the
latest state in a browser preview, a terminal, or a real SPI strip.
An activation run lights the LEDs one by one and streams progress.

Quick start:
  1. Create a config file (ledsim.yaml)
  2. Run: ledsim serve -c ledsim.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  leds:
    count: 100
    layout: grid
  consumer:
    sinks: [preview]`,
	SilenceUsage: true,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this ledsim binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ledsim %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger for CLI use.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
