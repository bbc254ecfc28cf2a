package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/ledsim/config"
	"github.com/jpalmerr/ledsim/internal/redisbus"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a ledsim configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  ledsim validate -c config.yaml
  ledsim validate --config /etc/ledsim/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	transport := cfg.Channel.Transport
	if transport == config.TransportRedis {
		key := cfg.Channel.Redis.Key
		if key == "" {
			key = redisbus.DefaultKey
		}
		transport = fmt.Sprintf("redis (%s, key %s)", cfg.Channel.Redis.Addr, key)
	}

	consumer := "disabled"
	if cfg.ConsumerEnabled() {
		consumer = fmt.Sprintf("every %s", cfg.Consumer.Tick.Duration())
	}

	progressMode := "single reader"
	if cfg.Progress.FanOut {
		progressMode = "fan-out"
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:       %d\n", cfg.Port)
	fmt.Printf("  LEDs:       %d (%s layout)\n", cfg.LEDs.Count, cfg.LEDs.Layout)
	fmt.Printf("  Channel:    %s, capacity %d\n", transport, cfg.Channel.Capacity)
	fmt.Printf("  Consumer:   %s\n", consumer)
	fmt.Printf("  Sinks:      %s\n", strings.Join(cfg.Consumer.Sinks, ", "))
	fmt.Printf("  Activation: %d steps every %s\n", *cfg.Activation.Steps, cfg.Activation.StepInterval.Duration())
	fmt.Printf("  Progress:   %s, polled every %s\n", progressMode, cfg.Progress.PollInterval.Duration())

	return nil
}
