package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/ledsim"
	"github.com/jpalmerr/ledsim/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the simulator.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the simulator",
	Long: `Start the LED simulator.

The server will:
  - Load configuration from the specified YAML file
  - Publish LED snapshots on the configured channel (memory or Redis)
  - Render snapshots on the configured sinks, unless consumer.enabled is false
  - Serve the HTTP API and browser preview on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  ledsim serve -c config.yaml
  ledsim serve --config /etc/ledsim/config.yaml --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"leds", cfg.LEDs.Count,
		"layout", cfg.LEDs.Layout,
		"transport", cfg.Channel.Transport,
		"sinks", cfg.Consumer.Sinks,
	)

	opts, err := config.BuildOptions(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}

	sim, err := ledsim.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- sim.Start(ctx)
	}()

	// wait for server to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
