package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/ledsim/config"
	"github.com/jpalmerr/ledsim/internal/redisbus"
	"github.com/jpalmerr/ledsim/internal/render"
	"github.com/jpalmerr/ledsim/internal/store"
)

const pingTimeout = 2 * time.Second

// renderCmd drains a Redis channel in its own process.
var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render snapshots from a Redis channel",
	Long: `Render LED snapshots published by a simulator running elsewhere.

The simulator must use the Redis transport, usually with consumer.enabled
set to false so that this process is the only renderer. The configured
console, spi and log sinks are driven here; the browser preview stays with
the server. With no such sink configured, frames are logged at debug level.

The renderer runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  ledsim render -c config.yaml
  REDIS_ADDR=cache:6379 ledsim render -c config.yaml --debug`,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = renderCmd.MarkFlagRequired("config")
}

func runRender(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	frames, err := renderChannel(ctx, cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("renderer stopped", "frames", frames)
	return nil
}

// renderChannel runs a render loop over the configured Redis channel until
// ctx is cancelled and returns the number of frames drawn.
func renderChannel(ctx context.Context, cfg *config.Config, logger *slog.Logger) (uint64, error) {
	if cfg.Channel.Transport != config.TransportRedis {
		return 0, fmt.Errorf("render requires channel.transport %q, got %q",
			config.TransportRedis, cfg.Channel.Transport)
	}

	sinks, err := config.BuildSinks(cfg, logger)
	if err != nil {
		return 0, fmt.Errorf("failed to open sinks: %w", err)
	}
	defer closeSinks(sinks, logger)

	var sink render.Sink
	switch len(sinks) {
	case 0:
		sink = render.LogSink{Logger: logger}
	case 1:
		sink = sinks[0]
	default:
		sink = render.Multi(sinks...)
	}

	r := config.RedisOptions(cfg)
	ch, err := redisbus.New[store.Snapshot](&redis.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	}, redisbus.Options{
		Key:      r.Key,
		Capacity: cfg.Channel.Capacity,
		Timeout:  r.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create redis channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err = ch.Ping(pingCtx)
	cancel()
	if err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		// keep going; the loop picks up once redis is reachable
		logger.Warn("redis unreachable", "addr", r.Addr, "error", err)
	}

	logger.Info("renderer started",
		"addr", r.Addr,
		"key", ch.Key(),
		"sinks", len(sinks),
		"tick", cfg.Consumer.Tick.Duration().String(),
	)

	loop := render.NewLoop(ch, sink, logger)
	loop.Run(ctx, cfg.Consumer.Tick.Duration())

	return loop.Frames(), nil
}

func closeSinks(sinks []render.Sink, logger *slog.Logger) {
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("sink close failed", "error", err)
			}
		}
	}
}
