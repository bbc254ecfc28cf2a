package config

import (
	"fmt"
	"io"
	"log/slog"

	"periph.io/x/conn/v3/physic"

	"github.com/jpalmerr/ledsim"
	"github.com/jpalmerr/ledsim/internal/render"
	"github.com/jpalmerr/ledsim/internal/strip"
)

// BuildOptions converts parsed configuration into SDK options.
//
// Strip sinks are opened here; on error every sink opened so far is closed.
// The returned sinks are owned by the simulator, which closes them when it
// stops.
func BuildOptions(cfg *Config, logger *slog.Logger) ([]ledsim.Option, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []ledsim.Option{
		ledsim.WithLogger(logger),
		ledsim.WithTitle(cfg.Title),
		ledsim.WithPort(cfg.Port),
		ledsim.WithPositions(BuildPositions(cfg)...),
		ledsim.WithChannelCapacity(cfg.Channel.Capacity),
		ledsim.WithPreview(cfg.HasSink(SinkPreview)),
		ledsim.WithRenderer(cfg.ConsumerEnabled()),
		ledsim.WithTickInterval(cfg.Consumer.Tick.Duration()),
		ledsim.WithActivationSteps(*cfg.Activation.Steps),
		ledsim.WithStepInterval(cfg.Activation.StepInterval.Duration()),
		ledsim.WithPollInterval(cfg.Progress.PollInterval.Duration()),
		ledsim.WithSettleDelay(cfg.Update.SettleDelay.Duration()),
	}

	if cfg.Channel.Transport == TransportRedis {
		opts = append(opts, ledsim.WithRedisChannel(RedisOptions(cfg)))
		if cfg.ConsumerEnabled() {
			// a second drainer would split the coalesced frames between processes
			logger.Warn("redis channel is drained in process; set consumer.enabled to false when running ledsim render",
				"key", cfg.Channel.Redis.Key,
			)
		}
	}
	if cfg.Progress.FanOut {
		opts = append(opts, ledsim.WithFanOut())
	}

	// sinks only matter when the loop runs in this process
	if cfg.ConsumerEnabled() {
		sinks, err := BuildSinks(cfg, logger)
		if err != nil {
			return nil, err
		}
		for _, s := range sinks {
			opts = append(opts, ledsim.WithSink(s))
		}
	}

	return opts, nil
}

// BuildPositions generates the configured LED layout.
func BuildPositions(cfg *Config) []ledsim.Position {
	if cfg.LEDs.Layout == LayoutCone {
		return ledsim.ConeLayout(cfg.LEDs.Count, cfg.LEDs.Seed)
	}
	return ledsim.GridLayout(cfg.LEDs.Count, cfg.LEDs.Columns)
}

// RedisOptions converts the Redis section into SDK form.
func RedisOptions(cfg *Config) ledsim.RedisConfig {
	r := cfg.Channel.Redis
	return ledsim.RedisConfig{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
		Key:      r.Key,
		Timeout:  r.Timeout.Duration(),
	}
}

// BuildSinks opens every configured sink except the browser preview, which
// the simulator creates itself.
func BuildSinks(cfg *Config, logger *slog.Logger) ([]ledsim.Sink, error) {
	var sinks []ledsim.Sink

	fail := func(err error) ([]ledsim.Sink, error) {
		for _, s := range sinks {
			if c, ok := s.(io.Closer); ok {
				_ = c.Close()
			}
		}
		return nil, err
	}

	for _, name := range cfg.Consumer.Sinks {
		switch name {
		case SinkPreview:
			// served by the simulator
		case SinkLog:
			sinks = append(sinks, render.LogSink{Logger: logger})
		case SinkConsole:
			sinks = append(sinks, strip.NewConsole(cfg.LEDs.Count, strip.DefaultStyle))
		case SinkSPI:
			freq := physic.Frequency(cfg.Consumer.SPI.FreqKHz) * physic.KiloHertz
			s, err := strip.OpenSPI(cfg.Consumer.SPI.Port, cfg.LEDs.Count, freq, strip.DefaultStyle)
			if err != nil {
				return fail(fmt.Errorf("consumer.sinks: spi: %w", err))
			}
			sinks = append(sinks, s)
		default:
			return fail(fmt.Errorf("consumer.sinks: unknown sink %q", name))
		}
	}

	return sinks, nil
}
