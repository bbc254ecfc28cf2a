package ledsim

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// simConfig holds mutable state during Simulator construction.
type simConfig struct {
	title             string
	positions         []Position
	port              int
	logger            *slog.Logger
	capacity          int
	redis             *RedisConfig
	sinks             []Sink
	preview           bool
	renderer          bool
	tick              time.Duration
	steps             int
	stepInterval      time.Duration
	pollInterval      time.Duration
	settleDelay       time.Duration
	fanOut            bool
	progressCallbacks []func(ProgressEvent)
}

// RedisConfig selects the Redis-backed broadcast channel.
//
// With Redis the renderer can run in another process (see the "render"
// command); both sides must use the same address and key.
type RedisConfig struct {
	// Addr is the Redis host:port.
	Addr string

	// Password is optional.
	Password string

	// DB is the Redis database number.
	DB int

	// Key is the list holding pending snapshots. Defaults to "ledsim:snapshots".
	Key string

	// Timeout bounds every channel operation. Defaults to 50ms.
	Timeout time.Duration
}

// Option is a function that configures a [Simulator] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*simConfig) error

// WithLEDCount lays out n LEDs on a grid ten wide.
//
// Use [WithPositions] for any other layout. Returns an error if n is not
// positive.
func WithLEDCount(n int) Option {
	return func(cfg *simConfig) error {
		if n <= 0 {
			return errors.New("LED count must be positive")
		}
		cfg.positions = GridLayout(n, defaultColumns)
		return nil
	}
}

// WithPositions sets the LED layout. LED i is placed at positions[i].
//
// The positions are copied; the number of positions fixes the LED count for
// the lifetime of the simulator.
//
// Example:
//
//	sim, err := ledsim.New(
//	    ledsim.WithPositions(ledsim.ConeLayout(200, 7)...),
//	)
//
// Returns an error if the list is empty or any position does not have two or
// three finite coordinates.
func WithPositions(positions ...Position) Option {
	return func(cfg *simConfig) error {
		if len(positions) == 0 {
			return errors.New("at least one LED position is required")
		}
		cp := make([]Position, len(positions))
		for i, p := range positions {
			if !validPosition(p) {
				return fmt.Errorf("position %d: want 2 or 3 finite coordinates, got %v", i, p)
			}
			cp[i] = p.Clone()
		}
		cfg.positions = cp
		return nil
	}
}

// WithPort sets the HTTP port for the API and dashboard.
//
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *simConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Simulator instance.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *simConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "LED Simulator".
func WithTitle(title string) Option {
	return func(cfg *simConfig) error {
		cfg.title = title
		return nil
	}
}

// WithChannelCapacity sets how many snapshots may wait for the renderer
// before new ones are dropped. Defaults to 4.
//
// Returns an error if n is not positive.
func WithChannelCapacity(n int) Option {
	return func(cfg *simConfig) error {
		if n <= 0 {
			return errors.New("channel capacity must be positive")
		}
		cfg.capacity = n
		return nil
	}
}

// WithRedisChannel moves the broadcast channel into Redis.
//
// Redis failures never block or fail an update: the snapshot is treated as
// dropped and the error is logged at debug level.
//
// Returns an error if no address is given.
func WithRedisChannel(rc RedisConfig) Option {
	return func(cfg *simConfig) error {
		if rc.Addr == "" {
			return errors.New("redis address is required")
		}
		if rc.Timeout < 0 {
			return errors.New("redis timeout cannot be negative")
		}
		cfg.redis = &rc
		return nil
	}
}

// WithSink adds a renderer driven by the consumer loop.
//
// Can be called multiple times. Nil sinks are silently ignored.
func WithSink(s Sink) Option {
	return func(cfg *simConfig) error {
		if s == nil {
			return nil
		}
		cfg.sinks = append(cfg.sinks, s)
		return nil
	}
}

// WithPreview enables or disables the browser preview served at /ws.
// Enabled by default.
func WithPreview(enabled bool) Option {
	return func(cfg *simConfig) error {
		cfg.preview = enabled
		return nil
	}
}

// WithRenderer enables or disables the in-process consumer loop.
//
// Disable it when another process drains a Redis channel. Enabled by default.
func WithRenderer(enabled bool) Option {
	return func(cfg *simConfig) error {
		cfg.renderer = enabled
		return nil
	}
}

// WithTickInterval sets how often the consumer loop drains the channel.
// Defaults to 100ms.
//
// Returns an error if the duration is zero or negative.
func WithTickInterval(d time.Duration) Option {
	return func(cfg *simConfig) error {
		if d <= 0 {
			return errors.New("tick interval must be positive")
		}
		cfg.tick = d
		return nil
	}
}

// WithActivationSteps sets the number of steps in an activation run.
// Defaults to 100. Zero makes every run emit only its final event.
//
// Returns an error if n is negative.
func WithActivationSteps(n int) Option {
	return func(cfg *simConfig) error {
		if n < 0 {
			return errors.New("activation steps cannot be negative")
		}
		cfg.steps = n
		return nil
	}
}

// WithStepInterval sets the pause after each activation step. Defaults to
// 100ms.
//
// Returns an error if the duration is zero or negative.
func WithStepInterval(d time.Duration) Option {
	return func(cfg *simConfig) error {
		if d <= 0 {
			return errors.New("step interval must be positive")
		}
		cfg.stepInterval = d
		return nil
	}
}

// WithPollInterval sets how often the /events stream checks for progress.
// Defaults to 100ms.
//
// Returns an error if the duration is zero or negative.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *simConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithSettleDelay sets the pause after each /configure_leds request before
// it is answered. Defaults to 500ms; zero disables it.
//
// Returns an error if the duration is negative.
func WithSettleDelay(d time.Duration) Option {
	return func(cfg *simConfig) error {
		if d < 0 {
			return errors.New("settle delay cannot be negative")
		}
		cfg.settleDelay = d
		return nil
	}
}

// WithFanOut gives every /events client its own copy of the progress stream.
//
// By default all clients share one queue and each event reaches exactly one
// of them.
func WithFanOut() Option {
	return func(cfg *simConfig) error {
		cfg.fanOut = true
		return nil
	}
}

// WithProgressCallback registers a function to be called for every progress
// event.
//
// Multiple callbacks may be registered; they execute in registration order
// on the activation goroutine.
//
// IMPORTANT: Callbacks must be non-blocking. A slow callback delays the next
// activation step.
//
// Panics within callbacks are recovered and logged; they do not stop the run.
//
// Nil callbacks are silently ignored.
func WithProgressCallback(cb func(ProgressEvent)) Option {
	return func(cfg *simConfig) error {
		if cb == nil {
			return nil // no-op for nil callback (safe to call)
		}
		cfg.progressCallbacks = append(cfg.progressCallbacks, cb)
		return nil
	}
}
