// Package config provides YAML configuration parsing for ledsim.
//
// This package enables running the simulator as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Tree Lights
//	port: 8080
//
//	leds:
//	  count: 200
//	  layout: cone
//	  seed: 7
//
//	channel:
//	  transport: redis
//	  redis:
//	    addr: ${REDIS_ADDR:-localhost:6379}
//
//	# "ledsim render" drains the channel in its own process
//	consumer:
//	  enabled: false
//	  sinks: [console]
//
//	activation:
//	  steps: 100
//	  step_interval: 100ms
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// LayoutGrid places LEDs on a flat grid.
	LayoutGrid = "grid"

	// LayoutCone scatters LEDs inside a cone.
	LayoutCone = "cone"

	// TransportMemory keeps the broadcast channel in process.
	TransportMemory = "memory"

	// TransportRedis moves the broadcast channel into Redis.
	TransportRedis = "redis"

	// SinkPreview is the browser preview served at /ws.
	SinkPreview = "preview"

	// SinkConsole prints the strip to the terminal.
	SinkConsole = "console"

	// SinkSPI drives a physical LED strip over SPI.
	SinkSPI = "spi"

	// SinkLog logs every frame at debug level.
	SinkLog = "log"
)

const (
	defaultPort         = 8080
	defaultLEDCount     = 100
	defaultColumns      = 10
	defaultCapacity     = 4
	defaultTick         = 100 * time.Millisecond
	defaultSteps        = 100
	defaultStepInterval = 100 * time.Millisecond
	defaultPollInterval = 100 * time.Millisecond
	defaultSettleDelay  = 500 * time.Millisecond
	defaultSPIFreqKHz   = 2500
	maxLEDCount         = 100000
)

// Config is the root configuration structure for ledsim.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "LED Simulator" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	LEDs       LEDConfig        `yaml:"leds"`
	Channel    ChannelConfig    `yaml:"channel"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
	Activation ActivationConfig `yaml:"activation"`
	Progress   ProgressConfig   `yaml:"progress"`
	Update     UpdateConfig     `yaml:"update"`
}

// LEDConfig sets the number of LEDs and their layout.
type LEDConfig struct {
	// Count is the number of LEDs. Defaults to 100.
	Count int `yaml:"count"`

	// Layout is "grid" (default) or "cone".
	Layout string `yaml:"layout"`

	// Columns is the grid row width. Defaults to 10.
	Columns int `yaml:"columns"`

	// Seed makes cone layouts reproducible.
	Seed uint64 `yaml:"seed"`
}

// ChannelConfig selects the broadcast channel between updates and renderers.
type ChannelConfig struct {
	// Transport is "memory" (default) or "redis".
	Transport string `yaml:"transport"`

	// Capacity is how many snapshots may wait for the renderer. Defaults to 4.
	Capacity int `yaml:"capacity"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig is used when Transport is "redis".
type RedisConfig struct {
	// Addr supports environment variable substitution: ${VAR} or ${VAR:-default}
	Addr string `yaml:"addr"`

	// Password supports environment variable substitution.
	Password string `yaml:"password"`

	DB  int    `yaml:"db"`
	Key string `yaml:"key"`

	// Timeout bounds every channel operation. Defaults to 50ms.
	Timeout Duration `yaml:"timeout"`
}

// ConsumerConfig configures the render loop.
type ConsumerConfig struct {
	// Enabled runs the render loop inside the server. Defaults to true.
	// Disable it when "ledsim render" drains a Redis channel instead.
	Enabled *bool `yaml:"enabled"`

	// Tick is the drain interval. Defaults to 100ms.
	Tick Duration `yaml:"tick"`

	// Sinks lists the renderers: preview, console, spi, log.
	// Defaults to [preview].
	Sinks []string `yaml:"sinks"`

	SPI SPIConfig `yaml:"spi"`
}

// SPIConfig selects the SPI port for a physical strip.
type SPIConfig struct {
	// Port is the SPI port name; empty selects the first available port.
	Port string `yaml:"port"`

	// FreqKHz is the bus frequency. Defaults to 2500.
	FreqKHz int `yaml:"freq_khz"`
}

// ActivationConfig shapes activation runs.
type ActivationConfig struct {
	// Steps is the number of steps per run. Defaults to 100.
	Steps *int `yaml:"steps"`

	// StepInterval is the pause after each step. Defaults to 100ms.
	StepInterval Duration `yaml:"step_interval"`
}

// ProgressConfig configures the /events stream.
type ProgressConfig struct {
	// PollInterval is how often the stream checks for events. Defaults to 100ms.
	PollInterval Duration `yaml:"poll_interval"`

	// FanOut gives every client its own copy of the stream.
	FanOut bool `yaml:"fanout"`
}

// UpdateConfig configures /configure_leds.
type UpdateConfig struct {
	// SettleDelay is the pause before answering. Defaults to 500ms; "0s"
	// disables it.
	SettleDelay *Duration `yaml:"settle_delay"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ConsumerEnabled reports whether the render loop runs inside the server.
func (c *Config) ConsumerEnabled() bool {
	return c.Consumer.Enabled == nil || *c.Consumer.Enabled
}

// HasSink reports whether name is listed in consumer.sinks.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Consumer.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the Redis address and password.
// An empty document is valid and yields the defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.LEDs.Count == 0 {
		c.LEDs.Count = defaultLEDCount
	}
	if c.LEDs.Layout == "" {
		c.LEDs.Layout = LayoutGrid
	}
	if c.LEDs.Columns == 0 {
		c.LEDs.Columns = defaultColumns
	}
	if c.Channel.Transport == "" {
		c.Channel.Transport = TransportMemory
	}
	if c.Channel.Capacity == 0 {
		c.Channel.Capacity = defaultCapacity
	}
	if c.Consumer.Tick == 0 {
		c.Consumer.Tick = Duration(defaultTick)
	}
	if c.Consumer.Sinks == nil {
		c.Consumer.Sinks = []string{SinkPreview}
	}
	if c.Consumer.SPI.FreqKHz == 0 {
		c.Consumer.SPI.FreqKHz = defaultSPIFreqKHz
	}
	if c.Activation.Steps == nil {
		steps := defaultSteps
		c.Activation.Steps = &steps
	}
	if c.Activation.StepInterval == 0 {
		c.Activation.StepInterval = Duration(defaultStepInterval)
	}
	if c.Progress.PollInterval == 0 {
		c.Progress.PollInterval = Duration(defaultPollInterval)
	}
	if c.Update.SettleDelay == nil {
		d := Duration(defaultSettleDelay)
		c.Update.SettleDelay = &d
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.LEDs.Count < 0 || c.LEDs.Count > maxLEDCount {
		return fmt.Errorf("leds.count cannot be negative or exceed %d, got %d", maxLEDCount, c.LEDs.Count)
	}
	switch c.LEDs.Layout {
	case LayoutGrid, LayoutCone:
	default:
		return fmt.Errorf("leds.layout must be %q or %q, got %q", LayoutGrid, LayoutCone, c.LEDs.Layout)
	}
	if c.LEDs.Columns < 0 {
		return fmt.Errorf("leds.columns cannot be negative, got %d", c.LEDs.Columns)
	}

	if c.Channel.Capacity < 0 {
		return fmt.Errorf("channel.capacity must be positive, got %d", c.Channel.Capacity)
	}
	switch c.Channel.Transport {
	case TransportMemory:
	case TransportRedis:
		r := &c.Channel.Redis

		addr, err := expandEnvVars(r.Addr)
		if err != nil {
			return fmt.Errorf("channel.redis.addr: %w", err)
		}
		if addr == "" {
			return fmt.Errorf("channel.redis.addr is required for the %q transport", TransportRedis)
		}
		r.Addr = addr

		password, err := expandEnvVars(r.Password)
		if err != nil {
			return fmt.Errorf("channel.redis.password: %w", err)
		}
		r.Password = password

		if r.DB < 0 {
			return fmt.Errorf("channel.redis.db cannot be negative, got %d", r.DB)
		}
		if r.Timeout.Duration() < 0 {
			return fmt.Errorf("channel.redis.timeout cannot be negative, got %s", r.Timeout.Duration())
		}
	default:
		return fmt.Errorf("channel.transport must be %q or %q, got %q",
			TransportMemory, TransportRedis, c.Channel.Transport)
	}

	if c.Consumer.Tick.Duration() < 0 {
		return fmt.Errorf("consumer.tick must be positive, got %s", c.Consumer.Tick.Duration())
	}
	seen := make(map[string]struct{}, len(c.Consumer.Sinks))
	for i, s := range c.Consumer.Sinks {
		switch s {
		case SinkPreview, SinkConsole, SinkSPI, SinkLog:
		default:
			return fmt.Errorf("consumer.sinks[%d]: unknown sink %q (expected preview, console, spi or log)", i, s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("consumer.sinks[%d]: duplicate sink %q", i, s)
		}
		seen[s] = struct{}{}
	}
	if c.Consumer.SPI.FreqKHz < 0 {
		return fmt.Errorf("consumer.spi.freq_khz must be positive, got %d", c.Consumer.SPI.FreqKHz)
	}

	if *c.Activation.Steps < 0 {
		return fmt.Errorf("activation.steps cannot be negative, got %d", *c.Activation.Steps)
	}
	if c.Activation.StepInterval.Duration() < 0 {
		return fmt.Errorf("activation.step_interval must be positive, got %s", c.Activation.StepInterval.Duration())
	}
	if c.Progress.PollInterval.Duration() < 0 {
		return fmt.Errorf("progress.poll_interval must be positive, got %s", c.Progress.PollInterval.Duration())
	}
	if c.Update.SettleDelay.Duration() < 0 {
		return fmt.Errorf("update.settle_delay cannot be negative, got %s", c.Update.SettleDelay.Duration())
	}

	return nil
}
