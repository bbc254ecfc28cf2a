package ledsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jpalmerr/ledsim/dashboard"
	"github.com/jpalmerr/ledsim/internal/broadcast"
	"github.com/jpalmerr/ledsim/internal/preview"
	"github.com/jpalmerr/ledsim/internal/progress"
	"github.com/jpalmerr/ledsim/internal/redisbus"
	"github.com/jpalmerr/ledsim/internal/render"
	"github.com/jpalmerr/ledsim/internal/runner"
	"github.com/jpalmerr/ledsim/internal/server"
	"github.com/jpalmerr/ledsim/internal/store"
)

const (
	defaultLEDCount    = 100
	defaultPort        = 8080
	defaultSettleDelay = 500 * time.Millisecond
	redisPingTimeout   = time.Second
)

// progressHub is both ends of the progress queue.
type progressHub interface {
	progress.Publisher
	progress.Source
}

// statsChannel is a broadcast channel that reports its counters.
type statsChannel interface {
	broadcast.Channel[store.Snapshot]
	Stats() broadcast.Stats
}

// Simulator is the main orchestrator for LED state, rendering and activation.
//
// Simulator holds the LED store, the broadcast channel feeding the renderer,
// the activation runner with its progress queue, and the HTTP API. It is
// created using [New] with functional options and started with
// [Simulator.Start].
//
// The typical lifecycle is:
//
//	sim, err := ledsim.New(ledsim.WithLEDCount(100))
//	if err != nil {
//	    slog.Error("failed to create simulator", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	sim.Start(ctx) // blocks until context cancelled
//
// A Simulator can be started once. Its methods are safe for concurrent use.
type Simulator struct {
	title  string
	port   int
	tick   time.Duration
	logger *slog.Logger

	store    *store.MemoryStore
	channel  statsChannel
	closer   io.Closer
	redis    *redisbus.Channel[store.Snapshot]
	progress progressHub
	runner   *runner.Runner
	hub      *preview.Hub
	sinks    []Sink
	loop     *render.Loop
	server   *server.Server

	started atomic.Bool
}

// New creates a new [Simulator] instance with the given options.
//
// Options have sensible defaults:
//   - LEDs: 100 on a grid ten wide
//   - Port: 8080
//   - Channel capacity: 4, in process
//   - Activation: 100 steps, 100ms apart
//   - Settle delay: 500ms
//   - Browser preview and in-process renderer enabled
//
// Returns an error if any option is invalid.
//
// Example:
//
//	sim, err := ledsim.New(
//	    ledsim.WithPositions(ledsim.ConeLayout(200, 1)...),
//	    ledsim.WithPort(9090),
//	    ledsim.WithActivationSteps(50),
//	)
func New(opts ...Option) (*Simulator, error) {
	cfg := &simConfig{
		port:         defaultPort,
		capacity:     broadcast.DefaultCapacity,
		preview:      true,
		renderer:     true,
		tick:         render.DefaultTick,
		steps:        runner.DefaultSteps,
		stepInterval: runner.DefaultStepInterval,
		settleDelay:  defaultSettleDelay,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.positions) == 0 {
		cfg.positions = GridLayout(defaultLEDCount, defaultColumns)
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	sim := &Simulator{
		title:  cfg.title,
		port:   cfg.port,
		tick:   cfg.tick,
		logger: logger,
		store:  store.NewMemoryStore(cfg.positions),
		sinks:  cfg.sinks,
	}

	if err := sim.buildChannel(cfg); err != nil {
		return nil, err
	}

	if cfg.fanOut {
		sim.progress = progress.NewFanout()
	} else {
		sim.progress = progress.NewOutbox()
	}

	pub := progress.Publisher(sim.progress)
	if len(cfg.progressCallbacks) > 0 {
		callbacks := cfg.progressCallbacks
		pub = progress.Tee(sim.progress, progress.PublisherFunc(func(e progress.Event) {
			public := toProgressEvent(e)
			for _, cb := range callbacks {
				invokeCallbackSafe(cb, public, logger)
			}
		}))
	}

	// a negative step count tells the runner to emit only Done
	steps := cfg.steps
	if steps == 0 {
		steps = -1
	}
	sim.runner = runner.New(runner.Config{Steps: steps, StepInterval: cfg.stepInterval}, pub, logger)

	if cfg.preview {
		sim.hub = preview.NewHub(logger)
		sim.sinks = append([]Sink{sim.hub}, sim.sinks...)
	}

	if cfg.renderer {
		var sink Sink
		switch len(sim.sinks) {
		case 0:
			sink = render.LogSink{Logger: logger}
		case 1:
			sink = sim.sinks[0]
		default:
			sink = render.Multi(sim.sinks...)
		}
		sim.loop = render.NewLoop(sim.channel, sink, logger)
	}

	srvCfg := server.Config{
		Port:         cfg.port,
		Store:        sim.store,
		Channel:      sim.channel,
		Runner:       sim.runner,
		Progress:     sim.progress,
		ChannelStats: sim.channel.Stats,
		Assets:       dashboard.Assets,
		Title:        cfg.title,
		PollInterval: cfg.pollInterval,
		SettleDelay:  cfg.settleDelay,
		Logger:       logger,
	}
	if sim.hub != nil {
		srvCfg.Preview = sim.hub
	}
	if sim.loop != nil {
		srvCfg.Frames = sim.loop.Frames
	}
	sim.server = server.NewServer(srvCfg)

	return sim, nil
}

// buildChannel selects the in-process or Redis broadcast channel.
func (s *Simulator) buildChannel(cfg *simConfig) error {
	if cfg.redis == nil {
		s.channel = broadcast.NewLatest[store.Snapshot](cfg.capacity)
		return nil
	}

	ch, err := redisbus.New[store.Snapshot](&redis.Options{
		Addr:     cfg.redis.Addr,
		Password: cfg.redis.Password,
		DB:       cfg.redis.DB,
	}, redisbus.Options{
		Key:      cfg.redis.Key,
		Capacity: cfg.capacity,
		Timeout:  cfg.redis.Timeout,
		Logger:   s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis channel: %w", err)
	}

	s.redis = ch
	s.closer = ch
	s.channel = broadcast.NewCounting[store.Snapshot](ch)
	return nil
}

// Start serves the API and runs the renderer until ctx is cancelled.
//
// Start is a blocking call. During execution:
//
//   - The HTTP server starts on the configured port
//   - The consumer loop drains the channel every tick (unless disabled)
//   - The initial, all-lit state is published so renderers show the layout
//
// On cancellation the active activation run is interrupted and still ends
// with its final event, then the renderer stops and closable sinks are
// closed.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails
// to start or the simulator was already started.
func (s *Simulator) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("simulator already started")
	}

	s.logger.Info("ledsim starting", "leds", s.store.Len(), "transport", s.transport())
	s.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", s.port))

	// check if context already cancelled
	if ctx.Err() != nil {
		s.shutdown(func() {})
		return nil
	}

	if s.redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		if err := s.redis.Ping(pingCtx); err != nil {
			// updates keep working; every snapshot is dropped until redis is back
			s.logger.Warn("redis unavailable", "key", s.redis.Key(), "error", err)
		}
		cancel()
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if s.loop != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop.Run(loopCtx, s.tick)
		}()
	}

	// cleanup stops the runner first so its final event is published before
	// the stream handlers go away
	cleanup := func() {
		s.shutdown(func() {
			stopLoop()
			wg.Wait()
		})
	}

	if err := s.server.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.channel.TrySend(s.store.Snapshot())

	<-ctx.Done()
	cleanup()
	s.logger.Info("ledsim stopped")
	return nil
}

// shutdown closes the runner, calls stopRenderer, then releases sinks and
// the channel.
func (s *Simulator) shutdown(stopRenderer func()) {
	s.runner.Close()
	stopRenderer()

	if s.hub != nil {
		s.hub.Close()
	}
	for _, sink := range s.sinks {
		c, ok := sink.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			s.logger.Warn("failed to close sink", "error", err)
		}
	}
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			s.logger.Warn("failed to close channel", "error", err)
		}
	}
}

// Update applies LED changes and publishes the new state to the renderer.
//
// Ids outside [0, N) are ignored. It returns how many changes were applied
// and whether the snapshot was accepted by the channel; a full channel drops
// the snapshot without blocking.
func (s *Simulator) Update(changes map[int]bool) (applied int, published bool) {
	applied = s.store.Update(changes)
	published = s.channel.TrySend(s.store.Snapshot())
	if !published {
		s.logger.Debug("snapshot dropped, renderer is behind")
	}
	return applied, published
}

// StartActivation starts an activation run, or asks the active one to stop.
//
// It returns the outcome and the id of the run it refers to.
func (s *Simulator) StartActivation() (ActivationResult, string) {
	result, runID := s.runner.Start()
	return ActivationResult(result), runID
}

// WaitActivation blocks until no activation run is active.
func (s *Simulator) WaitActivation() {
	s.runner.Wait()
}

// Handler returns the HTTP API without binding a port, for embedding the
// simulator in another server or for tests.
func (s *Simulator) Handler() http.Handler {
	return s.server.Handler()
}

// LEDs returns a copy of every LED's current state.
func (s *Simulator) LEDs() []LED {
	return s.store.LEDs()
}

// Activity returns the on/off state of every LED.
func (s *Simulator) Activity() []bool {
	return s.store.Snapshot().Activity
}

// Len returns the number of LEDs.
func (s *Simulator) Len() int {
	return s.store.Len()
}

// Port returns the configured HTTP port.
func (s *Simulator) Port() int {
	return s.port
}

// Frames returns how many snapshots the in-process renderer has drawn.
func (s *Simulator) Frames() uint64 {
	if s.loop == nil {
		return 0
	}
	return s.loop.Frames()
}

// ChannelStats returns the broadcast channel counters.
func (s *Simulator) ChannelStats() (sent, dropped uint64) {
	stats := s.channel.Stats()
	return stats.Sent, stats.Dropped
}

func (s *Simulator) transport() string {
	if s.redis != nil {
		return "redis"
	}
	return "memory"
}

// invokeCallbackSafe calls a progress callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(ProgressEvent), e ProgressEvent, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("progress callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", r,
				"run_id", e.RunID,
			)
		}
	}()
	cb(e)
}
