// Package ledsim provides an embeddable simulator for an addressable array of
// indicator LEDs driven by remote commands.
//
// A [Simulator] keeps the on/off state of N LEDs at fixed positions. Every
// update publishes a snapshot to a renderer over a latest-value channel: a
// slow renderer never blocks the update path, intermediate snapshots may be
// skipped, and the renderer always converges on the newest state. Separately,
// a cancellable activation task emits numbered progress steps that clients
// follow as a Server-Sent Events stream.
//
// # Quick Start
//
//	sim, _ := ledsim.New(ledsim.WithLEDCount(100))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	sim.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// ledsim uses the functional options pattern for configuration:
//
//	sim, err := ledsim.New(
//	    ledsim.WithPositions(ledsim.ConeLayout(200, 42)...),
//	    ledsim.WithPort(9090),
//	    ledsim.WithActivationSteps(50),
//	    ledsim.WithStepInterval(200 * time.Millisecond),
//	    ledsim.WithProgressCallback(func(e ledsim.ProgressEvent) {
//	        if e.Done {
//	            log.Printf("run %s finished", e.RunID)
//	        }
//	    }),
//	)
//
// For YAML-based configuration, see the config package and the ledsim
// command:
//
//	ledsim serve -c ledsim.yaml
//	ledsim render -c ledsim.yaml   # renderer in its own process (Redis channel)
//	ledsim tail --start            # follow an activation run
//
// # HTTP API
//
//   - POST /configure_leds: {"<id>": bool} changes; unknown ids are ignored
//   - GET /start: starts an activation run; a second call stops it early
//   - GET /events: activation progress as Server-Sent Events, ending after
//     the run's final event
//   - GET /get_num_leds, /get_saved_led_positions, /api/state, /health
//   - GET /: the embedded dashboard with a live preview
//
// # Architecture
//
// ledsim consists of several internal packages (under internal/):
//
//   - internal/store: LED state with point-in-time snapshots
//   - internal/broadcast: the in-process latest-value channel
//   - internal/redisbus: the same channel contract over Redis
//   - internal/render: the consumer loop feeding renderers
//   - internal/preview, internal/strip: websocket and LED strip renderers
//   - internal/runner, internal/progress: activation runs and their events
//   - internal/server: HTTP API with Server-Sent Events
//   - dashboard: Embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package ledsim
