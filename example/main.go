package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/ledsim"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// 150 LEDs scattered inside a cone, like a string wound round a tree
	sim, err := ledsim.New(
		ledsim.WithPositions(ledsim.ConeLayout(150, 42)...),
		ledsim.WithTitle("Tree Lights"),
		ledsim.WithPort(8080),
		ledsim.WithLogger(logger),
		ledsim.WithActivationSteps(150),
		ledsim.WithStepInterval(50*time.Millisecond),
		ledsim.WithProgressCallback(func(e ledsim.ProgressEvent) {
			if e.Done {
				logger.Info("activation finished", "run_id", e.RunID)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create simulator", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   ledsim Demo                                         ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   • 150 LEDs in a cone layout                         ║")
	fmt.Println("  ║   • a random controller flips one LED per second      ║")
	fmt.Println("  ║   • press Start for an activation run                 ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// drive the simulator over HTTP, as a real controller would (see controller.go)
	go RunRandomController(ctx, "http://localhost:8080", time.Second, logger)

	if err := sim.Start(ctx); err != nil {
		slog.Error("simulator error", "error", err)
		os.Exit(1)
	}
}
