package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jpalmerr/ledsim/internal/remote"
)

// RunRandomController switches one random LED to a random state every
// interval until ctx is cancelled.
// Call this in a goroutine; it waits for the simulator to come up.
func RunRandomController(ctx context.Context, baseURL string, interval time.Duration, logger *slog.Logger) {
	client := remote.NewClient(baseURL)
	defer client.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// the server may not be listening yet
		if n == 0 {
			var err error
			if n, err = client.NumLEDs(ctx); err != nil {
				logger.Debug("simulator not ready", "error", err)
				continue
			}
			if n == 0 {
				continue
			}
		}

		id := rand.IntN(n)
		on := rand.IntN(2) == 1
		res, err := client.ConfigureLEDs(ctx, map[int]bool{id: on})
		if err != nil {
			logger.Warn("update failed", "led", id, "error", err)
			continue
		}
		logger.Info("led updated", "led", id, "on", on, "published", res.Published)
	}
}
