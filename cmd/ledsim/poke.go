package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/ledsim/internal/remote"
)

// pokeCmd sends random LED updates, like a controller under test would.
var pokeCmd = &cobra.Command{
	Use:   "poke",
	Short: "Send random LED updates",
	Long: `Switch a random LED on or off at a fixed interval.

This is a small stand-in for a light controller: it asks the simulator how
many LEDs it has, then sends one random change per interval until
interrupted or until --count updates were sent.

Example:
  ledsim poke
  ledsim poke --url http://raspberrypi:8080 --interval 200ms --count 50`,
	RunE: runPoke,
}

func init() {
	rootCmd.AddCommand(pokeCmd)

	pokeCmd.Flags().String("url", defaultURL, "simulator base URL")
	pokeCmd.Flags().Duration("interval", time.Second, "pause between updates")
	pokeCmd.Flags().Int("count", 0, "number of updates to send (0 means until interrupted)")
	pokeCmd.Flags().Uint64("seed", 0, "random seed (0 picks one)")
}

func runPoke(cmd *cobra.Command, args []string) error {
	url, _ := cmd.Flags().GetString("url")
	interval, _ := cmd.Flags().GetDuration("interval")
	count, _ := cmd.Flags().GetInt("count")
	seed, _ := cmd.Flags().GetUint64("seed")

	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	if count < 0 {
		return fmt.Errorf("count cannot be negative, got %d", count)
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	client := remote.NewClient(url)
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewPCG(seed, seed))
	err := poke(ctx, client, rng, os.Stdout, count, interval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// poke sends count random updates, one per interval. A count of 0 runs until
// ctx is cancelled.
func poke(ctx context.Context, client *remote.Client, rng *rand.Rand, w io.Writer, count int, interval time.Duration) error {
	n, err := client.NumLEDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to get LED count: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("simulator reports %d LEDs", n)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for sent := 0; count == 0 || sent < count; sent++ {
		id := rng.IntN(n)
		on := rng.IntN(2) == 1

		res, err := client.ConfigureLEDs(ctx, map[int]bool{id: on})
		if err != nil {
			return fmt.Errorf("failed to update LED %d: %w", id, err)
		}

		state := "off"
		if on {
			state = "on"
		}
		_, _ = fmt.Fprintf(w, "led %d %s (published: %t)\n", id, state, res.Published)

		if count != 0 && sent == count-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
