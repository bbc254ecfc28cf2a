package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/ledsim/internal/progress"
	"github.com/jpalmerr/ledsim/internal/remote"
)

const defaultURL = "http://localhost:8080"

var (
	stepColor = color.New(color.FgCyan)
	doneColor = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
)

// tailCmd follows the activation progress stream of a running simulator.
var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow activation progress",
	Long: `Follow the /events progress stream of a running simulator.

Each activation step is printed as it arrives. The command exits after the
run's Done event unless --follow is set. With --start, a run is started once
the stream is open.

Set NO_COLOR to disable colored output.

Example:
  ledsim tail --start
  ledsim tail --url http://raspberrypi:8080 --follow`,
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)

	tailCmd.Flags().String("url", defaultURL, "simulator base URL")
	tailCmd.Flags().Bool("start", false, "start an activation run after connecting")
	tailCmd.Flags().Bool("follow", false, "keep following after a run is done")
}

func runTail(cmd *cobra.Command, args []string) error {
	url, _ := cmd.Flags().GetString("url")
	start, _ := cmd.Flags().GetBool("start")
	follow, _ := cmd.Flags().GetBool("follow")

	client := remote.NewClient(url)
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := tail(ctx, client, os.Stdout, start, follow)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// tail prints progress events to w until a run is done, or until ctx is
// cancelled when follow is set.
func tail(ctx context.Context, client *remote.Client, w io.Writer, start, follow bool) error {
	var connected func(context.Context) error
	if start {
		connected = func(ctx context.Context) error {
			res, err := client.Start(ctx)
			if err != nil {
				return fmt.Errorf("failed to start run: %w", err)
			}
			printStart(w, res)
			return nil
		}
	}

	for {
		err := client.Follow(ctx, connected, func(e progress.Event) error {
			printEvent(w, e)
			return nil
		})
		if err != nil {
			return err
		}
		if !follow {
			return nil
		}
		// only the first connection starts a run
		connected = nil
	}
}

func printStart(w io.Writer, res remote.StartResult) {
	if res.Status == "already_running" {
		_, _ = warnColor.Fprintf(w, "run %s was already running, cancelling it\n", res.RunID)
		return
	}
	_, _ = fmt.Fprintf(w, "started run %s\n", res.RunID)
}

func printEvent(w io.Writer, e progress.Event) {
	if e.IsDone() {
		_, _ = doneColor.Fprintf(w, "run %s done\n", shortID(e.RunID))
		return
	}
	_, _ = stepColor.Fprintf(w, "step %d", e.Index)
	_, _ = fmt.Fprintf(w, "  run %s\n", shortID(e.RunID))
}

func shortID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
