package render

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jpalmerr/ledsim/internal/broadcast"
	"github.com/jpalmerr/ledsim/internal/store"
)

// DefaultTick is the consumer polling interval used when none is given.
const DefaultTick = 100 * time.Millisecond

// Sink is the external renderer driven by the consumer loop.
//
// A Sink decides how to draw: an active LED is drawn in its "on" style and an
// inactive one in its "off" style. Implementations need not be safe for
// concurrent use; the loop calls them from a single goroutine.
type Sink interface {
	// SetPositions replaces the rendered topology.
	SetPositions(positions []store.Position) error

	// SetActivity redraws every LED with the given on/off flags.
	SetActivity(activity []bool) error
}

// Loop drains the broadcast channel on a fixed tick and forwards the newest
// snapshot to a [Sink].
//
// Positions are forwarded once, with the first snapshot received; every
// rendered snapshot forwards its activity. A tick with nothing queued does
// nothing and the sink keeps its last frame.
type Loop struct {
	ch     broadcast.Channel[store.Snapshot]
	sink   Sink
	logger *slog.Logger

	positionsSent bool
	frames        atomic.Uint64
}

// NewLoop creates a consumer loop reading from ch and drawing on sink.
func NewLoop(ch broadcast.Channel[store.Snapshot], sink Sink, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		ch:     ch,
		sink:   sink,
		logger: logger,
	}
}

// Tick performs one drain-and-render step and reports whether a snapshot was
// rendered.
//
// Sink errors are logged and do not stop the loop; the frame still counts as
// rendered.
func (l *Loop) Tick() bool {
	snap, ok := l.ch.DrainLatest()
	if !ok {
		return false
	}

	if !l.positionsSent {
		if err := l.sink.SetPositions(snap.Positions); err != nil {
			l.logger.Warn("sink rejected positions", "leds", len(snap.Positions), "error", err)
		}
		l.positionsSent = true
	}

	if err := l.sink.SetActivity(snap.Activity); err != nil {
		l.logger.Warn("sink rejected activity", "leds", len(snap.Activity), "error", err)
	}

	l.frames.Add(1)
	return true
}

// Run calls [Loop.Tick] every interval until ctx is cancelled.
//
// Run blocks. A non-positive interval falls back to [DefaultTick].
func (l *Loop) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTick
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Debug("render loop started", "tick", interval.String())
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("render loop stopped", "frames", l.frames.Load())
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Frames returns the number of snapshots rendered so far.
func (l *Loop) Frames() uint64 {
	return l.frames.Load()
}

// multiSink fans every call out to several sinks.
type multiSink []Sink

// Multi returns a [Sink] that forwards to each of sinks in order.
//
// All sinks are called even when one fails; the errors are joined.
func Multi(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return multiSink(sinks)
}

func (m multiSink) SetPositions(positions []store.Position) error {
	var errs []error
	for _, s := range m {
		if err := s.SetPositions(positions); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiSink) SetActivity(activity []bool) error {
	var errs []error
	for _, s := range m {
		if err := s.SetActivity(activity); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes every frame to a logger at debug level.
//
// It is the sink used when no visual output is configured.
type LogSink struct {
	Logger *slog.Logger
}

// SetPositions logs the topology size.
func (s LogSink) SetPositions(positions []store.Position) error {
	s.logger().Debug("topology received", "leds", len(positions))
	return nil
}

// SetActivity logs the number of lit LEDs.
func (s LogSink) SetActivity(activity []bool) error {
	lit := 0
	for _, on := range activity {
		if on {
			lit++
		}
	}
	s.logger().Debug("frame rendered", "leds", len(activity), "lit", lit)
	return nil
}

func (s LogSink) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
