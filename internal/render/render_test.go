package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/ledsim/internal/broadcast"
	"github.com/jpalmerr/ledsim/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSink captures every call made by the loop.
type recordingSink struct {
	mu            sync.Mutex
	positionCalls [][]store.Position
	activityCalls [][]bool
	err           error
}

func (r *recordingSink) SetPositions(positions []store.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positionCalls = append(r.positionCalls, positions)
	return r.err
}

func (r *recordingSink) SetActivity(activity []bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activityCalls = append(r.activityCalls, activity)
	return r.err
}

func (r *recordingSink) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positionCalls), len(r.activityCalls)
}

func snapshot(activity ...bool) store.Snapshot {
	positions := make([]store.Position, len(activity))
	for i := range positions {
		positions[i] = store.Position{float64(i), 0}
	}
	return store.Snapshot{Positions: positions, Activity: activity}
}

func TestLoop_TickEmpty(t *testing.T) {
	sink := &recordingSink{}
	loop := NewLoop(broadcast.NewLatest[store.Snapshot](4), sink, testLogger())

	assert.False(t, loop.Tick())

	p, a := sink.counts()
	assert.Zero(t, p)
	assert.Zero(t, a)
	assert.Zero(t, loop.Frames())
}

func TestLoop_RendersOnlyLatest(t *testing.T) {
	ch := broadcast.NewLatest[store.Snapshot](4)
	sink := &recordingSink{}
	loop := NewLoop(ch, sink, testLogger())

	ch.TrySend(snapshot(true, true))
	ch.TrySend(snapshot(false, true))
	ch.TrySend(snapshot(false, false))

	require.True(t, loop.Tick())

	require.Len(t, sink.activityCalls, 1)
	assert.Equal(t, []bool{false, false}, sink.activityCalls[0])
}

func TestLoop_PositionsForwardedOnce(t *testing.T) {
	ch := broadcast.NewLatest[store.Snapshot](4)
	sink := &recordingSink{}
	loop := NewLoop(ch, sink, testLogger())

	ch.TrySend(snapshot(true, false))
	require.True(t, loop.Tick())
	ch.TrySend(snapshot(false, true))
	require.True(t, loop.Tick())

	p, a := sink.counts()
	assert.Equal(t, 1, p, "positions are only sent with the first snapshot")
	assert.Equal(t, 2, a)
	assert.Equal(t, uint64(2), loop.Frames())
}

func TestLoop_SinkErrorDoesNotStopLoop(t *testing.T) {
	ch := broadcast.NewLatest[store.Snapshot](4)
	sink := &recordingSink{err: errors.New("display unplugged")}
	loop := NewLoop(ch, sink, testLogger())

	ch.TrySend(snapshot(true))
	assert.True(t, loop.Tick())

	ch.TrySend(snapshot(false))
	assert.True(t, loop.Tick())

	_, a := sink.counts()
	assert.Equal(t, 2, a)
}

func TestLoop_Run(t *testing.T) {
	ch := broadcast.NewLatest[store.Snapshot](4)
	sink := &recordingSink{}
	loop := NewLoop(ch, sink, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	ch.TrySend(snapshot(true, false, true))

	require.Eventually(t, func() bool {
		_, a := sink.counts()
		return a == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestMulti(t *testing.T) {
	t.Run("single sink is returned as is", func(t *testing.T) {
		s := &recordingSink{}
		assert.Same(t, s, Multi(s))
	})

	t.Run("forwards to all and joins errors", func(t *testing.T) {
		ok := &recordingSink{}
		bad := &recordingSink{err: errors.New("boom")}
		m := Multi(bad, ok)

		err := m.SetActivity([]bool{true})
		assert.ErrorContains(t, err, "boom")
		assert.NoError(t, Multi(ok, &recordingSink{}).SetPositions(nil))

		_, a := ok.counts()
		assert.Equal(t, 1, a, "a failing sink must not hide later sinks")
	})
}

func TestLogSink(t *testing.T) {
	s := LogSink{Logger: testLogger()}
	assert.NoError(t, s.SetPositions([]store.Position{{0, 0}}))
	assert.NoError(t, s.SetActivity([]bool{true, false}))

	// zero value falls back to the default logger
	assert.NoError(t, LogSink{}.SetActivity(nil))
}
