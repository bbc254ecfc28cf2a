package ledsim

import (
	"github.com/jpalmerr/ledsim/internal/progress"
	"github.com/jpalmerr/ledsim/internal/render"
	"github.com/jpalmerr/ledsim/internal/runner"
	"github.com/jpalmerr/ledsim/internal/store"
)

// Position is the fixed coordinate of one LED: two or three values.
type Position = store.Position

// LED is the state of a single indicator.
type LED = store.LED

// Sink renders snapshots drained by the consumer loop.
//
// SetPositions is called once with the first snapshot; SetActivity is called
// for every rendered snapshot. A Sink that also implements io.Closer is closed
// when the simulator stops.
type Sink = render.Sink

// ActivationResult is the outcome of [Simulator.StartActivation].
type ActivationResult string

const (
	// ActivationStarted means a new run was started.
	ActivationStarted ActivationResult = ActivationResult(runner.Success)

	// ActivationAlreadyRunning means a run was in progress; the call asked it
	// to stop instead.
	ActivationAlreadyRunning ActivationResult = ActivationResult(runner.AlreadyRunning)

	// ActivationClosed means the simulator has stopped.
	ActivationClosed ActivationResult = ActivationResult(runner.Closed)
)

// String returns the string representation of the result.
func (r ActivationResult) String() string {
	return string(r)
}

// ProgressEvent is one notification from an activation run.
//
// Every run produces Index 0, 1, ... in order and ends with exactly one event
// where Done is true, including runs that were cancelled.
type ProgressEvent struct {
	// RunID identifies the run.
	RunID string

	// Index is the completed step. Zero when Done is true.
	Index int

	// Done marks the last event of a run.
	Done bool
}

func toProgressEvent(e progress.Event) ProgressEvent {
	return ProgressEvent{
		RunID: e.RunID,
		Index: e.Index,
		Done:  e.IsDone(),
	}
}
