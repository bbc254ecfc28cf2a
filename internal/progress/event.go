package progress

import "fmt"

// Kind distinguishes step events from the terminal event of a run.
type Kind string

const (
	// KindIndex marks a completed activation step.
	KindIndex Kind = "index"

	// KindDone marks the end of a run. It is always the last event of a run.
	KindDone Kind = "done"
)

// Event is a single progress notification produced by the activation runner.
type Event struct {
	// Kind is either KindIndex or KindDone.
	Kind Kind `json:"type"`

	// Index is the step number for KindIndex events.
	Index int `json:"index"`

	// RunID identifies the activation run that produced the event.
	RunID string `json:"run_id,omitempty"`
}

// Index returns a step event for run.
func Index(runID string, i int) Event {
	return Event{Kind: KindIndex, Index: i, RunID: runID}
}

// Done returns the terminal event for run.
func Done(runID string) Event {
	return Event{Kind: KindDone, RunID: runID}
}

// IsDone reports whether e terminates a run.
func (e Event) IsDone() bool {
	return e.Kind == KindDone
}

// String implements fmt.Stringer.
func (e Event) String() string {
	if e.IsDone() {
		return "Done"
	}
	return fmt.Sprintf("Index(%d)", e.Index)
}

// Publisher accepts events from the runner. Publish must not block.
type Publisher interface {
	Publish(e Event)
}

// Reader pops events for one stream consumer.
type Reader interface {
	// Poll removes and returns the oldest pending event, if any.
	Poll() (Event, bool)

	// Close releases the reader. Further Poll calls return nothing.
	Close()
}

// Source hands out readers to stream handlers.
type Source interface {
	Subscribe() Reader
}

// PublisherFunc adapts a function to [Publisher].
type PublisherFunc func(Event)

// Publish calls f(e).
func (f PublisherFunc) Publish(e Event) {
	f(e)
}

// tee publishes to several publishers in order.
type tee []Publisher

// Tee returns a [Publisher] that forwards each event to every non-nil pub.
func Tee(pubs ...Publisher) Publisher {
	out := make(tee, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (t tee) Publish(e Event) {
	for _, p := range t {
		p.Publish(e)
	}
}
