package progress

import "sync"

// Outbox is an unbounded FIFO of events shared by every reader.
//
// Each event is delivered to exactly one Poll call. When several stream
// handlers read the same Outbox they compete for events, so each sees an
// order-preserving subsequence rather than the whole run. Use [Fanout] when
// every reader needs the full stream.
type Outbox struct {
	mu     sync.Mutex
	events []Event
}

// NewOutbox creates an empty [Outbox].
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Publish appends e.
func (o *Outbox) Publish(e Event) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
}

// Poll pops the oldest event.
func (o *Outbox) Poll() (Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.events) == 0 {
		return Event{}, false
	}
	e := o.events[0]
	o.events[0] = Event{}
	o.events = o.events[1:]
	if len(o.events) == 0 {
		// drop the backing array so a long session does not pin it
		o.events = nil
	}
	return e, true
}

// Len returns the number of pending events.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}

// Subscribe returns a reader over the shared queue.
func (o *Outbox) Subscribe() Reader {
	return &outboxReader{outbox: o}
}

type outboxReader struct {
	mu     sync.Mutex
	outbox *Outbox
	closed bool
}

func (r *outboxReader) Poll() (Event, bool) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return Event{}, false
	}
	return r.outbox.Poll()
}

func (r *outboxReader) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}
