package broadcast

import "sync/atomic"

// DefaultCapacity is the buffer size used when a non-positive capacity is given.
const DefaultCapacity = 4

// Channel moves values from one producer to one consumer without blocking
// either side.
//
// TrySend never blocks: when the buffer is full the value is discarded and
// false is returned. DrainLatest never blocks: it empties the buffer and
// returns only the most recent value, or false when nothing was queued.
type Channel[T any] interface {
	TrySend(v T) bool
	DrainLatest() (T, bool)
}

// Stats is a point-in-time copy of a channel's counters.
type Stats struct {
	// Sent counts values accepted by TrySend.
	Sent uint64 `json:"sent"`

	// Dropped counts values rejected by TrySend because the buffer was full.
	Dropped uint64 `json:"dropped"`

	// Drained counts DrainLatest calls that returned a value.
	Drained uint64 `json:"drained"`

	// Coalesced counts accepted values that were discarded by DrainLatest in
	// favour of a newer one.
	Coalesced uint64 `json:"coalesced"`
}

// counters is embedded by channel implementations to track [Stats].
type counters struct {
	sent      atomic.Uint64
	dropped   atomic.Uint64
	drained   atomic.Uint64
	coalesced atomic.Uint64
}

func (c *counters) stats() Stats {
	return Stats{
		Sent:      c.sent.Load(),
		Dropped:   c.dropped.Load(),
		Drained:   c.drained.Load(),
		Coalesced: c.coalesced.Load(),
	}
}

// Latest is the in-process [Channel] backed by a buffered Go channel.
//
// Latest is safe for one producer and one consumer running concurrently
// without external locking.
type Latest[T any] struct {
	ch chan T
	counters
}

// NewLatest creates a [Latest] channel holding at most capacity values.
//
// A capacity below 1 falls back to [DefaultCapacity].
func NewLatest[T any](capacity int) *Latest[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Latest[T]{ch: make(chan T, capacity)}
}

// TrySend enqueues v if there is room and reports whether it was accepted.
func (l *Latest[T]) TrySend(v T) bool {
	select {
	case l.ch <- v:
		l.sent.Add(1)
		return true
	default:
		l.dropped.Add(1)
		return false
	}
}

// DrainLatest removes every queued value and returns the newest one.
func (l *Latest[T]) DrainLatest() (T, bool) {
	var (
		latest T
		n      uint64
	)
drain:
	for {
		select {
		case v := <-l.ch:
			latest = v
			n++
		default:
			break drain
		}
	}

	if n == 0 {
		return latest, false
	}
	l.drained.Add(1)
	l.coalesced.Add(n - 1)
	return latest, true
}

// Len returns the number of values currently buffered.
func (l *Latest[T]) Len() int {
	return len(l.ch)
}

// Cap returns the buffer capacity.
func (l *Latest[T]) Cap() int {
	return cap(l.ch)
}

// Stats returns the channel counters.
func (l *Latest[T]) Stats() Stats {
	return l.stats()
}

// Counting wraps any [Channel] with [Stats] accounting.
//
// It is used around transports that do not count for themselves, such as the
// Redis-backed channel. Coalesced values cannot be observed through the
// interface and are not counted.
type Counting[T any] struct {
	inner Channel[T]
	counters
}

// NewCounting wraps inner.
func NewCounting[T any](inner Channel[T]) *Counting[T] {
	return &Counting[T]{inner: inner}
}

// TrySend forwards to the wrapped channel.
func (c *Counting[T]) TrySend(v T) bool {
	if c.inner.TrySend(v) {
		c.sent.Add(1)
		return true
	}
	c.dropped.Add(1)
	return false
}

// DrainLatest forwards to the wrapped channel.
func (c *Counting[T]) DrainLatest() (T, bool) {
	v, ok := c.inner.DrainLatest()
	if ok {
		c.drained.Add(1)
	}
	return v, ok
}

// Stats returns the wrapper counters.
func (c *Counting[T]) Stats() Stats {
	return c.stats()
}
