package progress

import "sync"

// Fanout delivers every event to every registered reader.
//
// Each reader has its own queue, filled from the moment it subscribes. A
// reader only sees events published after Subscribe returned. Closed readers
// are unregistered and their queue is released.
type Fanout struct {
	mu      sync.Mutex
	readers map[*fanoutReader]struct{}
}

// NewFanout creates a [Fanout] with no readers.
func NewFanout() *Fanout {
	return &Fanout{readers: make(map[*fanoutReader]struct{})}
}

// Publish appends e to every reader's queue.
func (f *Fanout) Publish(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for r := range f.readers {
		r.push(e)
	}
}

// Subscribe registers a new reader.
func (f *Fanout) Subscribe() Reader {
	r := &fanoutReader{parent: f}
	f.mu.Lock()
	f.readers[r] = struct{}{}
	f.mu.Unlock()
	return r
}

// Readers returns the number of registered readers.
func (f *Fanout) Readers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readers)
}

func (f *Fanout) remove(r *fanoutReader) {
	f.mu.Lock()
	delete(f.readers, r)
	f.mu.Unlock()
}

type fanoutReader struct {
	parent *Fanout
	queue  Outbox
	once   sync.Once
}

func (r *fanoutReader) push(e Event) {
	r.queue.Publish(e)
}

func (r *fanoutReader) Poll() (Event, bool) {
	return r.queue.Poll()
}

func (r *fanoutReader) Close() {
	r.once.Do(func() {
		r.parent.remove(r)
		// drain anything left so the queue can be collected
		for {
			if _, ok := r.queue.Poll(); !ok {
				return
			}
		}
	})
}
