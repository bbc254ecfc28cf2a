package store

import (
	"sync"
)

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore holds the positions and activity flags of a fixed set of LEDs
// behind a read/write mutex. Every LED starts switched on. Update only mutates
// state; publishing the resulting snapshot is the caller's job.
type MemoryStore struct {
	mu        sync.RWMutex
	positions []Position
	activity  []bool
}

// NewMemoryStore creates a [MemoryStore] with one LED per position.
//
// The positions are copied, so later changes to the argument do not affect
// the store.
func NewMemoryStore(positions []Position) *MemoryStore {
	cp := make([]Position, len(positions))
	activity := make([]bool, len(positions))
	for i, p := range positions {
		cp[i] = p.Clone()
		activity[i] = true
	}

	return &MemoryStore{
		positions: cp,
		activity:  activity,
	}
}

// Update applies the given changes and returns how many were in range.
//
// Changes for ids outside [0, N) are skipped silently. Unmentioned LEDs keep
// their current state.
func (m *MemoryStore) Update(changes map[int]bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	applied := 0
	for id, on := range changes {
		if id < 0 || id >= len(m.activity) {
			continue
		}
		m.activity[id] = on
		applied++
	}
	return applied
}

// Snapshot returns a deep copy of the current state.
func (m *MemoryStore) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Snapshot{
		Positions: m.copyPositions(),
		Activity:  append([]bool(nil), m.activity...),
	}
}

// Len returns the LED count.
func (m *MemoryStore) Len() int {
	// positions are never resized, no lock needed
	return len(m.positions)
}

// Positions returns a copy of the LED positions.
func (m *MemoryStore) Positions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyPositions()
}

// LEDs returns every LED with its current state, ordered by id.
func (m *MemoryStore) LEDs() []LED {
	m.mu.RLock()
	defer m.mu.RUnlock()

	leds := make([]LED, len(m.activity))
	for i := range m.activity {
		leds[i] = LED{ID: i, Position: m.positions[i].Clone(), On: m.activity[i]}
	}
	return leds
}

func (m *MemoryStore) copyPositions() []Position {
	cp := make([]Position, len(m.positions))
	for i, p := range m.positions {
		cp[i] = p.Clone()
	}
	return cp
}
