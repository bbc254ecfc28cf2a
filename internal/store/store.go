package store

// Position is the spatial location of an LED.
//
// A Position holds either 2 (x, y) or 3 (x, y, z) coordinates. Positions are
// fixed at store construction; callers receive copies.
type Position []float64

// Clone returns a copy of the position.
func (p Position) Clone() Position {
	if p == nil {
		return nil
	}
	return append(Position(nil), p...)
}

// LED is a single addressable indicator.
type LED struct {
	// ID is the LED index in [0, N).
	ID int `json:"id"`

	// Position is the LED's fixed location.
	Position Position `json:"position"`

	// On is the current activity flag.
	On bool `json:"on"`
}

// Snapshot is a point-in-time view of every LED.
//
// Positions and Activity are parallel slices of length N, indexed by LED id.
// A Snapshot never aliases store memory, so it is safe to hand to another
// goroutine or encode for another process.
type Snapshot struct {
	Positions []Position `json:"positions" msgpack:"positions"`
	Activity  []bool     `json:"activity" msgpack:"activity"`
}

// Len returns the number of LEDs in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Activity)
}

// Store defines the LED state operations used by the HTTP layer.
//
// Implementations must be safe for concurrent access. The LED count is fixed
// at construction.
type Store interface {
	// Update applies a batch of id -> on/off changes. Ids outside [0, N) are
	// ignored. Returns the number of changes applied.
	Update(changes map[int]bool) int

	// Snapshot returns a consistent copy of all positions and activity flags.
	Snapshot() Snapshot

	// Len returns N.
	Len() int

	// Positions returns a copy of the LED positions indexed by id.
	Positions() []Position
}
