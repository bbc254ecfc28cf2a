package ledsim

import (
	"math"
	"math/rand/v2"
)

const (
	// defaultColumns is the row width used by [WithLEDCount].
	defaultColumns = 10

	coneHeight = 2.5
)

// GridLayout places n LEDs on a flat grid, left to right and then top to
// bottom, one unit apart.
//
// LED i sits at (i % columns, i / columns). A non-positive column count is
// treated as 1.
func GridLayout(n, columns int) []Position {
	if n <= 0 {
		return nil
	}
	if columns <= 0 {
		columns = 1
	}

	positions := make([]Position, n)
	for i := range positions {
		positions[i] = Position{float64(i % columns), float64(i / columns)}
	}
	return positions
}

// ConeLayout scatters n LEDs inside a cone, like lights wrapped around a tree.
//
// The cone stands on the z=0 plane with a base radius of 1 and a height of
// 2.5. The same seed always produces the same layout.
func ConeLayout(n int, seed uint64) []Position {
	if n <= 0 {
		return nil
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	positions := make([]Position, n)
	for i := range positions {
		z := rng.Float64() * coneHeight
		maxRadius := 1 - z/coneHeight
		// sqrt keeps the points uniform over the disc
		r := maxRadius * math.Sqrt(rng.Float64())
		theta := rng.Float64() * 2 * math.Pi
		positions[i] = Position{r * math.Cos(theta), r * math.Sin(theta), z}
	}
	return positions
}

// validPosition reports whether p has two or three finite coordinates.
func validPosition(p Position) bool {
	if len(p) != 2 && len(p) != 3 {
		return false
	}
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
