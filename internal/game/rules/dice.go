package rules

import (
	"errors"
	"math/rand"
)

// ErrInvalidSides indicates a die with fewer than two sides.
var ErrInvalidSides = errors.New("die must have at least two sides")

// Roller produces dice rolls. The zero value is not usable; construct with
// NewRoller so tests can inject a fixed source.
type Roller struct {
	rng *rand.Rand
}

// NewRoller creates a roller from a rand source. A nil source falls back to
// the shared global source.
func NewRoller(rng *rand.Rand) *Roller {
	return &Roller{rng: rng}
}

// Roll returns a uniform value in 1..sides.
func (r *Roller) Roll(sides int) (int, error) {
	if sides < 2 {
		return 0, ErrInvalidSides
	}
	if r == nil || r.rng == nil {
		return rand.Intn(sides) + 1, nil
	}
	return r.rng.Intn(sides) + 1, nil
}
