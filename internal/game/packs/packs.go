// Package packs loads board definitions for the game types the bot can run.
// Definitions are Lua scripts, one per game type, loaded once at startup into
// an immutable catalog. A broken script is a rule-plugin failure: it is
// logged and skipped, never fatal.
package packs

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Aireo88/TFBot/internal/game/board"
)

var (
	// ErrUnknownBoard indicates no board definition exists for a tag.
	ErrUnknownBoard = errors.New("unknown board definition")
)

// Board is the full static configuration for one board game type.
type Board struct {
	Name string

	Grid     board.Grid
	GoalTile int
	// StartTile is where participants are placed on first join.
	StartTile int
	// DiceSides configures the die used by act().
	DiceSides int

	// Hazards move a landing participant down to a fixed target, shortcuts
	// move them up. A redirection applies once per landing and never chains.
	Hazards   map[int]int
	Shortcuts map[int]int

	// Annotations attach informational labels to tiles. They are reported
	// in move responses but never applied automatically; the operator
	// triggers their effects manually.
	Annotations map[int]string
}

// Validate checks a board definition for internal consistency.
func (b Board) Validate() error {
	if err := b.Grid.Validate(); err != nil {
		return fmt.Errorf("board %q: %w", b.Name, err)
	}
	maxTile := b.Grid.MaxTile()
	if b.GoalTile < 1 || b.GoalTile > maxTile {
		return fmt.Errorf("board %q: goal tile %d outside 1..%d", b.Name, b.GoalTile, maxTile)
	}
	if b.StartTile < 1 || b.StartTile > maxTile {
		return fmt.Errorf("board %q: start tile %d outside 1..%d", b.Name, b.StartTile, maxTile)
	}
	if b.DiceSides < 2 {
		return fmt.Errorf("board %q: dice sides %d below 2", b.Name, b.DiceSides)
	}
	for from, to := range b.Hazards {
		if to >= from {
			return fmt.Errorf("board %q: hazard %d->%d must move down", b.Name, from, to)
		}
		if from < 1 || from > maxTile || to < 1 {
			return fmt.Errorf("board %q: hazard %d->%d outside board", b.Name, from, to)
		}
	}
	for from, to := range b.Shortcuts {
		if to <= from {
			return fmt.Errorf("board %q: shortcut %d->%d must move up", b.Name, from, to)
		}
		if from < 1 || to > maxTile {
			return fmt.Errorf("board %q: shortcut %d->%d outside board", b.Name, from, to)
		}
		if _, clash := b.Hazards[from]; clash {
			return fmt.Errorf("board %q: tile %d is both hazard and shortcut", b.Name, from)
		}
	}
	return nil
}

// DefaultSnakesBoard is the built-in classic 10x10 board used when no pack
// overrides the snakes_ladders game type.
func DefaultSnakesBoard() Board {
	return Board{
		Name:      "snakes_ladders",
		Grid:      board.Grid{Rows: 10, Cols: 10},
		GoalTile:  100,
		StartTile: 1,
		DiceSides: 6,
		Hazards: map[int]int{
			16: 6, 47: 26, 49: 11, 56: 53, 62: 19,
			64: 60, 87: 24, 93: 73, 95: 75, 98: 78,
		},
		Shortcuts: map[int]int{
			4: 14, 9: 31, 20: 38, 28: 84, 40: 59,
			51: 67, 63: 81, 71: 91,
		},
	}
}

// Catalog is the immutable set of loaded board definitions.
type Catalog struct {
	boards map[string]Board
}

// NewCatalog builds a catalog from validated boards.
func NewCatalog(boards ...Board) (*Catalog, error) {
	c := &Catalog{boards: make(map[string]Board, len(boards))}
	for _, b := range boards {
		if err := b.Validate(); err != nil {
			return nil, err
		}
		c.boards[b.Name] = b
	}
	return c, nil
}

// Board returns the definition for a game type.
func (c *Catalog) Board(gameType string) (Board, error) {
	if c == nil {
		return Board{}, fmt.Errorf("%w: %q", ErrUnknownBoard, gameType)
	}
	b, ok := c.boards[gameType]
	if !ok {
		return Board{}, fmt.Errorf("%w: %q", ErrUnknownBoard, gameType)
	}
	return b, nil
}

// Has reports whether a game type has a board definition.
func (c *Catalog) Has(gameType string) bool {
	if c == nil {
		return false
	}
	_, ok := c.boards[gameType]
	return ok
}

// Boards lists every loaded board definition, sorted by name.
func (c *Catalog) Boards() []Board {
	if c == nil {
		return nil
	}
	out := make([]Board, 0, len(c.boards))
	for _, b := range c.boards {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
