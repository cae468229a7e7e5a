// Package board implements the boustrophedon tile numbering shared by the
// board games: tile 1 sits at the bottom-left corner, odd rows run
// left-to-right, even rows run right-to-left.
package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrTileOutOfRange indicates a tile number outside 1..rows*cols.
	ErrTileOutOfRange = errors.New("tile number out of range")
	// ErrInvalidCoordinate indicates a coordinate that does not parse or
	// does not fit the grid.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrInvalidGrid indicates non-positive grid dimensions.
	ErrInvalidGrid = errors.New("grid dimensions must be positive")
)

// Grid describes a rectangular board. Columns are lettered A.. from the left,
// rows are numbered 1.. from the bottom.
type Grid struct {
	Rows int
	Cols int
}

// Validate reports whether the grid dimensions are usable. Column count is
// capped at 26 so every column fits a single letter.
func (g Grid) Validate() error {
	if g.Rows < 1 || g.Cols < 1 || g.Cols > 26 {
		return ErrInvalidGrid
	}
	return nil
}

// MaxTile returns the highest tile number on the grid.
func (g Grid) MaxTile() int {
	return g.Rows * g.Cols
}

// TileToCoordinate converts a tile number to its alphanumeric coordinate.
// Row = ceil(tile/cols); odd rows run low-to-high column, even rows run
// high-to-low.
func (g Grid) TileToCoordinate(tile int) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	if tile < 1 || tile > g.MaxTile() {
		return "", fmt.Errorf("%w: %d", ErrTileOutOfRange, tile)
	}

	row := ((tile - 1) / g.Cols) + 1
	posInRow := ((tile - 1) % g.Cols) + 1

	column := posInRow
	if row%2 == 0 {
		column = g.Cols - posInRow + 1
	}

	return fmt.Sprintf("%c%d", 'A'+column-1, row), nil
}

// CoordinateToTile converts an alphanumeric coordinate back to its tile
// number. It is the exact left inverse of TileToCoordinate for every valid
// tile.
func (g Grid) CoordinateToTile(coord string) (int, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}

	column, row, err := ParseCoordinate(coord)
	if err != nil {
		return 0, err
	}
	if column > g.Cols || row > g.Rows {
		return 0, fmt.Errorf("%w: %s exceeds %dx%d grid", ErrInvalidCoordinate, coord, g.Rows, g.Cols)
	}

	posInRow := column
	if row%2 == 0 {
		posInRow = g.Cols - column + 1
	}

	return (row-1)*g.Cols + posInRow, nil
}

// ParseCoordinate splits an alphanumeric coordinate like "C7" into its
// 1-indexed column and row. Case-insensitive; whitespace is trimmed.
func ParseCoordinate(coord string) (column, row int, err error) {
	trimmed := strings.TrimSpace(coord)
	if len(trimmed) < 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, coord)
	}

	letter := unicode.ToUpper(rune(trimmed[0]))
	if letter < 'A' || letter > 'Z' {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, coord)
	}

	row, convErr := strconv.Atoi(trimmed[1:])
	if convErr != nil || row < 1 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, coord)
	}

	return int(letter-'A') + 1, row, nil
}
