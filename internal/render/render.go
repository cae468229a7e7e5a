// Package render turns board state into a chat-postable representation.
// The Renderer interface is the seam for richer backends (image rendering);
// the built-in implementation emits monospace text.
package render

import (
	"fmt"
	"strings"

	"github.com/Aireo88/TFBot/internal/game/board"
	"github.com/Aireo88/TFBot/internal/game/packs"
)

// Token is one participant marker on the board.
type Token struct {
	Label string
	Tile  int
}

// Renderer produces a chat representation of a board and its tokens.
type Renderer interface {
	Render(b packs.Board, tokens []Token) (string, error)
}

// markers are assigned to tokens in order.
const markers = "123456789abcdefghijklmnopqrstuvwxyz"

// Text renders boards as a monospace grid with a token legend.
type Text struct{}

// NewText returns the text renderer.
func NewText() *Text {
	return &Text{}
}

// Render draws the grid top row first so the goal reads at the top, marks
// hazard heads with "v" and shortcut bases with "^", and appends a legend
// mapping token markers to labels.
func (t *Text) Render(b packs.Board, tokens []Token) (string, error) {
	if err := b.Validate(); err != nil {
		return "", fmt.Errorf("render board: %w", err)
	}

	markerByTile := make(map[int]string)
	var legend []string
	for i, tok := range tokens {
		if tok.Tile < 1 || tok.Tile > b.Grid.MaxTile() {
			continue
		}
		marker := "?"
		if i < len(markers) {
			marker = string(markers[i])
		}
		// Stacked tokens show the most recent marker only; the legend
		// still lists every token's tile.
		markerByTile[tok.Tile] = marker
		legend = append(legend, fmt.Sprintf("%s=%s (tile %d)", marker, tok.Label, tok.Tile))
	}

	var sb strings.Builder
	for row := b.Grid.Rows; row >= 1; row-- {
		for col := 1; col <= b.Grid.Cols; col++ {
			tile := tileAt(b.Grid, row, col)
			switch {
			case markerByTile[tile] != "":
				fmt.Fprintf(&sb, "[%3s*]", markerByTile[tile])
			case b.Hazards[tile] != 0:
				fmt.Fprintf(&sb, "[%3dv]", tile)
			case b.Shortcuts[tile] != 0:
				fmt.Fprintf(&sb, "[%3d^]", tile)
			default:
				fmt.Fprintf(&sb, "[%3d ]", tile)
			}
		}
		sb.WriteString("\n")
	}
	if len(legend) > 0 {
		sb.WriteString(strings.Join(legend, ", "))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// tileAt returns the tile number at a grid position, honoring the
// alternating row direction.
func tileAt(g board.Grid, row, col int) int {
	base := (row - 1) * g.Cols
	if row%2 == 0 {
		return base + (g.Cols - col + 1)
	}
	return base + col
}
