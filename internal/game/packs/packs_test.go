package packs

import (
	"errors"
	"strings"
	"testing"

	"github.com/Aireo88/TFBot/internal/game/board"
)

func TestDefaultSnakesBoardValid(t *testing.T) {
	b := DefaultSnakesBoard()
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if b.GoalTile != 100 || b.StartTile != 1 || b.DiceSides != 6 {
		t.Errorf("classic board = goal=%d start=%d dice=%d", b.GoalTile, b.StartTile, b.DiceSides)
	}
}

func TestBoardValidate(t *testing.T) {
	base := func() Board {
		return Board{
			Name:      "test",
			Grid:      board.Grid{Rows: 3, Cols: 3},
			GoalTile:  9,
			StartTile: 1,
			DiceSides: 6,
		}
	}

	cases := []struct {
		name    string
		mutate  func(*Board)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(b *Board) {},
		},
		{
			name:    "goal outside grid",
			mutate:  func(b *Board) { b.GoalTile = 10 },
			wantErr: "goal tile",
		},
		{
			name:    "start outside grid",
			mutate:  func(b *Board) { b.StartTile = 0 },
			wantErr: "start tile",
		},
		{
			name:    "too few dice sides",
			mutate:  func(b *Board) { b.DiceSides = 1 },
			wantErr: "dice sides",
		},
		{
			name:    "hazard moving up",
			mutate:  func(b *Board) { b.Hazards = map[int]int{3: 7} },
			wantErr: "must move down",
		},
		{
			name:    "shortcut moving down",
			mutate:  func(b *Board) { b.Shortcuts = map[int]int{7: 3} },
			wantErr: "must move up",
		},
		{
			name:    "shortcut past board",
			mutate:  func(b *Board) { b.Shortcuts = map[int]int{7: 12} },
			wantErr: "outside board",
		},
		{
			name: "tile both hazard and shortcut",
			mutate: func(b *Board) {
				b.Hazards = map[int]int{5: 2}
				b.Shortcuts = map[int]int{5: 8}
			},
			wantErr: "both hazard and shortcut",
		},
		{
			name:    "invalid grid",
			mutate:  func(b *Board) { b.Grid = board.Grid{Rows: 0, Cols: 3} },
			wantErr: "grid dimensions",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := base()
			tc.mutate(&b)
			err := b.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestCatalog(t *testing.T) {
	classic := DefaultSnakesBoard()
	mini := Board{
		Name:      "mini",
		Grid:      board.Grid{Rows: 3, Cols: 3},
		GoalTile:  9,
		StartTile: 1,
		DiceSides: 4,
	}

	c, err := NewCatalog(classic, mini)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	got, err := c.Board("mini")
	if err != nil {
		t.Fatalf("Board(mini) error = %v", err)
	}
	if got.GoalTile != 9 {
		t.Errorf("Board(mini).GoalTile = %d, want 9", got.GoalTile)
	}

	if _, err := c.Board("nope"); !errors.Is(err, ErrUnknownBoard) {
		t.Errorf("Board(unknown) error = %v, want %v", err, ErrUnknownBoard)
	}
	if !c.Has("snakes_ladders") || c.Has("nope") {
		t.Errorf("Has() = %t / %t", c.Has("snakes_ladders"), c.Has("nope"))
	}

	boards := c.Boards()
	if len(boards) != 2 || boards[0].Name != "mini" || boards[1].Name != "snakes_ladders" {
		names := make([]string, 0, len(boards))
		for _, b := range boards {
			names = append(names, b.Name)
		}
		t.Errorf("Boards() order = %v, want [mini snakes_ladders]", names)
	}
}

func TestCatalogRejectsInvalidBoard(t *testing.T) {
	bad := Board{Name: "bad", Grid: board.Grid{Rows: 3, Cols: 3}, GoalTile: 99, StartTile: 1, DiceSides: 6}
	if _, err := NewCatalog(bad); err == nil {
		t.Fatal("NewCatalog() accepted an invalid board")
	}
}

func TestNilCatalog(t *testing.T) {
	var c *Catalog
	if _, err := c.Board("snakes_ladders"); !errors.Is(err, ErrUnknownBoard) {
		t.Errorf("nil catalog Board() error = %v, want %v", err, ErrUnknownBoard)
	}
	if c.Has("snakes_ladders") {
		t.Error("nil catalog Has() = true")
	}
	if c.Boards() != nil {
		t.Error("nil catalog Boards() != nil")
	}
}
