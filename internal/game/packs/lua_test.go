package packs

import (
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	b, err := LoadFile(filepath.Join("testdata", "volcano.lua"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if b.Name != "volcano" {
		t.Errorf("Name = %q, want %q", b.Name, "volcano")
	}
	if b.Grid.Rows != 4 || b.Grid.Cols != 4 {
		t.Errorf("grid = %dx%d, want 4x4", b.Grid.Rows, b.Grid.Cols)
	}
	if b.GoalTile != 16 || b.StartTile != 1 || b.DiceSides != 4 {
		t.Errorf("board = goal=%d start=%d dice=%d", b.GoalTile, b.StartTile, b.DiceSides)
	}
	if got := b.Hazards[11]; got != 3 {
		t.Errorf("Hazards[11] = %d, want 3", got)
	}
	if got := b.Shortcuts[2]; got != 9 {
		t.Errorf("Shortcuts[2] = %d, want 9", got)
	}
	if got := b.Annotations[7]; got != "lava pool" {
		t.Errorf("Annotations[7] = %q, want %q", got, "lava pool")
	}
}

func TestLoadFileRejectsInvalidBoard(t *testing.T) {
	if _, err := LoadFile(filepath.Join("testdata", "broken.lua")); err == nil {
		t.Fatal("LoadFile() accepted a board with a goal outside the grid")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join("testdata", "nope.lua")); err == nil {
		t.Fatal("LoadFile() succeeded for a missing script")
	}
}

func TestLoadDirSkipsBrokenAndAddsBuiltin(t *testing.T) {
	c, err := LoadDir("testdata")
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	if !c.Has("volcano") {
		t.Error("Has(volcano) = false")
	}
	if c.Has("broken") {
		t.Error("broken script made it into the catalog")
	}
	// No script defines the classic game type, so the built-in fills in.
	if !c.Has("snakes_ladders") {
		t.Error("Has(snakes_ladders) = false")
	}
}

func TestLoadDirMissingUsesBuiltins(t *testing.T) {
	c, err := LoadDir(filepath.Join("testdata", "does-not-exist"))
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if !c.Has("snakes_ladders") {
		t.Error("Has(snakes_ladders) = false")
	}
	if len(c.Boards()) != 1 {
		t.Errorf("Boards() = %d entries, want 1", len(c.Boards()))
	}
}
