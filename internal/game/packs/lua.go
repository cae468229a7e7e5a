package packs

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"
)

// LoadFile runs one Lua board script and reads the table it returns.
func LoadFile(path string) (Board, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return Board{}, fmt.Errorf("load lua: %w", err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return Board{}, fmt.Errorf("run lua: %w", err)
	}

	if state.TypeOf(-1) != lua.TypeTable {
		state.Pop(1)
		return Board{}, fmt.Errorf("board script must return a table")
	}

	defaultName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	b := readBoard(state, defaultName)
	state.Pop(1)

	if err := b.Validate(); err != nil {
		return Board{}, err
	}
	return b, nil
}

// LoadDir loads every *.lua board script in dir into a catalog. Scripts that
// fail to load or validate are logged and skipped. The built-in snakes board
// fills in when no script defines that game type.
func LoadDir(dir string) (*Catalog, error) {
	boards := []Board{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read packs dir: %w", err)
		}
		log.Printf("packs dir missing, using built-in boards dir=%s", dir)
	}

	seen := map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		b, loadErr := LoadFile(path)
		if loadErr != nil {
			log.Printf("board pack skipped file=%s err=%v", path, loadErr)
			continue
		}
		if seen[b.Name] {
			log.Printf("board pack skipped file=%s err=duplicate board %q", path, b.Name)
			continue
		}
		seen[b.Name] = true
		boards = append(boards, b)
		log.Printf("board pack loaded file=%s board=%s goal=%d", path, b.Name, b.GoalTile)
	}

	if !seen["snakes_ladders"] {
		boards = append(boards, DefaultSnakesBoard())
	}

	return NewCatalog(boards...)
}

// readBoard extracts a Board from the table at the top of the Lua stack.
// Missing fields fall back to classic snakes-and-ladders defaults.
func readBoard(state *lua.State, defaultName string) Board {
	b := Board{
		Name:      stringField(state, "name", defaultName),
		StartTile: intField(state, "start", 1),
		DiceSides: intField(state, "dice", 6),
	}
	b.Grid.Rows = intField(state, "rows", 10)
	b.Grid.Cols = intField(state, "cols", 10)
	b.GoalTile = intField(state, "goal", b.Grid.Rows*b.Grid.Cols)
	b.Hazards = intMapField(state, "hazards")
	b.Shortcuts = intMapField(state, "shortcuts")
	b.Annotations = annotationField(state, "annotations")
	return b
}

func intField(state *lua.State, key string, fallback int) int {
	state.Field(-1, key)
	defer state.Pop(1)
	if n, ok := state.ToInteger(-1); ok {
		return n
	}
	return fallback
}

func stringField(state *lua.State, key, fallback string) string {
	state.Field(-1, key)
	defer state.Pop(1)
	if s, ok := state.ToString(-1); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return fallback
}

func intMapField(state *lua.State, key string) map[int]int {
	state.Field(-1, key)
	defer state.Pop(1)
	if state.TypeOf(-1) != lua.TypeTable {
		return nil
	}
	out := make(map[int]int)
	state.PushNil()
	for state.Next(-2) {
		k, kok := state.ToInteger(-2)
		v, vok := state.ToInteger(-1)
		if kok && vok {
			out[k] = v
		}
		state.Pop(1)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func annotationField(state *lua.State, key string) map[int]string {
	state.Field(-1, key)
	defer state.Pop(1)
	if state.TypeOf(-1) != lua.TypeTable {
		return nil
	}
	out := make(map[int]string)
	state.PushNil()
	for state.Next(-2) {
		k, kok := state.ToInteger(-2)
		v, vok := state.ToString(-1)
		if kok && vok && strings.TrimSpace(v) != "" {
			out[k] = strings.TrimSpace(v)
		}
		state.Pop(1)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
