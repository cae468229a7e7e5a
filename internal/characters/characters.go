// Package characters loads the shared character repository: a JSON config
// listing packs and the game types each pack is enabled for, plus one JSON
// file per pack with the characters themselves. The catalog is built once at
// startup and injected into whatever needs it; there is no ambient global
// lookup.
package characters

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrConfigMissing indicates the pack configuration file is absent.
	// The character repository is a required external resource.
	ErrConfigMissing = errors.New("character pack config not found")
	// ErrUnknownCharacter indicates a name not present in any loaded pack.
	ErrUnknownCharacter = errors.New("unknown character")
)

// Character is one assignable role with its display-layer defaults.
type Character struct {
	Name       string `json:"name"`
	Background string `json:"background,omitempty"`
	Outfit     string `json:"outfit,omitempty"`

	// Pack is the file name of the pack the character came from.
	Pack string `json:"-"`
}

// packConfig is one entry of the config's packs list.
type packConfig struct {
	Name  string   `json:"name"`
	File  string   `json:"file"`
	Games []string `json:"games"`
}

// Catalog is the immutable set of loaded characters with their pack
// enablement.
type Catalog struct {
	characters []Character
	byName     map[string]Character
	// gamesByPack maps pack file name to the game types it is enabled
	// for.
	gamesByPack map[string][]string
}

// Load reads the pack config at configPath and every enabled pack file next
// to it. A pack file that fails to parse is logged and skipped; a missing
// config is ErrConfigMissing and fatal to startup.
func Load(configPath string) (*Catalog, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigMissing, configPath)
		}
		return nil, fmt.Errorf("read pack config: %w", err)
	}

	var config struct {
		Packs []packConfig `json:"packs"`
	}
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("decode pack config: %w", err)
	}

	catalog := &Catalog{
		byName:      make(map[string]Character),
		gamesByPack: make(map[string][]string),
	}

	packsDir := filepath.Join(filepath.Dir(configPath), "packs")
	for _, pack := range config.Packs {
		file := strings.TrimSpace(pack.File)
		if file == "" {
			continue
		}
		catalog.gamesByPack[file] = pack.Games

		chars, loadErr := loadPackFile(filepath.Join(packsDir, file+".json"))
		if loadErr != nil {
			log.Printf("character pack skipped pack=%s err=%v", file, loadErr)
			continue
		}
		for _, c := range chars {
			c.Pack = file
			name := strings.TrimSpace(c.Name)
			if name == "" {
				continue
			}
			c.Name = name
			if _, dup := catalog.byName[name]; dup {
				log.Printf("character pack duplicate name pack=%s character=%s", file, name)
				continue
			}
			catalog.byName[name] = c
			catalog.characters = append(catalog.characters, c)
		}
		log.Printf("character pack loaded pack=%s characters=%d games=%v", file, len(chars), pack.Games)
	}

	log.Printf("character catalog loaded total=%d packs=%d", len(catalog.characters), len(config.Packs))
	return catalog, nil
}

func loadPackFile(path string) ([]Character, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack file: %w", err)
	}
	var chars []Character
	if err := json.Unmarshal(raw, &chars); err != nil {
		return nil, fmt.Errorf("decode pack file: %w", err)
	}
	return chars, nil
}

// ForGame returns the characters from packs enabled for a game type.
func (c *Catalog) ForGame(gameType string) []Character {
	if c == nil {
		return nil
	}
	var out []Character
	for _, char := range c.characters {
		if c.enabledForGame(char.Pack, gameType) {
			out = append(out, char)
		}
	}
	return out
}

// Lookup finds a character by name regardless of game enablement.
func (c *Catalog) Lookup(name string) (Character, error) {
	if c == nil {
		return Character{}, ErrUnknownCharacter
	}
	char, ok := c.byName[strings.TrimSpace(name)]
	if !ok {
		return Character{}, fmt.Errorf("%w: %q", ErrUnknownCharacter, name)
	}
	return char, nil
}

// EnabledForGame reports whether a character's pack is enabled for a game
// type.
func (c *Catalog) EnabledForGame(name, gameType string) bool {
	char, err := c.Lookup(name)
	if err != nil {
		return false
	}
	return c.enabledForGame(char.Pack, gameType)
}

func (c *Catalog) enabledForGame(pack, gameType string) bool {
	for _, game := range c.gamesByPack[pack] {
		if game == gameType {
			return true
		}
	}
	return false
}

// Len reports the number of loaded characters across all packs.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.characters)
}
