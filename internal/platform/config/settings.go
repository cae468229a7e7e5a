package config

import (
	"fmt"
	"strings"
)

// Settings is the bot's process configuration, loaded once at startup.
type Settings struct {
	// Addr is the websocket gateway listen address.
	Addr string `env:"TFBOT_ADDR" envDefault:":8080"`

	// BotName labels outbound bot messages.
	BotName string `env:"TFBOT_NAME" envDefault:"tfbot"`

	// StoragePath is the SQLite snapshot database file.
	StoragePath string `env:"TFBOT_STORAGE_PATH" envDefault:"tfbot.db"`

	// AutosaveKeep bounds autosaves retained per session.
	AutosaveKeep int `env:"TFBOT_AUTOSAVE_KEEP" envDefault:"5"`

	// PacksDir holds the Lua board-pack scripts. Empty means the built-in
	// board only.
	PacksDir string `env:"TFBOT_PACKS_DIR"`

	// CharactersConfig is the character pack config file. Empty disables
	// the character repository; role names are then free-form.
	CharactersConfig string `env:"TFBOT_CHARACTERS_CONFIG"`
}

// LoadSettings parses and validates the process configuration.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := ParseEnv(&s); err != nil {
		return Settings{}, err
	}
	if strings.TrimSpace(s.StoragePath) == "" {
		return Settings{}, fmt.Errorf("TFBOT_STORAGE_PATH is required")
	}
	if s.AutosaveKeep < 1 {
		return Settings{}, fmt.Errorf("TFBOT_AUTOSAVE_KEEP must be at least 1, got %d", s.AutosaveKeep)
	}
	return s, nil
}
