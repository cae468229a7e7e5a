// Package tfbot parses the bot's flags and composes its runtime: websocket
// gateway, command serializer, game service, board and character packs, and
// the snapshot store.
package tfbot

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Aireo88/TFBot/internal/characters"
	"github.com/Aireo88/TFBot/internal/game/packs"
	"github.com/Aireo88/TFBot/internal/game/rules"
	"github.com/Aireo88/TFBot/internal/game/rules/snakes"
	"github.com/Aireo88/TFBot/internal/game/serializer"
	"github.com/Aireo88/TFBot/internal/game/service"
	"github.com/Aireo88/TFBot/internal/platform/config"
	"github.com/Aireo88/TFBot/internal/platform/otel"
	"github.com/Aireo88/TFBot/internal/storage/sqlite"
	"github.com/Aireo88/TFBot/internal/transport/ws"
)

// ParseConfig parses environment and flags into Settings. Flags override the
// environment.
func ParseConfig(fs *flag.FlagSet, args []string) (config.Settings, error) {
	cfg, err := config.LoadSettings()
	if err != nil {
		return config.Settings{}, err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "websocket gateway listen address")
	fs.StringVar(&cfg.BotName, "name", cfg.BotName, "bot display name")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "SQLite snapshot database file")
	fs.IntVar(&cfg.AutosaveKeep, "autosave-keep", cfg.AutosaveKeep, "autosaves retained per session")
	fs.StringVar(&cfg.PacksDir, "packs-dir", cfg.PacksDir, "board pack scripts directory")
	fs.StringVar(&cfg.CharactersConfig, "characters-config", cfg.CharactersConfig, "character pack config file")
	if err := fs.Parse(args); err != nil {
		return config.Settings{}, err
	}
	return cfg, nil
}

// Run wires the bot and serves until the context is cancelled. Missing
// required resources are fatal here, before anything listens.
func Run(ctx context.Context, cfg config.Settings) error {
	shutdown, err := otel.Setup(ctx, "tfbot")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("tracing shutdown failed err=%v", err)
		}
	}()

	store, err := sqlite.Open(cfg.StoragePath, cfg.AutosaveKeep)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("store close failed err=%v", err)
		}
	}()

	var boards *packs.Catalog
	if cfg.PacksDir != "" {
		boards, err = packs.LoadDir(cfg.PacksDir)
	} else {
		boards, err = packs.NewCatalog(packs.DefaultSnakesBoard())
	}
	if err != nil {
		return fmt.Errorf("load board packs: %w", err)
	}

	registry := rules.NewRegistry()
	for _, b := range boards.Boards() {
		registry.Register(b.Name, snakes.Factory(b))
	}

	var catalog *characters.Catalog
	if cfg.CharactersConfig != "" {
		catalog, err = characters.Load(cfg.CharactersConfig)
		if err != nil {
			return fmt.Errorf("load character packs: %w", err)
		}
	}

	gateway := ws.New(nil, cfg.BotName)
	svc, err := service.New(service.Config{
		Chat:       gateway,
		Serializer: serializer.New(gateway),
		Registry:   registry,
		Boards:     boards,
		Characters: catalog,
		Store:      store,
	})
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	gateway.Bind(svc)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gateway.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening addr=%s games=%v", cfg.Addr, registry.GameTypes())
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown gateway: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve gateway: %w", err)
	}
}
