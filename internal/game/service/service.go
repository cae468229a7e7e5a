// Package service implements the operator command surface. It parses chat
// commands, routes them through the command serializer so each session sees
// at most one mutation at a time, and invokes the rule set, swap coordinator,
// renderer and snapshot store on the session's behalf.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/Aireo88/TFBot/internal/characters"
	"github.com/Aireo88/TFBot/internal/game/domain"
	"github.com/Aireo88/TFBot/internal/game/packs"
	"github.com/Aireo88/TFBot/internal/game/rules"
	"github.com/Aireo88/TFBot/internal/game/serializer"
	"github.com/Aireo88/TFBot/internal/render"
	"github.com/Aireo88/TFBot/internal/storage"
	"github.com/Aireo88/TFBot/internal/transport"
)

// commandPrefix marks chat messages addressed to the bot.
const commandPrefix = "!"

// Config carries the service's collaborators. Chat, Serializer, Registry and
// Boards are required; the rest default or stay optional.
type Config struct {
	Chat       transport.Chat
	Serializer *serializer.Serializer
	Registry   *rules.Registry
	Boards     *packs.Catalog

	// Characters is the shared character repository; nil disables role
	// validation against packs.
	Characters *characters.Catalog
	// Store persists snapshots; nil disables save, load and autosaves.
	Store storage.SnapshotStore

	Renderer render.Renderer
	Roller   *rules.Roller

	Now         func() time.Time
	IDGenerator func() (string, error)
}

// entry pairs a session with the rule set bound to it for its lifetime.
type entry struct {
	session *domain.Session
	rules   rules.RuleSet
}

// Service owns the in-memory session table and dispatches commands.
type Service struct {
	chat       transport.Chat
	serializer *serializer.Serializer
	registry   *rules.Registry
	boards     *packs.Catalog
	characters *characters.Catalog
	store      storage.SnapshotStore
	renderer   render.Renderer
	roller     *rules.Roller

	now   func() time.Time
	newID func() (string, error)

	mu        sync.Mutex
	sessions  map[string]*entry
	byChannel map[string]string

	// pendingSaves tracks in-flight background autosaves so an explicit
	// end can delete snapshots after the last write lands.
	pendingSaves sync.WaitGroup
}

// New wires the service and binds it as the serializer's dispatch target.
func New(cfg Config) (*Service, error) {
	if cfg.Chat == nil {
		return nil, fmt.Errorf("chat transport is required")
	}
	if cfg.Serializer == nil {
		return nil, fmt.Errorf("serializer is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("rules registry is required")
	}
	if cfg.Boards == nil {
		return nil, fmt.Errorf("board catalog is required")
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.NewText()
	}
	if cfg.Roller == nil {
		cfg.Roller = rules.NewRoller(rand.New(rand.NewSource(time.Now().UnixNano())))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = domain.NewID
	}

	s := &Service{
		chat:       cfg.Chat,
		serializer: cfg.Serializer,
		registry:   cfg.Registry,
		boards:     cfg.Boards,
		characters: cfg.Characters,
		store:      cfg.Store,
		renderer:   cfg.Renderer,
		roller:     cfg.Roller,
		now:        cfg.Now,
		newID:      cfg.IDGenerator,
		sessions:   make(map[string]*entry),
		byChannel:  make(map[string]string),
	}
	cfg.Serializer.Bind(s)
	return s, nil
}

// Dispatch is the single entry point for inbound events, live and replayed
// alike. Events for a locked session are captured and requeued; replays that
// find the lock held again are dropped with a log line instead of looping.
func (s *Service) Dispatch(ctx context.Context, ev transport.Inbound) error {
	cmd, args := parseCommand(ev.Text)
	if cmd == "" {
		return nil
	}

	e := s.entryByChannel(ev.ChannelID)
	if cmd == "start" {
		if e != nil {
			s.send(ctx, ev.ChannelID, "A game is already running in this channel. End it first with "+commandPrefix+"end.")
			return nil
		}
		return s.handleStart(ctx, ev, args)
	}
	if e == nil {
		if cmd == "load" {
			return s.handleRestore(ctx, ev, args)
		}
		if knownCommand(cmd) {
			s.send(ctx, ev.ChannelID, "No game is running in this channel. Start one with "+commandPrefix+"start <game>.")
		}
		return nil
	}

	sessionID := e.session.ID
	if !ev.Replayed && s.serializer.Intercept(ctx, sessionID, ev) {
		return nil
	}

	for {
		err := s.serializer.WithLock(ctx, sessionID, func(ctx context.Context) error {
			return s.execute(ctx, e, ev, cmd, args)
		})
		if !errors.Is(err, serializer.ErrLockHeld) {
			return err
		}
		if ev.Replayed {
			log.Printf("replay dropped session_id=%s author_id=%s command=%s", sessionID, ev.AuthorID, cmd)
			return nil
		}
		if s.serializer.Intercept(ctx, sessionID, ev) {
			return nil
		}
		// The lock released between the failed attempt and the
		// interception check; take it ourselves.
	}
}

// execute runs one command under the session's lock, then fires the render
// and autosave follow-ups the command calls for.
func (s *Service) execute(ctx context.Context, e *entry, ev transport.Inbound, cmd string, args []string) error {
	var boardEvent string
	var mutated bool
	var err error

	switch cmd {
	case "end":
		return s.handleEnd(ctx, e, ev)
	case "pause":
		mutated, err = s.handlePause(ctx, e, ev)
	case "resume":
		mutated, err = s.handleResume(ctx, e, ev)
	case "join":
		boardEvent, mutated, err = s.handleJoin(ctx, e, ev, args)
	case "forfeit":
		mutated, err = s.handleForfeit(ctx, e, ev)
	case "assign":
		boardEvent, mutated, err = s.handleAssign(ctx, e, ev, args)
	case "exchange":
		boardEvent, mutated, err = s.handleExchange(ctx, e, ev, args, false)
	case "exchangeperm":
		boardEvent, mutated, err = s.handleExchange(ctx, e, ev, args, true)
	case "revert":
		boardEvent, mutated, err = s.handleRevert(ctx, e, ev, args)
	case "move":
		boardEvent, mutated, err = s.handleMove(ctx, e, ev, args)
	case "act":
		boardEvent, mutated, err = s.handleAct(ctx, e, ev, args)
	case "list":
		s.send(ctx, ev.ChannelID, e.rules.Summary(e.session))
	case "board":
		s.renderBoard(ctx, e)
	case "save":
		err = s.handleSave(ctx, e, ev)
	case "load":
		mutated, err = s.handleLoad(ctx, e, ev, args)
	default:
		s.send(ctx, ev.ChannelID, "Unknown command "+commandPrefix+cmd+".")
	}
	if err != nil {
		return err
	}

	if boardEvent != "" && e.rules.UpdateBoardOn(boardEvent) {
		s.renderBoard(ctx, e)
	}
	if mutated {
		s.autosave(ctx, e)
	}
	return nil
}

// guardRule contains rule-plugin failures: a panic inside game-type logic is
// logged and reported as an error, leaving the session otherwise intact.
func guardRule(sessionID string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("rule plugin panic session_id=%s err=%v", sessionID, r)
			err = fmt.Errorf("rule plugin failure: %v", r)
		}
	}()
	return fn()
}

// reportRuleFailure logs and surfaces a rule-plugin failure without aborting
// the session.
func (s *Service) reportRuleFailure(ctx context.Context, e *entry, err error) {
	log.Printf("rule plugin failure session_id=%s game_type=%s err=%v", e.session.ID, e.session.GameType, err)
	s.send(ctx, e.session.ChannelID, "The game rules hit an internal error; the session state was left unchanged.")
}

func (s *Service) entryByChannel(channelID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessionID, ok := s.byChannel[channelID]
	if !ok {
		return nil
	}
	return s.sessions[sessionID]
}

// Session looks up a session entry by id, for introspection and tests.
func (s *Service) Session(sessionID string) (*domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

func (s *Service) register(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[e.session.ID] = e
	s.byChannel[e.session.ChannelID] = e.session.ID
}

func (s *Service) unregister(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, e.session.ID)
	if s.byChannel[e.session.ChannelID] == e.session.ID {
		delete(s.byChannel, e.session.ChannelID)
	}
}

func (s *Service) send(ctx context.Context, channelID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := s.chat.Send(ctx, channelID, text); err != nil {
		log.Printf("send failed channel_id=%s err=%v", channelID, err)
	}
}

// renderBoard draws the session's board and posts it. Render failures are
// logged, never fatal to the command that triggered them.
func (s *Service) renderBoard(ctx context.Context, e *entry) {
	board, err := s.boards.Board(e.session.GameType)
	if err != nil {
		log.Printf("render skipped session_id=%s err=%v", e.session.ID, err)
		return
	}

	var tokens []render.Token
	for _, p := range e.session.Participants().All() {
		tile, coordErr := board.Grid.CoordinateToTile(p.Coordinate)
		if coordErr != nil {
			continue
		}
		label := fmt.Sprintf("Player %d", p.Sequence)
		if p.Role != "" {
			label = fmt.Sprintf("Player %d (%s)", p.Sequence, p.Role)
		}
		tokens = append(tokens, render.Token{Label: label, Tile: tile})
	}

	out, err := s.renderer.Render(board, tokens)
	if err != nil {
		log.Printf("render failed session_id=%s err=%v", e.session.ID, err)
		return
	}
	s.send(ctx, e.session.ChannelID, out)
}

// parseCommand splits "!verb args..." chat text. Non-command text returns an
// empty verb. Aliases fold onto their canonical verbs here.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], commandPrefix) {
		return "", nil
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], commandPrefix))
	switch cmd {
	case "roll":
		cmd = "act"
	case "leave":
		cmd = "forfeit"
	case "players":
		cmd = "list"
	case "swap":
		cmd = "exchange"
	case "swapperm", "exchange-permanent":
		cmd = "exchangeperm"
	case "unswap":
		cmd = "revert"
	}
	if cmd == "" {
		return "", nil
	}
	return cmd, fields[1:]
}

var commandSet = map[string]struct{}{
	"start": {}, "end": {}, "pause": {}, "resume": {},
	"join": {}, "forfeit": {}, "assign": {},
	"exchange": {}, "exchangeperm": {}, "revert": {},
	"move": {}, "act": {}, "list": {}, "board": {},
	"save": {}, "load": {},
}

func knownCommand(cmd string) bool {
	_, ok := commandSet[cmd]
	return ok
}
