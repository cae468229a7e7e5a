package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/Aireo88/TFBot/internal/game/domain"
	"github.com/Aireo88/TFBot/internal/game/rules"
	"github.com/Aireo88/TFBot/internal/game/swap"
	"github.com/Aireo88/TFBot/internal/storage"
	"github.com/Aireo88/TFBot/internal/transport"
)

// requireOperator rejects a privileged command from anyone but the session
// operator. The rejection is a chat message, not an error.
func (s *Service) requireOperator(ctx context.Context, e *entry, ev transport.Inbound) bool {
	if ev.AuthorID == e.session.OperatorID {
		return true
	}
	s.send(ctx, ev.ChannelID, "Only the session operator can do that.")
	return false
}

func (s *Service) handleStart(ctx context.Context, ev transport.Inbound, args []string) error {
	if len(args) == 0 {
		s.send(ctx, ev.ChannelID, "Usage: "+commandPrefix+"start <game>. Available: "+strings.Join(s.registry.GameTypes(), ", ")+".")
		return nil
	}
	gameType := strings.ToLower(args[0])

	rs, err := s.registry.New(gameType)
	if err != nil {
		if errors.Is(err, rules.ErrUnknownGameType) {
			s.send(ctx, ev.ChannelID, "Unknown game "+gameType+". Available: "+strings.Join(s.registry.GameTypes(), ", ")+".")
			return nil
		}
		return err
	}

	session, err := domain.CreateSession(domain.CreateSessionInput{
		ChannelID:  ev.ChannelID,
		GameType:   gameType,
		OperatorID: ev.AuthorID,
	}, s.now, s.newID)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if err := guardRule(session.ID, func() error { return rs.Init(session) }); err != nil {
		return fmt.Errorf("init rules: %w", err)
	}

	e := &entry{session: session, rules: rs}
	s.register(e)

	return s.serializer.WithLock(ctx, session.ID, func(ctx context.Context) error {
		s.send(ctx, ev.ChannelID, fmt.Sprintf(
			"Started %s (session %s). Join with %sjoin [character].", gameType, session.ID, commandPrefix))
		s.autosave(ctx, e)
		return nil
	})
}

// handleEnd tears the session down: final standings, snapshot deletion, and
// release of the serializer's per-session state.
func (s *Service) handleEnd(ctx context.Context, e *entry, ev transport.Inbound) error {
	if !s.requireOperator(ctx, e, ev) {
		return nil
	}

	e.session.End(s.now)
	s.send(ctx, ev.ChannelID, "Game over. Final standings:\n"+e.rules.Summary(e.session))

	if s.store != nil {
		s.pendingSaves.Wait()
		if err := s.store.DeleteSession(ctx, e.session.ID); err != nil {
			log.Printf("snapshot delete failed session_id=%s err=%v", e.session.ID, err)
		}
	}
	s.unregister(e)
	s.serializer.Forget(e.session.ID)
	return nil
}

func (s *Service) handlePause(ctx context.Context, e *entry, ev transport.Inbound) (bool, error) {
	if !s.requireOperator(ctx, e, ev) {
		return false, nil
	}
	if err := e.session.Pause(s.now); err != nil {
		s.send(ctx, ev.ChannelID, "This game has already ended.")
		return false, nil
	}
	s.send(ctx, ev.ChannelID, "Game paused. Resume with "+commandPrefix+"resume.")
	return true, nil
}

func (s *Service) handleResume(ctx context.Context, e *entry, ev transport.Inbound) (bool, error) {
	if !s.requireOperator(ctx, e, ev) {
		return false, nil
	}
	if err := e.session.Resume(s.now); err != nil {
		s.send(ctx, ev.ChannelID, "This game has already ended.")
		return false, nil
	}
	s.send(ctx, ev.ChannelID, "Game resumed.")
	return true, nil
}

func (s *Service) handleJoin(ctx context.Context, e *entry, ev transport.Inbound, args []string) (string, bool, error) {
	if e.session.Ended {
		s.send(ctx, ev.ChannelID, "This game has ended.")
		return "", false, nil
	}

	list := e.session.Participants()
	if list.Has(ev.AuthorID) {
		p, err := list.Get(ev.AuthorID)
		if err != nil {
			return "", false, err
		}
		if !p.Forfeited {
			s.send(ctx, ev.ChannelID, fmt.Sprintf("Player %d is already in this game.", p.Sequence))
			return "", false, nil
		}
		if err := guardRule(e.session.ID, func() error { return e.rules.Rejoin(e.session, p.ID) }); err != nil {
			s.reportRuleFailure(ctx, e, err)
			return "", false, nil
		}
		s.send(ctx, ev.ChannelID, fmt.Sprintf("Player %d rejoined at %s.", p.Sequence, p.Coordinate))
		return "move", true, nil
	}

	p, err := list.Add(ev.AuthorID)
	if err != nil {
		return "", false, fmt.Errorf("add participant: %w", err)
	}
	if err := guardRule(e.session.ID, func() error { return e.rules.OnJoin(e.session, p) }); err != nil {
		s.reportRuleFailure(ctx, e, err)
		return "", false, nil
	}
	s.send(ctx, ev.ChannelID, fmt.Sprintf("Player %d joined at %s.", p.Sequence, p.Coordinate))

	boardEvent := "move"
	if len(args) > 0 {
		if event := s.assignRole(ctx, e, p, strings.Join(args, " ")); event != "" {
			boardEvent = event
		}
	}
	return boardEvent, true, nil
}

// assignRole validates the role against the character repository when one is
// configured and applies its display metadata. Returns the board-update
// event on success, empty on rejection.
func (s *Service) assignRole(ctx context.Context, e *entry, p *domain.Participant, role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return ""
	}

	if s.characters != nil {
		char, err := s.characters.Lookup(role)
		if err != nil {
			s.send(ctx, e.session.ChannelID, fmt.Sprintf("Unknown character %q.", role))
			return ""
		}
		if !s.characters.EnabledForGame(char.Name, e.session.GameType) {
			s.send(ctx, e.session.ChannelID, fmt.Sprintf("%s is not available for %s.", char.Name, e.session.GameType))
			return ""
		}
		p.Role = char.Name
		p.Background = char.Background
		p.Outfit = char.Outfit
	} else {
		p.Role = role
	}

	e.rules.OnRoleAssigned(e.session, p, p.Role)
	s.send(ctx, e.session.ChannelID, fmt.Sprintf("Player %d is now %s.", p.Sequence, p.Role))
	return "character_assigned"
}

func (s *Service) handleForfeit(ctx context.Context, e *entry, ev transport.Inbound) (bool, error) {
	list := e.session.Participants()
	p, err := list.Get(ev.AuthorID)
	if err != nil {
		s.send(ctx, ev.ChannelID, "You are not in this game.")
		return false, nil
	}
	if p.Forfeited {
		s.send(ctx, ev.ChannelID, fmt.Sprintf("Player %d has already forfeited.", p.Sequence))
		return false, nil
	}
	if err := guardRule(e.session.ID, func() error { return e.rules.Forfeit(e.session, p.ID) }); err != nil {
		s.reportRuleFailure(ctx, e, err)
		return false, nil
	}
	s.send(ctx, ev.ChannelID, fmt.Sprintf(
		"Player %d forfeited. Their token stays at %s; rejoin with %sjoin.", p.Sequence, p.Coordinate, commandPrefix))
	return true, nil
}

func (s *Service) handleAssign(ctx context.Context, e *entry, ev transport.Inbound, args []string) (string, bool, error) {
	if !s.requireOperator(ctx, e, ev) {
		return "", false, nil
	}
	if len(args) < 2 {
		s.send(ctx, ev.ChannelID, "Usage: "+commandPrefix+"assign <participant> <character>.")
		return "", false, nil
	}

	p, err := e.session.Participants().Get(args[0])
	if err != nil {
		s.send(ctx, ev.ChannelID, fmt.Sprintf("Unknown participant %q.", args[0]))
		return "", false, nil
	}
	event := s.assignRole(ctx, e, p, strings.Join(args[1:], " "))
	return event, event != "", nil
}

func (s *Service) handleExchange(ctx context.Context, e *entry, ev transport.Inbound, args []string, permanent bool) (string, bool, error) {
	if !s.requireOperator(ctx, e, ev) {
		return "", false, nil
	}
	if len(args) < 2 {
		s.send(ctx, ev.ChannelID, "Usage: "+commandPrefix+"exchange <participant> <participant>.")
		return "", false, nil
	}

	err := guardRule(e.session.ID, func() error {
		return swap.Exchange(e.session, args[0], args[1], permanent, e.rules.ExchangeHook)
	})
	switch {
	case errors.Is(err, domain.ErrParticipantNotFound):
		s.send(ctx, ev.ChannelID, "Both participants must be in this game.")
		return "", false, nil
	case errors.Is(err, swap.ErrSelfExchange):
		s.send(ctx, ev.ChannelID, "Cannot exchange a participant with themselves.")
		return "", false, nil
	case err != nil:
		s.reportRuleFailure(ctx, e, err)
		return "", false, nil
	}

	note := "Revert with " + commandPrefix + "revert."
	if permanent {
		note = "This exchange is permanent."
	}
	s.send(ctx, ev.ChannelID, fmt.Sprintf("Exchanged roles and positions of %s and %s. %s",
		s.label(e, args[0]), s.label(e, args[1]), note))
	return "move", true, nil
}

func (s *Service) handleRevert(ctx context.Context, e *entry, ev transport.Inbound, args []string) (string, bool, error) {
	if !s.requireOperator(ctx, e, ev) {
		return "", false, nil
	}
	if len(args) < 1 {
		s.send(ctx, ev.ChannelID, "Usage: "+commandPrefix+"revert <participant>.")
		return "", false, nil
	}

	chain, err := swap.BuildChain(e.session, args[0])
	if err != nil {
		s.send(ctx, ev.ChannelID, fmt.Sprintf("Unknown participant %q.", args[0]))
		return "", false, nil
	}
	if len(chain) == 0 {
		s.send(ctx, ev.ChannelID, s.label(e, args[0])+" is not currently swapped.")
		return "", false, nil
	}

	if err := guardRule(e.session.ID, func() error {
		return swap.RevertChain(e.session, chain, e.rules.ExchangeHook)
	}); err != nil {
		s.reportRuleFailure(ctx, e, err)
		return "", false, nil
	}
	s.send(ctx, ev.ChannelID, fmt.Sprintf("Reverted %d exchange(s); everyone wears their own role again.", len(chain)))
	return "move", true, nil
}

func (s *Service) handleMove(ctx context.Context, e *entry, ev transport.Inbound, args []string) (string, bool, error) {
	if !s.requireOperator(ctx, e, ev) {
		return "", false, nil
	}
	if len(args) < 2 {
		s.send(ctx, ev.ChannelID, "Usage: "+commandPrefix+"move <participant> <coordinate>.")
		return "", false, nil
	}

	board, err := s.boards.Board(e.session.GameType)
	if err != nil {
		return "", false, err
	}

	tile, err := strconv.Atoi(args[1])
	if err != nil {
		tile, err = board.Grid.CoordinateToTile(args[1])
		if err != nil {
			s.send(ctx, ev.ChannelID, fmt.Sprintf("%q is not a valid coordinate or tile.", args[1]))
			return "", false, nil
		}
	}

	if err := guardRule(e.session.ID, func() error {
		return e.rules.MoveToken(e.session, args[0], tile)
	}); err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			s.send(ctx, ev.ChannelID, fmt.Sprintf("Unknown participant %q.", args[0]))
			return "", false, nil
		}
		s.send(ctx, ev.ChannelID, fmt.Sprintf("Cannot move there: %v.", err))
		return "", false, nil
	}

	coord, _ := board.Grid.TileToCoordinate(tile)
	s.send(ctx, ev.ChannelID, fmt.Sprintf("Moved %s to %s (tile %d).", s.label(e, args[0]), coord, tile))
	return "move", true, nil
}

// handleAct rolls for the author, or for a named participant when the
// operator acts on their behalf. An explicit numeric argument forces the
// roll value; only the operator may force.
func (s *Service) handleAct(ctx context.Context, e *entry, ev transport.Inbound, args []string) (string, bool, error) {
	if e.session.Ended {
		s.send(ctx, ev.ChannelID, "This game has ended. Start a new one with "+commandPrefix+"start.")
		return "", false, nil
	}
	if e.session.Paused {
		s.send(ctx, ev.ChannelID, "The game is paused.")
		return "", false, nil
	}

	actorID := ev.AuthorID
	forced := 0
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil {
			forced = n
		} else if ev.AuthorID == e.session.OperatorID {
			actorID = arg
		}
	}
	if forced != 0 && ev.AuthorID != e.session.OperatorID {
		s.send(ctx, ev.ChannelID, "Only the session operator can force a roll.")
		return "", false, nil
	}

	board, err := s.boards.Board(e.session.GameType)
	if err != nil {
		return "", false, err
	}

	roll := forced
	if roll == 0 {
		roll, err = s.roller.Roll(board.DiceSides)
		if err != nil {
			return "", false, fmt.Errorf("roll dice: %w", err)
		}
	} else if roll < 1 {
		s.send(ctx, ev.ChannelID, "Forced rolls must be at least 1.")
		return "", false, nil
	}

	var res rules.MoveResult
	if err := guardRule(e.session.ID, func() error {
		var moveErr error
		res, moveErr = e.rules.ResolveMove(e.session, actorID, roll)
		return moveErr
	}); err != nil {
		s.reportRuleFailure(ctx, e, err)
		return "", false, nil
	}
	if res.Rejected() {
		s.send(ctx, ev.ChannelID, res.Reason)
		return "", false, nil
	}

	s.send(ctx, ev.ChannelID, strings.Join(res.Lines, "\n"))

	boardEvent := "dice_rolled"
	switch {
	case res.GameEnded:
		e.session.End(s.now)
		win := e.rules.CheckWin(e.session)
		s.send(ctx, ev.ChannelID, winAnnouncement(s, e, win)+"\n"+e.rules.Summary(e.session))
		boardEvent = "game_end"
	case res.CycleComplete:
		s.send(ctx, ev.ChannelID, fmt.Sprintf("Turn %d complete.\n%s", e.session.TurnCount-1, e.rules.Summary(e.session)))
		boardEvent = "turn_complete"
	}
	return boardEvent, true, nil
}

func winAnnouncement(s *Service, e *entry, win rules.WinSummary) string {
	if len(win.Winners) == 0 {
		return "The game is over with no winner."
	}
	labels := make([]string, 0, len(win.Winners))
	for _, id := range win.Winners {
		labels = append(labels, s.label(e, id))
	}
	return "The game is over! Winner(s): " + strings.Join(labels, ", ") + "."
}

func (s *Service) handleSave(ctx context.Context, e *entry, ev transport.Inbound) error {
	if !s.requireOperator(ctx, e, ev) {
		return nil
	}
	if s.store == nil {
		s.send(ctx, ev.ChannelID, "Persistence is not configured.")
		return nil
	}

	snap, err := s.buildSnapshot(e)
	if err != nil {
		s.reportRuleFailure(ctx, e, err)
		return nil
	}
	gen, err := s.store.SaveManual(ctx, snap)
	if err != nil {
		return fmt.Errorf("manual save: %w", err)
	}
	s.send(ctx, ev.ChannelID, fmt.Sprintf("Saved snapshot #%d for session %s.", gen, e.session.ID))
	return nil
}

// handleLoad restores a saved snapshot over the running session. Without a
// generation argument the most recent save of any kind wins.
func (s *Service) handleLoad(ctx context.Context, e *entry, ev transport.Inbound, args []string) (bool, error) {
	if !s.requireOperator(ctx, e, ev) {
		return false, nil
	}
	if s.store == nil {
		s.send(ctx, ev.ChannelID, "Persistence is not configured.")
		return false, nil
	}

	var snap storage.Snapshot
	var err error
	if len(args) > 0 {
		gen, convErr := strconv.Atoi(args[0])
		if convErr != nil {
			s.send(ctx, ev.ChannelID, "Usage: "+commandPrefix+"load [snapshot number].")
			return false, nil
		}
		snap, err = s.store.Load(ctx, e.session.ID, storage.SnapshotKindManual, gen)
	} else {
		snap, err = s.store.LoadLatest(ctx, e.session.ID)
	}
	if errors.Is(err, storage.ErrNotFound) {
		s.send(ctx, ev.ChannelID, "No such snapshot.")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}

	restored, warnings, err := s.restoreEntry(snap)
	if err != nil {
		s.reportRuleFailure(ctx, e, err)
		return false, nil
	}
	// The snapshot may predate a channel move; the session continues
	// where the command was issued.
	restored.session.ChannelID = ev.ChannelID
	s.register(restored)
	s.send(ctx, ev.ChannelID, fmt.Sprintf("Restored session %s at turn %d.", restored.session.ID, restored.session.TurnCount))
	for _, w := range warnings {
		s.send(ctx, ev.ChannelID, "Warning: "+w)
	}
	s.renderBoard(ctx, restored)
	return false, nil
}

// handleRestore brings a previously saved session back into a channel that
// has no running game.
func (s *Service) handleRestore(ctx context.Context, ev transport.Inbound, args []string) error {
	if s.store == nil {
		s.send(ctx, ev.ChannelID, "Persistence is not configured.")
		return nil
	}
	if len(args) < 1 {
		s.send(ctx, ev.ChannelID, "Usage: "+commandPrefix+"load <session id>.")
		return nil
	}

	snap, err := s.store.LoadLatest(ctx, args[0])
	if errors.Is(err, storage.ErrNotFound) {
		s.send(ctx, ev.ChannelID, fmt.Sprintf("No snapshots for session %q.", args[0]))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	restored, warnings, err := s.restoreEntry(snap)
	if err != nil {
		log.Printf("restore failed session_id=%s err=%v", snap.SessionID, err)
		s.send(ctx, ev.ChannelID, "The snapshot could not be restored.")
		return nil
	}
	restored.session.ChannelID = ev.ChannelID
	s.register(restored)

	return s.serializer.WithLock(ctx, restored.session.ID, func(ctx context.Context) error {
		s.send(ctx, ev.ChannelID, fmt.Sprintf("Restored session %s at turn %d.", restored.session.ID, restored.session.TurnCount))
		for _, w := range warnings {
			s.send(ctx, ev.ChannelID, "Warning: "+w)
		}
		s.renderBoard(ctx, restored)
		return nil
	})
}

// label names a participant for chat responses.
func (s *Service) label(e *entry, id string) string {
	p, err := e.session.Participants().Get(id)
	if err != nil {
		return id
	}
	if p.Role != "" {
		return fmt.Sprintf("Player %d (%s)", p.Sequence, p.Role)
	}
	return fmt.Sprintf("Player %d", p.Sequence)
}
