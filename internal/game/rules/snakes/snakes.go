// Package snakes implements the snakes-and-ladders rule set: boustrophedon
// movement with single hazard/shortcut redirections, a fixed turn list, and
// first-arrival win detection where same-turn arrivals co-win.
package snakes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Aireo88/TFBot/internal/game/domain"
	"github.com/Aireo88/TFBot/internal/game/packs"
	"github.com/Aireo88/TFBot/internal/game/rules"
)

// RuleSet runs one snakes-and-ladders session against a static board
// definition.
type RuleSet struct {
	board packs.Board
}

// New creates a rule set bound to a board definition.
func New(board packs.Board) *RuleSet {
	return &RuleSet{board: board}
}

// Factory adapts New for the rules registry.
func Factory(board packs.Board) rules.Factory {
	return func() rules.RuleSet { return New(board) }
}

// Name returns the game-type tag.
func (r *RuleSet) Name() string {
	return r.board.Name
}

// Board exposes the static board definition.
func (r *RuleSet) Board() packs.Board {
	return r.board
}

// Init attaches a fresh TurnData payload.
func (r *RuleSet) Init(s *domain.Session) error {
	s.RuleData = newTurnData()
	return nil
}

// OnJoin places a first-time participant on the start tile and appends them
// to the turn list. A re-joining participant keeps their preserved tile and
// turn-list position.
func (r *RuleSet) OnJoin(s *domain.Session, p *domain.Participant) error {
	d, err := data(s)
	if err != nil {
		return err
	}

	if _, ok := d.Tiles[p.ID]; !ok {
		d.Tiles[p.ID] = r.board.StartTile
		coord, coordErr := r.board.Grid.TileToCoordinate(r.board.StartTile)
		if coordErr != nil {
			return coordErr
		}
		p.Coordinate = coord
	} else if p.Coordinate == "" {
		if coord, coordErr := r.board.Grid.TileToCoordinate(d.Tiles[p.ID]); coordErr == nil {
			p.Coordinate = coord
		}
	}

	for _, id := range d.TurnOrder {
		if id == p.ID {
			return nil
		}
	}
	d.TurnOrder = append(d.TurnOrder, p.ID)
	if _, ok := d.ExchangeCounts[p.ID]; !ok {
		d.ExchangeCounts[p.ID] = 0
	}
	return nil
}

// OnRoleAssigned is a no-op beyond bookkeeping hooks; the original role is
// recorded by the service on the participant itself.
func (r *RuleSet) OnRoleAssigned(s *domain.Session, p *domain.Participant, role string) {}

// CheckEligibility reports whether the participant may act right now.
func (r *RuleSet) CheckEligibility(s *domain.Session, participantID string) rules.Rejection {
	d, err := data(s)
	if err != nil {
		return rules.Rejection{Reason: "this session has no game data"}
	}

	participants := s.Participants()
	p, err := participants.Get(participantID)
	if err != nil {
		return rules.Rejection{Reason: "you have not joined this game"}
	}

	if _, won := d.Winners[p.ID]; won {
		return rules.Rejection{Reason: "you have already won, the game continues for the others"}
	}
	if p.Forfeited {
		return rules.Rejection{Reason: "you have forfeited, the game continues for the others"}
	}
	if d.Tiles[p.ID] >= r.board.GoalTile {
		return rules.Rejection{Reason: fmt.Sprintf("you have reached the goal (tile %d) and cannot act anymore", r.board.GoalTile)}
	}
	if _, acted := d.Acted[p.ID]; acted {
		return rules.Rejection{Reason: "you have already acted this turn, wait for the turn summary"}
	}

	next := r.nextEligible(s, d)
	if next == "" {
		return rules.Rejection{Reason: "every eligible participant has acted this turn"}
	}
	if next != p.ID {
		label := r.participantLabel(s, d, next)
		return rules.Rejection{Reason: fmt.Sprintf("it is not your turn yet, waiting for %s", label)}
	}
	return rules.Rejection{}
}

// nextEligible returns the first turn-list participant who may still act
// this cycle, or empty when none remain.
func (r *RuleSet) nextEligible(s *domain.Session, d *TurnData) string {
	participants := s.Participants()
	for _, id := range d.TurnOrder {
		p, err := participants.Get(id)
		if err != nil {
			continue
		}
		if p.Forfeited {
			continue
		}
		if _, acted := d.Acted[id]; acted {
			continue
		}
		if d.Tiles[id] >= r.board.GoalTile {
			continue
		}
		return id
	}
	return ""
}

// ResolveMove applies a roll: clamp to the goal, apply at most one hazard or
// shortcut, stamp new goal reachers with the current turn number, and advance
// the cycle when every eligible participant has acted.
func (r *RuleSet) ResolveMove(s *domain.Session, participantID string, roll int) (rules.MoveResult, error) {
	d, err := data(s)
	if err != nil {
		return rules.MoveResult{}, err
	}

	if rejection := r.CheckEligibility(s, participantID); rejection.Rejected() {
		return rules.MoveResult{Rejection: rejection}, nil
	}

	p, err := s.Participants().Get(participantID)
	if err != nil {
		return rules.MoveResult{}, err
	}

	from := d.Tiles[p.ID]
	landed := from + roll
	if landed > r.board.GoalTile {
		landed = r.board.GoalTile
	}

	result := rules.MoveResult{
		Roll:      roll,
		FromTile:  from,
		LandedOn:  landed,
		FinalTile: landed,
	}
	result.Lines = append(result.Lines, fmt.Sprintf("Moved to tile %d", landed))

	if target, ok := r.board.Hazards[landed]; ok {
		result.Redirect = &rules.Redirect{From: landed, To: target, Down: true}
		result.FinalTile = target
		result.Lines = append(result.Lines, fmt.Sprintf("Snake! Slid down from tile %d to tile %d", landed, target))
	} else if target, ok := r.board.Shortcuts[landed]; ok {
		result.Redirect = &rules.Redirect{From: landed, To: target, Down: false}
		result.FinalTile = target
		result.Lines = append(result.Lines, fmt.Sprintf("Ladder! Climbed up from tile %d to tile %d", landed, target))
	}

	d.Tiles[p.ID] = result.FinalTile
	if coord, coordErr := r.board.Grid.TileToCoordinate(result.FinalTile); coordErr == nil {
		p.Coordinate = coord
	}

	if note, ok := r.board.Annotations[result.FinalTile]; ok && result.FinalTile < r.board.GoalTile && result.FinalTile > r.board.StartTile {
		result.Lines = append(result.Lines, fmt.Sprintf("Landed on a marked tile: %s", note))
	}

	d.Acted[p.ID] = struct{}{}
	d.RollHistory = append(d.RollHistory, RollRecord{
		ParticipantID: p.ID,
		Turn:          s.TurnCount,
		Roll:          roll,
		FinalTile:     result.FinalTile,
	})

	// Stamp every unstamped participant at or past the goal with the
	// current turn number, before the counter advances. Scanning all
	// tiles also catches operator-placed tokens.
	result.StampTurn = s.TurnCount
	for _, id := range d.TurnOrder {
		tile, ok := d.Tiles[id]
		if !ok || tile < r.board.GoalTile {
			continue
		}
		if _, stamped := d.GoalTurn[id]; stamped {
			continue
		}
		d.GoalTurn[id] = s.TurnCount
		d.Winners[id] = struct{}{}
		result.NewWinners = append(result.NewWinners, id)
	}
	for _, id := range result.NewWinners {
		result.Lines = append(result.Lines, fmt.Sprintf("%s reached the goal (tile %d) on turn %d!", r.participantLabel(s, d, id), r.board.GoalTile, s.TurnCount))
	}

	// The game ends only when every participant's tile is at the goal,
	// forfeited participants included. The eligible set going empty does
	// not end the game on its own.
	allAtGoal := len(d.Tiles) > 0
	for _, tile := range d.Tiles {
		if tile < r.board.GoalTile {
			allAtGoal = false
			break
		}
	}
	if allAtGoal && !d.GameEnded {
		d.GameEnded = true
		summary := r.CheckWin(s)
		d.Winners = make(map[string]struct{}, len(summary.Winners))
		for _, id := range summary.Winners {
			d.Winners[id] = struct{}{}
		}
		result.GameEnded = true
	}

	result.CycleComplete = r.cycleComplete(s, d)
	if result.CycleComplete && !d.GameEnded {
		d.Acted = make(map[string]struct{})
		s.TurnCount++
	}

	return result, nil
}

// cycleComplete reports whether every currently eligible participant has
// acted. An empty eligible set counts as complete.
func (r *RuleSet) cycleComplete(s *domain.Session, d *TurnData) bool {
	participants := s.Participants()
	for _, id := range d.TurnOrder {
		p, err := participants.Get(id)
		if err != nil || p.Forfeited {
			continue
		}
		if d.Tiles[id] >= r.board.GoalTile {
			continue
		}
		if _, acted := d.Acted[id]; !acted {
			return false
		}
	}
	return true
}

// CheckWin recomputes the true winner set: participants whose goal stamp
// equals the minimum stamp, excluding forfeits. Ties on the stamp co-win.
func (r *RuleSet) CheckWin(s *domain.Session) rules.WinSummary {
	summary := rules.WinSummary{StampByID: map[string]int{}}
	d, err := data(s)
	if err != nil {
		return summary
	}

	participants := s.Participants()
	minStamp := 0
	for id, stamp := range d.GoalTurn {
		summary.StampByID[id] = stamp
		p, getErr := participants.Get(id)
		if getErr != nil || p.Forfeited {
			continue
		}
		if minStamp == 0 || stamp < minStamp {
			minStamp = stamp
		}
	}
	if minStamp == 0 {
		return summary
	}

	for _, id := range d.TurnOrder {
		stamp, stamped := d.GoalTurn[id]
		if !stamped || stamp != minStamp {
			continue
		}
		p, getErr := participants.Get(id)
		if getErr != nil || p.Forfeited {
			continue
		}
		summary.Winners = append(summary.Winners, id)
	}
	return summary
}

// Forfeit flips the eligibility flag only; tile, sequence number, and turn
// list stay untouched.
func (r *RuleSet) Forfeit(s *domain.Session, participantID string) error {
	p, err := s.Participants().Get(participantID)
	if err != nil {
		return err
	}
	p.Forfeited = true
	return nil
}

// Rejoin clears the forfeit flag and restores the preserved board position.
func (r *RuleSet) Rejoin(s *domain.Session, participantID string) error {
	d, err := data(s)
	if err != nil {
		return err
	}
	p, err := s.Participants().Get(participantID)
	if err != nil {
		return err
	}
	p.Forfeited = false
	if tile, ok := d.Tiles[p.ID]; ok {
		if coord, coordErr := r.board.Grid.TileToCoordinate(tile); coordErr == nil {
			p.Coordinate = coord
		}
		return nil
	}
	return r.OnJoin(s, p)
}

// MoveToken places a participant on an explicit tile after bounds checks.
func (r *RuleSet) MoveToken(s *domain.Session, participantID string, tile int) error {
	d, err := data(s)
	if err != nil {
		return err
	}
	p, err := s.Participants().Get(participantID)
	if err != nil {
		return err
	}
	if tile < 1 || tile > r.board.GoalTile {
		return fmt.Errorf("tile %d is out of bounds (1-%d)", tile, r.board.GoalTile)
	}
	coord, err := r.board.Grid.TileToCoordinate(tile)
	if err != nil {
		return err
	}
	d.Tiles[p.ID] = tile
	p.Coordinate = coord
	return nil
}

// ExchangeHook swaps the two participants' tile numbers alongside their
// coordinates and counts the exchange for both. Goal stamps, winner and
// forfeit membership stay with the participant identity.
func (r *RuleSet) ExchangeHook(s *domain.Session, aID, bID string) error {
	d, err := data(s)
	if err != nil {
		return err
	}
	aTile, aOK := d.Tiles[aID]
	bTile, bOK := d.Tiles[bID]
	if aOK && bOK {
		d.Tiles[aID], d.Tiles[bID] = bTile, aTile
	}
	d.ExchangeCounts[aID]++
	d.ExchangeCounts[bID]++
	return nil
}

// Summary renders the leaderboard: every participant sorted by tile, with
// winner and forfeit markers.
func (r *RuleSet) Summary(s *domain.Session) string {
	d, err := data(s)
	if err != nil {
		return "No game data."
	}
	participants := s.Participants()
	if participants.Len() == 0 {
		return "No participants in game."
	}

	all := participants.All()
	sort.SliceStable(all, func(i, j int) bool {
		return d.Tiles[all[i].ID] > d.Tiles[all[j].ID]
	})

	lines := []string{"Leaderboard:"}
	for _, p := range all {
		label := fmt.Sprintf("Player %d", p.Sequence)
		if p.Role != "" {
			label += " / " + p.Role
		}
		entry := fmt.Sprintf("%s / %s: Tile %d", label, p.ID, d.Tiles[p.ID])
		if _, won := d.Winners[p.ID]; won {
			entry += " WINNER"
		}
		if p.Forfeited {
			entry += " FORFEIT"
		}
		lines = append(lines, entry)
	}
	return strings.Join(lines, "\n")
}

// UpdateBoardOn keeps the original board-update policy: render on assignment,
// movement, cycle completion, wins, and game end, but not on a bare join.
func (r *RuleSet) UpdateBoardOn(event string) bool {
	switch event {
	case "character_assigned", "dice_rolled", "turn_complete", "move", "win", "game_end":
		return true
	default:
		return false
	}
}

// MarshalData serializes the rule payload for snapshots.
func (r *RuleSet) MarshalData(s *domain.Session) ([]byte, error) {
	d, err := data(s)
	if err != nil {
		return nil, err
	}
	return d.marshal(s)
}

// UnmarshalData restores and sanitizes the rule payload from a snapshot.
func (r *RuleSet) UnmarshalData(s *domain.Session, raw []byte) error {
	d := newTurnData()
	if err := d.unmarshal(s, raw); err != nil {
		return err
	}
	s.RuleData = d
	return nil
}

// LoadWarnings flags restored state that sanitizing could not make whole.
func (r *RuleSet) LoadWarnings(s *domain.Session) []string {
	d, err := data(s)
	if err != nil {
		return []string{"rule payload is missing"}
	}

	var warnings []string
	if len(d.TurnOrder) == 0 && s.Participants().Len() > 0 {
		warnings = append(warnings, "turn list is empty despite joined participants")
	}
	for _, id := range s.Participants().IDs() {
		if _, ok := d.Tiles[id]; !ok {
			warnings = append(warnings, fmt.Sprintf("participant %s has no board position", id))
		}
	}
	return warnings
}

// participantLabel names a participant for responses: sequence number plus
// role when one is assigned.
func (r *RuleSet) participantLabel(s *domain.Session, d *TurnData, id string) string {
	p, err := s.Participants().Get(id)
	if err != nil {
		return id
	}
	if p.Role != "" {
		return fmt.Sprintf("Player %d (%s)", p.Sequence, p.Role)
	}
	return fmt.Sprintf("Player %d", p.Sequence)
}
