package snakes

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/Aireo88/TFBot/internal/game/domain"
)

// TurnData is the rule payload for a snakes-and-ladders session. Every id it
// references must exist in the session's participant list; the turn list
// contains no duplicates and covers every id ever given a sequence number.
type TurnData struct {
	// Tiles maps participant id to current tile number.
	Tiles map[string]int

	// TurnOrder is the immutable turn list in join order.
	TurnOrder []string

	// Acted holds participants who have acted in the current cycle.
	Acted map[string]struct{}

	// Winners holds participants stamped as goal reachers. Until the game
	// ends it accumulates everyone who arrived; at game end it is rebuilt
	// to exactly the earliest-stamp arrivals.
	Winners map[string]struct{}

	// GoalTurn maps participant id to the turn number on which they first
	// reached the goal.
	GoalTurn map[string]int

	// ExchangeCounts tracks how many role exchanges each participant has
	// been part of.
	ExchangeCounts map[string]int

	// RollHistory records each resolved roll in order.
	RollHistory []RollRecord

	GameEnded bool
}

// RollRecord is one entry of the per-session roll log.
type RollRecord struct {
	ParticipantID string `json:"participant_id"`
	Turn          int    `json:"turn"`
	Roll          int    `json:"roll"`
	FinalTile     int    `json:"final_tile"`
}

func newTurnData() *TurnData {
	return &TurnData{
		Tiles:          make(map[string]int),
		Acted:          make(map[string]struct{}),
		Winners:        make(map[string]struct{}),
		GoalTurn:       make(map[string]int),
		ExchangeCounts: make(map[string]int),
	}
}

// data returns the session's TurnData, or an error when the payload belongs
// to another game type.
func data(s *domain.Session) (*TurnData, error) {
	d, ok := s.RuleData.(*TurnData)
	if !ok || d == nil {
		return nil, fmt.Errorf("session %s carries no snakes rule data", s.ID)
	}
	return d, nil
}

// turnDataJSON is the snapshot form of TurnData. Tile and stamp maps use
// string keys so the payload survives generic JSON handling.
type turnDataJSON struct {
	Tiles          map[string]int `json:"tiles"`
	TurnOrder      []string       `json:"turn_order"`
	Acted          []string       `json:"acted"`
	Forfeited      []string       `json:"forfeited"`
	Winners        []string       `json:"winners"`
	GoalTurn       map[string]int `json:"goal_turn"`
	ExchangeCounts map[string]int `json:"exchange_counts"`
	RollHistory    []RollRecord   `json:"roll_history"`
	GameEnded      bool           `json:"game_ended"`
}

func (d *TurnData) marshal(s *domain.Session) ([]byte, error) {
	forfeited := []string{}
	for _, p := range s.Participants().All() {
		if p.Forfeited {
			forfeited = append(forfeited, p.ID)
		}
	}
	out := turnDataJSON{
		Tiles:          d.Tiles,
		TurnOrder:      d.TurnOrder,
		Acted:          setToList(d.Acted, d.TurnOrder),
		Forfeited:      forfeited,
		Winners:        setToList(d.Winners, d.TurnOrder),
		GoalTurn:       d.GoalTurn,
		ExchangeCounts: d.ExchangeCounts,
		RollHistory:    d.RollHistory,
		GameEnded:      d.GameEnded,
	}
	return json.Marshal(out)
}

// unmarshal restores TurnData from a snapshot payload, sanitizing as it goes:
// ids unknown to the session are stripped, duplicate turn-list entries are
// deduplicated, and non-numeric tile values are discarded with a log line.
func (d *TurnData) unmarshal(s *domain.Session, raw []byte) error {
	var in struct {
		Tiles          map[string]json.Number `json:"tiles"`
		TurnOrder      []string               `json:"turn_order"`
		Acted          []string               `json:"acted"`
		Forfeited      []string               `json:"forfeited"`
		Winners        []string               `json:"winners"`
		GoalTurn       map[string]json.Number `json:"goal_turn"`
		ExchangeCounts map[string]int         `json:"exchange_counts"`
		RollHistory    []RollRecord           `json:"roll_history"`
		GameEnded      bool                   `json:"game_ended"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("decode snakes payload: %w", err)
	}

	known := s.Participants()

	d.Tiles = make(map[string]int)
	for id, num := range in.Tiles {
		if !known.Has(id) {
			log.Printf("snapshot sanitize dropped tile entry session_id=%s participant_id=%s reason=unknown_participant", s.ID, id)
			continue
		}
		tile, err := coerceTile(num)
		if err != nil {
			log.Printf("snapshot sanitize dropped tile entry session_id=%s participant_id=%s reason=%v", s.ID, id, err)
			continue
		}
		d.Tiles[id] = tile
	}

	d.TurnOrder = d.TurnOrder[:0]
	seen := map[string]bool{}
	for _, id := range in.TurnOrder {
		if seen[id] {
			log.Printf("snapshot sanitize dropped duplicate turn entry session_id=%s participant_id=%s", s.ID, id)
			continue
		}
		if !known.Has(id) {
			log.Printf("snapshot sanitize dropped turn entry session_id=%s participant_id=%s reason=unknown_participant", s.ID, id)
			continue
		}
		seen[id] = true
		d.TurnOrder = append(d.TurnOrder, id)
	}

	d.Acted = listToSet(in.Acted, known)
	d.Winners = listToSet(in.Winners, known)

	forfeited := listToSet(in.Forfeited, known)
	for _, p := range known.All() {
		_, ok := forfeited[p.ID]
		p.Forfeited = ok
	}

	d.GoalTurn = make(map[string]int)
	for id, num := range in.GoalTurn {
		if !known.Has(id) {
			continue
		}
		turn, err := coerceTile(num)
		if err != nil {
			log.Printf("snapshot sanitize dropped goal stamp session_id=%s participant_id=%s reason=%v", s.ID, id, err)
			continue
		}
		d.GoalTurn[id] = turn
	}

	d.ExchangeCounts = make(map[string]int)
	for id, n := range in.ExchangeCounts {
		if known.Has(id) {
			d.ExchangeCounts[id] = n
		}
	}

	d.RollHistory = in.RollHistory
	d.GameEnded = in.GameEnded
	return nil
}

// coerceTile accepts integers and integral floats; anything else is rejected.
func coerceTile(num json.Number) (int, error) {
	if v, err := strconv.Atoi(num.String()); err == nil {
		return v, nil
	}
	f, err := num.Float64()
	if err != nil {
		return 0, fmt.Errorf("non-numeric value %q", num.String())
	}
	v := int(f)
	if float64(v) != f {
		return 0, fmt.Errorf("non-integral value %q", num.String())
	}
	return v, nil
}

// setToList orders set members by turn-list position for stable snapshots.
func setToList(set map[string]struct{}, order []string) []string {
	out := []string{}
	for _, id := range order {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	for id := range set {
		found := false
		for _, listed := range out {
			if listed == id {
				found = true
				break
			}
		}
		if !found {
			out = append(out, id)
		}
	}
	return out
}

func listToSet(list []string, known *domain.ParticipantList) map[string]struct{} {
	out := make(map[string]struct{})
	for _, id := range list {
		if known.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}
