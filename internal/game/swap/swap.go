// Package swap builds and reverses chains of role exchanges between
// participants. Each participant carries a single back-reference to whoever
// their role was most recently exchanged with; a self-loop means not
// currently swapped. Chains are traversed with a visited-set guard so mutual
// references can never loop.
package swap

import (
	"errors"
	"fmt"

	"github.com/Aireo88/TFBot/internal/game/domain"
)

var (
	// ErrSelfExchange indicates an exchange between a participant and
	// themselves.
	ErrSelfExchange = errors.New("cannot exchange a participant with themselves")
)

// Pair is one directed exchange edge: A's role was exchanged with B's.
type Pair struct {
	A string
	B string
}

// ExchangeHook lets the owning rule set keep its payload in step with a
// worn-state exchange, e.g. swapping per-participant tile numbers. It runs
// once per exchanged pair, forward and reverse alike. A nil hook is allowed.
type ExchangeHook func(s *domain.Session, aID, bID string) error

// Exchange swaps the worn role, board coordinate, and display metadata
// between two participants and records the swap links. Identity fields
// (sequence number, forfeit state, turn-list position) stay put.
//
// When permanent is true the links reset to self-loops immediately, making
// the exchange irreversible.
func Exchange(s *domain.Session, aID, bID string, permanent bool, hook ExchangeHook) error {
	if aID == bID {
		return ErrSelfExchange
	}
	participants := s.Participants()
	a, err := participants.Get(aID)
	if err != nil {
		return fmt.Errorf("participant %s: %w", aID, err)
	}
	b, err := participants.Get(bID)
	if err != nil {
		return fmt.Errorf("participant %s: %w", bID, err)
	}

	exchangeWornState(a, b)
	if hook != nil {
		if err := hook(s, a.ID, b.ID); err != nil {
			return err
		}
	}

	if permanent {
		a.ResetSwapLink()
		b.ResetSwapLink()
		return nil
	}
	a.SwapLink = b.ID
	b.SwapLink = a.ID
	return nil
}

// BuildChain follows swap back-references from startID, producing the ordered
// exchange pairs that led to the current arrangement. Traversal stops when a
// link returns to a visited participant or reaches a self-loop.
func BuildChain(s *domain.Session, startID string) ([]Pair, error) {
	participants := s.Participants()
	current, err := participants.Get(startID)
	if err != nil {
		return nil, fmt.Errorf("participant %s: %w", startID, err)
	}

	var chain []Pair
	visited := map[string]bool{current.ID: true}
	for {
		next := current.SwappedWith()
		if next == "" {
			return chain, nil
		}
		if visited[next] {
			// The edge closing back into the chain is the mutual
			// back-reference of a pair already recorded, not a new
			// exchange.
			return chain, nil
		}
		chain = append(chain, Pair{A: current.ID, B: next})
		visited[next] = true
		current, err = participants.Get(next)
		if err != nil {
			// Dangling link, e.g. after a partial snapshot restore.
			return chain, nil
		}
	}
}

// RevertChain replays exchange pairs in reverse order, undoing each swap of
// role, coordinate, and display metadata, then resets every involved link to
// a self-loop.
func RevertChain(s *domain.Session, chain []Pair, hook ExchangeHook) error {
	participants := s.Participants()

	for i := len(chain) - 1; i >= 0; i-- {
		pair := chain[i]
		a, err := participants.Get(pair.A)
		if err != nil {
			return fmt.Errorf("participant %s: %w", pair.A, err)
		}
		b, err := participants.Get(pair.B)
		if err != nil {
			return fmt.Errorf("participant %s: %w", pair.B, err)
		}
		exchangeWornState(a, b)
		if hook != nil {
			if err := hook(s, a.ID, b.ID); err != nil {
				return err
			}
		}
	}

	for _, pair := range chain {
		if a, err := participants.Get(pair.A); err == nil {
			a.ResetSwapLink()
		}
		if b, err := participants.Get(pair.B); err == nil {
			b.ResetSwapLink()
		}
	}
	return nil
}

// exchangeWornState swaps the fields tied to the worn role, never the ones
// tied to participant identity.
func exchangeWornState(a, b *domain.Participant) {
	a.Role, b.Role = b.Role, a.Role
	a.Coordinate, b.Coordinate = b.Coordinate, a.Coordinate
	a.Background, b.Background = b.Background, a.Background
	a.Outfit, b.Outfit = b.Outfit, a.Outfit
}
