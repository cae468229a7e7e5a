package domain

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyParticipantID indicates a missing participant id.
	ErrEmptyParticipantID = errors.New("participant id is required")
	// ErrParticipantExists indicates a duplicate participant id.
	ErrParticipantExists = errors.New("participant already exists")
	// ErrParticipantNotFound indicates an unknown participant id.
	ErrParticipantNotFound = errors.New("participant not found")
)

// Participant is one joined player within a session. Identity fields
// (ID, Sequence) never change after the first join; the worn role and its
// display metadata travel between participants through swaps.
type Participant struct {
	ID string

	// Role is the assigned character name, empty until assigned.
	Role string

	// Coordinate is the alphanumeric board position, e.g. "A1".
	Coordinate string

	// Sequence is the stable join ordinal, assigned at first join and
	// never reused or renumbered, even across forfeit and re-entry.
	Sequence int

	// Background and Outfit are display-layer metadata that follow the
	// role through swaps.
	Background string
	Outfit     string

	// Forfeited marks the participant ineligible to act. The participant
	// stays in the turn list and on the board.
	Forfeited bool

	// SwapLink is the back-reference "my role was most recently exchanged
	// with this participant". A link to the participant's own ID means
	// not currently swapped.
	SwapLink string
}

// SwappedWith reports the swap back-reference, or empty when the participant
// is not currently swapped.
func (p *Participant) SwappedWith() string {
	if p.SwapLink == "" || p.SwapLink == p.ID {
		return ""
	}
	return p.SwapLink
}

// ResetSwapLink restores the self-loop that signifies "not currently swapped".
func (p *Participant) ResetSwapLink() {
	p.SwapLink = p.ID
}

// ParticipantList is an insertion-ordered participant collection. Order is
// join order and is preserved across forfeit and re-entry.
type ParticipantList struct {
	order []string
	byID  map[string]*Participant
	// nextSequence is the sequence number handed to the next first-time
	// join. It only ever grows.
	nextSequence int
}

// NewParticipantList creates an empty participant list.
func NewParticipantList() *ParticipantList {
	return &ParticipantList{
		byID:         make(map[string]*Participant),
		nextSequence: 1,
	}
}

// Add inserts a new participant and assigns its sequence number. Adding an
// existing id is an error; use Get to mutate a retained participant.
func (l *ParticipantList) Add(id string) (*Participant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrEmptyParticipantID
	}
	if _, ok := l.byID[id]; ok {
		return nil, ErrParticipantExists
	}
	p := &Participant{
		ID:       id,
		Sequence: l.nextSequence,
		SwapLink: id,
	}
	l.nextSequence++
	l.byID[id] = p
	l.order = append(l.order, id)
	return p, nil
}

// Get returns the participant for id, or ErrParticipantNotFound.
func (l *ParticipantList) Get(id string) (*Participant, error) {
	p, ok := l.byID[id]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	return p, nil
}

// Has reports whether id is a known participant.
func (l *ParticipantList) Has(id string) bool {
	_, ok := l.byID[id]
	return ok
}

// IDs returns participant ids in join order. The slice is a copy.
func (l *ParticipantList) IDs() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// All returns participants in join order.
func (l *ParticipantList) All() []*Participant {
	out := make([]*Participant, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

// Len reports the number of participants ever joined.
func (l *ParticipantList) Len() int {
	return len(l.order)
}

// Restore re-inserts a participant loaded from a snapshot, preserving its
// recorded sequence number. The internal counter advances past the restored
// sequence so later first-time joins never reuse it.
func (l *ParticipantList) Restore(p *Participant) error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return ErrEmptyParticipantID
	}
	if _, ok := l.byID[p.ID]; ok {
		return ErrParticipantExists
	}
	if p.SwapLink == "" {
		p.SwapLink = p.ID
	}
	l.byID[p.ID] = p
	l.order = append(l.order, p.ID)
	if p.Sequence >= l.nextSequence {
		l.nextSequence = p.Sequence + 1
	}
	return nil
}
