// Package rules defines the rule-engine boundary between the game service
// and game-type-specific logic. Each game type registers a RuleSet factory;
// the session's game-type tag selects which one owns the session's rule
// payload.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Aireo88/TFBot/internal/game/domain"
)

var (
	// ErrUnknownGameType indicates no rule set is registered for a tag.
	ErrUnknownGameType = errors.New("unknown game type")
)

// Rejection is a normal negative outcome: the action was understood but is
// not currently allowed. It never mutates state and is not an error.
type Rejection struct {
	Reason string
}

// Rejected reports whether the result carries a rejection.
func (r Rejection) Rejected() bool {
	return r.Reason != ""
}

// Redirect records a single hazard or shortcut applied after a move.
type Redirect struct {
	From int
	To   int
	// Down is true for hazards (move toward the start), false for
	// shortcuts.
	Down bool
}

// MoveResult describes a resolved move.
type MoveResult struct {
	Rejection

	Roll      int
	FromTile  int
	LandedOn  int // tile after clamping, before redirection
	FinalTile int
	Redirect  *Redirect

	// Lines are human-readable fragments describing the move, in order.
	Lines []string

	// NewWinners lists participants first stamped as goal reachers by
	// this move, with the turn number they were stamped with.
	NewWinners []string
	StampTurn  int

	CycleComplete bool
	GameEnded     bool
}

// WinSummary is the final accounting when a session ends.
type WinSummary struct {
	// Winners hold the participants whose goal stamp equals the minimum
	// stamp; ties co-win.
	Winners []string
	// StampByID maps participant to the turn number they reached the
	// goal, for everyone who reached it.
	StampByID map[string]int
}

// RuleSet is the strategy implemented per game type. Implementations own the
// session's RuleData payload and must treat every other session field as
// read-only except participant coordinates.
type RuleSet interface {
	// Name returns the game-type tag the rule set registers under.
	Name() string

	// Init attaches a fresh rule payload to the session.
	Init(s *domain.Session) error

	// OnJoin records a participant joining or re-joining. Position and
	// sequence data preserved from an earlier join must be restored, not
	// reset.
	OnJoin(s *domain.Session, p *domain.Participant) error

	// OnRoleAssigned records the first role a participant wears.
	OnRoleAssigned(s *domain.Session, p *domain.Participant, role string)

	// CheckEligibility reports whether the participant may act now. A
	// non-empty Rejection explains why not, without mutating state.
	CheckEligibility(s *domain.Session, participantID string) Rejection

	// ResolveMove applies a roll for the participant, mutating the rule
	// payload and the participant's coordinate.
	ResolveMove(s *domain.Session, participantID string, roll int) (MoveResult, error)

	// CheckWin recomputes the final winner set; valid once the session
	// has ended.
	CheckWin(s *domain.Session) WinSummary

	// Forfeit marks the participant ineligible without disturbing turn
	// order or board state. Rejoin reverses it.
	Forfeit(s *domain.Session, participantID string) error
	Rejoin(s *domain.Session, participantID string) error

	// MoveToken places a participant on an explicit tile (operator move),
	// validating bounds first.
	MoveToken(s *domain.Session, participantID string, tile int) error

	// ExchangeHook keeps the rule payload in step when two participants'
	// worn state (role, coordinate, display metadata) is exchanged. It
	// runs once per exchanged pair, forward and reverse alike.
	ExchangeHook(s *domain.Session, aID, bID string) error

	// Summary renders the current leaderboard.
	Summary(s *domain.Session) string

	// UpdateBoardOn reports whether a board render should follow the
	// named event.
	UpdateBoardOn(event string) bool

	// MarshalData and UnmarshalData convert the rule payload to and from
	// its snapshot form. UnmarshalData sanitizes rather than rejects:
	// unknown participant references are stripped, duplicates deduped.
	MarshalData(s *domain.Session) ([]byte, error)
	UnmarshalData(s *domain.Session, data []byte) error

	// LoadWarnings reports suspicious state after a snapshot restore,
	// such as an empty turn list despite joined participants. Empty means
	// the restored state looks healthy.
	LoadWarnings(s *domain.Session) []string
}

// Factory builds a rule set for one session's lifetime.
type Factory func() RuleSet

// Registry maps game-type tags to rule set factories. It is populated at
// startup and read-only afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a game-type tag. Re-registering a tag
// replaces the previous factory.
func (r *Registry) Register(gameType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[gameType] = factory
}

// New builds a rule set for the game type.
func (r *Registry) New(gameType string) (RuleSet, error) {
	r.mu.RLock()
	factory, ok := r.factories[gameType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGameType, gameType)
	}
	return factory(), nil
}

// GameTypes lists registered tags in sorted order.
func (r *Registry) GameTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for tag := range r.factories {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
