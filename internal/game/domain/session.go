package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyChannelID indicates a missing channel reference.
	ErrEmptyChannelID = errors.New("channel id is required")
	// ErrEmptyGameType indicates a missing game type tag.
	ErrEmptyGameType = errors.New("game type is required")
	// ErrEmptyOperatorID indicates a missing operator id.
	ErrEmptyOperatorID = errors.New("operator id is required")
	// ErrSessionEnded indicates the session has already ended.
	ErrSessionEnded = errors.New("session has ended")
)

// Session is the mutable record of one game in progress. All mutation happens
// while the session's serializer lock is held; the struct itself carries no
// synchronization.
type Session struct {
	ID         string
	ChannelID  string
	GameType   string
	OperatorID string

	Started bool
	Paused  bool
	Ended   bool

	// TurnCount is the current cycle number, starting at 1 once the
	// session starts. Winner stamps reference this value before it
	// advances.
	TurnCount int

	participants *ParticipantList

	// RuleData is the rule-specific payload, opaque outside the rule set
	// selected by GameType.
	RuleData any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateSessionInput describes the metadata needed to start a session.
type CreateSessionInput struct {
	ChannelID  string
	GameType   string
	OperatorID string
}

// CreateSession creates a started session with a generated ID.
func CreateSession(input CreateSessionInput, now func() time.Time, idGenerator func() (string, error)) (*Session, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = NewID
	}

	normalized, err := NormalizeCreateSessionInput(input)
	if err != nil {
		return nil, err
	}

	sessionID, err := idGenerator()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	createdAt := now().UTC()
	return &Session{
		ID:           sessionID,
		ChannelID:    normalized.ChannelID,
		GameType:     normalized.GameType,
		OperatorID:   normalized.OperatorID,
		Started:      true,
		TurnCount:    1,
		participants: NewParticipantList(),
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}, nil
}

// NormalizeCreateSessionInput trims and validates session input metadata.
func NormalizeCreateSessionInput(input CreateSessionInput) (CreateSessionInput, error) {
	input.ChannelID = strings.TrimSpace(input.ChannelID)
	if input.ChannelID == "" {
		return CreateSessionInput{}, ErrEmptyChannelID
	}
	input.GameType = strings.TrimSpace(input.GameType)
	if input.GameType == "" {
		return CreateSessionInput{}, ErrEmptyGameType
	}
	input.OperatorID = strings.TrimSpace(input.OperatorID)
	if input.OperatorID == "" {
		return CreateSessionInput{}, ErrEmptyOperatorID
	}
	return input, nil
}

// Participants returns the ordered participant list, creating it on first use
// so sessions restored from snapshots behave like freshly created ones.
func (s *Session) Participants() *ParticipantList {
	if s.participants == nil {
		s.participants = NewParticipantList()
	}
	return s.participants
}

// Active reports whether the session currently accepts moves.
func (s *Session) Active() bool {
	return s.Started && !s.Paused && !s.Ended
}

// Pause suspends an active session. Pausing an ended session is an error;
// pausing a paused session is a no-op.
func (s *Session) Pause(now func() time.Time) error {
	if s.Ended {
		return ErrSessionEnded
	}
	s.Paused = true
	s.touch(now)
	return nil
}

// Resume reactivates a paused session.
func (s *Session) Resume(now func() time.Time) error {
	if s.Ended {
		return ErrSessionEnded
	}
	s.Paused = false
	s.touch(now)
	return nil
}

// End marks the session ended. Ended is terminal.
func (s *Session) End(now func() time.Time) {
	s.Ended = true
	s.Paused = false
	s.touch(now)
}

func (s *Session) touch(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.UpdatedAt = now().UTC()
}
