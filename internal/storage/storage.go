package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// SnapshotKind distinguishes periodic autosaves from operator-requested
// saves.
type SnapshotKind int

const (
	// SnapshotKindUnspecified represents an invalid snapshot kind.
	SnapshotKindUnspecified SnapshotKind = iota
	// SnapshotKindAuto marks a periodic autosave. Autosaves keep a
	// bounded count per session, overwriting oldest-first.
	SnapshotKindAuto
	// SnapshotKindManual marks an operator save. Manual saves are
	// unlimited and monotonically numbered.
	SnapshotKindManual
)

// ParticipantRecord is one participant's persisted state, in join order.
type ParticipantRecord struct {
	ID         string `json:"id"`
	Role       string `json:"role,omitempty"`
	Coordinate string `json:"coordinate,omitempty"`
	Sequence   int    `json:"sequence"`
	Background string `json:"background,omitempty"`
	Outfit     string `json:"outfit,omitempty"`
	Forfeited  bool   `json:"forfeited,omitempty"`
	SwapLink   string `json:"swap_link,omitempty"`
}

// Snapshot is one persisted save of a session.
type Snapshot struct {
	SessionID  string
	ChannelID  string
	GameType   string
	OperatorID string

	TurnCount int
	Started   bool
	Paused    bool
	Ended     bool

	Participants []ParticipantRecord

	// RulePayload is the rule-specific state, opaque to storage, keyed by
	// GameType.
	RulePayload []byte

	Kind SnapshotKind
	// Generation numbers snapshots within (session, kind). The store
	// assigns it on save.
	Generation int
	SavedAt    time.Time
}

// SnapshotStore persists session snapshots.
type SnapshotStore interface {
	// SaveAuto writes an autosave, rotating out the oldest once the
	// per-session bound is reached. Returns the assigned generation.
	SaveAuto(ctx context.Context, snap Snapshot) (int, error)

	// SaveManual writes an operator save with the next generation number.
	SaveManual(ctx context.Context, snap Snapshot) (int, error)

	// Load fetches one snapshot by kind and generation.
	Load(ctx context.Context, sessionID string, kind SnapshotKind, generation int) (Snapshot, error)

	// LoadLatest fetches the most recently saved snapshot of any kind.
	LoadLatest(ctx context.Context, sessionID string) (Snapshot, error)

	// List returns the session's snapshots, newest first.
	List(ctx context.Context, sessionID string) ([]Snapshot, error)

	// DeleteSession removes every snapshot for a session.
	DeleteSession(ctx context.Context, sessionID string) error
}
