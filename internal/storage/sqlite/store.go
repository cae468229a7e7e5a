// Package sqlite provides the SQLite-backed snapshot store.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Aireo88/TFBot/internal/platform/storage/sqlitemigrate"
	"github.com/Aireo88/TFBot/internal/storage"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DefaultAutosaveKeep bounds autosaves per session when no configuration
// overrides it.
const DefaultAutosaveKeep = 5

// Store persists session snapshots in SQLite.
type Store struct {
	sqlDB        *sql.DB
	autosaveKeep int
}

// Open opens the snapshot store at path and applies embedded migrations.
// autosaveKeep bounds the autosaves retained per session; values below one
// fall back to DefaultAutosaveKeep.
func Open(path string, autosaveKeep int) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if autosaveKeep < 1 {
		autosaveKeep = DefaultAutosaveKeep
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	migrations, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sub migrations fs: %w", err)
	}
	if err := sqlitemigrate.Apply(sqlDB, migrations); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB, autosaveKeep: autosaveKeep}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveAuto writes an autosave and prunes the oldest autosaves beyond the
// per-session bound.
func (s *Store) SaveAuto(ctx context.Context, snap storage.Snapshot) (int, error) {
	snap.Kind = storage.SnapshotKindAuto
	gen, err := s.save(ctx, snap, true)
	if err != nil {
		return 0, err
	}
	return gen, nil
}

// SaveManual writes an operator save with the next generation number.
func (s *Store) SaveManual(ctx context.Context, snap storage.Snapshot) (int, error) {
	snap.Kind = storage.SnapshotKindManual
	return s.save(ctx, snap, false)
}

func (s *Store) save(ctx context.Context, snap storage.Snapshot, prune bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	sessionID := strings.TrimSpace(snap.SessionID)
	if sessionID == "" {
		return 0, fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(snap.GameType) == "" {
		return 0, fmt.Errorf("game type is required")
	}

	participants, err := json.Marshal(snap.Participants)
	if err != nil {
		return 0, fmt.Errorf("encode participants: %w", err)
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxGen sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT MAX(generation) FROM snapshots WHERE session_id = ? AND kind = ?",
		sessionID, int(snap.Kind),
	).Scan(&maxGen)
	if err != nil {
		return 0, fmt.Errorf("next generation: %w", err)
	}
	generation := int(maxGen.Int64) + 1

	_, err = tx.ExecContext(ctx, `
INSERT INTO snapshots (
    session_id, kind, generation, channel_id, game_type, operator_id,
    turn_count, started, paused, ended, participants, rule_payload, saved_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, int(snap.Kind), generation,
		snap.ChannelID, snap.GameType, snap.OperatorID,
		snap.TurnCount, boolToInt(snap.Started), boolToInt(snap.Paused), boolToInt(snap.Ended),
		string(participants), snap.RulePayload, savedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}

	if prune {
		_, err = tx.ExecContext(ctx, `
DELETE FROM snapshots
WHERE session_id = ? AND kind = ?
  AND generation <= ? - ?`,
			sessionID, int(storage.SnapshotKindAuto), generation, s.autosaveKeep,
		)
		if err != nil {
			return 0, fmt.Errorf("prune autosaves: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save: %w", err)
	}
	return generation, nil
}

const snapshotColumns = `session_id, kind, generation, channel_id, game_type, operator_id,
turn_count, started, paused, ended, participants, rule_payload, saved_at`

// Load fetches one snapshot by kind and generation.
func (s *Store) Load(ctx context.Context, sessionID string, kind storage.SnapshotKind, generation int) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE session_id = ? AND kind = ? AND generation = ?",
		strings.TrimSpace(sessionID), int(kind), generation,
	)
	return scanSnapshot(row)
}

// LoadLatest fetches the most recently saved snapshot of any kind.
func (s *Store) LoadLatest(ctx context.Context, sessionID string) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE session_id = ? ORDER BY saved_at DESC, generation DESC LIMIT 1",
		strings.TrimSpace(sessionID),
	)
	return scanSnapshot(row)
}

// List returns the session's snapshots, newest first.
func (s *Store) List(ctx context.Context, sessionID string) ([]storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE session_id = ? ORDER BY saved_at DESC, generation DESC",
		strings.TrimSpace(sessionID),
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []storage.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// DeleteSession removes every snapshot for a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM snapshots WHERE session_id = ?",
		strings.TrimSpace(sessionID),
	)
	if err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (storage.Snapshot, error) {
	var (
		snap                   storage.Snapshot
		kind                   int
		started, paused, ended int
		participants           string
		savedAt                int64
	)
	err := row.Scan(
		&snap.SessionID, &kind, &snap.Generation, &snap.ChannelID,
		&snap.GameType, &snap.OperatorID, &snap.TurnCount,
		&started, &paused, &ended, &participants, &snap.RulePayload, &savedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}

	snap.Kind = storage.SnapshotKind(kind)
	snap.Started = started != 0
	snap.Paused = paused != 0
	snap.Ended = ended != 0
	snap.SavedAt = time.UnixMilli(savedAt).UTC()
	if err := json.Unmarshal([]byte(participants), &snap.Participants); err != nil {
		return storage.Snapshot{}, fmt.Errorf("decode participants: %w", err)
	}
	return snap, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
