package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Aireo88/TFBot/internal/game/domain"
	"github.com/Aireo88/TFBot/internal/storage"
)

// autosaveTimeout bounds the background write so a slow disk cannot pile up
// goroutines behind a busy session.
const autosaveTimeout = 10 * time.Second

// buildSnapshot captures the session under its lock. Callers must hold the
// session's serializer lock.
func (s *Service) buildSnapshot(e *entry) (storage.Snapshot, error) {
	var payload []byte
	if err := guardRule(e.session.ID, func() error {
		var marshalErr error
		payload, marshalErr = e.rules.MarshalData(e.session)
		return marshalErr
	}); err != nil {
		return storage.Snapshot{}, fmt.Errorf("marshal rule payload: %w", err)
	}

	participants := e.session.Participants().All()
	records := make([]storage.ParticipantRecord, 0, len(participants))
	for _, p := range participants {
		records = append(records, storage.ParticipantRecord{
			ID:         p.ID,
			Role:       p.Role,
			Coordinate: p.Coordinate,
			Sequence:   p.Sequence,
			Background: p.Background,
			Outfit:     p.Outfit,
			Forfeited:  p.Forfeited,
			SwapLink:   p.SwapLink,
		})
	}

	return storage.Snapshot{
		SessionID:    e.session.ID,
		ChannelID:    e.session.ChannelID,
		GameType:     e.session.GameType,
		OperatorID:   e.session.OperatorID,
		TurnCount:    e.session.TurnCount,
		Started:      e.session.Started,
		Paused:       e.session.Paused,
		Ended:        e.session.Ended,
		Participants: records,
		RulePayload:  payload,
		SavedAt:      s.now(),
	}, nil
}

// autosave captures the snapshot synchronously under the lock and writes it
// in the background, best effort.
func (s *Service) autosave(ctx context.Context, e *entry) {
	if s.store == nil {
		return
	}
	snap, err := s.buildSnapshot(e)
	if err != nil {
		log.Printf("autosave skipped session_id=%s err=%v", e.session.ID, err)
		return
	}
	s.pendingSaves.Add(1)
	go func() {
		defer s.pendingSaves.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), autosaveTimeout)
		defer cancel()
		gen, err := s.store.SaveAuto(ctx, snap)
		if err != nil {
			log.Printf("autosave failed session_id=%s err=%v", snap.SessionID, err)
			return
		}
		log.Printf("autosave session_id=%s generation=%d", snap.SessionID, gen)
	}()
}

// restoreEntry rebuilds a session and its rule payload from a snapshot.
// Rule-payload restore sanitizes rather than rejects; the returned warnings
// surface anything sanitizing could not make whole.
func (s *Service) restoreEntry(snap storage.Snapshot) (*entry, []string, error) {
	rs, err := s.registry.New(snap.GameType)
	if err != nil {
		return nil, nil, fmt.Errorf("restore rules: %w", err)
	}

	session := &domain.Session{
		ID:         snap.SessionID,
		ChannelID:  snap.ChannelID,
		GameType:   snap.GameType,
		OperatorID: snap.OperatorID,
		Started:    snap.Started,
		Paused:     snap.Paused,
		Ended:      snap.Ended,
		TurnCount:  snap.TurnCount,
		CreatedAt:  snap.SavedAt,
		UpdatedAt:  s.now(),
	}
	for _, rec := range snap.Participants {
		p := &domain.Participant{
			ID:         rec.ID,
			Role:       rec.Role,
			Coordinate: rec.Coordinate,
			Sequence:   rec.Sequence,
			Background: rec.Background,
			Outfit:     rec.Outfit,
			Forfeited:  rec.Forfeited,
			SwapLink:   rec.SwapLink,
		}
		if err := session.Participants().Restore(p); err != nil {
			log.Printf("snapshot sanitize session_id=%s participant=%s err=%v", snap.SessionID, rec.ID, err)
		}
	}

	if err := guardRule(session.ID, func() error {
		return rs.UnmarshalData(session, snap.RulePayload)
	}); err != nil {
		return nil, nil, fmt.Errorf("restore rule payload: %w", err)
	}

	return &entry{session: session, rules: rs}, rs.LoadWarnings(session), nil
}
