// Package serializer makes game-state mutation appear serial per session.
// It owns one advisory lock per session; events arriving while a lock is
// held are captured in full, suppressed from the live channel, and replayed
// through the normal dispatch path in arrival order once the lock releases.
package serializer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Aireo88/TFBot/internal/transport"
)

// ErrLockHeld indicates the session's lock is already held. Dispatch paths
// never see this when interception runs first; it guards direct callers.
var ErrLockHeld = errors.New("session lock already held")

// Dispatcher is the normal dispatch entry point replayed events re-enter.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev transport.Inbound) error
}

// QueuedEvent is the captured snapshot of one intercepted event. Every
// attachment is read to completion before the original event is discarded.
type QueuedEvent struct {
	ChannelID   string
	AuthorID    string
	Text        string
	ReplyToID   string
	Attachments []transport.Attachment
	ArrivedAt   time.Time
}

// queueSlot reserves one event's replay position at interception time. The
// payload is filled in once capture completes, so slow attachment fetches
// cannot reorder the queue.
type queueSlot struct {
	ready bool
	drop  bool
	ev    QueuedEvent
}

// gate is the per-session lock plus its replay queue. A forgotten gate
// replays whatever it still holds, then disappears.
type gate struct {
	held      bool
	forgotten bool
	queue     []*queueSlot
}

// Serializer coordinates per-session locks. Locks on different sessions are
// fully independent.
type Serializer struct {
	chat       transport.Chat
	dispatcher Dispatcher
	tracer     trace.Tracer

	mu    sync.Mutex
	gates map[string]*gate
}

// New creates a serializer over the chat surface. Bind must be called with
// the dispatch entry point before any lock is taken.
func New(chat transport.Chat) *Serializer {
	return &Serializer{
		chat:   chat,
		tracer: otel.Tracer("tfbot/serializer"),
		gates:  make(map[string]*gate),
	}
}

// Bind sets the dispatch entry point replays go through. It exists because
// the dispatcher itself is constructed with this serializer.
func (s *Serializer) Bind(d Dispatcher) {
	s.dispatcher = d
}

// Locked reports whether the session's lock is currently held.
func (s *Serializer) Locked(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[sessionID]
	return ok && g.held
}

// WithLock runs op with exclusive mutation rights for the session. Whether
// op succeeds or fails, the session's replay queue is drained afterwards in
// arrival order.
func (s *Serializer) WithLock(ctx context.Context, sessionID string, op func(context.Context) error) error {
	s.mu.Lock()
	g := s.gateLocked(sessionID)
	if g.held {
		s.mu.Unlock()
		return ErrLockHeld
	}
	g.held = true
	s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "serializer.lock",
		trace.WithAttributes(attribute.String("session.id", sessionID)))

	opErr := op(ctx)
	if opErr != nil {
		log.Printf("locked operation failed session_id=%s err=%v", sessionID, opErr)
	}

	s.mu.Lock()
	g.held = false
	s.mu.Unlock()
	span.End()

	s.drain(ctx, sessionID)
	return opErr
}

// Intercept captures, suppresses, and queues an event when the session's
// lock is held. It returns true when the event was taken over and the caller
// must not dispatch it. Replayed events pass straight through.
func (s *Serializer) Intercept(ctx context.Context, sessionID string, ev transport.Inbound) bool {
	if ev.Replayed {
		return false
	}

	s.mu.Lock()
	g := s.gateLocked(sessionID)
	if !g.held {
		s.mu.Unlock()
		return false
	}
	// Reserve the replay position now; the queue must keep arrival order
	// even when a later event finishes capturing first.
	slot := &queueSlot{}
	g.queue = append(g.queue, slot)
	s.mu.Unlock()

	queued := s.capture(ctx, ev)

	if err := s.chat.Delete(ctx, ev.ChannelID, ev.EventID); err != nil {
		log.Printf("suppress failed session_id=%s channel_id=%s event_id=%s err=%v", sessionID, ev.ChannelID, ev.EventID, err)
	}

	if queued == nil {
		log.Printf("event dropped session_id=%s event_id=%s author_id=%s reason=empty_capture", sessionID, ev.EventID, ev.AuthorID)
	}

	s.mu.Lock()
	slot.ready = true
	if queued == nil {
		slot.drop = true
	} else {
		slot.ev = *queued
	}
	idle := !g.held
	s.mu.Unlock()

	// The lock may have released while the payload was being read; in
	// that case nobody else will drain this queue.
	if idle {
		s.drain(ctx, sessionID)
	}
	return true
}

// capture materializes the event payload. Attachments that read to zero
// bytes are dropped (the text is kept) and the author is notified once per
// drop, never handed fabricated bytes. A capture with no text and no usable
// attachments returns nil.
func (s *Serializer) capture(ctx context.Context, ev transport.Inbound) *QueuedEvent {
	qe := &QueuedEvent{
		ChannelID: ev.ChannelID,
		AuthorID:  ev.AuthorID,
		Text:      ev.Text,
		ReplyToID: ev.ReplyToID,
		ArrivedAt: ev.ArrivedAt,
	}

	for _, ref := range ev.Attachments {
		data, err := s.chat.FetchAttachment(ctx, ref)
		if err != nil || len(data) == 0 {
			log.Printf("attachment dropped channel_id=%s event_id=%s attachment=%s err=%v", ev.ChannelID, ev.EventID, ref.Name, err)
			s.notifyDrop(ctx, ev.ChannelID, ref.Name)
			continue
		}
		qe.Attachments = append(qe.Attachments, transport.Attachment{
			Name:        ref.Name,
			ContentType: ref.ContentType,
			Data:        data,
		})
	}

	if qe.Text == "" && len(qe.Attachments) == 0 {
		return nil
	}
	return qe
}

func (s *Serializer) notifyDrop(ctx context.Context, channelID, name string) {
	msg := "An attachment could not be captured and was dropped."
	if name != "" {
		msg = "Attachment " + name + " could not be captured and was dropped."
	}
	if err := s.chat.Send(ctx, channelID, msg); err != nil {
		log.Printf("drop notice failed channel_id=%s err=%v", channelID, err)
	}
}

// drain replays queued events in arrival order through the dispatch entry
// point. A failed replay never stalls the rest of the queue; a head slot
// whose capture is still in flight pauses the drain until that capture
// finishes and resumes it.
func (s *Serializer) drain(ctx context.Context, sessionID string) {
	for {
		s.mu.Lock()
		g, ok := s.gates[sessionID]
		if !ok {
			s.mu.Unlock()
			return
		}
		if g.held {
			// A new holder took the lock; its own release drains the
			// rest in order.
			s.mu.Unlock()
			return
		}
		if len(g.queue) == 0 {
			if g.forgotten {
				delete(s.gates, sessionID)
			}
			s.mu.Unlock()
			return
		}
		slot := g.queue[0]
		if !slot.ready {
			s.mu.Unlock()
			return
		}
		g.queue = g.queue[1:]
		drop := slot.drop
		qe := slot.ev
		s.mu.Unlock()

		if drop {
			continue
		}
		s.replay(ctx, sessionID, qe)
	}
}

func (s *Serializer) replay(ctx context.Context, sessionID string, qe QueuedEvent) {
	ctx, span := s.tracer.Start(ctx, "serializer.replay",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("author.id", qe.AuthorID),
		))
	defer span.End()

	if s.dispatcher == nil {
		log.Printf("replay dropped session_id=%s reason=no_dispatcher", sessionID)
		return
	}

	ev := transport.Inbound{
		ChannelID: qe.ChannelID,
		AuthorID:  qe.AuthorID,
		Text:      qe.Text,
		ReplyToID: qe.ReplyToID,
		Captured:  qe.Attachments,
		ArrivedAt: qe.ArrivedAt,
		Replayed:  true,
	}
	if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
		log.Printf("replay dispatch failed session_id=%s author_id=%s err=%v", sessionID, qe.AuthorID, err)
	}
}

// QueueDepth reports how many events are waiting to replay for a session.
func (s *Serializer) QueueDepth(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[sessionID]
	if !ok {
		return 0
	}
	return len(g.queue)
}

// Forget retires the gate for an ended session. A gate that is still locked
// or still holds queued events replays them first and is removed once its
// queue empties; captured events are never discarded.
func (s *Serializer) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[sessionID]
	if !ok {
		return
	}
	if !g.held && len(g.queue) == 0 {
		delete(s.gates, sessionID)
		return
	}
	g.forgotten = true
}

func (s *Serializer) gateLocked(sessionID string) *gate {
	g, ok := s.gates[sessionID]
	if !ok {
		g = &gate{}
		s.gates[sessionID] = g
	}
	return g
}
