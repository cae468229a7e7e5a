package serializer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Aireo88/TFBot/internal/transport"
)

type fakeChat struct {
	mu          sync.Mutex
	sent        []string
	deleted     []string
	attachments map[string][]byte
	fetchErr    error
	// fetchBlock, when set, stalls FetchAttachment until closed.
	fetchBlock chan struct{}
}

func newFakeChat() *fakeChat {
	return &fakeChat{attachments: make(map[string][]byte)}
}

func (c *fakeChat) Send(_ context.Context, channelID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeChat) Delete(_ context.Context, channelID, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, eventID)
	return nil
}

func (c *fakeChat) FetchAttachment(_ context.Context, ref transport.AttachmentRef) ([]byte, error) {
	c.mu.Lock()
	block := c.fetchBlock
	fetchErr := c.fetchErr
	data := c.attachments[ref.ID]
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return data, nil
}

// replayRecorder collects dispatched events in order.
type replayRecorder struct {
	mu     sync.Mutex
	events []transport.Inbound
	fail   map[string]bool
}

func (r *replayRecorder) Dispatch(_ context.Context, ev transport.Inbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.fail[ev.Text] {
		return errors.New("dispatch rejected")
	}
	return nil
}

func (r *replayRecorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Text)
	}
	return out
}

func inbound(text string) transport.Inbound {
	return transport.Inbound{
		EventID:   "ev-" + text,
		ChannelID: "channel-1",
		AuthorID:  "alice",
		Text:      text,
		ArrivedAt: time.Now(),
	}
}

func TestReplayPreservesArrivalOrder(t *testing.T) {
	chat := newFakeChat()
	s := New(chat)
	recorder := &replayRecorder{}
	s.Bind(recorder)

	err := s.WithLock(context.Background(), "session-1", func(ctx context.Context) error {
		for i := 1; i <= 5; i++ {
			ev := inbound(fmt.Sprintf("event-%d", i))
			if !s.Intercept(ctx, "session-1", ev) {
				t.Fatalf("event %d not intercepted while lock held", i)
			}
		}
		if depth := s.QueueDepth("session-1"); depth != 5 {
			t.Fatalf("queue depth = %d, want 5", depth)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	got := recorder.texts()
	want := []string{"event-1", "event-2", "event-3", "event-4", "event-5"}
	if len(got) != len(want) {
		t.Fatalf("replayed = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("replay order = %v, want %v", got, want)
		}
		if !recorder.events[i].Replayed {
			t.Errorf("event %d not marked replayed", i)
		}
	}
	if len(chat.deleted) != 5 {
		t.Errorf("suppressed %d originals, want 5", len(chat.deleted))
	}
}

func TestSlowCaptureKeepsArrivalOrder(t *testing.T) {
	chat := newFakeChat()
	chat.attachments["slow"] = []byte("payload")
	block := make(chan struct{})
	chat.fetchBlock = block

	s := New(chat)
	recorder := &replayRecorder{}
	s.Bind(recorder)

	var wg sync.WaitGroup
	err := s.WithLock(context.Background(), "session-1", func(ctx context.Context) error {
		first := inbound("first")
		first.Attachments = []transport.AttachmentRef{{ID: "slow", Name: "portrait.png"}}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Intercept(ctx, "session-1", first)
		}()

		// The first event must claim its replay position before the
		// second arrives, even though its payload fetch is stalled.
		deadline := time.Now().Add(2 * time.Second)
		for s.QueueDepth("session-1") == 0 {
			if time.Now().After(deadline) {
				t.Fatal("first event never queued")
			}
			time.Sleep(time.Millisecond)
		}

		if !s.Intercept(ctx, "session-1", inbound("second")) {
			t.Fatal("second event not intercepted")
		}
		close(block)
		wg.Wait()
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	got := recorder.texts()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("replay order = %v, want [first second]", got)
	}
	if len(recorder.events) == 2 && len(recorder.events[0].Captured) != 1 {
		t.Errorf("stalled payload lost: %+v", recorder.events[0].Captured)
	}
}

func TestInterceptPassesWhenUnlocked(t *testing.T) {
	s := New(newFakeChat())
	if s.Intercept(context.Background(), "session-1", inbound("hello")) {
		t.Fatal("event intercepted with no lock held")
	}
}

func TestReplayedEventsPassThrough(t *testing.T) {
	s := New(newFakeChat())
	err := s.WithLock(context.Background(), "session-1", func(ctx context.Context) error {
		ev := inbound("hello")
		ev.Replayed = true
		if s.Intercept(ctx, "session-1", ev) {
			t.Error("replayed event re-intercepted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
}

func TestLockHeldIsExclusive(t *testing.T) {
	s := New(newFakeChat())
	err := s.WithLock(context.Background(), "session-1", func(ctx context.Context) error {
		if err := s.WithLock(ctx, "session-1", func(context.Context) error { return nil }); !errors.Is(err, ErrLockHeld) {
			t.Errorf("nested WithLock = %v, want ErrLockHeld", err)
		}
		// Other sessions stay independent.
		if err := s.WithLock(ctx, "session-2", func(context.Context) error { return nil }); err != nil {
			t.Errorf("sibling session lock: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if s.Locked("session-1") {
		t.Error("lock not released")
	}
}

func TestZeroByteAttachmentDroppedTextKept(t *testing.T) {
	chat := newFakeChat()
	chat.attachments["good"] = []byte("payload")
	chat.attachments["empty"] = nil

	s := New(chat)
	recorder := &replayRecorder{}
	s.Bind(recorder)

	err := s.WithLock(context.Background(), "session-1", func(ctx context.Context) error {
		ev := inbound("!join")
		ev.Attachments = []transport.AttachmentRef{
			{ID: "good", Name: "portrait.png"},
			{ID: "empty", Name: "broken.png"},
		}
		s.Intercept(ctx, "session-1", ev)
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	if len(recorder.events) != 1 {
		t.Fatalf("replayed %d events, want 1", len(recorder.events))
	}
	ev := recorder.events[0]
	if ev.Text != "!join" {
		t.Errorf("text lost: %q", ev.Text)
	}
	if len(ev.Captured) != 1 || ev.Captured[0].Name != "portrait.png" {
		t.Errorf("captured = %+v, want only the good attachment", ev.Captured)
	}
	if string(ev.Captured[0].Data) != "payload" {
		t.Errorf("captured payload = %q", ev.Captured[0].Data)
	}

	notified := strings.Join(chat.sent, "\n")
	if !strings.Contains(notified, "broken.png could not be captured") {
		t.Errorf("author not notified of the drop: %q", notified)
	}
}

func TestEmptyCaptureDroppedEntirely(t *testing.T) {
	chat := newFakeChat()
	s := New(chat)
	recorder := &replayRecorder{}
	s.Bind(recorder)

	err := s.WithLock(context.Background(), "session-1", func(ctx context.Context) error {
		ev := inbound("")
		ev.Attachments = []transport.AttachmentRef{{ID: "missing", Name: "x.png"}}
		if !s.Intercept(ctx, "session-1", ev) {
			t.Error("event not taken over")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	if len(recorder.events) != 0 {
		t.Errorf("empty capture replayed: %v", recorder.texts())
	}
	if len(chat.deleted) != 1 {
		t.Errorf("original not suppressed")
	}
}

func TestFailedReplayDoesNotStallQueue(t *testing.T) {
	chat := newFakeChat()
	s := New(chat)
	recorder := &replayRecorder{fail: map[string]bool{"event-2": true}}
	s.Bind(recorder)

	err := s.WithLock(context.Background(), "session-1", func(ctx context.Context) error {
		for i := 1; i <= 3; i++ {
			s.Intercept(ctx, "session-1", inbound(fmt.Sprintf("event-%d", i)))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	got := recorder.texts()
	if len(got) != 3 || got[2] != "event-3" {
		t.Fatalf("replayed = %v, want all three despite the failure", got)
	}
}

func TestOperationErrorStillDrains(t *testing.T) {
	chat := newFakeChat()
	s := New(chat)
	recorder := &replayRecorder{}
	s.Bind(recorder)

	opErr := errors.New("operation failed")
	err := s.WithLock(context.Background(), "session-1", func(ctx context.Context) error {
		s.Intercept(ctx, "session-1", inbound("queued"))
		return opErr
	})
	if !errors.Is(err, opErr) {
		t.Fatalf("WithLock = %v, want the operation error", err)
	}
	if got := recorder.texts(); len(got) != 1 || got[0] != "queued" {
		t.Errorf("queue not drained after failed operation: %v", got)
	}
}

func TestForgetClearsGate(t *testing.T) {
	s := New(newFakeChat())
	err := s.WithLock(context.Background(), "session-1", func(ctx context.Context) error {
		s.Intercept(ctx, "session-1", inbound(""))
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	s.Forget("session-1")
	if s.Locked("session-1") || s.QueueDepth("session-1") != 0 {
		t.Error("gate survived Forget")
	}
}

func TestForgetUnderLockReplaysQueueFirst(t *testing.T) {
	chat := newFakeChat()
	s := New(chat)
	recorder := &replayRecorder{}
	s.Bind(recorder)

	err := s.WithLock(context.Background(), "session-1", func(ctx context.Context) error {
		if !s.Intercept(ctx, "session-1", inbound("!join")) {
			t.Error("event not intercepted")
		}
		s.Forget("session-1")
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	if got := recorder.texts(); len(got) != 1 || got[0] != "!join" {
		t.Fatalf("queued event lost across Forget: %v", got)
	}

	s.mu.Lock()
	_, lingering := s.gates["session-1"]
	s.mu.Unlock()
	if lingering {
		t.Error("gate not removed once the queue drained")
	}
}
