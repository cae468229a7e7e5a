package ws

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/Aireo88/TFBot/internal/transport"
)

type dispatchRecorder struct {
	mu     sync.Mutex
	events []transport.Inbound
	seen   chan transport.Inbound
}

func newDispatchRecorder() *dispatchRecorder {
	return &dispatchRecorder{seen: make(chan transport.Inbound, 16)}
}

func (d *dispatchRecorder) Dispatch(_ context.Context, ev transport.Inbound) error {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
	d.seen <- ev
	return nil
}

func dialGateway(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, err := websocket.Dial(url, "", server.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func awaitEvent(t *testing.T, d *dispatchRecorder) transport.Inbound {
	t.Helper()
	select {
	case ev := <-d.seen:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event dispatched")
		return transport.Inbound{}
	}
}

func TestInboundMessageDispatches(t *testing.T) {
	recorder := newDispatchRecorder()
	gateway := New(recorder, "tfbot")
	server := httptest.NewServer(gateway.Handler())
	defer server.Close()

	conn := dialGateway(t, server)
	if err := websocket.JSON.Send(conn, frame{Type: frameJoin, ChannelID: "channel-1", AuthorID: "alice"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	payload := []byte("portrait bytes")
	err := websocket.JSON.Send(conn, frame{
		Type:      frameMessage,
		ChannelID: "channel-1",
		Text:      "!join",
		Attachments: []frameAttachment{
			{Name: "portrait.png", ContentType: "image/png", Data: base64.StdEncoding.EncodeToString(payload)},
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	ev := awaitEvent(t, recorder)
	if ev.ChannelID != "channel-1" || ev.AuthorID != "alice" || ev.Text != "!join" {
		t.Fatalf("dispatched event = %+v", ev)
	}
	if len(ev.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(ev.Attachments))
	}

	got, err := gateway.FetchAttachment(context.Background(), ev.Attachments[0])
	if err != nil {
		t.Fatalf("FetchAttachment: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("attachment payload = %q", got)
	}
}

func TestSendFansOutToSubscribers(t *testing.T) {
	gateway := New(newDispatchRecorder(), "tfbot")
	server := httptest.NewServer(gateway.Handler())
	defer server.Close()

	conn := dialGateway(t, server)
	if err := websocket.JSON.Send(conn, frame{Type: frameJoin, ChannelID: "channel-1", AuthorID: "alice"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	// The join registration races the Send below; poll until the
	// subscriber is visible.
	deadline := time.Now().Add(5 * time.Second)
	for {
		gateway.mu.Lock()
		subscribed := len(gateway.channels["channel-1"]) == 1
		gateway.mu.Unlock()
		if subscribed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := gateway.Send(context.Background(), "channel-1", "Player 1 joined at A1."); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var got frame
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	if err := websocket.JSON.Receive(conn, &got); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got.Type != frameMessage || got.AuthorID != "tfbot" || got.Text != "Player 1 joined at A1." {
		t.Errorf("broadcast frame = %+v", got)
	}
}

func TestDeleteReleasesAttachments(t *testing.T) {
	recorder := newDispatchRecorder()
	gateway := New(recorder, "tfbot")
	server := httptest.NewServer(gateway.Handler())
	defer server.Close()

	conn := dialGateway(t, server)
	if err := websocket.JSON.Send(conn, frame{Type: frameJoin, ChannelID: "channel-1", AuthorID: "alice"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	err := websocket.JSON.Send(conn, frame{
		Type:        frameMessage,
		ChannelID:   "channel-1",
		Text:        "!act",
		Attachments: []frameAttachment{{Name: "roll.png", Data: base64.StdEncoding.EncodeToString([]byte("x"))}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	ev := awaitEvent(t, recorder)
	if err := gateway.Delete(context.Background(), "channel-1", ev.EventID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := gateway.FetchAttachment(context.Background(), ev.Attachments[0]); !errors.Is(err, ErrUnknownAttachment) {
		t.Errorf("FetchAttachment after delete = %v, want ErrUnknownAttachment", err)
	}
}
