// Package ws is the websocket chat gateway. It speaks JSON frames over
// golang.org/x/net/websocket, fans messages out to channel subscribers, and
// implements the transport.Chat contract the game service consumes: send,
// delete, and attachment materialization.
//
// Delivery to the dispatcher is asynchronous and unordered on purpose; the
// command serializer above this boundary is what restores causal order.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/Aireo88/TFBot/internal/game/domain"
	"github.com/Aireo88/TFBot/internal/transport"
)

// ErrUnknownAttachment indicates a fetch for a payload the gateway no longer
// holds.
var ErrUnknownAttachment = errors.New("unknown attachment")

// Dispatcher receives inbound events. The game service implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev transport.Inbound) error
}

// frame is the wire format, both directions.
type frame struct {
	Type        string            `json:"type"`
	ChannelID   string            `json:"channel_id,omitempty"`
	EventID     string            `json:"event_id,omitempty"`
	AuthorID    string            `json:"author_id,omitempty"`
	Text        string            `json:"text,omitempty"`
	ReplyToID   string            `json:"reply_to_id,omitempty"`
	Attachments []frameAttachment `json:"attachments,omitempty"`
	SentAt      time.Time         `json:"sent_at,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// frameAttachment carries a binary payload inline, base64 encoded.
type frameAttachment struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Data        string `json:"data,omitempty"`
}

const (
	frameJoin    = "join"
	frameMessage = "message"
	frameDelete  = "delete"
	frameError   = "error"
)

// peer is one websocket client. Writes are serialized per connection.
type peer struct {
	mu      sync.Mutex
	encoder *json.Encoder
	userID  string
}

func (p *peer) write(f frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(f)
}

// Gateway owns channel subscriptions and the attachment payloads backing
// unresolved AttachmentRefs.
type Gateway struct {
	dispatcher Dispatcher
	botName    string
	now        func() time.Time
	newID      func() (string, error)

	mu          sync.Mutex
	channels    map[string]map[*peer]struct{}
	attachments map[string][]byte
	// eventAttachments tracks which payloads belong to an event so a
	// delete can release them.
	eventAttachments map[string][]string
}

// New creates a gateway dispatching into d. botName labels outbound bot
// messages.
func New(d Dispatcher, botName string) *Gateway {
	if strings.TrimSpace(botName) == "" {
		botName = "tfbot"
	}
	return &Gateway{
		dispatcher:       d,
		botName:          botName,
		now:              time.Now,
		newID:            domain.NewID,
		channels:         make(map[string]map[*peer]struct{}),
		attachments:      make(map[string][]byte),
		eventAttachments: make(map[string][]string),
	}
}

// Bind sets the dispatch target after construction. The gateway and the
// game service reference each other, so one side binds late.
func (g *Gateway) Bind(d Dispatcher) {
	g.dispatcher = d
}

// Handler returns the HTTP routes: /up for health and /ws for the socket.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(g.handleConn)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
	return mux
}

func (g *Gateway) handleConn(conn *websocket.Conn) {
	p := &peer{encoder: json.NewEncoder(conn)}
	defer g.dropPeer(p)
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	for {
		var f frame
		if err := decoder.Decode(&f); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("ws decode failed remote=%s err=%v", conn.Request().RemoteAddr, err)
			}
			return
		}

		switch f.Type {
		case frameJoin:
			g.join(p, f)
		case frameMessage:
			g.inbound(p, f)
		default:
			_ = p.write(frame{Type: frameError, Error: fmt.Sprintf("unknown frame type %q", f.Type)})
		}
	}
}

func (g *Gateway) join(p *peer, f frame) {
	channelID := strings.TrimSpace(f.ChannelID)
	if channelID == "" {
		_ = p.write(frame{Type: frameError, Error: "join requires channel_id"})
		return
	}
	if id := strings.TrimSpace(f.AuthorID); id != "" {
		p.userID = id
	}

	g.mu.Lock()
	subscribers, ok := g.channels[channelID]
	if !ok {
		subscribers = make(map[*peer]struct{})
		g.channels[channelID] = subscribers
	}
	subscribers[p] = struct{}{}
	g.mu.Unlock()
	log.Printf("ws join channel_id=%s author_id=%s", channelID, p.userID)
}

// inbound materializes a client message: payloads move into the gateway's
// attachment table, the frame fans out to the channel, and the event is
// handed to the dispatcher without awaiting it.
func (g *Gateway) inbound(p *peer, f frame) {
	channelID := strings.TrimSpace(f.ChannelID)
	if channelID == "" {
		_ = p.write(frame{Type: frameError, Error: "message requires channel_id"})
		return
	}

	eventID, err := g.newID()
	if err != nil {
		log.Printf("ws event id failed channel_id=%s err=%v", channelID, err)
		return
	}
	authorID := p.userID
	if id := strings.TrimSpace(f.AuthorID); id != "" {
		authorID = id
	}

	var refs []transport.AttachmentRef
	var attachmentIDs []string
	for _, att := range f.Attachments {
		payload, decodeErr := base64.StdEncoding.DecodeString(att.Data)
		if decodeErr != nil {
			log.Printf("ws attachment dropped channel_id=%s event_id=%s name=%s err=%v", channelID, eventID, att.Name, decodeErr)
			continue
		}
		attID, idErr := g.newID()
		if idErr != nil {
			log.Printf("ws attachment id failed channel_id=%s err=%v", channelID, idErr)
			continue
		}
		g.mu.Lock()
		g.attachments[attID] = payload
		g.mu.Unlock()
		attachmentIDs = append(attachmentIDs, attID)
		refs = append(refs, transport.AttachmentRef{
			ID:          attID,
			Name:        att.Name,
			ContentType: att.ContentType,
		})
	}
	if len(attachmentIDs) > 0 {
		g.mu.Lock()
		g.eventAttachments[eventID] = attachmentIDs
		g.mu.Unlock()
	}

	out := frame{
		Type:        frameMessage,
		ChannelID:   channelID,
		EventID:     eventID,
		AuthorID:    authorID,
		Text:        f.Text,
		ReplyToID:   f.ReplyToID,
		SentAt:      g.now(),
		Attachments: redactPayloads(f.Attachments, refs),
	}
	g.broadcast(channelID, out, p)

	ev := transport.Inbound{
		EventID:     eventID,
		ChannelID:   channelID,
		AuthorID:    authorID,
		Text:        f.Text,
		Attachments: refs,
		ReplyToID:   f.ReplyToID,
		ArrivedAt:   g.now(),
	}
	if g.dispatcher == nil {
		return
	}
	go func() {
		if err := g.dispatcher.Dispatch(context.Background(), ev); err != nil {
			log.Printf("dispatch failed channel_id=%s event_id=%s err=%v", channelID, eventID, err)
		}
	}()
}

// redactPayloads keeps attachment metadata in fan-out frames but strips the
// raw bytes; subscribers that want them fetch by id.
func redactPayloads(in []frameAttachment, refs []transport.AttachmentRef) []frameAttachment {
	if len(refs) == 0 {
		return nil
	}
	out := make([]frameAttachment, 0, len(refs))
	for _, ref := range refs {
		out = append(out, frameAttachment{ID: ref.ID, Name: ref.Name, ContentType: ref.ContentType})
	}
	return out
}

func (g *Gateway) broadcast(channelID string, f frame, skip *peer) {
	g.mu.Lock()
	peers := make([]*peer, 0, len(g.channels[channelID]))
	for p := range g.channels[channelID] {
		if p != skip {
			peers = append(peers, p)
		}
	}
	g.mu.Unlock()

	for _, p := range peers {
		if err := p.write(f); err != nil {
			log.Printf("ws write failed channel_id=%s err=%v", channelID, err)
		}
	}
}

func (g *Gateway) dropPeer(p *peer) {
	g.mu.Lock()
	for channelID, subscribers := range g.channels {
		delete(subscribers, p)
		if len(subscribers) == 0 {
			delete(g.channels, channelID)
		}
	}
	g.mu.Unlock()
}

// Send broadcasts a bot message to everyone in the channel.
func (g *Gateway) Send(ctx context.Context, channelID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	eventID, err := g.newID()
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	g.broadcast(channelID, frame{
		Type:      frameMessage,
		ChannelID: channelID,
		EventID:   eventID,
		AuthorID:  g.botName,
		Text:      text,
		SentAt:    g.now(),
	}, nil)
	return nil
}

// Delete suppresses an event: subscribers get a delete frame and the
// gateway releases any payloads it still holds for it.
func (g *Gateway) Delete(ctx context.Context, channelID, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	for _, attID := range g.eventAttachments[eventID] {
		delete(g.attachments, attID)
	}
	delete(g.eventAttachments, eventID)
	g.mu.Unlock()

	g.broadcast(channelID, frame{
		Type:      frameDelete,
		ChannelID: channelID,
		EventID:   eventID,
		SentAt:    g.now(),
	}, nil)
	return nil
}

// FetchAttachment materializes a payload by reference.
func (g *Gateway) FetchAttachment(ctx context.Context, ref transport.AttachmentRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	payload, ok := g.attachments[ref.ID]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAttachment, ref.ID)
	}
	return append([]byte(nil), payload...), nil
}
