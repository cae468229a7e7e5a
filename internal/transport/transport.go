// Package transport defines the chat boundary the game service speaks over.
// The channel runtime delivers player input as an unordered stream of
// asynchronous events with no mutual exclusion; everything above this
// boundary assumes only eventual delivery.
package transport

import (
	"context"
	"time"
)

// AttachmentRef points at a binary payload that has not been materialized
// yet. Fetching it may suspend at an I/O boundary.
type AttachmentRef struct {
	ID          string
	Name        string
	ContentType string
	URL         string
}

// Inbound is one event delivered by the chat runtime.
type Inbound struct {
	EventID   string
	ChannelID string
	AuthorID  string
	Text      string

	Attachments []AttachmentRef

	// ReplyToID is the causal reference when the event replied to a prior
	// event, empty otherwise.
	ReplyToID string

	// ArrivedAt orders events FIFO per channel; it has no other meaning.
	ArrivedAt time.Time

	// Captured holds fully materialized attachment payloads on replayed
	// events; the original refs are gone once the source event has been
	// suppressed.
	Captured []Attachment

	// Replayed marks an event re-dispatched from the serializer's queue.
	// Replayed events are never re-queued or re-suppressed.
	Replayed bool
}

// Attachment is a fully materialized binary payload.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Chat is the send/delete surface of the channel runtime.
type Chat interface {
	// Send posts a message to a channel.
	Send(ctx context.Context, channelID, text string) error

	// Delete suppresses a delivered event from the live channel.
	Delete(ctx context.Context, channelID, eventID string) error

	// FetchAttachment reads an attachment's bytes to completion.
	FetchAttachment(ctx context.Context, ref AttachmentRef) ([]byte, error)
}
