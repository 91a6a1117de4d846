// Package bus decouples event intake from the processing pipeline:
// the platform layer publishes parsed inbound messages, the
// orchestrator consumes them.
package bus

import (
	"context"
	"log/slog"
)

// InboundMessage is one parsed chat message ready for classification.
type InboundMessage struct {
	MessageID   string
	ChatID      string
	ChatType    string // "p2p" or "group"
	SenderID    string
	MessageType string // "text", "post", "image", "audio", "file"
	Text        string
	ImageKey    string
	FileKey     string
	FileName    string
	Duration    int // audio length in ms
	Mentions    []Mention
}

// Mention is one @-mention attached to a message.
type Mention struct {
	Key    string // placeholder token inside the text
	OpenID string
	Name   string
}

// MessageBus is a bounded inbound queue. Publishing never blocks the
// intake path; messages beyond capacity are dropped with a warning.
type MessageBus struct {
	inbound chan InboundMessage
	log     *slog.Logger
}

func New(size int) *MessageBus {
	if size <= 0 {
		size = 256
	}
	return &MessageBus{
		inbound: make(chan InboundMessage, size),
		log:     slog.Default().With("component", "bus"),
	}
}

// PublishInbound enqueues a message for processing.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		b.log.Warn("inbound queue full, dropping message", "message_id", msg.MessageID, "chat_id", msg.ChatID)
	}
}

// ConsumeInbound blocks until a message is available or ctx ends.
// The second return is false when ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}
