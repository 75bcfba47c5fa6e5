// Package bus carries normalized messages between channels and whatever
// consumes them, keeping transport details out of both sides.
package bus

import (
	"context"
	"fmt"
	"time"
)

// InboundMessage is a message that arrived on a channel.
type InboundMessage struct {
	Channel   string         `json:"channel"`
	SenderID  string         `json:"sender_id"`
	ChatID    string         `json:"chat_id"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Media     []string       `json:"media,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SessionKey identifies the conversation this message belongs to.
func (m InboundMessage) SessionKey() string {
	return fmt.Sprintf("%s:%s", m.Channel, m.ChatID)
}

// OutboundMessage is a reply on its way out through a channel.
type OutboundMessage struct {
	Channel  string         `json:"channel"`
	ChatID   string         `json:"chat_id"`
	Content  string         `json:"content"`
	ReplyTo  string         `json:"reply_to,omitempty"`
	Media    []string       `json:"media,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Bus moves messages between producers and consumers.
type Bus interface {
	// PublishInbound hands a received message to consumers.
	PublishInbound(ctx context.Context, msg InboundMessage) error
	// PublishOutbound queues a reply for delivery by a channel.
	PublishOutbound(ctx context.Context, msg OutboundMessage) error
	// Inbound is the stream of received messages.
	Inbound() <-chan InboundMessage
	// Outbound is the stream of replies awaiting delivery.
	Outbound() <-chan OutboundMessage
}
