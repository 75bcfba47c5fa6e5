package bus

import "context"

const defaultBufferSize = 64

// MemoryBus is an in-process Bus backed by buffered channels. Publishing
// blocks when a buffer is full until a consumer catches up or the context
// ends.
type MemoryBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus builds a MemoryBus with the given buffer size per
// direction. Sizes below one fall back to the default.
func NewMemoryBus(size int) *MemoryBus {
	if size < 1 {
		size = defaultBufferSize
	}
	return &MemoryBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(chan OutboundMessage, size),
	}
}

// PublishInbound enqueues msg for consumers.
func (b *MemoryBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishOutbound enqueues msg for channel delivery.
func (b *MemoryBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	select {
	case b.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inbound is the stream of received messages.
func (b *MemoryBus) Inbound() <-chan InboundMessage {
	return b.inbound
}

// Outbound is the stream of replies awaiting delivery.
func (b *MemoryBus) Outbound() <-chan OutboundMessage {
	return b.outbound
}
