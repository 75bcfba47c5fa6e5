package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_PublishAndConsume(t *testing.T) {
	b := NewMemoryBus(4)
	ctx := context.Background()

	in := InboundMessage{
		Channel:   "nostr",
		SenderID:  "abc",
		ChatID:    "abc",
		Content:   "hello",
		Timestamp: time.Unix(1700000000, 0),
	}
	require.NoError(t, b.PublishInbound(ctx, in))

	select {
	case got := <-b.Inbound():
		assert.Equal(t, in, got)
	case <-time.After(time.Second):
		t.Fatal("inbound message never arrived")
	}

	out := OutboundMessage{Channel: "nostr", ChatID: "abc", Content: "hi back"}
	require.NoError(t, b.PublishOutbound(ctx, out))

	select {
	case got := <-b.Outbound():
		assert.Equal(t, out, got)
	case <-time.After(time.Second):
		t.Fatal("outbound message never arrived")
	}
}

func TestMemoryBus_PublishHonorsContext(t *testing.T) {
	b := NewMemoryBus(1)
	ctx := context.Background()

	// Fill the buffer, then a canceled context must unblock the publisher.
	require.NoError(t, b.PublishInbound(ctx, InboundMessage{Content: "one"}))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err := b.PublishInbound(canceled, InboundMessage{Content: "two"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryBus_SessionKey(t *testing.T) {
	m := InboundMessage{Channel: "nostr", ChatID: "deadbeef"}
	assert.Equal(t, "nostr:deadbeef", m.SessionKey())
}

func TestNewMemoryBus_DefaultSize(t *testing.T) {
	b := NewMemoryBus(0)
	require.Equal(t, defaultBufferSize, cap(b.inbound))
	require.Equal(t, defaultBufferSize, cap(b.outbound))
}
