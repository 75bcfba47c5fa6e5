package relay_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hivemesh/nostrchan/internal/testrelay"
	"github.com/hivemesh/nostrchan/pkg/event"
	"github.com/hivemesh/nostrchan/pkg/relay"
	"github.com/hivemesh/nostrchan/pkg/wire"
)

const waitTimeout = 2 * time.Second

func startSession(t *testing.T, cfg relay.Config) (*relay.Session, chan *event.Event, chan struct{}) {
	t.Helper()

	sess, err := relay.NewSession(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	events := make(chan *event.Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Start(ctx, func(ev *event.Event) { events <- ev })
	}()
	t.Cleanup(sess.Stop)
	return sess, events, done
}

func TestNewSession_Defaults(t *testing.T) {
	sess, err := relay.NewSession(relay.Config{URL: "ws://localhost:1"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sess.SubscriptionID(), "chan-"))
	assert.Len(t, sess.SubscriptionID(), len("chan-")+8)
	assert.Equal(t, relay.StateDisconnected, sess.State())

	_, err = relay.NewSession(relay.Config{})
	require.Error(t, err)
}

func TestSession_SubscribesOnConnect(t *testing.T) {
	srv := testrelay.New(t)

	sess, _, _ := startSession(t, relay.Config{
		URL:    srv.URL(),
		Filter: wire.Filter{Kinds: []int{event.KindTextNote}, Limit: 10},
		Logger: zaptest.NewLogger(t),
	})

	rf, ok := srv.WaitFrame(waitTimeout)
	require.True(t, ok, "expected a subscription frame")

	req, isReq := rf.Envelope.(wire.ReqEnvelope)
	require.True(t, isReq, "first frame should be REQ, got %s", rf.Envelope.Label())
	assert.Equal(t, sess.SubscriptionID(), req.SubscriptionID)
	require.Len(t, req.Filters, 1)
	assert.Equal(t, []int{event.KindTextNote}, req.Filters[0].Kinds)
	assert.Equal(t, 10, req.Filters[0].Limit)
}

func TestSession_DeliversEventsAndSuppressesEchoes(t *testing.T) {
	srv := testrelay.New(t)

	const selfPubKey = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	_, events, _ := startSession(t, relay.Config{
		URL:    srv.URL(),
		PubKey: selfPubKey,
		Logger: zaptest.NewLogger(t),
	})

	_, ok := srv.WaitFrame(waitTimeout)
	require.True(t, ok)

	echo := &event.Event{ID: "echo", PubKey: selfPubKey, Kind: event.KindTextNote, Content: "mine"}
	peer := &event.Event{ID: "peer", PubKey: "beef", Kind: event.KindTextNote, Content: "hello"}
	srv.Broadcast(echo)
	srv.Broadcast(peer)

	select {
	case ev := <-events:
		assert.Equal(t, "peer", ev.ID, "own events must not reach the handler")
		assert.Equal(t, "hello", ev.Content)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for broadcast event")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event %q", ev.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSession_ResubscribesAfterDisconnect(t *testing.T) {
	srv := testrelay.New(t)

	startSession(t, relay.Config{
		URL:            srv.URL(),
		Filter:         wire.Filter{Kinds: []int{event.KindTextNote, event.KindEncryptedDirectMessage}},
		ReconnectDelay: 20 * time.Millisecond,
		Logger:         zaptest.NewLogger(t),
	})

	first, ok := srv.WaitFrame(waitTimeout)
	require.True(t, ok)
	require.IsType(t, wire.ReqEnvelope{}, first.Envelope)

	srv.DropConnections()

	second, ok := srv.WaitFrame(waitTimeout)
	require.True(t, ok, "expected a resubscription after the drop")
	require.IsType(t, wire.ReqEnvelope{}, second.Envelope)

	// The subscription must come back byte for byte identical.
	assert.Equal(t, string(first.Raw), string(second.Raw))
}

func TestSession_SendPublishesEvent(t *testing.T) {
	srv := testrelay.New(t)

	sess, _, _ := startSession(t, relay.Config{
		URL:    srv.URL(),
		Logger: zaptest.NewLogger(t),
	})

	_, ok := srv.WaitFrame(waitTimeout)
	require.True(t, ok)

	ev := &event.Event{
		ID:        "abc123",
		PubKey:    "beef",
		CreatedAt: 1700000000,
		Kind:      event.KindTextNote,
		Content:   "ping",
	}
	require.NoError(t, sess.Send(ev))

	rf, ok := srv.WaitFrame(waitTimeout)
	require.True(t, ok)
	env, isEvent := rf.Envelope.(wire.EventEnvelope)
	require.True(t, isEvent, "expected EVENT frame, got %s", rf.Envelope.Label())
	require.NotNil(t, env.Event)
	assert.Equal(t, "abc123", env.Event.ID)
	assert.Equal(t, "ping", env.Event.Content)
}

func TestSession_SendWhileDisconnectedDropsSilently(t *testing.T) {
	sess, err := relay.NewSession(relay.Config{URL: "ws://localhost:1"})
	require.NoError(t, err)

	ev := &event.Event{ID: "lost", Kind: event.KindTextNote, Content: "nobody home"}
	assert.NoError(t, sess.Send(ev))
}

func TestSession_StopUnblocksStart(t *testing.T) {
	srv := testrelay.New(t)

	sess, _, done := startSession(t, relay.Config{
		URL:    srv.URL(),
		Logger: zaptest.NewLogger(t),
	})

	_, ok := srv.WaitFrame(waitTimeout)
	require.True(t, ok)

	sess.Stop()
	sess.Stop()

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Start did not return after Stop")
	}
	assert.Equal(t, relay.StateStopped, sess.State())

	err := sess.Start(context.Background(), func(*event.Event) {})
	require.Error(t, err, "a stopped session must not restart")
}

func TestSession_StartRejectsSecondCall(t *testing.T) {
	srv := testrelay.New(t)

	sess, _, _ := startSession(t, relay.Config{
		URL:    srv.URL(),
		Logger: zaptest.NewLogger(t),
	})

	_, ok := srv.WaitFrame(waitTimeout)
	require.True(t, ok)

	err := sess.Start(context.Background(), func(*event.Event) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}
