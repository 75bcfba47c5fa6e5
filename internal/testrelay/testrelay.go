// Package testrelay runs an in-process Nostr relay for exercising
// websocket sessions in tests.
package testrelay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hivemesh/nostrchan/pkg/event"
	"github.com/hivemesh/nostrchan/pkg/wire"
)

// RecordedFrame is one frame received from a client. Envelope is nil
// when the frame did not parse.
type RecordedFrame struct {
	Envelope wire.Envelope
	Raw      []byte
}

// Relay is a scriptable relay backed by httptest. Configure the exported
// fields before clients connect; they are not safe to change afterwards.
type Relay struct {
	// StoredEvents are replayed, filtered, in response to REQ frames.
	StoredEvents []*event.Event
	// AcceptEvents controls the OK verdict for published events.
	AcceptEvents bool
	// OKReason is the reason string attached to OK frames.
	OKReason string
	// Silent suppresses all responses, leaving clients waiting.
	Silent bool

	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  []*clientConn
	frames []RecordedFrame

	framesCh  chan RecordedFrame
	closeOnce sync.Once
}

type clientConn struct {
	mu    sync.Mutex
	conn  *websocket.Conn
	subID string
}

// New starts a relay that accepts published events. It is shut down via
// t.Cleanup.
func New(t *testing.T) *Relay {
	t.Helper()

	r := &Relay{
		AcceptEvents: true,
		upgrader:     websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		framesCh:     make(chan RecordedFrame, 256),
	}
	r.srv = httptest.NewServer(http.HandlerFunc(r.handle))
	t.Cleanup(r.Close)
	return r
}

// URL returns the ws:// address of the relay.
func (r *Relay) URL() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

// Frames returns a snapshot of every frame received so far.
func (r *Relay) Frames() []RecordedFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedFrame, len(r.frames))
	copy(out, r.frames)
	return out
}

// WaitFrame blocks until a client sends the next frame or the timeout
// elapses.
func (r *Relay) WaitFrame(timeout time.Duration) (RecordedFrame, bool) {
	select {
	case rf := <-r.framesCh:
		return rf, true
	case <-time.After(timeout):
		return RecordedFrame{}, false
	}
}

// Broadcast delivers ev to every client with an active subscription.
func (r *Relay) Broadcast(ev *event.Event) {
	for _, cc := range r.clients() {
		sub := cc.subscriptionID()
		if sub == "" {
			continue
		}
		_ = cc.writeFrame("EVENT", sub, ev)
	}
}

// SendNotice sends a NOTICE frame to every connected client.
func (r *Relay) SendNotice(message string) {
	for _, cc := range r.clients() {
		_ = cc.writeFrame("NOTICE", message)
	}
}

// DropConnections severs every client connection while leaving the
// server up, forcing clients into their reconnect path.
func (r *Relay) DropConnections() {
	r.mu.Lock()
	conns := r.conns
	r.conns = nil
	r.mu.Unlock()

	for _, cc := range conns {
		cc.close()
	}
}

// Close drops all clients and shuts the server down.
func (r *Relay) Close() {
	r.closeOnce.Do(func() {
		r.DropConnections()
		r.srv.Close()
	})
}

func (r *Relay) handle(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	cc := &clientConn{conn: conn}
	r.mu.Lock()
	r.conns = append(r.conns, cc)
	r.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		env, _ := wire.ParseMessage(data)
		// Track subscription state before waiters see the frame, so a
		// test may Broadcast as soon as WaitFrame returns.
		switch e := env.(type) {
		case wire.ReqEnvelope:
			cc.setSubscriptionID(e.SubscriptionID)
		case wire.CloseEnvelope:
			cc.setSubscriptionID("")
		}
		r.record(data, env)

		if env == nil || r.Silent {
			continue
		}
		r.respond(cc, env)
	}
}

func (r *Relay) record(raw []byte, env wire.Envelope) {
	rf := RecordedFrame{Envelope: env, Raw: append([]byte(nil), raw...)}

	r.mu.Lock()
	r.frames = append(r.frames, rf)
	r.mu.Unlock()

	select {
	case r.framesCh <- rf:
	default:
	}
}

func (r *Relay) respond(cc *clientConn, env wire.Envelope) {
	switch e := env.(type) {
	case wire.ReqEnvelope:
		for _, ev := range r.StoredEvents {
			if len(e.Filters) > 0 && !e.Filters[0].Matches(ev) {
				continue
			}
			_ = cc.writeFrame("EVENT", e.SubscriptionID, ev)
		}
		_ = cc.writeFrame("EOSE", e.SubscriptionID)
	case wire.EventEnvelope:
		if e.Event == nil {
			return
		}
		_ = cc.writeFrame("OK", e.Event.ID, r.AcceptEvents, r.OKReason)
	}
}

func (r *Relay) clients() []*clientConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*clientConn, len(r.conns))
	copy(out, r.conns)
	return out
}

func (c *clientConn) writeFrame(parts ...any) error {
	data, err := json.Marshal(parts)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *clientConn) setSubscriptionID(id string) {
	c.mu.Lock()
	c.subID = id
	c.mu.Unlock()
}

func (c *clientConn) subscriptionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subID
}

func (c *clientConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.Close()
}
