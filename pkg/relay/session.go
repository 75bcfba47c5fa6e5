// Package relay maintains a subscription against one Nostr relay over a
// websocket, redialing with a fixed delay until told to stop.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hivemesh/nostrchan/pkg/event"
	"github.com/hivemesh/nostrchan/pkg/wire"
)

const (
	// DefaultReconnectDelay is the fixed pause between connection attempts.
	DefaultReconnectDelay = 5 * time.Second
	// DefaultHandshakeTimeout bounds the websocket dial.
	DefaultHandshakeTimeout = 10 * time.Second
)

// ErrConnection reports a failed dial, write, or read against the relay.
// The session treats these as retryable, never fatal.
var ErrConnection = errors.New("relay: connection error")

var errNotConnected = fmt.Errorf("%w: not connected", ErrConnection)

// State names the lifecycle phase of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateListening
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler consumes events delivered on the session's subscription. It
// runs on the session's reader goroutine, so it must not block for long.
type Handler func(ev *event.Event)

// Config wires a Session to one relay.
type Config struct {
	// URL is the ws:// or wss:// relay address.
	URL string
	// PubKey, when set, suppresses events we published ourselves: relays
	// echo them back on the subscription.
	PubKey string
	// Filter is the subscription filter. It is serialized once at Start
	// and reissued byte for byte on every reconnect.
	Filter wire.Filter
	// ReconnectDelay overrides DefaultReconnectDelay.
	ReconnectDelay time.Duration
	// HandshakeTimeout overrides DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// Session is the relay connection state machine. One goroutine (the
// Start caller) owns all reads; writes go through a mutex.
type Session struct {
	cfg    Config
	logger *zap.SugaredLogger
	subID  string

	running  atomic.Bool
	stopped  atomic.Bool
	state    atomic.Int32
	reqFrame []byte

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewSession validates cfg and prepares a session. Nothing is dialed
// until Start.
func NewSession(cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, errors.New("relay: URL is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Session{
		cfg:    cfg,
		logger: cfg.Logger.Sugar(),
		subID:  fmt.Sprintf("chan-%s", uuid.New().String()[:8]),
	}, nil
}

// SubscriptionID returns the id this session subscribes under.
func (s *Session) SubscriptionID() string {
	return s.subID
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Start runs the connect, subscribe, listen loop until ctx is canceled or
// Stop is called. Connection failures are logged and retried after the
// configured delay; they never propagate out.
func (s *Session) Start(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("relay: handler is required")
	}
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("relay: session already started")
	}
	if s.stopped.Load() {
		s.running.Store(false)
		return errors.New("relay: session is stopped")
	}
	defer s.setState(StateStopped)

	req, err := wire.ReqMessage(s.subID, s.cfg.Filter)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("building subscription frame: %w", err)
	}
	s.reqFrame = req

	for s.running.Load() && ctx.Err() == nil {
		if err := s.runConnection(ctx, handler); err != nil {
			s.logger.Warnw("Relay connection lost", "relay", s.cfg.URL, "error", err)
		}
		s.setState(StateDisconnected)
		if !s.running.Load() || ctx.Err() != nil {
			break
		}

		s.logger.Infow("Reconnecting to relay", "relay", s.cfg.URL, "delay", s.cfg.ReconnectDelay)
		select {
		case <-time.After(s.cfg.ReconnectDelay):
		case <-ctx.Done():
		}
	}

	s.running.Store(false)
	return nil
}

// runConnection handles a single dial: subscribe, then read frames until
// the connection dies or the session is asked to stop.
func (s *Session) runConnection(ctx context.Context, handler Handler) error {
	s.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %v", ErrConnection, s.cfg.URL, err)
	}

	s.setConn(conn)
	defer func() {
		s.setConn(nil)
		conn.Close()
	}()

	// Unblock the reader if the context ends while we are mid-read.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	if err := s.write(s.reqFrame); err != nil {
		return fmt.Errorf("%w: subscribing: %v", ErrConnection, err)
	}
	s.setState(StateSubscribed)
	s.logger.Infow("Subscribed to relay", "relay", s.cfg.URL, "subscriptionID", s.subID)

	s.setState(StateListening)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !s.running.Load() || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: reading: %v", ErrConnection, err)
		}
		s.dispatch(data, handler)
	}
}

// dispatch routes one inbound frame. Malformed frames are logged and
// skipped; nothing here may take the session down.
func (s *Session) dispatch(data []byte, handler Handler) {
	env, err := wire.ParseMessage(data)
	if err != nil {
		s.logger.Warnw("Dropping malformed frame", "relay", s.cfg.URL, "error", err)
		return
	}

	switch e := env.(type) {
	case wire.EventEnvelope:
		if e.Event == nil {
			return
		}
		if s.cfg.PubKey != "" && e.Event.PubKey == s.cfg.PubKey {
			// Our own events echoed back by the relay.
			return
		}
		handler(e.Event)
	case wire.EOSEEnvelope:
		s.logger.Debugw("End of stored events", "subscriptionID", e.SubscriptionID)
	case wire.NoticeEnvelope:
		s.logger.Infow("Relay notice", "relay", s.cfg.URL, "message", e.Message)
	case wire.OKEnvelope:
		if e.Accepted {
			s.logger.Debugw("Event accepted", "eventID", e.EventID)
		} else {
			s.logger.Warnw("Event rejected by relay", "eventID", e.EventID, "reason", e.Reason)
		}
	case wire.ClosedEnvelope:
		s.logger.Warnw("Subscription closed by relay", "subscriptionID", e.SubscriptionID, "reason", e.Reason)
	default:
		s.logger.Debugw("Ignoring frame", "label", env.Label())
	}
}

// Send publishes ev on the current connection. While disconnected the
// event is dropped, not queued: delivery here is at most once.
func (s *Session) Send(ev *event.Event) error {
	frame, err := wire.EventMessage(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	if err := s.write(frame); err != nil {
		if errors.Is(err, errNotConnected) {
			s.logger.Debugw("Not connected, dropping event", "eventID", ev.ID, "kind", ev.Kind)
			return nil
		}
		return fmt.Errorf("%w: writing event: %v", ErrConnection, err)
	}
	return nil
}

// Stop ends the session for good and unblocks the reader. It is safe to
// call more than once and from any goroutine.
func (s *Session) Stop() {
	s.stopped.Store(true)
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}

	s.logger.Infow("Session stopped", "relay", s.cfg.URL, "subscriptionID", s.subID)
}

func (s *Session) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Session) write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errNotConnected
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}
