// Package channel bridges a Nostr relay subscription onto the message
// bus: notes and direct messages in, signed events out.
package channel

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hivemesh/nostrchan/pkg/bus"
	"github.com/hivemesh/nostrchan/pkg/event"
	"github.com/hivemesh/nostrchan/pkg/nip04"
	"github.com/hivemesh/nostrchan/pkg/relay"
	"github.com/hivemesh/nostrchan/pkg/schnorr"
	"github.com/hivemesh/nostrchan/pkg/wire"
)

// DecryptionPlaceholder replaces direct message content that would not
// decrypt. The conversation continues; only the payload is unreadable.
const DecryptionPlaceholder = "[decryption failed]"

// Channel is the Nostr end of the bus. One relay, one identity.
type Channel struct {
	cfg    Config
	logger *zap.SugaredLogger
	bus    bus.Bus

	privKey string
	pubKey  string

	mu      sync.Mutex
	session *relay.Session

	done     chan struct{}
	stopOnce sync.Once
}

// New derives the channel identity and prepares the bridge. The relay is
// not dialed until Start.
func New(cfg Config, b bus.Bus) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("channel: bus is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}

	logger := cfg.Logger.Sugar()

	priv := cfg.PrivateKey
	if priv == "" {
		sk, pk, err := schnorr.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generating identity: %w", err)
		}
		logger.Warnw("No private key configured, using a throwaway identity", "pubKey", pk)
		priv = sk
	}
	pub, err := schnorr.PublicKeyHex(priv)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}

	return &Channel{
		cfg:     cfg,
		logger:  logger,
		bus:     b,
		privKey: priv,
		pubKey:  pub,
		done:    make(chan struct{}),
	}, nil
}

// PubKey returns the channel's x-only public key in hex.
func (c *Channel) PubKey() string {
	return c.pubKey
}

// subscribeLimit caps how much history the relay replays on subscribe.
const subscribeLimit = 50

// Start subscribes to the relay and pumps messages both ways until ctx is
// canceled or Stop is called.
func (c *Channel) Start(ctx context.Context) error {
	since := time.Now().Add(-c.cfg.Lookback).Unix()
	sess, err := relay.NewSession(relay.Config{
		URL:    c.cfg.RelayURL,
		PubKey: c.pubKey,
		Filter: wire.Filter{
			Kinds: []int{event.KindTextNote, event.KindEncryptedDirectMessage},
			Since: &since,
			Limit: subscribeLimit,
		},
		ReconnectDelay: c.cfg.ReconnectDelay,
		Logger:         c.cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating relay session: %w", err)
	}

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	go c.pumpOutbound(ctx)

	c.logger.Infow("Starting nostr channel", "relay", c.cfg.RelayURL, "pubKey", c.pubKey)
	return sess.Start(ctx, func(ev *event.Event) { c.handleEvent(ctx, ev) })
}

// Stop ends the channel and its relay session.
func (c *Channel) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		sess := c.session
		c.mu.Unlock()
		if sess != nil {
			sess.Stop()
		}
	})
}

// handleEvent normalizes one subscribed event onto the bus.
func (c *Channel) handleEvent(ctx context.Context, ev *event.Event) {
	content := ev.Content
	if ev.Kind == event.KindEncryptedDirectMessage {
		content = c.decryptDirectMessage(ev)
	}

	msg := bus.InboundMessage{
		Channel:   Name,
		SenderID:  ev.PubKey,
		ChatID:    ev.PubKey,
		Content:   content,
		Timestamp: time.Unix(ev.CreatedAt, 0),
		Metadata: map[string]any{
			"event_id": ev.ID,
			"kind":     ev.Kind,
		},
	}
	if err := c.bus.PublishInbound(ctx, msg); err != nil {
		c.logger.Warnw("Dropping inbound message", "eventID", ev.ID, "error", err)
		return
	}
	c.logger.Debugw("Received event", "eventID", ev.ID, "kind", ev.Kind, "sender", ev.PubKey)
}

func (c *Channel) decryptDirectMessage(ev *event.Event) string {
	secret, err := nip04.SharedSecret(c.privKey, ev.PubKey)
	if err == nil {
		var plaintext string
		if plaintext, err = nip04.Decrypt(ev.Content, secret); err == nil {
			return plaintext
		}
	}
	c.logger.Warnw("Could not decrypt direct message", "eventID", ev.ID, "sender", ev.PubKey, "error", err)
	return DecryptionPlaceholder
}

// pumpOutbound drains the bus and publishes replies until the channel or
// the context ends.
func (c *Channel) pumpOutbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.bus.Outbound():
			if msg.Channel != Name {
				c.logger.Debugw("Skipping message for another channel", "channel", msg.Channel)
				continue
			}
			if err := c.SendMessage(msg.ChatID, msg.Content); err != nil {
				c.logger.Warnw("Failed to send message", "chatID", msg.ChatID, "error", err)
			}
		}
	}
}

// SendMessage signs and publishes content. A recipient that looks like an
// x-only public key gets a kind 4 encrypted direct message; anything else
// goes out as a public note.
func (c *Channel) SendMessage(recipient, content string) error {
	ev := &event.Event{
		PubKey:    c.pubKey,
		CreatedAt: time.Now().Unix(),
		Kind:      event.KindTextNote,
		Content:   content,
	}

	if isHexPubKey(recipient) {
		secret, err := nip04.SharedSecret(c.privKey, recipient)
		if err != nil {
			return fmt.Errorf("deriving conversation key: %w", err)
		}
		sealed, err := nip04.Encrypt(content, secret)
		if err != nil {
			return fmt.Errorf("encrypting message: %w", err)
		}
		ev.Kind = event.KindEncryptedDirectMessage
		ev.Content = sealed
		ev.Tags = [][]string{{"p", recipient}}
	}

	if err := ev.Sign(c.privKey); err != nil {
		return fmt.Errorf("signing event: %w", err)
	}

	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		c.logger.Debugw("Channel not started, dropping event", "eventID", ev.ID)
		return nil
	}

	if err := sess.Send(ev); err != nil {
		return err
	}
	c.logger.Debugw("Published event", "eventID", ev.ID, "kind", ev.Kind)
	return nil
}

func isHexPubKey(recipient string) bool {
	if len(recipient) != 64 {
		return false
	}
	_, err := hex.DecodeString(recipient)
	return err == nil
}
