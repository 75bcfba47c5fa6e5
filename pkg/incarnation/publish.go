package incarnation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hivemesh/nostrchan/pkg/event"
	"github.com/hivemesh/nostrchan/pkg/schnorr"
	"github.com/hivemesh/nostrchan/pkg/vault"
	"github.com/hivemesh/nostrchan/pkg/wire"
)

// PublishConfig describes an identity to seal and store on a relay.
type PublishConfig struct {
	// RelayURL is the ws:// or wss:// relay address.
	RelayURL string
	// IdentityID becomes the "d" tag, making the event replaceable per
	// identity.
	IdentityID string
	// Name is a display name tag. Defaults to IdentityID.
	Name string
	// MasterKey seals the vault.
	MasterKey string
	// PrivateKey signs the event. Empty means a fresh ephemeral key:
	// the vault is protected by the master key, not the signature.
	PrivateKey string
	// Document is the identity to seal.
	Document map[string]any
	// Timeout overrides DefaultTimeout.
	Timeout time.Duration
	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// Publish seals the document under the master key and stores it on the
// relay as an identity vault event, returning the event id once the
// relay acknowledges it.
func Publish(ctx context.Context, cfg PublishConfig) (string, error) {
	if cfg.RelayURL == "" || cfg.IdentityID == "" || cfg.MasterKey == "" {
		return "", errors.New("incarnation: relay URL, identity id and master key are all required")
	}
	if cfg.Document == nil {
		return "", errors.New("incarnation: document is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.Sugar()

	priv := cfg.PrivateKey
	if priv == "" {
		sk, pk, err := schnorr.GenerateKeyPair()
		if err != nil {
			return "", fmt.Errorf("generating publishing key: %w", err)
		}
		logger.Infow("Publishing with an ephemeral key", "pubKey", pk)
		priv = sk
	}
	pub, err := schnorr.PublicKeyHex(priv)
	if err != nil {
		return "", fmt.Errorf("deriving public key: %w", err)
	}

	sealed, err := vault.Seal(cfg.Document, cfg.MasterKey)
	if err != nil {
		return "", fmt.Errorf("sealing document: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = cfg.IdentityID
	}
	ev := &event.Event{
		PubKey:    pub,
		CreatedAt: time.Now().Unix(),
		Kind:      event.KindIdentityVault,
		Tags:      [][]string{{"d", cfg.IdentityID}, {"name", name}},
		Content:   sealed,
	}
	if err := ev.Sign(priv); err != nil {
		return "", fmt.Errorf("signing identity event: %w", err)
	}
	frame, err := wire.EventMessage(ev)
	if err != nil {
		return "", fmt.Errorf("encoding identity event: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.Timeout}
	conn, _, err := dialer.DialContext(ctx, cfg.RelayURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: dialing %s: %v", ErrConnection, cfg.RelayURL, err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return "", fmt.Errorf("%w: sending event: %v", ErrConnection, err)
	}

	if err := awaitOK(conn, ev.ID, cfg.Timeout); err != nil {
		return "", err
	}
	logger.Infow("Identity published", "identityID", cfg.IdentityID, "eventID", ev.ID)
	return ev.ID, nil
}

// awaitOK reads frames until the relay's verdict on eventID.
func awaitOK(conn *websocket.Conn, eventID string, timeout time.Duration) error {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("%w: arming read deadline: %v", ErrConnection, err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				return fmt.Errorf("%w: no acknowledgement within %s", ErrTimeout, timeout)
			}
			return fmt.Errorf("%w: reading: %v", ErrConnection, err)
		}

		env, err := wire.ParseMessage(data)
		if err != nil {
			continue
		}
		ok, isOK := env.(wire.OKEnvelope)
		if !isOK || ok.EventID != eventID {
			continue
		}
		if !ok.Accepted {
			return fmt.Errorf("incarnation: relay rejected identity: %s", ok.Reason)
		}
		return nil
	}
}
