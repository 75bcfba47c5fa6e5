// Package incarnation bootstraps an identity: it fetches the encrypted
// identity vault from a relay, opens it with the master key, and leaves
// the decrypted document in the workspace for the identity loader.
package incarnation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hivemesh/nostrchan/pkg/event"
	"github.com/hivemesh/nostrchan/pkg/identity"
	"github.com/hivemesh/nostrchan/pkg/vault"
	"github.com/hivemesh/nostrchan/pkg/wire"
)

const (
	// EnvIdentityID names the identity to fetch at boot.
	EnvIdentityID = "NOSTRCHAN_IDENTITY_ID"
	// EnvMasterKey names the vault password.
	EnvMasterKey = "NOSTRCHAN_MASTER_KEY"
	// EnvWorkspace names the directory the runtime document lands in.
	EnvWorkspace = "NOSTRCHAN_WORKSPACE"
)

const (
	// subscriptionID is fixed: the subscription lives for exactly one
	// fetch, and a stable name is easier to spot in relay logs.
	subscriptionID = "incarnation-1"
	// DefaultTimeout bounds the dial and each relay read.
	DefaultTimeout = 5 * time.Second
	// DefaultWorkspace receives the runtime document when no workspace
	// is configured.
	DefaultWorkspace = "workspace"
)

var (
	// ErrNotFound means the relay answered but holds no such identity.
	ErrNotFound = errors.New("incarnation: identity not found on relay")
	// ErrTimeout means the relay did not answer in time.
	ErrTimeout = errors.New("incarnation: timed out waiting for relay")
	// ErrConnection means the relay could not be reached at all.
	ErrConnection = errors.New("incarnation: connection failed")
	// ErrDecryptionFailed means the vault would not open with the given
	// master key.
	ErrDecryptionFailed = errors.New("incarnation: could not open identity vault")
)

// Config selects the identity to incarnate and where to put it.
type Config struct {
	// RelayURL is the ws:// or wss:// relay address.
	RelayURL string
	// IdentityID is the "d" tag of the identity vault event.
	IdentityID string
	// MasterKey opens the vault.
	MasterKey string
	// Workspace overrides DefaultWorkspace.
	Workspace string
	// Timeout overrides DefaultTimeout.
	Timeout time.Duration
	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// Incarnate fetches the identity vault named by cfg.IdentityID, opens it
// with the master key, and writes the document into the workspace. It
// returns the path of the written file.
func Incarnate(ctx context.Context, cfg Config) (string, error) {
	if cfg.RelayURL == "" || cfg.IdentityID == "" || cfg.MasterKey == "" {
		return "", errors.New("incarnation: relay URL, identity id and master key are all required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Workspace == "" {
		cfg.Workspace = DefaultWorkspace
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.Sugar()

	dialer := websocket.Dialer{HandshakeTimeout: cfg.Timeout}
	conn, _, err := dialer.DialContext(ctx, cfg.RelayURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: dialing %s: %v", ErrConnection, cfg.RelayURL, err)
	}
	defer conn.Close()

	req, err := wire.ReqMessage(subscriptionID, wire.Filter{
		Kinds: []int{event.KindIdentityVault},
		Tags:  map[string][]string{"d": {cfg.IdentityID}},
		Limit: 1,
	})
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		return "", fmt.Errorf("%w: sending request: %v", ErrConnection, err)
	}
	logger.Infow("Fetching identity", "relay", cfg.RelayURL, "identityID", cfg.IdentityID)

	ev, err := awaitIdentity(conn, cfg.Timeout)
	if err != nil {
		return "", err
	}

	doc, err := vault.Open(ev.Content, cfg.MasterKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	path, err := writeRuntime(cfg.Workspace, doc)
	if err != nil {
		return "", err
	}
	logger.Infow("Incarnation complete", "identityID", cfg.IdentityID, "path", path)
	return path, nil
}

// awaitIdentity reads frames until the stored event arrives. EOSE first
// means the identity does not exist. Frames that do not parse are skipped.
func awaitIdentity(conn *websocket.Conn, timeout time.Duration) (*event.Event, error) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("%w: arming read deadline: %v", ErrConnection, err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				return nil, fmt.Errorf("%w: no answer within %s", ErrTimeout, timeout)
			}
			return nil, fmt.Errorf("%w: reading: %v", ErrConnection, err)
		}

		env, err := wire.ParseMessage(data)
		if err != nil {
			continue
		}
		switch e := env.(type) {
		case wire.EventEnvelope:
			if e.Event != nil {
				return e.Event, nil
			}
		case wire.EOSEEnvelope:
			return nil, ErrNotFound
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// writeRuntime persists doc where the identity loader looks for it.
func writeRuntime(workspace string, doc map[string]any) (string, error) {
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding identity: %w", err)
	}
	path := filepath.Join(workspace, identity.RuntimeFileName)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return "", fmt.Errorf("writing identity: %w", err)
	}
	return path, nil
}
