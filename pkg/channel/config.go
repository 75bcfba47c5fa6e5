package channel

import (
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/hivemesh/nostrchan/pkg/schnorr"
)

const (
	// EnvRelayURL names the relay websocket address.
	EnvRelayURL = "NOSTRCHAN_RELAY_URL"
	// EnvPrivateKey names the hex signing key for the channel identity.
	EnvPrivateKey = "NOSTRCHAN_PRIVATE_KEY"
)

const (
	// Name tags bus messages produced by this channel.
	Name = "nostr"
	// DefaultLookback bounds how much history the subscription replays.
	DefaultLookback = time.Hour
)

// Config wires a Channel to a relay and an identity.
type Config struct {
	// RelayURL is the ws:// or wss:// relay address.
	RelayURL string
	// PrivateKey is the hex signing key. Empty means a throwaway identity
	// is generated at construction.
	PrivateKey string
	// Lookback overrides DefaultLookback.
	Lookback time.Duration
	// ReconnectDelay is passed through to the relay session.
	ReconnectDelay time.Duration
	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// Validate checks the configuration for completeness.
func (c *Config) Validate() error {
	var allErrors field.ErrorList

	if c.RelayURL == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("relayURL"), "relayURL is required"))
	}
	if c.PrivateKey != "" {
		if _, err := schnorr.PublicKeyHex(c.PrivateKey); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("privateKey"), "<redacted>", err.Error()))
		}
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
