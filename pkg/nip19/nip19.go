// Package nip19 renders keys in the bech32 forms users paste around.
package nip19

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	// PrefixPublicKey marks an x-only public key.
	PrefixPublicKey = "npub"
	// PrefixSecretKey marks a secret key.
	PrefixSecretKey = "nsec"
)

// EncodePublicKey renders a hex x-only public key as npub.
func EncodePublicKey(pubkeyHex string) (string, error) {
	return encode(PrefixPublicKey, pubkeyHex)
}

// EncodePrivateKey renders a hex secret key as nsec.
func EncodePrivateKey(seckeyHex string) (string, error) {
	return encode(PrefixSecretKey, seckeyHex)
}

func encode(prefix, keyHex string) (string, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", fmt.Errorf("nip19: key is not hex: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("nip19: key must be 32 bytes, got %d", len(raw))
	}
	grouped, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("nip19: regrouping bits: %w", err)
	}
	return bech32.Encode(prefix, grouped)
}

// Decode parses an npub or nsec back into its prefix and hex payload.
func Decode(encoded string) (string, string, error) {
	prefix, grouped, err := bech32.Decode(encoded)
	if err != nil {
		return "", "", fmt.Errorf("nip19: decoding: %w", err)
	}
	if prefix != PrefixPublicKey && prefix != PrefixSecretKey {
		return "", "", fmt.Errorf("nip19: unknown prefix %q", prefix)
	}
	raw, err := bech32.ConvertBits(grouped, 5, 8, false)
	if err != nil {
		return "", "", fmt.Errorf("nip19: regrouping bits: %w", err)
	}
	if len(raw) != 32 {
		return "", "", fmt.Errorf("nip19: key must be 32 bytes, got %d", len(raw))
	}
	return prefix, hex.EncodeToString(raw), nil
}
