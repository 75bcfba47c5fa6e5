package nip19_test

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemesh/nostrchan/pkg/nip19"
)

const keyHex = "f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f9"

func TestEncodePublicKey_RoundTrip(t *testing.T) {
	npub, err := nip19.EncodePublicKey(keyHex)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(npub, "npub1"), "got %q", npub)
	assert.Len(t, npub, 63)

	prefix, decoded, err := nip19.Decode(npub)
	require.NoError(t, err)
	assert.Equal(t, nip19.PrefixPublicKey, prefix)
	assert.Equal(t, keyHex, decoded)
}

func TestEncodePrivateKey_RoundTrip(t *testing.T) {
	nsec, err := nip19.EncodePrivateKey(keyHex)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(nsec, "nsec1"), "got %q", nsec)

	prefix, decoded, err := nip19.Decode(nsec)
	require.NoError(t, err)
	assert.Equal(t, nip19.PrefixSecretKey, prefix)
	assert.Equal(t, keyHex, decoded)
}

func TestEncode_RejectsBadKeys(t *testing.T) {
	_, err := nip19.EncodePublicKey("not hex")
	require.Error(t, err)

	_, err = nip19.EncodePublicKey("f9308a")
	require.Error(t, err)
}

func TestDecode_RejectsCorruptedChecksum(t *testing.T) {
	npub, err := nip19.EncodePublicKey(keyHex)
	require.NoError(t, err)

	last := npub[len(npub)-1]
	flipped := byte('q')
	if last == 'q' {
		flipped = 'p'
	}
	_, _, err = nip19.Decode(npub[:len(npub)-1] + string(flipped))
	require.Error(t, err)
}

func TestDecode_RejectsForeignPrefix(t *testing.T) {
	grouped, err := bech32.ConvertBits(make([]byte, 32), 8, 5, true)
	require.NoError(t, err)
	note, err := bech32.Encode("note", grouped)
	require.NoError(t, err)

	_, _, err = nip19.Decode(note)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown prefix")
}
