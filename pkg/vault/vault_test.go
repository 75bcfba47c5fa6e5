package vault

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	key := Key("correct horse battery staple")
	require.Len(t, key, 32)

	expected := sha256.Sum256([]byte("correct horse battery staple"))
	require.Equal(t, expected[:], key)
	require.Equal(t, key, Key("correct horse battery staple"))
}

func TestSealOpen_Roundtrip(t *testing.T) {
	doc := map[string]any{
		"name": "aria",
		"identity": map[string]any{
			"keys": map[string]any{
				"nostr_private_key": "ab12",
			},
		},
		"version": float64(2),
	}

	blob, err := Seal(doc, "master-key")
	require.NoError(t, err)

	got, err := Open(blob, "master-key")
	require.NoError(t, err)
	require.Equal(t, doc, got)
}

func TestSealBytes_BlobLayout(t *testing.T) {
	blob, err := SealBytes([]byte(`{"a":1}`), "pw")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	// nonce (12) + ciphertext + tag (16)
	require.Len(t, raw, 12+len(`{"a":1}`)+16)

	// A fresh nonce every call means a fresh blob every call.
	other, err := SealBytes([]byte(`{"a":1}`), "pw")
	require.NoError(t, err)
	assert.NotEqual(t, blob, other)
}

func TestOpen_WrongPassword(t *testing.T) {
	blob, err := Seal(map[string]any{"secret": "value"}, "right")
	require.NoError(t, err)

	_, err = Open(blob, "wrong")
	require.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestOpen_TamperedBlob(t *testing.T) {
	blob, err := Seal(map[string]any{"secret": "value"}, "pw")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = Open(tampered, "pw")
	require.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestOpen_UndecodableBlobs(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{name: "not base64", blob: "&&& definitely not base64 &&&"},
		{name: "too short", blob: base64.StdEncoding.EncodeToString([]byte("tiny"))},
		{name: "empty", blob: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.blob, "pw")
			require.ErrorIs(t, err, ErrDecryptionFailed)
		})
	}
}

func TestOpen_NonObjectPayload(t *testing.T) {
	blob, err := SealBytes([]byte("[1,2,3]"), "pw")
	require.NoError(t, err)

	_, err = Open(blob, "pw")
	require.ErrorIs(t, err, ErrDecryptionFailed)

	// OpenBytes itself does not care about the payload shape.
	raw, err := OpenBytes(blob, "pw")
	require.NoError(t, err)
	require.Equal(t, []byte("[1,2,3]"), raw)
}
