// Package vault seals identity documents under a password. The key is
// SHA-256 of the password and the cipher is AES-256-GCM, so a wrong
// password always fails authentication instead of yielding garbage.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrDecryptionFailed reports a blob that is not even decodable.
	ErrDecryptionFailed = errors.New("vault: decryption failed")
	// ErrAuthenticationFailed reports a GCM tag mismatch: a wrong password
	// or a tampered blob, indistinguishable by construction.
	ErrAuthenticationFailed = errors.New("vault: authentication failed")
)

// Key derives the symmetric key for a password.
func Key(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:]
}

// Seal marshals doc as JSON and encrypts it under the password.
func Seal(doc map[string]any, password string) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, "marshaling document")
	}
	return SealBytes(raw, password)
}

// SealBytes encrypts an already serialized document. The blob layout is
// base64(nonce || ciphertext || tag).
func SealBytes(plaintext []byte, password string) (string, error) {
	aead, err := newAEAD(password)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("reading nonce: %w", err)
	}

	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a blob and parses the enclosed JSON document.
func Open(blob, password string) (map[string]any, error) {
	raw, err := OpenBytes(blob, password)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(ErrDecryptionFailed, "payload is not a JSON object")
	}
	return doc, nil
}

// OpenBytes decrypts a blob with the password and returns the raw
// document bytes.
func OpenBytes(blob, password string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, errors.Wrap(ErrDecryptionFailed, "blob is not base64")
	}

	aead, err := newAEAD(password)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.Wrapf(ErrDecryptionFailed, "blob too short: %d bytes", len(raw))
	}

	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, errors.Wrap(ErrAuthenticationFailed, "wrong password or tampered blob")
	}
	return plaintext, nil
}

func newAEAD(password string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(Key(password))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
