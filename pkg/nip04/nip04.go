// Package nip04 implements the NIP-04 direct message cipher: an ECDH
// shared secret over secp256k1 feeding AES-256-CBC, with the ciphertext
// and IV carried as "<b64(ct)>?iv=<b64(iv)>".
package nip04

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/hivemesh/nostrchan/pkg/secp256k1"
)

var (
	// ErrInvalidKey reports a key that is not usable for the exchange.
	ErrInvalidKey = errors.New("nip04: invalid key")
	// ErrDecryptionFailed reports a blob that would not decode or unpad.
	// Display paths substitute a placeholder instead of surfacing this.
	ErrDecryptionFailed = errors.New("nip04: decryption failed")
)

// SharedSecret derives the 32 byte conversation key between a hex secret
// key and a peer's x-only hex public key. The key is the raw x coordinate
// of the ECDH point, deliberately left unhashed; every NIP-04 peer derives
// the same bytes or nothing decrypts.
func SharedSecret(seckeyHex, pubkeyHex string) ([]byte, error) {
	seckey, err := hex.DecodeString(seckeyHex)
	if err != nil || len(seckey) != 32 {
		return nil, fmt.Errorf("%w: secret key must be 32 hex encoded bytes", ErrInvalidKey)
	}
	d := new(big.Int).SetBytes(seckey)
	if d.Sign() == 0 || d.Cmp(secp256k1.N) >= 0 {
		return nil, fmt.Errorf("%w: secret key out of range", ErrInvalidKey)
	}

	pubkey, err := hex.DecodeString(pubkeyHex)
	if err != nil || len(pubkey) != 32 {
		return nil, fmt.Errorf("%w: public key must be 32 hex encoded bytes", ErrInvalidKey)
	}
	peer := secp256k1.LiftX(new(big.Int).SetBytes(pubkey))
	if peer == nil {
		return nil, fmt.Errorf("%w: public key is not on the curve", ErrInvalidKey)
	}

	shared := secp256k1.ScalarMul(peer, d)
	if shared == nil {
		return nil, fmt.Errorf("%w: shared point at infinity", ErrInvalidKey)
	}
	return secp256k1.XBytes(shared), nil
}

// Encrypt seals plaintext with AES-256-CBC under the shared secret and a
// fresh random IV.
func Encrypt(plaintext string, secret []byte) (string, error) {
	block, err := newBlock(secret)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("reading iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	return base64.StdEncoding.EncodeToString(ct) + "?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// Decrypt opens a NIP-04 blob. A payload without the "?iv=" marker is
// returned untouched: plain notes share this code path with direct
// messages and must survive it.
func Decrypt(blob string, secret []byte) (string, error) {
	ctB64, ivB64, found := strings.Cut(blob, "?iv=")
	if !found {
		return blob, nil
	}

	block, err := newBlock(secret)
	if err != nil {
		return "", err
	}

	ct, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not base64", ErrDecryptionFailed)
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return "", fmt.Errorf("%w: iv is not base64", ErrDecryptionFailed)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: iv must be %d bytes, got %d", ErrDecryptionFailed, aes.BlockSize, len(iv))
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext is not block aligned", ErrDecryptionFailed)
	}

	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)

	out, err := pkcs7Unpad(pt, aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(out), nil
}

func newBlock(secret []byte) (cipher.Block, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("%w: shared secret must be 32 bytes, got %d", ErrInvalidKey, len(secret))
	}
	return aes.NewCipher(secret)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("not block aligned")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, errors.New("bad padding byte")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("inconsistent padding")
		}
	}
	return data[:len(data)-n], nil
}
