// Package schnorr implements BIP-340 Schnorr signatures over secp256k1,
// plus the hex-oriented helpers the event codec signs with.
package schnorr

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/hivemesh/nostrchan/pkg/secp256k1"
)

var (
	// ErrInvalidKey reports a secret key outside [1, N-1] or a public key
	// that does not name a curve point.
	ErrInvalidKey = errors.New("schnorr: invalid key")
	// ErrInvalidInput reports a message or auxiliary input of the wrong
	// shape. Callers must hash before signing; raw messages are a bug.
	ErrInvalidInput = errors.New("schnorr: invalid input")
)

// TaggedHash computes sha256(sha256(tag) || sha256(tag) || data...) as
// defined by BIP-340.
func TaggedHash(tag string, data ...[]byte) []byte {
	tagHash := sha256.Sum256([]byte(tag))
	h := sha256.New()
	h.Write(tagHash[:])
	h.Write(tagHash[:])
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// PublicKey derives the 32 byte x-only public key for a 32 byte secret key.
func PublicKey(seckey []byte) ([]byte, error) {
	d, err := scalarFromBytes(seckey)
	if err != nil {
		return nil, err
	}
	pub := secp256k1.ScalarMul(secp256k1.G, d)
	if pub == nil {
		return nil, fmt.Errorf("%w: secret key maps to infinity", ErrInvalidKey)
	}
	return secp256k1.XBytes(pub), nil
}

// Sign produces a 64 byte BIP-340 signature over a 32 byte message digest
// using 32 bytes of auxiliary randomness. The signature is verified before
// it is returned.
func Sign(msg, seckey, aux []byte) ([]byte, error) {
	if len(msg) != 32 {
		return nil, fmt.Errorf("%w: message must be 32 bytes, got %d", ErrInvalidInput, len(msg))
	}
	if len(aux) != 32 {
		return nil, fmt.Errorf("%w: aux randomness must be 32 bytes, got %d", ErrInvalidInput, len(aux))
	}
	d, err := scalarFromBytes(seckey)
	if err != nil {
		return nil, err
	}

	pub := secp256k1.ScalarMul(secp256k1.G, d)
	if pub == nil {
		return nil, fmt.Errorf("%w: secret key maps to infinity", ErrInvalidKey)
	}
	if !secp256k1.HasEvenY(pub) {
		d = new(big.Int).Sub(secp256k1.N, d)
	}
	pubBytes := secp256k1.XBytes(pub)

	// t = d xor H_aux(aux)
	t := xorBytes(intTo32(d), TaggedHash("BIP0340/aux", aux))

	k := new(big.Int).SetBytes(TaggedHash("BIP0340/nonce", t, pubBytes, msg))
	k.Mod(k, secp256k1.N)
	if k.Sign() == 0 {
		return nil, errors.New("schnorr: derived nonce is zero")
	}

	r := secp256k1.ScalarMul(secp256k1.G, k)
	if !secp256k1.HasEvenY(r) {
		k.Sub(secp256k1.N, k)
	}
	rBytes := secp256k1.XBytes(r)

	e := challenge(rBytes, pubBytes, msg)

	// s = k + e*d mod n
	s := new(big.Int).Mul(e, d)
	s.Add(s, k)
	s.Mod(s, secp256k1.N)

	sig := make([]byte, 0, 64)
	sig = append(sig, rBytes...)
	sig = append(sig, intTo32(s)...)

	if ok, err := Verify(msg, pubBytes, sig); err != nil || !ok {
		return nil, errors.New("schnorr: produced signature failed self check")
	}
	return sig, nil
}

// Verify reports whether sig is a valid BIP-340 signature by pubkey over
// the 32 byte message digest. Malformed input lengths are errors; a well
// formed but wrong signature is (false, nil).
func Verify(msg, pubkey, sig []byte) (bool, error) {
	if len(msg) != 32 {
		return false, fmt.Errorf("%w: message must be 32 bytes, got %d", ErrInvalidInput, len(msg))
	}
	if len(pubkey) != 32 {
		return false, fmt.Errorf("%w: public key must be 32 bytes, got %d", ErrInvalidInput, len(pubkey))
	}
	if len(sig) != 64 {
		return false, fmt.Errorf("%w: signature must be 64 bytes, got %d", ErrInvalidInput, len(sig))
	}

	pub := secp256k1.LiftX(new(big.Int).SetBytes(pubkey))
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if pub == nil || r.Cmp(secp256k1.P) >= 0 || s.Cmp(secp256k1.N) >= 0 {
		return false, nil
	}

	e := challenge(sig[:32], pubkey, msg)

	// R = s*G - e*P
	negE := new(big.Int).Sub(secp256k1.N, e)
	rPoint := secp256k1.Add(secp256k1.ScalarMul(secp256k1.G, s), secp256k1.ScalarMul(pub, negE))
	if rPoint == nil || !secp256k1.HasEvenY(rPoint) || rPoint.X.Cmp(r) != 0 {
		return false, nil
	}
	return true, nil
}

// GenerateKeyPair returns a fresh (secret, public) lowercase hex pair,
// retrying until the random scalar lands in [1, N-1].
func GenerateKeyPair() (string, string, error) {
	for {
		seckey := make([]byte, 32)
		if _, err := rand.Read(seckey); err != nil {
			return "", "", fmt.Errorf("reading randomness: %w", err)
		}
		d := new(big.Int).SetBytes(seckey)
		if d.Sign() == 0 || d.Cmp(secp256k1.N) >= 0 {
			continue
		}
		pubkey, err := PublicKey(seckey)
		if err != nil {
			return "", "", err
		}
		return hex.EncodeToString(seckey), hex.EncodeToString(pubkey), nil
	}
}

// PublicKeyHex derives the x-only public key for a hex secret key.
func PublicKeyHex(seckeyHex string) (string, error) {
	seckey, err := hex.DecodeString(seckeyHex)
	if err != nil {
		return "", fmt.Errorf("%w: secret key is not hex", ErrInvalidKey)
	}
	pub, err := PublicKey(seckey)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(pub), nil
}

// SignHex signs a hex encoded 32 byte digest with a hex secret key using
// fresh auxiliary randomness and returns the hex signature.
func SignHex(msgHex, seckeyHex string) (string, error) {
	msg, err := hex.DecodeString(msgHex)
	if err != nil {
		return "", fmt.Errorf("%w: digest is not hex", ErrInvalidInput)
	}
	seckey, err := hex.DecodeString(seckeyHex)
	if err != nil {
		return "", fmt.Errorf("%w: secret key is not hex", ErrInvalidKey)
	}
	aux := make([]byte, 32)
	if _, err := rand.Read(aux); err != nil {
		return "", fmt.Errorf("reading randomness: %w", err)
	}
	sig, err := Sign(msg, seckey, aux)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// VerifyHex checks a hex signature against a hex digest and hex x-only
// public key.
func VerifyHex(msgHex, pubkeyHex, sigHex string) (bool, error) {
	msg, err := hex.DecodeString(msgHex)
	if err != nil {
		return false, fmt.Errorf("%w: digest is not hex", ErrInvalidInput)
	}
	pubkey, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return false, fmt.Errorf("%w: public key is not hex", ErrInvalidKey)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("%w: signature is not hex", ErrInvalidInput)
	}
	return Verify(msg, pubkey, sig)
}

func scalarFromBytes(seckey []byte) (*big.Int, error) {
	if len(seckey) != 32 {
		return nil, fmt.Errorf("%w: secret key must be 32 bytes, got %d", ErrInvalidKey, len(seckey))
	}
	d := new(big.Int).SetBytes(seckey)
	if d.Sign() == 0 || d.Cmp(secp256k1.N) >= 0 {
		return nil, fmt.Errorf("%w: secret key out of range", ErrInvalidKey)
	}
	return d, nil
}

func challenge(rBytes, pubBytes, msg []byte) *big.Int {
	e := new(big.Int).SetBytes(TaggedHash("BIP0340/challenge", rBytes, pubBytes, msg))
	return e.Mod(e, secp256k1.N)
}

func intTo32(v *big.Int) []byte {
	return v.FillBytes(make([]byte, 32))
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
