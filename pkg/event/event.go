// Package event models NIP-01 events and owns their canonical
// serialization, identity, and signatures.
package event

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/hivemesh/nostrchan/pkg/schnorr"
)

// Event kinds this module works with.
const (
	// KindTextNote is a public plaintext note.
	KindTextNote = 1
	// KindEncryptedDirectMessage is a NIP-04 encrypted direct message.
	KindEncryptedDirectMessage = 4
	// KindIdentityVault is the parameterized replaceable event carrying an
	// encrypted identity document, addressed by its "d" tag.
	KindIdentityVault = 30000
)

// Event is a NIP-01 event. The JSON field names and their order are the
// wire contract.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// ComputeID hashes the canonical serialization into the lowercase hex
// event id. It never mutates the event.
func (ev *Event) ComputeID() string {
	sum := sha256.Sum256(ev.Serialize())
	return hex.EncodeToString(sum[:])
}

// Sign computes the event id and signs it with the hex secret key,
// filling ID and Sig.
func (ev *Event) Sign(seckeyHex string) error {
	ev.ID = ev.ComputeID()
	sig, err := schnorr.SignHex(ev.ID, seckeyHex)
	if err != nil {
		return err
	}
	ev.Sig = sig
	return nil
}

// CheckSignature recomputes the id and verifies Sig against PubKey.
// The relay path routes events without calling this; consumers that care
// about authenticity should.
func (ev *Event) CheckSignature() (bool, error) {
	if ev.ID != ev.ComputeID() {
		return false, nil
	}
	return schnorr.VerifyHex(ev.ID, ev.PubKey, ev.Sig)
}

// Tag returns the first value of the first tag with the given name, or "".
func (ev *Event) Tag(name string) string {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// TagValues returns the first value of every tag with the given name.
func (ev *Event) TagValues(name string) []string {
	var values []string
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name {
			values = append(values, tag[1])
		}
	}
	return values
}
