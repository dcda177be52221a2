// Package signature signs actions with Ed25519 and verifies foreign
// signatures.
//
// A signature covers (timestamp, signer id, action hash, previous state hash
// [, resulting state hash]), chaining each action to the state it was
// applied on.
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roach88/reactor/internal/ir"
)

// Signer signs an action applied on top of prevStateHash.
type Signer interface {
	ID() string
	Sign(action ir.Action, prevStateHash, resultingStateHash string) (ir.Signature, error)
}

// Verifier checks the signatures an action carries.
type Verifier interface {
	Verify(action ir.Action) error
}

// Ed25519Signer is a Signer backed by an Ed25519 private key.
type Ed25519Signer struct {
	id  string
	key ed25519.PrivateKey
	now func() int64
}

// NewEd25519Signer returns a signer named id.
func NewEd25519Signer(id string, key ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{id: id, key: key, now: func() int64 { return time.Now().UnixMilli() }}
}

// ID returns the signer id.
func (s *Ed25519Signer) ID() string {
	return s.id
}

// PublicKey returns the verification key.
func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Sign implements Signer.
func (s *Ed25519Signer) Sign(action ir.Action, prevStateHash, resultingStateHash string) (ir.Signature, error) {
	actionHash, err := ir.ActionHash(action)
	if err != nil {
		return ir.Signature{}, fmt.Errorf("sign action %s: %w", action.ID, err)
	}
	sig := ir.Signature{
		Timestamp:          s.now(),
		SignerID:           s.id,
		ActionHash:         actionHash,
		PrevStateHash:      prevStateHash,
		ResultingStateHash: resultingStateHash,
	}
	payload, err := ir.SignaturePayload(sig.Timestamp, sig.SignerID, sig.ActionHash, sig.PrevStateHash, sig.ResultingStateHash)
	if err != nil {
		return ir.Signature{}, fmt.Errorf("sign action %s: %w", action.ID, err)
	}
	sig.Bytes = ed25519.Sign(s.key, payload)
	return sig, nil
}

// KeyRing verifies signatures against known public keys.
type KeyRing struct {
	keys map[string]ed25519.PublicKey

	// RequireSignatures rejects actions that carry no signature.
	RequireSignatures bool
}

// NewKeyRing returns an empty key ring.
func NewKeyRing() *KeyRing {
	return &KeyRing{keys: map[string]ed25519.PublicKey{}}
}

// Add trusts key for signerID.
func (k *KeyRing) Add(signerID string, key ed25519.PublicKey) {
	k.keys[signerID] = key
}

// Verify implements Verifier.
func (k *KeyRing) Verify(action ir.Action) error {
	var sigs []ir.Signature
	if action.Context != nil {
		sigs = action.Context.Signatures
	}
	if len(sigs) == 0 {
		if k.RequireSignatures {
			return &ir.ValidationError{ActionID: action.ID, Field: "context.signatures", Message: "action is not signed"}
		}
		return nil
	}

	actionHash, err := ir.ActionHash(action)
	if err != nil {
		return fmt.Errorf("verify action %s: %w", action.ID, err)
	}

	for _, sig := range sigs {
		key, ok := k.keys[sig.SignerID]
		if !ok {
			return &ir.ValidationError{ActionID: action.ID, Field: "context.signatures",
				Message: fmt.Sprintf("unknown signer %q", sig.SignerID)}
		}
		if sig.ActionHash != actionHash {
			return &ir.ValidationError{ActionID: action.ID, Field: "context.signatures",
				Message: "signature covers a different action"}
		}
		payload, err := ir.SignaturePayload(sig.Timestamp, sig.SignerID, sig.ActionHash, sig.PrevStateHash, sig.ResultingStateHash)
		if err != nil {
			return fmt.Errorf("verify action %s: %w", action.ID, err)
		}
		if !ed25519.Verify(key, payload, sig.Bytes) {
			return &ir.ValidationError{ActionID: action.ID, Field: "context.signatures",
				Message: fmt.Sprintf("invalid signature from %q", sig.SignerID)}
		}
	}
	return nil
}

// GenerateKey returns a fresh key pair.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// LoadPrivateKey reads a hex-encoded 32-byte seed from path.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode signing key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing key: want %d-byte seed, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
