package signature

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactor/internal/ir"
)

func testSigner(t *testing.T, id string) *Ed25519Signer {
	t.Helper()
	_, priv, err := GenerateKey()
	require.NoError(t, err)
	s := NewEd25519Signer(id, priv)
	s.now = func() int64 { return 1000 }
	return s
}

func signed(t *testing.T, s Signer, a ir.Action) ir.Action {
	t.Helper()
	sig, err := s.Sign(a, "prev", "next")
	require.NoError(t, err)
	a.Context = &ir.ActionContext{Signatures: []ir.Signature{sig}}
	return a
}

func testAction() ir.Action {
	return ir.Action{ID: "a1", Type: "ADD_ITEM", Scope: ir.ScopeGlobal, Timestamp: 5,
		Input: ir.Object{"id": ir.String("1"), "text": ir.String("milk")}}
}

func TestSignAndVerify(t *testing.T) {
	s := testSigner(t, "alice")
	ring := NewKeyRing()
	ring.Add("alice", s.PublicKey())

	a := signed(t, s, testAction())
	sig := a.Context.Signatures[0]
	assert.Equal(t, "alice", sig.SignerID)
	assert.Equal(t, int64(1000), sig.Timestamp)
	assert.Equal(t, "prev", sig.PrevStateHash)
	assert.Equal(t, "next", sig.ResultingStateHash)
	assert.Len(t, sig.Bytes, ed25519.SignatureSize)

	assert.NoError(t, ring.Verify(a))
}

func TestVerify_Rejects(t *testing.T) {
	alice := testSigner(t, "alice")
	mallory := testSigner(t, "mallory")
	ring := NewKeyRing()
	ring.Add("alice", alice.PublicKey())

	t.Run("tampered input", func(t *testing.T) {
		a := signed(t, alice, testAction())
		a.Input = ir.Object{"id": ir.String("1"), "text": ir.String("beer")}
		assert.True(t, ir.IsValidationError(ring.Verify(a)))
	})

	t.Run("unknown signer", func(t *testing.T) {
		a := signed(t, mallory, testAction())
		assert.True(t, ir.IsValidationError(ring.Verify(a)))
	})

	t.Run("forged bytes", func(t *testing.T) {
		a := signed(t, mallory, testAction())
		a.Context.Signatures[0].SignerID = "alice"
		assert.True(t, ir.IsValidationError(ring.Verify(a)))
	})

	t.Run("tampered prev hash", func(t *testing.T) {
		a := signed(t, alice, testAction())
		a.Context.Signatures[0].PrevStateHash = "other"
		assert.True(t, ir.IsValidationError(ring.Verify(a)))
	})

	t.Run("unsigned", func(t *testing.T) {
		assert.NoError(t, ring.Verify(testAction()))
		strict := NewKeyRing()
		strict.RequireSignatures = true
		assert.True(t, ir.IsValidationError(strict.Verify(testAction())))
	})
}

func TestLoadPrivateKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte(hex.EncodeToString(seed)+"\n"), 0o600))

	key, err := LoadPrivateKey(path)
	require.NoError(t, err)
	assert.Equal(t, ed25519.NewKeyFromSeed(seed), key)

	require.NoError(t, os.WriteFile(path, []byte("abcd"), 0o600))
	_, err = LoadPrivateKey(path)
	assert.Error(t, err)
}
