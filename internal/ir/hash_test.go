package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateHashIsKeyOrderIndependent(t *testing.T) {
	a := Object{"x": Int(1), "y": String("two")}
	b := Object{"y": String("two"), "x": Int(1)}
	assert.Equal(t, MustStateHash(a), MustStateHash(b))
	assert.Len(t, MustStateHash(a), 64)
}

func TestStateHashNilEqualsEmpty(t *testing.T) {
	assert.Equal(t, MustStateHash(Object{}), MustStateHash(nil))
}

func TestActionHashIgnoresContext(t *testing.T) {
	a := Action{ID: "a1", Type: "ADD", Scope: ScopeGlobal, Input: Object{"v": Int(1)}, Timestamp: 5}
	signed := a
	signed.Context = &ActionContext{Signatures: []Signature{{SignerID: "s"}}}

	h1, err := ActionHash(a)
	require.NoError(t, err)
	h2, err := ActionHash(signed)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	a.Timestamp = 6
	h3, err := ActionHash(a)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{}`)
	assert.NotEqual(t, hashWithDomain(DomainAction, data), hashWithDomain(DomainState, data))
}

func TestSignaturePayloadIncludesResultingHash(t *testing.T) {
	p1, err := SignaturePayload(1, "s", "ah", "prev", "")
	require.NoError(t, err)
	p2, err := SignaturePayload(1, "s", "ah", "prev", "next")
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}
