package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix leaves room for
// an algorithm migration.
const (
	DomainAction    = "reactor/action/v1"
	DomainState     = "reactor/state/v1"
	DomainSignature = "reactor/signature/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data). The null separator
// removes any ambiguity at the domain/data boundary.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ActionHash is the content hash of an action. The context (signatures) is
// excluded: signatures cover the action hash, so they cannot be part of it.
func ActionHash(a Action) (string, error) {
	obj := Object{
		"id":        String(a.ID),
		"type":      String(a.Type),
		"scope":     String(a.Scope),
		"input":     inputOrEmpty(a.Input),
		"timestamp": Int(a.Timestamp),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("action hash: %w", err)
	}
	return hashWithDomain(DomainAction, canonical), nil
}

// StateHash is the content hash of one scope's state. It is what
// Operation.Hash records for the state produced by that operation.
func StateHash(state Object) (string, error) {
	canonical, err := MarshalCanonical(inputOrEmpty(state))
	if err != nil {
		return "", fmt.Errorf("state hash: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// SignaturePayload returns the bytes a signer signs for an action applied on
// top of prevStateHash. resultingStateHash may be empty.
func SignaturePayload(timestamp int64, signerID, actionHash, prevStateHash, resultingStateHash string) ([]byte, error) {
	obj := Object{
		"timestamp":       Int(timestamp),
		"signer":          String(signerID),
		"action_hash":     String(actionHash),
		"prev_state_hash": String(prevStateHash),
	}
	if resultingStateHash != "" {
		obj["resulting_state_hash"] = String(resultingStateHash)
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return nil, fmt.Errorf("signature payload: %w", err)
	}
	sum := sha256.Sum256(append([]byte(DomainSignature+"\x00"), canonical...))
	return sum[:], nil
}

// MustStateHash is like StateHash but panics on error.
// Use only in tests or when the state is known to be valid.
func MustStateHash(state Object) string {
	h, err := StateHash(state)
	if err != nil {
		panic(err)
	}
	return h
}

func inputOrEmpty(obj Object) Object {
	if obj == nil {
		return Object{}
	}
	return obj
}
