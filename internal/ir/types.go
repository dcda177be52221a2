package ir

import (
	"cmp"
	"fmt"
	"strings"
)

// Well-known scopes. Models may declare others.
const (
	ScopeGlobal   = "global"
	ScopeLocal    = "local"
	ScopeDocument = "document"
)

// BranchMain is the default branch.
const BranchMain = "main"

// Action is an intent to change a document. Actions are immutable once
// created; ID and Timestamp together give the total order used by the
// convergence protocol.
type Action struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Scope     string         `json:"scope"`
	Input     Object         `json:"input"`
	Timestamp int64          `json:"timestamp"` // unix milliseconds
	Context   *ActionContext `json:"context,omitempty"`
}

// ActionContext carries the signatures that chain an action to the state it
// was applied on.
type ActionContext struct {
	Signatures []Signature `json:"signatures,omitempty"`
}

// Signature binds (timestamp, signer, action hash, previous state hash
// [, resulting state hash]) to signature bytes.
type Signature struct {
	Timestamp          int64  `json:"timestamp"`
	SignerID           string `json:"signer_id"`
	ActionHash         string `json:"action_hash"`
	PrevStateHash      string `json:"prev_state_hash"`
	ResultingStateHash string `json:"resulting_state_hash,omitempty"`
	Bytes              []byte `json:"bytes"`
}

// Operation is an action committed to a (document, scope, branch) log.
//
// Index is the physical append position, contiguous from 0. Skip declares how
// many entries of the projection built so far this entry supersedes. Hash is
// the state hash after applying the action. Error is set when a replayed
// foreign action was rejected by the reducer; the state is then unchanged.
type Operation struct {
	Index     int64  `json:"index"`
	Skip      int64  `json:"skip"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds, local write time
	Action    Action `json:"action"`
	Error     string `json:"error,omitempty"`
}

// CompareActions orders actions by (timestamp, id). The id comparison is a
// plain byte-wise string compare so that every process agrees on ties.
func CompareActions(a, b Action) int {
	if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Header is the immutable identity of a document plus its revision counters.
type Header struct {
	ID           string           `json:"id"`
	Slug         string           `json:"slug,omitempty"`
	DocumentType string           `json:"document_type"`
	Version      int              `json:"version"`
	Branch       string           `json:"branch"`
	Revision     map[string]int64 `json:"revision"` // next free index per scope
	CreatedAt    int64            `json:"created_at"`
	LastModified int64            `json:"last_modified"`
}

// Document is a materialized document: header plus per-scope state. The
// operation logs themselves live in the operation index.
type Document struct {
	Header       Header            `json:"header"`
	State        map[string]Object `json:"state"`
	InitialState map[string]Object `json:"initial_state"`
}

// Clone returns a deep copy so callers never share state maps with a cache.
func (d Document) Clone() Document {
	out := Document{Header: d.Header}
	out.Header.Revision = make(map[string]int64, len(d.Header.Revision))
	for k, v := range d.Header.Revision {
		out.Header.Revision[k] = v
	}
	out.State = cloneScopes(d.State)
	out.InitialState = cloneScopes(d.InitialState)
	return out
}

// ScopeState returns the state of scope, falling back to an empty object.
func (d Document) ScopeState(scope string) Object {
	if s, ok := d.State[scope]; ok && s != nil {
		return s
	}
	return Object{}
}

// ScopeInitialState returns the initial state of scope.
func (d Document) ScopeInitialState(scope string) Object {
	if s, ok := d.InitialState[scope]; ok && s != nil {
		return s
	}
	return Object{}
}

func cloneScopes(in map[string]Object) map[string]Object {
	out := make(map[string]Object, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

// LogKey identifies one operation log.
type LogKey struct {
	DocumentID string
	Scope      string
	Branch     string
}

// String renders the key as "document/scope/branch".
func (k LogKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.DocumentID, k.Scope, k.Branch)
}

// CollectionID names the collection rooted at documentID on branch.
func CollectionID(branch, documentID string) string {
	return fmt.Sprintf("collection.%s.%s", branch, documentID)
}
