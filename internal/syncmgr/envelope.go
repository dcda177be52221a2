package syncmgr

import (
	"slices"

	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/store"
)

// OperationEnvelope is one operation on the wire, with the log it belongs
// to and the sender's ordinal.
type OperationEnvelope struct {
	Ordinal      int64        `json:"ordinal"`
	DocumentID   string       `json:"document_id"`
	DocumentType string       `json:"document_type"`
	Scope        string       `json:"scope"`
	Branch       string       `json:"branch"`
	Operation    ir.Operation `json:"operation"`
}

// Key returns the log the operation belongs to.
func (o OperationEnvelope) Key() ir.LogKey {
	return ir.LogKey{DocumentID: o.DocumentID, Scope: o.Scope, Branch: o.Branch}
}

// Envelope is the unit exchanged over a channel. Cursor is the sender's
// ordinal of the last index entry the envelope accounts for; entries
// filtered out still move it.
type Envelope struct {
	CollectionID string              `json:"collection_id"`
	Operations   []OperationEnvelope `json:"operations"`
	Cursor       int64               `json:"cursor"`
}

func fromEntry(e store.Entry) OperationEnvelope {
	return OperationEnvelope{
		Ordinal:      e.Ordinal,
		DocumentID:   e.DocumentID,
		DocumentType: e.DocumentType,
		Scope:        e.Scope,
		Branch:       e.Branch,
		Operation:    e.Operation,
	}
}

// Filter restricts the operations exchanged with a remote. Empty fields
// match everything, except that the local scope only passes when Scopes
// lists it.
type Filter struct {
	DocumentIDs []string `json:"document_ids,omitempty" mapstructure:"document_ids"`
	Scopes      []string `json:"scopes,omitempty" mapstructure:"scopes"`
	Branch      string   `json:"branch,omitempty" mapstructure:"branch"`
}

// Match reports whether an operation of key passes the filter. The
// document scope of a matching document always passes: a peer cannot
// load any other scope without it.
func (f Filter) Match(key ir.LogKey) bool {
	if f.Branch != "" && key.Branch != f.Branch {
		return false
	}
	if len(f.DocumentIDs) > 0 && !slices.Contains(f.DocumentIDs, key.DocumentID) {
		return false
	}
	if key.Scope == ir.ScopeLocal && !slices.Contains(f.Scopes, ir.ScopeLocal) {
		return false
	}
	if len(f.Scopes) > 0 && key.Scope != ir.ScopeDocument && !slices.Contains(f.Scopes, key.Scope) {
		return false
	}
	return true
}

type group struct {
	key ir.LogKey
	ops []ir.Operation
}

// groupOperations splits an envelope into per-log batches. Documents keep
// their order of first appearance; within a document the document scope
// comes first so its creation is queued before anything that needs it.
func groupOperations(ops []OperationEnvelope) []group {
	var docs []string
	byDoc := map[string][]*group{}
	index := map[ir.LogKey]*group{}

	for _, o := range ops {
		key := o.Key()
		g, ok := index[key]
		if !ok {
			if _, seen := byDoc[key.DocumentID]; !seen {
				docs = append(docs, key.DocumentID)
			}
			g = &group{key: key}
			index[key] = g
			byDoc[key.DocumentID] = append(byDoc[key.DocumentID], g)
		}
		g.ops = append(g.ops, o.Operation)
	}

	out := make([]group, 0, len(index))
	for _, id := range docs {
		gs := byDoc[id]
		slices.SortStableFunc(gs, func(a, b *group) int {
			ad, bd := a.key.Scope == ir.ScopeDocument, b.key.Scope == ir.ScopeDocument
			switch {
			case ad && !bd:
				return -1
			case bd && !ad:
				return 1
			}
			return 0
		})
		for _, g := range gs {
			out = append(out, *g)
		}
	}
	return out
}
