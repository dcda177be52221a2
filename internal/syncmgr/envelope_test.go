package syncmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/reactor/internal/ir"
)

func key(doc, scope string) ir.LogKey {
	return ir.LogKey{DocumentID: doc, Scope: scope, Branch: ir.BranchMain}
}

func TestFilter_Match(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		key    ir.LogKey
		want   bool
	}{
		{"empty matches global", Filter{}, key("d1", ir.ScopeGlobal), true},
		{"empty rejects local", Filter{}, key("d1", ir.ScopeLocal), false},
		{"local passes when listed", Filter{Scopes: []string{ir.ScopeLocal}}, key("d1", ir.ScopeLocal), true},
		{"branch mismatch", Filter{Branch: "dev"}, key("d1", ir.ScopeGlobal), false},
		{"document listed", Filter{DocumentIDs: []string{"d1"}}, key("d1", ir.ScopeGlobal), true},
		{"document not listed", Filter{DocumentIDs: []string{"d2"}}, key("d1", ir.ScopeGlobal), false},
		{"scope listed", Filter{Scopes: []string{ir.ScopeGlobal}}, key("d1", ir.ScopeGlobal), true},
		{"scope not listed", Filter{Scopes: []string{ir.ScopeGlobal}}, key("d1", ir.ScopeLocal), false},
		{"document scope always passes", Filter{Scopes: []string{ir.ScopeGlobal}}, key("d1", ir.ScopeDocument), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.key))
		})
	}
}

func TestGroupOperations_DocumentScopeFirst(t *testing.T) {
	op := func(doc, scope, id string) OperationEnvelope {
		return OperationEnvelope{DocumentID: doc, Scope: scope, Branch: ir.BranchMain,
			Operation: ir.Operation{Action: ir.Action{ID: id}}}
	}
	groups := groupOperations([]OperationEnvelope{
		op("d1", ir.ScopeGlobal, "g1"),
		op("d2", ir.ScopeDocument, "c2"),
		op("d1", ir.ScopeDocument, "c1"),
		op("d1", ir.ScopeGlobal, "g2"),
		op("d1", ir.ScopeLocal, "l1"),
	})

	var keys []ir.LogKey
	for _, g := range groups {
		keys = append(keys, g.key)
	}
	assert.Equal(t, []ir.LogKey{
		key("d1", ir.ScopeDocument),
		key("d1", ir.ScopeGlobal),
		key("d1", ir.ScopeLocal),
		key("d2", ir.ScopeDocument),
	}, keys)
	assert.Len(t, groups[1].ops, 2)
	assert.Equal(t, "g1", groups[1].ops[0].Action.ID)
	assert.Equal(t, "g2", groups[1].ops[1].Action.ID)
}
