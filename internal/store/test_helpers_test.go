package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/reactor/internal/ir"
)

// createTestStore creates a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testEntry builds an entry for doc/global/main with a minimal action.
func testEntry(docID string, index int64, actionID string, ts int64) Entry {
	return Entry{
		DocumentID:   docID,
		DocumentType: "reactor/list",
		Scope:        ir.ScopeGlobal,
		Branch:       ir.BranchMain,
		Operation: ir.Operation{
			Index:     index,
			Hash:      "h-" + actionID,
			Timestamp: ts,
			Action: ir.Action{
				ID:        actionID,
				Type:      "ADD_ITEM",
				Scope:     ir.ScopeGlobal,
				Input:     ir.Object{"value": ir.String(actionID)},
				Timestamp: ts,
			},
		},
	}
}

func commitEntries(t *testing.T, s *Store, entries ...Entry) []int64 {
	t.Helper()
	b := s.Start()
	b.Write(entries...)
	ords, err := s.Commit(context.Background(), b)
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	return ords
}
