package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactor/internal/ir"
)

func TestCommit_AssignsIncreasingOrdinals(t *testing.T) {
	s := createTestStore(t)

	ords := commitEntries(t, s,
		testEntry("doc-1", 0, "a", 1),
		testEntry("doc-1", 1, "b", 2),
		testEntry("doc-2", 0, "c", 3),
	)
	require.Len(t, ords, 3)
	assert.Less(t, ords[0], ords[1])
	assert.Less(t, ords[1], ords[2])
	assert.Equal(t, ords[2], s.Watermark())
}

func TestCommit_RejectsGapWithoutPartialWrite(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	b := s.Start()
	b.Write(testEntry("doc-1", 0, "a", 1), testEntry("doc-1", 2, "b", 2))
	_, err := s.Commit(ctx, b)

	var conflict *IndexConflictError
	require.True(t, errors.As(err, &conflict), "expected IndexConflictError, got %v", err)
	assert.Equal(t, int64(1), conflict.Expected)
	assert.Equal(t, int64(2), conflict.Got)

	log, err := s.Log(ctx, ir.LogKey{DocumentID: "doc-1", Scope: ir.ScopeGlobal, Branch: ir.BranchMain})
	require.NoError(t, err)
	assert.Empty(t, log, "failed commit must not leave rows behind")
	assert.Equal(t, int64(0), s.Watermark())
}

func TestCommit_RejectsDuplicateIndex(t *testing.T) {
	s := createTestStore(t)
	commitEntries(t, s, testEntry("doc-1", 0, "a", 1))

	b := s.Start()
	b.Write(testEntry("doc-1", 0, "b", 2))
	_, err := s.Commit(context.Background(), b)

	var conflict *IndexConflictError
	assert.True(t, errors.As(err, &conflict))
}

func TestOperations_AreAppendOnly(t *testing.T) {
	s := createTestStore(t)
	commitEntries(t, s, testEntry("doc-1", 0, "a", 1))

	_, err := s.db.Exec(`UPDATE operations SET hash = 'x'`)
	assert.Error(t, err, "update must be rejected")

	_, err = s.db.Exec(`DELETE FROM operations`)
	assert.Error(t, err, "delete must be rejected")
}

func TestLog_RoundTripsOperations(t *testing.T) {
	s := createTestStore(t)
	e := testEntry("doc-1", 0, "a", 7)
	e.Operation.Skip = 0
	e.Operation.Error = ""
	e.Operation.Action.Input = ir.Object{"value": ir.String("a"), "n": ir.Int(9007199254740993)}
	commitEntries(t, s, e)

	log, err := s.Log(context.Background(), e.Key())
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, e.Operation, log[0])
}

func TestOperations_PaginatesByOrdinal(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		commitEntries(t, s, testEntry("doc-1", i, string(rune('a'+i)), i))
	}
	commitEntries(t, s, testEntry("doc-2", 0, "other", 1))

	q := OperationQuery{DocumentID: "doc-1", Scopes: []string{ir.ScopeGlobal}, Branch: ir.BranchMain}
	p1, err := s.Operations(ctx, q, Paging{Limit: 2})
	require.NoError(t, err)
	require.Len(t, p1.Entries, 2)
	assert.True(t, p1.HasMore)

	p2, err := s.Operations(ctx, q, Paging{Cursor: p1.NextCursor, Limit: 10})
	require.NoError(t, err)
	require.Len(t, p2.Entries, 3)
	assert.False(t, p2.HasMore)
	assert.Equal(t, int64(4), p2.Entries[2].Operation.Index)
}

func TestOperations_FiltersScopes(t *testing.T) {
	s := createTestStore(t)
	local := testEntry("doc-1", 0, "l", 1)
	local.Scope = ir.ScopeLocal
	commitEntries(t, s, testEntry("doc-1", 0, "g", 1), local)

	page, err := s.Operations(context.Background(), OperationQuery{DocumentID: "doc-1", Scopes: []string{ir.ScopeLocal}}, Paging{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "l", page.Entries[0].Operation.Action.ID)
}

func TestCollections_BackfillQuery(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	coll := ir.CollectionID(ir.BranchMain, "drive")

	b := s.Start()
	b.CreateCollection(coll)
	b.AddToCollection(coll, "drive")
	b.AddToCollection(coll, "file")
	b.AddToCollection(coll, "file") // duplicate is a no-op
	b.Write(testEntry("drive", 0, "d0", 10), testEntry("file", 0, "f0", 20), testEntry("outside", 0, "o0", 30))
	_, err := s.Commit(ctx, b)
	require.NoError(t, err)

	members, err := s.CollectionMembers(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, []string{"drive", "file"}, members)

	page, err := s.CollectionOperations(ctx, CollectionQuery{CollectionID: coll}, Paging{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "d0", page.Entries[0].Operation.Action.ID)
	assert.Equal(t, "f0", page.Entries[1].Operation.Action.ID)

	since, err := s.CollectionOperations(ctx, CollectionQuery{CollectionID: coll, SinceTimestamp: 15}, Paging{})
	require.NoError(t, err)
	require.Len(t, since.Entries, 1)
	assert.Equal(t, "f0", since.Entries[0].Operation.Action.ID)

	ok, err := s.IsMember(ctx, coll, "outside")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsistencyToken_RoundTrip(t *testing.T) {
	tok := ConsistencyToken{Ordinal: 42}
	parsed, err := ParseConsistencyToken(tok.String())
	require.NoError(t, err)
	assert.Equal(t, tok, parsed)

	_, err = ParseConsistencyToken("bogus")
	assert.Error(t, err)

	zero, err := ParseConsistencyToken("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestWaitFor_BlocksUntilCommit(t *testing.T) {
	s := createTestStore(t)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- s.WaitFor(ctx, ConsistencyToken{Ordinal: 1})
	}()

	select {
	case <-done:
		t.Fatal("WaitFor returned before the ordinal was committed")
	case <-time.After(20 * time.Millisecond):
	}

	commitEntries(t, s, testEntry("doc-1", 0, "a", 1))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitFor did not return after commit")
	}
}

func TestWaitFor_HonorsContext(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.WaitFor(ctx, ConsistencyToken{Ordinal: 99})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenFor(t *testing.T) {
	assert.Equal(t, ConsistencyToken{Ordinal: 9}, TokenFor([]int64{3, 9, 4}))
	assert.True(t, TokenFor(nil).IsZero())
}
