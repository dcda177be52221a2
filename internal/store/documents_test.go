package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactor/internal/ir"
)

func testDocument(id, slug string) ir.Document {
	return ir.Document{
		Header: ir.Header{
			ID:           id,
			Slug:         slug,
			DocumentType: "reactor/list",
			Version:      1,
			Branch:       ir.BranchMain,
			Revision:     map[string]int64{ir.ScopeGlobal: 0},
			CreatedAt:    100,
			LastModified: 100,
		},
		State:        map[string]ir.Object{ir.ScopeGlobal: {"items": ir.Array{}}},
		InitialState: map[string]ir.Object{ir.ScopeGlobal: {"items": ir.Array{}}},
	}
}

func TestDocuments_CreateGetPut(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	doc := testDocument("doc-1", "groceries")
	require.NoError(t, s.CreateDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	err = s.CreateDocument(ctx, doc)
	assert.ErrorIs(t, err, ErrDocumentExists)

	doc.Header.Revision[ir.ScopeGlobal] = 1
	doc.State[ir.ScopeGlobal] = ir.Object{"items": ir.Array{ir.String("milk")}}
	require.NoError(t, s.PutDocument(ctx, doc))

	got, err = s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Header.Revision[ir.ScopeGlobal])
	assert.Equal(t, doc.State, got.State)
}

func TestDocuments_NotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	err = s.PutDocument(ctx, testDocument("missing", ""))
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	err = s.DeleteDocument(ctx, "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDocuments_DeleteKeepsOperations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDocument(ctx, testDocument("doc-1", "")))
	commitEntries(t, s, testEntry("doc-1", 0, "a", 1))

	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))

	ok, err := s.DocumentExists(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, ok)

	log, err := s.Log(ctx, ir.LogKey{DocumentID: "doc-1", Scope: ir.ScopeGlobal, Branch: ir.BranchMain})
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestResolveSlugs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDocument(ctx, testDocument("id-a", "alpha")))
	require.NoError(t, s.CreateDocument(ctx, testDocument("id-b", "beta")))
	require.NoError(t, s.CreateDocument(ctx, testDocument("id-c", "")))

	ids, err := s.ResolveSlugs(ctx, []string{"beta", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id-b", "id-a"}, ids)

	_, err = s.ResolveSlugs(ctx, []string{"alpha", "gamma"})
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}
