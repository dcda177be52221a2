package reactor

import (
	"context"

	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/store"
)

// Get returns the current snapshot of a document. A non-zero token makes
// the read wait until the token's writes are visible.
func (r *Reactor) Get(ctx context.Context, documentID string, token store.ConsistencyToken) (ir.Document, error) {
	if err := r.store.WaitFor(ctx, token); err != nil {
		return ir.Document{}, err
	}
	return r.store.GetDocument(ctx, documentID)
}

// Operations returns one page of a document's operations.
func (r *Reactor) Operations(ctx context.Context, q store.OperationQuery, p store.Paging, token store.ConsistencyToken) (store.Page, error) {
	return r.store.Operations(ctx, q, p, store.WithConsistencyToken(token))
}

// Log returns the physical log of one (document, scope, branch).
func (r *Reactor) Log(ctx context.Context, key ir.LogKey, token store.ConsistencyToken) ([]ir.Operation, error) {
	return r.store.Log(ctx, key, store.WithConsistencyToken(token))
}

// Ping checks that storage answers.
func (r *Reactor) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}
