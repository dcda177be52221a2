package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/reactor/internal/events"
	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/queue"
	"github.com/roach88/reactor/internal/store"
)

// deleteDocument removes a document. The model is never loaded: the
// terminal operation is written at the next free index of the log, after
// the snapshot is gone.
func (e *Executor) deleteDocument(ctx context.Context, job *queue.Job, guard *commitGuard) ([]int64, error) {
	if len(job.Actions) != 1 {
		return nil, &ir.ValidationError{Field: "actions", Message: "a delete job carries exactly one action"}
	}
	a := job.Actions[0]
	if err := ir.ValidateAction(a); err != nil {
		return nil, err
	}
	id, ok := a.Input.GetString("document_id")
	if !ok || id == "" {
		return nil, &ir.ValidationError{ActionID: a.ID, Field: "document_id", Message: "document id is required"}
	}
	if id != job.DocumentID || job.Scope != ir.ScopeDocument || a.Scope != ir.ScopeDocument {
		return nil, &ir.ValidationError{ActionID: a.ID, Field: "document_id", Message: fmt.Sprintf("delete of %s submitted on %s", id, job.Key())}
	}

	unlock := e.locks.lock(id)
	defer unlock()

	prev, err := e.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	key := job.Key()
	log, err := e.store.Log(ctx, key)
	if err != nil {
		return nil, err
	}

	hash, err := ir.StateHash(deletedState())
	if err != nil {
		return nil, err
	}
	prevHash, err := ir.StateHash(prev.ScopeState(ir.ScopeDocument))
	if err != nil {
		return nil, err
	}
	if a, err = e.sign(a, prevHash, hash); err != nil {
		return nil, err
	}

	if !guard.enter() {
		return nil, errAbandoned
	}
	committed := false
	defer func() { guard.done(committed) }()

	if err := e.store.DeleteDocument(ctx, id); err != nil {
		return nil, err
	}
	e.cache.remove(id)

	batch := e.store.Start()
	batch.Write(store.Entry{
		DocumentID:   id,
		DocumentType: prev.Header.DocumentType,
		Scope:        ir.ScopeDocument,
		Branch:       job.Branch,
		Operation: ir.Operation{
			Index:     int64(len(log)),
			Hash:      hash,
			Timestamp: e.cfg.Now(),
			Action:    a,
		},
	})
	ordinals, err := e.store.Commit(ctx, batch)
	if err != nil {
		if rerr := e.store.CreateDocument(context.WithoutCancel(ctx), prev); rerr != nil {
			slog.Error("restore deleted document", "document", id, "error", rerr)
			return nil, fmt.Errorf("%w (restore failed: %v)", err, rerr)
		}
		return nil, err
	}
	committed = true

	operationsWritten.WithLabelValues(ir.ScopeDocument).Inc()
	e.publishWritten(batch, ordinals)
	if e.bus != nil {
		e.bus.Publish(events.Event{Type: events.DocumentDeleted, Queue: key})
	}
	slog.Info("document deleted", "document", id, "job", job.ID)
	return ordinals, nil
}
