package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/reactor/internal/events"
	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/queue"
	"github.com/roach88/reactor/internal/registry"
	"github.com/roach88/reactor/internal/reshuffle"
	"github.com/roach88/reactor/internal/store"
)

// load merges a foreign operation batch into the job's log. Entries
// already known are dropped; the rest are merged with the local entries
// they race with and appended after a skip that supersedes them.
func (e *Executor) load(ctx context.Context, job *queue.Job, guard *commitGuard) ([]int64, error) {
	foreign := job.AllActions()
	if len(foreign) == 0 {
		return nil, nil
	}
	for _, a := range foreign {
		if err := ir.ValidateAction(a); err != nil {
			return nil, err
		}
		if a.Scope != job.Scope {
			return nil, &ir.ValidationError{ActionID: a.ID, Field: "scope", Message: fmt.Sprintf("action scope %s does not match job scope %s", a.Scope, job.Scope)}
		}
		if e.cfg.Verifier != nil {
			if err := e.cfg.Verifier.Verify(a); err != nil {
				return nil, err
			}
		}
	}

	unlock := e.locks.lock(job.DocumentID)
	defer unlock()

	key := job.Key()
	log, err := e.store.Log(ctx, key)
	if err != nil {
		return nil, err
	}
	plan, err := reshuffle.Merge(log, foreign)
	if err != nil {
		return nil, err
	}
	if plan.Empty() {
		slog.Debug("load: nothing new", "job", job.ID, "queue", key.String())
		return nil, nil
	}

	doc, created, err := e.loadOrCreate(ctx, job, foreign)
	if err != nil {
		return nil, err
	}
	proj, err := reshuffle.Project(log)
	if err != nil {
		return nil, err
	}
	return e.rebase(ctx, job, guard, doc, created, log, proj, plan, nil)
}

// rebase appends plan to the job's log: the kept prefix of proj is
// replayed, the plan is built on top of it and the result is committed
// with doc. Actions in local were submitted to this reactor; they are
// signed here and a rejection fails the job instead of being recorded.
func (e *Executor) rebase(ctx context.Context, job *queue.Job, guard *commitGuard, doc ir.Document, created bool, log, proj []ir.Operation, plan reshuffle.Plan, local map[string]bool) ([]int64, error) {
	key := job.Key()
	prev := doc.Clone()

	apply, err := e.applyFunc(doc, job.Scope)
	if err != nil {
		return nil, err
	}

	var state ir.Object
	if plan.Keep == len(proj) {
		state = doc.ScopeState(job.Scope).Clone()
	} else {
		state, err = reshuffle.ReplayProjection(doc.ScopeInitialState(job.Scope), proj[:plan.Keep], apply)
		if err != nil {
			return nil, fmt.Errorf("replay %s: %w", key, err)
		}
	}
	prevHash, err := ir.StateHash(state)
	if err != nil {
		return nil, err
	}

	now := e.cfg.Now()
	ops, state, err := reshuffle.Build(plan, int64(len(log)), state, apply, now)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(log))
	for _, op := range log {
		known[op.Action.ID] = true
	}

	batch := e.store.Start()
	deleted := false
	for _, op := range ops {
		switch {
		case local[op.Action.ID] && op.Error != "":
			return nil, &RejectedError{ActionID: op.Action.ID, Type: op.Action.Type, Err: errors.New(op.Error)}
		case local[op.Action.ID]:
			if op.Action, err = e.sign(op.Action, prevHash, op.Hash); err != nil {
				return nil, err
			}
		case op.Error != "":
			slog.Warn("load: foreign action rejected", "job", job.ID, "action", op.Action.ID, "type", op.Action.Type, "error", op.Error)
		}
		prevHash = op.Hash

		if job.Scope == ir.ScopeDocument && op.Error == "" && !known[op.Action.ID] {
			if op.Action.Type == ir.ActionDeleteDocument {
				deleted = true
			}
			if err := e.applySideEffects(ctx, &doc, op.Action, batch); err != nil {
				return nil, err
			}
		}
		batch.Write(store.Entry{
			DocumentID:   job.DocumentID,
			DocumentType: doc.Header.DocumentType,
			Scope:        job.Scope,
			Branch:       job.Branch,
			Operation:    op,
		})
	}

	doc.State[job.Scope] = state
	if doc.Header.Revision == nil {
		doc.Header.Revision = map[string]int64{}
	}
	doc.Header.Revision[job.Scope] = int64(len(log) + len(ops))
	doc.Header.LastModified = now

	ordinals, err := e.persist(ctx, guard, created, prev, doc, batch)
	if err != nil {
		return nil, err
	}
	if deleted {
		e.dropDocument(ctx, key)
	}
	return ordinals, nil
}

// loadOrCreate returns the snapshot a load job merges into. A document
// seen for the first time is created from the CREATE_DOCUMENT in the batch.
func (e *Executor) loadOrCreate(ctx context.Context, job *queue.Job, foreign []ir.Action) (ir.Document, bool, error) {
	doc, err := e.loadDocument(ctx, job.DocumentID)
	if err == nil {
		return doc, false, nil
	}
	if !errors.Is(err, store.ErrDocumentNotFound) || job.Scope != ir.ScopeDocument {
		return ir.Document{}, false, err
	}
	for _, a := range foreign {
		if a.Type == ir.ActionCreateDocument {
			doc, err := e.newDocument(job.DocumentID, job.Branch, a)
			return doc, true, err
		}
	}
	return ir.Document{}, false, err
}

// applyFunc returns the reducer for scope of doc. Model validators run
// first so that invalid foreign actions are recorded as rejected.
func (e *Executor) applyFunc(doc ir.Document, scope string) (reshuffle.ApplyFunc, error) {
	if scope == ir.ScopeDocument {
		return systemReducer, nil
	}
	mod, err := e.registry.GetModule(doc.Header.DocumentType, doc.Header.Version)
	if err != nil {
		return nil, &registry.ReducerNotFoundError{DocumentType: doc.Header.DocumentType, Version: doc.Header.Version}
	}
	if !mod.HasScope(scope) {
		return nil, &ir.ValidationError{Field: "scope", Message: fmt.Sprintf("%s has no scope %s", mod.Key(), scope)}
	}
	return func(state ir.Object, a ir.Action) (ir.Object, error) {
		if ir.IsSystemAction(a.Type) {
			return nil, fmt.Errorf("system action %s outside the document scope", a.Type)
		}
		if mod.Validator != nil {
			if err := mod.Validator(a); err != nil {
				return nil, err
			}
		}
		return mod.Reducer(state, a)
	}, nil
}

// dropDocument removes the snapshot of a document whose deletion was just
// committed, and announces it.
func (e *Executor) dropDocument(ctx context.Context, key ir.LogKey) {
	e.cache.remove(key.DocumentID)
	if err := e.store.DeleteDocument(context.WithoutCancel(ctx), key.DocumentID); err != nil && !errors.Is(err, store.ErrDocumentNotFound) {
		slog.Error("drop deleted document", "document", key.DocumentID, "error", err)
	}
	if e.bus != nil {
		e.bus.Publish(events.Event{Type: events.DocumentDeleted, Queue: key})
	}
}
