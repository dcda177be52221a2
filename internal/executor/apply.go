package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/queue"
	"github.com/roach88/reactor/internal/registry"
	"github.com/roach88/reactor/internal/reshuffle"
	"github.com/roach88/reactor/internal/store"
)

// apply runs a job's new actions on top of the current state of its log.
// Actions that sort after the projection are appended with no skip; any
// that sort earlier are merged into place like foreign actions.
func (e *Executor) apply(ctx context.Context, job *queue.Job, guard *commitGuard) ([]int64, error) {
	if len(job.Actions) == 0 {
		return nil, &ir.ValidationError{Field: "actions", Message: "job has no actions"}
	}
	unlock := e.locks.lock(job.DocumentID)
	defer unlock()

	var (
		doc     ir.Document
		created bool
		err     error
	)
	if first := job.Actions[0]; first.Type == ir.ActionCreateDocument {
		doc, err = e.newDocument(job.DocumentID, job.Branch, first)
		created = true
	} else {
		doc, err = e.loadDocument(ctx, job.DocumentID)
	}
	if err != nil {
		return nil, err
	}
	if doc.Header.Branch != "" && doc.Header.Branch != job.Branch {
		return nil, &ir.ValidationError{Field: "branch", Message: fmt.Sprintf("document is on branch %s, job targets %s", doc.Header.Branch, job.Branch)}
	}
	prev := doc.Clone()

	mod, err := e.registry.GetModule(doc.Header.DocumentType, doc.Header.Version)
	if err != nil {
		return nil, &registry.ReducerNotFoundError{DocumentType: doc.Header.DocumentType, Version: doc.Header.Version}
	}
	if !mod.HasScope(job.Scope) {
		return nil, &ir.ValidationError{Field: "scope", Message: fmt.Sprintf("%s has no scope %s", mod.Key(), job.Scope)}
	}

	for i, a := range job.Actions {
		if err := e.checkAction(mod, job, i, a); err != nil {
			return nil, err
		}
	}

	var log, proj []ir.Operation
	if !created {
		if log, err = e.store.Log(ctx, job.Key()); err != nil {
			return nil, err
		}
		if proj, err = reshuffle.Project(log); err != nil {
			return nil, err
		}
	}
	if !reshuffle.Appendable(proj, job.Actions) {
		plan, err := reshuffle.Merge(log, job.Actions)
		if err != nil {
			return nil, err
		}
		if plan.Empty() {
			return nil, nil
		}
		local := make(map[string]bool, len(job.Actions))
		for _, a := range job.Actions {
			local[a.ID] = true
		}
		slog.Debug("apply: local actions sort before the log tail", "job", job.ID, "queue", job.Key().String(), "skip", plan.Skip)
		return e.rebase(ctx, job, guard, doc, created, log, proj, plan, local)
	}

	now := e.cfg.Now()
	batch := e.store.Start()
	state := doc.ScopeState(job.Scope).Clone()
	index := doc.Header.Revision[job.Scope]

	for _, a := range job.Actions {
		prevHash, err := ir.StateHash(state)
		if err != nil {
			return nil, err
		}

		var next ir.Object
		if ir.IsSystemAction(a.Type) {
			next, err = systemReducer(state.Clone(), a)
		} else {
			next, err = mod.Reducer(state.Clone(), a)
		}
		if err != nil {
			if ir.IsValidationError(err) {
				return nil, err
			}
			return nil, &RejectedError{ActionID: a.ID, Type: a.Type, Err: err}
		}
		if ir.IsSystemAction(a.Type) {
			if err := e.applySideEffects(ctx, &doc, a, batch); err != nil {
				return nil, err
			}
		}
		state = next

		hash, err := ir.StateHash(state)
		if err != nil {
			return nil, err
		}
		if a, err = e.sign(a, prevHash, hash); err != nil {
			return nil, err
		}
		batch.Write(store.Entry{
			DocumentID:   doc.Header.ID,
			DocumentType: doc.Header.DocumentType,
			Scope:        job.Scope,
			Branch:       job.Branch,
			Operation: ir.Operation{
				Index:     index,
				Hash:      hash,
				Timestamp: now,
				Action:    a,
			},
		})
		index++
	}

	doc.State[job.Scope] = state
	doc.Header.Revision[job.Scope] = index
	doc.Header.LastModified = now

	return e.persist(ctx, guard, created, prev, doc, batch)
}

// checkAction validates one action of an apply job before it is reduced.
func (e *Executor) checkAction(mod registry.Module, job *queue.Job, i int, a ir.Action) error {
	if err := ir.ValidateAction(a); err != nil {
		return err
	}
	if a.Scope != job.Scope {
		return &ir.ValidationError{ActionID: a.ID, Field: "scope", Message: fmt.Sprintf("action scope %s does not match job scope %s", a.Scope, job.Scope)}
	}
	if ir.IsSystemAction(a.Type) {
		if job.Scope != ir.ScopeDocument {
			return &ir.ValidationError{ActionID: a.ID, Field: "scope", Message: "system actions live in the document scope"}
		}
		if a.Type == ir.ActionCreateDocument && i > 0 {
			return &ir.ValidationError{ActionID: a.ID, Field: "type", Message: "CREATE_DOCUMENT must be the first action of its job"}
		}
		return nil
	}
	if job.Scope == ir.ScopeDocument {
		return &ir.ValidationError{ActionID: a.ID, Field: "scope", Message: "model actions cannot target the document scope"}
	}
	if mod.Validator != nil {
		return mod.Validator(a)
	}
	return nil
}
