package executor

import (
	"context"
	"fmt"

	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/store"
)

// deletedState is the document-scope state recorded by DELETE_DOCUMENT.
func deletedState() ir.Object {
	return ir.Object{"deleted": ir.Bool(true)}
}

// systemReducer folds system actions into the document-scope state. It is
// pure: side effects on the snapshot and on collections are applied by
// applySideEffects once an action is accepted.
func systemReducer(state ir.Object, a ir.Action) (ir.Object, error) {
	switch a.Type {
	case ir.ActionCreateDocument:
		docType, ok := a.Input.GetString("document_type")
		if !ok || docType == "" {
			return nil, &ir.ValidationError{ActionID: a.ID, Field: "document_type", Message: "document type is required"}
		}
		next := ir.Object{"document_type": ir.String(docType)}
		if slug, ok := a.Input.GetString("slug"); ok && slug != "" {
			next["slug"] = ir.String(slug)
		}
		if v, ok := a.Input.GetInt("version"); ok {
			next["version"] = ir.Int(v)
		}
		return next, nil

	case ir.ActionUpgradeDocument:
		to, ok := a.Input.GetInt("to_version")
		if !ok || to < 1 {
			return nil, &ir.ValidationError{ActionID: a.ID, Field: "to_version", Message: "target version is required"}
		}
		if cur, ok := state.GetInt("version"); ok && to < cur {
			return nil, fmt.Errorf("downgrade from %d to %d is not supported", cur, to)
		}
		state["version"] = ir.Int(to)
		return state, nil

	case ir.ActionDeleteDocument:
		return deletedState(), nil

	case ir.ActionAddRelationship:
		target, ok := a.Input.GetString("target_id")
		if !ok || target == "" {
			return nil, &ir.ValidationError{ActionID: a.ID, Field: "target_id", Message: "target id is required"}
		}
		kind, _ := a.Input.GetString("relationship_type")
		rels, _ := state.GetArray("relationships")
		for _, r := range rels {
			obj, _ := r.(ir.Object)
			t, _ := obj.GetString("target_id")
			k, _ := obj.GetString("relationship_type")
			if t == target && k == kind {
				return state, nil
			}
		}
		state["relationships"] = append(rels, ir.Object{
			"target_id":         ir.String(target),
			"relationship_type": ir.String(kind),
		})
		return state, nil

	case ir.ActionRemoveRelationship:
		target, ok := a.Input.GetString("target_id")
		if !ok || target == "" {
			return nil, &ir.ValidationError{ActionID: a.ID, Field: "target_id", Message: "target id is required"}
		}
		rels, _ := state.GetArray("relationships")
		kept := make(ir.Array, 0, len(rels))
		for _, r := range rels {
			obj, _ := r.(ir.Object)
			if t, _ := obj.GetString("target_id"); t != target {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(rels) {
			return nil, fmt.Errorf("no relationship to %s", target)
		}
		state["relationships"] = kept
		return state, nil
	}
	return nil, fmt.Errorf("unknown system action %s", a.Type)
}

// applySideEffects carries out what an accepted system action does beyond
// the document-scope state: collection bookkeeping and version upgrades.
// DELETE_DOCUMENT is handled by the caller after commit.
func (e *Executor) applySideEffects(ctx context.Context, doc *ir.Document, a ir.Action, batch *store.Batch) error {
	coll := ir.CollectionID(doc.Header.Branch, doc.Header.ID)
	switch a.Type {
	case ir.ActionCreateDocument:
		batch.CreateCollection(coll)
		batch.AddToCollection(coll, doc.Header.ID)

	case ir.ActionAddRelationship:
		target, _ := a.Input.GetString("target_id")
		batch.CreateCollection(coll)
		batch.AddToCollection(coll, target)

	case ir.ActionUpgradeDocument:
		to, _ := a.Input.GetInt("to_version")
		return e.upgrade(ctx, doc, int(to), a)
	}
	return nil
}

// upgrade walks the single-step transitions from the document's version to
// to, rewriting every model scope.
func (e *Executor) upgrade(ctx context.Context, doc *ir.Document, to int, a ir.Action) error {
	path, err := e.registry.ComputeUpgradePath(doc.Header.DocumentType, doc.Header.Version, to)
	if err != nil {
		return err
	}
	for _, tr := range path {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := tr.Upgrade(doc.Clone(), a)
		if err != nil {
			return fmt.Errorf("upgrade %s from %d to %d: %w", doc.Header.DocumentType, tr.From, tr.To, err)
		}
		next.Header = doc.Header
		next.Header.Version = tr.To
		*doc = next
	}
	if len(path) > 0 {
		mod, err := e.registry.GetModule(doc.Header.DocumentType, to)
		if err != nil {
			return err
		}
		init := mod.NewInitialState()
		for _, s := range mod.Scopes {
			if _, ok := doc.State[s]; !ok {
				doc.State[s] = init[s]
			}
			if doc.Header.Revision == nil {
				doc.Header.Revision = map[string]int64{}
			}
			if _, ok := doc.Header.Revision[s]; !ok {
				doc.Header.Revision[s] = 0
			}
		}
		doc.InitialState = mergeInitial(doc.InitialState, init)
	}
	return nil
}

func mergeInitial(cur, next map[string]ir.Object) map[string]ir.Object {
	if cur == nil {
		cur = map[string]ir.Object{}
	}
	for s, v := range next {
		if _, ok := cur[s]; !ok {
			cur[s] = v
		}
	}
	return cur
}
