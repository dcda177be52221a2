package reshuffle

import (
	"github.com/roach88/reactor/internal/ir"
)

// ApplyFunc applies one action to a state. A returned error rejects the
// action; the state is then left as it was.
type ApplyFunc func(state ir.Object, action ir.Action) (ir.Object, error)

// Replay rebuilds the state of a log by applying its projection to a copy
// of initial.
func Replay(initial ir.Object, log []ir.Operation, apply ApplyFunc) (ir.Object, error) {
	proj, err := Project(log)
	if err != nil {
		return nil, err
	}
	return ReplayProjection(initial, proj, apply)
}

// ReplayProjection applies already-projected entries, in order, to a copy of
// initial. Entries recorded as rejected are skipped.
func ReplayProjection(initial ir.Object, proj []ir.Operation, apply ApplyFunc) (ir.Object, error) {
	state := initial.Clone()
	for _, op := range proj {
		if op.Error != "" {
			continue
		}
		next, err := apply(state.Clone(), op.Action)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

// Build turns a plan into the operations to append to a log of length
// logLen. state is the state after the plan's kept prefix; each appended
// action is applied in turn. An action apply rejects is recorded with
// Operation.Error and leaves the state unchanged, so every peer derives the
// same hashes. now stamps the new entries.
func Build(plan Plan, logLen int64, state ir.Object, apply ApplyFunc, now int64) ([]ir.Operation, ir.Object, error) {
	ops := make([]ir.Operation, 0, len(plan.Append))
	for i, a := range plan.Append {
		op := ir.Operation{
			Index:     logLen + int64(i),
			Timestamp: now,
			Action:    a,
		}
		if i == 0 {
			op.Skip = plan.Skip
		}

		next, err := apply(state.Clone(), a)
		if err != nil {
			op.Error = err.Error()
		} else {
			state = next
		}

		hash, err := ir.StateHash(state)
		if err != nil {
			return nil, nil, err
		}
		op.Hash = hash
		ops = append(ops, op)
	}
	return ops, state, nil
}
