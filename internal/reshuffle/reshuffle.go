// Package reshuffle merges foreign actions into an append-only operation log
// so that every peer converges on the same canonical projection.
//
// A log is never rewritten. Each entry's Skip pops that many entries off the
// projection built so far before the entry is pushed, so a merge appends the
// reordered tail after a single skip marker. Replaying any log left to right
// yields the projection; two logs converge when their projections hold the
// same actions in the same order.
package reshuffle

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/reactor/internal/ir"
)

// ErrInvalidSkip is returned for an entry skipping more entries than the
// projection holds.
var ErrInvalidSkip = errors.New("skip exceeds projection length")

// Project returns the canonical entries of log, in order.
func Project(log []ir.Operation) ([]ir.Operation, error) {
	stack := make([]ir.Operation, 0, len(log))
	for _, op := range log {
		if op.Skip < 0 || op.Skip > int64(len(stack)) {
			return nil, fmt.Errorf("operation %d skips %d of %d: %w", op.Index, op.Skip, len(stack), ErrInvalidSkip)
		}
		stack = stack[:int64(len(stack))-op.Skip]
		stack = append(stack, op)
	}
	return stack, nil
}

// Actions returns the actions of ops.
func Actions(ops []ir.Operation) []ir.Action {
	out := make([]ir.Action, len(ops))
	for i, op := range ops {
		out[i] = op.Action
	}
	return out
}

// Sort orders actions by (timestamp, id). The id tie-break is byte-wise, so
// every process computes the same order.
func Sort(actions []ir.Action) {
	slices.SortStableFunc(actions, ir.CompareActions)
}

// Plan is the result of merging foreign actions into a log.
//
// Keep is the length of the projection prefix that stays in place. Skip is
// the number of projection entries the first appended entry discards.
// Append holds the actions to append, in order; the first carries Skip, the
// rest skip nothing.
type Plan struct {
	Keep   int
	Skip   int64
	Append []ir.Action
}

// Empty reports whether the merge changes nothing.
func (p Plan) Empty() bool {
	return len(p.Append) == 0
}

// Merge computes how to append foreign actions to log.
//
// The merged order is the stable (timestamp, id) sort of the projection's
// actions together with every foreign action not already in it. Entries of
// the projection that already sit in merged order are kept; the displaced
// tail is skipped and re-appended, interleaved with the foreign actions.
func Merge(log []ir.Operation, foreign []ir.Action) (Plan, error) {
	proj, err := Project(log)
	if err != nil {
		return Plan{}, err
	}
	current := Actions(proj)

	known := make(map[string]bool, len(current)+len(foreign))
	for _, a := range current {
		known[a.ID] = true
	}

	merged := append([]ir.Action(nil), current...)
	added := 0
	for _, a := range foreign {
		if known[a.ID] {
			continue
		}
		known[a.ID] = true
		merged = append(merged, a)
		added++
	}
	if added == 0 {
		return Plan{Keep: len(current)}, nil
	}
	Sort(merged)

	keep := 0
	for keep < len(current) && current[keep].ID == merged[keep].ID {
		keep++
	}

	return Plan{
		Keep:   keep,
		Skip:   int64(len(current) - keep),
		Append: merged[keep:],
	}, nil
}

// Appendable reports whether actions, in the given order, can be appended
// after the projection proj with no skip and keep it in (timestamp, id)
// order. When it reports false the actions must go through Merge.
func Appendable(proj []ir.Operation, actions []ir.Action) bool {
	var last *ir.Action
	if len(proj) > 0 {
		last = &proj[len(proj)-1].Action
	}
	for i := range actions {
		if last != nil && ir.CompareActions(*last, actions[i]) >= 0 {
			return false
		}
		last = &actions[i]
	}
	return true
}
