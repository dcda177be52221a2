package harness

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/reshuffle"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nSteps:\n")
		for _, event := range e.Trace {
			switch event.Kind {
			case EventExecute:
				fmt.Fprintf(&buf, "  [%d] %s executes %v\n", event.Step, event.Replica, event.Actions)
			case EventSync:
				fmt.Fprintf(&buf, "  [%d] %s -> %s %v\n", event.Step, event.From, event.To, event.Loaded)
			}
		}
	}
	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertConverged:
			err = assertConverged(result, a)
		case AssertProjection:
			err = assertProjection(result, a)
		case AssertLogLength:
			err = assertLogLength(result, a)
		case AssertRejected:
			err = assertRejected(result, a)
		case AssertState:
			err = assertState(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// assertConverged checks that every replica projects the same action ids
// and holds the same state for each scope.
func assertConverged(result *Result, a Assertion) error {
	replicas := make([]string, 0, len(result.Replicas))
	for name := range result.Replicas {
		replicas = append(replicas, name)
	}
	sort.Strings(replicas)
	if len(replicas) < 2 {
		return nil
	}

	for _, scope := range a.Scopes {
		var (
			wantIDs  []string
			wantHash string
		)
		for i, name := range replicas {
			ids, err := projectionIDs(result, name, scope)
			if err != nil {
				return err
			}
			hash, err := ir.StateHash(result.states[name][scope])
			if err != nil {
				return err
			}
			if i == 0 {
				wantIDs, wantHash = ids, hash
				continue
			}
			if !slices.Equal(ids, wantIDs) {
				return &AssertionError{
					Type:     AssertConverged,
					Expected: fmt.Sprintf("%s/%s projects %v like %s", name, scope, wantIDs, replicas[0]),
					Actual:   fmt.Sprintf("%v", ids),
					Trace:    result.Trace,
				}
			}
			if hash != wantHash {
				return &AssertionError{
					Type:     AssertConverged,
					Expected: fmt.Sprintf("%s/%s state hash %s like %s", name, scope, wantHash, replicas[0]),
					Actual:   hash,
					Trace:    result.Trace,
				}
			}
		}
	}
	return nil
}

func assertProjection(result *Result, a Assertion) error {
	ids, err := projectionIDs(result, a.Replica, a.Scope)
	if err != nil {
		return err
	}
	if !slices.Equal(ids, a.Actions) {
		return &AssertionError{
			Type:     AssertProjection,
			Expected: fmt.Sprintf("%s/%s projects %v", a.Replica, a.Scope, a.Actions),
			Actual:   fmt.Sprintf("%v", ids),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertLogLength(result *Result, a Assertion) error {
	n := len(result.logs[a.Replica][a.Scope])
	if n != a.Count {
		return &AssertionError{
			Type:     AssertLogLength,
			Expected: fmt.Sprintf("%s/%s has %d entries", a.Replica, a.Scope, a.Count),
			Actual:   fmt.Sprintf("%d entries", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertRejected checks the ids of the projected entries recorded with an
// error.
func assertRejected(result *Result, a Assertion) error {
	proj, err := reshuffle.Project(result.logs[a.Replica][a.Scope])
	if err != nil {
		return err
	}
	var rejected []string
	for _, op := range proj {
		if op.Error != "" {
			rejected = append(rejected, op.Action.ID)
		}
	}
	if !slices.Equal(rejected, a.Actions) {
		return &AssertionError{
			Type:     AssertRejected,
			Expected: fmt.Sprintf("%s/%s rejects %v", a.Replica, a.Scope, a.Actions),
			Actual:   fmt.Sprintf("%v", rejected),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertState matches the listed top-level keys of the state. Extra keys
// in the state are ignored.
func assertState(result *Result, a Assertion) error {
	state := result.states[a.Replica][a.Scope]
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want, err := canonical(a.Expect[key])
		if err != nil {
			return fmt.Errorf("state assertion on %q: %w", key, err)
		}
		actual, ok := state[key]
		if !ok {
			return &AssertionError{
				Type:     AssertState,
				Expected: fmt.Sprintf("%s/%s has field %q", a.Replica, a.Scope, key),
				Actual:   fmt.Sprintf("fields %v", state.SortedKeys()),
			}
		}
		got, err := ir.MarshalCanonical(actual)
		if err != nil {
			return err
		}
		if !bytes.Equal(want, got) {
			return &AssertionError{
				Type:     AssertState,
				Expected: fmt.Sprintf("%s/%s field %q = %s", a.Replica, a.Scope, key, want),
				Actual:   string(got),
			}
		}
	}
	return nil
}

func projectionIDs(result *Result, replica, scope string) ([]string, error) {
	proj, err := reshuffle.Project(result.logs[replica][scope])
	if err != nil {
		return nil, fmt.Errorf("project %s/%s: %w", replica, scope, err)
	}
	ids := make([]string, len(proj))
	for i, op := range proj {
		ids[i] = op.Action.ID
	}
	return ids, nil
}

func canonical(v any) ([]byte, error) {
	val, err := ir.FromGo(v)
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(val)
}
