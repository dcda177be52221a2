package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/reactor/internal/ir"
)

// Snapshot is the part of a result compared against golden files. State
// hashes and step error messages are left out: hashes are covered by the
// converged assertion and messages carry generated job ids.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Replicas     map[string]map[string]ScopeSnapshot
}

// toCanonicalMap converts the snapshot into plain maps for
// ir.MarshalCanonical.
func (s *Snapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, e := range s.Trace {
		m := map[string]any{"step": e.Step, "kind": e.Kind}
		if e.Replica != "" {
			m["replica"] = e.Replica
		}
		if len(e.Actions) > 0 {
			m["actions"] = stringsToAny(e.Actions)
		}
		if e.Error != "" {
			m["failed"] = true
		}
		if e.From != "" {
			m["from"] = e.From
			m["to"] = e.To
		}
		if len(e.Loaded) > 0 {
			loaded := make(map[string]any, len(e.Loaded))
			for scope, n := range e.Loaded {
				loaded[scope] = n
			}
			m["loaded"] = loaded
		}
		trace[i] = m
	}

	replicas := make(map[string]any, len(s.Replicas))
	for name, scopes := range s.Replicas {
		sm := make(map[string]any, len(scopes))
		for scope, snap := range scopes {
			log := make([]any, len(snap.Log))
			for i, e := range snap.Log {
				entry := map[string]any{
					"index":  e.Index,
					"skip":   e.Skip,
					"action": e.Action,
					"type":   e.Type,
				}
				if e.Error != "" {
					entry["error"] = e.Error
				}
				log[i] = entry
			}
			sm[scope] = map[string]any{"log": log, "state": snap.State}
		}
		replicas[name] = sm
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"replicas":      replicas,
	}
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s *Snapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden runs a scenario, fails the test if it does not pass and
// compares its snapshot with testdata/golden/<name>.golden.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares a result against testdata/golden/<name>.golden.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snap := Snapshot{ScenarioName: name, Trace: result.Trace, Replicas: result.Replicas}
	data, err := snap.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
