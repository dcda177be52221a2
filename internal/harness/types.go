package harness

import "github.com/roach88/reactor/internal/ir"

// Trace event kinds.
const (
	EventExecute = "execute"
	EventSync    = "sync"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step    int            `json:"step"`
	Kind    string         `json:"kind"`
	Replica string         `json:"replica,omitempty"`
	Actions []string       `json:"actions,omitempty"`
	Error   string         `json:"error,omitempty"`
	From    string         `json:"from,omitempty"`
	To      string         `json:"to,omitempty"`
	Loaded  map[string]int `json:"loaded,omitempty"` // scope -> entries sent
}

// LogEntry is the part of an operation that is stable across runs.
type LogEntry struct {
	Index  int64  `json:"index"`
	Skip   int64  `json:"skip"`
	Action string `json:"action"`
	Type   string `json:"type"`
	Hash   string `json:"hash"`
	Error  string `json:"error,omitempty"`
}

// ScopeSnapshot is the final log and state of one scope on one replica.
type ScopeSnapshot struct {
	Log   []LogEntry     `json:"log"`
	State map[string]any `json:"state"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Replicas maps replica -> scope -> snapshot, for every scope with at
	// least one entry. The document scope is left out.
	Replicas map[string]map[string]ScopeSnapshot `json:"replicas"`

	logs   map[string]map[string][]ir.Operation
	states map[string]map[string]ir.Object
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Replicas: map[string]map[string]ScopeSnapshot{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) setLog(replica, scope string, ops []ir.Operation, state ir.Object) {
	if r.logs == nil {
		r.logs = map[string]map[string][]ir.Operation{}
		r.states = map[string]map[string]ir.Object{}
	}
	if r.logs[replica] == nil {
		r.logs[replica] = map[string][]ir.Operation{}
		r.states[replica] = map[string]ir.Object{}
	}
	r.logs[replica][scope] = ops
	r.states[replica][scope] = state
}

func (r *Result) addTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
