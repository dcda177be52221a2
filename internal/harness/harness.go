package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/models"
	"github.com/roach88/reactor/internal/reactor"
	"github.com/roach88/reactor/internal/registry"
	"github.com/roach88/reactor/internal/store"
	"github.com/roach88/reactor/internal/testutil"
)

const runTimeout = 30 * time.Second

type replica struct {
	name    string
	store   *store.Store
	reactor *reactor.Reactor
}

// Harness runs one scenario.
type Harness struct {
	scenario *Scenario
	registry *registry.Registry
	scopes   []string // model scopes, document scope excluded
	replicas map[string]*replica
	branch   string
}

// Run executes a scenario on fresh in-memory replicas and returns the
// result. An error means the scenario could not be run at all; failed
// expectations and assertions are reported in the result.
//
// Run replaces the process id generator while it runs, so scenarios must
// not run in parallel.
func Run(scenario *Scenario) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	restore := ir.SetIDGenerator(testutil.NewSequenceGenerator(scenario.Name))
	defer restore()

	reg := registry.New()
	if err := models.Register(reg); err != nil {
		return nil, err
	}
	mod, err := reg.GetModule(scenario.Document.Type, scenario.Document.Version)
	if err != nil {
		return nil, err
	}

	branch := scenario.Document.Branch
	if branch == "" {
		branch = ir.BranchMain
	}
	h := &Harness{
		scenario: scenario,
		registry: reg,
		scopes:   mod.Scopes,
		replicas: map[string]*replica{},
		branch:   branch,
	}
	defer h.close()

	for _, name := range scenario.Replicas {
		if err := h.open(ctx, name); err != nil {
			return nil, fmt.Errorf("open replica %s: %w", name, err)
		}
	}
	if err := h.setup(ctx); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	if err := h.snapshot(ctx, result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) open(ctx context.Context, name string) error {
	st, err := store.Open(":memory:")
	if err != nil {
		return err
	}
	clock := testutil.NewClock(1, 1)
	r, err := reactor.New(st, h.registry, reactor.WithClock(clock.Now))
	if err != nil {
		st.Close()
		return err
	}
	r.Start(ctx)
	h.replicas[name] = &replica{name: name, store: st, reactor: r}
	return nil
}

func (h *Harness) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, r := range h.replicas {
		if err := r.reactor.Close(ctx); err != nil {
			slog.Warn("harness: close replica", "replica", r.name, "error", err)
		}
		r.store.Close()
	}
}

// setup creates the document on the first replica and hands its document
// log to the others.
func (h *Harness) setup(ctx context.Context) error {
	doc := h.scenario.Document
	first := h.replicas[h.scenario.Replicas[0]]
	_, jobID, err := first.reactor.Create(ctx, doc.Type, reactor.CreateOptions{
		ID:      doc.ID,
		Version: doc.Version,
		Branch:  h.branch,
	})
	if err != nil {
		return err
	}
	if err := wait(ctx, first, jobID); err != nil {
		return err
	}
	for _, name := range h.scenario.Replicas[1:] {
		if _, err := h.copyLog(ctx, first, h.replicas[name], ir.ScopeDocument); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) runStep(ctx context.Context, index int, step Step, result *Result) error {
	if step.Sync != nil {
		return h.sync(ctx, index, step.Sync, result)
	}

	r := h.replicas[step.Replica]
	actions := make([]ir.Action, 0, len(step.Actions))
	ids := make([]string, 0, len(step.Actions))
	for _, a := range step.Actions {
		input, err := toObject(a.Input)
		if err != nil {
			return fmt.Errorf("action %s: %w", a.ID, err)
		}
		actions = append(actions, ir.Action{
			ID:        a.ID,
			Type:      a.Type,
			Scope:     a.Scope,
			Input:     input,
			Timestamp: a.Timestamp,
		})
		ids = append(ids, a.ID)
	}

	var jobErrs []error
	jobIDs, err := r.reactor.Execute(ctx, h.scenario.Document.ID, h.branch, actions)
	if err != nil {
		jobErrs = append(jobErrs, err)
	}
	for _, id := range jobIDs {
		if err := wait(ctx, r, id); err != nil {
			jobErrs = append(jobErrs, err)
		}
	}

	event := TraceEvent{Step: index, Kind: EventExecute, Replica: r.name, Actions: ids}
	if len(jobErrs) > 0 {
		event.Error = jobErrs[0].Error()
	}
	result.addTrace(event)
	slog.Debug("harness: executed", "step", index, "replica", r.name, "actions", len(actions), "errors", len(jobErrs))

	switch {
	case step.ExpectError == "" && len(jobErrs) > 0:
		result.AddError(fmt.Sprintf("step %d: unexpected error: %v", index, errors.Join(jobErrs...)))
	case step.ExpectError != "" && !slices.ContainsFunc(jobErrs, func(err error) bool {
		return strings.Contains(err.Error(), step.ExpectError)
	}):
		result.AddError(fmt.Sprintf("step %d: expected an error containing %q, got %v", index, step.ExpectError, errors.Join(jobErrs...)))
	}
	return nil
}

func (h *Harness) sync(ctx context.Context, index int, s *SyncStep, result *Result) error {
	from, to := h.replicas[s.From], h.replicas[s.To]
	scopes := s.Scopes
	if len(scopes) == 0 {
		scopes = []string{ir.ScopeDocument}
		for _, scope := range h.scopes {
			if scope != ir.ScopeLocal {
				scopes = append(scopes, scope)
			}
		}
	}

	loaded := map[string]int{}
	for _, scope := range scopes {
		n, err := h.copyLog(ctx, from, to, scope)
		if err != nil {
			return fmt.Errorf("sync %s -> %s, scope %s: %w", from.name, to.name, scope, err)
		}
		if n > 0 {
			loaded[scope] = n
		}
	}
	result.addTrace(TraceEvent{Step: index, Kind: EventSync, From: from.name, To: to.name, Loaded: loaded})
	slog.Debug("harness: synced", "step", index, "from", from.name, "to", to.name)
	return nil
}

// copyLog loads the full log of scope on from into to and returns the
// number of entries sent.
func (h *Harness) copyLog(ctx context.Context, from, to *replica, scope string) (int, error) {
	key := ir.LogKey{DocumentID: h.scenario.Document.ID, Scope: scope, Branch: h.branch}
	ops, err := from.reactor.Log(ctx, key, store.ConsistencyToken{})
	if err != nil {
		return 0, err
	}
	if len(ops) == 0 {
		return 0, nil
	}
	jobID, err := to.reactor.Load(ctx, key, ops, from.name)
	if err != nil {
		return 0, err
	}
	return len(ops), wait(ctx, to, jobID)
}

func (h *Harness) snapshot(ctx context.Context, result *Result) error {
	for name, r := range h.replicas {
		doc, err := r.reactor.Get(ctx, h.scenario.Document.ID, store.ConsistencyToken{})
		if err != nil {
			return fmt.Errorf("read document on %s: %w", name, err)
		}
		scopes := map[string]ScopeSnapshot{}
		for _, scope := range h.scopes {
			key := ir.LogKey{DocumentID: h.scenario.Document.ID, Scope: scope, Branch: h.branch}
			ops, err := r.reactor.Log(ctx, key, store.ConsistencyToken{})
			if err != nil {
				return fmt.Errorf("read log %s on %s: %w", key, name, err)
			}
			if len(ops) == 0 {
				continue
			}
			entries := make([]LogEntry, len(ops))
			for i, op := range ops {
				entries[i] = LogEntry{
					Index:  op.Index,
					Skip:   op.Skip,
					Action: op.Action.ID,
					Type:   op.Action.Type,
					Hash:   op.Hash,
					Error:  op.Error,
				}
			}
			state := doc.ScopeState(scope)
			scopes[scope] = ScopeSnapshot{Log: entries, State: ir.ToGo(state).(map[string]any)}
			result.setLog(name, scope, ops, state)
		}
		result.Replicas[name] = scopes
	}
	return nil
}

func wait(ctx context.Context, r *replica, jobID string) error {
	res, err := r.reactor.Wait(ctx, jobID)
	if err != nil {
		return err
	}
	return res.Err
}

func toObject(input map[string]any) (ir.Object, error) {
	if input == nil {
		return ir.Object{}, nil
	}
	v, err := ir.FromGo(input)
	if err != nil {
		return nil, err
	}
	return v.(ir.Object), nil
}
