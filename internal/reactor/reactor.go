package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/reactor/internal/events"
	"github.com/roach88/reactor/internal/executor"
	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/queue"
	"github.com/roach88/reactor/internal/registry"
	"github.com/roach88/reactor/internal/store"
	"github.com/roach88/reactor/internal/syncmgr"
)

// Reactor is one replica: it owns its store handle for reads, schedules
// every write as a job and exchanges operations with remotes.
type Reactor struct {
	store    *store.Store
	registry *registry.Registry
	bus      *events.Bus
	queue    *queue.Queue
	exec     *executor.Executor
	tracker  *tracker
	sync     *syncmgr.Manager
	opts     options

	mu      sync.Mutex
	cancel  context.CancelFunc
	runDone chan error
	closed  bool
}

// New builds a reactor over st with the models of reg. Start runs it.
func New(st *store.Store, reg *registry.Registry, opts ...Option) (*Reactor, error) {
	o := options{maxRetries: DefaultMaxRetries, resultCacheSize: DefaultResultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}

	bus := events.NewBus()
	q := queue.New(bus, st)
	exec, err := executor.New(st, reg, q, bus, o.executor)
	if err != nil {
		bus.Close()
		return nil, err
	}
	tr, err := newTracker(bus, o.resultCacheSize)
	if err != nil {
		bus.Close()
		return nil, err
	}

	r := &Reactor{
		store:    st,
		registry: reg,
		bus:      bus,
		queue:    q,
		exec:     exec,
		tracker:  tr,
		opts:     o,
	}
	r.sync = syncmgr.New(st, syncLoader{r}, bus, o.sync)
	return r, nil
}

// Start runs the executor in the background until Close.
func (r *Reactor) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil || r.closed {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.runDone = make(chan error, 1)
	go func() {
		r.runDone <- r.exec.Run(ctx)
	}()
	slog.Info("reactor started")
}

// Close stops the remotes, drains the executor and releases the bus. The
// store stays open; it belongs to the caller.
func (r *Reactor) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel, runDone := r.cancel, r.runDone
	r.mu.Unlock()

	var result *multierror.Error
	if err := r.sync.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("sync shutdown: %w", err))
	}
	r.queue.Close()
	if cancel != nil {
		cancel()
		select {
		case err := <-runDone:
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("executor: %w", err))
			}
		case <-ctx.Done():
			result = multierror.Append(result, fmt.Errorf("wait for executor: %w", ctx.Err()))
		}
	}
	r.tracker.close()
	r.bus.Close()
	slog.Info("reactor stopped")
	return result.ErrorOrNil()
}

// Sync returns the sync manager of this reactor.
func (r *Reactor) Sync() *syncmgr.Manager {
	return r.sync
}

// Bus returns the event bus, for observers.
func (r *Reactor) Bus() *events.Bus {
	return r.bus
}

// Registry returns the model registry.
func (r *Reactor) Registry() *registry.Registry {
	return r.registry
}

// CreateOptions tune Create.
type CreateOptions struct {
	// ID of the new document. Generated when empty.
	ID   string
	Slug string
	// Version of the model. Zero means the latest registered.
	Version int
	Branch  string
}

// Create submits a job creating a document of documentType and returns
// the document id and the job id.
func (r *Reactor) Create(ctx context.Context, documentType string, opts CreateOptions) (string, string, error) {
	if _, err := r.registry.GetModule(documentType, opts.Version); err != nil {
		return "", "", err
	}
	docID := opts.ID
	if docID == "" {
		docID = ir.NewID()
	}
	action := ir.CreateDocumentAction(documentType, opts.Slug, opts.Version)
	jobID, err := r.submit(ctx, &queue.Job{
		DocumentID: docID,
		Scope:      ir.ScopeDocument,
		Branch:     opts.Branch,
		Kind:       queue.KindApply,
		Actions:    []ir.Action{action},
	})
	if err != nil {
		return "", "", err
	}
	return docID, jobID, nil
}

// Execute submits actions against a document, one job per scope. The
// document scope is queued first. Job ids are returned in queue order.
func (r *Reactor) Execute(ctx context.Context, documentID, branch string, actions []ir.Action) ([]string, error) {
	if len(actions) == 0 {
		return nil, &ir.ValidationError{Field: "actions", Message: "at least one action is required"}
	}
	var scopes []string
	byScope := map[string][]ir.Action{}
	for _, a := range actions {
		if err := ir.ValidateAction(a); err != nil {
			return nil, err
		}
		if _, ok := byScope[a.Scope]; !ok {
			scopes = append(scopes, a.Scope)
		}
		byScope[a.Scope] = append(byScope[a.Scope], a)
	}
	for i, s := range scopes {
		if s == ir.ScopeDocument && i > 0 {
			copy(scopes[1:i+1], scopes[:i])
			scopes[0] = ir.ScopeDocument
			break
		}
	}

	ids := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		id, err := r.submit(ctx, &queue.Job{
			DocumentID: documentID,
			Scope:      scope,
			Branch:     branch,
			Kind:       queue.KindApply,
			Actions:    byScope[scope],
		})
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete submits a job deleting a document.
func (r *Reactor) Delete(ctx context.Context, documentID, branch string) (string, error) {
	return r.submit(ctx, &queue.Job{
		DocumentID: documentID,
		Scope:      ir.ScopeDocument,
		Branch:     branch,
		Kind:       queue.KindApply,
		Actions:    []ir.Action{ir.DeleteDocumentAction(documentID)},
	})
}

// Load submits foreign operations of one log as a load job. source names
// the remote they came from.
func (r *Reactor) Load(ctx context.Context, key ir.LogKey, ops []ir.Operation, source string) (string, error) {
	if len(ops) == 0 {
		return "", &ir.ValidationError{Field: "operations", Message: "at least one operation is required"}
	}
	return r.submit(ctx, &queue.Job{
		DocumentID: key.DocumentID,
		Scope:      key.Scope,
		Branch:     key.Branch,
		Kind:       queue.KindLoad,
		Operations: ops,
		Source:     source,
	})
}

func (r *Reactor) submit(ctx context.Context, job *queue.Job) (string, error) {
	job.ID = ir.NewID()
	job.MaxRetries = r.opts.maxRetries
	r.tracker.track(job.ID)
	id, err := r.queue.Add(ctx, job)
	if err != nil {
		r.tracker.untrack(job.ID)
		return "", err
	}
	return id, nil
}

// Wait blocks until the job finished and returns its result. A failed job
// is not an error of Wait: its cause is in JobResult.Err.
func (r *Reactor) Wait(ctx context.Context, jobID string) (JobResult, error) {
	return r.tracker.wait(ctx, jobID)
}

// Status returns the current result of a job without waiting.
func (r *Reactor) Status(jobID string) (JobResult, bool) {
	return r.tracker.status(jobID)
}

// Queue reports the state of one log's queue.
func (r *Reactor) Queue(key ir.LogKey) (queue.Info, bool) {
	return r.queue.GetQueue(key)
}

// syncLoader is the sync manager's view of the reactor.
type syncLoader struct {
	r *Reactor
}

func (l syncLoader) Load(ctx context.Context, key ir.LogKey, ops []ir.Operation, source string) (string, error) {
	return l.r.Load(ctx, key, ops, source)
}

func (l syncLoader) Wait(ctx context.Context, jobID string) error {
	res, err := l.r.Wait(ctx, jobID)
	if err != nil {
		return err
	}
	return res.Err
}
