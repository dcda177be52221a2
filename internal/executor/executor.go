// Package executor runs jobs pulled from the job queue.
//
// Each job is executed by one worker of a bounded pool. Apply jobs run new
// actions through the model reducer; load jobs merge foreign operations
// through the convergence protocol; delete jobs tear a document down
// without touching its model. Every job ends in exactly one of Complete
// or Fail on the queue, which publishes the matching bus event.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/reactor/internal/events"
	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/queue"
	"github.com/roach88/reactor/internal/registry"
	"github.com/roach88/reactor/internal/signature"
	"github.com/roach88/reactor/internal/store"
)

// Store is the storage surface the executor writes through.
type Store interface {
	GetDocument(ctx context.Context, id string) (ir.Document, error)
	CreateDocument(ctx context.Context, doc ir.Document) error
	PutDocument(ctx context.Context, doc ir.Document) error
	DeleteDocument(ctx context.Context, id string) error
	Start() *store.Batch
	Commit(ctx context.Context, b *store.Batch) ([]int64, error)
	Log(ctx context.Context, key ir.LogKey, opts ...store.ReadOption) ([]ir.Operation, error)
}

// Scheduler is the queue surface the executor drives.
type Scheduler interface {
	Next(ctx context.Context) (*queue.Job, error)
	Complete(jobID string, ordinals []int64) error
	Fail(jobID string, cause error) error
	Abandon(jobID string, cause error) error
	Release(jobID string) error
}

// Config tunes the executor.
type Config struct {
	// Concurrency bounds the number of jobs running at once.
	Concurrency int
	// JobTimeout bounds one job. Zero disables the timeout.
	JobTimeout time.Duration
	// RetryInterval is the first backoff interval between attempts.
	RetryInterval time.Duration
	// CacheSize is the number of document snapshots kept in memory.
	CacheSize int

	// Signer, if set, signs locally applied actions that carry no signature.
	Signer signature.Signer
	// Verifier, if set, checks the signatures of loaded actions.
	Verifier signature.Verifier

	// Now stamps operations. Defaults to the wall clock in milliseconds.
	Now func() int64
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 50 * time.Millisecond
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 256
	}
	if c.Now == nil {
		c.Now = func() int64 { return time.Now().UnixMilli() }
	}
}

// Executor executes queued jobs against storage.
type Executor struct {
	cfg      Config
	store    Store
	registry *registry.Registry
	queue    Scheduler
	bus      *events.Bus
	cache    *docCache
	locks    *keyedMutex
}

// New returns an executor. Run starts it.
func New(st Store, reg *registry.Registry, q Scheduler, bus *events.Bus, cfg Config) (*Executor, error) {
	cfg.defaults()
	cache, err := newDocCache(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("document cache: %w", err)
	}
	return &Executor{
		cfg:      cfg,
		store:    st,
		registry: reg,
		queue:    q,
		bus:      bus,
		cache:    cache,
		locks:    newKeyedMutex(),
	}, nil
}

// Run pulls jobs until ctx is done or the queue is closed, then waits for
// the jobs still running. Run is called once.
func (e *Executor) Run(ctx context.Context) error {
	pool := pond.NewPool(e.cfg.Concurrency, pond.WithContext(context.WithoutCancel(ctx)))
	// pond queues submissions without bound; slots keeps Next from claiming
	// a job, and marking its queue running, before a worker is free.
	slots := make(chan struct{}, e.cfg.Concurrency)

	slog.Info("executor started", "concurrency", e.cfg.Concurrency, "job_timeout", e.cfg.JobTimeout)
	var runErr error
	for {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			runErr = ctx.Err()
		}
		if runErr != nil {
			break
		}

		job, err := e.queue.Next(ctx)
		if err != nil {
			<-slots
			runErr = err
			break
		}
		pool.Submit(func() {
			defer func() { <-slots }()
			e.runJob(ctx, job)
		})
	}
	pool.StopAndWait()
	slog.Info("executor stopped", "reason", runErr)

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, queue.ErrQueueClosed) {
		return nil
	}
	return runErr
}

type result struct {
	ordinals []int64
	err      error
}

// runJob executes one job and reports its outcome to the queue. On
// timeout the worker slot is freed at once: the job is abandoned, its
// queue stays blocked, and the still-running attempt releases it when it
// returns. An abandoned attempt never commits.
func (e *Executor) runJob(ctx context.Context, job *queue.Job) {
	start := time.Now()
	jobCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.cfg.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, e.cfg.JobTimeout)
	}

	guard := &commitGuard{}
	done := make(chan result, 1)
	go func() {
		ords, err := e.execute(jobCtx, job, guard)
		done <- result{ordinals: ords, err: err}
	}()

	select {
	case res := <-done:
		cancel()
		e.finish(job, res, start)
		return
	case <-jobCtx.Done():
	}

	if !guard.abandon() {
		// Commit already under way; its outcome stands.
		res := <-done
		cancel()
		e.finish(job, res, start)
		return
	}

	cause := ErrJobTimeout
	if ctx.Err() != nil {
		cause = ctx.Err()
	}
	jobErr := &JobError{JobID: job.ID, Err: cause}
	jobsTotal.WithLabelValues(string(job.Kind), "abandoned").Inc()
	slog.Warn("job abandoned", "job", job.ID, "queue", job.Key().String(), "error", cause)
	if err := e.queue.Abandon(job.ID, jobErr); err != nil {
		slog.Error("abandon job", "job", job.ID, "error", err)
	}
	go func() {
		<-done
		cancel()
		if err := e.queue.Release(job.ID); err != nil {
			slog.Error("release job", "job", job.ID, "error", err)
		}
	}()
}

func (e *Executor) finish(job *queue.Job, res result, start time.Time) {
	jobDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())
	if res.err == nil {
		jobsTotal.WithLabelValues(string(job.Kind), "completed").Inc()
		slog.Debug("job completed", "job", job.ID, "queue", job.Key().String(), "ordinals", len(res.ordinals))
		if err := e.queue.Complete(job.ID, res.ordinals); err != nil {
			slog.Error("complete job", "job", job.ID, "error", err)
		}
		return
	}

	jobsTotal.WithLabelValues(string(job.Kind), "failed").Inc()
	slog.Error("job failed", "job", job.ID, "queue", job.Key().String(), "retries", job.Retries, "error", res.err)
	if err := e.queue.Fail(job.ID, &JobError{JobID: job.ID, Err: res.err}); err != nil {
		slog.Error("fail job", "job", job.ID, "error", err)
	}
}

// execute runs the job, retrying storage failures with exponential backoff
// up to the job's retry budget.
func (e *Executor) execute(ctx context.Context, job *queue.Job, guard *commitGuard) ([]int64, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = e.cfg.RetryInterval
	eb.MaxElapsedTime = 0
	retries := job.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	var ordinals []int64
	attempt := 0
	err := backoff.Retry(func() error {
		if attempt > 0 {
			job.Retries++
			jobRetries.Inc()
		}
		attempt++

		ords, err := e.process(ctx, job, guard)
		if err == nil {
			ordinals = ords
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		slog.Warn("job attempt failed", "job", job.ID, "attempt", attempt, "error", err)
		return err
	}, policy)
	return ordinals, err
}

func (e *Executor) process(ctx context.Context, job *queue.Job, guard *commitGuard) ([]int64, error) {
	if job.Kind == queue.KindLoad {
		return e.load(ctx, job, guard)
	}
	if _, ok := job.DeletedDocument(); ok {
		return e.deleteDocument(ctx, job, guard)
	}
	return e.apply(ctx, job, guard)
}

// loadDocument returns the snapshot of id from the cache or storage.
func (e *Executor) loadDocument(ctx context.Context, id string) (ir.Document, error) {
	if doc, ok := e.cache.get(id); ok {
		return doc, nil
	}
	doc, err := e.store.GetDocument(ctx, id)
	if err != nil {
		return ir.Document{}, err
	}
	e.cache.put(doc)
	return doc, nil
}

// newDocument builds the snapshot a CREATE_DOCUMENT action produces.
func (e *Executor) newDocument(id, branch string, create ir.Action) (ir.Document, error) {
	docType, ok := create.Input.GetString("document_type")
	if !ok || docType == "" {
		return ir.Document{}, &ir.ValidationError{ActionID: create.ID, Field: "document_type", Message: "document type is required"}
	}
	version, _ := create.Input.GetInt("version")
	mod, err := e.registry.GetModule(docType, int(version))
	if err != nil {
		return ir.Document{}, &registry.ReducerNotFoundError{DocumentType: docType, Version: int(version)}
	}
	slug, _ := create.Input.GetString("slug")

	rev := map[string]int64{ir.ScopeDocument: 0}
	for _, s := range mod.Scopes {
		rev[s] = 0
	}
	return ir.Document{
		Header: ir.Header{
			ID:           id,
			Slug:         slug,
			DocumentType: docType,
			Version:      mod.Version,
			Branch:       branch,
			Revision:     rev,
			CreatedAt:    create.Timestamp,
			LastModified: create.Timestamp,
		},
		State:        mod.NewInitialState(),
		InitialState: mod.NewInitialState(),
	}, nil
}

// persist writes the snapshot and commits the batch. The snapshot is
// written first; if the commit fails it is rolled back so the snapshot
// never runs ahead of the index.
func (e *Executor) persist(ctx context.Context, guard *commitGuard, created bool, prev, doc ir.Document, batch *store.Batch) ([]int64, error) {
	if !guard.enter() {
		return nil, errAbandoned
	}
	committed := false
	defer func() { guard.done(committed) }()

	id := doc.Header.ID
	var err error
	if created {
		err = e.store.CreateDocument(ctx, doc)
	} else {
		err = e.store.PutDocument(ctx, doc)
	}
	if err != nil {
		e.cache.remove(id)
		return nil, err
	}

	ordinals, err := e.store.Commit(ctx, batch)
	if err != nil {
		e.cache.remove(id)
		restoreCtx := context.WithoutCancel(ctx)
		var rerr error
		if created {
			rerr = e.store.DeleteDocument(restoreCtx, id)
		} else {
			rerr = e.store.PutDocument(restoreCtx, prev)
		}
		if rerr != nil {
			slog.Error("restore document snapshot", "document", id, "error", rerr)
			return nil, fmt.Errorf("%w (restore failed: %v)", err, rerr)
		}
		return nil, err
	}
	committed = true
	e.cache.put(doc)

	for _, en := range batch.Entries() {
		operationsWritten.WithLabelValues(en.Scope).Inc()
	}
	e.publishWritten(batch, ordinals)
	return ordinals, nil
}

func (e *Executor) publishWritten(batch *store.Batch, ordinals []int64) {
	entries := batch.Entries()
	if len(entries) == 0 || e.bus == nil {
		return
	}
	e.bus.Publish(events.Event{
		Type:     events.OperationsWritten,
		Queue:    entries[0].Key(),
		Ordinals: ordinals,
	})
}

// sign attaches a signature to a with the hashes of the states around it.
func (e *Executor) sign(a ir.Action, prevHash, hash string) (ir.Action, error) {
	if e.cfg.Signer == nil || (a.Context != nil && len(a.Context.Signatures) > 0) {
		return a, nil
	}
	sig, err := e.cfg.Signer.Sign(a, prevHash, hash)
	if err != nil {
		return a, err
	}
	a.Context = &ir.ActionContext{Signatures: []ir.Signature{sig}}
	return a, nil
}
