// Package queue schedules jobs on per-(document, scope, branch) FIFOs.
//
// At most one job per queue is running at any time. A queue is blocked
// while a job runs, while it waits on a creator job (a dependency edge), or
// while an abandoned job has not been released. Different queues run fully
// in parallel. The queue never retries; it reports outcomes on the bus.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/reactor/internal/events"
	"github.com/roach88/reactor/internal/ir"
)

// DocumentChecker reports whether a document exists in storage.
type DocumentChecker interface {
	DocumentExists(ctx context.Context, id string) (bool, error)
}

type jobState int

const (
	statePending jobState = iota
	stateRunning
	stateAbandoned
)

type entry struct {
	job   *Job
	state jobState
}

type docQueue struct {
	key      ir.LogKey
	pending  []*Job
	running  *Job
	deps     map[string]struct{} // creator job ids
	deleted  bool                // document deleted: drain, then remove
	removing bool                // RemoveQueue called while running
}

func (d *docQueue) blocked() bool {
	return d.running != nil || len(d.deps) > 0
}

func (d *docQueue) idle() bool {
	return d.running == nil && len(d.pending) == 0
}

// Queue is the job scheduler. All methods are safe for concurrent use.
type Queue struct {
	bus  *events.Bus
	docs DocumentChecker

	mu         sync.Mutex
	queues     map[ir.LogKey]*docQueue
	order      []ir.LogKey // round-robin order of queue creation
	next       int
	jobs       map[string]*entry
	dependents map[string][]string // creator job id -> gated job ids
	deleted    map[string]bool     // deleted document ids
	signal     chan struct{}       // buffered, size 1
	closed     bool
}

// New returns an empty queue publishing to bus. docs may be nil, in which
// case every referenced document is assumed missing.
func New(bus *events.Bus, docs DocumentChecker) *Queue {
	return &Queue{
		bus:        bus,
		docs:       docs,
		queues:     map[ir.LogKey]*docQueue{},
		jobs:       map[string]*entry{},
		dependents: map[string][]string{},
		deleted:    map[string]bool{},
		signal:     make(chan struct{}, 1),
	}
}

// Add enqueues job and returns its id without waiting for it to run.
//
// If the job references a document that does not exist yet and a job that
// creates that document is queued or running, a dependency edge holds the
// job's queue until the creator finishes. A job that deletes its document
// marks the document deleted: later submissions for it fail with
// QueueDeletedError.
func (q *Queue) Add(ctx context.Context, job *Job) (string, error) {
	if job.DocumentID == "" {
		return "", &ir.ValidationError{Field: "document_id", Message: "job document id is required"}
	}
	if job.Scope == "" {
		return "", &ir.ValidationError{Field: "scope", Message: "job scope is required"}
	}
	if job.ID == "" {
		job.ID = ir.NewID()
	}
	if job.Branch == "" {
		job.Branch = ir.BranchMain
	}
	if job.Kind == "" {
		job.Kind = KindApply
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	// Existence checks are I/O and run before taking the lock. A creator
	// that finishes in between is simply no longer found.
	var missing []string
	if q.docs != nil {
		for _, ref := range job.References() {
			ok, err := q.docs.DocumentExists(ctx, ref)
			if err != nil {
				return "", fmt.Errorf("add job %s: %w", job.ID, err)
			}
			if !ok {
				missing = append(missing, ref)
			}
		}
	} else {
		missing = job.References()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrQueueClosed
	}
	if q.deleted[job.DocumentID] {
		jobsRejected.WithLabelValues("deleted").Inc()
		return "", &QueueDeletedError{DocumentID: job.DocumentID, Key: job.Key()}
	}
	if _, dup := q.jobs[job.ID]; dup {
		return "", fmt.Errorf("add job: duplicate job id %s", job.ID)
	}

	key := job.Key()
	dq, ok := q.queues[key]
	if !ok {
		dq = &docQueue{key: key, deps: map[string]struct{}{}}
		q.queues[key] = dq
		q.order = append(q.order, key)
	}

	job.Dependencies = nil
	for _, ref := range missing {
		creator := q.findCreator(ref, job.ID)
		if creator == "" {
			continue
		}
		dq.deps[creator] = struct{}{}
		q.dependents[creator] = append(q.dependents[creator], job.ID)
		job.Dependencies = append(job.Dependencies, creator)
	}

	dq.pending = append(dq.pending, job)
	q.jobs[job.ID] = &entry{job: job, state: statePending}

	if target, ok := job.DeletedDocument(); ok {
		q.markDeleted(target)
	}

	jobsAdded.WithLabelValues(string(job.Kind)).Inc()
	pendingJobs.Inc()
	q.bus.Publish(events.Event{Type: events.JobAdded, JobID: job.ID, Queue: key})
	slog.Debug("job added",
		"job_id", job.ID,
		"document_id", job.DocumentID,
		"scope", job.Scope,
		"branch", job.Branch,
		"kind", job.Kind,
		"dependencies", len(job.Dependencies))

	q.wake()
	return job.ID, nil
}

// findCreator returns the id of a queued or running job creating documentID.
func (q *Queue) findCreator(documentID, exclude string) string {
	for _, key := range q.order {
		dq := q.queues[key]
		if key.DocumentID != documentID {
			continue
		}
		if dq.running != nil && dq.running.ID != exclude && dq.running.CreatesDocument() {
			return dq.running.ID
		}
		for _, j := range dq.pending {
			if j.ID != exclude && j.CreatesDocument() {
				return j.ID
			}
		}
	}
	return ""
}

func (q *Queue) markDeleted(documentID string) {
	q.deleted[documentID] = true
	for key, dq := range q.queues {
		if key.DocumentID == documentID {
			dq.deleted = true
			q.maybeRemove(dq)
		}
	}
}

// Next blocks until a job can run, marks its queue running and returns it.
func (q *Queue) Next(ctx context.Context) (*Job, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		job, more := q.claim()
		if job != nil && more {
			q.wake()
		}
		q.mu.Unlock()

		if job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		}
	}
}

// claim picks the next runnable queue round-robin. Returns the job and
// whether another queue is runnable too.
func (q *Queue) claim() (*Job, bool) {
	n := len(q.order)
	var picked *Job
	for i := 0; i < n; i++ {
		idx := (q.next + i) % n
		dq := q.queues[q.order[idx]]
		if dq.blocked() || len(dq.pending) == 0 {
			continue
		}
		if picked != nil {
			return picked, true
		}

		job := dq.pending[0]
		dq.pending[0] = nil
		dq.pending = dq.pending[1:]
		dq.running = job
		q.jobs[job.ID].state = stateRunning
		q.next = idx + 1
		picked = job

		pendingJobs.Dec()
		runningJobs.Inc()
		q.bus.Publish(events.Event{Type: events.JobStarted, JobID: job.ID, Queue: dq.key})
	}
	return picked, false
}

// Complete reports success of a running job and unblocks its queue and
// every queue waiting on it.
func (q *Queue) Complete(jobID string, ordinals []int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, dq, err := q.runningEntry(jobID)
	if err != nil {
		return err
	}
	q.finish(e, dq)
	q.bus.Publish(events.Event{Type: events.JobCompleted, JobID: jobID, Queue: dq.key, Ordinals: ordinals})

	for _, depID := range q.dependents[jobID] {
		if de, ok := q.jobs[depID]; ok {
			if gated := q.queues[de.job.Key()]; gated != nil {
				delete(gated.deps, jobID)
			}
		}
	}
	delete(q.dependents, jobID)

	q.maybeRemove(dq)
	q.wake()
	return nil
}

// Fail reports a terminal failure of a running job. Jobs gated on it fail
// with DependencyError.
func (q *Queue) Fail(jobID string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, dq, err := q.runningEntry(jobID)
	if err != nil {
		return err
	}
	q.finish(e, dq)
	q.bus.Publish(events.Event{Type: events.JobFailed, JobID: jobID, Queue: dq.key, Err: cause})
	q.failDependents(jobID, cause)

	q.maybeRemove(dq)
	q.wake()
	return nil
}

// Abandon reports a running job as failed while its worker may still be
// executing it, typically after a timeout. The queue stays blocked until
// Release so that no second job runs on the log concurrently.
func (q *Queue) Abandon(jobID string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, dq, err := q.runningEntry(jobID)
	if err != nil {
		return err
	}
	e.state = stateAbandoned
	q.bus.Publish(events.Event{Type: events.JobFailed, JobID: jobID, Queue: dq.key, Err: cause})
	q.failDependents(jobID, cause)
	return nil
}

// Release frees the queue of an abandoned job once its worker returned.
func (q *Queue) Release(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[jobID]
	if !ok || e.state != stateAbandoned {
		return fmt.Errorf("release %s: %w", jobID, ErrUnknownJob)
	}
	dq := q.queues[e.job.Key()]
	q.finish(e, dq)
	q.maybeRemove(dq)
	q.wake()
	return nil
}

func (q *Queue) runningEntry(jobID string) (*entry, *docQueue, error) {
	e, ok := q.jobs[jobID]
	if !ok || e.state != stateRunning {
		return nil, nil, fmt.Errorf("job %s: %w", jobID, ErrUnknownJob)
	}
	dq := q.queues[e.job.Key()]
	if dq == nil || dq.running != e.job {
		return nil, nil, fmt.Errorf("job %s: %w", jobID, ErrUnknownJob)
	}
	return e, dq, nil
}

func (q *Queue) finish(e *entry, dq *docQueue) {
	dq.running = nil
	delete(q.jobs, e.job.ID)
	runningJobs.Dec()
}

// failDependents fails every pending job gated on creatorID, transitively.
func (q *Queue) failDependents(creatorID string, cause error) {
	gated := q.dependents[creatorID]
	delete(q.dependents, creatorID)

	for _, depID := range gated {
		de, ok := q.jobs[depID]
		if !ok {
			continue
		}
		dq := q.queues[de.job.Key()]
		delete(dq.deps, creatorID)
		if de.state != statePending {
			continue
		}

		for i, j := range dq.pending {
			if j.ID == depID {
				dq.pending = append(dq.pending[:i], dq.pending[i+1:]...)
				break
			}
		}
		delete(q.jobs, depID)
		pendingJobs.Dec()

		depErr := &DependencyError{JobID: depID, DependsOn: creatorID, Err: cause}
		slog.Warn("job failed on dependency",
			"job_id", depID,
			"depends_on", creatorID,
			"error", cause)
		q.bus.Publish(events.Event{Type: events.JobFailed, JobID: depID, Queue: dq.key, Err: depErr})

		q.failDependents(depID, depErr)
		q.maybeRemove(dq)
	}
}

// maybeRemove drops an idle queue that was deleted or asked to be removed.
func (q *Queue) maybeRemove(dq *docQueue) {
	if dq == nil || !(dq.deleted || dq.removing) || !dq.idle() {
		return
	}
	q.dropQueue(dq.key)
}

func (q *Queue) dropQueue(key ir.LogKey) {
	delete(q.queues, key)
	for i, k := range q.order {
		if k == key {
			q.order = append(q.order[:i], q.order[i+1:]...)
			if q.next > i {
				q.next--
			}
			break
		}
	}
	q.bus.Publish(events.Event{Type: events.QueueRemoved, Queue: key})
	slog.Debug("queue removed", "queue", key.String())
}

// RemoveQueue drops the pending jobs of a queue, failing each with
// ErrQueueRemoved, and removes the queue. A running job is allowed to
// finish first.
func (q *Queue) RemoveQueue(key ir.LogKey) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	dq, ok := q.queues[key]
	if !ok {
		return fmt.Errorf("remove queue %s: not found", key)
	}

	dropped := dq.pending
	dq.pending = nil
	for _, j := range dropped {
		delete(q.jobs, j.ID)
		pendingJobs.Dec()
		for creator := range dq.deps {
			q.dependents[creator] = without(q.dependents[creator], j.ID)
		}
		q.bus.Publish(events.Event{Type: events.JobFailed, JobID: j.ID, Queue: key, Err: ErrQueueRemoved})
		q.failDependents(j.ID, ErrQueueRemoved)
	}
	dq.deps = map[string]struct{}{}

	if dq.running != nil {
		dq.removing = true
		return nil
	}
	q.dropQueue(key)
	return nil
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// Info is a snapshot of one queue.
type Info struct {
	Key          ir.LogKey
	Pending      []string
	Running      string
	Dependencies []string
	Deleted      bool
	Blocked      bool
}

// GetQueue returns a snapshot of the queue for key.
func (q *Queue) GetQueue(key ir.LogKey) (Info, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	dq, ok := q.queues[key]
	if !ok {
		return Info{}, false
	}
	return q.info(dq), true
}

// Queues returns a snapshot of every queue in scheduling order.
func (q *Queue) Queues() []Info {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Info, 0, len(q.order))
	for _, key := range q.order {
		out = append(out, q.info(q.queues[key]))
	}
	return out
}

func (q *Queue) info(dq *docQueue) Info {
	in := Info{Key: dq.key, Deleted: dq.deleted, Blocked: dq.blocked(), Pending: []string{}}
	for _, j := range dq.pending {
		in.Pending = append(in.Pending, j.ID)
	}
	if dq.running != nil {
		in.Running = dq.running.ID
	}
	for id := range dq.deps {
		in.Dependencies = append(in.Dependencies, id)
	}
	sort.Strings(in.Dependencies)
	return in
}

// IsDeleted reports whether documentID was deleted through the queue.
func (q *Queue) IsDeleted(documentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.deleted[documentID]
}

// Close stops the queue. Waiting Next calls return ErrQueueClosed.
// Pending jobs are left unexecuted.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// wake signals one waiting worker. Caller holds mu.
func (q *Queue) wake() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
