package reactor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hnlq715/golang-lru"

	"github.com/roach88/reactor/internal/events"
	"github.com/roach88/reactor/internal/store"
)

// ErrUnknownJob is returned by Wait for a job this reactor never submitted
// or whose result was evicted.
var ErrUnknownJob = errors.New("unknown job")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// JobResult is what Wait reports about a job.
type JobResult struct {
	JobID  string
	Status Status
	// Err is the cause of a failed job.
	Err error
	// Token covers every operation a completed job wrote.
	Token store.ConsistencyToken
}

type tracked struct {
	result JobResult
	done   chan struct{}
}

// tracker follows job events on the bus. Jobs are registered before they
// are queued, so no event can be missed; finished results move to an LRU.
type tracker struct {
	mu      sync.Mutex
	active  map[string]*tracked
	results *lru.Cache

	sub     *events.Subscription
	stopped chan struct{}
}

func newTracker(bus *events.Bus, size int) (*tracker, error) {
	results, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("job result cache: %w", err)
	}
	t := &tracker{
		active:  map[string]*tracked{},
		results: results,
		sub:     bus.Subscribe(events.JobStarted, events.JobCompleted, events.JobFailed),
		stopped: make(chan struct{}),
	}
	go t.run()
	return t, nil
}

func (t *tracker) run() {
	defer close(t.stopped)
	for ev := range t.sub.C() {
		switch ev.Type {
		case events.JobStarted:
			t.update(ev.JobID, func(r *JobResult) { r.Status = StatusRunning })
		case events.JobCompleted:
			t.finish(ev.JobID, JobResult{Status: StatusCompleted, Token: store.TokenFor(ev.Ordinals)})
		case events.JobFailed:
			t.finish(ev.JobID, JobResult{Status: StatusFailed, Err: ev.Err})
		}
	}
}

func (t *tracker) track(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[jobID] = &tracked{
		result: JobResult{JobID: jobID, Status: StatusPending},
		done:   make(chan struct{}),
	}
}

// untrack forgets a job that never made it into the queue.
func (t *tracker) untrack(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, jobID)
}

func (t *tracker) update(jobID string, f func(*JobResult)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.active[jobID]; ok {
		f(&tr.result)
	}
}

func (t *tracker) finish(jobID string, res JobResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.active[jobID]
	if !ok {
		return
	}
	res.JobID = jobID
	tr.result = res
	delete(t.active, jobID)
	t.results.Add(jobID, res)
	close(tr.done)
}

// status returns the current result of a job without blocking.
func (t *tracker) status(jobID string) (JobResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.active[jobID]; ok {
		return tr.result, true
	}
	if v, ok := t.results.Get(jobID); ok {
		return v.(JobResult), true
	}
	return JobResult{}, false
}

func (t *tracker) wait(ctx context.Context, jobID string) (JobResult, error) {
	t.mu.Lock()
	tr, ok := t.active[jobID]
	t.mu.Unlock()
	if !ok {
		if v, ok := t.results.Get(jobID); ok {
			return v.(JobResult), nil
		}
		return JobResult{}, fmt.Errorf("wait for %s: %w", jobID, ErrUnknownJob)
	}

	select {
	case <-tr.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return tr.result, nil
	case <-ctx.Done():
		return JobResult{}, ctx.Err()
	}
}

func (t *tracker) close() {
	t.sub.Close()
	<-t.stopped
}
