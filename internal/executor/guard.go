package executor

import "sync/atomic"

// commitGuard decides, once, between a job's commit and its timeout. A
// job that entered its commit is waited for; a job abandoned first never
// commits.
type commitGuard struct {
	state atomic.Int32
}

const (
	guardRunning int32 = iota
	guardCommitting
	guardCommitted
	guardAbandoned
)

// enter is called before the first durable write.
func (g *commitGuard) enter() bool {
	return g.state.CompareAndSwap(guardRunning, guardCommitting)
}

// done records the outcome of a commit attempt. A failed attempt returns
// the guard to running so a retry or a timeout may proceed.
func (g *commitGuard) done(committed bool) {
	if committed {
		g.state.Store(guardCommitted)
		return
	}
	g.state.CompareAndSwap(guardCommitting, guardRunning)
}

// abandon is called by the timeout. It fails once a commit has started.
func (g *commitGuard) abandon() bool {
	return g.state.CompareAndSwap(guardRunning, guardAbandoned)
}
