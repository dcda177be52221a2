// Package events is the in-process publish/subscribe bus that decouples the
// job queue, the executor and the sync manager.
//
// Publishing never blocks. Each subscriber owns an unbounded FIFO mailbox,
// so events published in order by one goroutine reach every subscriber in
// that order. Nothing is promised across publishers.
package events

import (
	"fmt"

	"github.com/roach88/reactor/internal/ir"
)

// Type names an event kind.
type Type string

const (
	JobAdded          Type = "jobAdded"
	JobStarted        Type = "jobStarted"
	JobCompleted      Type = "jobCompleted"
	JobFailed         Type = "jobFailed"
	QueueRemoved      Type = "queueRemoved"
	OperationsWritten Type = "operationsWritten"
	DocumentDeleted   Type = "documentDeleted"
)

// Event is one notification. Fields not relevant to the type are zero.
type Event struct {
	Type  Type
	JobID string
	Queue ir.LogKey

	// Err is set on JobFailed.
	Err error

	// Ordinals are the index ordinals written by a completed job or
	// reported by OperationsWritten.
	Ordinals []int64
}

func (e Event) String() string {
	if e.JobID != "" {
		return fmt.Sprintf("%s job=%s queue=%s", e.Type, e.JobID, e.Queue)
	}
	return fmt.Sprintf("%s queue=%s", e.Type, e.Queue)
}
