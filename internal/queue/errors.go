package queue

import (
	"errors"
	"fmt"

	"github.com/roach88/reactor/internal/ir"
)

var (
	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("job queue closed")

	// ErrUnknownJob is returned when completing a job that is not running.
	ErrUnknownJob = errors.New("unknown or not running job")

	// ErrQueueRemoved is the failure reported for jobs dropped by RemoveQueue.
	ErrQueueRemoved = errors.New("queue removed")
)

// QueueDeletedError rejects a submission for a deleted document.
type QueueDeletedError struct {
	DocumentID string
	Key        ir.LogKey
}

// Error implements the error interface.
func (e *QueueDeletedError) Error() string {
	return fmt.Sprintf("queue %s is deleted: document %s was deleted", e.Key, e.DocumentID)
}

// DependencyError fails a job whose creator dependency failed.
type DependencyError struct {
	JobID     string
	DependsOn string
	Err       error
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("job %s: dependency %s failed: %v", e.JobID, e.DependsOn, e.Err)
}

// Unwrap returns the creator's failure.
func (e *DependencyError) Unwrap() error {
	return e.Err
}

// IsQueueDeletedError reports whether err wraps a QueueDeletedError.
func IsQueueDeletedError(err error) bool {
	var qe *QueueDeletedError
	return errors.As(err, &qe)
}

// IsDependencyError reports whether err wraps a DependencyError.
func IsDependencyError(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}
