package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/reactor/internal/store"
)

var (
	// ErrJobTimeout is reported for a job that exceeded the per-job timeout.
	ErrJobTimeout = errors.New("job timed out")

	// errAbandoned aborts a job whose worker already reported it failed.
	errAbandoned = errors.New("job abandoned")
)

// JobError is the typed failure published on jobFailed.
type JobError struct {
	JobID string
	Err   error
}

// Error implements the error interface.
func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %v", e.JobID, e.Err)
}

// Unwrap returns the underlying error.
func (e *JobError) Unwrap() error {
	return e.Err
}

// RejectedError reports an action the reducer refused.
type RejectedError struct {
	ActionID string
	Type     string
	Err      error
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("action %s (%s) rejected: %v", e.ActionID, e.Type, e.Err)
}

// Unwrap returns the reducer's error.
func (e *RejectedError) Unwrap() error {
	return e.Err
}

// IsRejected reports whether err wraps a RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// IsRetryable reports whether a job failing with err may be attempted
// again. Only storage I/O failures are retried.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return store.IsStorageError(err)
}
