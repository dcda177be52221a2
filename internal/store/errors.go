package store

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound is returned when a document id or slug is unknown.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentExists is returned when creating a document whose id is taken.
	ErrDocumentExists = errors.New("document already exists")

	// ErrRemoteNotFound is returned for an unknown remote id.
	ErrRemoteNotFound = errors.New("remote not found")
)

// StorageError wraps an I/O failure from the database. It is the retryable
// error kind: callers decide whether to retry, it is never dropped.
type StorageError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err wraps a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IndexConflictError reports a write whose index is not the next free index
// of its log. It means two writers raced on one log, which the queue forbids.
type IndexConflictError struct {
	Log      string
	Expected int64
	Got      int64
}

// Error implements the error interface.
func (e *IndexConflictError) Error() string {
	return fmt.Sprintf("index conflict on %s: expected index %d, got %d", e.Log, e.Expected, e.Got)
}

func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
