package syncmgr

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelClosed is returned by channel operations after Close, or
	// once the peer went away.
	ErrChannelClosed = errors.New("channel closed")

	// ErrRemoteExists is returned when adding a remote that is already running.
	ErrRemoteExists = errors.New("remote already exists")

	// ErrManagerClosed is returned after Shutdown.
	ErrManagerClosed = errors.New("sync manager shut down")
)

// UnknownChannelTypeError is returned for a channel type with no factory.
type UnknownChannelTypeError struct {
	Type string
}

// Error implements the error interface.
func (e *UnknownChannelTypeError) Error() string {
	return fmt.Sprintf("unknown channel type %q", e.Type)
}

// RemoteError carries a processing failure reported by the peer in an ack.
type RemoteError struct {
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}

// IsRemoteError reports whether err wraps a RemoteError.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
