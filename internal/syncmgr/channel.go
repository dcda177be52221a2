package syncmgr

import (
	"context"
)

// Channel carries envelopes to and from one peer.
type Channel interface {
	// Send delivers env and returns once the peer acknowledged it. An
	// error means the envelope may not have been applied.
	Send(ctx context.Context, env Envelope) error

	// Receive blocks until the peer sends an envelope. It returns
	// ErrChannelClosed once the channel is closed.
	Receive(ctx context.Context) (Envelope, error)

	Close() error
}

// Acknowledger is implemented by channels whose peer waits for the result
// of processing an envelope. procErr is nil on success.
type Acknowledger interface {
	Ack(ctx context.Context, cursor int64, procErr error) error
}

// ChannelConfig selects and parameterizes a channel implementation.
type ChannelConfig struct {
	Type   string            `json:"type" mapstructure:"type"`
	URL    string            `json:"url,omitempty" mapstructure:"url"`
	Params map[string]string `json:"params,omitempty" mapstructure:"params"`
}

// ChannelFactory opens a channel for remote.
type ChannelFactory func(ctx context.Context, cfg ChannelConfig, remote RemoteInfo) (Channel, error)

// Channel types with a built-in factory.
const (
	ChannelWebsocket = "websocket"
	ChannelPoll      = "poll"

	// ChannelAccepted marks remotes whose channel is opened by the peer,
	// such as an accepted websocket. They have no factory.
	ChannelAccepted = "accepted"
)
