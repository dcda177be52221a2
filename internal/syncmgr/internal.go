package syncmgr

import (
	"context"
	"sync"
)

type delivery struct {
	env Envelope
	ack chan error
}

// InternalChannel is one end of an in-process channel pair. Send blocks
// until the other end acknowledged the envelope. Closing either end closes
// the pair.
type InternalChannel struct {
	in   chan delivery
	peer *InternalChannel

	mu       sync.Mutex
	inflight []delivery

	closed    chan struct{}
	closeOnce sync.Once
}

// NewInternalPair returns two connected channel ends.
func NewInternalPair() (*InternalChannel, *InternalChannel) {
	a := &InternalChannel{in: make(chan delivery), closed: make(chan struct{})}
	b := &InternalChannel{in: make(chan delivery), closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// Send implements Channel.
func (c *InternalChannel) Send(ctx context.Context, env Envelope) error {
	d := delivery{env: env, ack: make(chan error, 1)}
	select {
	case c.peer.in <- d:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrChannelClosed
	case <-c.peer.closed:
		return ErrChannelClosed
	}

	select {
	case err := <-d.ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrChannelClosed
	case <-c.peer.closed:
		return ErrChannelClosed
	}
}

// Receive implements Channel.
func (c *InternalChannel) Receive(ctx context.Context) (Envelope, error) {
	select {
	case d := <-c.in:
		c.mu.Lock()
		c.inflight = append(c.inflight, d)
		c.mu.Unlock()
		return d.env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-c.closed:
		return Envelope{}, ErrChannelClosed
	case <-c.peer.closed:
		return Envelope{}, ErrChannelClosed
	}
}

// Ack implements Acknowledger. Acks answer received envelopes in order.
func (c *InternalChannel) Ack(_ context.Context, _ int64, procErr error) error {
	c.mu.Lock()
	if len(c.inflight) == 0 {
		c.mu.Unlock()
		return nil
	}
	d := c.inflight[0]
	c.inflight = c.inflight[1:]
	c.mu.Unlock()

	if procErr != nil {
		procErr = &RemoteError{Message: procErr.Error()}
	}
	d.ack <- procErr
	return nil
}

// Close implements Channel.
func (c *InternalChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
