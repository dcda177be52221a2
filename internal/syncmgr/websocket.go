package syncmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsMessageEnvelope = "envelope"
	wsMessageAck      = "ack"

	wsWriteTimeout = 10 * time.Second
)

type wsMessage struct {
	Type     string    `json:"type"`
	ID       int64     `json:"id"`
	Envelope *Envelope `json:"envelope,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// WebsocketChannel exchanges envelopes as JSON text messages over one
// websocket connection. Either side may send; every envelope is answered
// by an ack carrying the same id.
type WebsocketChannel struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	seq     atomic.Int64

	mu       sync.Mutex
	waiters  map[int64]chan error
	inflight []int64

	inbox     chan wsMessage
	closed    chan struct{}
	closeOnce sync.Once
}

// NewWebsocketChannel wraps an established connection and starts reading.
func NewWebsocketChannel(conn *websocket.Conn) *WebsocketChannel {
	c := &WebsocketChannel{
		conn:    conn,
		waiters: map[int64]chan error{},
		inbox:   make(chan wsMessage, 16),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// DialWebsocket connects to a peer's sync endpoint.
func DialWebsocket(ctx context.Context, rawURL string, header http.Header) (*WebsocketChannel, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", rawURL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return NewWebsocketChannel(conn), nil
}

func websocketFactory(ctx context.Context, cfg ChannelConfig, remote RemoteInfo) (Channel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("websocket channel for %s: url is required", remote.ID)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("websocket channel for %s: %w", remote.ID, err)
	}
	q := u.Query()
	if q.Get("collection") == "" {
		q.Set("collection", remote.CollectionID)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if token := cfg.Params["token"]; token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return DialWebsocket(ctx, u.String(), header)
}

func (c *WebsocketChannel) readLoop() {
	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.shutdown(err)
			return
		}
		switch msg.Type {
		case wsMessageAck:
			c.mu.Lock()
			w, ok := c.waiters[msg.ID]
			delete(c.waiters, msg.ID)
			c.mu.Unlock()
			if !ok {
				slog.Warn("websocket: ack for unknown envelope", "id", msg.ID)
				continue
			}
			if msg.Error != "" {
				w <- &RemoteError{Message: msg.Error}
			} else {
				w <- nil
			}
		case wsMessageEnvelope:
			if msg.Envelope == nil {
				slog.Warn("websocket: envelope message without envelope", "id", msg.ID)
				continue
			}
			select {
			case c.inbox <- msg:
			case <-c.closed:
				return
			}
		default:
			slog.Warn("websocket: unknown message type", "type", msg.Type)
		}
	}
}

func (c *WebsocketChannel) write(msg wsMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Send implements Channel.
func (c *WebsocketChannel) Send(ctx context.Context, env Envelope) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	id := c.seq.Add(1)
	wait := make(chan error, 1)
	c.mu.Lock()
	c.waiters[id] = wait
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
	}()

	if err := c.write(wsMessage{Type: wsMessageEnvelope, ID: id, Envelope: &env}); err != nil {
		return err
	}
	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrChannelClosed
	}
}

// Receive implements Channel.
func (c *WebsocketChannel) Receive(ctx context.Context) (Envelope, error) {
	select {
	case msg := <-c.inbox:
		c.mu.Lock()
		c.inflight = append(c.inflight, msg.ID)
		c.mu.Unlock()
		return *msg.Envelope, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-c.closed:
		return Envelope{}, ErrChannelClosed
	}
}

// Ack implements Acknowledger.
func (c *WebsocketChannel) Ack(_ context.Context, _ int64, procErr error) error {
	c.mu.Lock()
	if len(c.inflight) == 0 {
		c.mu.Unlock()
		return nil
	}
	id := c.inflight[0]
	c.inflight = c.inflight[1:]
	c.mu.Unlock()

	msg := wsMessage{Type: wsMessageAck, ID: id}
	if procErr != nil {
		msg.Error = procErr.Error()
	}
	return c.write(msg)
}

// Close implements Channel.
func (c *WebsocketChannel) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.shutdown(nil)
	return nil
}

func (c *WebsocketChannel) shutdown(cause error) {
	c.closeOnce.Do(func() {
		if cause != nil && !websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(cause, websocket.ErrCloseSent) {
			slog.Debug("websocket: connection lost", "error", cause)
		}
		close(c.closed)
		c.conn.Close()
	})
}
