package syncmgr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Fetcher pulls the peer's operations after cursor.
type Fetcher func(ctx context.Context, after int64, limit int) (Envelope, error)

// Pusher delivers an envelope to the peer and returns once it was applied.
type Pusher func(ctx context.Context, env Envelope) error

// PollChannel pulls envelopes on a schedule and pushes on Send. The fetch
// cursor only moves forward when an envelope was acknowledged without
// error, so a failed batch is fetched again.
type PollChannel struct {
	sched *gocron.Scheduler
	fetch Fetcher
	push  Pusher
	limit int

	mu       sync.Mutex
	after    int64
	inflight bool

	inbox     chan Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

// NewPollChannel starts polling every interval, beginning after cursor.
func NewPollChannel(interval time.Duration, after int64, limit int, fetch Fetcher, push Pusher) (*PollChannel, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("poll channel: interval must be positive")
	}
	c := &PollChannel{
		sched:  gocron.NewScheduler(time.UTC),
		fetch:  fetch,
		push:   push,
		limit:  limit,
		after:  after,
		inbox:  make(chan Envelope, 1),
		closed: make(chan struct{}),
	}
	c.sched.SingletonModeAll()
	if _, err := c.sched.Every(interval).Do(c.poll); err != nil {
		return nil, fmt.Errorf("poll channel: schedule: %w", err)
	}
	c.sched.StartAsync()
	return c, nil
}

func (c *PollChannel) poll() {
	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return
	}
	after := c.after
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	env, err := c.fetch(ctx, after, c.limit)
	if err != nil {
		slog.Warn("poll channel: fetch failed", "after", after, "error", err)
		return
	}
	if len(env.Operations) == 0 {
		if env.Cursor > after {
			c.mu.Lock()
			c.after = env.Cursor
			c.mu.Unlock()
		}
		return
	}

	c.mu.Lock()
	c.inflight = true
	c.mu.Unlock()
	select {
	case c.inbox <- env:
	case <-c.closed:
	}
}

// Send implements Channel.
func (c *PollChannel) Send(ctx context.Context, env Envelope) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}
	return c.push(ctx, env)
}

// Receive implements Channel.
func (c *PollChannel) Receive(ctx context.Context) (Envelope, error) {
	select {
	case env := <-c.inbox:
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-c.closed:
		return Envelope{}, ErrChannelClosed
	}
}

// Ack implements Acknowledger.
func (c *PollChannel) Ack(_ context.Context, cursor int64, procErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight = false
	if procErr == nil && cursor > c.after {
		c.after = cursor
	}
	return nil
}

// Cursor returns the last acknowledged peer ordinal.
func (c *PollChannel) Cursor() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.after
}

// Close implements Channel.
func (c *PollChannel) Close() error {
	c.closeOnce.Do(func() {
		c.sched.Stop()
		close(c.closed)
	})
	return nil
}

// HTTPFetcher pulls from a peer's admin API:
// GET {base}/collections/{collection}/operations?after=N&limit=M.
func HTTPFetcher(client *http.Client, base, collection, remoteID string) Fetcher {
	return func(ctx context.Context, after int64, limit int) (Envelope, error) {
		q := url.Values{}
		q.Set("after", strconv.FormatInt(after, 10))
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		if remoteID != "" {
			q.Set("remote", remoteID)
		}
		u := fmt.Sprintf("%s/collections/%s/operations?%s", strings.TrimRight(base, "/"), url.PathEscape(collection), q.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return Envelope{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return Envelope{}, fmt.Errorf("fetch %s: %w", u, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return Envelope{}, fmt.Errorf("fetch %s: %s: %s", u, resp.Status, bytes.TrimSpace(body))
		}
		var env Envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return Envelope{}, fmt.Errorf("decode envelope: %w", err)
		}
		return env, nil
	}
}

// HTTPPusher posts to a peer's admin API:
// POST {base}/collections/{collection}/envelopes?remote=ID.
func HTTPPusher(client *http.Client, base, collection, remoteID string) Pusher {
	return func(ctx context.Context, env Envelope) error {
		body, err := json.Marshal(env)
		if err != nil {
			return err
		}
		q := url.Values{}
		if remoteID != "" {
			q.Set("remote", remoteID)
		}
		u := fmt.Sprintf("%s/collections/%s/envelopes?%s", strings.TrimRight(base, "/"), url.PathEscape(collection), q.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("push %s: %w", u, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &RemoteError{Message: fmt.Sprintf("%s: %s", resp.Status, bytes.TrimSpace(msg))}
		}
		return nil
	}
}

func pollFactory(interval time.Duration, limit int) ChannelFactory {
	return func(_ context.Context, cfg ChannelConfig, remote RemoteInfo) (Channel, error) {
		if cfg.URL == "" {
			return nil, fmt.Errorf("poll channel for %s: url is required", remote.ID)
		}
		every := interval
		if v := cfg.Params["interval"]; v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("poll channel for %s: interval: %w", remote.ID, err)
			}
			every = d
		}
		self := cfg.Params["self"]
		client := &http.Client{Timeout: 30 * time.Second}
		return NewPollChannel(every, remote.InboxCursor, limit,
			HTTPFetcher(client, cfg.URL, remote.CollectionID, self),
			HTTPPusher(client, cfg.URL, remote.CollectionID, self))
	}
}
