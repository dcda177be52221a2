// Package syncmgr exchanges operations with remote peers.
//
// Each remote is bound to a collection and a channel. The outbound side is
// driven by a durable outbox cursor into the operation index: everything
// in the collection after the cursor that passes the remote's filter is
// sent, and the cursor advances only once the peer acknowledged it. The
// inbound side submits received operations as load jobs and advances the
// inbox cursor only after every job of an envelope completed.
package syncmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/reactor/internal/events"
	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/store"
)

// Store is the storage surface the sync manager reads and records cursors in.
type Store interface {
	UpsertRemote(ctx context.Context, r store.RemoteRecord) (store.RemoteRecord, error)
	GetRemote(ctx context.Context, id string) (store.RemoteRecord, error)
	ListRemotes(ctx context.Context) ([]store.RemoteRecord, error)
	DeleteRemote(ctx context.Context, id string) error
	AdvanceOutboxCursor(ctx context.Context, id string, cursor int64) error
	AdvanceInboxCursor(ctx context.Context, id string, cursor int64) error
	CollectionOperations(ctx context.Context, q store.CollectionQuery, p store.Paging, opts ...store.ReadOption) (store.Page, error)
	Operations(ctx context.Context, q store.OperationQuery, p store.Paging, opts ...store.ReadOption) (store.Page, error)
}

// Loader submits foreign operations as load jobs.
type Loader interface {
	Load(ctx context.Context, key ir.LogKey, ops []ir.Operation, source string) (string, error)
	Wait(ctx context.Context, jobID string) error
}

// Config tunes the manager.
type Config struct {
	// BatchSize bounds the operations read per outbound envelope.
	BatchSize int
	// PollInterval is how often outbound re-checks the index without a
	// write notification, and the default interval of poll channels.
	PollInterval time.Duration
	// SendRetries bounds the attempts to deliver one envelope before the
	// outbound loop backs off until its next wake-up.
	SendRetries int
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = store.DefaultPageSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.SendRetries <= 0 {
		c.SendRetries = 3
	}
}

// Backfill bounds the history sent to a new remote.
type Backfill struct {
	// SinceTimestamp skips operations written before it (unix ms).
	SinceTimestamp int64 `json:"since_timestamp,omitempty" mapstructure:"since_timestamp"`
}

// Spec describes a remote to add.
type Spec struct {
	RemoteID     string
	CollectionID string
	Channel      ChannelConfig
	Filter       Filter
	Backfill     Backfill
}

// RemoteInfo is the visible state of a remote.
type RemoteInfo struct {
	ID           string        `json:"id"`
	CollectionID string        `json:"collection_id"`
	Channel      ChannelConfig `json:"channel"`
	Filter       Filter        `json:"filter"`
	Backfill     Backfill      `json:"backfill"`
	OutboxCursor int64         `json:"outbox_cursor"`
	InboxCursor  int64         `json:"inbox_cursor"`
	Connected    bool          `json:"connected"`
}

type remote struct {
	id         string
	collection string
	filter     Filter
	since      int64
	ch         Channel

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *remote) poke() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Manager owns the running remotes.
type Manager struct {
	store  Store
	loader Loader
	bus    *events.Bus
	cfg    Config

	mu        sync.Mutex
	remotes   map[string]*remote
	factories map[string]ChannelFactory
	closed    bool

	sub      *events.Subscription
	dispatch chan struct{}
}

// New returns a manager with the websocket and poll channel types
// registered.
func New(st Store, loader Loader, bus *events.Bus, cfg Config) *Manager {
	cfg.defaults()
	m := &Manager{
		store:     st,
		loader:    loader,
		bus:       bus,
		cfg:       cfg,
		remotes:   map[string]*remote{},
		factories: map[string]ChannelFactory{},
		dispatch:  make(chan struct{}),
	}
	m.factories[ChannelWebsocket] = websocketFactory
	m.factories[ChannelPoll] = pollFactory(cfg.PollInterval, cfg.BatchSize)

	if bus != nil {
		m.sub = bus.Subscribe(events.OperationsWritten)
		go m.watch()
	} else {
		close(m.dispatch)
	}
	return m
}

// watch wakes every outbound loop when operations are written.
func (m *Manager) watch() {
	defer close(m.dispatch)
	for range m.sub.C() {
		m.mu.Lock()
		for _, r := range m.remotes {
			r.poke()
		}
		m.mu.Unlock()
	}
}

// RegisterChannelType installs a factory for a channel type.
func (m *Manager) RegisterChannelType(name string, f ChannelFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[name] = f
}

// Add records a remote and opens its channel through the factory of its
// type. Re-adding a remote known from a previous run keeps its cursors, so
// only history newer than the outbox cursor is sent.
func (m *Manager) Add(ctx context.Context, spec Spec) (RemoteInfo, error) {
	m.mu.Lock()
	f, ok := m.factories[spec.Channel.Type]
	m.mu.Unlock()
	if !ok {
		return RemoteInfo{}, &UnknownChannelTypeError{Type: spec.Channel.Type}
	}

	rec, err := m.record(ctx, spec)
	if err != nil {
		return RemoteInfo{}, err
	}
	ch, err := f(ctx, spec.Channel, infoFromRecord(rec, spec))
	if err != nil {
		return RemoteInfo{}, fmt.Errorf("open channel for remote %s: %w", spec.RemoteID, err)
	}
	info, err := m.start(spec, rec, ch)
	if err != nil {
		ch.Close()
		return RemoteInfo{}, err
	}
	return info, nil
}

// AddChannel records a remote and runs it over an already open channel,
// such as one accepted by a server.
func (m *Manager) AddChannel(ctx context.Context, spec Spec, ch Channel) (RemoteInfo, error) {
	if spec.Channel.Type == "" {
		spec.Channel.Type = ChannelAccepted
	}
	rec, err := m.record(ctx, spec)
	if err != nil {
		return RemoteInfo{}, err
	}
	return m.start(spec, rec, ch)
}

func (m *Manager) record(ctx context.Context, spec Spec) (store.RemoteRecord, error) {
	if spec.RemoteID == "" {
		return store.RemoteRecord{}, &ir.ValidationError{Field: "remote_id", Message: "remote id is required"}
	}
	if spec.CollectionID == "" {
		return store.RemoteRecord{}, &ir.ValidationError{Field: "collection_id", Message: "collection id is required"}
	}

	m.mu.Lock()
	closed := m.closed
	_, running := m.remotes[spec.RemoteID]
	m.mu.Unlock()
	if closed {
		return store.RemoteRecord{}, ErrManagerClosed
	}
	if running {
		return store.RemoteRecord{}, fmt.Errorf("add remote %s: %w", spec.RemoteID, ErrRemoteExists)
	}

	chJSON, err := json.Marshal(spec.Channel)
	if err != nil {
		return store.RemoteRecord{}, fmt.Errorf("encode channel config: %w", err)
	}
	filterJSON, err := json.Marshal(spec.Filter)
	if err != nil {
		return store.RemoteRecord{}, fmt.Errorf("encode filter: %w", err)
	}
	return m.store.UpsertRemote(ctx, store.RemoteRecord{
		ID:             spec.RemoteID,
		CollectionID:   spec.CollectionID,
		Channel:        string(chJSON),
		Filter:         string(filterJSON),
		SinceTimestamp: spec.Backfill.SinceTimestamp,
	})
}

func (m *Manager) start(spec Spec, rec store.RemoteRecord, ch Channel) (RemoteInfo, error) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &remote{
		id:         spec.RemoteID,
		collection: spec.CollectionID,
		filter:     spec.Filter,
		since:      spec.Backfill.SinceTimestamp,
		ch:         ch,
		wake:       make(chan struct{}, 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return RemoteInfo{}, ErrManagerClosed
	}
	if _, ok := m.remotes[r.id]; ok {
		m.mu.Unlock()
		cancel()
		return RemoteInfo{}, fmt.Errorf("add remote %s: %w", r.id, ErrRemoteExists)
	}
	m.remotes[r.id] = r
	m.mu.Unlock()
	activeRemotes.Inc()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.outbound(ctx, r)
	}()
	go func() {
		defer wg.Done()
		m.inbound(ctx, r)
	}()
	go func() {
		wg.Wait()
		close(r.done)
	}()

	slog.Info("remote added",
		"remote", r.id,
		"collection", r.collection,
		"channel", spec.Channel.Type,
		"outbox_cursor", rec.OutboxCursor,
		"inbox_cursor", rec.InboxCursor)

	info := infoFromRecord(rec, spec)
	info.Connected = true
	return info, nil
}

// drop stops a remote whose channel went away. Its record and cursors stay.
func (m *Manager) drop(r *remote) {
	m.mu.Lock()
	if cur, ok := m.remotes[r.id]; ok && cur == r {
		delete(m.remotes, r.id)
		activeRemotes.Dec()
	}
	m.mu.Unlock()
	r.cancel()
	if err := r.ch.Close(); err != nil {
		slog.Warn("close channel", "remote", r.id, "error", err)
	}
}

// Remove stops a remote and deletes its record and cursors.
func (m *Manager) Remove(ctx context.Context, remoteID string) error {
	m.mu.Lock()
	r, ok := m.remotes[remoteID]
	m.mu.Unlock()
	if ok {
		m.drop(r)
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := m.store.DeleteRemote(ctx, remoteID); err != nil {
		return fmt.Errorf("remove remote %s: %w", remoteID, err)
	}
	slog.Info("remote removed", "remote", remoteID)
	return nil
}

// Remotes lists every recorded remote with its cursors.
func (m *Manager) Remotes(ctx context.Context) ([]RemoteInfo, error) {
	recs, err := m.store.ListRemotes(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RemoteInfo, 0, len(recs))
	for _, rec := range recs {
		info, err := decodeRecord(rec)
		if err != nil {
			return nil, err
		}
		_, info.Connected = m.remotes[rec.ID]
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Resume reopens every recorded remote whose channel type has a factory.
// Accepted remotes wait for their peer to reconnect.
func (m *Manager) Resume(ctx context.Context) error {
	recs, err := m.store.ListRemotes(ctx)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, rec := range recs {
		info, err := decodeRecord(rec)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if info.Channel.Type == ChannelAccepted {
			continue
		}
		m.mu.Lock()
		_, running := m.remotes[rec.ID]
		m.mu.Unlock()
		if running {
			continue
		}
		_, err = m.Add(ctx, Spec{
			RemoteID:     info.ID,
			CollectionID: info.CollectionID,
			Channel:      info.Channel,
			Filter:       info.Filter,
			Backfill:     info.Backfill,
		})
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("resume remote %s: %w", rec.ID, err))
		}
	}
	return result.ErrorOrNil()
}

// Shutdown stops every remote and closes its channel. Records and cursors
// are kept for the next run.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	remotes := make([]*remote, 0, len(m.remotes))
	for _, r := range m.remotes {
		remotes = append(remotes, r)
	}
	m.remotes = map[string]*remote{}
	m.mu.Unlock()

	var result *multierror.Error
	for _, r := range remotes {
		r.cancel()
		activeRemotes.Dec()
		if err := r.ch.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close channel of %s: %w", r.id, err))
		}
	}
	for _, r := range remotes {
		select {
		case <-r.done:
		case <-ctx.Done():
			result = multierror.Append(result, fmt.Errorf("wait for remote %s: %w", r.id, ctx.Err()))
		}
	}
	if m.sub != nil {
		m.sub.Close()
		<-m.dispatch
	}
	slog.Info("sync manager stopped", "remotes", len(remotes))
	return result.ErrorOrNil()
}

func infoFromRecord(rec store.RemoteRecord, spec Spec) RemoteInfo {
	return RemoteInfo{
		ID:           rec.ID,
		CollectionID: rec.CollectionID,
		Channel:      spec.Channel,
		Filter:       spec.Filter,
		Backfill:     Backfill{SinceTimestamp: rec.SinceTimestamp},
		OutboxCursor: rec.OutboxCursor,
		InboxCursor:  rec.InboxCursor,
	}
}

func decodeRecord(rec store.RemoteRecord) (RemoteInfo, error) {
	info := RemoteInfo{
		ID:           rec.ID,
		CollectionID: rec.CollectionID,
		Backfill:     Backfill{SinceTimestamp: rec.SinceTimestamp},
		OutboxCursor: rec.OutboxCursor,
		InboxCursor:  rec.InboxCursor,
	}
	if rec.Channel != "" {
		if err := json.Unmarshal([]byte(rec.Channel), &info.Channel); err != nil {
			return RemoteInfo{}, fmt.Errorf("decode channel of %s: %w", rec.ID, err)
		}
	}
	if rec.Filter != "" {
		if err := json.Unmarshal([]byte(rec.Filter), &info.Filter); err != nil {
			return RemoteInfo{}, fmt.Errorf("decode filter of %s: %w", rec.ID, err)
		}
	}
	return info, nil
}

