package syncmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/store"
)

// outbound drains the collection after the outbox cursor to the remote,
// waking on writes and on the poll interval.
func (m *Manager) outbound(ctx context.Context, r *remote) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := m.flush(ctx, r); err != nil {
			switch {
			case ctx.Err() != nil:
				return
			case errors.Is(err, ErrChannelClosed):
				slog.Info("remote channel closed", "remote", r.id)
				m.drop(r)
				return
			default:
				slog.Warn("outbound sync failed", "remote", r.id, "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		case <-ticker.C:
		}
	}
}

// flush sends every page after the outbox cursor.
func (m *Manager) flush(ctx context.Context, r *remote) error {
	rec, err := m.store.GetRemote(ctx, r.id)
	if err != nil {
		return err
	}
	cursor := rec.OutboxCursor

	for {
		env, more, err := m.Export(ctx, r.collection, r.filter, r.since, cursor, m.cfg.BatchSize)
		if err != nil {
			return err
		}
		if env.Cursor == cursor {
			return nil
		}
		if len(env.Operations) > 0 {
			if err := m.send(ctx, r, env); err != nil {
				return err
			}
		}
		if err := m.store.AdvanceOutboxCursor(ctx, r.id, env.Cursor); err != nil {
			return err
		}
		slog.Debug("outbound sync", "remote", r.id, "operations", len(env.Operations), "cursor", env.Cursor)
		cursor = env.Cursor
		if !more {
			return nil
		}
	}
}

func (m *Manager) send(ctx context.Context, r *remote, env Envelope) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(m.cfg.SendRetries)), ctx)
	err := backoff.Retry(func() error {
		err := r.ch.Send(ctx, env)
		if errors.Is(err, ErrChannelClosed) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if err != nil {
		return fmt.Errorf("send to %s: %w", r.id, err)
	}
	envelopesSent.WithLabelValues(r.id).Inc()
	operationsSent.WithLabelValues(r.id).Add(float64(len(env.Operations)))
	return nil
}

// Export builds the envelope of collection operations after cursor that
// pass filter, with at most limit index entries, and reports whether more
// remain. A relationship attaching a document brings along the target's
// history up to cursor, which the collection query alone cannot see.
func (m *Manager) Export(ctx context.Context, collection string, filter Filter, since, cursor int64, limit int) (Envelope, bool, error) {
	page, err := m.store.CollectionOperations(ctx, store.CollectionQuery{
		CollectionID:   collection,
		Branch:         filter.Branch,
		SinceTimestamp: since,
	}, store.Paging{Cursor: cursor, Limit: limit})
	if err != nil {
		return Envelope{}, false, err
	}

	env := Envelope{CollectionID: collection, Operations: []OperationEnvelope{}, Cursor: page.NextCursor}
	for _, e := range page.Entries {
		if !filter.Match(e.Key()) {
			continue
		}
		if e.Scope == ir.ScopeDocument && e.Operation.Action.Type == ir.ActionAddRelationship && e.Operation.Error == "" {
			target, _ := e.Operation.Action.Input.GetString("target_id")
			related, err := m.history(ctx, target, e.Branch, cursor, filter)
			if err != nil {
				return Envelope{}, false, err
			}
			env.Operations = append(env.Operations, related...)
		}
		env.Operations = append(env.Operations, fromEntry(e))
	}
	return env, page.HasMore, nil
}

// history returns the operations of documentID up to and including ordinal
// upTo.
func (m *Manager) history(ctx context.Context, documentID, branch string, upTo int64, filter Filter) ([]OperationEnvelope, error) {
	var out []OperationEnvelope
	var cursor int64
	for {
		page, err := m.store.Operations(ctx, store.OperationQuery{DocumentID: documentID, Branch: branch}, store.Paging{Cursor: cursor, Limit: m.cfg.BatchSize})
		if err != nil {
			return nil, err
		}
		for _, e := range page.Entries {
			if e.Ordinal > upTo {
				return out, nil
			}
			if filter.Match(e.Key()) {
				out = append(out, fromEntry(e))
			}
		}
		if !page.HasMore {
			return out, nil
		}
		cursor = page.NextCursor
	}
}
