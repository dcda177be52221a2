package syncmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
)

// inbound applies envelopes received from the remote, one at a time.
func (m *Manager) inbound(ctx context.Context, r *remote) {
	for {
		env, err := r.ch.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, ErrChannelClosed) {
				slog.Warn("inbound sync: receive failed", "remote", r.id, "error", err)
			}
			slog.Info("remote channel closed", "remote", r.id)
			m.drop(r)
			return
		}

		procErr := m.Ingest(ctx, r.id, r.filter, env)
		if procErr == nil {
			envelopesReceived.WithLabelValues(r.id, "applied").Inc()
			if env.Cursor > 0 {
				if err := m.store.AdvanceInboxCursor(ctx, r.id, env.Cursor); err != nil {
					procErr = err
				}
			}
		}
		if procErr != nil {
			envelopesReceived.WithLabelValues(r.id, "failed").Inc()
			slog.Error("inbound sync failed", "remote", r.id, "cursor", env.Cursor, "error", procErr)
		}
		if ack, ok := r.ch.(Acknowledger); ok {
			if err := ack.Ack(ctx, env.Cursor, procErr); err != nil {
				slog.Warn("inbound sync: ack failed", "remote", r.id, "error", err)
			}
		}
	}
}

// Ingest submits the operations of env as load jobs, one per log, and
// waits for all of them. Operations that do not pass filter are ignored.
func (m *Manager) Ingest(ctx context.Context, source string, filter Filter, env Envelope) error {
	ops := env.Operations[:0:0]
	for _, o := range env.Operations {
		if filter.Match(o.Key()) {
			ops = append(ops, o)
		}
	}

	var jobs []string
	var result *multierror.Error
	for _, g := range groupOperations(ops) {
		id, err := m.loader.Load(ctx, g.key, g.ops, source)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("load %s: %w", g.key, err))
			break
		}
		jobs = append(jobs, id)
	}
	for _, id := range jobs {
		if err := m.loader.Wait(ctx, id); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
