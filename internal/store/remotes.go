package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RemoteRecord is the durable state of one sync peer. Channel and Filter are
// opaque JSON owned by the sync manager. SinceTimestamp bounds backfill to
// operations written at or after it.
type RemoteRecord struct {
	ID             string
	CollectionID   string
	Channel        string
	Filter         string
	SinceTimestamp int64
	OutboxCursor   int64
	InboxCursor    int64
	CreatedAt      int64
}

// UpsertRemote inserts a remote or updates its configuration. Existing
// cursors are kept, so re-adding a remote after a restart resumes where it
// left off.
func (s *Store) UpsertRemote(ctx context.Context, r RemoteRecord) (RemoteRecord, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO remotes (id, collection_id, channel, filter, since_timestamp, outbox_cursor, inbox_cursor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			collection_id = excluded.collection_id,
			channel = excluded.channel,
			filter = excluded.filter,
			since_timestamp = excluded.since_timestamp
	`, r.ID, r.CollectionID, r.Channel, r.Filter, r.SinceTimestamp, r.OutboxCursor, r.InboxCursor, time.Now().UnixMilli())
	if err != nil {
		return RemoteRecord{}, wrapStorage("upsert remote", err)
	}
	return s.GetRemote(ctx, r.ID)
}

// GetRemote returns a remote by id. Returns ErrRemoteNotFound if unknown.
func (s *Store) GetRemote(ctx context.Context, id string) (RemoteRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection_id, channel, filter, since_timestamp, outbox_cursor, inbox_cursor, created_at
		FROM remotes WHERE id = ?
	`, id)

	var r RemoteRecord
	err := row.Scan(&r.ID, &r.CollectionID, &r.Channel, &r.Filter, &r.SinceTimestamp, &r.OutboxCursor, &r.InboxCursor, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RemoteRecord{}, fmt.Errorf("get remote %s: %w", id, ErrRemoteNotFound)
	}
	if err != nil {
		return RemoteRecord{}, wrapStorage("get remote", err)
	}
	return r, nil
}

// ListRemotes returns every remote ordered by id.
func (s *Store) ListRemotes(ctx context.Context) ([]RemoteRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_id, channel, filter, since_timestamp, outbox_cursor, inbox_cursor, created_at
		FROM remotes ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, wrapStorage("list remotes", err)
	}
	defer rows.Close()

	out := []RemoteRecord{}
	for rows.Next() {
		var r RemoteRecord
		if err := rows.Scan(&r.ID, &r.CollectionID, &r.Channel, &r.Filter, &r.SinceTimestamp, &r.OutboxCursor, &r.InboxCursor, &r.CreatedAt); err != nil {
			return nil, wrapStorage("scan remote", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorage("iterate remotes", err)
	}
	return out, nil
}

// DeleteRemote removes a remote and its cursors.
func (s *Store) DeleteRemote(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM remotes WHERE id = ?`, id)
	if err != nil {
		return wrapStorage("delete remote", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete remote %s: %w", id, ErrRemoteNotFound)
	}
	return nil
}

// AdvanceOutboxCursor moves the outbox cursor forward. Cursors never move back.
func (s *Store) AdvanceOutboxCursor(ctx context.Context, id string, cursor int64) error {
	return s.advanceCursor(ctx, "outbox_cursor", id, cursor)
}

// AdvanceInboxCursor moves the inbox cursor forward. Cursors never move back.
func (s *Store) AdvanceInboxCursor(ctx context.Context, id string, cursor int64) error {
	return s.advanceCursor(ctx, "inbox_cursor", id, cursor)
}

func (s *Store) advanceCursor(ctx context.Context, column, id string, cursor int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE remotes SET "+column+" = MAX("+column+", ?) WHERE id = ?",
		cursor, id,
	)
	if err != nil {
		return wrapStorage("advance "+column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("advance %s for %s: %w", column, id, ErrRemoteNotFound)
	}
	return nil
}
