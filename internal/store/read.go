package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/reactor/internal/ir"
)

// DefaultPageSize is used when a query does not set a limit.
const DefaultPageSize = 100

// OperationQuery selects operations of one document.
type OperationQuery struct {
	DocumentID string
	Scopes     []string // empty means every scope
	Branch     string
}

// Paging is cursor-based: Cursor is the last ordinal already seen.
type Paging struct {
	Cursor int64
	Limit  int
}

// Page is one page of index entries ordered by ordinal.
type Page struct {
	Entries    []Entry `json:"entries"`
	NextCursor int64   `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

// ReadOption configures a read.
type ReadOption func(*readOptions)

type readOptions struct {
	token ConsistencyToken
}

// WithConsistencyToken makes the read wait until token is visible.
func WithConsistencyToken(token ConsistencyToken) ReadOption {
	return func(o *readOptions) {
		o.token = token
	}
}

func (s *Store) applyReadOptions(ctx context.Context, opts []ReadOption) error {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.token.IsZero() {
		return nil
	}
	return s.WaitFor(ctx, o.token)
}

const entryColumns = `ordinal, document_id, document_type, scope, branch, op_index, skip, hash, timestamp, action, error`

// Operations returns one page of a document's operations across the
// requested scopes, ordered by ordinal.
func (s *Store) Operations(ctx context.Context, q OperationQuery, p Paging, opts ...ReadOption) (Page, error) {
	if err := s.applyReadOptions(ctx, opts); err != nil {
		return Page{}, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	var (
		where strings.Builder
		args  []any
	)
	where.WriteString("document_id = ? AND ordinal > ?")
	args = append(args, q.DocumentID, p.Cursor)
	if q.Branch != "" {
		where.WriteString(" AND branch = ?")
		args = append(args, q.Branch)
	}
	if len(q.Scopes) > 0 {
		where.WriteString(" AND scope IN (" + placeholders(len(q.Scopes)) + ")")
		for _, sc := range q.Scopes {
			args = append(args, sc)
		}
	}
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM operations WHERE "+where.String()+" ORDER BY ordinal ASC LIMIT ?",
		args...,
	)
	if err != nil {
		return Page{}, wrapStorage("query operations", err)
	}
	defer rows.Close()

	return collectPage(rows, limit, p.Cursor)
}

// Log returns the full physical log of one (document, scope, branch) ordered
// by index. Returns an empty slice (not nil) for an unknown log.
func (s *Store) Log(ctx context.Context, key ir.LogKey, opts ...ReadOption) ([]ir.Operation, error) {
	if err := s.applyReadOptions(ctx, opts); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM operations
		WHERE document_id = ? AND scope = ? AND branch = ?
		ORDER BY op_index ASC
	`, key.DocumentID, key.Scope, key.Branch)
	if err != nil {
		return nil, wrapStorage("query log", err)
	}
	defer rows.Close()

	ops := []ir.Operation{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, e.Operation)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorage("iterate log", err)
	}
	return ops, nil
}

// CollectionQuery selects operations of every document in a collection.
type CollectionQuery struct {
	CollectionID   string
	Branch         string
	SinceTimestamp int64 // unix ms; 0 means from the beginning
}

// CollectionOperations returns one page of operations for every member of a
// collection, ordered by ordinal. This is the backfill query.
func (s *Store) CollectionOperations(ctx context.Context, q CollectionQuery, p Paging, opts ...ReadOption) (Page, error) {
	if err := s.applyReadOptions(ctx, opts); err != nil {
		return Page{}, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	query := `
		SELECT o.ordinal, o.document_id, o.document_type, o.scope, o.branch, o.op_index,
		       o.skip, o.hash, o.timestamp, o.action, o.error
		FROM operations o
		JOIN collection_members m ON m.document_id = o.document_id
		WHERE m.collection_id = ? AND o.ordinal > ? AND o.timestamp >= ?`
	args := []any{q.CollectionID, p.Cursor, q.SinceTimestamp}
	if q.Branch != "" {
		query += " AND o.branch = ?"
		args = append(args, q.Branch)
	}
	query += " ORDER BY o.ordinal ASC LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, wrapStorage("query collection operations", err)
	}
	defer rows.Close()

	return collectPage(rows, limit, p.Cursor)
}

// CollectionMembers returns the document ids of a collection, sorted.
func (s *Store) CollectionMembers(ctx context.Context, collectionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id FROM collection_members
		WHERE collection_id = ?
		ORDER BY document_id COLLATE BINARY ASC
	`, collectionID)
	if err != nil {
		return nil, wrapStorage("query collection members", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapStorage("scan collection member", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorage("iterate collection members", err)
	}
	return ids, nil
}

// IsMember reports whether documentID belongs to collectionID.
func (s *Store) IsMember(ctx context.Context, collectionID, documentID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM collection_members
		WHERE collection_id = ? AND document_id = ?
	`, collectionID, documentID).Scan(&count)
	if err != nil {
		return false, wrapStorage("check collection member", err)
	}
	return count > 0, nil
}

func collectPage(rows *sql.Rows, limit int, cursor int64) (Page, error) {
	page := Page{Entries: []Entry{}, NextCursor: cursor}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return Page{}, err
		}
		page.Entries = append(page.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return Page{}, wrapStorage("iterate operations", err)
	}

	if len(page.Entries) > limit {
		page.Entries = page.Entries[:limit]
		page.HasMore = true
	}
	if n := len(page.Entries); n > 0 {
		page.NextCursor = page.Entries[n-1].Ordinal
	}
	return page, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e          Entry
		actionJSON string
	)
	err := rows.Scan(
		&e.Ordinal,
		&e.DocumentID,
		&e.DocumentType,
		&e.Scope,
		&e.Branch,
		&e.Operation.Index,
		&e.Operation.Skip,
		&e.Operation.Hash,
		&e.Operation.Timestamp,
		&actionJSON,
		&e.Operation.Error,
	)
	if err != nil {
		return Entry{}, wrapStorage("scan operation", err)
	}

	e.Operation.Action, err = unmarshalAction(actionJSON)
	if err != nil {
		return Entry{}, fmt.Errorf("scan operation %d: %w", e.Ordinal, err)
	}
	return e, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
