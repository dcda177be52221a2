package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/reactor/internal/ir"
)

// Entry is one row of the operation index. Ordinal is zero until commit
// assigns it.
type Entry struct {
	Ordinal      int64        `json:"ordinal"`
	DocumentID   string       `json:"document_id"`
	DocumentType string       `json:"document_type"`
	Scope        string       `json:"scope"`
	Branch       string       `json:"branch"`
	Operation    ir.Operation `json:"operation"`
}

// Key returns the log the entry belongs to.
func (e Entry) Key() ir.LogKey {
	return ir.LogKey{DocumentID: e.DocumentID, Scope: e.Scope, Branch: e.Branch}
}

// ConsistencyToken is an ordinal floor. A read carrying a token observes at
// least every commit up to and including that ordinal.
type ConsistencyToken struct {
	Ordinal int64
}

const tokenPrefix = "ct1:"

// String encodes the token as an opaque string.
func (t ConsistencyToken) String() string {
	return tokenPrefix + strconv.FormatInt(t.Ordinal, 10)
}

// IsZero reports whether the token carries no floor.
func (t ConsistencyToken) IsZero() bool {
	return t.Ordinal == 0
}

// ParseConsistencyToken decodes a token produced by String.
func ParseConsistencyToken(s string) (ConsistencyToken, error) {
	if s == "" {
		return ConsistencyToken{}, nil
	}
	if !strings.HasPrefix(s, tokenPrefix) {
		return ConsistencyToken{}, fmt.Errorf("invalid consistency token %q", s)
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(s, tokenPrefix), 10, 64)
	if err != nil || n < 0 {
		return ConsistencyToken{}, fmt.Errorf("invalid consistency token %q", s)
	}
	return ConsistencyToken{Ordinal: n}, nil
}

type membership struct {
	collectionID string
	documentID   string
}

// Batch stages writes for one atomic commit. A Batch is not safe for
// concurrent use; each job builds its own.
type Batch struct {
	entries     []Entry
	collections []string
	members     []membership
}

// Start returns an empty writable batch.
func (s *Store) Start() *Batch {
	return &Batch{}
}

// Write stages operation rows.
func (b *Batch) Write(entries ...Entry) {
	b.entries = append(b.entries, entries...)
}

// CreateCollection stages a collection. Creating an existing collection is a no-op.
func (b *Batch) CreateCollection(collectionID string) {
	b.collections = append(b.collections, collectionID)
}

// AddToCollection stages a membership. Adding an existing member is a no-op.
func (b *Batch) AddToCollection(collectionID, documentID string) {
	b.members = append(b.members, membership{collectionID: collectionID, documentID: documentID})
}

// Entries returns the staged rows.
func (b *Batch) Entries() []Entry {
	return b.entries
}

// Empty reports whether nothing is staged.
func (b *Batch) Empty() bool {
	return len(b.entries) == 0 && len(b.collections) == 0 && len(b.members) == 0
}

// Commit writes the batch in one transaction and returns the ordinal
// assigned to each staged entry, in staging order. The entries in the batch
// are updated with their ordinals.
//
// Each entry's Operation.Index must be exactly the next free index of its
// log, counting entries earlier in the same batch. Otherwise the whole batch
// is rejected with IndexConflictError.
func (s *Store) Commit(ctx context.Context, b *Batch) ([]int64, error) {
	if b == nil || b.Empty() {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStorage("commit: begin tx", err)
	}
	defer tx.Rollback() // no-op after commit

	now := time.Now().UnixMilli()

	for _, id := range b.collections {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO collections (id, created_at) VALUES (?, ?)
			ON CONFLICT(id) DO NOTHING
		`, id, now); err != nil {
			return nil, wrapStorage("commit: create collection", err)
		}
	}

	for _, m := range b.members {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO collections (id, created_at) VALUES (?, ?)
			ON CONFLICT(id) DO NOTHING
		`, m.collectionID, now); err != nil {
			return nil, wrapStorage("commit: create collection", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO collection_members (collection_id, document_id, added_at)
			VALUES (?, ?, ?)
			ON CONFLICT(collection_id, document_id) DO NOTHING
		`, m.collectionID, m.documentID, now); err != nil {
			return nil, wrapStorage("commit: add to collection", err)
		}
	}

	next := make(map[ir.LogKey]int64)
	ordinals := make([]int64, 0, len(b.entries))

	for i := range b.entries {
		e := &b.entries[i]
		key := e.Key()

		expected, ok := next[key]
		if !ok {
			expected, err = nextIndex(ctx, tx, key)
			if err != nil {
				return nil, err
			}
		}
		if e.Operation.Index != expected {
			return nil, &IndexConflictError{Log: key.String(), Expected: expected, Got: e.Operation.Index}
		}
		next[key] = expected + 1

		actionJSON, err := marshalAction(e.Operation.Action)
		if err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO operations
			(document_id, document_type, scope, branch, op_index, skip, hash, timestamp,
			 action_id, action_type, action, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.DocumentID,
			e.DocumentType,
			e.Scope,
			e.Branch,
			e.Operation.Index,
			e.Operation.Skip,
			e.Operation.Hash,
			e.Operation.Timestamp,
			e.Operation.Action.ID,
			e.Operation.Action.Type,
			actionJSON,
			e.Operation.Error,
		)
		if err != nil {
			return nil, wrapStorage("commit: insert operation", err)
		}

		ordinal, err := res.LastInsertId()
		if err != nil {
			return nil, wrapStorage("commit: last insert id", err)
		}
		ordinals = append(ordinals, ordinal)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapStorage("commit", err)
	}

	for i, o := range ordinals {
		b.entries[i].Ordinal = o
	}
	if len(ordinals) > 0 {
		s.advanceWatermark(ordinals[len(ordinals)-1])
	}

	return ordinals, nil
}

func nextIndex(ctx context.Context, tx *sql.Tx, key ir.LogKey) (int64, error) {
	var maxIndex sql.NullInt64
	err := tx.QueryRowContext(ctx, `
		SELECT MAX(op_index) FROM operations
		WHERE document_id = ? AND scope = ? AND branch = ?
	`, key.DocumentID, key.Scope, key.Branch).Scan(&maxIndex)
	if err != nil {
		return 0, wrapStorage("commit: next index", err)
	}
	if !maxIndex.Valid {
		return 0, nil
	}
	return maxIndex.Int64 + 1, nil
}

// TokenFor returns the consistency token covering every given ordinal.
func TokenFor(ordinals []int64) ConsistencyToken {
	var t ConsistencyToken
	for _, o := range ordinals {
		if o > t.Ordinal {
			t.Ordinal = o
		}
	}
	return t
}
