package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/reactor/internal/ir"
)

// GetDocument returns the stored snapshot of a document.
// Returns ErrDocumentNotFound if the id is unknown.
func (s *Store) GetDocument(ctx context.Context, id string) (ir.Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Document{}, fmt.Errorf("get document %s: %w", id, ErrDocumentNotFound)
	}
	if err != nil {
		return ir.Document{}, wrapStorage("get document", err)
	}
	return unmarshalDocument(body)
}

// CreateDocument stores a new document. Returns ErrDocumentExists if the id
// is already taken.
func (s *Store) CreateDocument(ctx context.Context, doc ir.Document) error {
	body, err := marshalDocument(doc)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, slug, document_type, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, doc.Header.ID, nullable(doc.Header.Slug), doc.Header.DocumentType, body)
	if err != nil {
		return wrapStorage("create document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStorage("create document: rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("create document %s: %w", doc.Header.ID, ErrDocumentExists)
	}
	return nil
}

// PutDocument replaces the snapshot of an existing document.
// Returns ErrDocumentNotFound if the id is unknown.
func (s *Store) PutDocument(ctx context.Context, doc ir.Document) error {
	body, err := marshalDocument(doc)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET slug = ?, document_type = ?, body = ?
		WHERE id = ?
	`, nullable(doc.Header.Slug), doc.Header.DocumentType, body, doc.Header.ID)
	if err != nil {
		return wrapStorage("put document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStorage("put document: rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("put document %s: %w", doc.Header.ID, ErrDocumentNotFound)
	}
	return nil
}

// DeleteDocument removes the snapshot of a document. Its operations stay in
// the index. Returns ErrDocumentNotFound if the id is unknown.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return wrapStorage("delete document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStorage("delete document: rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("delete document %s: %w", id, ErrDocumentNotFound)
	}
	return nil
}

// DocumentExists reports whether a snapshot exists for id.
func (s *Store) DocumentExists(ctx context.Context, id string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE id = ?`, id).Scan(&count); err != nil {
		return false, wrapStorage("document exists", err)
	}
	return count > 0, nil
}

// ResolveSlugs maps slugs to document ids, preserving order. An unknown
// slug fails the whole call with ErrDocumentNotFound.
func (s *Store) ResolveSlugs(ctx context.Context, slugs []string) ([]string, error) {
	ids := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		var id string
		err := s.db.QueryRowContext(ctx, `SELECT id FROM documents WHERE slug = ?`, slug).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resolve slug %q: %w", slug, ErrDocumentNotFound)
		}
		if err != nil {
			return nil, wrapStorage("resolve slug", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
