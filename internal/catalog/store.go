package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound means no document with the given id and kind exists.
var ErrNotFound = errors.New("catalog: document not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads CMS-synced catalog documents.
type Store struct {
	db DB
}

// NewStore creates a catalog store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Get loads one tour or event document.
func (s *Store) Get(ctx context.Context, kind Kind, id string) (*Document, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `
		SELECT doc FROM catalog_documents
		WHERE id = $1 AND kind = $2`, id, string(kind)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: load document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode document %s: %w", id, err)
	}
	doc.ID = id
	doc.Kind = kind
	return &doc, nil
}

// Upsert writes a synced document snapshot. The CMS sync job is the only caller.
func (s *Store) Upsert(ctx context.Context, doc *Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("catalog: encode document: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO catalog_documents (id, kind, doc, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, doc = EXCLUDED.doc, updated_at = now()`,
		doc.ID, string(doc.Kind), raw)
	if err != nil {
		return fmt.Errorf("catalog: upsert document: %w", err)
	}
	return nil
}
