package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChangeChannel is the notification channel raised by every document write
const ChangeChannel = "document_changes"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, doc_id)
);

CREATE INDEX IF NOT EXISTS documents_photo_id_idx
	ON documents ((data->>'photo_id'))
	WHERE collection = 'photo_comments';

CREATE OR REPLACE FUNCTION notify_document_change() RETURNS trigger AS $$
BEGIN
	IF TG_OP = 'DELETE' THEN
		PERFORM pg_notify('document_changes', OLD.collection);
	ELSE
		PERFORM pg_notify('document_changes', NEW.collection);
	END IF;
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS documents_notify ON documents;
CREATE TRIGGER documents_notify
	AFTER INSERT OR UPDATE OR DELETE ON documents
	FOR EACH ROW EXECUTE FUNCTION notify_document_change();
`

// Document is one stored JSON document
type Document struct {
	ID        string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentRepository handles database operations for collection documents
type DocumentRepository struct {
	db *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Migrate creates the documents table and its change trigger
func (r *DocumentRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate documents schema: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (r *DocumentRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Upsert creates or replaces a document by id and returns its server creation time
func (r *DocumentRepository) Upsert(ctx context.Context, collection, id string, data []byte) (time.Time, error) {
	query := `
		INSERT INTO documents (collection, doc_id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, doc_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query, collection, id, data).Scan(&createdAt); err != nil {
		return time.Time{}, fmt.Errorf("failed to upsert document: %w", err)
	}
	return createdAt, nil
}

// Get retrieves a document by id
func (r *DocumentRepository) Get(ctx context.Context, collection, id string) (*Document, error) {
	query := `
		SELECT doc_id, data, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND doc_id = $2
	`
	var doc Document
	err := r.db.QueryRow(ctx, query, collection, id).Scan(&doc.ID, &doc.Data, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// Delete removes a document; deleting a missing document is not an error
func (r *DocumentRepository) Delete(ctx context.Context, collection, id string) error {
	query := `DELETE FROM documents WHERE collection = $1 AND doc_id = $2`
	if _, err := r.db.Exec(ctx, query, collection, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// List returns every document of a collection in creation order. When field is not empty
// only documents whose top-level field equals value are returned.
func (r *DocumentRepository) List(ctx context.Context, collection, field, value string) ([]Document, error) {
	query := `
		SELECT doc_id, data, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND ($2 = '' OR data->>$2 = $3)
		ORDER BY created_at, doc_id
	`
	rows, err := r.db.Query(ctx, query, collection, field, value)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docs, nil
}

// Listener receives change notifications on a dedicated connection
type Listener struct {
	conn *pgxpool.Conn
}

// Listen acquires a connection and subscribes it to the change channel
func (r *DocumentRepository) Listen(ctx context.Context) (*Listener, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen for changes: %w", err)
	}
	return &Listener{conn: conn}, nil
}

// Wait blocks until a document changes and returns the affected collection
func (l *Listener) Wait(ctx context.Context) (string, error) {
	n, err := l.conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to wait for notification: %w", err)
	}
	return n.Payload, nil
}

// Close stops listening and returns the connection to the pool
func (l *Listener) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := l.conn.Exec(ctx, "UNLISTEN *"); err != nil {
		// connection state is unknown, do not hand it back to the pool
		_ = l.conn.Hijack().Close(ctx)
		return
	}
	l.conn.Release()
}
