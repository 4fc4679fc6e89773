package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, source_url, title, type, content_hash, metadata, created_at, updated_at`

// GetDocumentByURL retrieves a document by its source URL.
func (s *documentStore) GetDocumentByURL(ctx context.Context, sourceURL string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE source_url = ?`, sourceURL)
	return scanDocument(row)
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListDocuments returns every document ordered by source URL.
func (s *documentStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY source_url`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

// ResetDocument upserts the document row and drops all of its chunks and
// embeddings in one transaction.
func (s *documentStore) ResetDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" || doc.SourceURL == "" {
		return domain.ErrInvalidInput
	}
	metadata, err := marshalJSON(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteChunks(ctx, tx, doc.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (`+documentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source_url = excluded.source_url,
				title = excluded.title,
				type = excluded.type,
				content_hash = excluded.content_hash,
				metadata = excluded.metadata,
				updated_at = excluded.updated_at
		`, doc.ID, doc.SourceURL, doc.Title, string(doc.Type), doc.ContentHash, metadata,
			doc.CreatedAt.UnixMilli(), doc.UpdatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("saving document: %w", err)
		}
		return nil
	})
}

// SaveEmbeddedChunks stores chunks and their embeddings as one unit.
func (s *documentStore) SaveEmbeddedChunks(ctx context.Context, items []domain.EmbeddedChunk) error {
	if len(items) == 0 {
		return nil
	}
	for _, it := range items {
		if err := it.Embedding.Validate(); err != nil {
			return err
		}
		if it.Embedding.ChunkID != it.Chunk.ID {
			return fmt.Errorf("%w: embedding for chunk %s attached to %s",
				domain.ErrInvalidInput, it.Embedding.ChunkID, it.Chunk.ID)
		}
	}

	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		chunkStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, document_id, content, chunk_index, token_count, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer chunkStmt.Close()

		embStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO embeddings (id, chunk_id, vector, model, dimensions, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer embStmt.Close()

		for _, it := range items {
			c, e := it.Chunk, it.Embedding
			metadata, err := marshalJSON(c.Metadata)
			if err != nil {
				return fmt.Errorf("marshalling chunk metadata: %w", err)
			}
			if _, err := chunkStmt.ExecContext(ctx, c.ID, c.DocumentID, c.Content,
				c.ChunkIndex, c.TokenCount, metadata); err != nil {
				return fmt.Errorf("saving chunk: %w", err)
			}
			if _, err := embStmt.ExecContext(ctx, e.ID, e.ChunkID, float32SliceToBytes(e.Vector),
				e.Model, e.Dimensions, e.CreatedAt.UnixMilli()); err != nil {
				return fmt.Errorf("saving embedding: %w", err)
			}
		}
		return nil
	})
}

// GetChunks retrieves all chunks for a document in index order.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, content, chunk_index, token_count, metadata
		FROM chunks WHERE document_id = ?
		ORDER BY chunk_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *documentStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, content, chunk_index, token_count, metadata
		FROM chunks WHERE id = ?
	`, id)

	return scanChunk(row)
}

// RankedChunks joins chunks with their documents. Unknown ids are skipped;
// the result is in no particular order.
func (s *documentStore) RankedChunks(ctx context.Context, chunkIDs []string) ([]domain.RankedChunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.content, d.source_url, d.title, d.type
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.id IN (`+placeholders(len(args))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ranked chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RankedChunk, 0, len(chunkIDs))
	for rows.Next() {
		var rc domain.RankedChunk
		var typ string
		if err := rows.Scan(&rc.ChunkID, &rc.DocumentID, &rc.Content,
			&rc.SourceURL, &rc.Title, &typ); err != nil {
			return nil, fmt.Errorf("scanning ranked chunk: %w", err)
		}
		rc.DocumentType = domain.DocumentType(typ)
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ranked chunks: %w", err)
	}
	return out, nil
}

// EmbeddingModel returns the model that embedded the document's chunks, or
// "" when it has none.
func (s *documentStore) EmbeddingModel(ctx context.Context, documentID string) (string, error) {
	var model string
	err := s.store.db.QueryRowContext(ctx, `
		SELECT e.model FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		WHERE c.document_id = ?
		LIMIT 1
	`, documentID).Scan(&model)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying embedding model: %w", err)
	}
	return model, nil
}

// DeleteDocument removes a document with its chunks and embeddings.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteChunks(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// Ping checks that the database answers.
func (s *documentStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// deleteChunks drops a document's embeddings and chunks. The FTS triggers
// keep the lexical index in step.
func deleteChunks(ctx context.Context, tx *sql.Tx, documentID string) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)
	`, documentID); err != nil {
		return fmt.Errorf("deleting embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDocument scans a single document row.
func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var typ string
	var metadata sql.NullString
	var createdAt, updatedAt sql.NullInt64

	if err := row.Scan(&doc.ID, &doc.SourceURL, &doc.Title, &typ, &doc.ContentHash,
		&metadata, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Type = domain.DocumentType(typ)
	doc.CreatedAt = fromMillis(createdAt)
	doc.UpdatedAt = fromMillis(updatedAt)
	if err := unmarshalJSON(metadata, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}

	return &doc, nil
}

// scanChunk scans a single chunk row.
func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var metadata sql.NullString

	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content,
		&chunk.ChunkIndex, &chunk.TokenCount, &metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	if err := unmarshalJSON(metadata, &chunk.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
	}

	return &chunk, nil
}
