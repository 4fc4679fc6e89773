package driven

import (
	"context"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// DocumentStore persists documents together with the chunks and embeddings
// they own. Parent deletes remove children explicitly inside one transaction.
type DocumentStore interface {
	// GetDocumentByURL looks a document up by its natural key.
	// Returns domain.ErrNotFound when no document has that URL.
	GetDocumentByURL(ctx context.Context, sourceURL string) (*domain.Document, error)

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns all documents ordered by URL.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// ResetDocument upserts the document (new hash, title, metadata) and removes
	// every embedding and chunk it owned, atomically.
	ResetDocument(ctx context.Context, doc *domain.Document) error

	// SaveEmbeddedChunks persists chunk/embedding pairs in one transaction.
	SaveEmbeddedChunks(ctx context.Context, items []domain.EmbeddedChunk) error

	// GetChunks retrieves all chunks for a document ordered by index.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunk retrieves a chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// RankedChunks hydrates chunk ids with chunk content and document fields.
	// Unknown ids are skipped; order of the result is unspecified.
	RankedChunks(ctx context.Context, chunkIDs []string) ([]domain.RankedChunk, error)

	// EmbeddingModel returns the model that produced a document's embeddings,
	// or "" when the document has none.
	EmbeddingModel(ctx context.Context, documentID string) (string, error)

	// DeleteDocument removes a document, its chunks and their embeddings.
	DeleteDocument(ctx context.Context, id string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
