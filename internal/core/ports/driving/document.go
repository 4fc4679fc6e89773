package driving

import (
	"context"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// DocumentService exposes the ingested corpus.
type DocumentService interface {
	// List returns all documents ordered by URL.
	List(ctx context.Context) ([]domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// GetContent returns the document text reassembled from its chunks.
	GetContent(ctx context.Context, id string) (string, error)

	// Delete removes a document with its chunks and vectors.
	Delete(ctx context.Context, id string) error
}
