package driven

import (
	"context"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// VectorRecord is one chunk vector as stored in a vector index.
type VectorRecord struct {
	ChunkID    string
	DocumentID string
	Vector     []float32
}

// VectorIndex ranks chunks by distance to a query vector.
type VectorIndex interface {
	// Add inserts or replaces vectors.
	Add(ctx context.Context, records []VectorRecord) error

	// DeleteByDocument removes every vector of a document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Search returns up to k hits ordered by ascending cosine distance.
	Search(ctx context.Context, query []float32, k int) ([]domain.VectorHit, error)

	// Close releases resources.
	Close() error
}

// LexicalIndex ranks chunks by keyword relevance. The index follows the
// chunk table, so it has no write methods of its own.
type LexicalIndex interface {
	// Search returns up to k hits ordered by descending relevance.
	Search(ctx context.Context, query string, k int) ([]domain.LexicalHit, error)
}
