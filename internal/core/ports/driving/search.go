package driving

import (
	"context"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// SearchService retrieves ranked chunks for a question.
type SearchService interface {
	// Search ranks chunks by vector distance or by fused vector+lexical rank.
	Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.RankedChunk, error)
}
