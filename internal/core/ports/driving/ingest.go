package driving

import (
	"context"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// IngestService turns source documents into embedded chunks.
type IngestService interface {
	// Ingest processes one document. Unchanged content is skipped unless force is set.
	Ingest(ctx context.Context, src domain.SourceDescriptor, force bool) (domain.IngestResult, error)

	// IngestBatch processes documents one by one; a failure never aborts the batch.
	IngestBatch(ctx context.Context, srcs []domain.SourceDescriptor, force bool) domain.BatchReport
}
