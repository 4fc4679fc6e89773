package driving

import (
	"context"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// Scheduler runs the background tasks: manifest re-ingestion and the
// off-topic violation sweep.
type Scheduler interface {
	// Start runs due tasks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop waits for running tasks and returns.
	Stop() error

	// Status lists stored tasks with up to recent results each.
	Status(ctx context.Context, recent int) ([]domain.TaskStatus, error)
}
