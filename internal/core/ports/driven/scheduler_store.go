package driven

import (
	"context"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// SchedulerStore keeps task state and a bounded run history.
type SchedulerStore interface {
	// GetTask returns nil and no error when id is unknown.
	GetTask(ctx context.Context, id string) (*domain.ScheduledTask, error)
	ListTasks(ctx context.Context) ([]domain.ScheduledTask, error)
	// SaveTask inserts or replaces the task with the same ID.
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error
	DeleteTask(ctx context.Context, id string) error

	RecordResult(ctx context.Context, result *domain.TaskResult) error
	// GetTaskHistory returns up to limit results, newest first.
	GetTaskHistory(ctx context.Context, id string, limit int) ([]domain.TaskResult, error)
	// PruneHistory keeps the newest keep results of every task.
	PruneHistory(ctx context.Context, keep int) error
}
