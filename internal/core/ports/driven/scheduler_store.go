package driven

import (
	"context"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// TaskStore persists scheduled task state across restarts.
type TaskStore interface {
	// GetTask returns nil and no error when the task does not exist.
	GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error)
	ListTasks(ctx context.Context) ([]domain.ScheduledTask, error)
	SaveTask(ctx context.Context, task domain.ScheduledTask) error
}

// CycleHistory keeps the reports of finished poll cycles.
type CycleHistory interface {
	// Record stores a finished cycle.
	Record(ctx context.Context, report domain.CycleReport) error

	// Recent returns up to limit reports for an account, newest first.
	Recent(ctx context.Context, accountID string, limit int) ([]domain.CycleReport, error)

	// Prune keeps the newest keep reports per account and returns how
	// many were deleted.
	Prune(ctx context.Context, keep int) (int, error)
}

// SchedulerStore is the persistence the scheduler runs on.
type SchedulerStore interface {
	TaskStore
	CycleHistory
}
