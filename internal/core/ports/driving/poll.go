package driving

import (
	"context"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// PollOrchestrator runs poll cycles for configured accounts.
type PollOrchestrator interface {
	// Poll runs one cycle for an account.
	// Returns domain.ErrPollInProgress if a cycle for the account is running.
	Poll(ctx context.Context, accountID string) (*domain.CycleReport, error)

	// PollAll runs one cycle for every account, in parallel.
	// Per-account failures are reported in the returned reports.
	PollAll(ctx context.Context) ([]domain.CycleReport, error)

	// Status returns the poll state of an account.
	Status(ctx context.Context, accountID string) (*domain.AccountStatus, error)

	// History returns up to limit recorded cycles of an account, newest first.
	History(ctx context.Context, accountID string, limit int) ([]domain.CycleReport, error)
}

// Scheduler repeats PollAll and history pruning on their intervals.
type Scheduler interface {
	// Start runs until ctx ends (returning ctx.Err()) or Stop is called.
	Start(ctx context.Context) error

	// Stop ends the loop and waits for in-flight tasks.
	Stop() error
}
