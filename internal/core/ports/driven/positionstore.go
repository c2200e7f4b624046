package driven

import "context"

// PositionStore persists the last committed poll position per account.
// Commit must be atomic per account: a reader sees the old or the new
// position, never a partial write.
type PositionStore interface {
	// Get returns the committed position.
	// Returns domain.SentinelPosition when none has been committed.
	Get(ctx context.Context, accountID string) (string, error)

	// Commit replaces the position after a fully processed batch.
	Commit(ctx context.Context, accountID, position string) error

	// Reset sets the position back to the sentinel.
	Reset(ctx context.Context, accountID string) error
}
