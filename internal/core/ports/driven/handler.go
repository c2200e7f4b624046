package driven

import (
	"context"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// ActionHandler applies one action record to local state.
// Handlers must be idempotent: records may be delivered more than once.
type ActionHandler interface {
	Handle(ctx context.Context, record domain.ActionRecord) error
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, record domain.ActionRecord) error

// Handle calls f.
func (f ActionHandlerFunc) Handle(ctx context.Context, record domain.ActionRecord) error {
	return f(ctx, record)
}

// IndexNotifier is told about local mutations so the search index can follow.
type IndexNotifier interface {
	// Upsert records a materialised item.
	Upsert(ctx context.Context, entry domain.IndexEntry) error

	// Remove drops an item. With recursive set, everything below
	// sourcePath is dropped too.
	Remove(ctx context.Context, accountID, sourcePath string, recursive bool) error
}

// IndexStore is an IndexNotifier that can be queried.
type IndexStore interface {
	IndexNotifier

	// List returns entries for an account ordered by path.
	List(ctx context.Context, accountID string) ([]domain.IndexEntry, error)

	// Get returns one entry by path.
	// Returns domain.ErrNotFound if it does not exist.
	Get(ctx context.Context, accountID, sourcePath string) (*domain.IndexEntry, error)
}
