package driven

import (
	"context"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// AccountStore persists account configuration.
type AccountStore interface {
	// Save stores or updates an account.
	Save(ctx context.Context, account domain.Account) error

	// Get retrieves an account by ID.
	// Returns domain.ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.Account, error)

	// List returns all accounts ordered by creation time.
	List(ctx context.Context) ([]domain.Account, error)

	// Delete removes an account.
	Delete(ctx context.Context, id string) error
}
