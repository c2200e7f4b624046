package driving

import (
	"context"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// AccountService manages account configurations.
type AccountService interface {
	// Add registers an account with a generated ID and a sentinel position.
	Add(ctx context.Context, accountType domain.AccountType, name string, config map[string]string) (*domain.Account, error)

	// Get retrieves an account with its committed position.
	Get(ctx context.Context, id string) (*domain.Account, error)

	// List returns all accounts with their committed positions.
	List(ctx context.Context) ([]domain.Account, error)

	// Remove deletes an account and its position.
	Remove(ctx context.Context, id string) error

	// Reset returns an account to the sentinel position so the next
	// poll re-enumerates its tree.
	Reset(ctx context.Context, id string) error

	// ResetAll resets every account.
	ResetAll(ctx context.Context) error

	// SetToken replaces an account's access token.
	SetToken(ctx context.Context, id, token string) error

	// SetCredentials stores tokens obtained by interactive authorization.
	SetCredentials(ctx context.Context, id, accessToken, refreshToken string) error
}
