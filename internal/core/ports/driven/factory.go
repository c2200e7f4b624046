package driven

import (
	"context"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// ConnectorBuilder creates a Connector for an account.
type ConnectorBuilder func(ctx context.Context, account domain.Account, settings domain.Settings) (Connector, error)

// ConnectorFactory creates connectors from account configuration.
// It maintains a registry of account types and their builders.
type ConnectorFactory interface {
	// Create returns a Connector for the given account.
	// Returns ErrUnsupportedType if the account type is unknown.
	Create(ctx context.Context, account domain.Account) (Connector, error)

	// Register adds a connector builder for the given type.
	Register(accountType domain.AccountType, builder ConnectorBuilder)

	// SupportedTypes returns all registered account types.
	SupportedTypes() []domain.AccountType
}
