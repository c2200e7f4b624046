package connectors

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/custodia-labs/cloudpoll/internal/connectors/box"
	"github.com/custodia-labs/cloudpoll/internal/connectors/dropbox"
	"github.com/custodia-labs/cloudpoll/internal/connectors/google/drive"
	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/logger"
)

// Ensure Factory implements the interface.
var _ driven.ConnectorFactory = (*Factory)(nil)

// Factory maps account types to connector builders.
type Factory struct {
	mu       sync.RWMutex
	builders map[domain.AccountType]driven.ConnectorBuilder
	settings domain.Settings
}

// NewFactory creates a factory with the built-in providers registered.
func NewFactory(settings domain.Settings) *Factory {
	f := NewEmptyFactory(settings)
	f.Register(domain.AccountTypeBox, func(ctx context.Context, account domain.Account, s domain.Settings) (driven.Connector, error) {
		return box.New(ctx, account, s)
	})
	f.Register(domain.AccountTypeDropbox, func(ctx context.Context, account domain.Account, s domain.Settings) (driven.Connector, error) {
		return dropbox.New(ctx, account, s)
	})
	f.Register(domain.AccountTypeGoogleDrive, func(ctx context.Context, account domain.Account, s domain.Settings) (driven.Connector, error) {
		return drive.New(ctx, account, s)
	})
	return f
}

// NewEmptyFactory creates a factory with no builders.
func NewEmptyFactory(settings domain.Settings) *Factory {
	return &Factory{
		builders: make(map[domain.AccountType]driven.ConnectorBuilder),
		settings: settings,
	}
}

// Register adds or replaces the builder for an account type.
func (f *Factory) Register(accountType domain.AccountType, builder driven.ConnectorBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[accountType] = builder
}

// SetSettings replaces the settings passed to builders.
// Connectors already created keep the settings they were built with.
func (f *Factory) SetSettings(settings domain.Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = settings
}

// Create builds a connector for the account.
func (f *Factory) Create(ctx context.Context, account domain.Account) (driven.Connector, error) {
	f.mu.RLock()
	builder, ok := f.builders[account.Type]
	settings := f.settings
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, account.Type)
	}

	conn, err := builder(ctx, account, settings)
	if err != nil {
		return nil, fmt.Errorf("create %s connector for %s: %w", account.Type, account.ID, err)
	}
	logger.Debugw("connector created", "account_id", account.ID, "type", account.Type)
	return conn, nil
}

// SupportedTypes returns the registered account types in sorted order.
func (f *Factory) SupportedTypes() []domain.AccountType {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]domain.AccountType, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
