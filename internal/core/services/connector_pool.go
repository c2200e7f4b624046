package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
)

// Ensure ConnectorPool implements the interfaces.
var (
	_ ConnectorSource      = (*ConnectorPool)(nil)
	_ driven.FetcherLookup = (*ConnectorPool)(nil)
)

// ConnectorPool keeps one live connector per account so rate limiters,
// provider backoff hints and HTTP clients survive between cycles.
type ConnectorPool struct {
	factory  driven.ConnectorFactory
	accounts driven.AccountStore

	mu    sync.Mutex
	conns map[string]driven.Connector
}

// NewConnectorPool creates an empty pool.
func NewConnectorPool(factory driven.ConnectorFactory, accounts driven.AccountStore) *ConnectorPool {
	return &ConnectorPool{
		factory:  factory,
		accounts: accounts,
		conns:    make(map[string]driven.Connector),
	}
}

// Get returns the account's connector, creating it on first use.
func (p *ConnectorPool) Get(ctx context.Context, account domain.Account) (driven.Connector, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[account.ID]; ok {
		return conn, nil
	}
	if p.factory == nil {
		return nil, errors.New("connector factory not configured")
	}
	conn, err := p.factory.Create(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}
	p.conns[account.ID] = conn
	return conn, nil
}

// FetcherFor returns the content fetcher of an account.
func (p *ConnectorPool) FetcherFor(ctx context.Context, accountID string) (driven.ContentFetcher, error) {
	p.mu.Lock()
	conn, ok := p.conns[accountID]
	p.mu.Unlock()
	if ok {
		return conn, nil
	}

	account, err := p.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return p.Get(ctx, *account)
}

// Evict closes and forgets an account's connector, e.g. after its
// credentials change.
func (p *ConnectorPool) Evict(accountID string) error {
	p.mu.Lock()
	conn, ok := p.conns[accountID]
	delete(p.conns, accountID)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return conn.Close()
}

// Close closes every connector.
func (p *ConnectorPool) Close() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]driven.Connector)
	p.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
