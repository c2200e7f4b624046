package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driving"
	"github.com/custodia-labs/cloudpoll/internal/logger"
)

// Ensure AccountService implements the interface.
var _ driving.AccountService = (*AccountService)(nil)

// ConnectorEvictor drops cached connectors after an account changes.
type ConnectorEvictor interface {
	Evict(accountID string) error
}

// AccountService manages account configurations.
type AccountService struct {
	accountStore  driven.AccountStore
	positionStore driven.PositionStore
	evictor       ConnectorEvictor
}

// NewAccountService creates a new account service.
func NewAccountService(accountStore driven.AccountStore, positionStore driven.PositionStore) *AccountService {
	return &AccountService{
		accountStore:  accountStore,
		positionStore: positionStore,
	}
}

// SetEvictor sets the connector cache to invalidate on credential changes.
func (s *AccountService) SetEvictor(evictor ConnectorEvictor) {
	s.evictor = evictor
}

// Add registers an account with a generated ID and a sentinel position.
func (s *AccountService) Add(
	ctx context.Context,
	accountType domain.AccountType,
	name string,
	config map[string]string,
) (*domain.Account, error) {
	if err := ValidateAccountConfig(accountType, config); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		name = string(accountType)
	}

	account := domain.Account{
		ID:       uuid.NewString(),
		Type:     accountType,
		Name:     name,
		Config:   config,
		Position: domain.SentinelPosition,
	}
	if err := s.accountStore.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}
	if err := s.positionStore.Reset(ctx, account.ID); err != nil {
		return nil, fmt.Errorf("initialise position: %w", err)
	}

	logger.Info("Added %s account %s (%s)", accountType, account.ID, name)
	return &account, nil
}

// Get retrieves an account with its committed position.
func (s *AccountService) Get(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.accountStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	position, err := s.positionStore.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	account.Position = position
	return account, nil
}

// List returns all accounts with their committed positions.
func (s *AccountService) List(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.accountStore.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		position, err := s.positionStore.Get(ctx, accounts[i].ID)
		if err != nil {
			return nil, fmt.Errorf("get position for %s: %w", accounts[i].ID, err)
		}
		accounts[i].Position = position
	}
	return accounts, nil
}

// Remove deletes an account and its position.
func (s *AccountService) Remove(ctx context.Context, id string) error {
	if _, err := s.accountStore.Get(ctx, id); err != nil {
		return err
	}
	s.evict(id)
	if err := s.positionStore.Reset(ctx, id); err != nil {
		return fmt.Errorf("reset position: %w", err)
	}
	return s.accountStore.Delete(ctx, id)
}

// Reset returns an account to the sentinel position.
func (s *AccountService) Reset(ctx context.Context, id string) error {
	if _, err := s.accountStore.Get(ctx, id); err != nil {
		return err
	}
	if err := s.positionStore.Reset(ctx, id); err != nil {
		return fmt.Errorf("reset position: %w", err)
	}
	logger.Info("Reset account %s; next poll re-enumerates", id)
	return nil
}

// ResetAll resets every account.
func (s *AccountService) ResetAll(ctx context.Context) error {
	accounts, err := s.accountStore.List(ctx)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if err := s.positionStore.Reset(ctx, a.ID); err != nil {
			return fmt.Errorf("reset %s: %w", a.ID, err)
		}
	}
	return nil
}

// SetToken replaces an account's access token.
func (s *AccountService) SetToken(ctx context.Context, id, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: token is empty", domain.ErrInvalidInput)
	}
	return s.updateConfig(ctx, id, map[string]string{domain.ConfigKeyToken: token})
}

// SetCredentials stores the tokens returned by an authorization flow.
// An empty refresh token keeps the one already stored.
func (s *AccountService) SetCredentials(ctx context.Context, id, accessToken, refreshToken string) error {
	if accessToken == "" && refreshToken == "" {
		return fmt.Errorf("%w: no tokens to store", domain.ErrInvalidInput)
	}
	values := map[string]string{domain.ConfigKeyToken: accessToken}
	if refreshToken != "" {
		values[domain.ConfigKeyRefreshToken] = refreshToken
	}
	return s.updateConfig(ctx, id, values)
}

func (s *AccountService) updateConfig(ctx context.Context, id string, values map[string]string) error {
	account, err := s.accountStore.Get(ctx, id)
	if err != nil {
		return err
	}
	if account.Config == nil {
		account.Config = make(map[string]string)
	}
	for k, v := range values {
		if v == "" {
			delete(account.Config, k)
			continue
		}
		account.Config[k] = v
	}
	if err := s.accountStore.Save(ctx, *account); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	s.evict(id)
	return nil
}

func (s *AccountService) evict(id string) {
	if s.evictor == nil {
		return
	}
	if err := s.evictor.Evict(id); err != nil {
		logger.Warn("closing connector for %s: %v", id, err)
	}
}

// ValidateAccountConfig checks the credentials an account type needs.
func ValidateAccountConfig(accountType domain.AccountType, config map[string]string) error {
	if !accountType.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedType, accountType)
	}
	if config[domain.ConfigKeyToken] != "" {
		return nil
	}
	if config[domain.ConfigKeyRefreshToken] != "" && accountType != domain.AccountTypeDropbox {
		if config[domain.ConfigKeyClientID] == "" || config[domain.ConfigKeyClientSecret] == "" {
			return fmt.Errorf("%w: refresh_token needs client_id and client_secret", domain.ErrInvalidInput)
		}
		return nil
	}
	return fmt.Errorf("%w: %s account needs a token", domain.ErrInvalidInput, accountType)
}
