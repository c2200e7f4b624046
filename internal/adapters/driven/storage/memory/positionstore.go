package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
)

// Ensure PositionStore implements the interface.
var _ driven.PositionStore = (*PositionStore)(nil)

// PositionStore is an in-memory implementation of driven.PositionStore.
// Positions do not survive the process.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]string
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		positions: make(map[string]string),
	}
}

// Get returns the committed position, or the sentinel if there is none.
func (s *PositionStore) Get(_ context.Context, accountID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.positions[accountID]; ok {
		return p, nil
	}
	return domain.SentinelPosition, nil
}

// Commit records a new position.
func (s *PositionStore) Commit(_ context.Context, accountID, position string) error {
	if position == "" {
		return fmt.Errorf("%w: empty position", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[accountID] = position
	return nil
}

// Reset forgets an account's position.
func (s *PositionStore) Reset(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, accountID)
	return nil
}
