package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
)

// Ensure IndexStore implements the interface.
var _ driven.IndexStore = (*IndexStore)(nil)

// IndexStore is an in-memory implementation of driven.IndexStore.
type IndexStore struct {
	mu sync.RWMutex
	// entries maps account ID -> source path -> entry.
	entries map[string]map[string]domain.IndexEntry
}

// NewIndexStore creates a new in-memory index store.
func NewIndexStore() *IndexStore {
	return &IndexStore{
		entries: make(map[string]map[string]domain.IndexEntry),
	}
}

// Upsert records a materialised item.
func (s *IndexStore) Upsert(_ context.Context, entry domain.IndexEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byPath, ok := s.entries[entry.AccountID]
	if !ok {
		byPath = make(map[string]domain.IndexEntry)
		s.entries[entry.AccountID] = byPath
	}
	byPath[entry.SourcePath] = entry
	return nil
}

// Remove deletes the entry at sourcePath and, when recursive, everything below it.
func (s *IndexStore) Remove(_ context.Context, accountID, sourcePath string, recursive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPath := s.entries[accountID]
	delete(byPath, sourcePath)
	if !recursive {
		return nil
	}
	prefix := sourcePath + "/"
	for p := range byPath {
		if strings.HasPrefix(p, prefix) {
			delete(byPath, p)
		}
	}
	return nil
}

// List returns an account's entries ordered by path.
func (s *IndexStore) List(_ context.Context, accountID string) ([]domain.IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byPath := s.entries[accountID]
	result := make([]domain.IndexEntry, 0, len(byPath))
	for _, e := range byPath {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SourcePath < result[j].SourcePath })
	return result, nil
}

// Get returns one entry by path.
func (s *IndexStore) Get(_ context.Context, accountID, sourcePath string) (*domain.IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[accountID][sourcePath]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}
