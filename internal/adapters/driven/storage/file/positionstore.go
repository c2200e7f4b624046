// Package file provides a file-backed PositionStore for deployments that
// keep positions outside the SQLite database.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
)

// PositionsFileName is the file holding every account's position.
const PositionsFileName = "positions.toml"

// Ensure PositionStore implements the interface.
var _ driven.PositionStore = (*PositionStore)(nil)

// positionsFile is the on-disk document.
type positionsFile struct {
	Positions map[string]string `toml:"positions"`
}

// PositionStore keeps positions in a single TOML file. Each commit rewrites
// the file through a temp file, fsync and rename, so a crash leaves either
// the old or the new document.
type PositionStore struct {
	mu   sync.Mutex
	path string
}

// NewPositionStore creates a store under dir, creating dir if needed.
func NewPositionStore(dir string) (*PositionStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating position directory: %w", err)
	}
	return &PositionStore{path: filepath.Join(dir, PositionsFileName)}, nil
}

// Path returns the positions file path.
func (s *PositionStore) Path() string {
	return s.path
}

// Get returns the committed position, or the sentinel if there is none.
func (s *PositionStore) Get(_ context.Context, accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions, err := s.read()
	if err != nil {
		return "", err
	}
	if p, ok := positions[accountID]; ok && p != "" {
		return p, nil
	}
	return domain.SentinelPosition, nil
}

// Commit durably records a new position.
func (s *PositionStore) Commit(_ context.Context, accountID, position string) error {
	if position == "" {
		return fmt.Errorf("%w: empty position", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	positions, err := s.read()
	if err != nil {
		return err
	}
	positions[accountID] = position
	return s.write(positions)
}

// Reset forgets an account's position.
func (s *PositionStore) Reset(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := positions[accountID]; !ok {
		return nil
	}
	delete(positions, accountID)
	return s.write(positions)
}

func (s *PositionStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading positions: %w", err)
	}

	var doc positionsFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing positions: %w", err)
	}
	if doc.Positions == nil {
		doc.Positions = make(map[string]string)
	}
	return doc.Positions, nil
}

func (s *PositionStore) write(positions map[string]string) error {
	data, err := toml.Marshal(positionsFile{Positions: positions})
	if err != nil {
		return fmt.Errorf("encoding positions: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".positions-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing positions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing positions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing positions: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing positions: %w", err)
	}
	return nil
}
