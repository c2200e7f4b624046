package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/cloudpoll/internal/adapters/driven/config"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigDirEnv overrides the default configuration directory.
const ConfigDirEnv = "CPOLL_CONFIGS"

// ConfigFileName is the settings file inside the config directory.
const ConfigFileName = "cloudpoll.toml"

// ConfigStore reads cloudpoll.toml into a flat key space and writes it
// back as nested tables on every Set.
type ConfigStore struct {
	*config.Values

	writeMu  sync.Mutex
	filePath string
}

// DefaultConfigDir returns $CPOLL_CONFIGS, or ~/.cloudpoll when unset.
func DefaultConfigDir() (string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cloudpoll"), nil
}

// NewConfigStore opens (creating the directory if needed) the settings
// file in configDir, or in DefaultConfigDir when configDir is empty.
// A missing file is an empty configuration.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	s := &ConfigStore{
		Values:   config.NewValues(nil),
		filePath: filepath.Join(configDir, ConfigFileName),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory values with the file contents.
func (s *ConfigStore) Load() error {
	raw, err := os.ReadFile(s.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		s.Replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	var tree map[string]any
	if err := toml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("parsing %s: %w", s.filePath, err)
	}
	flat := make(map[string]any)
	flatten(tree, "", flat)
	s.Replace(flat)
	return nil
}

// Set stores the value and rewrites the file.
func (s *ConfigStore) Set(key string, value any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.Put(key, value)
	return s.write()
}

// Save rewrites the file from the current values.
func (s *ConfigStore) Save() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.write()
}

// Path returns the settings file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// write replaces the file through a temp file. Caller holds writeMu.
func (s *ConfigStore) write() error {
	out, err := toml.Marshal(nest(s.Snapshot()))
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, out, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

// flatten writes every leaf of tree into out under its dotted path.
func flatten(tree map[string]any, prefix string, out map[string]any) {
	for k, v := range tree {
		if prefix != "" {
			k = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(sub, k, out)
			continue
		}
		out[k] = v
	}
}

// nest turns dotted keys back into tables. When a key is both a value
// and the prefix of other keys, the value wins and the others are dropped.
func nest(flat map[string]any) map[string]any {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	root := make(map[string]any)
	for _, key := range keys {
		parts := strings.Split(key, ".")
		table, ok := descend(root, parts[:len(parts)-1])
		if ok {
			table[parts[len(parts)-1]] = flat[key]
		}
	}
	return root
}

// descend walks (creating as needed) the tables named by path.
// It fails when a segment already holds a plain value.
func descend(root map[string]any, path []string) (map[string]any, bool) {
	table := root
	for _, p := range path {
		child, exists := table[p]
		if !exists {
			next := make(map[string]any)
			table[p] = next
			table = next
			continue
		}
		next, isTable := child.(map[string]any)
		if !isTable {
			return nil, false
		}
		table = next
	}
	return table, true
}
