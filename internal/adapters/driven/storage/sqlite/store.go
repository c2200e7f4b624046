package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/cloudpoll/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
)

// DatabaseFileName is the name of the database file inside the data directory.
const DatabaseFileName = "cloudpoll.db"

// Store is a unified SQLite-based storage that provides access to
// all metadata store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.cloudpoll/data/cloudpoll.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".cloudpoll", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFileName)

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// AccountStore returns an AccountStore interface backed by this store.
func (s *Store) AccountStore() driven.AccountStore {
	return &accountStore{store: s}
}

// PositionStore returns a PositionStore interface backed by this store.
func (s *Store) PositionStore() driven.PositionStore {
	return &positionStore{store: s}
}

// IndexStore returns an IndexStore interface backed by this store.
func (s *Store) IndexStore() driven.IndexStore {
	return &indexStore{store: s}
}

// SchedulerStore returns a SchedulerStore interface backed by this store.
func (s *Store) SchedulerStore() driven.SchedulerStore {
	return &schedulerStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}

		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Account Store ====================

// accountStore implements driven.AccountStore.
type accountStore struct {
	store *Store
}

var _ driven.AccountStore = (*accountStore)(nil)

const accountColumns = `
	a.id, a.type, a.name, a.config, a.created_at, a.updated_at, p.position, p.updated_at
	FROM accounts a LEFT JOIN positions p ON p.account_id = a.id`

// Save stores or updates an account. The position is stored separately.
func (s *accountStore) Save(ctx context.Context, account domain.Account) error {
	if account.ID == "" {
		return fmt.Errorf("%w: account id is empty", domain.ErrInvalidInput)
	}
	configJSON, err := json.Marshal(account.Config)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO accounts (id, type, name, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			config = excluded.config,
			updated_at = excluded.updated_at
	`, account.ID, string(account.Type), account.Name, string(configJSON),
		account.CreatedAt.Format(time.RFC3339Nano), account.UpdatedAt.Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("saving account: %w", err)
	}
	return nil
}

// Get retrieves an account by ID.
func (s *accountStore) Get(ctx context.Context, id string) (*domain.Account, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT"+accountColumns+" WHERE a.id = ?", id)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// List returns all accounts in the order they were added.
func (s *accountStore) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT"+accountColumns+" ORDER BY a.created_at, a.rowid")
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account //nolint:prealloc // size unknown from query
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}

	return accounts, nil
}

// Delete removes an account; its position and index entries cascade.
func (s *accountStore) Delete(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	var accountType, configJSON, createdAt, updatedAt string
	var position, lastPoll sql.NullString

	if err := row.Scan(&account.ID, &accountType, &account.Name, &configJSON,
		&createdAt, &updatedAt, &position, &lastPoll); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	account.Type = domain.AccountType(accountType)
	if err := json.Unmarshal([]byte(configJSON), &account.Config); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	account.CreatedAt = parseTime(createdAt)
	account.UpdatedAt = parseTime(updatedAt)

	account.Position = domain.SentinelPosition
	if position.Valid {
		account.Position = position.String
		account.LastPoll = parseTime(lastPoll.String)
	}

	return &account, nil
}

// ==================== Position Store ====================

// positionStore implements driven.PositionStore.
// A missing row means the account has never committed a position.
type positionStore struct {
	store *Store
}

var _ driven.PositionStore = (*positionStore)(nil)

// Get returns the committed position, or the sentinel if there is none.
func (s *positionStore) Get(ctx context.Context, accountID string) (string, error) {
	var position string
	err := s.store.db.QueryRowContext(ctx,
		"SELECT position FROM positions WHERE account_id = ?", accountID).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SentinelPosition, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading position: %w", err)
	}
	return position, nil
}

// Commit durably records a new position in a single statement.
func (s *positionStore) Commit(ctx context.Context, accountID, position string) error {
	if position == "" {
		return fmt.Errorf("%w: empty position", domain.ErrInvalidInput)
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO positions (account_id, position, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			position = excluded.position,
			updated_at = excluded.updated_at
	`, accountID, position, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("committing position: %w", err)
	}
	return nil
}

// Reset forgets the position so the next cycle enumerates from scratch.
func (s *positionStore) Reset(ctx context.Context, accountID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM positions WHERE account_id = ?", accountID)
	if err != nil {
		return fmt.Errorf("resetting position: %w", err)
	}
	return nil
}

// ==================== Index Store ====================

// indexStore implements driven.IndexStore.
type indexStore struct {
	store *Store
}

var _ driven.IndexStore = (*indexStore)(nil)

const indexColumns = `account_id, source_path, account_type, source_id, source_name,
	parent_id, source_type, local_path, details, size, updated_at`

// Upsert records a materialised item.
func (s *indexStore) Upsert(ctx context.Context, entry domain.IndexEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO index_entries (`+indexColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, source_path) DO UPDATE SET
			account_type = excluded.account_type,
			source_id = excluded.source_id,
			source_name = excluded.source_name,
			parent_id = excluded.parent_id,
			source_type = excluded.source_type,
			local_path = excluded.local_path,
			details = excluded.details,
			size = excluded.size,
			updated_at = excluded.updated_at
	`, entry.AccountID, entry.SourcePath, string(entry.AccountType), entry.SourceID, entry.SourceName,
		nullString(entry.ParentID), string(entry.SourceType), entry.LocalPath,
		nullString(entry.Details), entry.Size, entry.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving index entry: %w", err)
	}
	return nil
}

// Remove deletes the entry at sourcePath and, when recursive, everything below it.
func (s *indexStore) Remove(ctx context.Context, accountID, sourcePath string, recursive bool) error {
	query := "DELETE FROM index_entries WHERE account_id = ? AND source_path = ?"
	args := []any{accountID, sourcePath}
	if recursive {
		query = `DELETE FROM index_entries WHERE account_id = ?
			AND (source_path = ? OR substr(source_path, 1, length(?) + 1) = ? || '/')`
		args = []any{accountID, sourcePath, sourcePath, sourcePath}
	}
	if _, err := s.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("removing index entry: %w", err)
	}
	return nil
}

// List returns an account's entries ordered by path.
func (s *indexStore) List(ctx context.Context, accountID string) ([]domain.IndexEntry, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+indexColumns+` FROM index_entries
		WHERE account_id = ? ORDER BY source_path
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying index entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.IndexEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		entry, err := scanIndexEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating index entries: %w", err)
	}
	return entries, nil
}

// Get returns one entry by path.
func (s *indexStore) Get(ctx context.Context, accountID, sourcePath string) (*domain.IndexEntry, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+indexColumns+` FROM index_entries
		WHERE account_id = ? AND source_path = ?
	`, accountID, sourcePath)

	entry, err := scanIndexEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return entry, err
}

func scanIndexEntry(row rowScanner) (*domain.IndexEntry, error) {
	var entry domain.IndexEntry
	var accountType, sourceType, updatedAt string
	var parentID, details sql.NullString

	if err := row.Scan(&entry.AccountID, &entry.SourcePath, &accountType, &entry.SourceID,
		&entry.SourceName, &parentID, &sourceType, &entry.LocalPath, &details,
		&entry.Size, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning index entry: %w", err)
	}

	entry.AccountType = domain.AccountType(accountType)
	entry.SourceType = domain.SourceType(sourceType)
	entry.ParentID = parentID.String
	entry.Details = details.String
	entry.UpdatedAt = parseTime(updatedAt)
	return &entry, nil
}

// parseTime parses an RFC3339 timestamp, returning the zero time on failure.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
