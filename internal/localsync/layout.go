package localsync

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// accountDirPrefix prefixes every account folder name.
const accountDirPrefix = "acct"

// Layout maps account paths onto the sync folder.
type Layout struct {
	root string
}

// NewLayout creates a layout rooted at the sync folder.
// An empty root leaves the layout unconfigured; Resolve then fails.
func NewLayout(root string) Layout {
	if root == "" {
		return Layout{}
	}
	return Layout{root: filepath.Clean(root)}
}

// Root returns the sync folder.
func (l Layout) Root() string {
	return l.root
}

// AccountRoot returns the folder holding one account's tree.
func (l Layout) AccountRoot(accountID string) string {
	return filepath.Join(l.root, accountDirPrefix+accountID)
}

// Resolve returns the local path of an item. Paths that would leave the
// account folder, and empty account IDs, are rejected.
func (l Layout) Resolve(accountID, sourcePath string) (string, error) {
	if l.root == "" {
		return "", fmt.Errorf("%w: sync_folder is not set", domain.ErrInvalidInput)
	}
	if accountID == "" || strings.ContainsAny(accountID, `/\`) || accountID == "." || accountID == ".." {
		return "", fmt.Errorf("%w: account id %q", domain.ErrPathEscapesRoot, accountID)
	}
	rel := filepath.FromSlash(strings.Trim(sourcePath, "/"))
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", domain.ErrInvalidInput)
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", domain.ErrPathEscapesRoot, sourcePath)
	}
	return filepath.Join(l.AccountRoot(accountID), rel), nil
}

// Locate is the inverse of Resolve: it splits a local path into the
// account ID and the slash separated path below the account folder.
// ok is false for paths outside any account tree, and for account
// folders themselves.
func (l Layout) Locate(localPath string) (accountID, sourcePath string, ok bool) {
	if l.root == "" {
		return "", "", false
	}
	rel, err := filepath.Rel(l.root, filepath.Clean(localPath))
	if err != nil || !filepath.IsLocal(rel) {
		return "", "", false
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) != 2 || !strings.HasPrefix(parts[0], accountDirPrefix) || parts[1] == "" {
		return "", "", false
	}
	accountID = strings.TrimPrefix(parts[0], accountDirPrefix)
	if accountID == "" {
		return "", "", false
	}
	return accountID, parts[1], true
}
