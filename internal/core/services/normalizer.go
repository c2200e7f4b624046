package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/logger"
)

// MaxPathDepth bounds parent walks.
const MaxPathDepth = 256

// Drop reasons reported to the observer.
const (
	DropUnknownEvent   = "unknown_event"
	DropNormalization  = "normalization_error"
	DropDeletedInitial = "deleted_on_first_sync"
)

// ChangeNormalizer converts raw provider items into action records.
// It is safe for concurrent use; parent lookups are cached per cycle
// through a ParentCache.
type ChangeNormalizer struct{}

// NewChangeNormalizer creates a normaliser.
func NewChangeNormalizer() *ChangeNormalizer {
	return &ChangeNormalizer{}
}

// NormalizeInput carries the per-cycle collaborators of Normalize.
type NormalizeInput struct {
	// Parents resolves ancestry for items without a path hint. May be nil.
	Parents *ParentCache

	// Inspector recovers deleted-item metadata. May be nil.
	Inspector driven.DeletionInspector
}

// Normalize maps one raw item to an action record.
// ok is false when the item is intentionally dropped (unknown event, or a
// deletion seen during a first sync). err wraps domain.ErrNormalization when
// the item cannot be mapped; the caller skips it.
func (n *ChangeNormalizer) Normalize(
	ctx context.Context,
	account domain.Account,
	item domain.RawChangeItem,
	in NormalizeInput,
) (domain.ActionRecord, bool, error) {
	action, ok := classify(item)
	if !ok {
		logger.Debugw("dropping change with unknown event",
			"account_id", account.ID, "source_id", item.ID, "event", string(item.Event))
		return domain.ActionRecord{}, false, nil
	}

	if action == domain.ActionDelete && item.IsFirstSync {
		return domain.ActionRecord{}, false, nil
	}

	if action == domain.ActionDelete {
		item = n.recoverDeleted(ctx, account, item, in.Inspector)
	}

	rec := domain.ActionRecord{
		AccountID:     account.ID,
		AccountType:   account.Type,
		SourceID:      item.ID,
		SourceName:    item.Name,
		ParentID:      parentID(item),
		Action:        action,
		Revision:      item.Revision,
		Details:       item.Details,
		IsInitialSync: item.IsFirstSync,
	}

	switch {
	case action == domain.ActionMakeDirectory:
		rec.SourceType = domain.SourceTypeFolder
	case action == domain.ActionDownload:
		rec.SourceType = domain.SourceTypeFile
	case item.Kind == domain.ItemKindFolder:
		rec.SourceType = domain.SourceTypeFolder
	default:
		// Deleted items whose kind could not be recovered are treated as files.
		rec.SourceType = domain.SourceTypeFile
	}

	p, err := n.sourcePath(ctx, item, in.Parents)
	if err != nil {
		return domain.ActionRecord{}, false, fmt.Errorf("%w: item %s: %w", domain.ErrNormalization, item.ID, err)
	}
	if p == "" {
		return domain.ActionRecord{}, false, fmt.Errorf("%w: item %s has no path", domain.ErrNormalization, item.ID)
	}
	rec.SourcePath = p
	if rec.SourceName == "" {
		rec.SourceName = path.Base(p)
	}

	return rec, true, nil
}

// classify picks the action for an item.
func classify(item domain.RawChangeItem) (domain.Action, bool) {
	switch {
	case item.Event.IsDeletion() || item.Kind == domain.ItemKindDeleted:
		return domain.ActionDelete, true
	case item.Event.AffectsContent():
		if item.Kind == domain.ItemKindFolder {
			return domain.ActionMakeDirectory, true
		}
		return domain.ActionDownload, true
	default:
		return "", false
	}
}

// parentID picks the hinted parent, then the first listed parent.
func parentID(item domain.RawChangeItem) string {
	if item.ParentIDHint != "" {
		return item.ParentIDHint
	}
	if len(item.ParentIDs) > 0 && item.ParentIDs[0] != "" {
		return item.ParentIDs[0]
	}
	return domain.RootParentID
}

// recoverDeleted fills in what the feed can look up about a deleted item,
// including a stable id when the feed only reported a path. Lookup
// failures leave the item unchanged.
func (n *ChangeNormalizer) recoverDeleted(
	ctx context.Context,
	account domain.Account,
	item domain.RawChangeItem,
	inspector driven.DeletionInspector,
) domain.RawChangeItem {
	if inspector == nil || locatable(item) {
		return item
	}

	found, err := inspector.InspectDeleted(ctx, item)
	if err != nil {
		logger.Warnw("deleted item lookup failed, treating as file",
			"account_id", account.ID, "source_id", item.ID, "error", err)
		return item
	}

	if found.Kind == domain.ItemKindFile || found.Kind == domain.ItemKindFolder {
		item.Kind = found.Kind
	}
	if found.ID != "" {
		item.ID = found.ID
	}
	if item.Revision == "" {
		item.Revision = found.Revision
	}
	if item.Name == "" {
		item.Name = found.Name
	}
	if item.PathHint == "" {
		item.PathHint = found.PathHint
	}
	if item.ParentIDHint == "" && len(item.ParentIDs) == 0 {
		item.ParentIDHint = found.ParentIDHint
		item.ParentIDs = found.ParentIDs
	}
	if item.Details == "" {
		item.Details = found.Details
	}
	return item
}

// locatable reports whether a deleted item already carries its kind and
// enough to place it: a path, or a parent to walk from.
func locatable(item domain.RawChangeItem) bool {
	if item.Kind != domain.ItemKindFile && item.Kind != domain.ItemKindFolder {
		return false
	}
	return item.PathHint != "" || item.ParentIDHint != "" || len(item.ParentIDs) > 0
}

// sourcePath returns the root-relative path of an item.
func (n *ChangeNormalizer) sourcePath(ctx context.Context, item domain.RawChangeItem, parents *ParentCache) (string, error) {
	if item.PathHint != "" {
		return CleanSourcePath(item.PathHint), nil
	}

	parent := item.ParentIDHint
	if parent == "" && len(item.ParentIDs) > 0 {
		parent = item.ParentIDs[0]
	}
	if parent == "" {
		return CleanSourcePath(item.Name), nil
	}
	if parents == nil {
		return "", fmt.Errorf("no parent resolver for parent %s", parent)
	}

	dir, err := parents.Path(ctx, parent)
	if err != nil {
		return "", err
	}
	if dir == "" {
		return CleanSourcePath(item.Name), nil
	}
	return CleanSourcePath(dir + "/" + item.Name), nil
}

// CleanSourcePath converts a provider path to a root-relative slash path.
func CleanSourcePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "/")
}

// ParentCache walks and memoises parent chains for one cycle.
type ParentCache struct {
	resolver driven.ParentResolver

	mu    sync.Mutex
	refs  map[string]domain.ParentRef
	paths map[string]string
}

// NewParentCache wraps a resolver. A nil resolver yields a nil cache.
func NewParentCache(resolver driven.ParentResolver) *ParentCache {
	if resolver == nil {
		return nil
	}
	return &ParentCache{
		resolver: resolver,
		refs:     make(map[string]domain.ParentRef),
		paths:    make(map[string]string),
	}
}

// Path returns the root-relative path of a folder by walking its parents.
// The root itself yields the empty path.
func (c *ParentCache) Path(ctx context.Context, folderID string) (string, error) {
	c.mu.Lock()
	if p, ok := c.paths[folderID]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	var names []string
	seen := make(map[string]bool)
	id := folderID
	for id != "" {
		if seen[id] {
			return "", fmt.Errorf("parent cycle at %s", id)
		}
		if len(seen) >= MaxPathDepth {
			return "", fmt.Errorf("parent chain deeper than %d", MaxPathDepth)
		}
		seen[id] = true

		c.mu.Lock()
		cached, hit := c.paths[id]
		c.mu.Unlock()
		if hit {
			if cached != "" {
				names = append(names, cached)
			}
			break
		}

		ref, err := c.resolve(ctx, id)
		if err != nil {
			return "", fmt.Errorf("resolving parent %s: %w", id, err)
		}
		if ref.IsRoot {
			break
		}
		names = append(names, ref.Name)
		id = ref.ParentID
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	p := CleanSourcePath(strings.Join(names, "/"))

	c.mu.Lock()
	c.paths[folderID] = p
	c.mu.Unlock()
	return p, nil
}

func (c *ParentCache) resolve(ctx context.Context, id string) (domain.ParentRef, error) {
	c.mu.Lock()
	ref, ok := c.refs[id]
	c.mu.Unlock()
	if ok {
		return ref, nil
	}

	ref, err := c.resolver.ResolveParent(ctx, id)
	if err != nil {
		return domain.ParentRef{}, err
	}

	c.mu.Lock()
	c.refs[id] = ref
	c.mu.Unlock()
	return ref, nil
}
