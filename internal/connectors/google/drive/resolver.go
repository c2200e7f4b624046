package drive

import (
	"context"
	"fmt"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// rootAlias is the ID alias Drive accepts for the user's My Drive root.
const rootAlias = "root"

// ResolveParent looks up one hop of an item's ancestry.
// Only the first parent is followed.
func (c *Connector) ResolveParent(ctx context.Context, itemID string) (domain.ParentRef, error) {
	rootID, err := c.root(ctx)
	if err != nil {
		return domain.ParentRef{}, err
	}
	if itemID == rootID || itemID == rootAlias {
		return domain.ParentRef{ID: itemID, IsRoot: true}, nil
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return domain.ParentRef{}, fmt.Errorf("rate limit wait: %w", err)
	}
	callCtx, cancel := c.bounded(ctx)
	defer cancel()
	file, err := c.svc.Files.Get(itemID).Fields(parentFields).Context(callCtx).Do()
	if err != nil {
		return domain.ParentRef{}, c.classify(fmt.Errorf("get parent %s: %w", itemID, err))
	}

	ref := domain.ParentRef{ID: file.Id, Name: file.Name}
	if len(file.Parents) > 0 {
		ref.ParentID = file.Parents[0]
	}
	return ref, nil
}

// root returns the ID of My Drive, fetched once.
func (c *Connector) root(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.rootID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	callCtx, cancel := c.bounded(ctx)
	defer cancel()
	file, err := c.svc.Files.Get(rootAlias).Fields("id").Context(callCtx).Do()
	if err != nil {
		return "", c.classify(fmt.Errorf("get root folder: %w", err))
	}

	c.mu.Lock()
	c.rootID = file.Id
	c.mu.Unlock()
	return file.Id, nil
}

// InspectDeleted recovers a removed item's name, kind and parents from its
// last revision's metadata.
func (c *Connector) InspectDeleted(ctx context.Context, item domain.RawChangeItem) (domain.RawChangeItem, error) {
	if err := c.checkOpen(); err != nil {
		return item, err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return item, fmt.Errorf("rate limit wait: %w", err)
	}
	callCtx, cancel := c.bounded(ctx)
	revs, err := c.svc.Revisions.List(item.ID).Fields("revisions(id)").Context(callCtx).Do()
	cancel()
	if err != nil {
		return item, c.classify(fmt.Errorf("list revisions %s: %w", item.ID, err))
	}
	if len(revs.Revisions) == 0 {
		return item, fmt.Errorf("list revisions %s: no revisions", item.ID)
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return item, fmt.Errorf("rate limit wait: %w", err)
	}
	callCtx, cancel = c.bounded(ctx)
	file, err := c.svc.Files.Get(item.ID).Fields("id, name, mimeType, parents").Context(callCtx).Do()
	cancel()
	if err != nil {
		return item, c.classify(fmt.Errorf("get deleted file %s: %w", item.ID, err))
	}

	item.Name = file.Name
	item.ParentIDs = file.Parents
	item.Revision = revs.Revisions[0].Id
	if file.MimeType == MimeTypeFolder {
		item.Kind = domain.ItemKindFolder
		item.Details = domain.DeletionDetails
	} else {
		item.Kind = domain.ItemKindFile
	}
	return item, nil
}
