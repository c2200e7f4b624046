package driven

import (
	"context"
	"io"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// ProviderFeed turns a poll position into the next batch of raw changes.
// Each account type (box, dropbox, googledrive) implements one feed shape.
type ProviderFeed interface {
	// Kind returns the feed shape.
	Kind() domain.ProviderKind

	// Poll fetches changes since position.
	// A sentinel position selects the feed's first-sync behaviour.
	// Errors must wrap domain.ErrTransientProvider or domain.ErrFatalProvider.
	Poll(ctx context.Context, position string) (*domain.FeedBatch, error)
}

// TreeEnumerator lists every item under the account root.
// Used by the cycle when a feed batch sets NeedsEnumeration.
type TreeEnumerator interface {
	Enumerate(ctx context.Context) ([]domain.RawChangeItem, error)
}

// ParentResolver resolves one hop of an item's ancestry.
// Used to rebuild paths for providers that do not report them.
type ParentResolver interface {
	ResolveParent(ctx context.Context, itemID string) (domain.ParentRef, error)
}

// DeletionInspector recovers the kind, name and path of a deleted item
// from the provider's revision history.
type DeletionInspector interface {
	InspectDeleted(ctx context.Context, item domain.RawChangeItem) (domain.RawChangeItem, error)
}

// ContentFetcher downloads the content of a file record.
type ContentFetcher interface {
	Fetch(ctx context.Context, record domain.ActionRecord) (io.ReadCloser, error)
}

// Connector is the provider-facing side of one account.
// Optional capabilities (TreeEnumerator, ParentResolver, DeletionInspector)
// are discovered with type assertions.
type Connector interface {
	ProviderFeed
	ContentFetcher

	// Type returns the account type.
	Type() domain.AccountType

	// AccountID returns the configured account ID.
	AccountID() string

	// Validate checks credentials with a lightweight provider call.
	Validate(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// FetcherLookup finds the content fetcher of an account.
type FetcherLookup interface {
	FetcherFor(ctx context.Context, accountID string) (ContentFetcher, error)
}
