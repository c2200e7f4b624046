package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/custodia-labs/cloudpoll/internal/connectors/google"
	"github.com/custodia-labs/cloudpoll/internal/connectors/ratelimit"
	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/logger"
)

// Ensure Connector implements the interfaces.
var (
	_ driven.Connector         = (*Connector)(nil)
	_ driven.ParentResolver    = (*Connector)(nil)
	_ driven.DeletionInspector = (*Connector)(nil)
)

// errNoToken is returned for a changes page with neither continuation token.
var errNoToken = errors.New("drive: changes page has neither nextPageToken nor newStartPageToken")

// Connector polls one Google Drive account.
type Connector struct {
	accountID   string
	config      *Config
	svc         *drive.Service
	rateLimiter *ratelimit.Limiter

	mu     sync.Mutex
	closed bool
	rootID string
}

// New creates a connector authorised with the account's OAuth credentials.
func New(ctx context.Context, account domain.Account, _ domain.Settings) (*Connector, error) {
	ctx = context.WithoutCancel(ctx)
	ts, err := google.NewTokenSource(ctx, account)
	if err != nil {
		return nil, err
	}
	cfg := ParseConfig(account)

	var opts []option.ClientOption
	if cfg.APIURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.APIURL))
	}
	svc, err := google.NewDriveService(ctx, ts, opts...)
	if err != nil {
		return nil, err
	}
	return NewWithService(account.ID, cfg, svc), nil
}

// NewWithService creates a connector over an existing Drive service.
func NewWithService(accountID string, cfg *Config, svc *drive.Service) *Connector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Connector{
		accountID:   accountID,
		config:      cfg,
		svc:         svc,
		rateLimiter: ratelimit.New(ratelimit.ProviderDrive),
	}
}

// Type returns the account type.
func (c *Connector) Type() domain.AccountType {
	return domain.AccountTypeGoogleDrive
}

// AccountID returns the account identifier.
func (c *Connector) AccountID() string {
	return c.accountID
}

// Kind returns the feed shape.
func (c *Connector) Kind() domain.ProviderKind {
	return domain.ProviderKindPageToken
}

// Validate checks the credentials with an about.get call.
func (c *Connector) Validate(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	callCtx, cancel := c.bounded(ctx)
	defer cancel()
	about, err := c.svc.About.Get().Fields("user(emailAddress)").Context(callCtx).Do()
	if err != nil {
		return c.classify(fmt.Errorf("validate credentials: %w", err))
	}
	if about.User != nil {
		logger.Debugw("drive credentials valid", "account_id", c.accountID, "user", about.User.EmailAddress)
	}
	return nil
}

// Poll fetches changes after position.
// A sentinel position lists the whole tree and returns the start page
// token. Otherwise one changes page is returned; HasMore is set while the
// provider hands out nextPageToken, and only newStartPageToken ends the
// pagination.
func (c *Connector) Poll(ctx context.Context, position string) (*domain.FeedBatch, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if domain.IsSentinel(position) {
		return c.listAll(ctx)
	}
	return c.changesPage(ctx, position)
}

// listAll enumerates every non-trashed file. The start page token is taken
// before listing so changes made during the listing are seen again by the
// next poll.
func (c *Connector) listAll(ctx context.Context) (*domain.FeedBatch, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	callCtx, cancel := c.bounded(ctx)
	start, err := c.svc.Changes.GetStartPageToken().Context(callCtx).Do()
	cancel()
	if err != nil {
		return nil, c.classify(fmt.Errorf("get start page token: %w", err))
	}
	if start.StartPageToken == "" {
		return nil, domain.Fatal(errors.New("drive: empty start page token"))
	}

	var items []domain.RawChangeItem
	pageToken := ""
	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		call := c.svc.Files.List().
			Q("trashed = false").
			PageSize(c.config.PageSize).
			Fields(listFields)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		callCtx, cancel := c.bounded(ctx)
		page, err := call.Context(callCtx).Do()
		cancel()
		if err != nil {
			return nil, c.classify(fmt.Errorf("list files: %w", err))
		}

		for _, file := range page.Files {
			if !ShouldSyncFile(file, c.config) {
				continue
			}
			item := toRawItem(file)
			item.IsFirstSync = true
			items = append(items, item)
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	logger.Debugw("drive initial listing", "account_id", c.accountID, "items", len(items))
	return &domain.FeedBatch{Items: items, NewPosition: start.StartPageToken}, nil
}

// changesPage reads one page of changes.
func (c *Connector) changesPage(ctx context.Context, token string) (*domain.FeedBatch, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	callCtx, cancel := c.bounded(ctx)
	defer cancel()
	page, err := c.svc.Changes.List(token).
		IncludeRemoved(true).
		PageSize(c.config.PageSize).
		Fields(changeFields).
		Context(callCtx).
		Do()
	if err != nil {
		return nil, c.classify(fmt.Errorf("list changes: %w", err))
	}

	items := make([]domain.RawChangeItem, 0, len(page.Changes))
	for _, change := range page.Changes {
		switch {
		case change.Removed || change.File == nil:
			items = append(items, domain.RawChangeItem{
				ID:    change.FileId,
				Kind:  domain.ItemKindDeleted,
				Event: domain.EventDelete,
			})
		case change.File.Trashed:
			items = append(items, toRawItem(change.File))
		case ShouldSyncFile(change.File, c.config):
			items = append(items, toRawItem(change.File))
		}
	}

	batch := &domain.FeedBatch{Items: items}
	switch {
	case page.NewStartPageToken != "":
		batch.NewPosition = page.NewStartPageToken
	case page.NextPageToken != "":
		batch.NewPosition = page.NextPageToken
		batch.HasMore = true
	default:
		return nil, domain.Fatal(errNoToken)
	}
	return batch, nil
}

// Fetch opens a file's content. Details holds the MIME type recorded by
// the feed; when it is missing the file is looked up first. Regular files
// are read at the record's revision when it has one.
func (c *Connector) Fetch(ctx context.Context, record domain.ActionRecord) (io.ReadCloser, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	mimeType := record.Details
	if mimeType == "" {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		callCtx, cancel := c.bounded(ctx)
		file, err := c.svc.Files.Get(record.SourceID).Fields("id, mimeType").Context(callCtx).Do()
		cancel()
		if err != nil {
			return nil, c.classify(fmt.Errorf("get file %s: %w", record.SourceID, err))
		}
		mimeType = file.MimeType
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	body, err := fetchFileContent(ctx, c.svc, record.SourceID, mimeType, record.Revision)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return nil, err
		}
		return nil, c.classify(err)
	}
	return body, nil
}

// Close marks the connector closed.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Connector) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectorClosed
	}
	return nil
}

// bounded limits one metadata call to the request timeout. Content
// downloads use the caller's context as is.
func (c *Connector) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.config.RequestTimeout)
}

func (c *Connector) classify(err error) error {
	return google.Classify(err, c.rateLimiter)
}
