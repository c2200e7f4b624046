package dropbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"

	"github.com/custodia-labs/cloudpoll/internal/connectors/ratelimit"
	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/logger"
)

// Ensure Connector implements the interfaces.
var (
	_ driven.Connector         = (*Connector)(nil)
	_ driven.DeletionInspector = (*Connector)(nil)
)

// Connector polls one Dropbox account.
type Connector struct {
	accountID   string
	config      *Config
	api         filesAPI
	longpollAPI filesAPI
	contentAPI  filesAPI
	rateLimiter *ratelimit.Limiter

	mu     sync.Mutex
	closed bool
	// folders maps a folder's lower-cased path to its id.
	folders map[string]string
}

// New creates a connector for an account holding a Dropbox access token.
func New(_ context.Context, account domain.Account, settings domain.Settings) (*Connector, error) {
	token := account.ConfigValue(domain.ConfigKeyToken, "")
	if token == "" {
		return nil, fmt.Errorf("%w: account %s has no access token", domain.ErrInvalidInput, account.ID)
	}
	cfg := ParseConfig(account, settings)

	api := files.New(dropbox.Config{
		Token:    token,
		LogLevel: dropbox.LogOff,
		Client:   &http.Client{Timeout: cfg.RequestTimeout},
	})
	longpollAPI := files.New(dropbox.Config{
		Token:    token,
		LogLevel: dropbox.LogOff,
		Client:   &http.Client{Timeout: cfg.longpollCallTimeout()},
	})
	// Downloads stream their body after the call returns, so the content
	// client has no overall timeout.
	contentAPI := files.New(dropbox.Config{
		Token:    token,
		LogLevel: dropbox.LogOff,
		Client:   &http.Client{},
	})

	c := newWithAPI(account.ID, cfg, api)
	c.longpollAPI = longpollAPI
	c.contentAPI = contentAPI
	return c, nil
}

// newWithAPI creates a connector that makes every call through api.
func newWithAPI(accountID string, cfg *Config, api filesAPI) *Connector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Connector{
		accountID:   accountID,
		config:      cfg,
		api:         api,
		longpollAPI: api,
		contentAPI:  api,
		rateLimiter: ratelimit.New(ratelimit.ProviderDropbox),
		folders:     make(map[string]string),
	}
}

// Type returns the account type.
func (c *Connector) Type() domain.AccountType {
	return domain.AccountTypeDropbox
}

// AccountID returns the account identifier.
func (c *Connector) AccountID() string {
	return c.accountID
}

// Kind returns the feed shape.
func (c *Connector) Kind() domain.ProviderKind {
	return domain.ProviderKindCursor
}

// Validate checks the token and the poll folder with a cursor request.
func (c *Connector) Validate(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if _, err := c.latestCursor(ctx); err != nil {
		return Classify(fmt.Errorf("validate credentials: %w", err))
	}
	return nil
}

// Poll fetches the changes after position.
func (c *Connector) Poll(ctx context.Context, position string) (*domain.FeedBatch, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	var (
		batch *domain.FeedBatch
		err   error
	)
	if domain.IsSentinel(position) {
		batch, err = c.listAll(ctx)
	} else {
		batch, err = c.changesSince(ctx, position)
	}
	if err != nil {
		return nil, Classify(err)
	}
	return batch, nil
}

// listAll lists the poll folder recursively. The latest cursor is taken
// before listing so changes made during the listing are seen again by the
// next poll.
func (c *Connector) listAll(ctx context.Context) (*domain.FeedBatch, error) {
	cursor, err := c.latestCursor(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.folders = make(map[string]string)
	c.mu.Unlock()

	arg := c.listFolderArg()
	arg.IncludeDeleted = false
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	page, err := call(ctx, c.config.RequestTimeout, func() (*files.ListFolderResult, error) {
		return c.api.ListFolder(arg)
	})
	if err != nil {
		return nil, fmt.Errorf("list folder %q: %w", c.config.PollFolder, err)
	}

	var items []domain.RawChangeItem
	for {
		for _, entry := range page.Entries {
			raw, ok := toRawItem(entry)
			if !ok || raw.Kind == domain.ItemKindDeleted {
				continue
			}
			raw.IsFirstSync = true
			c.track(raw)
			items = append(items, raw)
		}
		if !page.HasMore {
			break
		}
		page, err = c.continueFrom(ctx, page.Cursor)
		if err != nil {
			return nil, err
		}
	}
	if err := c.linkParents(ctx, items); err != nil {
		return nil, err
	}

	logger.Debugw("dropbox initial listing", "account_id", c.accountID, "items", len(items))
	return &domain.FeedBatch{Items: items, NewPosition: cursor}, nil
}

// changesSince long-polls the cursor and drains list_folder/continue
// when the provider reports changes.
func (c *Connector) changesSince(ctx context.Context, cursor string) (*domain.FeedBatch, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	arg := files.NewListFolderLongpollArg(cursor)
	arg.Timeout = uint64(c.config.LongpollTimeout / time.Second)
	res, err := call(ctx, c.config.longpollCallTimeout(), func() (*files.ListFolderLongpollResult, error) {
		return c.longpollAPI.ListFolderLongpoll(arg)
	})
	if err != nil {
		return nil, fmt.Errorf("longpoll: %w", err)
	}
	if res.Backoff > 0 {
		backoff := time.Duration(res.Backoff) * time.Second
		c.rateLimiter.Pause(backoff)
		logger.Debugw("dropbox asked for backoff", "account_id", c.accountID, "backoff", backoff)
	}
	if !res.Changes {
		return &domain.FeedBatch{NewPosition: cursor}, nil
	}

	var items []domain.RawChangeItem
	for {
		page, err := c.continueFrom(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, entry := range page.Entries {
			if raw, ok := toRawItem(entry); ok {
				c.track(raw)
				items = append(items, raw)
			}
		}
		if page.Cursor != "" {
			cursor = page.Cursor
		}
		if !page.HasMore {
			break
		}
	}
	if err := c.linkParents(ctx, items); err != nil {
		return nil, err
	}
	return &domain.FeedBatch{Items: items, NewPosition: cursor}, nil
}

// track records listed folders and forgets deleted paths.
func (c *Connector) track(item domain.RawChangeItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch item.Kind {
	case domain.ItemKindFolder:
		c.folders[item.PathHint] = item.ID
	case domain.ItemKindDeleted:
		delete(c.folders, item.PathHint)
	}
}

// linkParents sets the parent folder id of every item from its path.
// Items directly inside the poll folder have no parent id.
func (c *Connector) linkParents(ctx context.Context, items []domain.RawChangeItem) error {
	for i := range items {
		id, err := c.parentFolderID(ctx, items[i].PathHint)
		if err != nil {
			return err
		}
		items[i].ParentIDHint = id
	}
	return nil
}

// parentFolderID returns the id of the folder holding p. Folders not seen
// in a listing are looked up once and remembered; a parent that no
// longer exists yields "".
func (c *Connector) parentFolderID(ctx context.Context, p string) (string, error) {
	root := strings.ToLower(c.config.PollFolder)
	dir := path.Dir(p)
	if p == "" || p == root || dir == "/" || dir == "." || dir == root {
		return "", nil
	}

	c.mu.Lock()
	id, ok := c.folders[dir]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	meta, err := call(ctx, c.config.RequestTimeout, func() (files.IsMetadata, error) {
		return c.api.GetMetadata(files.NewGetMetadataArg(dir))
	})
	switch {
	case err != nil && hasTag(err, tagNotFound):
		logger.Debugw("dropbox parent folder gone", "account_id", c.accountID, "path", dir)
		return "", nil
	case err != nil:
		return "", fmt.Errorf("get metadata %s: %w", dir, err)
	}

	folder, ok := meta.(*files.FolderMetadata)
	if !ok {
		return "", nil
	}
	c.mu.Lock()
	c.folders[dir] = folder.Id
	c.mu.Unlock()
	return folder.Id, nil
}

func (c *Connector) continueFrom(ctx context.Context, cursor string) (*files.ListFolderResult, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	page, err := call(ctx, c.config.RequestTimeout, func() (*files.ListFolderResult, error) {
		return c.api.ListFolderContinue(files.NewListFolderContinueArg(cursor))
	})
	if err != nil {
		return nil, fmt.Errorf("list folder continue: %w", err)
	}
	return page, nil
}

func (c *Connector) latestCursor(ctx context.Context) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	res, err := call(ctx, c.config.RequestTimeout, func() (*files.ListFolderGetLatestCursorResult, error) {
		return c.api.ListFolderGetLatestCursor(c.listFolderArg())
	})
	if err != nil {
		return "", fmt.Errorf("get latest cursor: %w", err)
	}
	return res.Cursor, nil
}

func (c *Connector) listFolderArg() *files.ListFolderArg {
	arg := files.NewListFolderArg(c.config.PollFolder)
	arg.Recursive = true
	arg.IncludeDeleted = true
	return arg
}

// InspectDeleted recovers the kind of a deleted path from its revision
// history. A path whose revisions cannot be listed because it is not a
// file was a folder.
func (c *Connector) InspectDeleted(ctx context.Context, item domain.RawChangeItem) (domain.RawChangeItem, error) {
	if err := c.checkOpen(); err != nil {
		return item, err
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return item, fmt.Errorf("rate limit wait: %w", err)
	}

	p := apiPath(item.PathHint)
	res, err := call(ctx, c.config.RequestTimeout, func() (*files.ListRevisionsResult, error) {
		return c.api.ListRevisions(files.NewListRevisionsArg(p))
	})
	switch {
	case err != nil && hasTag(err, tagNotFile):
		item.Kind = domain.ItemKindFolder
		item.Details = domain.DeletionDetails
		return item, nil
	case err != nil:
		return item, Classify(fmt.Errorf("list revisions %s: %w", p, err))
	case len(res.Entries) == 0:
		return item, fmt.Errorf("list revisions %s: no revisions", p)
	}

	last := res.Entries[0]
	if last.Id != "" {
		item.ID = last.Id
	}
	item.Kind = domain.ItemKindFile
	item.Revision = last.Rev
	item.Details = last.Rev
	if item.Name == "" {
		item.Name = last.Name
	}
	return item, nil
}

// Fetch downloads a file, pinned to the record's revision when there is
// one. Records without a revision fall back to a revision held in Details.
func (c *Connector) Fetch(ctx context.Context, record domain.ActionRecord) (io.ReadCloser, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	target := apiPath(record.SourcePath)
	rev := record.Revision
	if rev == "" {
		rev = record.Details
	}
	if rev != "" && !strings.ContainsAny(rev, "/{ ") {
		target = "rev:" + rev
	}

	type download struct {
		meta *files.FileMetadata
		body io.ReadCloser
	}
	res, err := call(ctx, c.config.RequestTimeout, func() (download, error) {
		meta, body, err := c.contentAPI.Download(files.NewDownloadArg(target))
		return download{meta, body}, err
	})
	if err != nil {
		return nil, Classify(fmt.Errorf("download %s: %w", target, err))
	}
	if res.body == nil {
		return nil, errors.New("download returned no content")
	}
	return res.body, nil
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
