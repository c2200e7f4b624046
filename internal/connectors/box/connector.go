package box

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/custodia-labs/cloudpoll/internal/connectors/oauth"
	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/logger"
)

// Ensure Connector implements the interfaces.
var (
	_ driven.Connector      = (*Connector)(nil)
	_ driven.TreeEnumerator = (*Connector)(nil)
)

// Connector polls one Box account.
type Connector struct {
	accountID string
	config    *Config
	client    *Client

	mu           sync.Mutex
	closed       bool
	lastPosition string
}

// New creates a connector authorised with the account's OAuth credentials.
func New(ctx context.Context, account domain.Account, settings domain.Settings) (*Connector, error) {
	ts, err := oauth.TokenSource(context.WithoutCancel(ctx), account, oauth.BoxEndpoint)
	if err != nil {
		return nil, err
	}
	httpClient := oauth.NewHTTPClient(context.WithoutCancel(ctx), ts, 0)
	return NewWithClient(account.ID, ParseConfig(account, settings), httpClient), nil
}

// NewWithClient creates a connector over an already authorised HTTP client.
func NewWithClient(accountID string, cfg *Config, httpClient *http.Client) *Connector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Connector{
		accountID: accountID,
		config:    cfg,
		client:    NewClient(httpClient, cfg.APIURL),
	}
}

// Type returns the account type.
func (c *Connector) Type() domain.AccountType {
	return domain.AccountTypeBox
}

// AccountID returns the account identifier.
func (c *Connector) AccountID() string {
	return c.accountID
}

// Kind returns the feed shape.
func (c *Connector) Kind() domain.ProviderKind {
	return domain.ProviderKindStream
}

// Validate checks the credentials against /users/me.
func (c *Connector) Validate(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	var me struct {
		ID    string `json:"id"`
		Login string `json:"login"`
	}
	if err := c.client.getJSON(ctx, usersMePath, nil, &me); err != nil {
		return Classify(fmt.Errorf("validate credentials: %w", err))
	}
	logger.Debugw("box credentials valid", "account_id", c.accountID, "login", me.Login)
	return nil
}

// Poll fetches the events after position.
// A sentinel position returns the current stream position and asks the
// cycle to enumerate the tree.
func (c *Connector) Poll(ctx context.Context, position string) (*domain.FeedBatch, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	if domain.IsSentinel(position) {
		now, err := c.currentPosition(ctx)
		if err != nil {
			return nil, Classify(err)
		}
		c.onNextPosition(now)
		return &domain.FeedBatch{NewPosition: now, NeedsEnumeration: true}, nil
	}

	items, next, err := c.listen(ctx, position)
	if err != nil {
		return nil, Classify(err)
	}
	return &domain.FeedBatch{Items: items, NewPosition: next}, nil
}

// currentPosition asks Box for the position of "now".
func (c *Connector) currentPosition(ctx context.Context) (string, error) {
	var resp eventsResponse
	q := url.Values{"stream_position": {streamPositionNow}, "stream_type": {streamTypeChanges}}
	if err := c.client.getJSON(ctx, eventsPath, q, &resp); err != nil {
		return "", fmt.Errorf("get current stream position: %w", err)
	}
	if resp.NextStreamPosition == "" {
		return "", fmt.Errorf("%w: no next_stream_position", ErrMalformedResponse)
	}
	return string(resp.NextStreamPosition), nil
}

// listen reads the event stream for one window. Reads that return events
// are followed immediately; empty reads wait IdleWait. Events are buffered
// in stream order and duplicates (same event_id) are dropped.
func (c *Connector) listen(ctx context.Context, position string) ([]domain.RawChangeItem, string, error) {
	deadline := time.Now().Add(c.config.Window)
	seen := make(map[string]struct{})
	var items []domain.RawChangeItem

	for {
		var resp eventsResponse
		q := url.Values{
			"stream_position": {position},
			"stream_type":     {streamTypeChanges},
			"limit":           {strconv.Itoa(EventPageLimit)},
		}
		if err := c.client.getJSON(ctx, eventsPath, q, &resp); err != nil {
			return nil, "", fmt.Errorf("read events from %s: %w", position, err)
		}

		for i := range resp.Entries {
			ev := &resp.Entries[i]
			if ev.ID != "" {
				if _, dup := seen[ev.ID]; dup {
					continue
				}
				seen[ev.ID] = struct{}{}
			}
			raw, ok := ev.toRawItem()
			if !ok {
				logger.Debugw("skipping box event without item source",
					"account_id", c.accountID, "event_id", ev.ID, "event_type", ev.EventType)
				continue
			}
			items = append(items, raw)
		}

		if resp.NextStreamPosition != "" {
			position = string(resp.NextStreamPosition)
			c.onNextPosition(position)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return items, position, nil
		}
		if resp.ChunkSize > 0 {
			continue
		}

		wait := min(c.config.IdleWait, remaining)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, "", ctx.Err()
		case <-timer.C:
		}
	}
}

// onNextPosition records each position the stream announces.
func (c *Connector) onNextPosition(position string) {
	c.mu.Lock()
	c.lastPosition = position
	c.mu.Unlock()
	logger.Debugw("box next stream position", "account_id", c.accountID, "position", position)
}

// LastPosition returns the most recent position announced by the stream.
func (c *Connector) LastPosition() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPosition
}

// Enumerate lists every file and folder under the root folder, parents
// before children.
func (c *Connector) Enumerate(ctx context.Context) ([]domain.RawChangeItem, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	var items []domain.RawChangeItem
	if err := c.walk(ctx, RootFolderID, "", &items); err != nil {
		return nil, Classify(err)
	}
	return items, nil
}

func (c *Connector) walk(ctx context.Context, folderID, folderPath string, out *[]domain.RawChangeItem) error {
	parentID := folderID
	if folderID == RootFolderID {
		parentID = ""
	}

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var page folderItemsResponse
		q := url.Values{
			"fields": {folderItemFields},
			"limit":  {strconv.Itoa(FolderPageLimit)},
			"offset": {strconv.Itoa(offset)},
		}
		if err := c.client.getJSON(ctx, fmt.Sprintf(folderItemsPathFormat, folderID), q, &page); err != nil {
			return fmt.Errorf("list folder %s: %w", folderID, err)
		}

		for _, rawEntry := range page.Entries {
			var it item
			if err := json.Unmarshal(rawEntry, &it); err != nil {
				return fmt.Errorf("%w: folder %s entry: %w", ErrMalformedResponse, folderID, err)
			}
			if it.Type != itemTypeFile && it.Type != itemTypeFolder {
				continue
			}

			itemPath := path.Join(folderPath, it.Name)
			*out = append(*out, domain.RawChangeItem{
				ID:           it.ID,
				Name:         it.Name,
				PathHint:     itemPath,
				ParentIDHint: parentID,
				Kind:         it.kind(),
				Event:        enumeratedEvent(it.Type),
				Revision:     it.ETag,
				Details:      string(rawEntry),
				IsFirstSync:  true,
			})

			if it.Type == itemTypeFolder {
				if err := c.walk(ctx, it.ID, itemPath, out); err != nil {
					return err
				}
			}
		}

		offset += len(page.Entries)
		if len(page.Entries) == 0 || offset >= page.TotalCount {
			return nil
		}
	}
}

func enumeratedEvent(itemType string) domain.EventType {
	if itemType == itemTypeFolder {
		return domain.EventCreate
	}
	return domain.EventUpload
}

// Fetch downloads a file's current content.
func (c *Connector) Fetch(ctx context.Context, record domain.ActionRecord) (io.ReadCloser, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	body, err := c.client.download(ctx, fmt.Sprintf(fileContentPathFormat, url.PathEscape(record.SourceID)))
	if err != nil {
		return nil, Classify(fmt.Errorf("download file %s: %w", record.SourceID, err))
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
