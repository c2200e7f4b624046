package drive

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// Account config keys read by the Drive connector.
const (
	ConfigKeyContentTypes = "content_types"
	ConfigKeyPageSize     = "page_size"
	ConfigKeyAPIURL       = "api_url"

	// ConfigKeyRequestTimeout bounds each metadata call ("30s", "2m").
	ConfigKeyRequestTimeout = "request_timeout"
)

// DefaultRequestTimeout bounds metadata calls. Downloads are not bounded.
const DefaultRequestTimeout = 60 * time.Second

// ContentType identifies what content to sync from Google Drive.
type ContentType string

const (
	// ContentFiles syncs regular files.
	ContentFiles ContentType = "files"
	// ContentDocs syncs Google Docs and Slides (exported to text).
	ContentDocs ContentType = "docs"
	// ContentSheets syncs Google Sheets (exported to CSV text).
	ContentSheets ContentType = "sheets"
)

// DefaultContentTypes is every known content type; all are synced unless
// content_types narrows the list.
var DefaultContentTypes = []ContentType{ContentFiles, ContentDocs, ContentSheets}

// Config holds Google Drive connector configuration.
type Config struct {
	// ContentTypes specifies what types of content to sync.
	// Folders and deletions are always passed through.
	ContentTypes []ContentType
	// PageSize is the page size for files.list and changes.list.
	PageSize int64
	// APIURL overrides the API endpoint (e.g. a test server).
	APIURL string
	// RequestTimeout bounds every call except content downloads.
	RequestTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ContentTypes:   DefaultContentTypes,
		PageSize:       100,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// ParseConfig reads the account's Drive settings. Unknown or repeated
// content types are ignored, page_size outside 1..1000 keeps the default,
// and so does a request_timeout that is not a positive duration.
func ParseConfig(account domain.Account) *Config {
	cfg := DefaultConfig()

	if val := account.ConfigValue(ConfigKeyContentTypes, ""); val != "" {
		types := strings.Split(val, ",")
		cfg.ContentTypes = make([]ContentType, 0, len(types))
		for _, t := range types {
			ct := ContentType(strings.TrimSpace(t))
			if slices.Contains(DefaultContentTypes, ct) && !slices.Contains(cfg.ContentTypes, ct) {
				cfg.ContentTypes = append(cfg.ContentTypes, ct)
			}
		}
	}

	if val := account.ConfigValue(ConfigKeyPageSize, ""); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > 0 && n <= 1000 {
			cfg.PageSize = n
		}
	}

	if val := account.ConfigValue(ConfigKeyRequestTimeout, ""); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			cfg.RequestTimeout = d
		}
	}

	cfg.APIURL = account.ConfigValue(ConfigKeyAPIURL, "")
	return cfg
}

// HasContentType reports whether ct is synced.
func (c *Config) HasContentType(ct ContentType) bool {
	return slices.Contains(c.ContentTypes, ct)
}
