package dropbox

import (
	"strings"
	"time"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

const (
	// DefaultLongpollTimeout is the server-side long-poll wait.
	DefaultLongpollTimeout = 60 * time.Second

	// DefaultRequestTimeout bounds every other API call.
	DefaultRequestTimeout = 60 * time.Second

	// longpollJitter covers the random delay Dropbox adds to long-polls.
	longpollJitter = 90 * time.Second
)

// Config holds Dropbox connector configuration.
type Config struct {
	// PollFolder is the API path listed and long-polled; "" is the root.
	PollFolder string
	// LongpollTimeout is passed to list_folder/longpoll.
	LongpollTimeout time.Duration
	// RequestTimeout bounds non long-poll calls.
	RequestTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LongpollTimeout: DefaultLongpollTimeout,
		RequestTimeout:  DefaultRequestTimeout,
	}
}

// ParseConfig extracts configuration from an account and the project settings.
func ParseConfig(account domain.Account, settings domain.Settings) *Config {
	cfg := DefaultConfig()
	cfg.PollFolder = apiPath(account.ConfigValue(domain.ConfigKeyPollFolder, ""))

	if t := settings.Dropbox.LongpollTimeout; t >= domain.MinDropboxLongpoll && t <= domain.MaxDropboxLongpoll {
		cfg.LongpollTimeout = t
	}
	return cfg
}

// longpollCallTimeout bounds the client side of a long-poll.
func (c *Config) longpollCallTimeout() time.Duration {
	return c.LongpollTimeout + longpollJitter
}

// apiPath converts a path to the API form: "" for the root, otherwise a
// single leading slash and no trailing one.
func apiPath(p string) string {
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
