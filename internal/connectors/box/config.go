package box

import (
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// Account config keys read by the Box connector.
const (
	ConfigKeyAPIURL      = "api_url"
	ConfigKeyIdleSeconds = "idle_seconds"
)

const (
	// DefaultAPIURL is the Box content API root.
	DefaultAPIURL = "https://api.box.com/2.0"

	// RootFolderID is the ID Box gives every user's root folder.
	RootFolderID = "0"

	// TrashFolderID is the pseudo-folder trashed items report as parent.
	TrashFolderID = "1"

	// DefaultWindow is how long the stream is listened to per cycle.
	DefaultWindow = 30 * time.Second

	// DefaultIdleWait is the pause between empty stream reads.
	DefaultIdleWait = 5 * time.Second

	// EventPageLimit is the number of events requested per read.
	EventPageLimit = 500

	// FolderPageLimit is the number of entries requested per folder page.
	FolderPageLimit = 1000
)

// Config holds Box connector configuration.
type Config struct {
	// APIURL is the API root without a trailing slash.
	APIURL string
	// Window bounds each listening window.
	Window time.Duration
	// IdleWait is the pause after a read that returned no events.
	IdleWait time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		APIURL:   DefaultAPIURL,
		Window:   DefaultWindow,
		IdleWait: DefaultIdleWait,
	}
}

// ParseConfig extracts configuration from an account and the project settings.
func ParseConfig(account domain.Account, settings domain.Settings) *Config {
	cfg := DefaultConfig()

	if settings.Box.Window > 0 {
		cfg.Window = settings.Box.Window
	}
	if val := account.ConfigValue(ConfigKeyAPIURL, ""); val != "" {
		cfg.APIURL = strings.TrimRight(val, "/")
	}
	if val := account.ConfigValue(ConfigKeyIdleSeconds, ""); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.IdleWait = time.Duration(n) * time.Second
		}
	}
	return cfg
}
