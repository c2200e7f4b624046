package domain

import (
	"fmt"
	"time"
)

// PositionBackend selects where poll positions are persisted.
type PositionBackend string

const (
	// PositionBackendSQLite stores positions alongside accounts.
	PositionBackendSQLite PositionBackend = "sqlite"
	// PositionBackendFile stores one file per account.
	PositionBackendFile PositionBackend = "file"
)

// IsValid returns true if the backend is recognised.
func (b PositionBackend) IsValid() bool {
	return b == PositionBackendSQLite || b == PositionBackendFile
}

// Settings is the project configuration.
type Settings struct {
	// SyncFolder is where account trees are materialised, one acct<ID> folder each.
	SyncFolder string

	// DataDir holds the database and position files.
	DataDir string

	// PositionBackend selects the position store.
	PositionBackend PositionBackend

	Poll    PollSettings
	Box     BoxSettings
	Dropbox DropboxSettings
	Metrics MetricsSettings
	Tracing TracingSettings
}

// PollSettings configures the poll cycle.
type PollSettings struct {
	// Interval is the time between scheduled polls.
	Interval time.Duration

	// Concurrency bounds how many accounts poll at once.
	Concurrency int

	// MaxAttempts bounds fetch attempts on transient errors.
	MaxAttempts int

	// CycleTimeout bounds a single account's cycle. Zero means none.
	CycleTimeout time.Duration
}

// BoxSettings configures the event stream feed.
type BoxSettings struct {
	// Window is how long the stream is listened to per cycle.
	Window time.Duration
}

// DropboxSettings configures the cursor long-poll feed.
type DropboxSettings struct {
	// LongpollTimeout is the server-side long-poll wait.
	LongpollTimeout time.Duration
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string
}

// TracingSettings configures OTLP trace export.
type TracingSettings struct {
	// Endpoint is the collector's gRPC host:port; empty disables export.
	Endpoint string

	// Insecure disables TLS towards the collector.
	Insecure bool
}

// Dropbox long-poll bounds accepted by the provider.
const (
	MinDropboxLongpoll = 30 * time.Second
	MaxDropboxLongpoll = 480 * time.Second
)

// DefaultSettings returns sensible defaults.
func DefaultSettings() Settings {
	return Settings{
		PositionBackend: PositionBackendSQLite,
		Poll: PollSettings{
			Interval:     DefaultPollInterval,
			Concurrency:  4,
			MaxAttempts:  3,
			CycleTimeout: 30 * time.Minute,
		},
		Box:     BoxSettings{Window: 30 * time.Second},
		Dropbox: DropboxSettings{LongpollTimeout: 60 * time.Second},
	}
}

// Validate checks settings for values the engine cannot run with.
func (s *Settings) Validate() error {
	if s.SyncFolder == "" {
		return fmt.Errorf("%w: sync_folder is required", ErrInvalidInput)
	}
	if !s.PositionBackend.IsValid() {
		return fmt.Errorf("%w: unknown position_store %q", ErrInvalidInput, s.PositionBackend)
	}
	if s.Poll.Interval <= 0 {
		return fmt.Errorf("%w: poll.interval must be positive", ErrInvalidInput)
	}
	if s.Poll.Concurrency < 1 {
		return fmt.Errorf("%w: poll.concurrency must be at least 1", ErrInvalidInput)
	}
	if s.Poll.MaxAttempts < 1 {
		return fmt.Errorf("%w: poll.max_attempts must be at least 1", ErrInvalidInput)
	}
	if s.Dropbox.LongpollTimeout < MinDropboxLongpoll || s.Dropbox.LongpollTimeout > MaxDropboxLongpoll {
		return fmt.Errorf("%w: dropbox.longpoll_seconds must be between %d and %d", ErrInvalidInput,
			int(MinDropboxLongpoll.Seconds()), int(MaxDropboxLongpoll.Seconds()))
	}
	if s.Box.Window <= 0 {
		return fmt.Errorf("%w: box.window_seconds must be positive", ErrInvalidInput)
	}
	return nil
}
