package driven

import "time"

// ConfigStore is the flat, dot-keyed settings space ("poll.interval").
// Typed getters return the zero value for missing keys and for values
// of the wrong type.
type ConfigStore interface {
	Get(key string) (any, bool)
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool

	// GetDuration accepts "5m" style strings and whole seconds.
	GetDuration(key string) time.Duration

	// Set stores a value. File-backed stores write it through at once.
	Set(key string, value any) error

	// Save flushes the current values to the backing file, if any.
	Save() error

	// Path names the backing file; callers derive the data directory from it.
	Path() string
}
