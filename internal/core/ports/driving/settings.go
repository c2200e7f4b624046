package driving

import "github.com/custodia-labs/cloudpoll/internal/core/domain"

// SettingsService manages project settings.
type SettingsService interface {
	// Get retrieves current settings, with defaults for unset keys.
	Get() (*domain.Settings, error)

	// Save persists settings.
	Save(settings *domain.Settings) error

	// Set updates a single key (e.g. "poll.interval") after validating the result.
	Set(key, value string) error

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings
}
