package domain

import "time"

// AccountType identifies the cloud-storage provider behind an account.
type AccountType string

const (
	// AccountTypeBox is a Box account polled through its event stream.
	AccountTypeBox AccountType = "box"
	// AccountTypeDropbox is a Dropbox account polled through cursor long-polls.
	AccountTypeDropbox AccountType = "dropbox"
	// AccountTypeGoogleDrive is a Google Drive account polled through page tokens.
	AccountTypeGoogleDrive AccountType = "googledrive"
)

// AccountTypes lists every supported account type.
func AccountTypes() []AccountType {
	return []AccountType{AccountTypeBox, AccountTypeDropbox, AccountTypeGoogleDrive}
}

// IsValid returns true if the account type is recognised.
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeBox, AccountTypeDropbox, AccountTypeGoogleDrive:
		return true
	default:
		return false
	}
}

// Kind returns the feed shape used by the account type.
func (t AccountType) Kind() ProviderKind {
	switch t {
	case AccountTypeBox:
		return ProviderKindStream
	case AccountTypeDropbox:
		return ProviderKindCursor
	case AccountTypeGoogleDrive:
		return ProviderKindPageToken
	default:
		return ""
	}
}

// ProviderKind is the shape of a provider's change feed.
type ProviderKind string

const (
	// ProviderKindStream is an incremental event stream with a monotonic position.
	ProviderKindStream ProviderKind = "STREAM"
	// ProviderKindCursor is a long-poll plus continuation cursor.
	ProviderKindCursor ProviderKind = "CURSOR"
	// ProviderKindPageToken is a paginated change list with a start page token.
	ProviderKindPageToken ProviderKind = "PAGETOKEN"
)

// SentinelPosition is the position of an account that has never been polled.
const SentinelPosition = "0"

// IsSentinel reports whether a position means "never polled".
// Both the empty string and "0" are accepted.
func IsSentinel(position string) bool {
	return position == "" || position == SentinelPosition
}

// Account is a configured cloud-storage account.
type Account struct {
	// ID is unique within the project.
	ID string

	// Type selects the provider.
	Type AccountType

	// Name is a human-readable label.
	Name string

	// Config holds credentials and provider options (e.g. "token", "poll_folder").
	Config map[string]string

	// Position is the last committed poll position.
	// Only PositionStore.Commit changes it.
	Position string

	// LastPoll is when the last cycle committed.
	LastPoll time.Time

	// CreatedAt is when the account was registered.
	CreatedAt time.Time

	// UpdatedAt is when the account was last modified.
	UpdatedAt time.Time
}

// Kind returns the feed shape for this account.
func (a *Account) Kind() ProviderKind {
	return a.Type.Kind()
}

// NeverPolled reports whether the account has no committed position.
func (a *Account) NeverPolled() bool {
	return IsSentinel(a.Position)
}

// ConfigValue returns a config value or def when unset.
func (a *Account) ConfigValue(key, def string) string {
	if a.Config == nil {
		return def
	}
	if v, ok := a.Config[key]; ok && v != "" {
		return v
	}
	return def
}

// Account config keys shared by the connectors.
const (
	// ConfigKeyToken is an OAuth access token.
	ConfigKeyToken = "token"
	// ConfigKeyRefreshToken is an OAuth refresh token.
	ConfigKeyRefreshToken = "refresh_token"
	// ConfigKeyClientID is the OAuth client ID used for refreshes.
	ConfigKeyClientID = "client_id"
	// ConfigKeyClientSecret is the OAuth client secret used for refreshes.
	ConfigKeyClientSecret = "client_secret"
	// ConfigKeyPollFolder restricts a Dropbox account to one folder.
	ConfigKeyPollFolder = "poll_folder"
)
