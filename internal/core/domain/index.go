package domain

import "time"

// IndexEntry is one locally materialised item known to the search index.
type IndexEntry struct {
	AccountID   string
	AccountType AccountType
	SourceID    string
	SourceName  string
	SourcePath  string
	ParentID    string
	SourceType  SourceType

	// LocalPath is the absolute path on disk.
	LocalPath string

	// Details is the provider metadata from the action record.
	Details string

	Size      int64
	UpdatedAt time.Time
}
