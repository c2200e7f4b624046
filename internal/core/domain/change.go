package domain

import "fmt"

// ItemKind is the provider-reported kind of a changed item.
type ItemKind string

const (
	// ItemKindFile is a regular file.
	ItemKindFile ItemKind = "file"
	// ItemKindFolder is a folder.
	ItemKindFolder ItemKind = "folder"
	// ItemKindDeleted is an item whose kind is no longer known.
	ItemKindDeleted ItemKind = "deleted"
)

// EventType is the canonical change event.
type EventType string

const (
	EventUpload   EventType = "upload"
	EventCreate   EventType = "create"
	EventEdit     EventType = "edit"
	EventUndelete EventType = "undelete"
	EventCopy     EventType = "copy"
	EventRename   EventType = "rename"
	EventMove     EventType = "move"
	EventTrash    EventType = "trash"
	EventDelete   EventType = "delete"
	EventUnknown  EventType = "unknown"
)

// AffectsContent reports whether the event (re)materialises an item locally.
func (e EventType) AffectsContent() bool {
	switch e {
	case EventUpload, EventCreate, EventEdit, EventUndelete, EventCopy, EventRename, EventMove:
		return true
	default:
		return false
	}
}

// IsDeletion reports whether the event removes an item.
func (e EventType) IsDeletion() bool {
	return e == EventTrash || e == EventDelete
}

// RawChangeItem is one change as reported by a provider feed.
// It lives only for the duration of a cycle.
type RawChangeItem struct {
	// ID is the provider's stable item identifier.
	ID string

	// Name is the item's own name.
	Name string

	// PathHint is a provider-supplied full path, if any.
	PathHint string

	// ParentIDHint is the provider-supplied parent, if any.
	ParentIDHint string

	// ParentIDs lists every parent for multi-parent providers, in provider order.
	ParentIDs []string

	// Kind is file, folder or deleted.
	Kind ItemKind

	// Event is the canonical change event.
	Event EventType

	// Revision is the provider's revision identifier, if any.
	Revision string

	// Details is opaque metadata carried through to the action record.
	Details string

	// IsFirstSync marks items emitted by a full enumeration.
	IsFirstSync bool
}

// Action is what a handler does locally.
type Action string

const (
	ActionDownload      Action = "download"
	ActionMakeDirectory Action = "make_directory"
	ActionDelete        Action = "delete"
)

// SourceType is the local shape of an item.
type SourceType string

const (
	SourceTypeFile   SourceType = "file"
	SourceTypeFolder SourceType = "folder"
)

// RootParentID marks an item whose parent is the sync root.
const RootParentID = "none"

// DeletionDetails marks deletions that remove a whole subtree.
const DeletionDetails = "remove_children"

// ActionRecord is the canonical, provider-independent unit of work.
type ActionRecord struct {
	AccountID   string
	AccountType AccountType

	// SourceID is the provider's item identifier.
	SourceID string

	// SourceName is the item's own name.
	SourceName string

	// SourcePath is slash separated and relative to the account root,
	// with no leading or trailing slash.
	SourcePath string

	// ParentID is the parent item, or RootParentID.
	ParentID string

	SourceType SourceType
	Action     Action

	// Revision pins the provider version the record was produced from.
	// Empty when the feed reports none.
	Revision string

	// Details is opaque provider metadata (revision, metadata JSON, deletion marker).
	Details string

	// IsInitialSync marks records produced by a full enumeration.
	IsInitialSync bool
}

// Validate checks the action/type invariants of a record.
func (r *ActionRecord) Validate() error {
	if r.AccountID == "" || r.SourceID == "" {
		return fmt.Errorf("%w: record needs account and source id", ErrInvalidInput)
	}
	if r.SourcePath == "" {
		return fmt.Errorf("%w: record %s has no source path", ErrInvalidInput, r.SourceID)
	}
	switch r.Action {
	case ActionDownload:
		if r.SourceType != SourceTypeFile {
			return fmt.Errorf("%w: download of non-file %s", ErrInvalidInput, r.SourceID)
		}
	case ActionMakeDirectory:
		if r.SourceType != SourceTypeFolder {
			return fmt.Errorf("%w: make_directory of non-folder %s", ErrInvalidInput, r.SourceID)
		}
	case ActionDelete:
		if r.SourceType != SourceTypeFile && r.SourceType != SourceTypeFolder {
			return fmt.Errorf("%w: delete of %s without source type", ErrInvalidInput, r.SourceID)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidInput, r.Action)
	}
	return nil
}
