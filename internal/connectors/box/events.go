package box

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// Box event types, as they appear in the event_type field.
const (
	EventItemUpload           = "ITEM_UPLOAD"
	EventUpload               = "UPLOAD"
	EventItemCreate           = "ITEM_CREATE"
	EventEdit                 = "EDIT"
	EventItemModify           = "ITEM_MODIFY"
	EventItemUndeleteViaTrash = "ITEM_UNDELETE_VIA_TRASH"
	EventUndelete             = "UNDELETE"
	EventItemCopy             = "ITEM_COPY"
	EventItemRename           = "ITEM_RENAME"
	EventItemMove             = "ITEM_MOVE"
	EventItemTrash            = "ITEM_TRASH"
	EventDelete               = "DELETE"
)

const (
	streamPositionNow = "now"
	streamTypeChanges = "changes"

	itemTypeFile   = "file"
	itemTypeFolder = "folder"

	eventsPath            = "/events"
	usersMePath           = "/users/me"
	folderItemsPathFormat = "/folders/%s/items"
	fileContentPathFormat = "/files/%s/content"
	folderItemFields      = "id,type,name,etag,sequence_id,size,modified_at,parent"
)

// MapEventType converts a Box event type to the canonical event.
func MapEventType(eventType string) domain.EventType {
	switch eventType {
	case EventItemUpload, EventUpload:
		return domain.EventUpload
	case EventItemCreate:
		return domain.EventCreate
	case EventEdit, EventItemModify:
		return domain.EventEdit
	case EventItemUndeleteViaTrash, EventUndelete:
		return domain.EventUndelete
	case EventItemCopy:
		return domain.EventCopy
	case EventItemRename:
		return domain.EventRename
	case EventItemMove:
		return domain.EventMove
	case EventItemTrash:
		return domain.EventTrash
	case EventDelete:
		return domain.EventDelete
	default:
		return domain.EventUnknown
	}
}

// StreamPosition is a next_stream_position value. Box sends it as a JSON
// number too large for float64, or as a string.
type StreamPosition string

// UnmarshalJSON accepts both number and string encodings.
func (p *StreamPosition) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = StreamPosition(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("stream position %s: %w", data, err)
	}
	*p = StreamPosition(n.String())
	return nil
}

// eventsResponse is the body of GET /events.
type eventsResponse struct {
	ChunkSize          int            `json:"chunk_size"`
	NextStreamPosition StreamPosition `json:"next_stream_position"`
	Entries            []event        `json:"entries"`
}

// event is one entry of the event stream.
type event struct {
	ID        string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Source    json.RawMessage `json:"source"`
}

// miniFolder is a folder reference inside an item.
type miniFolder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// item is the subset of a Box file or folder object the feed needs.
type item struct {
	Type           string      `json:"type"`
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	ETag           string      `json:"etag"`
	Size           int64       `json:"size"`
	Parent         *miniFolder `json:"parent"`
	PathCollection *struct {
		Entries []miniFolder `json:"entries"`
	} `json:"path_collection"`
}

// folderItemsResponse is one page of GET /folders/{id}/items.
type folderItemsResponse struct {
	TotalCount int               `json:"total_count"`
	Offset     int               `json:"offset"`
	Entries    []json.RawMessage `json:"entries"`
}

// kind maps a Box item type to the item kind.
func (it *item) kind() domain.ItemKind {
	switch it.Type {
	case itemTypeFolder:
		return domain.ItemKindFolder
	case itemTypeFile:
		return domain.ItemKindFile
	default:
		return domain.ItemKindFile
	}
}

// fullPath joins the item's ancestry and name, skipping the root and trash
// pseudo-folders.
func (it *item) fullPath() string {
	var segments []string
	if it.PathCollection != nil {
		for _, f := range it.PathCollection.Entries {
			if f.ID == RootFolderID || f.ID == TrashFolderID {
				continue
			}
			segments = append(segments, f.Name)
		}
	}
	segments = append(segments, it.Name)
	return strings.Trim(path.Join(segments...), "/")
}

// parentID returns the parent folder, empty for the root.
func (it *item) parentID() string {
	if it.Parent == nil || it.Parent.ID == RootFolderID {
		return ""
	}
	return it.Parent.ID
}

// toRawItem converts a stream event into a raw change item.
// ok is false for events without a file or folder source.
func (e *event) toRawItem() (domain.RawChangeItem, bool) {
	if len(e.Source) == 0 {
		return domain.RawChangeItem{}, false
	}
	var src item
	if err := json.Unmarshal(e.Source, &src); err != nil {
		return domain.RawChangeItem{}, false
	}
	if src.ID == "" || (src.Type != itemTypeFile && src.Type != itemTypeFolder) {
		return domain.RawChangeItem{}, false
	}

	return domain.RawChangeItem{
		ID:           src.ID,
		Name:         src.Name,
		PathHint:     src.fullPath(),
		ParentIDHint: src.parentID(),
		Kind:         src.kind(),
		Event:        MapEventType(e.EventType),
		Revision:     src.ETag,
		Details:      string(e.Source),
	}, true
}
