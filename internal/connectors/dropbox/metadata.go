package dropbox

import (
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// toRawItem converts a list_folder entry into a raw change item.
// Paths are the provider's lower-cased paths. ok is false for entries of
// an unknown type.
func toRawItem(entry files.IsMetadata) (domain.RawChangeItem, bool) {
	switch m := entry.(type) {
	case *files.FileMetadata:
		return domain.RawChangeItem{
			ID:       m.Id,
			Name:     m.Name,
			PathHint: m.PathLower,
			Kind:     domain.ItemKindFile,
			Event:    domain.EventUpload,
			Revision: m.Rev,
			Details:  m.Rev,
		}, true
	case *files.FolderMetadata:
		return domain.RawChangeItem{
			ID:       m.Id,
			Name:     m.Name,
			PathHint: m.PathLower,
			Kind:     domain.ItemKindFolder,
			Event:    domain.EventCreate,
		}, true
	case *files.DeletedMetadata:
		return domain.RawChangeItem{
			// Deleted entries carry no ID. The path stands in until the
			// revision lookup recovers it.
			ID:       m.PathLower,
			Name:     m.Name,
			PathHint: m.PathLower,
			Kind:     domain.ItemKindDeleted,
			Event:    domain.EventDelete,
		}, true
	default:
		return domain.RawChangeItem{}, false
	}
}
