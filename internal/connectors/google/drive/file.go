package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"

	"github.com/custodia-labs/cloudpoll/internal/connectors/google"
	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// Google Workspace MIME types.
const (
	MimeTypeGoogleDoc    = "application/vnd.google-apps.document"
	MimeTypeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypeGoogleSlides = "application/vnd.google-apps.presentation"
	MimeTypeFolder       = "application/vnd.google-apps.folder"
	mimeTypeGooglePrefix = "application/vnd.google-apps."
)

// Export formats for Google Workspace files.
const (
	ExportMimeText = "text/plain"
	ExportMimeCSV  = "text/csv"
)

// Field masks.
const (
	fileFields   = "id, name, mimeType, parents, trashed, headRevisionId, size"
	listFields   = "nextPageToken, files(" + fileFields + ")"
	changeFields = "nextPageToken, newStartPageToken, changes(fileId, removed, file(" + fileFields + "))"
	parentFields = "id, name, parents"
)

// exportFormat returns the export MIME type of a Workspace file.
// ok is false for regular files.
func exportFormat(mimeType string) (string, bool) {
	switch mimeType {
	case MimeTypeGoogleDoc, MimeTypeGoogleSlides:
		return ExportMimeText, true
	case MimeTypeGoogleSheet:
		return ExportMimeCSV, true
	default:
		return "", false
	}
}

func isWorkspaceFile(mimeType string) bool {
	return strings.HasPrefix(mimeType, mimeTypeGooglePrefix)
}

// ShouldSyncFile checks if a file should be synced based on config.
// Folders always sync so their children have somewhere to land.
func ShouldSyncFile(file *drive.File, cfg *Config) bool {
	if file == nil {
		return false
	}
	switch {
	case file.MimeType == MimeTypeFolder:
		return true
	case file.MimeType == MimeTypeGoogleDoc, file.MimeType == MimeTypeGoogleSlides:
		return cfg.HasContentType(ContentDocs)
	case file.MimeType == MimeTypeGoogleSheet:
		return cfg.HasContentType(ContentSheets)
	case isWorkspaceFile(file.MimeType):
		// Forms, drawings, shortcuts and the like have no downloadable content.
		return false
	default:
		return cfg.HasContentType(ContentFiles)
	}
}

// toRawItem converts a Drive file into an upsert or trash change item.
// Details carries the MIME type so the fetcher knows whether to export.
func toRawItem(file *drive.File) domain.RawChangeItem {
	item := domain.RawChangeItem{
		ID:        file.Id,
		Name:      file.Name,
		ParentIDs: file.Parents,
		Kind:      domain.ItemKindFile,
		Event:     domain.EventUpload,
		Revision:  file.HeadRevisionId,
		Details:   file.MimeType,
	}
	if file.MimeType == MimeTypeFolder {
		item.Kind = domain.ItemKindFolder
		item.Event = domain.EventCreate
	}
	if file.Trashed {
		item.Event = domain.EventTrash
		if item.Kind == domain.ItemKindFolder {
			item.Details = domain.DeletionDetails
		}
	}
	return item
}

// fetchFileContent opens a file's content: Workspace files are exported,
// everything else is downloaded as is. A non-empty revision pins the
// download; a revision Drive no longer keeps falls back to the head.
func fetchFileContent(ctx context.Context, svc *drive.Service, fileID, mimeType, revision string) (io.ReadCloser, error) {
	if export, ok := exportFormat(mimeType); ok {
		resp, err := svc.Files.Export(fileID, export).Context(ctx).Download()
		if err != nil {
			return nil, fmt.Errorf("export file %s as %s: %w", fileID, export, err)
		}
		return resp.Body, nil
	}
	if isWorkspaceFile(mimeType) {
		return nil, fmt.Errorf("%w: %s has no exportable content (%s)", domain.ErrInvalidInput, fileID, mimeType)
	}

	if revision != "" {
		resp, err := svc.Revisions.Get(fileID, revision).Context(ctx).Download()
		if err == nil {
			return resp.Body, nil
		}
		if !errors.Is(google.WrapError(err), google.ErrNotFound) {
			return nil, fmt.Errorf("download file %s revision %s: %w", fileID, revision, err)
		}
	}

	resp, err := svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	return resp.Body, nil
}
