package localsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/core/services"
	"github.com/custodia-labs/cloudpoll/internal/logger"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644

	// partialSuffix marks in-flight downloads. The listener ignores them.
	partialSuffix = ".partial"
)

// Handlers applies action records to the local tree.
type Handlers struct {
	layout   Layout
	fetchers driven.FetcherLookup
	index    driven.IndexNotifier
	now      func() time.Time
}

// NewHandlers creates handlers writing under layout. index may be nil.
func NewHandlers(layout Layout, fetchers driven.FetcherLookup, index driven.IndexNotifier) *Handlers {
	return &Handlers{
		layout:   layout,
		fetchers: fetchers,
		index:    index,
		now:      time.Now,
	}
}

// RouterHandlers returns the handler set for services.NewActionRouter.
func (h *Handlers) RouterHandlers() services.RouterHandlers {
	return services.RouterHandlers{
		Download:      map[domain.AccountType]driven.ActionHandler{"": driven.ActionHandlerFunc(h.Download)},
		MakeDirectory: driven.ActionHandlerFunc(h.MakeDirectory),
		DeleteFile:    driven.ActionHandlerFunc(h.DeleteFile),
		DeleteFolder:  driven.ActionHandlerFunc(h.DeleteFolder),
	}
}

// Download fetches a file's content and moves it into place.
// The content is written to a hidden partial file next to the target and
// renamed over it, so readers never see a half-written file.
func (h *Handlers) Download(ctx context.Context, record domain.ActionRecord) error {
	target, err := h.layout.Resolve(record.AccountID, record.SourcePath)
	if err != nil {
		return err
	}

	fetcher, err := h.fetchers.FetcherFor(ctx, record.AccountID)
	if err != nil {
		return fmt.Errorf("fetcher for %s: %w", record.AccountID, err)
	}
	body, err := fetcher.Fetch(ctx, record)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", record.SourcePath, err)
	}
	defer body.Close()

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("mkdir for download %s: %w", record.SourcePath, err)
	}

	n, err := writeAtomic(dir, target, body)
	if err != nil {
		return fmt.Errorf("write %s: %w", record.SourcePath, err)
	}

	logger.Debugw("downloaded", "account_id", record.AccountID, "source_id", record.SourceID,
		"path", record.SourcePath, "bytes", n)
	return h.upsert(ctx, record, target, n)
}

// writeAtomic copies r into a partial file in dir and renames it to target.
func writeAtomic(dir, target string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*"+partialSuffix)
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpPath, filePermissions)
	}
	if err == nil {
		err = os.Rename(tmpPath, target)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}
	return n, nil
}

// MakeDirectory creates a folder and any missing parents.
func (h *Handlers) MakeDirectory(ctx context.Context, record domain.ActionRecord) error {
	target, err := h.layout.Resolve(record.AccountID, record.SourcePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(target, dirPermissions); err != nil {
		return fmt.Errorf("mkdir %s: %w", record.SourcePath, err)
	}
	return h.upsert(ctx, record, target, 0)
}

// DeleteFile removes one file. A missing file counts as deleted.
func (h *Handlers) DeleteFile(ctx context.Context, record domain.ActionRecord) error {
	target, err := h.layout.Resolve(record.AccountID, record.SourcePath)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", record.SourcePath, err)
	}
	return h.remove(ctx, record, false)
}

// DeleteFolder removes a folder and everything below it.
func (h *Handlers) DeleteFolder(ctx context.Context, record domain.ActionRecord) error {
	target, err := h.layout.Resolve(record.AccountID, record.SourcePath)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove tree %s: %w", record.SourcePath, err)
	}
	return h.remove(ctx, record, true)
}

func (h *Handlers) upsert(ctx context.Context, record domain.ActionRecord, localPath string, size int64) error {
	if h.index == nil {
		return nil
	}
	err := h.index.Upsert(ctx, domain.IndexEntry{
		AccountID:   record.AccountID,
		AccountType: record.AccountType,
		SourceID:    record.SourceID,
		SourceName:  record.SourceName,
		SourcePath:  record.SourcePath,
		ParentID:    record.ParentID,
		SourceType:  record.SourceType,
		LocalPath:   localPath,
		Details:     record.Details,
		Size:        size,
		UpdatedAt:   h.now(),
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", record.SourcePath, err)
	}
	return nil
}

func (h *Handlers) remove(ctx context.Context, record domain.ActionRecord, recursive bool) error {
	if h.index == nil {
		return nil
	}
	if err := h.index.Remove(ctx, record.AccountID, record.SourcePath, recursive); err != nil {
		return fmt.Errorf("unindex %s: %w", record.SourcePath, err)
	}
	return nil
}
