package localsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/logger"
)

const (
	watchErrInitBackoff = 100 * time.Millisecond
	watchErrMaxBackoff  = 10 * time.Second
)

// FolderListener reports local edits under the sync folder to the index.
// Entries the handlers created keep their provider metadata; files that
// only exist locally are indexed without a source ID.
type FolderListener struct {
	layout Layout
	index  driven.IndexStore
	now    func() time.Time
}

// NewFolderListener creates a listener over layout's sync folder.
func NewFolderListener(layout Layout, index driven.IndexStore) *FolderListener {
	return &FolderListener{layout: layout, index: index, now: time.Now}
}

// Run watches the sync folder until ctx is cancelled.
func (l *FolderListener) Run(ctx context.Context) error {
	if err := os.MkdirAll(l.layout.Root(), dirPermissions); err != nil {
		return fmt.Errorf("create sync folder: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addTree(watcher, l.layout.Root()); err != nil {
		return fmt.Errorf("watch %s: %w", l.layout.Root(), err)
	}
	logger.Infow("folder listener started", "root", l.layout.Root())

	backoff := watchErrInitBackoff
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			l.handleEvent(ctx, watcher, event)
			backoff = watchErrInitBackoff

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("folder watcher error", "error", watchErr, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, watchErrMaxBackoff)
		}
	}
}

// handleEvent maps one fsnotify event onto the index. watcher may be nil.
func (l *FolderListener) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, partialSuffix) {
		return
	}
	if watcher != nil && event.Has(fsnotify.Create) {
		l.scanNewDir(ctx, watcher, event.Name)
	}
	accountID, sourcePath, ok := l.layout.Locate(event.Name)
	if !ok {
		return
	}

	var err error
	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		err = l.index.Remove(ctx, accountID, sourcePath, true)
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		err = l.touch(ctx, accountID, sourcePath, event.Name)
	}
	if err != nil {
		logger.Warnw("index update from local change failed",
			"account_id", accountID, "path", sourcePath, "error", err)
	}
}

// touch refreshes or creates the index entry of a local path.
func (l *FolderListener) touch(ctx context.Context, accountID, sourcePath, localPath string) error {
	info, err := os.Stat(localPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	entry, err := l.index.Get(ctx, accountID, sourcePath)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		entry = &domain.IndexEntry{
			AccountID:  accountID,
			SourceName: filepath.Base(localPath),
			SourcePath: sourcePath,
		}
	case err != nil:
		return err
	}

	entry.LocalPath = localPath
	entry.UpdatedAt = l.now()
	if info.IsDir() {
		entry.SourceType = domain.SourceTypeFolder
		entry.Size = 0
	} else {
		entry.SourceType = domain.SourceTypeFile
		entry.Size = info.Size()
	}
	logger.Debugw("local change", "account_id", accountID, "path", sourcePath)
	return l.index.Upsert(ctx, *entry)
}

// scanNewDir watches a newly created folder and indexes what was created
// inside it before the watch was in place.
func (l *FolderListener) scanNewDir(ctx context.Context, watcher *fsnotify.Watcher, dir string) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return
	}
	if err := addTree(watcher, dir); err != nil {
		logger.Warnw("watch new folder failed", "path", dir, "error", err)
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if accountID, sourcePath, ok := l.layout.Locate(path); ok {
			if err := l.touch(ctx, accountID, sourcePath, path); err != nil {
				logger.Warnw("index update from local change failed",
					"account_id", accountID, "path", sourcePath, "error", err)
			}
		}
		return nil
	})
}

// addTree watches root and every folder below it.
func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}
