package vault

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch keeps the index in sync with the vault until ctx is cancelled.
// Created or written markdown files are re-indexed; removed or renamed ones
// are dropped. New subdirectories are watched as they appear.
func (ix *Indexer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("vault: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := ix.addTree(watcher, ix.root); err != nil {
		return err
	}
	ix.logger.Info("watching vault", "root", ix.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ix.logger.Warn("watcher error", "error", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			ix.handle(ctx, watcher, event)
		}
	}
}

func (ix *Indexer) handle(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := ix.addTree(watcher, event.Name); err != nil {
				ix.logger.Warn("cannot watch directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !isMarkdown(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
		ix.logger.Debug("re-indexing note", "path", event.Name)
		if err := ix.IndexFile(ctx, event.Name); err != nil {
			ix.logger.Warn("failed to index note", "path", event.Name, "error", err)
		}
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		ix.logger.Debug("removing note", "path", event.Name)
		if err := ix.RemoveFile(ctx, event.Name); err != nil {
			ix.logger.Warn("failed to remove note", "path", event.Name, "error", err)
		}
	}
}

// addTree watches dir and every non-hidden directory below it.
func (ix *Indexer) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != ix.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("vault: watch %s: %w", path, err)
		}
		return nil
	})
}
