package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// KeyFile returns the file a disk store keeps key in, relative to its
// data directory.
func KeyFile(key string) string {
	return url.PathEscape(key) + fileExt
}

// WatchKey calls onChange every time key is replaced in the disk store
// rooted at dir, by this process or another. Set renames a temporary file
// into place, so a replacement shows up as a create on the key's file. The
// watcher stops when ctx is done.
func WatchKey(ctx context.Context, dir, key string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file system watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := KeyFile(key)
	logger := slog.Default().With("component", "storage", "key", key)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
					logger.Debug("Stored key changed", "event", event.Op.String())
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("File system watcher error", "error", err)
			}
		}
	}()
	return nil
}
