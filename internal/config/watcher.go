package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/relayguard/relayguard/internal/logging"
)

// Watch reloads the configuration whenever the file changes on disk. Editors
// often replace the file instead of writing in place, so the parent directory
// is watched and events are filtered by name. Runs until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, logger *logging.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(l.path)

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
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					if _, err := l.Reload(); err != nil {
						logger.Warn("config reload failed", "path", l.path, "error", err.Error())
						continue
					}
					logger.Info("config reloaded", "path", l.path)
				}
			case <-watcher.Errors:
				// Ignore watcher errors; the next event still triggers a reload.
			}
		}
	}()

	return nil
}
