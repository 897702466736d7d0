package file

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Watch calls onChange whenever the token file is modified by something other
// than this store, until ctx is cancelled. The parent directory is watched so
// editors that replace the file by rename are still seen.
func (s *Store) Watch(ctx context.Context, logger *slog.Logger, onChange func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	logger = logger.With("component", "storage.file", "path", s.path)
	name := filepath.Clean(s.path)

	go func() {
		defer watcher.Close()

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != name {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				debounce = time.After(watchDebounce)

			case <-debounce:
				debounce = nil
				if s.writtenByUs() {
					continue
				}
				logger.Info("token file changed on disk, reloading")
				if err := onChange(ctx); err != nil {
					logger.Error("failed to reload token file", "error", err)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("file watcher error", "error", err)
			}
		}
	}()

	return nil
}
