package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
)

// debounceWindow coalesces bursts of write events from editors that save in
// multiple syscalls.
const debounceWindow = 250 * time.Millisecond

// Watch reloads the store whenever the rule file changes on disk. It blocks
// until ctx is cancelled. The parent directory is watched rather than the
// file itself so rename-based saves keep working.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("rule file watcher error", logger.Error(err))
		case <-reload:
			if err := s.Reload(); err != nil {
				s.logger.Error("rule file reload failed, keeping previous rules", logger.Error(err))
				continue
			}
			s.logger.Info("rule file reloaded after change")
		}
	}
}
