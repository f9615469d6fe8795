package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ClientConfigWatcher calls onChange after the client config file is modified by
// someone else. Events are debounced so one save triggers one callback.
type ClientConfigWatcher struct {
	path     string
	debounce time.Duration
	onChange func() error
	logger   *zap.Logger
}

func NewClientConfigWatcher(path string, debounce time.Duration, onChange func() error, logger *zap.Logger) *ClientConfigWatcher {
	return &ClientConfigWatcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}
}

// Run watches until ctx is done. The parent directory is watched because editors and
// our own writes replace the file by rename.
func (w *ClientConfigWatcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("client config watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			if err := w.onChange(); err != nil {
				w.logger.Warn("failed to reconcile client config", zap.String("path", w.path), zap.Error(err))
			}
		}
	}
}
