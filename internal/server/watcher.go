package server

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/snigate/internal/observability"
)

// ConfigWatcher watches a configuration file and invokes a reload callback
// when it changes. Events are debounced because editors and orchestrators
// tend to emit several writes per save; the watch is on the parent directory
// so atomic rename-into-place updates are seen too.
type ConfigWatcher struct {
	path     string
	debounce time.Duration
	reload   func()
	logger   observability.Logger
}

// NewConfigWatcher creates a watcher for the given file.
func NewConfigWatcher(path string, debounce time.Duration, reload func(), logger observability.Logger) *ConfigWatcher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &ConfigWatcher{
		path:     path,
		debounce: debounce,
		reload:   reload,
		logger:   logger,
	}
}

// Run watches until the context is cancelled.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	w.logger.Info("watching configuration",
		observability.String("path", w.path),
		observability.Duration("debounce", w.debounce),
	)

	var timer *time.Timer
	var timerCh <-chan time.Time

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			w.logger.Info("configuration changed, reloading",
				observability.String("path", w.path),
			)
			w.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("configuration watch error", observability.Error(err))
		}
	}
}
