package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Store when its pack file changes. Bursts of events are
// collapsed into one reload after a quiet period.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the store's pack file. The parent
// directory is watched so editors that replace the file are handled.
func NewWatcher(store *Store, debounce time.Duration) (*Watcher, error) {
	if store.Path() == "" {
		return nil, fmt.Errorf("embedded knowledge pack cannot be watched")
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(store.Path())); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", store.Path(), err)
	}

	return &Watcher{
		store:    store,
		watcher:  fw,
		interval: debounce,
		logger:   slog.Default().With("component", "knowledge.watcher"),
	}, nil
}

// Run processes file events until ctx is cancelled. It always closes the
// underlying fsnotify watcher before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()

	target := filepath.Clean(w.store.Path())
	w.logger.Info("Watching knowledge pack", "path", target, "debounce_ms", w.interval.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target || event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			w.logger.Debug("Knowledge pack changed", "op", event.Op.String())
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.interval, func() {
		// Reload logs its own failures.
		_ = w.store.Reload()
	})
}

func (w *Watcher) close() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	w.watcher.Close()
}
