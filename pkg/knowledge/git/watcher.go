package git

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Reloader is the knowledge store as seen by the watcher.
type Reloader interface {
	Reload() error
}

// Watcher pulls the repository on an interval and reloads the store when
// the pack file changed.
type Watcher struct {
	repo     *Repository
	store    Reloader
	interval time.Duration
	logger   *slog.Logger

	polls   atomic.Int64
	reloads atomic.Int64
	skipped atomic.Int64
}

// NewWatcher creates a watcher; Run does nothing when interval is not
// positive.
func NewWatcher(repo *Repository, store Reloader, interval time.Duration) *Watcher {
	return &Watcher{
		repo:     repo,
		store:    store,
		interval: interval,
		logger:   slog.Default().With("component", "knowledge.git"),
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	w.logger.Info("Polling knowledge repository",
		"repository", w.repo.cfg.Repository,
		"branch", w.repo.cfg.Branch,
		"interval", w.interval,
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Poll(ctx); err != nil {
				w.logger.Error("Knowledge repository poll failed", "error", err)
			}
		}
	}
}

// Poll pulls once and reloads the store if the pack file changed. It
// reports whether a reload was attempted.
func (w *Watcher) Poll(ctx context.Context) (bool, error) {
	w.polls.Add(1)

	result, err := w.repo.Pull(ctx)
	if err != nil {
		return false, err
	}
	if !result.HadChanges() {
		return false, nil
	}
	if !result.Touches(w.repo.cfg.File) {
		w.skipped.Add(1)
		w.logger.Debug("Repository changed without touching the pack",
			"to", result.To[:8],
			"changed_files", len(result.ChangedFiles),
		)
		return false, nil
	}

	w.logger.Info("Knowledge pack changed upstream", "from", result.From[:8], "to", result.To[:8])
	if err := w.store.Reload(); err != nil {
		return true, err
	}
	w.reloads.Add(1)
	return true, nil
}

// Stats returns poll, reload and skipped-change counts.
func (w *Watcher) Stats() (polls, reloads, skipped int64) {
	return w.polls.Load(), w.reloads.Load(), w.skipped.Load()
}
