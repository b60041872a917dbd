package index

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Aman-CERP/searchkit/internal/watcher"
)

// DefaultCompactIdle is how long Watch waits without changes before it
// compacts the index.
const DefaultCompactIdle = 30 * time.Second

// WatchOptions configures Watch.
type WatchOptions struct {
	Watcher watcher.Options
	// CompactIdle is the quiet period after which changes are compacted.
	// Negative disables compaction.
	CompactIdle time.Duration
	// OnBatch, when set, is called after each applied batch.
	OnBatch func(EventStats)
}

// Watch keeps the index in sync with root until ctx ends. It does not
// ingest existing files; run AddFolder first for that.
func (h *Handle) Watch(ctx context.Context, root string, opts WatchOptions) error {
	w, err := watcher.NewHybridWatcher(opts.Watcher)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx, root) }()

	idle := opts.CompactIdle
	if idle == 0 {
		idle = DefaultCompactIdle
	}
	compactTimer := time.NewTimer(time.Hour)
	compactTimer.Stop()
	defer compactTimer.Stop()
	dirty := false
	errs := w.Errors()

	slog.Info("watch_started", slog.String("root", root), slog.String("mode", w.Mode()))
	for {
		select {
		case <-ctx.Done():
			slog.Info("watch_stopped", slog.String("root", root))
			return nil
		case err := <-startErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			stats := h.ApplyEvents(ctx, root, batch)
			slog.Debug("watch_batch_applied",
				slog.Int("added", stats.Added),
				slog.Int("removed", stats.Removed),
				slog.Int("failed", stats.Failed))
			if opts.OnBatch != nil {
				opts.OnBatch(stats)
			}
			if stats.Changed() && idle > 0 {
				dirty = true
				compactTimer.Reset(idle)
			}
		case <-compactTimer.C:
			if dirty && h.Compact(ctx) {
				slog.Info("idle_compaction_done", slog.String("root", root))
				dirty = false
			}
		}
	}
}
