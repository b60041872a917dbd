package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/searchkit/internal/content"
	"github.com/Aman-CERP/searchkit/internal/scanner"
	"github.com/Aman-CERP/searchkit/internal/watcher"
)

// EventStats summarizes one ApplyEvents call.
type EventStats struct {
	Added   int
	Removed int
	Skipped int
	Failed  int
}

// Changed reports whether the batch touched the index.
func (s EventStats) Changed() bool {
	return s.Added+s.Removed > 0
}

// ApplyEvents keeps the index in sync with file events below root. Created
// and modified files are (re)added. Deleted and renamed-away paths are
// removed together with every document below them. The batch is then
// flushed once. A failed event is logged and the rest of the batch still
// applies.
func (h *Handle) ApplyEvents(ctx context.Context, root string, events []watcher.FileEvent) EventStats {
	var (
		stats EventStats
		gone  []string
	)
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		slog.Debug("processing_file_event",
			slog.String("path", event.Path),
			slog.String("operation", event.Operation.String()),
			slog.Bool("is_dir", event.IsDir))

		if event.IsDir {
			stats.Skipped++
			continue
		}

		absPath := event.Path
		if !filepath.IsAbs(absPath) {
			absPath = filepath.Join(root, event.Path)
		}

		switch event.Operation {
		case watcher.OpCreate, watcher.OpModify:
			if !h.indexable(absPath) {
				stats.Skipped++
				continue
			}
			if h.AddFile(ctx, absPath, "", true) {
				stats.Added++
			} else {
				stats.Failed++
			}
		case watcher.OpDelete, watcher.OpRename:
			gone = append(gone, content.FileURI(absPath))
		default:
			stats.Skipped++
		}
	}

	if len(gone) > 0 {
		uris := h.underURIs(ctx, gone)
		if h.RemoveAll(ctx, uris) {
			stats.Removed += len(uris)
		} else {
			stats.Failed += len(gone)
		}
	}

	if stats.Changed() && !h.Flush(ctx) {
		slog.Warn("event_batch_not_flushed", slog.Int("events", len(events)))
	}
	return stats
}

// underURIs expands removed paths to the indexed documents they cover.
// Once deleted, a directory can no longer be told apart from a file.
func (h *Handle) underURIs(ctx context.Context, gone []string) []string {
	var uris []string
	for _, uri := range gone {
		if h.DocumentIndexed(uri) {
			uris = append(uris, uri)
		}
	}
	for _, doc := range h.Documents(ctx, FilterAll) {
		for _, uri := range gone {
			if strings.HasPrefix(doc, uri+"/") {
				uris = append(uris, doc)
				break
			}
		}
	}
	return uris
}

// indexable applies the folder-ingestion rules to a single changed file.
func (h *Handle) indexable(absPath string) bool {
	if scanner.IsHidden(absPath) {
		return false
	}
	info, err := os.Lstat(absPath)
	if err != nil {
		return false
	}
	if info.Mode()&os.ModeSymlink != 0 && !h.scanOpts.FollowSymlinks {
		slog.Debug("skipping_symlink", slog.String("path", absPath))
		return false
	}
	maxSize := h.scanOpts.MaxFileSize
	if maxSize == 0 {
		maxSize = scanner.DefaultMaxFileSize
	}
	if maxSize > 0 && info.Size() > maxSize {
		slog.Warn("skipping_oversized_file",
			slog.String("path", absPath),
			slog.Int64("size", info.Size()),
			slog.Int64("max", maxSize))
		return false
	}
	return true
}
