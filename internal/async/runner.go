package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/searchkit/internal/scanner"
	"github.com/Aman-CERP/searchkit/internal/ui"
)

// RunnerConfig configures one folder ingestion run.
type RunnerConfig struct {
	// Root is the folder to ingest.
	Root string
	// Scan controls which files are picked up.
	Scan scanner.Options
	// Workers bounds concurrent file tasks. Default: runtime.NumCPU()
	Workers int
	// CanReplace re-adds files that are already indexed.
	CanReplace bool
	// Index describes the target for the completion summary.
	Index ui.IndexInfo
}

// RunnerResult is the outcome of a run.
type RunnerResult struct {
	Files     int
	Added     int
	Failed    int
	Documents uint64
	Flushed   bool
	Duration  time.Duration
}

// documentCounter is implemented by indexes that can report their size.
type documentCounter interface {
	DocumentCount() uint64
}

// Runner ingests a folder with progress reporting: scan, add, flush.
type Runner struct {
	indexer  Indexer
	renderer ui.Renderer
	progress *Progress
}

// NewRunner creates a Runner. progress may be nil.
func NewRunner(indexer Indexer, renderer ui.Renderer, progress *Progress) (*Runner, error) {
	if indexer == nil {
		return nil, fmt.Errorf("indexer is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	return &Runner{indexer: indexer, renderer: renderer, progress: progress}, nil
}

type stageTiming struct {
	scan  time.Duration
	index time.Duration
	flush time.Duration
}

// Run executes the pipeline. Per-file failures are reported to the renderer
// and counted; only a failed scan aborts the run.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	startTime := time.Now()
	var timing stageTiming

	// Stage 1: Scan
	scanStart := time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: fmt.Sprintf("Scanning %s...", cfg.Root),
	})
	if r.progress != nil {
		r.progress.SetStage(StageScanning, 0)
	}
	slog.Info("index_scan_started", slog.String("path", cfg.Root))

	files, err := scanner.New(cfg.Scan).Files(ctx, cfg.Root)
	if err != nil {
		if r.progress != nil {
			r.progress.SetError(err.Error())
		}
		return nil, fmt.Errorf("failed to scan %s: %w", cfg.Root, err)
	}
	timing.scan = time.Since(scanStart)
	slog.Info("index_scan_complete", slog.Int("files", len(files)))

	// Stage 2: Add
	indexStart := time.Now()
	total := len(files)
	var done atomic.Int64
	coordinator := NewCoordinator(r.indexer, Config{
		Workers:    cfg.Workers,
		CanReplace: cfg.CanReplace,
		Progress:   r.progress,
		OnItem: func(item ItemResult) {
			n := done.Add(1)
			if !item.OK {
				r.renderer.AddError(ui.ErrorEvent{File: item.URI, Err: item.Err, IsWarn: true})
			}
			r.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageIndexing,
				Current:     int(n),
				Total:       total,
				CurrentFile: item.URI,
			})
		},
	})

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.AbsPath
	}
	oks := coordinator.AddFiles(ctx, paths, false)
	timing.index = time.Since(indexStart)

	result := &RunnerResult{Files: total}
	for _, ok := range oks {
		if ok {
			result.Added++
		} else {
			result.Failed++
		}
	}

	// Stage 3: Flush
	flushStart := time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageFlushing, Message: "Committing documents..."})
	if r.progress != nil {
		r.progress.SetStage(StageFlushing, 0)
	}
	result.Flushed = r.indexer.Flush(ctx)
	if !result.Flushed {
		r.renderer.AddError(ui.ErrorEvent{Err: fmt.Errorf("flush failed, added documents may be lost")})
	}
	timing.flush = time.Since(flushStart)

	if counter, ok := r.indexer.(documentCounter); ok {
		result.Documents = counter.DocumentCount()
	}
	result.Duration = time.Since(startTime)

	errorCount := 0
	if !result.Flushed {
		errorCount = 1
	}
	r.renderer.Complete(ui.CompletionStats{
		Files:     result.Files,
		Added:     result.Added,
		Documents: result.Documents,
		Duration:  result.Duration,
		Errors:    errorCount,
		Warnings:  result.Failed,
		Stages: ui.StageTimings{
			Scan:  timing.scan,
			Index: timing.index,
			Flush: timing.flush,
		},
		Index: cfg.Index,
	})
	if r.progress != nil {
		if result.Flushed {
			r.progress.SetReady()
		} else {
			r.progress.SetError("flush failed")
		}
	}

	filesPerSec := 0.0
	if timing.index.Seconds() > 0 {
		filesPerSec = float64(result.Files) / timing.index.Seconds()
	}
	slog.Info("index_complete",
		slog.Int("files", result.Files),
		slog.Int("added", result.Added),
		slog.Int("failed", result.Failed),
		slog.Uint64("documents", result.Documents),
		slog.Int64("duration_total_ms", result.Duration.Milliseconds()),
		slog.Int64("duration_scan_ms", timing.scan.Milliseconds()),
		slog.Int64("duration_index_ms", timing.index.Milliseconds()),
		slog.Int64("duration_flush_ms", timing.flush.Milliseconds()),
		slog.Float64("files_per_sec", filesPerSec),
		slog.String("path", cfg.Root))

	return result, nil
}
