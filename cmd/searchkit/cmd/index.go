package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchkit/internal/async"
	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/index"
	"github.com/Aman-CERP/searchkit/internal/output"
	"github.com/Aman-CERP/searchkit/internal/preflight"
	"github.com/Aman-CERP/searchkit/internal/ui"
)

type indexOptions struct {
	replace   bool
	workers   int
	plain     bool
	skipCheck bool
	compact   bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]...",
		Short: "Add folders and files to the index",
		Long: `Add folders and files to the index, creating it on first use.

Folders are scanned recursively. Hidden entries and paths matching
paths.exclude are skipped. Files are added concurrently and committed
once at the end, so a search never sees half of a run.

Files that are already indexed are skipped unless --replace is given.`,
		Example: `  # Index the current folder
  searchkit index

  # Re-index two folders and a single PDF
  searchkit index --replace docs/ notes/ report.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			if len(args) == 0 {
				args = []string{"."}
			}
			return runIndex(ctx, cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.replace, "replace", false, "Re-add documents that are already indexed")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent file tasks (default: performance.index_workers)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&opts.skipCheck, "skip-check", false, "Skip pre-flight system checks")
	cmd.Flags().BoolVar(&opts.compact, "compact", false, "Compact the index after adding")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, paths []string, opts indexOptions) (err error) {
	ws, err := loadWorkspace(paths[0])
	if err != nil {
		return err
	}
	if opts.workers <= 0 {
		opts.workers = ws.cfg.Performance.IndexWorkers
	}

	var dirs, files []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve path: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return skerrors.New(skerrors.ErrCodeFileNotFound, "cannot index "+p, err)
		}
		if info.IsDir() {
			dirs = append(dirs, abs)
		} else {
			files = append(files, abs)
		}
	}

	if !opts.skipCheck {
		if err := runPreflight(ctx, cmd, ws); err != nil {
			return err
		}
	}

	h, created, err := ws.openOrCreate()
	if err != nil {
		return err
	}
	defer closeIndex(h, &err)

	out := output.NewStyled(cmd.OutOrStdout(), styles(cmd), ws.cfg.Annotate.ContextChars)
	if created {
		out.Statusf("📁", "Created %s index at %s", h.Properties().Backend, h.Path())
	}

	for _, dir := range dirs {
		if err := indexFolder(ctx, cmd, ws, h, dir, opts); err != nil {
			return err
		}
	}

	if len(files) > 0 {
		if err := indexFiles(ctx, out, h, files, opts); err != nil {
			return err
		}
	}

	if opts.compact {
		if !h.Compact(ctx) {
			return skerrors.New(skerrors.ErrCodeCompactFailed, "compaction failed", ctx.Err())
		}
		out.Success("Index compacted")
	}
	return ctx.Err()
}

func indexFolder(ctx context.Context, cmd *cobra.Command, ws *workspace, h *index.Handle, dir string, opts indexOptions) error {
	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(noColor || ui.DetectNoColor()),
		ui.WithTitle(dir),
	))
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress display: %w", err)
	}
	defer func() { _ = renderer.Stop() }()

	runner, err := async.NewRunner(h, renderer, nil)
	if err != nil {
		return err
	}
	res, err := runner.Run(ctx, async.RunnerConfig{
		Root:       dir,
		Scan:       ws.scanOptions(),
		Workers:    opts.workers,
		CanReplace: opts.replace,
		Index:      ws.indexInfo(h),
	})
	if err != nil {
		return err
	}
	if !res.Flushed {
		return skerrors.New(skerrors.ErrCodeIndexFailed, "documents from "+dir+" could not be committed", ctx.Err())
	}
	return nil
}

func indexFiles(ctx context.Context, out *output.Writer, h *index.Handle, files []string, opts indexOptions) error {
	coordinator := async.NewCoordinator(h, async.Config{
		Workers:    opts.workers,
		CanReplace: opts.replace,
		OnItem: func(item async.ItemResult) {
			if !item.OK {
				slog.Warn("file_not_added", slog.String("uri", item.URI))
			}
		},
	})

	oks := coordinator.AddFiles(ctx, files, false)
	added := 0
	for i, ok := range oks {
		if ok {
			added++
		} else {
			out.Warningf("Not added: %s", files[i])
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !h.Flush(ctx) {
		return skerrors.New(skerrors.ErrCodeIndexFailed, "added files could not be committed", nil)
	}
	out.Successf("Added %d of %d files", added, len(files))
	return nil
}

// runPreflight runs the system checks once per data directory and version.
func runPreflight(ctx context.Context, cmd *cobra.Command, ws *workspace) error {
	if !preflight.NeedsCheck(ws.dataDir()) {
		return nil
	}

	checker := preflight.New(preflight.WithConfig(ws.cfg), preflight.WithOutput(cmd.ErrOrStderr()))
	results := checker.RunAll(ctx, ws.indexPath)
	if checker.HasCriticalFailures(results) {
		checker.PrintResults(results)
		return fmt.Errorf("system check failed, run 'searchkit doctor' for details")
	}

	if err := preflight.MarkPassed(ws.dataDir()); err != nil {
		slog.Debug("preflight_marker_failed", slog.String("error", err.Error()))
	}
	return nil
}
