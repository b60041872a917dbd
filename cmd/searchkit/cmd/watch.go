package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchkit/internal/async"
	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/index"
	"github.com/Aman-CERP/searchkit/internal/output"
	"github.com/Aman-CERP/searchkit/internal/scanner"
	"github.com/Aman-CERP/searchkit/internal/watcher"
)

type watchOptions struct {
	initial bool
	replace bool
	poll    bool
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Keep the index in sync with a folder",
		Long: `Watch a folder and apply file changes to the index until interrupted.

Created and modified files are re-added, deleted and renamed files are
removed. Changes are committed in batches after performance.watch_debounce
and the index is compacted once the folder stays quiet for
performance.compact_idle.

Existing files are added first unless --initial=false is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runWatch(ctx, cmd, dir, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.initial, "initial", true, "Add existing files before watching")
	cmd.Flags().BoolVar(&opts.replace, "replace", false, "Re-add existing files that are already indexed")
	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Poll for changes instead of using file system notifications")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, dir string, opts watchOptions) (err error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if !scanner.IsDir(root) {
		return skerrors.New(skerrors.ErrCodeInvalidPath, "not a directory: "+root, nil)
	}

	ws, err := loadWorkspace(root)
	if err != nil {
		return err
	}
	h, _, err := ws.openOrCreate()
	if err != nil {
		return err
	}
	defer closeIndex(h, &err)

	out := output.NewStyled(cmd.OutOrStdout(), styles(cmd), ws.cfg.Annotate.ContextChars)

	if opts.initial {
		out.Statusf("🔍", "Adding files from %s...", root)
		coordinator := async.NewCoordinator(h, async.Config{
			Workers:    ws.cfg.Performance.IndexWorkers,
			CanReplace: opts.replace,
			Scan:       ws.scanOptions(),
		})
		res := coordinator.AddFolder(ctx, root, true)
		if err := ctx.Err(); err != nil {
			return err
		}
		if !res.Flushed {
			return skerrors.New(skerrors.ErrCodeIndexFailed, "documents from "+root+" could not be committed", nil)
		}
		out.Successf("Added %d files (%d skipped or failed)", res.Succeeded, res.Failed)
	}

	watchOpts := watcher.DefaultOptions()
	watchOpts.DebounceWindow = ws.cfg.WatchDebounce()
	watchOpts.ExcludePatterns = ws.cfg.Paths.Exclude
	watchOpts.ForcePolling = opts.poll

	out.Statusf("👀", "Watching %s (Ctrl+C to stop)", root)
	err = h.Watch(ctx, root, index.WatchOptions{
		Watcher:     watchOpts,
		CompactIdle: ws.cfg.CompactIdle(),
		OnBatch: func(stats index.EventStats) {
			if !stats.Changed() && stats.Failed == 0 {
				return
			}
			out.Statusf("", "+%d -%d (%d failed)", stats.Added, stats.Removed, stats.Failed)
		},
	})
	if err != nil {
		return err
	}
	out.Success("Stopped watching")
	return nil
}
