package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchkit/internal/async"
	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/index"
	"github.com/Aman-CERP/searchkit/internal/mcp"
	"github.com/Aman-CERP/searchkit/internal/preflight"
	"github.com/Aman-CERP/searchkit/internal/scanner"
	"github.com/Aman-CERP/searchkit/internal/telemetry"
	"github.com/Aman-CERP/searchkit/internal/watcher"
)

type serveOptions struct {
	transport string
	watch     bool
	replace   bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve [dir]",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol server on stdio.

With a folder argument, its files are added in the background while the
server already answers searches; the index_status tool reports progress.
With --watch, changes below the folder are applied until the server exits.

Logs go to ~/.searchkit/logs only, stdout carries the protocol.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			dir := ""
			if len(args) > 0 {
				dir = args[0]
			}
			return runServe(ctx, cmd, dir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "stdio", "Transport protocol (stdio)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Keep the index in sync with the folder")
	cmd.Flags().BoolVar(&opts.replace, "replace", false, "Re-add files that are already indexed")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, dir string, opts serveOptions) (err error) {
	if err := verifyStdinForMCP(); err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}

	root := ""
	if dir != "" {
		root, err = filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve path: %w", err)
		}
		if !scanner.IsDir(root) {
			return skerrors.New(skerrors.ErrCodeInvalidPath, "not a directory: "+root, nil)
		}
	} else if opts.watch {
		return skerrors.New(skerrors.ErrCodeInvalidInput, "--watch needs a folder", nil).
			WithSuggestion("Run 'searchkit serve --watch <folder>'")
	}

	start := root
	if start == "" {
		start = "."
	}
	ws, err := loadWorkspace(start)
	if err != nil {
		return err
	}
	transport := ws.cfg.Server.Transport
	if cmd.Flags().Changed("transport") {
		transport = opts.transport
	}

	checker := preflight.New(preflight.WithConfig(ws.cfg))
	results := checker.RunAll(ctx, ws.indexPath)
	for _, r := range results {
		if r.Status != preflight.StatusPass {
			slog.Warn("preflight_check",
				slog.String("check", r.Name),
				slog.String("status", r.Status.String()),
				slog.String("message", r.Message))
		}
	}
	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system check failed, run 'searchkit doctor' for details")
	}

	h, _, err := ws.openOrCreate()
	if err != nil {
		return err
	}
	defer closeIndex(h, &err)

	server, err := mcp.NewServer(h, ws.cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() { _ = server.Close() }()

	metrics, closeStats := ws.openQueryStats(telemetry.DefaultConfig())
	defer closeStats()
	server.SetMetrics(metrics)

	if root != "" {
		bg := newServeIndexer(ws, h, root, opts.replace)
		server.SetIndexer(bg)
		bg.Start(ctx)
		defer func() {
			if bg.IsRunning() {
				slog.Info("ingestion_interrupted", slog.String("root", root))
			}
			bg.Stop()
		}()

		if opts.watch {
			go watchForServe(ctx, ws, h, root)
		}
	}

	err = server.Serve(ctx, transport)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newServeIndexer(ws *workspace, h *index.Handle, root string, replace bool) *async.BackgroundIndexer {
	bg := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: ws.dataDir()})
	coordinator := async.NewCoordinator(h, async.Config{
		Workers:    ws.cfg.Performance.IndexWorkers,
		CanReplace: replace,
		Scan:       ws.scanOptions(),
		Progress:   bg.Progress(),
	})
	bg.IndexFunc = async.FolderIndexFunc(coordinator, root)
	return bg
}

func watchForServe(ctx context.Context, ws *workspace, h *index.Handle, root string) {
	watchOpts := watcher.DefaultOptions()
	watchOpts.DebounceWindow = ws.cfg.WatchDebounce()
	watchOpts.ExcludePatterns = ws.cfg.Paths.Exclude

	err := h.Watch(ctx, root, index.WatchOptions{Watcher: watchOpts, CompactIdle: ws.cfg.CompactIdle()})
	if err != nil {
		slog.Error("watch_failed", slog.String("root", root), slog.String("error", err.Error()))
	}
}

// verifyStdinForMCP reports a terminal on stdin, which means no MCP client
// is connected.
func verifyStdinForMCP() error {
	fd := os.Stdin.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return fmt.Errorf("stdin is a terminal, not a pipe; an MCP client should start 'searchkit serve'")
	}
	return nil
}
