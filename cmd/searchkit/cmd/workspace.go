package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchkit/internal/config"
	"github.com/Aman-CERP/searchkit/internal/engine"
	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/index"
	"github.com/Aman-CERP/searchkit/internal/scanner"
	"github.com/Aman-CERP/searchkit/internal/telemetry"
	"github.com/Aman-CERP/searchkit/internal/ui"
)

// workspace is the project a command works on: its root, merged
// configuration and index location.
type workspace struct {
	root      string
	cfg       *config.Config
	indexPath string
}

// loadWorkspace resolves the project containing start. The --index flag
// wins over the configured index path.
func loadWorkspace(start string) (*workspace, error) {
	absStart, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if !scanner.IsDir(absStart) {
		absStart = filepath.Dir(absStart)
	}

	root, err := config.FindProjectRoot(absStart)
	if err != nil {
		root = absStart
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, skerrors.ConfigError(err.Error(), err).
			WithSuggestion("Run 'searchkit config show --source defaults' to compare with the defaults")
	}

	ws := &workspace{root: root, cfg: cfg, indexPath: cfg.IndexPath(root)}
	if indexOverride != "" {
		ws.indexPath, err = filepath.Abs(indexOverride)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve index path: %w", err)
		}
	}
	return ws, nil
}

// dataDir holds the index, lock files and markers.
func (w *workspace) dataDir() string {
	return filepath.Dir(w.indexPath)
}

func (w *workspace) scanOptions() scanner.Options {
	return scanner.Options{
		ExcludePatterns: w.cfg.Paths.Exclude,
		MaxFileSize:     w.cfg.Performance.MaxFileSize,
		FollowSymlinks:  w.cfg.Paths.FollowSymlinks,
	}
}

// open opens the existing index. Read-only handles may share an index with
// one writer.
func (w *workspace) open(writable bool) (*index.Handle, error) {
	if !engine.Exists(w.indexPath) {
		return nil, skerrors.New(skerrors.ErrCodeFileNotFound, "no index at "+w.indexPath, nil).
			WithSuggestion("Run 'searchkit index <folder>' to create one")
	}
	return index.Open(w.indexPath, writable, index.WithScanOptions(w.scanOptions()))
}

// openOrCreate opens the index for writing, creating it from the
// configured properties when it does not exist.
func (w *workspace) openOrCreate() (*index.Handle, bool, error) {
	created := !engine.Exists(w.indexPath)
	h, err := index.OpenOrCreate(w.indexPath, w.cfg.Properties(), index.WithScanOptions(w.scanOptions()))
	return h, created, err
}

func (w *workspace) queryStatsPath() string {
	return filepath.Join(w.dataDir(), telemetry.StoreFileName)
}

// openQueryStats starts collecting query statistics next to the index.
// Statistics are best effort: when the database cannot be opened the
// returned collector only keeps them in memory. done flushes and closes.
func (w *workspace) openQueryStats(cfg telemetry.Config) (m *telemetry.QueryMetrics, done func()) {
	store, err := telemetry.OpenSQLiteStore(w.queryStatsPath())
	if err != nil {
		slog.Warn("query_stats_unavailable", slog.String("error", err.Error()))
		m = telemetry.NewQueryMetricsWithConfig(nil, cfg)
		return m, func() { _ = m.Close() }
	}
	m = telemetry.NewQueryMetricsWithConfig(store, cfg)
	return m, func() {
		if err := m.Close(); err != nil {
			slog.Warn("query_stats_flush_failed", slog.String("error", err.Error()))
		}
		_ = store.Close()
	}
}

func (w *workspace) indexInfo(h *index.Handle) ui.IndexInfo {
	props := h.Properties()
	return ui.IndexInfo{Path: h.Path(), Backend: props.Backend, Type: string(props.Type)}
}

// closeIndex closes h and reports a failure only if nothing failed before.
func closeIndex(h *index.Handle, err *error) {
	if cerr := h.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

// signalContext cancels on Ctrl+C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// styles returns the terminal styles for cmd's output.
func styles(cmd *cobra.Command) ui.Styles {
	return ui.GetStyles(noColor || ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
}
