package cmd

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchkit/internal/async"
	"github.com/Aman-CERP/searchkit/internal/engine"
	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/index"
	"github.com/Aman-CERP/searchkit/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the current index including:
  - Engine backend, type and proximity setting
  - Number of documents and documents without terms
  - Size on disk, creation and last modification time
  - Whether another process is currently indexing`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			return runStatus(ctx, cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	ws, err := loadWorkspace(".")
	if err != nil {
		return err
	}
	if !engine.Exists(ws.indexPath) {
		return skerrors.New(skerrors.ErrCodeFileNotFound, "no index at "+ws.indexPath, nil).
			WithSuggestion("Run 'searchkit index <folder>' to create one")
	}

	info, err := collectStatus(ctx, ws)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(ctx context.Context, ws *workspace) (ui.StatusInfo, error) {
	props, created, err := engine.Stat(ws.indexPath)
	if err != nil {
		return ui.StatusInfo{}, err
	}

	info := ui.StatusInfo{
		Path:      ws.indexPath,
		Backend:   props.Backend,
		Type:      string(props.Type),
		Proximity: props.Proximity,
		CreatedAt: created,
		Indexing:  "ready",
	}
	info.SizeBytes, info.LastModified = dirSize(ws.indexPath)

	if async.HasIncompleteLock(ws.dataDir()) {
		info.Indexing = "indexing"
	}

	h, err := index.Open(ws.indexPath, false, index.WithScanOptions(ws.scanOptions()))
	switch {
	case skerrors.HasCode(err, skerrors.ErrCodeIndexLocked):
		// A writer holds the index; counts are unavailable until it exits.
		info.Indexing = "indexing"
		return info, nil
	case err != nil:
		info.Indexing = "error"
		return info, err
	}
	defer func() { _ = h.Close() }()

	info.Documents = h.DocumentCount()
	info.EmptyDocuments = len(h.Documents(ctx, index.FilterOnlyEmpty))
	return info, ctx.Err()
}

// dirSize returns the total size of the files below path and the newest
// modification time among them.
func dirSize(path string) (int64, time.Time) {
	var (
		size   int64
		newest time.Time
	)
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size += info.Size()
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return size, newest
}
