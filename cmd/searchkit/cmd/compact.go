package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/output"
	"github.com/Aman-CERP/searchkit/internal/ui"
)

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Compact the index",
		Long: `Merges index segments and reclaims space left by removed and replaced
documents. Searches keep working while compaction runs in another
process, but only one process may write to the index.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx, stop := signalContext(cmd)
			defer stop()

			ws, err := loadWorkspace(".")
			if err != nil {
				return err
			}
			h, err := ws.open(true)
			if err != nil {
				return err
			}
			defer closeIndex(h, &err)

			out := output.NewStyled(cmd.OutOrStdout(), styles(cmd), ws.cfg.Annotate.ContextChars)
			out.Status("🗜️", "Compacting index...")

			before, _ := dirSize(ws.indexPath)
			start := time.Now()
			if !h.Compact(ctx) {
				return skerrors.New(skerrors.ErrCodeCompactFailed, "compaction failed", ctx.Err()).
					WithSuggestion("Run 'searchkit logs' for details")
			}
			after, _ := dirSize(ws.indexPath)

			slog.Info("compaction_completed",
				slog.Int64("bytes_before", before),
				slog.Int64("bytes_after", after),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()))

			out.Successf("Compaction complete in %v", time.Since(start).Round(time.Millisecond))
			if before > 0 && after > 0 {
				out.Statusf("", "Size: %s → %s", ui.FormatBytes(before), ui.FormatBytes(after))
			}
			return nil
		},
	}
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove documents without terms",
		Long: `Remove every document that produced no terms, such as scanned PDFs or
empty files. List them first with 'searchkit documents --filter empty'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx, stop := signalContext(cmd)
			defer stop()

			ws, err := loadWorkspace(".")
			if err != nil {
				return err
			}
			h, err := ws.open(true)
			if err != nil {
				return err
			}
			defer closeIndex(h, &err)

			removed := h.CleanUp(ctx)
			if err := ctx.Err(); err != nil {
				return err
			}

			out := output.NewStyled(cmd.OutOrStdout(), styles(cmd), ws.cfg.Annotate.ContextChars)
			if removed == 0 {
				out.Success("No empty documents")
				return nil
			}
			out.Successf("Removed %d empty %s", removed, plural(removed, "document", "documents"))
			return nil
		},
	}
}
