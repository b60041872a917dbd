package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/index"
	"github.com/Aman-CERP/searchkit/internal/output"
)

func newDocumentsCmd() *cobra.Command {
	var filter, format string

	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List indexed documents",
		Long: `List the URIs of committed documents.

--filter empty lists documents that produced no terms, such as scanned
PDFs. Remove them with 'searchkit cleanup'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			f, ok := index.ParseDocumentFilter(filter)
			if !ok {
				return skerrors.New(skerrors.ErrCodeInvalidInput, fmt.Sprintf("unknown filter %q", filter), nil).
					WithSuggestion("Use all, empty or nonempty")
			}
			outFormat, err := output.ParseFormat(format)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			ws, err := loadWorkspace(".")
			if err != nil {
				return err
			}
			h, err := ws.open(false)
			if err != nil {
				return err
			}
			defer closeIndex(h, &err)

			uris := h.Documents(ctx, f)
			if err := ctx.Err(); err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if outFormat == output.FormatJSON {
				if uris == nil {
					uris = []string{}
				}
				return out.JSON(uris)
			}
			out.List(uris)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "all", "Documents to list: all, empty or nonempty")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")

	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <uri>...",
		Short: "Remove documents from the index",
		Long: `Remove documents by URI. Files are addressed by their file:// URI as
listed by 'searchkit documents'. Unknown URIs are ignored.`,
		Example: `  searchkit remove doc://notes/1
  searchkit remove file:///home/me/docs/old.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
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

			if !h.RemoveAll(ctx, args) || !h.Flush(ctx) {
				return skerrors.New(skerrors.ErrCodeIndexFailed, "failed to remove documents", ctx.Err()).
					WithSuggestion("Run 'searchkit logs' for details")
			}

			output.New(cmd.OutOrStdout()).Successf("Removed %d %s", len(args), plural(len(args), "document", "documents"))
			return nil
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
