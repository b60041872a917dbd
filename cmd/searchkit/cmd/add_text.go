package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/output"
)

func newAddTextCmd() *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "add-text <uri> [text]",
		Short: "Add a document with literal text",
		Long: `Add a document whose content is given literally instead of read from a
file. The URI is any identifier you choose, e.g. note://meeting-2026-01.

Without text, or with "-", the content is read from stdin.`,
		Example: `  searchkit add-text note://todo "renew the apache license"
  pbpaste | searchkit add-text --replace note://clipboard`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, stop := signalContext(cmd)
			defer stop()

			uri := args[0]
			text, err := readText(cmd, args[1:])
			if err != nil {
				return err
			}

			ws, err := loadWorkspace(".")
			if err != nil {
				return err
			}
			h, _, err := ws.openOrCreate()
			if err != nil {
				return err
			}
			defer closeIndex(h, &err)

			if !h.AddText(ctx, uri, text, replace) {
				if !replace && h.DocumentIndexed(uri) {
					return skerrors.DocumentRejected(uri, "already indexed").
						WithSuggestion("Use --replace to overwrite it")
				}
				return skerrors.DocumentRejected(uri, "the index did not accept it")
			}
			if !h.Flush(ctx) {
				return skerrors.New(skerrors.ErrCodeIndexFailed, uri+" was added but could not be committed", ctx.Err())
			}

			output.NewStyled(cmd.OutOrStdout(), styles(cmd), ws.cfg.Annotate.ContextChars).
				Successf("Added %s (%d terms)", uri, h.TermCount(uri))
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Overwrite an existing document")

	return cmd
}

func readText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
