package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchkit/internal/engine"
	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/output"
)

// termsReport is the JSON form of a document's terms.
type termsReport struct {
	URI   string                 `json:"uri"`
	Terms []engine.TermFrequency `json:"terms"`
}

func newTermsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "terms <uri>",
		Short: "Show the indexed terms of a document",
		Long: `Show each distinct term stored for a document with its frequency.
Terms are lowercased; stop words and terms shorter than index.min_term_length are not stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			outFormat, err := output.ParseFormat(format)
			if err != nil {
				return err
			}

			ws, err := loadWorkspace(".")
			if err != nil {
				return err
			}
			h, err := ws.open(false)
			if err != nil {
				return err
			}
			defer closeIndex(h, &err)

			uri := args[0]
			if !h.DocumentIndexed(uri) {
				return skerrors.New(skerrors.ErrCodeDocumentNotFound, uri+" is not indexed", nil).
					WithSuggestion("Run 'searchkit documents' to list indexed URIs")
			}

			terms := h.Terms(uri)
			out := output.New(cmd.OutOrStdout())
			if outFormat == output.FormatJSON {
				if terms == nil {
					terms = []engine.TermFrequency{}
				}
				return out.JSON(termsReport{URI: uri, Terms: terms})
			}
			out.Terms(terms)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")

	return cmd
}
