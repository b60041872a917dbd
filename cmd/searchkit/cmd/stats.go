package cmd

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/output"
	"github.com/Aman-CERP/searchkit/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics",
		Long: `Display statistics about how the index is searched. They are collected
locally by 'searchkit search' and the MCP search tool and never leave the
machine.`,
	}

	cmd.AddCommand(newStatsQueriesCmd())
	return cmd
}

func newStatsQueriesCmd() *cobra.Command {
	var (
		jsonOutput bool
		days       int
		top        int
	)

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show query statistics",
		Long: `Display query statistics:
  - Query kind distribution (terms/boolean/phrase/wildcard/similar)
  - Top query terms
  - Recent zero-result queries
  - Latency distribution of the first chunk`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatsQueries(cmd, jsonOutput, days, top)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	cmd.Flags().IntVar(&top, "top", 10, "Number of terms and zero-result queries to list")

	return cmd
}

// statsQueriesOutput is the JSON output of 'stats queries'.
type statsQueriesOutput struct {
	Days                int                   `json:"days"`
	TotalQueries        int64                 `json:"total_queries"`
	ZeroResultPct       float64               `json:"zero_result_pct"`
	KindCounts          map[string]int64      `json:"kind_counts"`
	TopTerms            []telemetry.TermCount `json:"top_terms"`
	ZeroResultQueries   []string              `json:"zero_result_queries"`
	LatencyDistribution map[string]int64      `json:"latency_distribution"`
}

func runStatsQueries(cmd *cobra.Command, jsonOutput bool, days, top int) (err error) {
	if days <= 0 {
		return skerrors.New(skerrors.ErrCodeInvalidInput, fmt.Sprintf("--days must be positive, got %d", days), nil)
	}
	if top <= 0 {
		top = 10
	}

	ws, err := loadWorkspace(".")
	if err != nil {
		return err
	}

	path := ws.queryStatsPath()
	if _, statErr := os.Stat(path); statErr != nil {
		return skerrors.New(skerrors.ErrCodeFileNotFound, "no query statistics at "+path, nil).
			WithSuggestion("Statistics are recorded by 'searchkit search' and 'searchkit serve'")
	}

	store, err := telemetry.OpenSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("failed to open query statistics: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	snap, err := telemetry.Summarize(store, days, top, time.Now())
	if err != nil {
		return fmt.Errorf("failed to read query statistics: %w", err)
	}

	report := statsQueriesOutput{
		Days:                days,
		TotalQueries:        snap.TotalQueries,
		ZeroResultPct:       snap.ZeroResultPercentage(),
		KindCounts:          make(map[string]int64, len(snap.KindCounts)),
		TopTerms:            snap.TopTerms,
		ZeroResultQueries:   snap.ZeroResultQueries,
		LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
	}
	for k, v := range snap.KindCounts {
		report.KindCounts[string(k)] = v
	}
	for k, v := range snap.LatencyDistribution {
		report.LatencyDistribution[string(k)] = v
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(report)
	}
	printStatsQueries(out, report)
	return nil
}

var kindOrder = []telemetry.QueryKind{
	telemetry.KindTerms,
	telemetry.KindBoolean,
	telemetry.KindPhrase,
	telemetry.KindWildcard,
	telemetry.KindSimilar,
}

var bucketLabels = map[telemetry.LatencyBucket]string{
	telemetry.BucketP10:   "<10ms",
	telemetry.BucketP50:   "10-50ms",
	telemetry.BucketP100:  "50-100ms",
	telemetry.BucketP500:  "100-500ms",
	telemetry.BucketP1000: ">=500ms",
}

func printStatsQueries(out *output.Writer, r statsQueriesOutput) {
	out.Line(fmt.Sprintf("Query Statistics (last %d %s)", r.Days, plural(r.Days, "day", "days")))
	out.Line("================")
	out.Newline()

	out.Line(fmt.Sprintf("Total Queries: %d", r.TotalQueries))
	out.Line(fmt.Sprintf("Zero Results:  %.1f%%", r.ZeroResultPct))
	out.Newline()

	if r.TotalQueries > 0 {
		out.Line("Query Kinds:")
		for _, k := range kindOrder {
			if n := r.KindCounts[string(k)]; n > 0 {
				out.Line(fmt.Sprintf("  %-9s %d", string(k)+":", n))
			}
		}
		out.Newline()

		out.Line("Latency (first chunk):")
		for _, b := range telemetry.Buckets {
			out.Line(fmt.Sprintf("  %-10s %d", bucketLabels[b]+":", r.LatencyDistribution[string(b)]))
		}
		out.Newline()
	}

	if len(r.TopTerms) > 0 {
		out.Line("Top Query Terms:")
		for i, tc := range r.TopTerms {
			out.Line(fmt.Sprintf("  %d. %s (%d)", i+1, tc.Term, tc.Count))
		}
	} else {
		out.Line("Top Query Terms: (none recorded yet)")
	}
	out.Newline()

	if len(r.ZeroResultQueries) > 0 {
		out.Line("Recent Zero-Result Queries:")
		for _, q := range slices.Compact(slices.Clone(r.ZeroResultQueries)) {
			out.Line(fmt.Sprintf("  - %q", q))
		}
	} else {
		out.Line("Recent Zero-Result Queries: (none)")
	}
}
