package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchkit/internal/annotate"
	"github.com/Aman-CERP/searchkit/internal/engine"
	"github.com/Aman-CERP/searchkit/internal/output"
	"github.com/Aman-CERP/searchkit/internal/result"
	"github.com/Aman-CERP/searchkit/internal/telemetry"
)

type searchOptions struct {
	limit       int
	chunk       int
	timeout     time.Duration
	progressive bool
	lines       bool
	keyword     string
	similar     bool
	anyTerm     bool
	noScores    bool
	sorted      bool
	format      string
}

// searchReport is the JSON form of a search.
type searchReport struct {
	Query         string             `json:"query"`
	Results       []result.Annotated `json:"results"`
	Chunks        int                `json:"chunks"`
	MoreAvailable bool               `json:"more_available"`
	TimedOut      bool               `json:"timed_out,omitempty"`
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search the index. Terms are ANDed unless --or is given.

Query syntax:
  apache license       both terms
  apache | mit         either term (also: OR)
  apache !gpl          exclude a term (also: NOT)
  "software license"   phrase
  lic*                 wildcard

Results arrive in chunks of --chunk results, each bounded by --timeout.
With --progressive, chunks are fetched until the search is exhausted or
--limit results were shown. Chunk order is decided by the engine; --sort
fetches every chunk first and prints one ranking by score. With --lines, each result lists the lines
containing the keyword as a whole word, and results without such a line
are dropped.`,
		Example: `  searchkit search "apache license"
  searchkit search --progressive --chunk 50 licen*
  searchkit search --lines --keyword school "school trip"
  searchkit search --format json apache`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			return runSearch(ctx, cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (default: one chunk, or all with --progressive)")
	cmd.Flags().IntVar(&opts.chunk, "chunk", 0, "Results per chunk (default: search.limit)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Time budget per chunk (default: search.timeout)")
	cmd.Flags().BoolVarP(&opts.progressive, "progressive", "p", false, "Keep fetching chunks until the search is exhausted")
	cmd.Flags().BoolVarP(&opts.lines, "lines", "l", false, "Show matching lines and drop results without any")
	cmd.Flags().StringVar(&opts.keyword, "keyword", "", "Keyword to find in lines (default: the query)")
	cmd.Flags().BoolVar(&opts.similar, "similar", false, "Find documents similar to the query terms")
	cmd.Flags().BoolVar(&opts.anyTerm, "or", false, "Match any term instead of all terms")
	cmd.Flags().BoolVar(&opts.noScores, "no-scores", false, "Skip relevance scoring (faster, unordered)")
	cmd.Flags().BoolVar(&opts.sorted, "sort", false, "Fetch every chunk (up to --limit), then order all results by score")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text or json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) (err error) {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if err := engine.ValidateQuery(query); err != nil {
		return err
	}

	ws, err := loadWorkspace(".")
	if err != nil {
		return err
	}
	cfg := ws.cfg
	if opts.chunk <= 0 {
		opts.chunk = cfg.Search.Limit
	}
	if opts.timeout <= 0 {
		opts.timeout = cfg.SearchTimeout()
	}
	if opts.keyword == "" {
		opts.keyword = query
	}
	if opts.sorted {
		opts.progressive = true
	}
	if !opts.progressive && opts.limit <= 0 {
		opts.limit = opts.chunk
	}

	mode, err := annotate.ParseMode(cfg.Annotate.Mode)
	if err != nil {
		return err
	}

	h, err := ws.open(false)
	if err != nil {
		return err
	}
	defer closeIndex(h, &err)

	var annotator *annotate.Annotator
	if opts.lines {
		annotator = annotate.New(h, annotate.Options{Mode: mode, CacheSize: cfg.Annotate.CacheSize})
	}

	session := h.ProgressiveSearch(query, engine.SearchOptions{
		NoRelevanceScores: opts.noScores,
		SpaceMeansOR:      opts.anyTerm || cfg.Search.SpaceMeansOR,
		FindSimilar:       opts.similar,
	})
	defer session.Cancel()

	out := output.NewStyled(cmd.OutOrStdout(), styles(cmd), cfg.Annotate.ContextChars)
	report := searchReport{Query: query, Results: []result.Annotated{}}
	start := time.Now()
	fetched := 0
	var last result.Page

	for {
		size := opts.chunk
		if !opts.progressive {
			size = opts.limit
		}
		if opts.limit > 0 {
			size = min(size, opts.limit-fetched)
		}

		last = session.Next(ctx, size, opts.timeout)
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Chunks++
		if report.Chunks == 1 {
			recordSearch(ws, query, opts.similar, len(last.Results), time.Since(start))
		}
		report.TimedOut = report.TimedOut || last.TimedOut
		fetched += len(last.Results)

		var hits []result.Annotated
		if annotator != nil {
			hits = annotator.AnnotateAll(ctx, last.Results, opts.keyword, true)
		} else {
			hits = make([]result.Annotated, len(last.Results))
			for i, r := range last.Results {
				hits[i].SearchResult = r
			}
		}

		if format == output.FormatText && !opts.sorted {
			if annotator != nil {
				out.Annotated(len(report.Results)+1, hits)
			} else {
				out.Results(len(report.Results)+1, last.Results)
			}
		}
		report.Results = append(report.Results, hits...)

		if !opts.progressive || !last.MoreAvailable || (opts.limit > 0 && fetched >= opts.limit) {
			break
		}
	}
	report.MoreAvailable = last.MoreAvailable
	if opts.sorted {
		result.SortByScore(report.Results)
		if format == output.FormatText {
			out.Annotated(1, report.Results)
		}
	}

	slog.Info("search_completed",
		slog.String("query", query),
		slog.Int("results", len(report.Results)),
		slog.Int("chunks", report.Chunks),
		slog.Bool("timed_out", report.TimedOut),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	if format == output.FormatJSON {
		return out.JSON(report)
	}

	if len(report.Results) == 0 && !report.MoreAvailable {
		out.Warning(fmt.Sprintf("No results for %q", query))
		return nil
	}
	out.PageFooter(result.Page{MoreAvailable: report.MoreAvailable, TimedOut: last.TimedOut})
	return nil
}

// recordSearch adds a search, measured up to its first chunk, to the
// query statistics shown by 'searchkit stats'.
func recordSearch(ws *workspace, query string, similar bool, results int, latency time.Duration) {
	metrics, closeStats := ws.openQueryStats(telemetry.Config{})
	defer closeStats()
	metrics.Record(telemetry.QueryEvent{
		Query:       query,
		Kind:        telemetry.ClassifyQuery(query, similar),
		ResultCount: results,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}
