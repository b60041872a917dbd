package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/searchkit/internal/annotate"
	"github.com/Aman-CERP/searchkit/internal/async"
	"github.com/Aman-CERP/searchkit/internal/config"
	"github.com/Aman-CERP/searchkit/internal/engine"
	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/index"
	"github.com/Aman-CERP/searchkit/internal/result"
	"github.com/Aman-CERP/searchkit/internal/telemetry"
	"github.com/Aman-CERP/searchkit/pkg/version"
)

// DefaultMaxSessions bounds the progressive searches kept open between
// calls. The least recently used one is cancelled when the bound is hit.
const DefaultMaxSessions = 64

// Result limits for a single chunk.
const (
	minLimit = 1
	maxLimit = 100
)

// Server is the MCP server for SearchKit.
type Server struct {
	mcp       *mcp.Server
	index     *index.Handle
	annotator *annotate.Annotator
	excerpts  *annotate.Renderer
	config    *config.Config
	logger    *slog.Logger

	// Open progressive searches, keyed by session ID.
	sessions *lru.Cache[string, *searchSession]

	// Background ingestion (nil if none runs)
	indexer *async.BackgroundIndexer

	// Query statistics (nil disables recording)
	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// searchSession is a progressive search kept open between tool calls.
type searchSession struct {
	session *index.Session
	query   string
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search",
		Description: "Full-text search over the indexed documents. Returns one chunk of results, best first; pass the returned session to fetch the next chunk. Set with_lines to get the matching lines with context.",
	},
	{
		Name:        "annotate",
		Description: "Locate a keyword in one document. Returns every line where it occurs as a whole word, with surrounding context.",
	},
	{
		Name:        "add_text",
		Description: "Add a text document to the index. The document is searchable once the call returns with flushed set.",
	},
	{
		Name:        "index_status",
		Description: "Describe the index: engine, document count and background ingestion progress.",
	},
}

// NewServer creates a new MCP server over h.
func NewServer(h *index.Handle, cfg *config.Config) (*Server, error) {
	if h == nil {
		return nil, errors.New("index handle is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	mode, err := annotate.ParseMode(cfg.Annotate.Mode)
	if err != nil {
		return nil, err
	}

	s := &Server{
		index: h,
		annotator: annotate.New(h, annotate.Options{
			Mode:      mode,
			CacheSize: cfg.Annotate.CacheSize,
		}),
		excerpts: annotate.NewRenderer(cfg.Annotate.ContextChars, lipgloss.NewStyle(), lipgloss.NewStyle()),
		config:   cfg,
		logger:   slog.Default(),
	}

	s.sessions, err = lru.NewWithEvict(DefaultMaxSessions, func(id string, ss *searchSession) {
		ss.session.Cancel()
		s.logger.Debug("search_session_closed", slog.String("session", id))
	})
	if err != nil {
		return nil, err
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "SearchKit",
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// SetIndexer attaches a background ingestion run whose progress is
// reported by index_status and search.
func (s *Server) SetIndexer(b *async.BackgroundIndexer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexer = b
}

// SetMetrics records every new search in m.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "SearchKit", version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name. search, annotate and add_text return
// markdown; index_status returns *IndexStatusOutput.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		var input SearchInput
		if err := decodeArgs(args, &input); err != nil {
			return nil, err
		}
		out, err := s.search(ctx, input)
		if err != nil {
			return nil, err
		}
		return FormatSearchResults(input.Query, out), nil
	case "annotate":
		var input AnnotateInput
		if err := decodeArgs(args, &input); err != nil {
			return nil, err
		}
		out, err := s.annotate(ctx, input)
		if err != nil {
			return nil, err
		}
		return FormatAnnotation(input.Keyword, out), nil
	case "add_text":
		var input AddTextInput
		if err := decodeArgs(args, &input); err != nil {
			return nil, err
		}
		out, err := s.addText(ctx, input)
		if err != nil {
			return nil, err
		}
		return FormatAddText(out), nil
	case "index_status":
		return s.indexStatus(), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// decodeArgs converts loosely typed tool arguments into a tool input.
func decodeArgs(args map[string]any, into any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, into); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

// search runs one chunk of a new or continued progressive search.
func (s *Server) search(ctx context.Context, input SearchInput) (SearchOutput, error) {
	start := time.Now()
	requestID := uuid.NewString()[:8]

	limit := clampLimit(input.Limit, s.config.Search.Limit, minLimit, maxLimit)

	var (
		id      = input.Session
		ss      *searchSession
		similar bool
	)
	if id != "" {
		var ok bool
		if ss, ok = s.sessions.Get(id); !ok {
			return SearchOutput{}, NewSessionNotFoundError(id)
		}
	} else {
		query := strings.TrimSpace(input.Query)
		if query == "" {
			return SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
		}
		if err := engine.ValidateQuery(query); err != nil {
			return SearchOutput{}, MapError(err)
		}
		opts := engine.SearchOptions{
			SpaceMeansOR: input.AnyTerm || s.config.Search.SpaceMeansOR,
			FindSimilar:  input.Similar,
		}
		similar = input.Similar
		ss = &searchSession{session: s.index.ProgressiveSearch(query, opts), query: query}
	}

	s.logger.Info("search_started",
		slog.String("request_id", requestID),
		slog.String("query", ss.query),
		slog.Bool("continued", id != ""),
		slog.Int("limit", limit))

	page := ss.session.Next(ctx, limit, s.config.SearchTimeout())
	if err := ctx.Err(); err != nil {
		if id == "" {
			ss.session.Cancel()
		}
		return SearchOutput{}, MapError(err)
	}

	if id == "" {
		s.recordQuery(ss.query, similar, len(page.Results), time.Since(start))
	}

	out := SearchOutput{
		Results:       make([]SearchResultOutput, 0, len(page.Results)),
		MoreAvailable: page.MoreAvailable,
		TimedOut:      page.TimedOut,
		Indexing:      s.indexingProgress(true),
	}
	switch {
	case page.MoreAvailable && id == "":
		id = uuid.NewString()
		s.sessions.Add(id, ss)
		out.Session = id
	case page.MoreAvailable:
		out.Session = id
	case id != "":
		s.sessions.Remove(id)
	default:
		ss.session.Cancel()
	}

	var annotated map[string][]result.LineMatch
	if input.WithLines {
		annotated = make(map[string][]result.LineMatch, len(page.Results))
		for _, a := range s.annotator.AnnotateAll(ctx, page.Results, ss.query, false) {
			annotated[a.URI] = a.Lines
		}
	}
	for _, r := range page.Results {
		out.Results = append(out.Results, SearchResultOutput{
			URI:   r.URI,
			Score: r.Score,
			Lines: s.lineOutputs(annotated[r.URI]),
		})
	}

	s.logger.Info("search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(out.Results)),
		slog.Bool("more_available", out.MoreAvailable),
		slog.Bool("timed_out", out.TimedOut))

	return out, nil
}

func (s *Server) recordQuery(query string, similar bool, results int, latency time.Duration) {
	s.mu.RLock()
	m := s.metrics
	s.mu.RUnlock()
	if m == nil {
		return
	}
	m.Record(telemetry.QueryEvent{
		Query:       query,
		Kind:        telemetry.ClassifyQuery(query, similar),
		ResultCount: results,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

// annotate locates a keyword in one indexed document.
func (s *Server) annotate(ctx context.Context, input AnnotateInput) (AnnotateOutput, error) {
	if input.URI == "" {
		return AnnotateOutput{}, NewInvalidParamsError("uri parameter is required")
	}
	if strings.TrimSpace(input.Keyword) == "" {
		return AnnotateOutput{}, NewInvalidParamsError("keyword cannot be empty or whitespace only")
	}
	if !s.index.DocumentIndexed(input.URI) {
		return AnnotateOutput{}, MapError(skerrors.New(skerrors.ErrCodeDocumentNotFound,
			fmt.Sprintf("document not indexed: %s", input.URI), nil))
	}

	lines, err := s.annotator.Annotate(ctx, result.SearchResult{URI: input.URI}, input.Keyword)
	if err != nil {
		s.logger.Warn("annotate_failed",
			slog.String("uri", input.URI),
			slog.String("error", err.Error()))
		return AnnotateOutput{}, MapError(err)
	}
	return AnnotateOutput{URI: input.URI, Lines: s.lineOutputs(lines)}, nil
}

// addText adds a literal document and commits it.
func (s *Server) addText(ctx context.Context, input AddTextInput) (AddTextOutput, error) {
	if strings.TrimSpace(input.URI) == "" {
		return AddTextOutput{}, NewInvalidParamsError("uri parameter is required")
	}

	out := AddTextOutput{URI: input.URI}
	out.Added = s.index.AddText(ctx, input.URI, input.Text, input.Replace)
	if out.Added {
		out.Flushed = s.index.Flush(ctx)
	}
	if err := ctx.Err(); err != nil {
		return out, MapError(err)
	}

	s.logger.Info("add_text_completed",
		slog.String("uri", input.URI),
		slog.Bool("added", out.Added),
		slog.Bool("flushed", out.Flushed))
	return out, nil
}

// indexStatus describes the index and any background ingestion.
func (s *Server) indexStatus() *IndexStatusOutput {
	props := s.index.Properties()
	path := s.index.Path()
	if path == "" {
		path = "memory"
	}
	return &IndexStatusOutput{
		Index: IndexInfo{
			Path:          path,
			Backend:       props.Backend,
			Type:          string(props.Type),
			Proximity:     props.Proximity,
			StopWords:     props.StopWords,
			MinTermLength: props.MinTermLength,
			Documents:     s.index.DocumentCount(),
			OpenSessions:  s.sessions.Len(),
		},
		Indexing: s.indexingProgress(false),
	}
}

// indexingProgress snapshots background ingestion. With onlyRunning it
// returns nil once ingestion has finished.
func (s *Server) indexingProgress(onlyRunning bool) *IndexingProgress {
	s.mu.RLock()
	b := s.indexer
	s.mu.RUnlock()
	if b == nil {
		return nil
	}

	progress := b.Progress()
	if onlyRunning && !progress.IsIndexing() {
		return nil
	}
	snap := progress.Snapshot()
	return &IndexingProgress{
		Status:         snap.Status,
		Stage:          snap.Stage,
		FilesTotal:     snap.Total,
		FilesProcessed: snap.Processed,
		FilesFailed:    snap.Failed,
		ProgressPct:    snap.ProgressPct,
		ElapsedSeconds: snap.ElapsedSeconds,
		ErrorMessage:   snap.ErrorMessage,
	}
}

func (s *Server) lineOutputs(lines []result.LineMatch) []LineOutput {
	if len(lines) == 0 {
		return nil
	}
	out := make([]LineOutput, len(lines))
	for i, m := range lines {
		out[i] = LineOutput{
			Line:    m.Line,
			Excerpt: s.excerpts.Render(m),
			Start:   m.Start,
			End:     m.End,
		}
	}
	return out
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpAnnotateHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpAddTextHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[3].Name, Description: tools[3].Description}, s.mcpIndexStatusHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", len(tools)))
}

// mcpSearchHandler is the MCP SDK handler for the search tool.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	out, err := s.search(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, out, nil
}

// mcpAnnotateHandler is the MCP SDK handler for the annotate tool.
func (s *Server) mcpAnnotateHandler(ctx context.Context, _ *mcp.CallToolRequest, input AnnotateInput) (
	*mcp.CallToolResult,
	AnnotateOutput,
	error,
) {
	out, err := s.annotate(ctx, input)
	if err != nil {
		return nil, AnnotateOutput{}, err
	}
	return nil, out, nil
}

// mcpAddTextHandler is the MCP SDK handler for the add_text tool.
func (s *Server) mcpAddTextHandler(ctx context.Context, _ *mcp.CallToolRequest, input AddTextInput) (
	*mcp.CallToolResult,
	AddTextOutput,
	error,
) {
	out, err := s.addText(ctx, input)
	if err != nil {
		return nil, AddTextOutput{}, err
	}
	return nil, out, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	return nil, s.indexStatus(), nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close cancels every open search session. The index handle stays open;
// it belongs to the caller.
func (s *Server) Close() error {
	s.sessions.Purge()
	return nil
}

