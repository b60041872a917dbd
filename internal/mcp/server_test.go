package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchkit/internal/async"
	"github.com/Aman-CERP/searchkit/internal/config"
	"github.com/Aman-CERP/searchkit/internal/content"
	"github.com/Aman-CERP/searchkit/internal/engine"
	"github.com/Aman-CERP/searchkit/internal/index"
	"github.com/Aman-CERP/searchkit/internal/telemetry"
)

const (
	timeout = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// newTestServer creates a server over an in-memory index holding docs.
func newTestServer(t *testing.T, docs map[string]string) (*Server, *index.Handle) {
	t.Helper()
	h, err := index.NewMemory(engine.DefaultProperties())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	ctx := context.Background()
	for uri, text := range docs {
		require.True(t, h.AddText(ctx, uri, text, true), uri)
	}
	require.True(t, h.Flush(ctx))

	srv, err := NewServer(h, config.NewConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, h
}

func numberedDocs(n int, text string) map[string]string {
	docs := make(map[string]string, n)
	for i := range n {
		docs[fmt.Sprintf("doc://%03d", i)] = fmt.Sprintf("%s %d", text, i)
	}
	return docs
}

func TestNewServer_RequiresIndex(t *testing.T) {
	_, err := NewServer(nil, nil)
	require.Error(t, err)
}

func TestNewServer_RejectsUnknownAnnotateMode(t *testing.T) {
	h, err := index.NewMemory(engine.DefaultProperties())
	require.NoError(t, err)
	defer func() { _ = h.Close() }()

	cfg := config.NewConfig()
	cfg.Annotate.Mode = "every"

	_, err = NewServer(h, cfg)
	require.Error(t, err)
}

func TestServer_InfoAndTools(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	name, _ := srv.Info()
	assert.Equal(t, "SearchKit", name)
	require.NotNil(t, srv.MCPServer())

	var names []string
	for _, tool := range srv.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"search", "annotate", "add_text", "index_status"}, names)
}

func TestCallTool_UnknownTool(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	_, err := srv.CallTool(context.Background(), "nonexistent_tool", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestCallTool_InvalidArguments(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	_, err := srv.CallTool(context.Background(), "search", map[string]any{"limit": "ten"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestSearch_ReturnsMatches(t *testing.T) {
	// Given: two documents
	srv, _ := newTestServer(t, map[string]string{
		"doc://a": "apache license",
		"doc://b": "the school trip",
	})

	// When: searching for a term of one of them
	out, err := srv.search(context.Background(), SearchInput{Query: "apache"})

	// Then: only that document matches and the session is not kept
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "doc://a", out.Results[0].URI)
	assert.False(t, out.MoreAvailable)
	assert.Empty(t, out.Session)
	assert.Zero(t, srv.sessions.Len())
}

func TestSearch_EmptyQuery(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, q := range []string{"", "   "} {
		_, err := srv.search(context.Background(), SearchInput{Query: q})

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr, "query %q", q)
		assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	}
}

func TestSearch_MalformedQuery(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	_, err := srv.search(context.Background(), SearchInput{Query: `"apache license`})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "unterminated quote")
}

func TestSearch_ContinuesSession(t *testing.T) {
	// Given: 25 matching documents
	srv, _ := newTestServer(t, numberedDocs(25, "common term"))
	ctx := context.Background()

	// When: the first chunk is requested
	first, err := srv.search(ctx, SearchInput{Query: "common", Limit: 10})
	require.NoError(t, err)

	// Then: it returns a session to continue with
	assert.Len(t, first.Results, 10)
	assert.True(t, first.MoreAvailable)
	require.NotEmpty(t, first.Session)
	assert.Equal(t, 1, srv.sessions.Len())

	// When: the session is drained
	seen := map[string]bool{}
	for _, r := range first.Results {
		seen[r.URI] = true
	}
	out := first
	for out.MoreAvailable {
		out, err = srv.search(ctx, SearchInput{Session: first.Session, Limit: 10})
		require.NoError(t, err)
		for _, r := range out.Results {
			assert.False(t, seen[r.URI], "duplicate %s", r.URI)
			seen[r.URI] = true
		}
	}

	// Then: every document was delivered once and the session is released
	assert.Len(t, seen, 25)
	assert.Zero(t, srv.sessions.Len())

	_, err = srv.search(ctx, SearchInput{Session: first.Session})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeSessionNotFound, mcpErr.Code)
}

func TestSearch_RecordsNewQueriesOnly(t *testing.T) {
	// Given: a server with query statistics
	srv, _ := newTestServer(t, numberedDocs(15, "common term"))
	metrics := telemetry.NewQueryMetricsWithConfig(nil, telemetry.Config{})
	t.Cleanup(func() { _ = metrics.Close() })
	srv.SetMetrics(metrics)
	ctx := context.Background()

	// When: one search is continued and another finds nothing
	first, err := srv.search(ctx, SearchInput{Query: "common", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, first.Session)
	_, err = srv.search(ctx, SearchInput{Session: first.Session, Limit: 10})
	require.NoError(t, err)
	_, err = srv.search(ctx, SearchInput{Query: `"missing phrase"`})
	require.NoError(t, err)

	// Then: only the two new searches are counted
	snap := metrics.Snapshot()
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.KindCounts[telemetry.KindTerms])
	assert.Equal(t, int64(1), snap.KindCounts[telemetry.KindPhrase])
	assert.Equal(t, []string{`"missing phrase"`}, snap.ZeroResultQueries)
}

func TestSearch_UnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	_, err := srv.search(context.Background(), SearchInput{Session: "deadbeef"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeSessionNotFound, mcpErr.Code)
}

func TestSearch_CanceledContext(t *testing.T) {
	srv, _ := newTestServer(t, numberedDocs(25, "common term"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := srv.search(ctx, SearchInput{Query: "common"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeTimeout, mcpErr.Code)
	assert.Zero(t, srv.sessions.Len())
}

func TestSearch_SessionsAreBounded(t *testing.T) {
	srv, _ := newTestServer(t, numberedDocs(3, "common term"))
	ctx := context.Background()

	// When: more sessions stay open than the cache holds
	for range DefaultMaxSessions + 5 {
		out, err := srv.search(ctx, SearchInput{Query: "common", Limit: 1})
		require.NoError(t, err)
		require.True(t, out.MoreAvailable)
	}

	// Then: the oldest ones were evicted
	assert.Equal(t, DefaultMaxSessions, srv.sessions.Len())

	// And: Close releases the rest
	require.NoError(t, srv.Close())
	assert.Zero(t, srv.sessions.Len())
}

func TestSearch_AnyTerm(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"doc://a": "apache license",
		"doc://b": "the school trip",
	})
	ctx := context.Background()

	and, err := srv.search(ctx, SearchInput{Query: "apache school"})
	require.NoError(t, err)
	assert.Empty(t, and.Results)

	or, err := srv.search(ctx, SearchInput{Query: "apache school", AnyTerm: true})
	require.NoError(t, err)
	assert.Len(t, or.Results, 2)
}

func TestSearch_WithLines(t *testing.T) {
	// Given: a document where the keyword occurs on two lines
	srv, _ := newTestServer(t, map[string]string{
		"doc://a": "first line\nthe apache license\nno match\napache again",
	})

	// When: searching with lines
	out, err := srv.search(context.Background(), SearchInput{Query: "apache", WithLines: true})

	// Then: both lines are reported with excerpts
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	lines := out.Results[0].Lines
	require.Len(t, lines, 2)
	assert.Equal(t, 2, lines[0].Line)
	assert.Equal(t, "the apache license", lines[0].Excerpt)
	assert.Equal(t, 4, lines[1].Line)
	assert.Equal(t, 0, lines[1].Start)
	assert.Equal(t, 6, lines[1].End)
}

func TestSearch_ReportsRunningIngestion(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{"doc://a": "apache"})

	// Given: an ingestion that blocks until released
	release := make(chan struct{})
	b := async.NewBackgroundIndexer(async.IndexerConfig{})
	b.IndexFunc = func(ctx context.Context, p *async.Progress) error {
		p.SetStage(async.StageIndexing, 4)
		p.Done("doc://x", true)
		<-release
		return nil
	}
	srv.SetIndexer(b)
	b.Start(context.Background())
	require.Eventually(t, func() bool {
		return b.Progress().Snapshot().Processed == 1
	}, timeout, tick)

	// When: searching during ingestion
	out, err := srv.search(context.Background(), SearchInput{Query: "apache"})

	// Then: results come with the ingestion progress
	require.NoError(t, err)
	assert.Len(t, out.Results, 1)
	require.NotNil(t, out.Indexing)
	assert.Equal(t, "indexing", out.Indexing.Status)
	assert.Equal(t, 4, out.Indexing.FilesTotal)
	assert.InDelta(t, 25.0, out.Indexing.ProgressPct, 0.01)

	// And: once ingestion is done the note disappears
	close(release)
	require.NoError(t, b.Wait())
	out, err = srv.search(context.Background(), SearchInput{Query: "apache"})
	require.NoError(t, err)
	assert.Nil(t, out.Indexing)
}

func TestSearch_ConcurrentCalls(t *testing.T) {
	srv, _ := newTestServer(t, numberedDocs(20, "common term"))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := srv.search(context.Background(), SearchInput{Query: "common"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestAnnotate_FileDocument(t *testing.T) {
	// Given: an indexed file
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("the school trip\nschoolbus\nSchool is out"), 0644))

	srv, h := newTestServer(t, nil)
	require.True(t, h.AddFile(context.Background(), path, "", false))
	require.True(t, h.Flush(context.Background()))

	// When: annotating a whole-word keyword
	out, err := srv.annotate(context.Background(), AnnotateInput{URI: content.FileURI(path), Keyword: "school"})

	// Then: lines 1 and 3 match, schoolbus does not
	require.NoError(t, err)
	require.Len(t, out.Lines, 2)
	assert.Equal(t, 1, out.Lines[0].Line)
	assert.Equal(t, 3, out.Lines[1].Line)
}

func TestAnnotate_Validation(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{"doc://a": "apache"})
	ctx := context.Background()

	tests := []struct {
		name  string
		input AnnotateInput
		code  int
	}{
		{"missing uri", AnnotateInput{Keyword: "apache"}, ErrCodeInvalidParams},
		{"blank keyword", AnnotateInput{URI: "doc://a", Keyword: " "}, ErrCodeInvalidParams},
		{"unknown document", AnnotateInput{URI: "doc://missing", Keyword: "apache"}, ErrCodeDocumentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.annotate(ctx, tt.input)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, tt.code, mcpErr.Code)
		})
	}
}

func TestAddText_IsSearchable(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ctx := context.Background()

	// When: adding a document
	out, err := srv.addText(ctx, AddTextInput{URI: "doc://new", Text: "fresh content"})

	// Then: it is committed and found by search
	require.NoError(t, err)
	assert.True(t, out.Added)
	assert.True(t, out.Flushed)

	res, err := srv.search(ctx, SearchInput{Query: "fresh"})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "doc://new", res.Results[0].URI)
}

func TestAddText_ExistingWithoutReplace(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{"doc://a": "apache"})

	out, err := srv.addText(context.Background(), AddTextInput{URI: "doc://a", Text: "other"})

	require.NoError(t, err)
	assert.False(t, out.Added)
	assert.False(t, out.Flushed)
}

func TestAddText_RequiresURI(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	_, err := srv.addText(context.Background(), AddTextInput{Text: "orphan"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestIndexStatus(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"doc://a": "apache",
		"doc://b": "school",
	})

	status := srv.indexStatus()

	assert.Equal(t, "memory", status.Index.Path)
	assert.Equal(t, engine.BackendBleve, status.Index.Backend)
	assert.Equal(t, string(engine.TypeInverted), status.Index.Type)
	assert.True(t, status.Index.Proximity)
	assert.Equal(t, uint64(2), status.Index.Documents)
	assert.Nil(t, status.Indexing)
}

func TestIndexStatus_AfterIngestionFailed(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	b := async.NewBackgroundIndexer(async.IndexerConfig{})
	b.IndexFunc = func(context.Context, *async.Progress) error {
		return fmt.Errorf("disk gone")
	}
	srv.SetIndexer(b)
	b.Start(context.Background())
	require.Error(t, b.Wait())

	status := srv.indexStatus()

	require.NotNil(t, status.Indexing)
	assert.Equal(t, "error", status.Indexing.Status)
	assert.Equal(t, "disk gone", status.Indexing.ErrorMessage)
}

func TestCallTool_ReturnsMarkdown(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{"doc://a": "apache license"})
	ctx := context.Background()

	res, err := srv.CallTool(ctx, "search", map[string]any{"query": "apache", "with_lines": true})
	require.NoError(t, err)
	text, ok := res.(string)
	require.True(t, ok, "expected string result, got %T", res)
	assert.Contains(t, text, "## Search Results for \"apache\"")
	assert.Contains(t, text, "doc://a")
	assert.Contains(t, text, "line 1")

	res, err = srv.CallTool(ctx, "add_text", map[string]any{"uri": "doc://b", "text": "school"})
	require.NoError(t, err)
	assert.Contains(t, res, "added and searchable")

	res, err = srv.CallTool(ctx, "annotate", map[string]any{"uri": "doc://b", "keyword": "school"})
	require.NoError(t, err)
	assert.Contains(t, res, "Found 1 line")

	res, err = srv.CallTool(ctx, "index_status", nil)
	require.NoError(t, err)
	status, ok := res.(*IndexStatusOutput)
	require.True(t, ok)
	assert.Equal(t, uint64(2), status.Index.Documents)
}

func TestServe_UnknownTransport(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	err := srv.Serve(context.Background(), "sse")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}
