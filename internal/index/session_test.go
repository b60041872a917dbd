package index

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchkit/internal/engine"
	"github.com/Aman-CERP/searchkit/internal/result"
)

func addNumbered(t *testing.T, h *Handle, n int, text string) {
	t.Helper()
	docs := make(map[string]string, n)
	for i := range n {
		docs[fmt.Sprintf("doc://%03d", i)] = fmt.Sprintf("%s %d", text, i)
	}
	addTexts(t, h, docs)
}

func TestSession_ProgressiveIsComplete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h *Handle) {
		// Given: 23 matching documents
		addNumbered(t, h, 23, "common term")

		// When: drained in chunks of 5
		s := h.ProgressiveSearch("common", engine.SearchOptions{})
		var got []string
		var sizes []int
		for {
			page := s.Next(context.Background(), 5, time.Second)
			sizes = append(sizes, len(page.Results))
			got = append(got, result.URIs(page.Results)...)
			if !page.MoreAvailable {
				break
			}
		}

		// Then: the union equals the full search and the session is exhausted
		assert.Equal(t, []int{5, 5, 5, 5, 3}, sizes)
		assert.ElementsMatch(t, search(h, "common"), got)
		assert.Len(t, got, 23)
		assert.True(t, s.Exhausted())

		// And: later calls stay empty
		page := s.Next(context.Background(), 5, time.Second)
		assert.Empty(t, page.Results)
		assert.False(t, page.MoreAvailable)
	})
}

func TestSession_DefaultLimit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h *Handle) {
		addNumbered(t, h, 15, "paged")

		s := h.ProgressiveSearch("paged", engine.SearchOptions{})
		defer s.Cancel()
		page := s.Next(context.Background(), 0, 0)

		assert.Len(t, page.Results, DefaultLimit)
		assert.True(t, page.MoreAvailable)
	})
}

func TestSession_CancelIsTerminal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h *Handle) {
		// Given: a session with results left
		addNumbered(t, h, 10, "word")
		s := h.ProgressiveSearch("word", engine.SearchOptions{})
		first := s.Next(context.Background(), 3, time.Second)
		require.Len(t, first.Results, 3)

		// When: cancelled, twice
		s.Cancel()
		s.Cancel()

		// Then: no more results
		page := s.Next(context.Background(), 3, time.Second)
		assert.Empty(t, page.Results)
		assert.False(t, page.MoreAvailable)
		assert.True(t, s.Exhausted())
	})
}

func TestSession_CancelFromAnotherGoroutine(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h *Handle) {
		addNumbered(t, h, 50, "parallel")
		s := h.ProgressiveSearch("parallel", engine.SearchOptions{})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Cancel()
		}()
		for !s.Exhausted() {
			s.Next(context.Background(), 1, time.Second)
		}
		wg.Wait()

		assert.Empty(t, s.Next(context.Background(), 1, time.Second).Results)
	})
}

// stalledEngine serves searches whose chunks block until their context
// ends, then return partial hits with the context error.
type stalledEngine struct {
	engine.Engine
	partial []engine.Hit
	entered chan struct{}
	calls   atomic.Int32
	closed  atomic.Bool
}

func newStalledHandle(t *testing.T, partial ...engine.Hit) (*Handle, *stalledEngine) {
	t.Helper()
	inner, err := engine.NewMemory(engine.DefaultProperties())
	require.NoError(t, err)
	e := &stalledEngine{Engine: inner, partial: partial, entered: make(chan struct{}, 16)}
	h := newHandle(e, "", nil)
	t.Cleanup(func() { _ = h.Close() })
	return h, e
}

func (e *stalledEngine) Search(string, engine.SearchOptions) (engine.Session, error) {
	return &stalledSession{engine: e}, nil
}

type stalledSession struct {
	engine *stalledEngine
}

func (s *stalledSession) Next(ctx context.Context, _ int) (engine.Chunk, error) {
	s.engine.calls.Add(1)
	s.engine.entered <- struct{}{}
	<-ctx.Done()
	return engine.Chunk{Hits: s.engine.partial, More: true}, ctx.Err()
}

func (s *stalledSession) Cancel() { s.engine.closed.Store(true) }

func TestSession_CancelDuringChunk(t *testing.T) {
	// Given: a chunk that is blocked in the engine
	h, e := newStalledHandle(t, engine.Hit{URI: "doc://partial", Score: 1})
	s := h.ProgressiveSearch("anything", engine.SearchOptions{})

	pages := make(chan result.Page, 1)
	start := time.Now()
	go func() { pages <- s.Next(context.Background(), 10, time.Minute) }()
	<-e.entered

	// When: the session is cancelled from another goroutine
	s.Cancel()

	// Then: the chunk returns promptly with nothing and no more results
	select {
	case page := <-pages:
		assert.Empty(t, page.Results)
		assert.False(t, page.MoreAvailable)
		assert.False(t, page.TimedOut)
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not observe the cancellation")
	}
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, s.Exhausted())
	assert.True(t, e.closed.Load())
}

func TestSession_ChunkTimeout(t *testing.T) {
	// Given: a chunk that materialized one hit before stalling
	h, _ := newStalledHandle(t, engine.Hit{URI: "doc://partial", Score: 1})
	s := h.ProgressiveSearch("anything", engine.SearchOptions{})
	defer s.Cancel()

	// When: the chunk runs out of time
	start := time.Now()
	page := s.Next(context.Background(), 10, 50*time.Millisecond)

	// Then: the partial result is delivered and the session can continue
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.True(t, page.TimedOut)
	assert.True(t, page.MoreAvailable)
	assert.Equal(t, []string{"doc://partial"}, result.URIs(page.Results))
	assert.False(t, s.Exhausted())
}

func TestSearch_StopsAfterEmptyTimedOutChunk(t *testing.T) {
	// Given: an engine whose chunks always time out empty
	h, e := newStalledHandle(t)

	// When: searching everything with a short chunk budget
	start := time.Now()
	results := h.Search(context.Background(), "anything", 10, 30*time.Millisecond, engine.SearchOptions{})

	// Then: one chunk ran and the search gave up
	assert.Empty(t, results)
	assert.Equal(t, int32(1), e.calls.Load())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, e.closed.Load())
}

func TestSession_CallerContextDoneIsResumable(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h *Handle) {
		// Given: a session and an already finished context
		addNumbered(t, h, 4, "resume")
		s := h.ProgressiveSearch("resume", engine.SearchOptions{})
		defer s.Cancel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// When: asking for a chunk
		page := s.Next(ctx, 10, time.Second)

		// Then: the page is empty but the session can continue
		assert.Empty(t, page.Results)
		assert.True(t, page.MoreAvailable)
		assert.False(t, s.Exhausted())

		page = s.Next(context.Background(), 10, time.Second)
		assert.Len(t, page.Results, 4)
	})
}

func TestSession_InvalidQueryIsExhausted(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h *Handle) {
		addTexts(t, h, map[string]string{"doc://a": "text"})

		s := h.ProgressiveSearch(`"unterminated`, engine.SearchOptions{})

		assert.True(t, s.Exhausted())
		assert.False(t, s.Next(context.Background(), 5, time.Second).MoreAvailable)
		s.Cancel()
	})
}

func TestSession_ClosedHandle(t *testing.T) {
	h, err := NewMemory(engine.DefaultProperties())
	require.NoError(t, err)
	addTexts(t, h, map[string]string{"doc://a": "text"})

	s := h.ProgressiveSearch("text", engine.SearchOptions{})
	require.NoError(t, h.Close())

	page := s.Next(context.Background(), 5, time.Second)
	assert.Empty(t, page.Results)
	assert.False(t, page.MoreAvailable)
	assert.True(t, s.Exhausted())
}

func TestSession_SeesLaterCommits(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h *Handle) {
		ctx := context.Background()
		s := h.ProgressiveSearch("later", engine.SearchOptions{})
		defer s.Cancel()

		require.True(t, h.AddText(ctx, "doc://late", "later arrival", true))
		require.True(t, h.Flush(ctx))

		page := s.Next(ctx, 10, time.Second)
		assert.Equal(t, []string{"doc://late"}, result.URIs(page.Results))
	})
}

func TestSearch_NoRelevanceScores(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h *Handle) {
		addTexts(t, h, map[string]string{"doc://a": "alpha beta", "doc://b": "alpha alpha alpha"})

		results := h.Search(context.Background(), "alpha", 10, time.Second, engine.SearchOptions{NoRelevanceScores: true})

		require.Len(t, results, 2)
		for _, r := range results {
			assert.Zero(t, r.Score)
		}
	})
}

func TestSearch_ContextDone(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h *Handle) {
		addNumbered(t, h, 5, "stop")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Empty(t, h.Search(ctx, "stop", 1, time.Second, engine.SearchOptions{}))
	})
}
