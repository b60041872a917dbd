package index

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/searchkit/internal/engine"
	"github.com/Aman-CERP/searchkit/internal/result"
)

// Search defaults.
const (
	DefaultLimit   = 10
	DefaultTimeout = time.Second
)

// Session is a resumable, cancellable search delivered in chunks. It is
// owned by its creator; Next calls are serialized, Cancel may be called from
// any goroutine.
type Session struct {
	handle *Handle
	query  string

	mu        sync.Mutex // one chunk at a time
	engine    engine.Session
	exhausted atomic.Bool
	cancelled atomic.Bool

	// stop is cancelled by Cancel and aborts an in-flight chunk.
	stop       context.Context
	cancelStop context.CancelFunc
	cleanup    runtime.Cleanup
	releases   sync.Once
}

// ProgressiveSearch starts a session for query. The session sees documents
// committed by the time each chunk runs. On a closed handle or an invalid
// query the session is already exhausted.
func (h *Handle) ProgressiveSearch(query string, opts engine.SearchOptions) *Session {
	s := &Session{handle: h, query: query}
	s.stop, s.cancelStop = context.WithCancel(context.Background())

	var es engine.Session
	err := h.read("search", func(e engine.Engine) error {
		var err error
		es, err = e.Search(query, opts)
		return err
	})
	if err != nil {
		logFailure("search", err, slog.String("query", query))
		s.exhausted.Store(true)
		s.cancelStop()
		return s
	}

	s.engine = es
	// A session dropped without Cancel still releases its engine session.
	s.cleanup = runtime.AddCleanup(s, func(es engine.Session) { es.Cancel() }, es)
	return s
}

// Next returns up to limit further results, waiting at most timeout.
//
// A page with MoreAvailable false means the session is exhausted or was
// cancelled; later calls return the same. A chunk that runs out of time
// returns what it materialized with TimedOut and MoreAvailable set. When
// ctx ends first, the page is empty and the session stays resumable.
func (s *Session) Next(ctx context.Context, limit int, timeout time.Duration) result.Page {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled.Load() || s.exhausted.Load() {
		return result.Page{}
	}

	chunkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stopChunk := context.AfterFunc(s.stop, cancel)
	defer stopChunk()

	var (
		chunk    engine.Chunk
		chunkErr error
	)
	readErr := s.handle.read("search", func(engine.Engine) error {
		chunk, chunkErr = s.engine.Next(chunkCtx, limit)
		return nil
	})

	switch {
	case s.cancelled.Load():
		// Cancel wins over anything the chunk produced.
		return result.Page{}
	case readErr != nil:
		logFailure("search", readErr, slog.String("query", s.query))
		s.finish()
		return result.Page{}
	case chunkErr != nil:
		return s.failedChunk(ctx, chunk, chunkErr)
	}

	page := result.Page{
		Results:       toResults(chunk.Hits),
		MoreAvailable: chunk.More,
	}
	if !chunk.More {
		s.finish()
	}
	return page
}

func (s *Session) failedChunk(ctx context.Context, chunk engine.Chunk, err error) result.Page {
	if ctx.Err() != nil {
		return result.Page{MoreAvailable: true}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Debug("search_chunk_timed_out", slog.String("query", s.query), slog.Int("partial", len(chunk.Hits)))
		return result.Page{
			Results:       toResults(chunk.Hits),
			MoreAvailable: true,
			TimedOut:      true,
		}
	}
	logFailure("search", err, slog.String("query", s.query))
	s.finish()
	return result.Page{}
}

// Cancel stops the session and releases the engine session. An in-flight
// Next returns an empty page. Idempotent, and safe after exhaustion.
func (s *Session) Cancel() {
	if s.cancelled.CompareAndSwap(false, true) {
		s.cancelStop()
		s.release()
	}
}

// Exhausted reports whether the session can produce no more results.
func (s *Session) Exhausted() bool {
	return s.exhausted.Load() || s.cancelled.Load()
}

func (s *Session) finish() {
	s.exhausted.Store(true)
	s.release()
}

func (s *Session) release() {
	s.releases.Do(func() {
		if s.engine != nil {
			s.cleanup.Stop()
			s.engine.Cancel()
		}
		s.cancelStop()
	})
}

func toResults(hits []engine.Hit) []result.SearchResult {
	if len(hits) == 0 {
		return nil
	}
	out := make([]result.SearchResult, len(hits))
	for i, h := range hits {
		out[i] = result.SearchResult{URI: h.URI, Score: h.Score}
	}
	return out
}

// Search runs a session to completion and returns every result in
// delivery order. timeout applies per chunk. It stops early when ctx ends
// or when a chunk times out without producing anything.
func (h *Handle) Search(ctx context.Context, query string, limit int, timeout time.Duration, opts engine.SearchOptions) []result.SearchResult {
	s := h.ProgressiveSearch(query, opts)
	defer s.Cancel()

	var out []result.SearchResult
	for ctx.Err() == nil {
		page := s.Next(ctx, limit, timeout)
		out = append(out, page.Results...)
		if !page.MoreAvailable {
			break
		}
		if page.TimedOut && len(page.Results) == 0 {
			slog.Warn("search_stopped", slog.String("query", query), slog.String("reason", "chunk timed out"))
			break
		}
	}
	return out
}
