// Package index provides Handle, the thread-safe owner of one text index
// engine, and Session, its progressive search.
//
// Mutations (add, remove, flush, compact, cleanup, close) run one at a time
// on the handle's mutation lane, in arrival order. Reads (search chunks,
// term statistics, document walks) run concurrently with each other but
// never while a mutation is applied.
//
// Handle operations return plain values. Engine failures are logged with
// their error code and reported as false or empty results.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/searchkit/internal/engine"
	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/scanner"
)

// Option configures a Handle.
type Option func(*Handle)

// WithScanOptions sets how AddFolder enumerates files.
func WithScanOptions(opts scanner.Options) Option {
	return func(h *Handle) {
		h.scanOpts = opts
	}
}

// Handle serializes mutations of one engine and allows concurrent reads.
type Handle struct {
	engine   engine.Engine
	path     string // empty for in-memory handles
	scanOpts scanner.Options

	rw       sync.RWMutex
	requests chan mutation
	done     chan struct{} // closed when the lane exits

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// mutation is one request on the lane.
type mutation struct {
	op     string
	apply  func(engine.Engine) error
	result chan error
	final  bool // the lane exits after applying it
}

func newHandle(e engine.Engine, path string, opts []Option) *Handle {
	h := &Handle{
		engine:   e,
		path:     path,
		requests: make(chan mutation),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.lane()
	return h
}

// NewMemory creates a handle over an empty in-memory index.
func NewMemory(props engine.Properties, opts ...Option) (*Handle, error) {
	e, err := engine.NewMemory(props)
	if err != nil {
		return nil, err
	}
	return newHandle(e, "", opts), nil
}

// Create creates a file-backed index in path.
func Create(path string, props engine.Properties, opts ...Option) (*Handle, error) {
	e, err := engine.Create(path, props)
	if err != nil {
		return nil, err
	}
	return newHandle(e, path, opts), nil
}

// Open opens the file-backed index in path. Only one writable handle may
// hold an index at a time; read-only handles can share it.
func Open(path string, writable bool, opts ...Option) (*Handle, error) {
	e, err := engine.Open(path, writable)
	if err != nil {
		return nil, err
	}
	return newHandle(e, path, opts), nil
}

// OpenOrCreate opens the index in path, creating it with props if absent.
func OpenOrCreate(path string, props engine.Properties, opts ...Option) (*Handle, error) {
	if engine.Exists(path) {
		return Open(path, true, opts...)
	}
	return Create(path, props, opts...)
}

// Load creates an in-memory handle from data produced by Bytes.
func Load(data []byte, opts ...Option) (*Handle, error) {
	e, err := engine.Load(data)
	if err != nil {
		return nil, err
	}
	return newHandle(e, "", opts), nil
}

// lane applies mutations strictly in arrival order.
func (h *Handle) lane() {
	defer close(h.done)
	for m := range h.requests {
		h.rw.Lock()
		err := m.apply(h.engine)
		h.rw.Unlock()
		m.result <- err
		if m.final {
			return
		}
	}
}

// mutate submits fn to the lane and waits for it. If ctx ends before the
// lane accepts the request, fn never runs. Once accepted, the mutation
// always completes.
func (h *Handle) mutate(ctx context.Context, op string, fn func(engine.Engine) error) error {
	if h.closed.Load() {
		return skerrors.EngineUnavailable(op)
	}
	m := mutation{op: op, apply: fn, result: make(chan error, 1)}
	select {
	case h.requests <- m:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return skerrors.EngineUnavailable(op)
	}
	return <-m.result
}

// read runs fn while no mutation is applied.
func (h *Handle) read(op string, fn func(engine.Engine) error) error {
	if h.closed.Load() {
		return skerrors.EngineUnavailable(op)
	}
	h.rw.RLock()
	defer h.rw.RUnlock()
	return fn(h.engine)
}

// logFailure logs an engine failure with its error code.
func logFailure(op string, err error, attrs ...any) {
	args := append([]any{slog.String("op", op)}, attrs...)
	args = append(args, skerrors.FormatForLog(err)...)
	switch {
	case skerrors.IsFatal(err):
		slog.Error("index_operation_failed", args...)
	case skerrors.HasCode(err, skerrors.ErrCodeDocumentRejected), skerrors.HasCode(err, skerrors.ErrCodeUnsupportedMIME):
		slog.Debug("index_operation_failed", args...)
	default:
		slog.Warn("index_operation_failed", args...)
	}
}

// AddText adds or replaces a document with literal text. With canReplace
// false an existing URI is rejected.
func (h *Handle) AddText(ctx context.Context, uri, text string, canReplace bool) bool {
	err := h.mutate(ctx, "add_text", func(e engine.Engine) error {
		return e.AddText(uri, text, canReplace)
	})
	if err != nil {
		logFailure("add_text", err, slog.String("uri", uri))
		return false
	}
	return true
}

// Remove removes a document. Removing an unknown URI succeeds.
func (h *Handle) Remove(ctx context.Context, uri string) bool {
	err := h.mutate(ctx, "remove", func(e engine.Engine) error {
		return e.Remove(uri)
	})
	if err != nil {
		logFailure("remove", err, slog.String("uri", uri))
		return false
	}
	return true
}

// RemoveAll removes several documents as one mutation.
func (h *Handle) RemoveAll(ctx context.Context, uris []string) bool {
	err := h.mutate(ctx, "remove", func(e engine.Engine) error {
		for _, uri := range uris {
			if err := e.Remove(uri); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logFailure("remove", err, slog.Int("count", len(uris)))
		return false
	}
	return true
}

// Flush commits pending mutations. Only flushed documents are guaranteed to
// be visible to searches.
func (h *Handle) Flush(ctx context.Context) bool {
	err := h.mutate(ctx, "flush", func(e engine.Engine) error {
		return e.Flush()
	})
	if err != nil {
		logFailure("flush", err)
		return false
	}
	return true
}

// Compact reclaims space in the engine. It can take a long time and blocks
// every other mutation meanwhile; keep it off latency-sensitive paths.
func (h *Handle) Compact(ctx context.Context) bool {
	err := h.mutate(ctx, "compact", func(e engine.Engine) error {
		return e.Compact(ctx)
	})
	if err != nil {
		logFailure("compact", err)
		return false
	}
	return true
}

// Save flushes and compacts a file-backed index.
func (h *Handle) Save(ctx context.Context) bool {
	if h.path == "" {
		slog.Warn("save_ignored", slog.String("reason", "in-memory index"))
		return false
	}
	return h.Flush(ctx) && h.Compact(ctx)
}

// Bytes serializes an in-memory index, committed documents only.
func (h *Handle) Bytes() ([]byte, error) {
	var data []byte
	err := h.read("snapshot", func(e engine.Engine) error {
		var err error
		data, err = e.Snapshot()
		return err
	})
	return data, err
}

// CleanUp removes every committed document without terms and returns how
// many were removed.
func (h *Handle) CleanUp(ctx context.Context) int {
	removed := 0
	err := h.mutate(ctx, "cleanup", func(e engine.Engine) error {
		var empty []string
		err := e.Walk(ctx, func(info engine.DocumentInfo) bool {
			if info.TermCount == 0 {
				empty = append(empty, info.URI)
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, uri := range empty {
			if err := e.Remove(uri); err != nil {
				return err
			}
		}
		if err := e.Flush(); err != nil {
			return err
		}
		removed = len(empty)
		return nil
	})
	if err != nil {
		logFailure("cleanup", err)
		return 0
	}
	if removed > 0 {
		slog.Info("empty_documents_removed", slog.Int("count", removed))
	}
	return removed
}

// Close releases the engine. Pending unflushed mutations are discarded.
// Safe to call more than once; later operations fail.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		m := mutation{
			op:     "close",
			apply:  func(e engine.Engine) error { return e.Close() },
			result: make(chan error, 1),
			final:  true,
		}
		h.requests <- m
		h.closeErr = <-m.result
	})
	return h.closeErr
}

// Path returns the index directory, or "" for in-memory handles.
func (h *Handle) Path() string {
	return h.path
}

// Properties returns the properties the index was created with.
func (h *Handle) Properties() engine.Properties {
	return h.engine.Properties()
}

func (h *Handle) String() string {
	if h.path == "" {
		return fmt.Sprintf("index(memory, %s)", h.Properties().Backend)
	}
	return fmt.Sprintf("index(%s, %s)", h.path, h.Properties().Backend)
}
