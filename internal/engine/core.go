package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Aman-CERP/searchkit/internal/content"
	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
)

// store is what a backend contributes: committed documents and queries over
// them. Pending mutations, vectors and locking live in textEngine.
type store interface {
	// lookup returns the committed text and term count of uri.
	lookup(uri string) (text string, termCount int, found bool, err error)
	// commit applies removals then additions atomically where the backend allows.
	commit(adds []pendingDoc, removes []string) error
	compact(ctx context.Context) error
	session(q parsedQuery, opts SearchOptions) Session
	walk(ctx context.Context, fn func(DocumentInfo) bool) error
	count() (uint64, error)
	close() error
}

type pendingDoc struct {
	uri       string
	text      string
	termCount int
	remove    bool
}

// textEngine implements Engine over a store.
type textEngine struct {
	props    Properties
	analyzer *Analyzer
	store    store
	vectors  *vectorIndex // nil unless props.Type has vectors
	lock     *indexLock   // nil for in-memory engines
	path     string       // empty for in-memory engines
	readOnly bool
	closed   bool

	pending map[string]pendingDoc
	order   []string
}

var _ Engine = (*textEngine)(nil)

func newTextEngine(props Properties, s store, path string, readOnly bool) (*textEngine, error) {
	e := &textEngine{
		props:    props,
		analyzer: NewAnalyzer(props),
		store:    s,
		path:     path,
		readOnly: readOnly,
		pending:  make(map[string]pendingDoc),
	}
	if props.Type.hasVectors() {
		e.vectors = newVectorIndex()
		if err := e.rebuildVectors(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// rebuildVectors derives the vector topology from committed content.
func (e *textEngine) rebuildVectors() error {
	var uris []string
	err := e.store.walk(context.Background(), func(info DocumentInfo) bool {
		uris = append(uris, info.URI)
		return true
	})
	if err != nil {
		return err
	}
	for _, uri := range uris {
		text, _, found, err := e.store.lookup(uri)
		if err != nil {
			return err
		}
		if found {
			e.vectors.add(uri, e.analyzer.Terms(text))
		}
	}
	if len(uris) > 0 {
		slog.Debug("vectors_rebuilt", slog.Int("documents", len(uris)))
	}
	return nil
}

func (e *textEngine) writable(op string) error {
	if e.closed {
		return skerrors.EngineUnavailable(op)
	}
	if e.readOnly {
		return skerrors.New(skerrors.ErrCodeEngineUnavailable, op+": index is open read-only", nil).
			WithDetail("op", op).
			WithSuggestion("open the index writable")
	}
	return nil
}

func (e *textEngine) setPending(doc pendingDoc) {
	if _, ok := e.pending[doc.uri]; !ok {
		e.order = append(e.order, doc.uri)
	}
	e.pending[doc.uri] = doc
}

func (e *textEngine) dropPending(uri string) {
	if _, ok := e.pending[uri]; !ok {
		return
	}
	delete(e.pending, uri)
	for i, u := range e.order {
		if u == uri {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

func (e *textEngine) committed(uri string) (bool, error) {
	_, _, found, err := e.store.lookup(uri)
	return found, err
}

// AddText implements Engine.
func (e *textEngine) AddText(uri, text string, canReplace bool) error {
	if err := e.writable("add"); err != nil {
		return err
	}
	if uri == "" {
		return skerrors.DocumentRejected(uri, "empty uri")
	}
	if !canReplace {
		switch e.DocumentState(uri) {
		case Indexed, AddPending:
			return skerrors.DocumentRejected(uri, "already indexed and replacement not allowed")
		}
	}
	e.setPending(pendingDoc{uri: uri, text: text, termCount: len(e.analyzer.Terms(text))})
	return nil
}

// AddFile implements Engine.
func (e *textEngine) AddFile(uri, path, mimeType string, canReplace bool) error {
	if err := e.writable("add"); err != nil {
		return err
	}
	text, err := content.Extract(path, mimeType)
	if err != nil {
		return err
	}
	return e.AddText(uri, text, canReplace)
}

// Remove implements Engine. Removing an unknown URI is a no-op.
func (e *textEngine) Remove(uri string) error {
	if err := e.writable("remove"); err != nil {
		return err
	}
	found, err := e.committed(uri)
	if err != nil {
		return skerrors.Wrap(skerrors.ErrCodeIndexFailed, err)
	}
	if !found {
		e.dropPending(uri)
		return nil
	}
	e.setPending(pendingDoc{uri: uri, remove: true})
	return nil
}

// Flush implements Engine.
func (e *textEngine) Flush() error {
	if err := e.writable("flush"); err != nil {
		return err
	}
	if len(e.order) == 0 {
		return nil
	}

	var (
		adds    []pendingDoc
		removes []string
	)
	for _, uri := range e.order {
		doc := e.pending[uri]
		if doc.remove {
			removes = append(removes, uri)
		} else {
			adds = append(adds, doc)
		}
	}

	if err := e.store.commit(adds, removes); err != nil {
		return skerrors.Wrap(skerrors.ErrCodeIndexFailed, err)
	}

	if e.vectors != nil {
		for _, uri := range removes {
			e.vectors.remove(uri)
		}
		for _, doc := range adds {
			e.vectors.add(doc.uri, e.analyzer.Terms(doc.text))
		}
	}

	e.pending = make(map[string]pendingDoc)
	e.order = nil
	return nil
}

// Compact implements Engine.
func (e *textEngine) Compact(ctx context.Context) error {
	if err := e.writable("compact"); err != nil {
		return err
	}
	if err := e.store.compact(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return skerrors.Wrap(skerrors.ErrCodeCompactFailed, err)
	}
	return nil
}

// Search implements Engine. Sessions see committed documents only.
func (e *textEngine) Search(query string, opts SearchOptions) (Session, error) {
	if e.closed {
		return nil, skerrors.EngineUnavailable("search")
	}

	useVectors := e.vectors != nil && (opts.FindSimilar || e.props.Type == TypeVector)
	if opts.FindSimilar && !useVectors {
		// Without vectors, similarity degrades to matching any term.
		opts.SpaceMeansOR = true
	}

	q, err := parseQuery(query, e.analyzer, opts.SpaceMeansOR)
	if err != nil {
		return nil, err
	}
	if q.empty() {
		return emptySession{}, nil
	}

	if useVectors {
		terms := q.positiveTerms()
		if opts.FindSimilar {
			terms = e.analyzer.Terms(query)
		}
		return e.vectors.session(terms, opts.NoRelevanceScores), nil
	}
	return e.store.session(q, opts), nil
}

// DocumentState implements Engine.
func (e *textEngine) DocumentState(uri string) DocumentState {
	if e.closed {
		return NotIndexed
	}
	if doc, ok := e.pending[uri]; ok {
		if doc.remove {
			return DeletePending
		}
		return AddPending
	}
	found, err := e.committed(uri)
	if err != nil {
		slog.Warn("document_state_failed", slog.String("uri", uri), slog.String("error", err.Error()))
		return NotIndexed
	}
	if found {
		return Indexed
	}
	return NotIndexed
}

func (e *textEngine) lookup(op, uri string) (string, int, error) {
	if e.closed {
		return "", 0, skerrors.EngineUnavailable(op)
	}
	text, n, found, err := e.store.lookup(uri)
	if err != nil {
		return "", 0, skerrors.Wrap(skerrors.ErrCodeSearchFailed, err)
	}
	if !found {
		return "", 0, skerrors.New(skerrors.ErrCodeDocumentNotFound, "document not indexed: "+uri, nil).
			WithDetail("uri", uri)
	}
	return text, n, nil
}

// TermCount implements Engine.
func (e *textEngine) TermCount(uri string) (int, error) {
	_, n, err := e.lookup("term_count", uri)
	return n, err
}

// Terms implements Engine.
func (e *textEngine) Terms(uri string) ([]TermFrequency, error) {
	text, _, err := e.lookup("terms", uri)
	if err != nil {
		return nil, err
	}
	return Frequencies(e.analyzer.Terms(text)), nil
}

// Text implements Engine.
func (e *textEngine) Text(uri string) (string, error) {
	text, _, err := e.lookup("text", uri)
	return text, err
}

// Walk implements Engine. Committed documents are visited in URI order,
// except those with a pending removal.
func (e *textEngine) Walk(ctx context.Context, fn func(DocumentInfo) bool) error {
	if e.closed {
		return skerrors.EngineUnavailable("walk")
	}
	return e.store.walk(ctx, func(info DocumentInfo) bool {
		if doc, ok := e.pending[info.URI]; ok && doc.remove {
			return true
		}
		return fn(info)
	})
}

// DocCount implements Engine.
func (e *textEngine) DocCount() (uint64, error) {
	if e.closed {
		return 0, skerrors.EngineUnavailable("count")
	}
	return e.store.count()
}

// Properties implements Engine.
func (e *textEngine) Properties() Properties {
	return e.props
}

// Close implements Engine. Pending mutations are discarded.
func (e *textEngine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if n := len(e.order); n > 0 {
		slog.Debug("pending_mutations_discarded", slog.Int("count", n))
	}
	err := e.store.close()
	if e.lock != nil {
		if unlockErr := e.lock.release(); err == nil {
			err = unlockErr
		}
	}
	return err
}

// emptySession never yields hits.
type emptySession struct{}

func (emptySession) Next(ctx context.Context, limit int) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	return Chunk{}, nil
}

func (emptySession) Cancel() {}

// sortHits sorts hits by score descending then URI, or by URI alone.
func sortHits(hits []Hit, byURI bool) {
	sort.SliceStable(hits, func(i, j int) bool {
		if !byURI && hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].URI < hits[j].URI
	})
}

const defaultChunkSize = 10

func chunkLimit(limit int) int {
	if limit <= 0 {
		return defaultChunkSize
	}
	return limit
}
