package annotate

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/searchkit/internal/content"
	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/result"
)

// DefaultCacheSize is the number of decoded file texts kept in memory.
const DefaultCacheSize = 256

// TextStore returns the stored text of an indexed document. *index.Handle
// implements it.
type TextStore interface {
	DocumentText(uri string) (string, bool)
}

// Options configures an Annotator.
type Options struct {
	Mode      Mode
	CacheSize int
}

// cacheKey identifies one version of a file.
type cacheKey struct {
	uri     string
	modTime time.Time
	size    int64
}

// Annotator attaches line matches to search results. File documents are
// read from disk so matches reflect the current file; other documents use
// the text stored in the index. Safe for concurrent use.
type Annotator struct {
	store TextStore
	mode  Mode
	cache *lru.Cache[cacheKey, string]
}

// New creates an annotator. store may be nil when only file documents are
// annotated.
func New(store TextStore, opts Options) *Annotator {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[cacheKey, string](size)
	return &Annotator{store: store, mode: opts.Mode, cache: cache}
}

// Mode returns the occurrence mode.
func (a *Annotator) Mode() Mode {
	return a.mode
}

// Annotate returns the whole-word occurrences of query in the document of
// res.
func (a *Annotator) Annotate(ctx context.Context, res result.SearchResult, query string) ([]result.LineMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := a.text(res.URI)
	if err != nil {
		return nil, err
	}
	return AnnotateText(res.URI, text, query, a.mode), nil
}

// AnnotateAll annotates results concurrently and keeps their order. A
// document that cannot be read is logged and kept without lines. With
// dropUnmatched, results without any line match are left out.
func (a *Annotator) AnnotateAll(ctx context.Context, results []result.SearchResult, query string, dropUnmatched bool) []result.Annotated {
	annotated := make([]result.Annotated, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, res := range results {
		g.Go(func() error {
			annotated[i].SearchResult = res
			lines, err := a.Annotate(gctx, res, query)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Debug("annotate_skipped",
					slog.String("uri", res.URI),
					slog.String("error_code", skerrors.GetCode(err)))
				return nil
			}
			annotated[i].Lines = lines
			return nil
		})
	}
	_ = g.Wait()

	if !dropUnmatched {
		return annotated
	}
	kept := annotated[:0]
	for _, r := range annotated {
		if len(r.Lines) > 0 {
			kept = append(kept, r)
		}
	}
	return kept
}

// text loads the current text of uri. Files that vanished fall back to the
// stored text.
func (a *Annotator) text(uri string) (string, error) {
	if path, ok := content.PathFromURI(uri); ok {
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			key := cacheKey{uri: uri, modTime: info.ModTime(), size: info.Size()}
			if text, ok := a.cache.Get(key); ok {
				return text, nil
			}
			text, err := content.Extract(path, "")
			if err != nil {
				return "", err
			}
			a.cache.Add(key, text)
			return text, nil
		}
	}
	if a.store != nil {
		if text, ok := a.store.DocumentText(uri); ok {
			return text, nil
		}
	}
	return "", skerrors.New(skerrors.ErrCodeDocumentNotFound, "no text for "+uri, nil).WithDetail("uri", uri)
}
