package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/searchkit/internal/content"
	"github.com/Aman-CERP/searchkit/internal/engine"
	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/scanner"
)

// DocumentFilter selects documents by whether they contain terms.
type DocumentFilter int

const (
	FilterAll DocumentFilter = iota
	FilterOnlyEmpty
	FilterOnlyNonEmpty
)

// ParseDocumentFilter parses "all", "empty" or "nonempty".
func ParseDocumentFilter(s string) (DocumentFilter, bool) {
	switch s {
	case "", "all":
		return FilterAll, true
	case "empty":
		return FilterOnlyEmpty, true
	case "nonempty", "non-empty":
		return FilterOnlyNonEmpty, true
	}
	return FilterAll, false
}

func (f DocumentFilter) keep(info engine.DocumentInfo) bool {
	switch f {
	case FilterOnlyEmpty:
		return info.TermCount == 0
	case FilterOnlyNonEmpty:
		return info.TermCount > 0
	default:
		return true
	}
}

// AddFile adds a file, identified by its file:// URI. The MIME type comes
// from mimeHint or the file name. It fails when the file is not a regular
// file, no extractor handles its type, the text cannot be read, or the
// engine rejects the document.
func (h *Handle) AddFile(ctx context.Context, path, mimeHint string, canReplace bool) bool {
	_, ok := h.addFile(ctx, path, mimeHint, canReplace)
	return ok
}

func (h *Handle) addFile(ctx context.Context, path, mimeHint string, canReplace bool) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		logFailure("add_file", skerrors.New(skerrors.ErrCodeInvalidPath, err.Error(), err), slog.String("path", path))
		return "", false
	}
	uri := content.FileURI(abs)

	mime := mimeHint
	if mime == "" {
		mime = content.DetectMIME(abs)
	}

	// Extraction is I/O and parsing; it stays off the mutation lane.
	text, err := content.Extract(abs, mime)
	if err != nil {
		logFailure("add_file", err, slog.String("uri", uri))
		return uri, false
	}
	return uri, h.AddText(ctx, uri, text, canReplace)
}

// AddFolder adds every visible file below root, recursively, and returns
// the URIs actually added. Hidden entries are skipped. The result is empty
// when root is not a directory.
func (h *Handle) AddFolder(ctx context.Context, root string, canReplace bool) []string {
	if !scanner.IsDir(root) {
		slog.Warn("add_folder_skipped", slog.String("path", root), slog.String("reason", "not a directory"))
		return nil
	}

	results, err := scanner.New(h.scanOpts).Scan(ctx, root)
	if err != nil {
		logFailure("add_folder", skerrors.Wrap(skerrors.ErrCodeInvalidPath, err), slog.String("path", root))
		return nil
	}

	var added []string
	for r := range results {
		if r.Error != nil {
			logFailure("add_folder", skerrors.Wrap(skerrors.ErrCodeInternal, r.Error), slog.String("path", root))
			continue
		}
		if uri, ok := h.addFile(ctx, r.File.AbsPath, r.File.MIME, canReplace); ok {
			added = append(added, uri)
		}
	}
	return added
}

// Documents returns the URIs of committed documents passing filter, in
// URI order. A removed document is gone from the list before the flush.
func (h *Handle) Documents(ctx context.Context, filter DocumentFilter) []string {
	var arena []engine.DocumentInfo
	err := h.read("documents", func(e engine.Engine) error {
		return e.Walk(ctx, func(info engine.DocumentInfo) bool {
			arena = append(arena, info)
			return true
		})
	})
	if err != nil {
		logFailure("documents", err)
		return nil
	}
	return classify(arena, filter)
}

// classify filters the arena in parallel shards and keeps arena order.
func classify(arena []engine.DocumentInfo, filter DocumentFilter) []string {
	if filter == FilterAll {
		uris := make([]string, len(arena))
		for i, info := range arena {
			uris[i] = info.URI
		}
		return uris
	}

	const shardSize = 4096
	shards := make([][]string, (len(arena)+shardSize-1)/shardSize)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range shards {
		g.Go(func() error {
			end := min((i+1)*shardSize, len(arena))
			for _, info := range arena[i*shardSize : end] {
				if filter.keep(info) {
					shards[i] = append(shards[i], info.URI)
				}
			}
			return nil
		})
	}
	// Shard tasks never fail.
	_ = g.Wait()

	var uris []string
	for _, shard := range shards {
		uris = append(uris, shard...)
	}
	return uris
}

// DocumentCount returns the number of committed documents.
func (h *Handle) DocumentCount() uint64 {
	var n uint64
	err := h.read("count", func(e engine.Engine) error {
		var err error
		n, err = e.DocCount()
		return err
	})
	if err != nil {
		logFailure("count", err)
		return 0
	}
	return n
}

// DocumentState reports whether uri is indexed or has a pending mutation.
func (h *Handle) DocumentState(uri string) engine.DocumentState {
	state := engine.NotIndexed
	_ = h.read("document_state", func(e engine.Engine) error {
		state = e.DocumentState(uri)
		return nil
	})
	return state
}

// DocumentIndexed reports whether uri is committed, ignoring pending
// removals.
func (h *Handle) DocumentIndexed(uri string) bool {
	switch h.DocumentState(uri) {
	case engine.Indexed, engine.DeletePending:
		return true
	}
	return false
}

// DocumentText returns the stored text of a committed document.
func (h *Handle) DocumentText(uri string) (string, bool) {
	var text string
	err := h.read("text", func(e engine.Engine) error {
		var err error
		text, err = e.Text(uri)
		return err
	})
	if err != nil {
		if !skerrors.HasCode(err, skerrors.ErrCodeDocumentNotFound) {
			logFailure("text", err, slog.String("uri", uri))
		}
		return "", false
	}
	return text, true
}

// TermCount returns the number of index terms of a committed document,
// 0 when it is not indexed.
func (h *Handle) TermCount(uri string) int {
	var n int
	err := h.read("term_count", func(e engine.Engine) error {
		var err error
		n, err = e.TermCount(uri)
		return err
	})
	if err != nil {
		return 0
	}
	return n
}

// Terms returns a committed document's terms with their counts, most
// frequent first. Stop words are not included.
func (h *Handle) Terms(uri string) []engine.TermFrequency {
	var terms []engine.TermFrequency
	err := h.read("terms", func(e engine.Engine) error {
		var err error
		terms, err = e.Terms(uri)
		return err
	})
	if err != nil {
		if !skerrors.HasCode(err, skerrors.ErrCodeDocumentNotFound) {
			logFailure("terms", err, slog.String("uri", uri))
		}
		return nil
	}
	return terms
}
