// Package engine adapts third-party full-text engines to the narrow primitive
// API the index handle is built on: add, remove, flush, compact, chunked
// search sessions and per-document term statistics.
//
// Two backends are available. Bleve (default) keeps a scorch index with a
// custom analyzer; SQLite keeps an FTS5 table over pre-analyzed text. Both can
// be in-memory or file-backed, and both can carry a vector topology (hnsw over
// hashed term vectors) used for similarity searches.
//
// Engines are not safe for concurrent mutation. Callers serialize mutations
// and may run reads concurrently with each other, but not with a mutation.
package engine

import (
	"context"
	"fmt"
	"strings"
)

// Backend names.
const (
	BackendBleve  = "bleve"
	BackendSQLite = "sqlite"
)

// IndexType selects the topology an index is built with.
type IndexType string

const (
	// TypeInverted is a classic inverted index (term -> documents).
	TypeInverted IndexType = "inverted"
	// TypeVector answers every query by term-vector similarity.
	TypeVector IndexType = "vector"
	// TypeInvertedVector keeps both; similarity searches use the vectors.
	TypeInvertedVector IndexType = "inverted_vector"
)

// ParseIndexType parses an index type name. Empty means inverted.
func ParseIndexType(s string) (IndexType, error) {
	switch IndexType(strings.ToLower(strings.TrimSpace(s))) {
	case "", TypeInverted:
		return TypeInverted, nil
	case TypeVector:
		return TypeVector, nil
	case TypeInvertedVector:
		return TypeInvertedVector, nil
	}
	return "", fmt.Errorf("unknown index type %q (use inverted, vector or inverted_vector)", s)
}

func (t IndexType) hasVectors() bool {
	return t == TypeVector || t == TypeInvertedVector
}

// Properties are fixed when an index is created.
type Properties struct {
	Type          IndexType `json:"type"`
	Proximity     bool      `json:"proximity"`
	StopWords     []string  `json:"stop_words,omitempty"`
	MinTermLength int       `json:"min_term_length"`
	Backend       string    `json:"backend"`
}

// DefaultProperties returns an inverted Bleve index with proximity support.
func DefaultProperties() Properties {
	return Properties{
		Type:      TypeInverted,
		Proximity: true,
		Backend:   BackendBleve,
	}
}

func (p Properties) normalized() (Properties, error) {
	t, err := ParseIndexType(string(p.Type))
	if err != nil {
		return p, err
	}
	p.Type = t
	p.Backend = strings.ToLower(p.Backend)
	if p.Backend == "" {
		p.Backend = BackendBleve
	}
	if p.Backend != BackendBleve && p.Backend != BackendSQLite {
		return p, fmt.Errorf("unknown backend %q (use bleve or sqlite)", p.Backend)
	}
	if p.MinTermLength < 0 {
		p.MinTermLength = 0
	}
	return p, nil
}

// DocumentState is the engine's view of one URI.
type DocumentState int

const (
	NotIndexed DocumentState = iota
	Indexed
	AddPending
	DeletePending
)

func (s DocumentState) String() string {
	switch s {
	case Indexed:
		return "indexed"
	case AddPending:
		return "add_pending"
	case DeletePending:
		return "delete_pending"
	default:
		return "not_indexed"
	}
}

// SearchOptions modify how a query is interpreted.
type SearchOptions struct {
	// NoRelevanceScores skips scoring; hits come back in document order with score 0.
	NoRelevanceScores bool
	// SpaceMeansOR joins bare terms with OR instead of AND.
	SpaceMeansOR bool
	// FindSimilar treats the query as example text and ranks by vector similarity.
	FindSimilar bool
}

// Hit is one matching document.
type Hit struct {
	URI   string
	Score float64
}

// Chunk is one page of hits from a session.
type Chunk struct {
	Hits []Hit
	// More reports whether further hits may exist.
	More bool
}

// Session is a resumable search over a committed index snapshot.
type Session interface {
	// Next returns up to limit further hits. It honors ctx cancellation and
	// deadlines by returning ctx.Err().
	Next(ctx context.Context, limit int) (Chunk, error)
	// Cancel releases the session. Idempotent.
	Cancel()
}

// TermFrequency is one term and its count within a document.
type TermFrequency struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// DocumentInfo is one record of the committed document tree.
// ID is an engine-internal arena index and carries no meaning across opens.
type DocumentInfo struct {
	ID        uint64
	URI       string
	TermCount int
}

// Engine is the primitive text index.
type Engine interface {
	AddText(uri, text string, canReplace bool) error
	AddFile(uri, path, mimeType string, canReplace bool) error
	Remove(uri string) error
	Flush() error
	Compact(ctx context.Context) error

	Search(query string, opts SearchOptions) (Session, error)

	DocumentState(uri string) DocumentState
	TermCount(uri string) (int, error)
	Terms(uri string) ([]TermFrequency, error)
	Text(uri string) (string, error)
	// Walk visits committed documents. Pending removals are already hidden.
	Walk(ctx context.Context, fn func(DocumentInfo) bool) error
	DocCount() (uint64, error)

	Properties() Properties
	// Snapshot serializes committed documents. Only in-memory engines support it.
	Snapshot() ([]byte, error)
	Close() error
}
