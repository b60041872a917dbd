package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/index/scorch/mergeplan"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
)

const (
	contentField   = "content"
	termCountField = "term_count"

	walkPageSize = 500
)

// bleveDocument is the stored form of a document.
type bleveDocument struct {
	Content   string `json:"content"`
	TermCount int    `json:"term_count"`
}

// createIndexMapping creates the Bleve mapping for props. The analyzer
// configuration is persisted with the index, so reopening reproduces it.
func createIndexMapping(props Properties) (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomTokenFilter(termFilterName, map[string]interface{}{
		"type":       TermFilterType,
		"stop_words": props.StopWords,
		"min_length": props.MinTermLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add term filter: %w", err)
	}

	err = indexMapping.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": WordTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			termFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	contentMapping := bleve.NewTextFieldMapping()
	contentMapping.Analyzer = analyzerName
	contentMapping.Store = true
	contentMapping.IncludeInAll = false
	contentMapping.IncludeTermVectors = props.Proximity

	countMapping := bleve.NewNumericFieldMapping()
	countMapping.Store = true
	countMapping.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt(contentField, contentMapping)
	docMapping.AddFieldMappingsAt(termCountField, countMapping)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = analyzerName
	indexMapping.IndexDynamic = false
	indexMapping.StoreDynamic = false

	return indexMapping, nil
}

// bleveStore keeps documents in a Bleve index.
type bleveStore struct {
	index bleve.Index
	props Properties
}

func newBleveMemStore(props Properties) (*bleveStore, error) {
	indexMapping, err := createIndexMapping(props)
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &bleveStore{index: idx, props: props}, nil
}

func createBleveStore(path string, props Properties) (*bleveStore, error) {
	indexMapping, err := createIndexMapping(props)
	if err != nil {
		return nil, err
	}
	idx, err := bleve.New(path, indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index at %s: %w", path, err)
	}
	return &bleveStore{index: idx, props: props}, nil
}

func openBleveStore(path string, props Properties, writable bool) (*bleveStore, error) {
	var (
		idx bleve.Index
		err error
	)
	if writable {
		idx, err = bleve.Open(path)
	} else {
		idx, err = bleve.OpenUsing(path, map[string]interface{}{"read_only": true})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %s: %w", path, err)
	}
	return &bleveStore{index: idx, props: props}, nil
}

func (b *bleveStore) lookup(uri string) (string, int, bool, error) {
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{uri}))
	req.Fields = []string{contentField, termCountField}
	res, err := b.index.Search(req)
	if err != nil {
		return "", 0, false, fmt.Errorf("lookup %s: %w", uri, err)
	}
	if len(res.Hits) == 0 {
		return "", 0, false, nil
	}
	hit := res.Hits[0]
	text, _ := hit.Fields[contentField].(string)
	count, _ := hit.Fields[termCountField].(float64)
	return text, int(count), true, nil
}

func (b *bleveStore) commit(adds []pendingDoc, removes []string) error {
	batch := b.index.NewBatch()
	for _, uri := range removes {
		batch.Delete(uri)
	}
	for _, doc := range adds {
		if err := batch.Index(doc.uri, bleveDocument{Content: doc.text, TermCount: doc.termCount}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.uri, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// forceMerger is implemented by the scorch index.
type forceMerger interface {
	ForceMerge(ctx context.Context, mo *mergeplan.MergePlanOptions) error
}

func (b *bleveStore) compact(ctx context.Context) error {
	adv, err := b.index.Advanced()
	if err != nil {
		return err
	}
	fm, ok := adv.(forceMerger)
	if !ok {
		return nil // in-memory indexes have no segments to merge
	}
	return fm.ForceMerge(ctx, &mergeplan.SingleSegmentMergePlanOptions)
}

func (b *bleveStore) walk(ctx context.Context, fn func(DocumentInfo) bool) error {
	var id uint64
	for from := 0; ; from += walkPageSize {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), walkPageSize, from, false)
		req.Fields = []string{termCountField}
		req.SortBy([]string{"_id"})
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("walk documents: %w", err)
		}
		for _, hit := range res.Hits {
			id++
			count, _ := hit.Fields[termCountField].(float64)
			if !fn(DocumentInfo{ID: id, URI: hit.ID, TermCount: int(count)}) {
				return nil
			}
		}
		if len(res.Hits) < walkPageSize {
			return nil
		}
	}
}

func (b *bleveStore) count() (uint64, error) {
	return b.index.DocCount()
}

func (b *bleveStore) close() error {
	return b.index.Close()
}

func (b *bleveStore) session(q parsedQuery, opts SearchOptions) Session {
	return &bleveSession{
		index:    b.index,
		query:    b.buildQuery(q),
		noScores: opts.NoRelevanceScores,
	}
}

// buildQuery translates a parsed query: conjunction within a group,
// disjunction across groups, exclusions as must-not clauses.
func (b *bleveStore) buildQuery(q parsedQuery) query.Query {
	var positive query.Query
	if len(q.groups) > 0 {
		groups := make([]query.Query, 0, len(q.groups))
		for _, g := range q.groups {
			clauses := make([]query.Query, 0, len(g))
			for _, c := range g {
				clauses = append(clauses, b.clauseQuery(c))
			}
			groups = append(groups, conjunction(clauses))
		}
		if len(groups) == 1 {
			positive = groups[0]
		} else {
			positive = bleve.NewDisjunctionQuery(groups...)
		}
	}

	if len(q.exclude) == 0 {
		return positive
	}

	boolQuery := bleve.NewBooleanQuery()
	if positive != nil {
		boolQuery.AddMust(positive)
	} else {
		boolQuery.AddMust(bleve.NewMatchAllQuery())
	}
	for _, c := range q.exclude {
		boolQuery.AddMustNot(b.clauseQuery(c))
	}
	return boolQuery
}

func (b *bleveStore) clauseQuery(c clause) query.Query {
	switch c.kind {
	case clauseWildcard:
		wq := bleve.NewWildcardQuery(c.pattern)
		wq.SetField(contentField)
		return wq
	case clausePhrase:
		if b.props.Proximity {
			pq := bleve.NewMatchPhraseQuery(c.raw)
			pq.SetField(contentField)
			return pq
		}
	}
	terms := make([]query.Query, 0, len(c.terms))
	for _, t := range c.terms {
		tq := bleve.NewTermQuery(t)
		tq.SetField(contentField)
		terms = append(terms, tq)
	}
	return conjunction(terms)
}

func conjunction(qs []query.Query) query.Query {
	if len(qs) == 1 {
		return qs[0]
	}
	return bleve.NewConjunctionQuery(qs...)
}

// bleveSession pages through hits with a stable sort, so consecutive
// chunks concatenate to one global ranking.
type bleveSession struct {
	index    bleve.Index
	query    query.Query
	noScores bool

	offset    int
	done      bool
	cancelled atomic.Bool
}

func (s *bleveSession) Next(ctx context.Context, limit int) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if s.done || s.cancelled.Load() {
		return Chunk{}, nil
	}

	limit = chunkLimit(limit)
	// One extra hit tells whether another chunk exists.
	req := bleve.NewSearchRequestOptions(s.query, limit+1, s.offset, false)
	if s.noScores {
		req.Score = "none"
		req.SortBy([]string{"_id"})
	} else {
		req.SortBy([]string{"-_score", "_id"})
	}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Chunk{}, ctxErr
		}
		return Chunk{}, skerrors.Wrap(skerrors.ErrCodeSearchFailed, err).WithDetail("offset", strconv.Itoa(s.offset))
	}

	n := min(limit, len(res.Hits))
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{URI: res.Hits[i].ID}
		if !s.noScores {
			hits[i].Score = res.Hits[i].Score
		}
	}
	more := len(res.Hits) > limit
	s.offset += n
	s.done = !more
	return Chunk{Hits: hits, More: more}, nil
}

func (s *bleveSession) Cancel() {
	s.cancelled.Store(true)
}
