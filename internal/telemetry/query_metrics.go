// Package telemetry records local query statistics: which kinds of queries
// are run, their most frequent terms, the ones that found nothing and how
// long they took. Nothing leaves the machine.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Query Kinds
// =============================================================================

// QueryKind classifies a search query by the syntax it uses.
type QueryKind string

const (
	KindTerms    QueryKind = "terms"
	KindBoolean  QueryKind = "boolean"
	KindPhrase   QueryKind = "phrase"
	KindWildcard QueryKind = "wildcard"
	KindSimilar  QueryKind = "similar"
)

// ClassifyQuery returns the kind of query. A find-similar search is always
// KindSimilar; otherwise operators win over phrases, phrases over wildcards.
func ClassifyQuery(query string, similar bool) QueryKind {
	if similar {
		return KindSimilar
	}

	var (
		inQuote, phrase, wildcard, boolean bool
		word                               strings.Builder
	)
	endWord := func() {
		switch word.String() {
		case "OR", "AND", "NOT":
			boolean = true
		}
		word.Reset()
	}
	for _, r := range query {
		switch {
		case r == '"':
			endWord()
			inQuote = !inQuote
			phrase = true
		case inQuote:
		case r == '|' || r == '&' || (r == '!' && word.Len() == 0):
			endWord()
			boolean = true
		case unicode.IsSpace(r) || r == '(' || r == ')':
			endWord()
		default:
			if r == '*' || r == '?' {
				wildcard = true
			}
			word.WriteRune(r)
		}
	}
	endWord()

	switch {
	case boolean:
		return KindBoolean
	case phrase:
		return KindPhrase
	case wildcard:
		return KindWildcard
	default:
		return KindTerms
	}
}

// =============================================================================
// Latency Buckets
// =============================================================================

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// Buckets lists the latency buckets from fastest to slowest.
var Buckets = []LatencyBucket{BucketP10, BucketP50, BucketP100, BucketP500, BucketP1000}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// =============================================================================
// Query Event
// =============================================================================

// QueryEvent is one search, measured up to its first chunk of results.
type QueryEvent struct {
	Query       string
	Kind        QueryKind
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult returns true if this query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// =============================================================================
// Circular Buffer
// =============================================================================

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // next write position
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity

	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in the buffer in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		// Full: the oldest item is at head
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear removes all items from the buffer.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// =============================================================================
// Term Extraction
// =============================================================================

// minTermRunes is the shortest term counted in the top-terms table.
const minTermRunes = 3

// ExtractTerms returns the words of a query worth counting: lowercased,
// at least three characters, without operators or wildcard patterns.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.FieldsFunc(query, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(`"|&!()`, r)
	}) {
		if w == "OR" || w == "AND" || w == "NOT" || strings.ContainsAny(w, "*?") {
			continue
		}
		w = strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
		if len([]rune(w)) >= minTermRunes {
			terms = append(terms, w)
		}
	}
	return terms
}

// =============================================================================
// Snapshot
// =============================================================================

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time view of query statistics.
type Snapshot struct {
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	Since               time.Time               `json:"since"`

	// Exact repeats among recently seen queries (in-memory only).
	ExactRepeatCount int64 `json:"exact_repeat_count,omitempty"`
	UniqueQueryCount int64 `json:"unique_query_count,omitempty"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// ExactRepeatRate returns the share of queries that repeated a recent one.
func (s *Snapshot) ExactRepeatRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ExactRepeatCount) / float64(s.TotalQueries)
}

// sortTerms orders terms by count, most frequent first, then by term.
func sortTerms(terms []TermCount) {
	slices.SortFunc(terms, func(a, b TermCount) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Term, b.Term)
	})
}

// =============================================================================
// Store
// =============================================================================

// Store persists query statistics. Save and Upsert methods add to what
// is already stored.
type Store interface {
	SaveKindCounts(date string, counts map[QueryKind]int64) error
	GetKindCounts(from, to string) (map[QueryKind]int64, error)

	UpsertTermCounts(terms map[string]int64) error
	GetTopTerms(limit int) ([]TermCount, error)

	AddZeroResultQuery(query string, timestamp time.Time) error
	GetZeroResultQueries(limit int) ([]string, error)
	SaveZeroResultCount(date string, count int64) error
	GetZeroResultCount(from, to string) (int64, error)

	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)

	Close() error
}

// DateFormat is the day key used by the store.
const DateFormat = "2006-01-02"

// Summarize reads the statistics of the last days days (including today)
// from s. Top terms and zero-result queries are not limited to that window.
func Summarize(s Store, days, limit int, now time.Time) (*Snapshot, error) {
	if days <= 0 {
		days = 7
	}
	first := now.AddDate(0, 0, -(days - 1))
	first = time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, first.Location())
	from := first.Format(DateFormat)
	to := now.Format(DateFormat)

	kinds, err := s.GetKindCounts(from, to)
	if err != nil {
		return nil, err
	}
	latencies, err := s.GetLatencyCounts(from, to)
	if err != nil {
		return nil, err
	}
	zeroCount, err := s.GetZeroResultCount(from, to)
	if err != nil {
		return nil, err
	}
	terms, err := s.GetTopTerms(limit)
	if err != nil {
		return nil, err
	}
	zero, err := s.GetZeroResultQueries(limit)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		KindCounts:          kinds,
		TopTerms:            terms,
		ZeroResultQueries:   zero,
		LatencyDistribution: latencies,
		ZeroResultCount:     zeroCount,
		Since:               first,
	}
	if snap.TopTerms == nil {
		snap.TopTerms = []TermCount{}
	}
	if snap.ZeroResultQueries == nil {
		snap.ZeroResultQueries = []string{}
	}
	for _, n := range kinds {
		snap.TotalQueries += n
	}
	return snap, nil
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures the query statistics collector.
type Config struct {
	TopTermsCapacity      int           // Max terms to track (default: 100)
	ZeroResultsCapacity   int           // Max zero-result queries to keep (default: 100)
	RecentQueriesCapacity int           // Queries remembered for repeat detection (default: 500)
	FlushInterval         time.Duration // How often to flush to the store (0 = only on Flush/Close)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

// =============================================================================
// Collector
// =============================================================================

type zeroResult struct {
	query string
	at    time.Time
}

// pending holds what has been recorded since the last successful flush.
type pending struct {
	kinds     map[QueryKind]int64
	terms     map[string]int64
	latencies map[LatencyBucket]int64
	zeroCount int64
	zero      []zeroResult
}

func newPending() pending {
	return pending{
		kinds:     make(map[QueryKind]int64),
		terms:     make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
	}
}

func (p pending) empty() bool {
	return len(p.kinds) == 0 && len(p.terms) == 0 && len(p.latencies) == 0 && p.zeroCount == 0 && len(p.zero) == 0
}

// merge adds the unwritten part of q back into p after a failed flush.
func (p *pending) merge(q pending) {
	for k, v := range q.kinds {
		p.kinds[k] += v
	}
	for k, v := range q.terms {
		p.terms[k] += v
	}
	for k, v := range q.latencies {
		p.latencies[k] += v
	}
	p.zeroCount += q.zeroCount
	p.zero = append(q.zero, p.zero...)
}

// QueryMetrics collects query statistics in memory and periodically adds
// them to a Store. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.RWMutex

	// Totals since the collector was created
	kinds           map[QueryKind]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	startTime       time.Time

	recentQueries    *lru.Cache[string, struct{}]
	exactRepeatCount int64

	// Persistence
	store       Store
	unflushed   pending
	flushMu     sync.Mutex
	now         func() time.Time
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewQueryMetrics creates a collector with the default configuration.
// If store is nil, statistics are only kept in memory.
func NewQueryMetrics(store Store) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultConfig())
}

// NewQueryMetricsWithConfig creates a collector with cfg.
func NewQueryMetricsWithConfig(store Store, cfg Config) *QueryMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = 500
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		kinds:         make(map[QueryKind]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		startTime:     time.Now(),
		recentQueries: recentQueries,
		store:         store,
		unflushed:     newPending(),
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}

	return m
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record adds one query to the statistics.
func (m *QueryMetrics) Record(event QueryEvent) {
	if event.Kind == "" {
		event.Kind = ClassifyQuery(event.Query, false)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.kinds[event.Kind]++
	m.unflushed.kinds[event.Kind]++
	m.totalQueries++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.unflushed.terms[term]++
	}

	if event.IsZeroResult() {
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
		m.unflushed.zeroCount++
		m.unflushed.zero = append(m.unflushed.zero, zeroResult{query: event.Query, at: event.Timestamp})
	}

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++
	m.unflushed.latencies[bucket]++

	key := hashQuery(event.Query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.exactRepeatCount++
	}
	m.recentQueries.Add(key, struct{}{})
}

// hashQuery normalizes a query for repeat detection.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

// Snapshot returns the statistics recorded by this collector.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	topTerms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sortTerms(topTerms)

	return &Snapshot{
		KindCounts:          maps.Clone(m.kinds),
		TopTerms:            topTerms,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: maps.Clone(m.latencies),
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		Since:               m.startTime,
		ExactRepeatCount:    m.exactRepeatCount,
		UniqueQueryCount:    int64(m.recentQueries.Len()),
	}
}

// Flush adds everything recorded since the previous flush to the store.
// What could not be written is kept for the next flush.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	m.mu.Lock()
	batch := m.unflushed
	m.unflushed = newPending()
	m.mu.Unlock()

	if batch.empty() {
		return nil
	}

	if err := m.write(&batch); err != nil {
		m.mu.Lock()
		m.unflushed.merge(batch)
		m.mu.Unlock()
		return err
	}
	return nil
}

// write stores batch, clearing each part once it is stored so that a
// failure leaves only the unwritten remainder.
func (m *QueryMetrics) write(batch *pending) error {
	today := m.now().Format(DateFormat)

	if err := m.store.SaveKindCounts(today, batch.kinds); err != nil {
		return err
	}
	batch.kinds = nil
	if err := m.store.UpsertTermCounts(batch.terms); err != nil {
		return err
	}
	batch.terms = nil
	if err := m.store.SaveLatencyCounts(today, batch.latencies); err != nil {
		return err
	}
	batch.latencies = nil
	if batch.zeroCount > 0 {
		if err := m.store.SaveZeroResultCount(today, batch.zeroCount); err != nil {
			return err
		}
		batch.zeroCount = 0
	}
	for len(batch.zero) > 0 {
		z := batch.zero[0]
		if err := m.store.AddZeroResultQuery(z.query, z.at); err != nil {
			return err
		}
		batch.zero = batch.zero[1:]
	}
	return nil
}

// Close stops periodic flushing and flushes what is left. The store stays
// open; it belongs to the caller.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}

	return m.Flush()
}
