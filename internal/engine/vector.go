package engine

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"

	"github.com/coder/hnsw"
)

// vectorDims is the size of hashed term-frequency vectors.
const vectorDims = 256

// vectorIndex keeps one hashed term vector per document in an HNSW graph.
// Replaced and removed documents are orphaned rather than deleted from the
// graph; coder/hnsw misbehaves when its last node is deleted.
type vectorIndex struct {
	graph *hnsw.Graph[uint64]

	idMap   map[string]uint64 // uri -> graph key
	keyMap  map[uint64]string // graph key -> uri
	nextKey uint64
}

func newVectorIndex() *vectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &vectorIndex{
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// termVector hashes terms into a normalized frequency vector.
// ok is false when there are no terms.
func termVector(terms []string) (vec []float32, ok bool) {
	if len(terms) == 0 {
		return nil, false
	}
	vec = make([]float32, vectorDims)
	for _, t := range terms {
		h := fnv.New32a()
		_, _ = h.Write([]byte(t))
		vec[h.Sum32()%vectorDims]++
	}
	normalizeVectorInPlace(vec)
	return vec, true
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

func (v *vectorIndex) add(uri string, terms []string) {
	v.remove(uri)
	vec, ok := termVector(terms)
	if !ok {
		return
	}
	key := v.nextKey
	v.nextKey++
	v.graph.Add(hnsw.MakeNode(key, vec))
	v.idMap[uri] = key
	v.keyMap[key] = uri
}

func (v *vectorIndex) remove(uri string) {
	if key, ok := v.idMap[uri]; ok {
		delete(v.keyMap, key)
		delete(v.idMap, uri)
	}
}

// rank returns every live document with positive similarity to terms.
func (v *vectorIndex) rank(terms []string, noScores bool) []Hit {
	query, ok := termVector(terms)
	if !ok || v.graph.Len() == 0 {
		return nil
	}

	nodes := v.graph.Search(query, v.graph.Len())
	hits := make([]Hit, 0, len(nodes))
	for _, node := range nodes {
		uri, live := v.keyMap[node.Key]
		if !live {
			continue
		}
		score := 1 - float64(v.graph.Distance(query, node.Value))
		if score <= 1e-6 {
			continue
		}
		if noScores {
			score = 0
		}
		hits = append(hits, Hit{URI: uri, Score: score})
	}
	sortHits(hits, noScores)
	return hits
}

func (v *vectorIndex) session(terms []string, noScores bool) Session {
	return &vectorSession{index: v, terms: terms, noScores: noScores}
}

// vectorSession ranks lazily on the first chunk and pages locally after that.
type vectorSession struct {
	index    *vectorIndex
	terms    []string
	noScores bool

	ranked    bool
	hits      []Hit
	offset    int
	cancelled atomic.Bool
}

func (s *vectorSession) Next(ctx context.Context, limit int) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if s.cancelled.Load() {
		return Chunk{}, nil
	}
	if !s.ranked {
		s.hits = s.index.rank(s.terms, s.noScores)
		s.ranked = true
		if err := ctx.Err(); err != nil {
			return Chunk{}, err
		}
	}

	limit = chunkLimit(limit)
	end := min(s.offset+limit, len(s.hits))
	chunk := Chunk{
		Hits: append([]Hit(nil), s.hits[s.offset:end]...),
		More: end < len(s.hits),
	}
	s.offset = end
	return chunk, nil
}

func (s *vectorSession) Cancel() {
	s.cancelled.Store(true)
}
