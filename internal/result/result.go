// Package result holds the values search and annotation hand to callers.
// All of them are plain immutable data.
package result

import "sort"

// SearchResult is one matching document.
// Score is opaque: only its order within one search is meaningful.
type SearchResult struct {
	URI   string  `json:"uri"`
	Score float64 `json:"score"`
}

// Page is the outcome of one progressive search chunk.
type Page struct {
	Results []SearchResult `json:"results"`
	// MoreAvailable is false once the session is exhausted or cancelled.
	MoreAvailable bool `json:"more_available"`
	// TimedOut reports that the chunk hit its deadline; Results holds what
	// was materialized before it.
	TimedOut bool `json:"timed_out,omitempty"`
}

// LineMatch is one whole-word occurrence of a keyword on a line.
type LineMatch struct {
	URI  string `json:"uri"`
	Line int    `json:"line"` // 1-based
	// Text is the normalized line: one edge space trimmed per side, lowercased.
	Text string `json:"text"`
	// Start and End are a half-open rune range of the keyword in Text.
	Start int `json:"start"`
	End   int `json:"end"`
}

// Annotated pairs a result with its line matches.
type Annotated struct {
	SearchResult
	Lines []LineMatch `json:"lines,omitempty"`
}

func (r SearchResult) ranking() SearchResult { return r }

// SortByScore sorts results, or values embedding one, by descending score
// with ties by URI.
func SortByScore[T interface{ ranking() SearchResult }](results []T) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].ranking(), results[j].ranking()
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.URI < b.URI
	})
}

// URIs returns the URIs of results in order.
func URIs(results []SearchResult) []string {
	uris := make([]string, len(results))
	for i, r := range results {
		uris[i] = r.URI
	}
	return uris
}
