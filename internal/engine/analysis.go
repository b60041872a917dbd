package engine

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// WordTokenizerName splits text into runs of letters and digits.
	WordTokenizerName = "searchkit_words"

	// TermFilterType drops stop words and terms below a minimum length.
	TermFilterType = "searchkit_terms"

	termFilterName = "searchkit_term_filter"
	analyzerName   = "searchkit_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(WordTokenizerName, wordTokenizerConstructor)
	_ = registry.RegisterTokenFilter(TermFilterType, termFilterConstructor)
}

type token struct {
	term     string
	start    int // byte offset
	end      int
	position int // 1-based
}

// splitWords returns maximal runs of letters and digits, case preserved.
func splitWords(text string) []token {
	var tokens []token
	start := -1
	pos := 0
	for i, r := range text {
		word := unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
		switch {
		case word && start < 0:
			start = i
		case !word && start >= 0:
			pos++
			tokens = append(tokens, token{term: text[start:i], start: start, end: i, position: pos})
			start = -1
		}
	}
	if start >= 0 {
		pos++
		tokens = append(tokens, token{term: text[start:], start: start, end: len(text), position: pos})
	}
	return tokens
}

// Analyzer turns text into index terms the same way for every backend:
// word split, lowercase, then stop word and minimum length filtering.
type Analyzer struct {
	stopWords map[string]struct{}
	minLength int
}

// NewAnalyzer builds an analyzer from index properties.
func NewAnalyzer(props Properties) *Analyzer {
	return newAnalyzer(props.StopWords, props.MinTermLength)
}

func newAnalyzer(stopWords []string, minLength int) *Analyzer {
	a := &Analyzer{
		stopWords: make(map[string]struct{}, len(stopWords)),
		minLength: minLength,
	}
	for _, w := range stopWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			a.stopWords[w] = struct{}{}
		}
	}
	return a
}

// Keep reports whether a lowercased term survives filtering.
func (a *Analyzer) Keep(term string) bool {
	if term == "" {
		return false
	}
	if _, stop := a.stopWords[term]; stop {
		return false
	}
	return utf8.RuneCountInString(term) >= a.minLength
}

func (a *Analyzer) analyze(text string) []token {
	raw := splitWords(text)
	out := raw[:0]
	for _, t := range raw {
		t.term = strings.ToLower(t.term)
		if a.Keep(t.term) {
			out = append(out, t)
		}
	}
	return out
}

// Terms returns the index terms of text in order.
func (a *Analyzer) Terms(text string) []string {
	tokens := a.analyze(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.term
	}
	return terms
}

// Frequencies counts terms, most frequent first, ties alphabetical.
func Frequencies(terms []string) []TermFrequency {
	counts := make(map[string]int, len(terms))
	for _, t := range terms {
		counts[t]++
	}
	out := make([]TermFrequency, 0, len(counts))
	for term, n := range counts {
		out = append(out, TermFrequency{Term: term, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// wordTokenizerConstructor creates the word tokenizer for Bleve.
func wordTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveWordTokenizer{}, nil
}

// bleveWordTokenizer implements analysis.Tokenizer over splitWords.
type bleveWordTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *bleveWordTokenizer) Tokenize(input []byte) analysis.TokenStream {
	tokens := splitWords(string(input))
	stream := make(analysis.TokenStream, 0, len(tokens))
	for _, tok := range tokens {
		stream = append(stream, &analysis.Token{
			Term:     []byte(tok.term),
			Start:    tok.start,
			End:      tok.end,
			Position: tok.position,
			Type:     analysis.AlphaNumeric,
		})
	}
	return stream
}

// termFilterConstructor reads stop_words and min_length from the mapping,
// so a reopened index filters exactly as it did when created.
func termFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	var stopWords []string
	switch v := config["stop_words"].(type) {
	case nil:
	case []string:
		stopWords = v
	case []interface{}:
		for _, w := range v {
			s, ok := w.(string)
			if !ok {
				return nil, fmt.Errorf("stop_words: expected strings, got %T", w)
			}
			stopWords = append(stopWords, s)
		}
	default:
		return nil, fmt.Errorf("stop_words: unexpected type %T", v)
	}

	minLength := 0
	switch v := config["min_length"].(type) {
	case nil:
	case int:
		minLength = v
	case float64:
		minLength = int(v)
	default:
		return nil, fmt.Errorf("min_length: unexpected type %T", v)
	}

	return &bleveTermFilter{analyzer: newAnalyzer(stopWords, minLength)}, nil
}

// bleveTermFilter implements analysis.TokenFilter. Input is already lowercased.
type bleveTermFilter struct {
	analyzer *Analyzer
}

// Filter implements analysis.TokenFilter.
func (f *bleveTermFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := input[:0]
	for _, tok := range input {
		if f.analyzer.Keep(string(tok.Term)) {
			out = append(out, tok)
		}
	}
	return out
}
