package engine

import (
	"testing"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitWords(t *testing.T) {
	tokens := splitWords("Hello, wörld! 42x  naïve")

	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.term
	}
	assert.Equal(t, []string{"Hello", "wörld", "42x", "naïve"}, terms)

	// Offsets are bytes, positions count words
	assert.Equal(t, 0, tokens[0].start)
	assert.Equal(t, 5, tokens[0].end)
	assert.Equal(t, 1, tokens[0].position)
	assert.Equal(t, 4, tokens[3].position)
}

func TestSplitWords_Empty(t *testing.T) {
	assert.Empty(t, splitWords(""))
	assert.Empty(t, splitWords(" ,.;!"))
}

func TestAnalyzer_Terms(t *testing.T) {
	a := NewAnalyzer(Properties{StopWords: []string{"The", " and "}, MinTermLength: 3})

	// Stop words match case-insensitively; short terms are dropped.
	assert.Equal(t, []string{"cat", "dog", "run"}, a.Terms("The CAT and the dog go run"))
	assert.False(t, a.Keep("and"))
	assert.False(t, a.Keep("go"))
	assert.True(t, a.Keep("dog"))
	assert.False(t, a.Keep(""))
}

func TestFrequencies(t *testing.T) {
	got := Frequencies([]string{"b", "a", "b", "c", "a", "b"})
	assert.Equal(t, []TermFrequency{
		{Term: "b", Count: 3},
		{Term: "a", Count: 2},
		{Term: "c", Count: 1},
	}, got)
	assert.Empty(t, Frequencies(nil))
}

func TestBleveTokenizer(t *testing.T) {
	tokenizer := &bleveWordTokenizer{}
	stream := tokenizer.Tokenize([]byte("Apache web"))

	require.Len(t, stream, 2)
	assert.Equal(t, "Apache", string(stream[0].Term))
	assert.Equal(t, 1, stream[0].Position)
	assert.Equal(t, 7, stream[1].Start)
	assert.Equal(t, analysis.AlphaNumeric, stream[1].Type)
}

func TestTermFilterConstructor(t *testing.T) {
	// Given: configuration as it comes back from a persisted mapping
	filter, err := termFilterConstructor(map[string]interface{}{
		"stop_words": []interface{}{"the"},
		"min_length": float64(2),
	}, nil)
	require.NoError(t, err)

	stream := analysis.TokenStream{
		{Term: []byte("the")},
		{Term: []byte("x")},
		{Term: []byte("cat")},
	}
	out := filter.Filter(stream)

	require.Len(t, out, 1)
	assert.Equal(t, "cat", string(out[0].Term))
}

func TestTermFilterConstructor_BadConfig(t *testing.T) {
	_, err := termFilterConstructor(map[string]interface{}{"stop_words": 3}, nil)
	assert.Error(t, err)

	_, err = termFilterConstructor(map[string]interface{}{"min_length": "two"}, nil)
	assert.Error(t, err)
}
