package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSearchResults_NoResults(t *testing.T) {
	text := FormatSearchResults("missing", SearchOutput{})

	assert.Equal(t, "No results found for \"missing\"", text)
}

func TestFormatSearchResults_WithLinesAndSession(t *testing.T) {
	// Given: one result with a line and a continuation session
	out := SearchOutput{
		Results: []SearchResultOutput{{
			URI:   "file:///docs/a.txt",
			Score: 0.876,
			Lines: []LineOutput{{Line: 3, Excerpt: "the `apache` license"}},
		}},
		MoreAvailable: true,
		Session:       "abc123",
	}

	// When: formatting
	text := FormatSearchResults("apache", out)

	// Then: header, result, line and continuation are present
	assert.Contains(t, text, "## Search Results for \"apache\"")
	assert.Contains(t, text, "Found 1 result\n")
	assert.Contains(t, text, "### 1. file:///docs/a.txt (score: 0.88)")
	assert.Contains(t, text, "- line 3: `the 'apache' license`")
	assert.Contains(t, text, "Continue with session `abc123`")
}

func TestFormatSearchResults_ContinuationHeader(t *testing.T) {
	out := SearchOutput{Results: []SearchResultOutput{{URI: "doc://a"}, {URI: "doc://b"}}}

	text := FormatSearchResults("", out)

	assert.Contains(t, text, "## More Search Results")
	assert.Contains(t, text, "Found 2 results")
	assert.NotContains(t, text, "session")
}

func TestFormatSearchResults_TimedOut(t *testing.T) {
	out := SearchOutput{TimedOut: true, MoreAvailable: true, Session: "s1"}

	text := FormatSearchResults("slow", out)

	assert.Contains(t, text, "ran out of time")
	assert.Contains(t, text, "`s1`")
}

func TestFormatSearchResults_Indexing(t *testing.T) {
	out := SearchOutput{
		Results:  []SearchResultOutput{{URI: "doc://a"}},
		Indexing: &IndexingProgress{ProgressPct: 40, FilesProcessed: 4, FilesTotal: 10},
	}

	text := FormatSearchResults("q", out)

	assert.Contains(t, text, "Indexing in progress: 40.0% (4/10 files)")
}

func TestFormatAnnotation(t *testing.T) {
	empty := FormatAnnotation("school", AnnotateOutput{URI: "doc://a"})
	assert.Equal(t, "\"school\" does not occur as a whole word in doc://a", empty)

	text := FormatAnnotation("school", AnnotateOutput{
		URI: "doc://a",
		Lines: []LineOutput{
			{Line: 1, Excerpt: "the school trip"},
			{Line: 5, Excerpt: "school is out"},
		},
	})
	assert.Contains(t, text, "## \"school\" in doc://a")
	assert.Contains(t, text, "Found 2 lines")
	assert.Contains(t, text, "- line 5: `school is out`")
}

func TestFormatAddText(t *testing.T) {
	tests := []struct {
		name string
		out  AddTextOutput
		want string
	}{
		{"rejected", AddTextOutput{URI: "doc://a"}, "was not added"},
		{"not flushed", AddTextOutput{URI: "doc://a", Added: true}, "could not be committed"},
		{"searchable", AddTextOutput{URI: "doc://a", Added: true, Flushed: true}, "added and searchable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, FormatAddText(tt.out), tt.want)
		})
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, 10},
		{"negative uses default", -5, 10},
		{"within bounds", 25, 25},
		{"above max", 500, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clampLimit(tt.limit, 10, 1, 100))
		})
	}
}
