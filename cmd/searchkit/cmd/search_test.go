package cmd

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
)

func TestSearchCmd_Flags(t *testing.T) {
	cmd := NewRootCmd()
	searchCmd, _, err := cmd.Find([]string{"search"})
	require.NoError(t, err)

	for _, name := range []string{"limit", "chunk", "timeout", "progressive", "lines", "keyword", "similar", "or", "no-scores", "sort", "format"} {
		assert.NotNil(t, searchCmd.Flags().Lookup(name), name)
	}
}

func TestSearch_ApacheSchool(t *testing.T) {
	// Given: two documents
	env := newTestEnv(t)
	env.mustRun("add-text", "doc://apache", "the apache license")
	env.mustRun("add-text", "doc://school", "a school trip")

	// When: searching for one term
	out := env.mustRun("search", "apache")

	// Then: only the matching document is listed
	assert.Contains(t, out, "1. doc://apache")
	assert.NotContains(t, out, "doc://school")
}

func TestSearch_JoinsArguments(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("add-text", "doc://a", "apache license")
	env.mustRun("add-text", "doc://b", "apache trip")

	out := env.mustRun("search", "apache", "license")

	assert.Contains(t, out, "doc://a")
	assert.NotContains(t, out, "doc://b")

	out = env.mustRun("search", "--or", "license", "trip")
	assert.Contains(t, out, "doc://a")
	assert.Contains(t, out, "doc://b")
}

func TestSearch_NoResults(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("add-text", "doc://a", "apache")

	out := env.mustRun("search", "missing")

	assert.Contains(t, out, `No results for "missing"`)
}

func TestSearch_Lines(t *testing.T) {
	// Given: a document where the keyword sits on the second line
	env := newTestEnv(t)
	env.mustRun("add-text", "doc://a", "first line\nthe Apache license")
	env.mustRun("add-text", "doc://b", "apaches everywhere apache")

	// When: searching with line annotation
	out := env.mustRun("search", "--lines", "apache")

	// Then: the line is shown under the result
	assert.Contains(t, out, "doc://a")
	assert.Contains(t, out, "2: the apache license")
}

func TestSearch_LinesDropsUnmatched(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("add-text", "doc://a", "school trip")

	out := env.mustRun("search", "--lines", "--keyword", "schools", "school")

	assert.NotContains(t, out, "doc://a")
}

func TestSearch_JSONReport(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("add-text", "doc://a", "first line\napache license")

	out := env.mustRun("search", "--format", "json", "--lines", "apache")

	var report searchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "apache", report.Query)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "doc://a", report.Results[0].URI)
	require.Len(t, report.Results[0].Lines, 1)
	assert.Equal(t, 2, report.Results[0].Lines[0].Line)
	assert.Equal(t, 1, report.Chunks)
	assert.False(t, report.MoreAvailable)
}

func TestSearch_ProgressiveFetchesEveryChunk(t *testing.T) {
	// Given: seven matching documents
	env := newTestEnv(t)
	for i := range 7 {
		env.mustRun("add-text", fmt.Sprintf("doc://%d", i), "shared word")
	}

	// When: searching progressively in chunks of three
	out := env.mustRun("search", "--format", "json", "--progressive", "--chunk", "3", "shared")

	// Then: every document arrives exactly once over several chunks
	var report searchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Results, 7)
	assert.GreaterOrEqual(t, report.Chunks, 3)
	assert.False(t, report.MoreAvailable)

	seen := map[string]bool{}
	for _, r := range report.Results {
		assert.False(t, seen[r.URI], "duplicate %s", r.URI)
		seen[r.URI] = true
	}
}

func TestSearch_SingleChunkReportsMore(t *testing.T) {
	env := newTestEnv(t)
	for i := range 4 {
		env.mustRun("add-text", fmt.Sprintf("doc://%d", i), "shared word")
	}

	out := env.mustRun("search", "--chunk", "2", "shared")

	assert.Contains(t, out, "2. doc://")
	assert.NotContains(t, out, "3. doc://")
	assert.Contains(t, out, "More results available")
}

func TestSearch_LimitCapsProgressive(t *testing.T) {
	env := newTestEnv(t)
	for i := range 5 {
		env.mustRun("add-text", fmt.Sprintf("doc://%d", i), "shared word")
	}

	out := env.mustRun("search", "--format", "json", "--progressive", "--chunk", "2", "--limit", "3", "shared")

	var report searchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Results, 3)
	assert.True(t, report.MoreAvailable)
}

func TestSearch_SortRanksAcrossChunks(t *testing.T) {
	// Given: documents of differing relevance
	env := newTestEnv(t)
	env.mustRun("add-text", "doc://once", "apache and many other unrelated words here")
	env.mustRun("add-text", "doc://often", "apache apache apache")
	env.mustRun("add-text", "doc://twice", "apache server apache")

	// When: searching in chunks of one with --sort
	out := env.mustRun("search", "--format", "json", "--sort", "--chunk", "1", "apache")

	// Then: every chunk was fetched and the results are in score order
	var report searchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Results, 3)
	assert.GreaterOrEqual(t, report.Chunks, 3)
	for i := 1; i < len(report.Results); i++ {
		assert.GreaterOrEqual(t, report.Results[i-1].Score, report.Results[i].Score)
	}
}

func TestSearch_SortFetchesPastDefaultChunk(t *testing.T) {
	// Given: more matches than one default chunk holds
	env := newTestEnv(t)
	for i := range 12 {
		env.mustRun("add-text", fmt.Sprintf("doc://%02d", i), "shared word")
	}

	// When: sorting without --progressive, --chunk or --limit
	out := env.mustRun("search", "--format", "json", "--sort", "shared")

	// Then: every match was collected
	var report searchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Results, 12)
	assert.GreaterOrEqual(t, report.Chunks, 2)
	assert.False(t, report.MoreAvailable)
}

func TestSearch_SortPrintsOneList(t *testing.T) {
	env := newTestEnv(t)
	for i := range 3 {
		env.mustRun("add-text", fmt.Sprintf("doc://%d", i), "shared word")
	}

	out := env.mustRun("search", "--sort", "--chunk", "1", "shared")

	assert.Contains(t, out, "3. doc://")
	assert.NotContains(t, out, "More results available")
}

func TestSearch_MalformedQuery(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("add-text", "doc://a", "apache")

	_, err := env.run("search", `"unterminated`)

	require.Error(t, err)
	assert.True(t, skerrors.HasCode(err, skerrors.ErrCodeInvalidQuery))
}

func TestSearch_NoIndex(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("search", "apache")

	require.Error(t, err)
	assert.True(t, skerrors.HasCode(err, skerrors.ErrCodeFileNotFound))
}

func TestSearch_UnknownFormat(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("search", "--format", "xml", "apache")

	require.Error(t, err)
}
