package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/index"
	"github.com/Aman-CERP/searchkit/internal/preflight"
)

// committedDocuments opens the env's index read-only and lists it.
func committedDocuments(t *testing.T, env *testEnv) []string {
	t.Helper()
	h, err := index.Open(env.index, false)
	require.NoError(t, err)
	defer func() { _ = h.Close() }()
	return h.Documents(context.Background(), index.FilterAll)
}

func TestIndexCmd_Flags(t *testing.T) {
	cmd := NewRootCmd()
	indexCmd, _, err := cmd.Find([]string{"index"})
	require.NoError(t, err)

	for _, name := range []string{"replace", "workers", "plain", "skip-check", "compact"} {
		assert.NotNil(t, indexCmd.Flags().Lookup(name), name)
	}
}

func TestIndex_FolderCreatesIndex(t *testing.T) {
	// Given: a folder with two documents and a hidden one
	env := newTestEnv(t)
	env.writeFiles(map[string]string{
		"docs/a.txt":      "apache license",
		"docs/sub/b.txt":  "school trip",
		"docs/.hidden.md": "secret",
	})

	// When: indexing it
	out := env.mustRun("index", "--skip-check", "--plain", filepath.Join(env.dir, "docs"))

	// Then: the index is created with both visible documents
	assert.Contains(t, out, "Created bleve index")
	docs := committedDocuments(t, env)
	assert.Len(t, docs, 2)
}

func TestIndex_FilesAndReplace(t *testing.T) {
	env := newTestEnv(t)
	env.writeFiles(map[string]string{"a.txt": "apache license"})
	path := filepath.Join(env.dir, "a.txt")

	out := env.mustRun("index", "--skip-check", path)
	assert.Contains(t, out, "Added 1 of 1 files")

	// Given: the file is already indexed
	// When: adding it again without --replace
	out = env.mustRun("index", "--skip-check", path)

	// Then: it is skipped
	assert.Contains(t, out, "Added 0 of 1 files")
	assert.Contains(t, out, "Not added")

	out = env.mustRun("index", "--skip-check", "--replace", path)
	assert.Contains(t, out, "Added 1 of 1 files")
}

func TestIndex_MissingPath(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("index", "--skip-check", filepath.Join(env.dir, "missing"))

	require.Error(t, err)
	assert.True(t, skerrors.HasCode(err, skerrors.ErrCodeFileNotFound))
}

func TestIndex_PreflightMarksDataDir(t *testing.T) {
	// Given: a fresh data dir
	env := newTestEnv(t)
	env.writeFiles(map[string]string{"a.txt": "apache"})
	dataDir := filepath.Dir(env.index)

	// When: indexing with checks enabled
	env.mustRun("index", "--plain", env.dir)

	// Then: the passed checks are remembered
	assert.False(t, preflight.NeedsCheck(dataDir))
}

func TestIndex_Compact(t *testing.T) {
	env := newTestEnv(t)
	env.writeFiles(map[string]string{"a.txt": "apache"})

	out := env.mustRun("index", "--skip-check", "--plain", "--compact", env.dir)

	assert.Contains(t, out, "Index compacted")
}

func TestAddText(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("add-text", "note://a", "renew the apache license")
	assert.Contains(t, out, "Added note://a")

	// Given: the URI exists
	// When: adding it again without --replace
	_, err := env.run("add-text", "note://a", "other text")

	// Then: it is rejected with a hint
	require.Error(t, err)
	assert.True(t, skerrors.HasCode(err, skerrors.ErrCodeDocumentRejected))

	env.mustRun("add-text", "--replace", "note://a", "other text")
	out = env.mustRun("search", "other")
	assert.Contains(t, out, "note://a")
}

func TestAddText_FromStdin(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.runWithInput(context.Background(), "piped school trip", "add-text", "note://stdin")
	require.NoError(t, err, out)

	out = env.mustRun("search", "school")
	assert.Contains(t, out, "note://stdin")
}
