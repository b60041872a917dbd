package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchkit/internal/async"
	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/ui"
)

func TestStatus_JSON(t *testing.T) {
	// Given: an index with one empty and one regular document
	env := newTestEnv(t)
	env.mustRun("add-text", "doc://a", "apache license")
	env.mustRun("add-text", "doc://empty", "")

	// When: requesting status as JSON
	out := env.mustRun("status", "--json")

	// Then: counts, engine and size are reported
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, env.index, info.Path)
	assert.Equal(t, "bleve", info.Backend)
	assert.Equal(t, "inverted", info.Type)
	assert.Equal(t, uint64(2), info.Documents)
	assert.Equal(t, 1, info.EmptyDocuments)
	assert.Positive(t, info.SizeBytes)
	assert.WithinDuration(t, time.Now(), info.CreatedAt, time.Minute)
	assert.Equal(t, "ready", info.Indexing)
}

func TestStatus_Text(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("add-text", "doc://a", "apache")

	out := env.mustRun("status")

	assert.Contains(t, out, "Index: "+env.index)
	assert.Contains(t, out, "Documents:  1")
}

func TestStatus_IncompleteIngestion(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("add-text", "doc://a", "apache")
	lock := filepath.Join(filepath.Dir(env.index), async.LockFile)
	require.NoError(t, os.WriteFile(lock, []byte("x"), 0644))

	out := env.mustRun("status", "--json")

	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "indexing", info.Indexing)
}

func TestStatus_NoIndex(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("status")

	require.Error(t, err)
	assert.True(t, skerrors.HasCode(err, skerrors.ErrCodeFileNotFound))
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 5), 0644))

	size, newest := dirSize(dir)

	assert.Equal(t, int64(15), size)
	assert.False(t, newest.IsZero())

	size, newest = dirSize(filepath.Join(dir, "missing"))
	assert.Zero(t, size)
	assert.True(t, newest.IsZero())
}
