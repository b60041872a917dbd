package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPolling(t *testing.T, dir string, ignore func(string, bool) bool) *PollingWatcher {
	t.Helper()
	w := NewPollingWatcher(30*time.Millisecond, ignore)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
	go func() { _ = w.Start(ctx, dir) }()
	// Let the baseline scan finish.
	time.Sleep(100 * time.Millisecond)
	return w
}

func nextPolled(t *testing.T, w *PollingWatcher, path string) FileEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-w.Events():
			require.True(t, ok, "events closed")
			if event.Path == path {
				return event
			}
		case err := <-w.Errors():
			t.Fatalf("unexpected error: %v", err)
		case <-deadline:
			t.Fatalf("timeout waiting for event on %s", path)
		}
	}
}

func TestPollingWatcher_DetectsCreateModifyDelete(t *testing.T) {
	// Given: a watched directory
	dir := t.TempDir()
	w := startPolling(t, dir, nil)
	file := filepath.Join(dir, "notes.txt")

	// When: a file is created
	require.NoError(t, os.WriteFile(file, []byte("one"), 0o644))
	// Then: CREATE
	assert.Equal(t, OpCreate, nextPolled(t, w, "notes.txt").Operation)

	// When: it changes size
	require.NoError(t, os.WriteFile(file, []byte("one two three"), 0o644))
	// Then: MODIFY
	assert.Equal(t, OpModify, nextPolled(t, w, "notes.txt").Operation)

	// When: it is removed
	require.NoError(t, os.Remove(file))
	// Then: DELETE
	assert.Equal(t, OpDelete, nextPolled(t, w, "notes.txt").Operation)
}

func TestPollingWatcher_DetectsNewDirectory(t *testing.T) {
	// Given: a watched directory
	dir := t.TempDir()
	w := startPolling(t, dir, nil)

	// When: a subdirectory appears
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	// Then: a directory CREATE is reported
	event := nextPolled(t, w, "sub")
	assert.Equal(t, OpCreate, event.Operation)
	assert.True(t, event.IsDir)
}

func TestPollingWatcher_IgnoredEntries(t *testing.T) {
	// Given: a watcher ignoring *.tmp
	dir := t.TempDir()
	w := startPolling(t, dir, func(rel string, isDir bool) bool {
		return filepath.Ext(rel) == ".tmp"
	})

	// When: an ignored and a visible file are created
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0o644))

	// Then: only the visible file is reported
	event := nextPolled(t, w, "b.txt")
	assert.Equal(t, OpCreate, event.Operation)
	select {
	case extra := <-w.Events():
		assert.NotEqual(t, "a.tmp", extra.Path)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPollingWatcher_Start_InvalidPath_ReturnsError(t *testing.T) {
	// Given: a polling watcher
	w := NewPollingWatcher(time.Second, nil)
	defer func() { _ = w.Stop() }()

	// When: started on a missing directory
	err := w.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))

	// Then: the baseline scan fails
	require.Error(t, err)
}

func TestPollingWatcher_ContextCancellation(t *testing.T) {
	// Given: a running watcher
	dir := t.TempDir()
	w := NewPollingWatcher(20*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, dir) }()

	// When: the context is cancelled
	time.Sleep(50 * time.Millisecond)
	cancel()

	// Then: Start returns and the channels close
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return")
	}
	_, ok := <-w.Events()
	assert.False(t, ok)
}
