package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHybrid(t *testing.T, dir string, opts Options) *HybridWatcher {
	t.Helper()
	if opts.DebounceWindow == 0 {
		opts.DebounceWindow = 30 * time.Millisecond
	}
	w, err := NewHybridWatcher(opts)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
	go func() { _ = w.Start(ctx, dir) }()
	time.Sleep(150 * time.Millisecond)
	return w
}

// waitForEvent drains batches until one holds an event on path with op.
func waitForEvent(t *testing.T, w *HybridWatcher, path string, op Operation) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case batch, ok := <-w.Events():
			require.True(t, ok, "events closed")
			for _, e := range batch {
				if e.Path == path && e.Operation == op {
					return
				}
			}
		case err := <-w.Errors():
			t.Fatalf("unexpected error: %v", err)
		case <-deadline:
			t.Fatalf("timeout waiting for %s %s", op, path)
		}
	}
}

func bothModes(t *testing.T, fn func(t *testing.T, opts Options)) {
	t.Run("fsnotify", func(t *testing.T) {
		fn(t, Options{})
	})
	t.Run("polling", func(t *testing.T) {
		fn(t, Options{ForcePolling: true, PollInterval: 30 * time.Millisecond})
	})
}

func TestHybridWatcher_Mode(t *testing.T) {
	w, err := NewHybridWatcher(Options{ForcePolling: true})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()
	assert.Equal(t, "polling", w.Mode())
}

func TestHybridWatcher_DetectsFileLifecycle(t *testing.T) {
	bothModes(t, func(t *testing.T, opts Options) {
		// Given: a watched directory
		dir := t.TempDir()
		w := startHybrid(t, dir, opts)
		file := filepath.Join(dir, "report.txt")

		// When/Then: create, modify and delete surface as events
		require.NoError(t, os.WriteFile(file, []byte("draft"), 0o644))
		waitForEvent(t, w, "report.txt", OpCreate)

		require.NoError(t, os.WriteFile(file, []byte("final version"), 0o644))
		waitForEvent(t, w, "report.txt", OpModify)

		require.NoError(t, os.Remove(file))
		waitForEvent(t, w, "report.txt", OpDelete)
	})
}

func TestHybridWatcher_IgnoresHiddenAndExcluded(t *testing.T) {
	bothModes(t, func(t *testing.T, opts Options) {
		// Given: a watcher excluding *.log, over a tree with a hidden directory
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, ".searchkit"), 0o755))
		opts.ExcludePatterns = []string{"*.log"}
		w := startHybrid(t, dir, opts)

		// When: hidden, excluded and visible files change
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".searchkit", "meta.json"), []byte("{}"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("X=1"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "run.log"), []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "visible.txt"), []byte("x"), 0o644))

		// Then: only the visible file is reported
		deadline := time.After(3 * time.Second)
		for {
			select {
			case batch := <-w.Events():
				for _, e := range batch {
					assert.NotContains(t, []string{filepath.Join(".searchkit", "meta.json"), ".env", "run.log"}, e.Path)
					if e.Path == "visible.txt" {
						return
					}
				}
			case <-deadline:
				t.Fatal("timeout waiting for visible.txt")
			}
		}
	})
}

func TestHybridWatcher_DetectsFilesInNewSubdirectory(t *testing.T) {
	bothModes(t, func(t *testing.T, opts Options) {
		// Given: a watched directory
		dir := t.TempDir()
		w := startHybrid(t, dir, opts)

		// When: a directory with a file appears
		sub := filepath.Join(dir, "sub")
		require.NoError(t, os.Mkdir(sub, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(sub, "inner.txt"), []byte("x"), 0o644))

		// Then: the file inside is reported as created
		waitForEvent(t, w, filepath.Join("sub", "inner.txt"), OpCreate)
	})
}

func TestHybridWatcher_Start_InvalidPath_ReturnsError(t *testing.T) {
	// Given: a watcher
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	// When: started on a missing directory
	err = w.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))

	// Then: Start fails
	require.Error(t, err)
}

func TestHybridWatcher_ContextCancel_ClosesChannels(t *testing.T) {
	bothModes(t, func(t *testing.T, opts Options) {
		// Given: a running watcher
		w, err := NewHybridWatcher(opts)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Start(ctx, t.TempDir()) }()
		time.Sleep(50 * time.Millisecond)

		// When: the context is cancelled
		cancel()

		// Then: Start returns and Events closes
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Start did not return")
		}
		_, ok := <-w.Events()
		assert.False(t, ok)
	})
}

func TestHybridWatcher_ConcurrentStop_Safe(t *testing.T) {
	// Given: a watcher
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)

	// When: stopped from several goroutines
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Stop())
		}()
	}
	wg.Wait()

	// Then: both channels are closed
	_, ok := <-w.Errors()
	assert.False(t, ok)
}

func TestHybridWatcher_DroppedBatches_IncrementsOnOverflow(t *testing.T) {
	// Given: a watcher with a one-batch buffer
	w, err := NewHybridWatcher(Options{EventBufferSize: 1})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()
	assert.Zero(t, w.DroppedBatches())

	// When: three batches are emitted without a consumer
	w.emitBatch([]FileEvent{{Path: "a.txt", Operation: OpCreate}})
	w.emitBatch([]FileEvent{{Path: "b.txt", Operation: OpCreate}})
	w.emitBatch([]FileEvent{{Path: "c.txt", Operation: OpCreate}})

	// Then: two were dropped
	assert.Equal(t, uint64(2), w.DroppedBatches())
}

func TestOptions_WithDefaults(t *testing.T) {
	got := Options{DebounceWindow: time.Second}.WithDefaults()
	assert.Equal(t, time.Second, got.DebounceWindow)
	assert.Equal(t, DefaultOptions().PollInterval, got.PollInterval)
	assert.Equal(t, DefaultOptions().EventBufferSize, got.EventBufferSize)
	assert.Equal(t, "RENAME", OpRename.String())
	assert.Equal(t, "UNKNOWN", Operation(42).String())
}
