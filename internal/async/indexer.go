package async

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LockFile marks a data directory whose background ingestion has not
// finished. It survives failed and cancelled runs.
const LockFile = "indexing.lock"

// IndexFunc is the ingestion work run by a BackgroundIndexer.
type IndexFunc func(ctx context.Context, progress *Progress) error

// IndexerConfig configures the BackgroundIndexer.
type IndexerConfig struct {
	// DataDir receives the lock file. Empty disables it (in-memory indexes).
	DataDir string
}

// BackgroundIndexer runs one ingestion in a goroutine while the index keeps
// serving searches. Progress is published for the MCP index_status tool.
type BackgroundIndexer struct {
	dataDir  string
	progress *Progress

	// IndexFunc is the work to run. Nil marks the run ready immediately.
	IndexFunc IndexFunc

	mu      sync.Mutex
	cancel  context.CancelFunc // set by Start
	done    chan struct{}
	running bool
	err     error
}

func NewBackgroundIndexer(cfg IndexerConfig) *BackgroundIndexer {
	return &BackgroundIndexer{dataDir: cfg.DataDir, progress: NewProgress(), done: make(chan struct{})}
}

// FolderIndexFunc ingests root through c and flushes once.
func FolderIndexFunc(c *Coordinator, root string) IndexFunc {
	return func(ctx context.Context, _ *Progress) error {
		res := c.AddFolder(ctx, root, true)
		if err := ctx.Err(); err != nil {
			return err
		}
		if !res.Flushed {
			return fmt.Errorf("flush after ingesting %s failed", root)
		}
		return nil
	}
}

func (b *BackgroundIndexer) Progress() *Progress {
	return b.progress
}

func (b *BackgroundIndexer) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start begins ingestion. Only the first call has an effect.
func (b *BackgroundIndexer) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.running = true
	go b.run(ctx, cancel)
}

func (b *BackgroundIndexer) run(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	err := b.ingest(ctx)

	if err != nil {
		b.progress.SetError(err.Error())
	} else {
		b.progress.SetReady()
	}

	b.mu.Lock()
	b.err = err
	b.running = false
	b.mu.Unlock()
	close(b.done)
}

func (b *BackgroundIndexer) ingest(ctx context.Context) error {
	if b.dataDir != "" {
		if err := writeLock(b.dataDir); err != nil {
			return err
		}
	}
	if b.IndexFunc != nil {
		if err := b.IndexFunc(ctx, b.progress); err != nil {
			return err
		}
	}
	if b.dataDir != "" {
		_ = os.Remove(filepath.Join(b.dataDir, LockFile))
	}
	return nil
}

func writeLock(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	stamp := []byte(time.Now().Format(time.RFC3339))
	if err := os.WriteFile(filepath.Join(dataDir, LockFile), stamp, 0644); err != nil {
		return fmt.Errorf("write ingestion lock: %w", err)
	}
	return nil
}

// Stop cancels a running ingestion and waits for it to return.
func (b *BackgroundIndexer) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-b.done
	}
}

// Wait blocks until a started ingestion returns and reports its error.
func (b *BackgroundIndexer) Wait() error {
	b.mu.Lock()
	started := b.cancel != nil
	b.mu.Unlock()

	if !started {
		return nil
	}
	<-b.done

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// HasIncompleteLock reports whether an earlier ingestion into dataDir did
// not finish.
func HasIncompleteLock(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, LockFile))
	return err == nil
}
