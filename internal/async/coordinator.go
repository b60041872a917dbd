package async

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/searchkit/internal/content"
	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/scanner"
)

// Indexer is the index surface the coordinator drives. *index.Handle
// implements it.
type Indexer interface {
	AddText(ctx context.Context, uri, text string, canReplace bool) bool
	AddFile(ctx context.Context, path, mimeHint string, canReplace bool) bool
	Flush(ctx context.Context) bool
}

// Item is one literal-text document of a batch.
type Item struct {
	URI  string
	Text string
}

// ItemResult is the outcome of one task.
type ItemResult struct {
	URI string
	OK  bool
	Err error
}

// BatchResult is the joined outcome of a batch. Items[i] belongs to the
// i-th input.
type BatchResult struct {
	Items     []ItemResult
	Succeeded int
	Failed    int
	// Flushed is set when a flush was requested and succeeded.
	Flushed  bool
	Duration time.Duration
}

// FolderResult is the outcome of AddFolder. Items are ordered by URI.
type FolderResult struct {
	BatchResult
	// Added lists the URIs that were added.
	Added []string
}

// Config configures a Coordinator.
type Config struct {
	// Workers bounds concurrent tasks. Default: runtime.NumCPU()
	Workers int
	// CanReplace lets batches overwrite documents that already exist.
	CanReplace bool
	// Scan controls folder enumeration.
	Scan scanner.Options
	// Progress, when set, is updated as tasks finish.
	Progress *Progress
	// OnItem, when set, is called after each task. It may run concurrently.
	OnItem func(ItemResult)
}

// Coordinator fans batches out to concurrent tasks and joins them. Every
// task runs to resolution: a failure is recorded, never aborts the batch,
// and the optional flush runs after the last task.
type Coordinator struct {
	indexer Indexer
	config  Config
}

// NewCoordinator creates a coordinator over indexer.
func NewCoordinator(indexer Indexer, cfg Config) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Coordinator{indexer: indexer, config: cfg}
}

// Progress returns the progress tracker, or nil.
func (c *Coordinator) Progress() *Progress {
	return c.config.Progress
}

func (c *Coordinator) record(uri string, ok bool) ItemResult {
	if p := c.config.Progress; p != nil {
		p.Done(uri, ok)
	}
	r := ItemResult{URI: uri, OK: true}
	if !ok {
		r = ItemResult{URI: uri, Err: skerrors.New(skerrors.ErrCodeIndexFailed, "document not added", nil).WithDetail("uri", uri)}
	}
	if c.config.OnItem != nil {
		c.config.OnItem(r)
	}
	return r
}

// AddBatch adds every item concurrently and returns once all tasks are
// done. With flushWhenComplete, one flush follows the last task.
func (c *Coordinator) AddBatch(ctx context.Context, items []Item, flushWhenComplete bool) BatchResult {
	start := time.Now()
	if p := c.config.Progress; p != nil {
		p.SetStage(StageIndexing, 0)
		p.AddTotal(len(items))
	}

	results := make([]ItemResult, len(items))
	var g errgroup.Group
	g.SetLimit(c.config.Workers)
	for i, item := range items {
		g.Go(func() error {
			ok := c.indexer.AddText(ctx, item.URI, item.Text, c.config.CanReplace)
			results[i] = c.record(item.URI, ok)
			return nil
		})
	}
	_ = g.Wait()

	return c.finish(ctx, results, flushWhenComplete, start)
}

// AddBatchAsync runs AddBatch in the background. The result is delivered
// once, then the channel is closed.
func (c *Coordinator) AddBatchAsync(ctx context.Context, items []Item, flushWhenComplete bool) <-chan BatchResult {
	done := make(chan BatchResult, 1)
	go func() {
		defer close(done)
		done <- c.AddBatch(ctx, items, flushWhenComplete)
	}()
	return done
}

// AddFiles adds files concurrently. The result order matches paths.
func (c *Coordinator) AddFiles(ctx context.Context, paths []string, flushWhenComplete bool) []bool {
	start := time.Now()
	if p := c.config.Progress; p != nil {
		p.SetStage(StageIndexing, 0)
		p.AddTotal(len(paths))
	}

	results := make([]ItemResult, len(paths))
	var g errgroup.Group
	g.SetLimit(c.config.Workers)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = c.addFile(ctx, path, "")
			return nil
		})
	}
	_ = g.Wait()

	batch := c.finish(ctx, results, flushWhenComplete, start)
	oks := make([]bool, len(batch.Items))
	for i, r := range batch.Items {
		oks[i] = r.OK
	}
	return oks
}

func (c *Coordinator) addFile(ctx context.Context, path, mime string) ItemResult {
	uri := path
	if abs, err := filepath.Abs(path); err == nil {
		uri = content.FileURI(abs)
	}
	return c.record(uri, c.indexer.AddFile(ctx, path, mime, c.config.CanReplace))
}

// AddFolder adds every visible file below root. Each directory level is
// listed on its own task, which starts file tasks for its files and
// recurses into its subdirectories concurrently. File tasks share the
// worker bound; listing tasks do not count against it.
func (c *Coordinator) AddFolder(ctx context.Context, root string, flushWhenComplete bool) FolderResult {
	start := time.Now()
	absRoot, err := filepath.Abs(root)
	if err != nil || !scanner.IsDir(absRoot) {
		slog.Warn("add_folder_skipped", slog.String("path", root), slog.String("reason", "not a directory"))
		return FolderResult{}
	}
	if p := c.config.Progress; p != nil {
		p.SetStage(StageIndexing, 0)
	}

	var (
		s       = scanner.New(c.config.Scan)
		sem     = make(chan struct{}, c.config.Workers)
		mu      sync.Mutex
		results []ItemResult
		g       errgroup.Group
	)

	var level func(dir string)
	level = func(dir string) {
		listing, err := s.ListDir(absRoot, dir)
		if err != nil {
			slog.Warn("list_directory_failed", slog.String("path", dir), slog.String("error", err.Error()))
			return
		}
		if p := c.config.Progress; p != nil {
			p.AddTotal(len(listing.Files))
		}
		for _, f := range listing.Files {
			g.Go(func() error {
				sem <- struct{}{}
				r := c.addFile(ctx, f.AbsPath, f.MIME)
				<-sem

				mu.Lock()
				results = append(results, r)
				mu.Unlock()
				return nil
			})
		}
		for _, sub := range listing.Dirs {
			g.Go(func() error {
				level(sub)
				return nil
			})
		}
	}

	g.Go(func() error {
		level(absRoot)
		return nil
	})
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].URI < results[j].URI })
	out := FolderResult{BatchResult: c.finish(ctx, results, flushWhenComplete, start)}
	for _, r := range out.Items {
		if r.OK {
			out.Added = append(out.Added, r.URI)
		}
	}
	return out
}

func (c *Coordinator) finish(ctx context.Context, items []ItemResult, flush bool, start time.Time) BatchResult {
	res := BatchResult{Items: items}
	for _, r := range items {
		if r.OK {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	if flush {
		if p := c.config.Progress; p != nil {
			p.SetStage(StageFlushing, 0)
		}
		res.Flushed = c.indexer.Flush(ctx)
	}
	res.Duration = time.Since(start)

	slog.Debug("batch_complete",
		slog.Int("items", len(items)),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
		slog.Bool("flushed", res.Flushed),
		slog.Duration("duration", res.Duration))
	return res
}
