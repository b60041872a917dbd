package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the tree on an interval.
type PollingWatcher struct {
	interval time.Duration
	ignore   func(relPath string, isDir bool) bool

	mu       sync.Mutex
	state    map[string]entryState
	rootPath string
	stopped  bool
	stopCh   chan struct{}
	events   chan FileEvent
	errors   chan error
}

type entryState struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher. ignore may be nil.
func NewPollingWatcher(interval time.Duration, ignore func(relPath string, isDir bool) bool) *PollingWatcher {
	if ignore == nil {
		ignore = func(string, bool) bool { return false }
	}
	return &PollingWatcher{
		interval: interval,
		ignore:   ignore,
		state:    make(map[string]entryState),
		stopCh:   make(chan struct{}),
		events:   make(chan FileEvent, 256),
		errors:   make(chan error, 10),
	}
}

// Start records a baseline of root and then polls until Stop or ctx ends.
func (p *PollingWatcher) Start(ctx context.Context, root string) error {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	baseline, err := p.snapshot(absPath)
	if err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.mu.Lock()
	p.rootPath = absPath
	p.state = baseline
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.poll(); err != nil {
				p.mu.Lock()
				if !p.stopped {
					select {
					case p.errors <- err:
					default:
					}
				}
				p.mu.Unlock()
			}
		}
	}
}

// snapshot walks root and records every visible entry.
func (p *PollingWatcher) snapshot(root string) (map[string]entryState, error) {
	state := make(map[string]entryState)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // unreadable entries are picked up on a later poll
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil || relPath == "." {
			return nil
		}
		if p.ignore(relPath, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[relPath] = entryState{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return state, err
}

// poll compares a fresh snapshot with the previous one.
func (p *PollingWatcher) poll() error {
	p.mu.Lock()
	root := p.rootPath
	p.mu.Unlock()

	current, err := p.snapshot(root)
	if err != nil {
		return fmt.Errorf("walk directory for changes: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for path, cur := range current {
		prev, existed := p.state[path]
		switch {
		case !existed:
			p.emit(FileEvent{Path: path, Operation: OpCreate, IsDir: cur.isDir, Timestamp: now})
		case !cur.isDir && (prev.modTime != cur.modTime || prev.size != cur.size):
			p.emit(FileEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
	for path, prev := range p.state {
		if _, ok := current[path]; !ok {
			p.emit(FileEvent{Path: path, Operation: OpDelete, IsDir: prev.isDir, Timestamp: now})
		}
	}
	p.state = current
	return nil
}

// emit must be called with mu held.
func (p *PollingWatcher) emit(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
		slog.Warn("polling_buffer_full",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
	}
}

// Stop halts polling and closes both channels. Safe to call more than once.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of single events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns non-fatal scan errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}
