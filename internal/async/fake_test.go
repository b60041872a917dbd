package async

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// fakeIndexer records calls. Documents whose URI or path contains "bad" are
// rejected.
type fakeIndexer struct {
	mu       sync.Mutex
	docs     map[string]string
	files    []string
	flushes  atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	noFlush  bool
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{docs: make(map[string]string)}
}

func (f *fakeIndexer) enter() func() {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeIndexer) AddText(_ context.Context, uri, text string, canReplace bool) bool {
	defer f.enter()()
	if strings.Contains(uri, "bad") {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.docs[uri]; exists && !canReplace {
		return false
	}
	f.docs[uri] = text
	return true
}

func (f *fakeIndexer) AddFile(_ context.Context, path, _ string, _ bool) bool {
	defer f.enter()()
	if strings.Contains(path, "bad") {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, path)
	return true
}

func (f *fakeIndexer) Flush(context.Context) bool {
	f.flushes.Add(1)
	return !f.noFlush
}

func (f *fakeIndexer) DocumentCount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.docs) + len(f.files))
}
