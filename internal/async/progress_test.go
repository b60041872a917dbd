package async

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress_Lifecycle(t *testing.T) {
	// Given: a new run
	p := NewProgress()
	assert.True(t, p.IsIndexing())
	assert.Equal(t, "scanning", p.Snapshot().Stage)

	// When: work is discovered and processed
	p.SetStage(StageIndexing, 4)
	p.Done("a", true)
	p.Done("b", false)

	// Then: counts and percentage follow
	snap := p.Snapshot()
	assert.Equal(t, "indexing", snap.Stage)
	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, 2, snap.Processed)
	assert.Equal(t, 1, snap.Failed)
	assert.InDelta(t, 50.0, snap.ProgressPct, 1e-9)
	assert.Equal(t, "b", snap.Current)

	// When: the run completes
	p.SetReady()

	// Then: it is no longer indexing
	snap = p.Snapshot()
	assert.False(t, p.IsIndexing())
	assert.Equal(t, "ready", snap.Status)
	assert.Equal(t, "complete", snap.Stage)
	assert.Empty(t, snap.Current)
}

func TestProgress_SetStage_ZeroKeepsTotal(t *testing.T) {
	p := NewProgress()
	p.AddTotal(3)
	p.SetStage(StageFlushing, 0)

	assert.Equal(t, 3, p.Snapshot().Total)
}

func TestProgress_SetError(t *testing.T) {
	p := NewProgress()
	p.SetError("disk full")

	snap := p.Snapshot()
	assert.Equal(t, "error", snap.Status)
	assert.Equal(t, "disk full", snap.ErrorMessage)
	assert.False(t, p.IsIndexing())
}

func TestProgress_ConcurrentDone(t *testing.T) {
	p := NewProgress()
	p.AddTotal(100)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Done("x", true)
			_ = p.Snapshot()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, p.Snapshot().Processed)
	assert.InDelta(t, 100.0, p.Snapshot().ProgressPct, 1e-9)
}
