package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress(t *testing.T) {
	// Given: a plain renderer
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))
	require.NoError(t, r.Start(context.Background()))

	// When: progress is reported with and without a total
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 3, Total: 10, CurrentFile: "docs/a.txt"})
	r.UpdateProgress(ProgressEvent{Stage: StageFlushing, Message: "committing"})

	// Then: each update is one line with the stage label
	out := buf.String()
	assert.Contains(t, out, "[INDEX] 3/10 - docs/a.txt")
	assert.Contains(t, out, "[FLUSH] committing")
}

func TestPlainRenderer_AddError(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	r.AddError(ErrorEvent{File: "a.pdf", Err: errors.New("no text layer"), IsWarn: true})
	r.AddError(ErrorEvent{Err: errors.New("flush failed")})

	assert.Contains(t, buf.String(), "WARN: a.pdf: no text layer")
	assert.Contains(t, buf.String(), "ERROR: flush failed")
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a plain renderer
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	// When: completion is reported
	r.Complete(CompletionStats{
		Files:     12,
		Added:     10,
		Documents: 25,
		Duration:  1500 * time.Millisecond,
		Errors:    2,
		Stages:    StageTimings{Scan: 10 * time.Millisecond, Index: time.Second, Flush: 200 * time.Millisecond},
		Index:     IndexInfo{Path: "/tmp/idx", Backend: "bleve", Type: "inverted"},
	})

	// Then: the summary, stages and index are printed
	out := buf.String()
	assert.Contains(t, out, "Complete: 10 of 12 files added in 1.5s")
	assert.Contains(t, out, "(2 errors, 0 warnings)")
	assert.Contains(t, out, "Stage Breakdown:")
	assert.Contains(t, out, "12.0 files/sec")
	assert.Contains(t, out, "Index: /tmp/idx (bleve, inverted, 25 documents)")
	require.NoError(t, r.Stop())
}

func TestPlainRenderer_Complete_MemoryIndex(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	r.Complete(CompletionStats{Files: 1, Added: 1, Index: IndexInfo{Backend: "sqlite", Type: "vector"}})

	assert.Contains(t, buf.String(), "Index: memory (sqlite, vector, 0 documents)")
	assert.NotContains(t, buf.String(), "Stage Breakdown")
}

func TestPlainRenderer_ThinsLongStages(t *testing.T) {
	// Given: a plain renderer
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	// When: every file of a 1000 file stage is reported
	for i := 1; i <= 1000; i++ {
		r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: i, Total: 1000, CurrentFile: "f.txt"})
	}

	// Then: about one line per tenth is printed, including the last
	out := buf.String()
	lines := strings.Count(out, "[INDEX]")
	assert.LessOrEqual(t, lines, 11)
	assert.GreaterOrEqual(t, lines, 10)
	assert.Contains(t, out, "[INDEX] 1000/1000 - f.txt")
}
