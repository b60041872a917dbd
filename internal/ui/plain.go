package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// plainSteps is how many progress lines a stage with a known total prints
// at most, besides its first and last.
const plainSteps = 10

// PlainRenderer writes line-oriented progress for CI logs and pipes. Long
// stages are thinned out to one line per tenth; failures always print.
type PlainRenderer struct {
	mu    sync.Mutex
	out   io.Writer
	stage Stage
	step  int // last printed tenth of the current stage, -1 before any
}

func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, stage: -1, step: -1}
}

func (r *PlainRenderer) Start(context.Context) error { return nil }

func (r *PlainRenderer) Stop() error { return nil }

// UpdateProgress prints "[STAGE] current/total - file" or "[STAGE] message".
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.stage {
		r.stage, r.step = event.Stage, -1
	}

	detail := event.Message
	if detail == "" {
		detail = event.CurrentFile
	}

	if event.Total <= 0 {
		if detail != "" {
			r.printf("[%s] %s\n", event.Stage.Icon(), detail)
		}
		return
	}

	step := event.Current * plainSteps / event.Total
	if step == r.step && event.Current != event.Total {
		return
	}
	r.step = step
	r.printf("[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, detail)
}

// AddError prints "WARN: file: err" or "ERROR: err".
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	level := "ERROR"
	if event.IsWarn {
		level = "WARN"
	}
	if event.File == "" {
		r.printf("%s: %v\n", level, event.Err)
		return
	}
	r.printf("%s: %s: %v\n", level, event.File, event.Err)
}

// Complete prints the totals, the per-stage timings when known and the index.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printf("Complete: %d of %d files added in %s", stats.Added, stats.Files, stats.Duration.Round(100*time.Millisecond))
	if stats.Errors > 0 || stats.Warnings > 0 {
		r.printf(" (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	r.printf("\n")

	if st := stats.Stages; st.Scan > 0 || st.Index > 0 {
		r.printf("\nStage Breakdown:\n  Scan:  %s\n", st.Scan.Round(time.Millisecond))
		if st.Index > 0 && stats.Files > 0 {
			r.printf("  Index: %s (%.1f files/sec)\n", st.Index.Round(time.Millisecond), float64(stats.Files)/st.Index.Seconds())
		}
		r.printf("  Flush: %s\n", st.Flush.Round(time.Millisecond))
	}

	if info := stats.Index; info.Backend != "" {
		where := info.Path
		if where == "" {
			where = "memory"
		}
		r.printf("\nIndex: %s (%s, %s, %d documents)\n", where, info.Backend, info.Type, stats.Documents)
	}
}

func (r *PlainRenderer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}
