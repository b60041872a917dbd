// Package async runs batch ingestion concurrently: the Coordinator fans
// documents out to a bounded group of workers and joins them, reporting
// progress that renderers and the MCP server can poll.
package async

import (
	"sync"
	"time"
)

// Status is the overall state of an ingestion run.
type Status string

const (
	StatusIndexing Status = "indexing"
	StatusReady    Status = "ready"
	StatusError    Status = "error"
)

// Stage is the current phase of an ingestion run.
type Stage string

const (
	// StageScanning enumerates files.
	StageScanning Stage = "scanning"
	// StageIndexing extracts and adds documents.
	StageIndexing Stage = "indexing"
	// StageFlushing commits pending documents.
	StageFlushing Stage = "flushing"
	// StageComplete is reached after the final flush.
	StageComplete Stage = "complete"
)

// ProgressSnapshot is an immutable copy of Progress.
type ProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	Total          int     `json:"total"`
	Processed      int     `json:"processed"`
	Failed         int     `json:"failed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Current        string  `json:"current,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Progress tracks one ingestion run. Safe for concurrent use.
type Progress struct {
	mu sync.RWMutex

	status    Status
	stage     Stage
	total     int
	processed int
	failed    int
	current   string
	started   time.Time
	finished  time.Time
	errMsg    string
}

// NewProgress returns progress in the scanning stage.
func NewProgress() *Progress {
	return &Progress{
		status:  StatusIndexing,
		stage:   StageScanning,
		started: time.Now(),
	}
}

// SetStage moves to stage. A positive total replaces the item total.
func (p *Progress) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	if total > 0 {
		p.total = total
	}
}

// AddTotal grows the item total, for runs that discover work as they go.
func (p *Progress) AddTotal(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total += n
}

// Done records one finished item.
func (p *Progress) Done(item string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed++
	if !ok {
		p.failed++
	}
	p.current = item
}

// SetError marks the run as failed.
func (p *Progress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errMsg = message
	p.finished = time.Now()
}

// SetReady marks the run as complete.
func (p *Progress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
	p.stage = StageComplete
	p.current = ""
	p.finished = time.Now()
}

// IsIndexing reports whether the run is still in progress.
func (p *Progress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status == StatusIndexing
}

// Snapshot returns a consistent copy of the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.total > 0 {
		pct = float64(p.processed) / float64(p.total) * 100.0
	}
	end := p.finished
	if end.IsZero() {
		end = time.Now()
	}

	return ProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		Total:          p.total,
		Processed:      p.processed,
		Failed:         p.failed,
		ProgressPct:    pct,
		ElapsedSeconds: end.Sub(p.started).Seconds(),
		Current:        p.current,
		ErrorMessage:   p.errMsg,
	}
}
