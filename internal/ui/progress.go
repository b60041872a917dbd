package ui

import (
	"sync"
	"time"
)

// ProgressTracker holds the state a renderer draws. Safe for concurrent use.
type ProgressTracker struct {
	mu          sync.Mutex
	stage       Stage
	current     int
	total       int
	currentFile string
	stageStart  time.Time
	errors      int
	warnings    int

	// rate is files per second, exponentially smoothed.
	rate       float64
	lastSample time.Time
	lastCount  int
}

// ProgressStats is a snapshot of a tracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64 // 0.0-1.0
	ETA         time.Duration
	Rate        float64 // items per second
	CurrentFile string
	ErrorCount  int
	WarnCount   int
}

// rateSmoothing weighs a new rate sample against the running value.
const rateSmoothing = 0.3

// NewProgressTracker creates a tracker in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{stage: StageScanning, stageStart: now, lastSample: now}
}

// SetStage moves to stage and resets the per-stage counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = now
	p.rate = 0
	p.lastSample = now
	p.lastCount = 0
}

// Update records progress within the current stage.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if file != "" {
		p.currentFile = file
	}

	now := time.Now()
	if elapsed := now.Sub(p.lastSample); elapsed >= 250*time.Millisecond && current > p.lastCount {
		sample := float64(current-p.lastCount) / elapsed.Seconds()
		if p.rate == 0 {
			p.rate = sample
		} else {
			p.rate = rateSmoothing*sample + (1-rateSmoothing)*p.rate
		}
		p.lastSample = now
		p.lastCount = current
	}
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Rate:        p.rate,
		CurrentFile: p.currentFile,
		ErrorCount:  p.errors,
		WarnCount:   p.warnings,
	}
	if p.total > 0 {
		stats.Progress = min(float64(p.current)/float64(p.total), 1.0)
	}
	if p.rate > 0 && p.current < p.total {
		stats.ETA = time.Duration(float64(p.total-p.current) / p.rate * float64(time.Second))
	}
	return stats
}
