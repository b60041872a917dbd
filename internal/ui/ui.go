// Package ui provides terminal UI components for progress and status display.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a phase of an indexing run.
type Stage int

const (
	// StageScanning enumerates the files to index.
	StageScanning Stage = iota
	// StageIndexing extracts text and adds documents.
	StageIndexing
	// StageFlushing commits the added documents.
	StageFlushing
	// StageComplete indicates indexing is complete.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageIndexing:
		return "Indexing"
	case StageFlushing:
		return "Flushing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage label for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageIndexing:
		return "INDEX"
	case StageFlushing:
		return "FLUSH"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent represents a failure during processing.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings tracks duration for each indexing stage.
type StageTimings struct {
	Scan  time.Duration
	Index time.Duration
	Flush time.Duration
}

// IndexInfo describes the index being written.
type IndexInfo struct {
	Path    string // empty for in-memory indexes
	Backend string // "bleve" or "sqlite"
	Type    string
}

// CompletionStats contains final indexing statistics.
type CompletionStats struct {
	Files     int    // files submitted
	Added     int    // documents added
	Documents uint64 // documents in the index afterwards
	Duration  time.Duration
	Errors    int
	Warnings  int
	Stages    StageTimings
	Index     IndexInfo
}

// Renderer displays an indexing run. Calls may come from several goroutines.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures a Renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Title      string // TUI header, usually the folder being indexed
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

func WithForcePlain(force bool) ConfigOption { return func(c *Config) { c.ForcePlain = force } }

func WithNoColor(noColor bool) ConfigOption { return func(c *Config) { c.NoColor = noColor } }

func WithTitle(title string) ConfigOption { return func(c *Config) { c.Title = title } }

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer picks the bubbletea renderer for interactive terminals and
// the plain one for pipes, CI and --plain.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	if tui, err := NewTUIRenderer(cfg); err == nil {
		return tui
	}
	return NewPlainRenderer(cfg)
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && f != nil && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// DetectNoColor reports whether NO_COLOR is set, whatever its value.
func DetectNoColor() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}

var ciVariables = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "BUILDKITE", "JENKINS_URL", "TRAVIS"}

// DetectCI reports whether a CI system's environment variable is set.
func DetectCI() bool {
	for _, v := range ciVariables {
		if _, set := os.LookupEnv(v); set {
			return true
		}
	}
	return false
}
