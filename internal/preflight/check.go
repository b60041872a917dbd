package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/searchkit/internal/async"
	"github.com/Aman-CERP/searchkit/internal/config"
	"github.com/Aman-CERP/searchkit/internal/engine"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

var statusNames = [...]string{StatusPass: "PASS", StatusWarn: "WARN", StatusFail: "FAIL"}

func (s CheckStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "UNKNOWN"
	}
	return statusNames[s]
}

// CheckResult holds the result of a single check. A failed Required check
// blocks indexing.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports a failed required check.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

func pass(name, msg string, required bool) CheckResult {
	return CheckResult{Name: name, Status: StatusPass, Message: msg, Required: required}
}

// Checker validates that an index can be written.
type Checker struct {
	cfg     *config.Config
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithConfig validates cfg and compares it with an existing index.
func WithConfig(cfg *config.Config) Option {
	return func(c *Checker) { c.cfg = cfg }
}

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithOutput sets where PrintResults writes. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

func New(opts ...Option) *Checker {
	c := &Checker{output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check for the index at indexPath, which need not exist
// yet. Nothing is created on disk.
func (c *Checker) RunAll(_ context.Context, indexPath string) []CheckResult {
	dir := existingAncestor(indexPath)

	results := []CheckResult{
		c.CheckDiskSpace(dir),
		c.CheckWritePermissions(dir),
		c.CheckFileDescriptors(),
	}
	if c.cfg != nil {
		results = append(results, c.CheckConfig(c.cfg))
	}
	return append(results,
		c.CheckIndex(indexPath),
		c.CheckIncompleteIngestion(filepath.Dir(indexPath)),
	)
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus is "failed", "ready_with_warnings" or "ready".
func (c *Checker) SummaryStatus(results []CheckResult) string {
	status := "ready"
	for _, r := range results {
		switch {
		case r.IsCritical():
			return "failed"
		case r.Status != StatusPass:
			status = "ready_with_warnings"
		}
	}
	return status
}

// PrintResults writes one line per check followed by the summary and the
// problems found.
func (c *Checker) PrintResults(results []CheckResult) {
	w := c.output
	_, _ = fmt.Fprint(w, "SearchKit System Check\n======================\n\n")

	var problems []string
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(w, "      %s\n", r.Details)
		}
		if r.Status == StatusPass {
			continue
		}
		kind := "warning"
		if r.IsCritical() {
			kind = "error"
		}
		problems = append(problems, fmt.Sprintf("  - %s %s: %s", kind, r.Name, r.Message))
	}

	_, _ = fmt.Fprintf(w, "\nStatus: %s\n", strings.ToUpper(c.SummaryStatus(results)))
	if len(problems) > 0 {
		_, _ = fmt.Fprintf(w, "\n%d problem(s):\n%s\n", len(problems), strings.Join(problems, "\n"))
	}
}

// CheckWritePermissions creates and removes a temporary file in dir.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	f, err := os.CreateTemp(dir, ".searchkit-preflight-*")
	if err != nil {
		return CheckResult{
			Name:     "write_permissions",
			Status:   StatusFail,
			Message:  fmt.Sprintf("cannot write to %s: %v", dir, err),
			Required: true,
		}
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return pass("write_permissions", "OK", true)
}

// CheckConfig validates the effective configuration.
func (c *Checker) CheckConfig(cfg *config.Config) CheckResult {
	if err := cfg.Validate(); err != nil {
		return CheckResult{
			Name:     "config",
			Status:   StatusFail,
			Message:  err.Error(),
			Details:  "Run 'searchkit config show' to inspect the merged configuration",
			Required: true,
		}
	}
	return pass("config", fmt.Sprintf("%s engine, %s index", cfg.Index.Backend, cfg.Index.Type), true)
}

// CheckIndex reads the metadata of an existing index. Properties are fixed
// at creation, so configured ones that differ are reported but ignored.
func (c *Checker) CheckIndex(indexPath string) CheckResult {
	if !engine.Exists(indexPath) {
		return pass("index", "not created yet", false)
	}

	props, _, err := engine.Stat(indexPath)
	if err != nil {
		return CheckResult{
			Name:     "index",
			Status:   StatusFail,
			Message:  "unreadable index metadata: " + err.Error(),
			Details:  "Remove " + indexPath + " and index the folder again",
			Required: true,
		}
	}

	result := pass("index", fmt.Sprintf("%s engine, %s index", props.Backend, props.Type), false)
	if c.cfg == nil {
		return result
	}
	want := c.cfg.Properties()
	if (want.Backend != "" && want.Backend != props.Backend) || want.Type != props.Type {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("index is %s/%s but config asks for %s/%s", props.Backend, props.Type, want.Backend, want.Type)
		result.Details = "Existing indexes keep their properties; remove the index to rebuild it with the new ones"
	}
	return result
}

// CheckIncompleteIngestion warns when a background ingestion into dataDir
// never finished. The index is usable but may be missing documents.
func (c *Checker) CheckIncompleteIngestion(dataDir string) CheckResult {
	if async.HasIncompleteLock(dataDir) {
		return CheckResult{
			Name:    "ingestion",
			Status:  StatusWarn,
			Message: "a previous ingestion was interrupted",
			Details: "Run 'searchkit index --replace' to bring the index up to date",
		}
	}
	return pass("ingestion", "OK", false)
}

// existingAncestor returns path or its closest existing parent directory.
func existingAncestor(path string) string {
	dir, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
