// Package output provides consistent CLI output: status lines, search
// results, annotated lines and JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/searchkit/internal/annotate"
	"github.com/Aman-CERP/searchkit/internal/engine"
	"github.com/Aman-CERP/searchkit/internal/result"
	"github.com/Aman-CERP/searchkit/internal/ui"
)

// Format selects how command results are printed.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat parses "text" or "json". Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown format %q (use text or json)", s)
}

const (
	iconSuccess = "✅"
	iconWarning = "⚠️ "
	iconError   = "❌"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	styles   ui.Styles
	excerpts *annotate.Renderer
}

// New creates a Writer without colors.
func New(out io.Writer) *Writer {
	return NewStyled(out, ui.NoColorStyles(), annotate.DefaultContextChars)
}

// NewStyled creates a Writer using styles. contextChars bounds the context
// printed around matches.
func NewStyled(out io.Writer, styles ui.Styles, contextChars int) *Writer {
	return &Writer{
		out:      out,
		styles:   styles,
		excerpts: annotate.NewRenderer(contextChars, styles.Match, styles.Dim),
	}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render(iconSuccess), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render(iconWarning), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render(iconError), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Line prints s as is.
func (w *Writer) Line(s string) {
	_, _ = fmt.Fprintln(w.out, s)
}

// Result prints one numbered search result: "  3. uri  (score: 0.87)".
func (w *Writer) Result(n int, r result.SearchResult) {
	_, _ = fmt.Fprintf(w.out, "%3d. %s  %s\n", n, r.URI, w.styles.Dim.Render(fmt.Sprintf("(score: %.2f)", r.Score)))
}

// Results prints results numbered from first.
func (w *Writer) Results(first int, results []result.SearchResult) {
	for i, r := range results {
		w.Result(first+i, r)
	}
}

// Annotated prints results numbered from first, each followed by its
// matching lines.
func (w *Writer) Annotated(first int, results []result.Annotated) {
	for i, r := range results {
		w.Result(first+i, r.SearchResult)
		w.Lines(r.Lines)
	}
}

// Lines prints line matches with their excerpts.
func (w *Writer) Lines(lines []result.LineMatch) {
	for _, m := range lines {
		label := w.styles.Label.Render(fmt.Sprintf("%6d:", m.Line))
		_, _ = fmt.Fprintf(w.out, "     %s %s\n", label, w.excerpts.Render(m))
	}
}

// PageFooter reports a timed-out chunk or remaining results.
func (w *Writer) PageFooter(page result.Page) {
	if page.TimedOut {
		w.Warning("Chunk timed out; results may be partial")
	}
	if page.MoreAvailable {
		w.Status("", w.styles.Dim.Render("More results available"))
	}
}

// Terms prints term frequencies as an aligned two-column list.
func (w *Writer) Terms(terms []engine.TermFrequency) {
	width := 1
	for _, t := range terms {
		width = max(width, len(fmt.Sprint(t.Count)))
	}
	for _, t := range terms {
		_, _ = fmt.Fprintf(w.out, "%*d  %s\n", width, t.Count, t.Term)
	}
}

// List prints one item per line.
func (w *Writer) List(items []string) {
	for _, item := range items {
		_, _ = fmt.Fprintln(w.out, item)
	}
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
