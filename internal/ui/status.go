package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes an index for `searchkit status`.
type StatusInfo struct {
	Path           string    `json:"path"`
	Backend        string    `json:"backend"`
	Type           string    `json:"type"`
	Proximity      bool      `json:"proximity"`
	Documents      uint64    `json:"documents"`
	EmptyDocuments int       `json:"empty_documents"`
	SizeBytes      int64     `json:"size_bytes"`
	CreatedAt      time.Time `json:"created_at"`
	LastModified   time.Time `json:"last_modified"`
	// Indexing is "ready", "indexing" or "error" while a server runs.
	Indexing string `json:"indexing,omitempty"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a human-readable summary.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index: "+info.Path))

	_, _ = fmt.Fprintf(r.out, "  Engine:     %s (%s)\n", info.Backend, info.Type)
	_, _ = fmt.Fprintf(r.out, "  Proximity:  %t\n", info.Proximity)
	_, _ = fmt.Fprintf(r.out, "  Documents:  %d", info.Documents)
	if info.EmptyDocuments > 0 {
		_, _ = fmt.Fprintf(r.out, " (%s)", r.styles.Warning.Render(fmt.Sprintf("%d without terms", info.EmptyDocuments)))
	}
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintf(r.out, "  Size:       %s\n", FormatBytes(info.SizeBytes))
	if !info.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Created:    %s\n", formatTime(info.CreatedAt))
	}
	if !info.LastModified.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Modified:   %s\n", formatTime(info.LastModified))
	}
	if info.Indexing != "" {
		_, _ = fmt.Fprintf(r.out, "  Indexing:   %s\n", r.renderStatus(info.Indexing))
	}
	return nil
}

// RenderJSON writes the status as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "indexing":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a byte count with binary units.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	value, suffix := float64(bytes)/unit, "KB"
	for _, next := range []string{"MB", "GB", "TB"} {
		if value < unit {
			break
		}
		value /= unit
		suffix = next
	}
	return fmt.Sprintf("%.1f %s", value, suffix)
}
