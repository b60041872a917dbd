package mcp

import (
	"fmt"
	"strings"
)

// FormatSearchResults formats one search chunk as markdown.
func FormatSearchResults(query string, out SearchOutput) string {
	var sb strings.Builder

	if p := out.Indexing; p != nil {
		fmt.Fprintf(&sb, "> Indexing in progress: %.1f%% (%d/%d files). Results may be incomplete.\n\n",
			p.ProgressPct, p.FilesProcessed, p.FilesTotal)
	}

	if len(out.Results) == 0 {
		if query == "" {
			sb.WriteString("No further results.")
		} else {
			fmt.Fprintf(&sb, "No results found for \"%s\"", query)
		}
		if out.TimedOut {
			sb.WriteString(" The search ran out of time; continue it with the session below.")
		}
		writeContinuation(&sb, out)
		return sb.String()
	}

	if query != "" {
		fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	} else {
		sb.WriteString("## More Search Results\n\n")
	}
	fmt.Fprintf(&sb, "Found %d result", len(out.Results))
	if len(out.Results) != 1 {
		sb.WriteString("s")
	}
	if out.TimedOut {
		sb.WriteString(" before the time budget ran out")
	}
	sb.WriteString("\n\n")

	for i, r := range out.Results {
		fmt.Fprintf(&sb, "### %d. %s (score: %.2f)\n", i+1, r.URI, r.Score)
		writeLines(&sb, r.Lines)
		sb.WriteString("\n")
	}

	writeContinuation(&sb, out)
	return sb.String()
}

// FormatAnnotation formats the lines of one document as markdown.
func FormatAnnotation(keyword string, out AnnotateOutput) string {
	if len(out.Lines) == 0 {
		return fmt.Sprintf("\"%s\" does not occur as a whole word in %s", keyword, out.URI)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## \"%s\" in %s\n\n", keyword, out.URI)
	fmt.Fprintf(&sb, "Found %d line", len(out.Lines))
	if len(out.Lines) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")
	writeLines(&sb, out.Lines)
	return sb.String()
}

// FormatAddText reports the outcome of add_text.
func FormatAddText(out AddTextOutput) string {
	switch {
	case !out.Added:
		return fmt.Sprintf("Document %s was not added. It may already exist; set replace to overwrite it.", out.URI)
	case !out.Flushed:
		return fmt.Sprintf("Document %s was added but could not be committed yet.", out.URI)
	default:
		return fmt.Sprintf("Document %s added and searchable.", out.URI)
	}
}

func writeLines(sb *strings.Builder, lines []LineOutput) {
	for _, l := range lines {
		fmt.Fprintf(sb, "- line %d: `%s`\n", l.Line, strings.ReplaceAll(l.Excerpt, "`", "'"))
	}
}

func writeContinuation(sb *strings.Builder, out SearchOutput) {
	if out.MoreAvailable && out.Session != "" {
		fmt.Fprintf(sb, "\nMore results available. Continue with session `%s`.\n", out.Session)
	}
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		limit = defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
