package annotate

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/searchkit/internal/result"
)

// DefaultContextChars is how many characters of context an excerpt keeps
// on each side of a match.
const DefaultContextChars = 60

// Excerpt is a match with its clamped context.
type Excerpt struct {
	Before string
	Match  string
	After  string
	// Clipped reports context cut off on either side.
	ClippedLeft  bool
	ClippedRight bool
}

// Renderer builds highlighted excerpts of line matches.
type Renderer struct {
	contextChars int
	match        lipgloss.Style
	context      lipgloss.Style
}

// NewRenderer creates a renderer. match styles the matched text and
// context styles the text around it.
func NewRenderer(contextChars int, match, context lipgloss.Style) *Renderer {
	if contextChars <= 0 {
		contextChars = DefaultContextChars
	}
	return &Renderer{contextChars: contextChars, match: match, context: context}
}

// Excerpt cuts the context around m.
func (r *Renderer) Excerpt(m result.LineMatch) Excerpt {
	runes := []rune(m.Text)
	start := min(max(m.Start, 0), len(runes))
	end := min(max(m.End, start), len(runes))
	from := max(start-r.contextChars, 0)
	to := min(end+r.contextChars, len(runes))
	return Excerpt{
		Before:       string(runes[from:start]),
		Match:        string(runes[start:end]),
		After:        string(runes[end:to]),
		ClippedLeft:  from > 0,
		ClippedRight: to < len(runes),
	}
}

// Render returns the styled excerpt of m on one line.
func (r *Renderer) Render(m result.LineMatch) string {
	e := r.Excerpt(m)
	var sb strings.Builder
	if e.ClippedLeft {
		sb.WriteString(r.context.Render("…"))
	}
	sb.WriteString(r.context.Render(e.Before))
	sb.WriteString(r.match.Render(e.Match))
	sb.WriteString(r.context.Render(e.After))
	if e.ClippedRight {
		sb.WriteString(r.context.Render("…"))
	}
	return sb.String()
}
