// Package annotate finds the lines of a document that contain a query as a
// whole word and renders highlighted excerpts around them.
package annotate

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Aman-CERP/searchkit/internal/result"
)

// Mode selects how occurrences on one line are judged.
type Mode int

const (
	// ModeAllOccurrences reports every whole-word occurrence on a line.
	ModeAllOccurrences Mode = iota
	// ModeFirstOccurrence lets the first eligible occurrence decide for the
	// whole line: if it is a whole word, every occurrence on the line is
	// reported, otherwise none.
	ModeFirstOccurrence
)

func (m Mode) String() string {
	if m == ModeFirstOccurrence {
		return "first"
	}
	return "all"
}

// ParseMode parses "all" or "first". Empty means all.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ModeAllOccurrences, nil
	case "first":
		return ModeFirstOccurrence, nil
	}
	return ModeAllOccurrences, fmt.Errorf("unknown annotate mode %q (use all or first)", s)
}

// NormalizeLine drops one leading and one trailing space and lowercases.
func NormalizeLine(line string) string {
	line = strings.TrimPrefix(line, " ")
	line = strings.TrimSuffix(line, " ")
	return strings.ToLower(line)
}

// AnnotateText returns the whole-word occurrences of query in text, by
// line. Line numbers are 1-based; ranges are rune offsets into the
// normalized line.
func AnnotateText(uri, text, query string, mode Mode) []result.LineMatch {
	q := []rune(strings.ToLower(query))
	if len(q) == 0 {
		return nil
	}
	needle := string(q)

	var matches []result.LineMatch
	for i, raw := range strings.Split(text, "\n") {
		line := NormalizeLine(strings.TrimSuffix(raw, "\r"))
		if !strings.Contains(line, needle) {
			continue
		}
		runes := []rune(line)
		for _, start := range lineMatches(runes, q, mode) {
			matches = append(matches, result.LineMatch{
				URI:   uri,
				Line:  i + 1,
				Text:  line,
				Start: start,
				End:   start + len(q),
			})
		}
	}
	return matches
}

func lineMatches(line, q []rune, mode Mode) []int {
	occurrences := occurrencesOf(line, q)
	if mode == ModeFirstOccurrence {
		for _, start := range occurrences {
			w := window(line, start, len(q))
			if len(w) < 2 {
				continue
			}
			if wholeWord(w, q) {
				return occurrences
			}
			return nil
		}
		return nil
	}

	var accepted []int
	for _, start := range occurrences {
		w := window(line, start, len(q))
		if len(w) >= 2 && wholeWord(w, q) {
			accepted = append(accepted, start)
		}
	}
	return accepted
}

// occurrencesOf returns the rune offsets of non-overlapping occurrences.
func occurrencesOf(line, q []rune) []int {
	var starts []int
	for i := 0; i+len(q) <= len(line); {
		if runesEqual(line[i:i+len(q)], q) {
			starts = append(starts, i)
			i += len(q)
			continue
		}
		i++
	}
	return starts
}

// window extends an occurrence by up to one rune on each side.
func window(line []rune, start, n int) []rune {
	from := max(start-1, 0)
	to := min(start+n+1, len(line))
	return line[from:to]
}

func wholeWord(w, q []rune) bool {
	left := hasPrefix(w, q) || !unicode.IsLetter(w[0]) || !unicode.IsLetter(w[1])
	right := hasSuffix(w, q) || !unicode.IsLetter(w[len(w)-1]) || !unicode.IsLetter(w[len(w)-2])
	return left && right
}

func hasPrefix(s, prefix []rune) bool {
	return len(s) >= len(prefix) && runesEqual(s[:len(prefix)], prefix)
}

func hasSuffix(s, suffix []rune) bool {
	return len(s) >= len(suffix) && runesEqual(s[len(s)-len(suffix):], suffix)
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
