package engine

import (
	"strings"
	"unicode"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
)

type clauseKind int

const (
	clauseTerm clauseKind = iota
	clausePhrase
	clauseWildcard
)

// clause is one query operand after analysis.
type clause struct {
	kind    clauseKind
	raw     string   // text as typed, for analyzers that re-run on the engine side
	terms   []string // analyzed terms (term and phrase)
	pattern string   // lowercased glob (wildcard)
}

// parsedQuery matches a document when every clause of at least one group
// matches and no excluded clause does.
type parsedQuery struct {
	groups  [][]clause
	exclude []clause
}

func (q parsedQuery) empty() bool {
	return len(q.groups) == 0 && len(q.exclude) == 0
}

// positiveTerms returns every analyzed term outside exclusions.
func (q parsedQuery) positiveTerms() []string {
	var terms []string
	for _, g := range q.groups {
		for _, c := range g {
			terms = append(terms, c.terms...)
		}
	}
	return terms
}

type lexeme struct {
	text   string
	quoted bool
}

const (
	opOr  = "|"
	opAnd = "&"
	opNot = "!"
)

// ValidateQuery reports syntax errors in s, such as an unterminated
// phrase, with code ErrCodeInvalidQuery.
func ValidateQuery(s string) error {
	_, err := lexQuery(s)
	return err
}

// lexQuery splits a query into words, quoted phrases and operators.
func lexQuery(s string) ([]lexeme, error) {
	var (
		out  []lexeme
		word strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			out = append(out, lexeme{text: word.String()})
			word.Reset()
		}
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"':
			flush()
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			if end == len(runes) {
				return nil, skerrors.New(skerrors.ErrCodeInvalidQuery, "unterminated quote in query", nil).
					WithSuggestion("close the phrase with a matching \"")
			}
			out = append(out, lexeme{text: string(runes[i+1 : end]), quoted: true})
			i = end
		case r == '|' || r == '&':
			flush()
			out = append(out, lexeme{text: string(r)})
		case r == '!' && word.Len() == 0:
			out = append(out, lexeme{text: opNot})
		case unicode.IsSpace(r) || r == '(' || r == ')':
			flush()
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return out, nil
}

// parseQuery builds a parsedQuery. Terms are ANDed unless spaceMeansOR;
// "|" and OR separate groups, "!" and NOT exclude the next operand.
// Operands that analyze to nothing (stop words, short terms) are dropped.
func parseQuery(s string, a *Analyzer, spaceMeansOR bool) (parsedQuery, error) {
	lexemes, err := lexQuery(s)
	if err != nil {
		return parsedQuery{}, err
	}

	var (
		q       parsedQuery
		current []clause
		negate  bool
	)
	endGroup := func() {
		if len(current) > 0 {
			q.groups = append(q.groups, current)
			current = nil
		}
	}

	for _, lx := range lexemes {
		if !lx.quoted {
			switch lx.text {
			case opOr, "OR":
				endGroup()
				continue
			case opAnd, "AND":
				continue
			case opNot, "NOT":
				negate = true
				continue
			}
		}

		c, ok := buildClause(lx, a)
		if !ok {
			negate = false
			continue
		}
		switch {
		case negate:
			q.exclude = append(q.exclude, c)
			negate = false
		case spaceMeansOR:
			q.groups = append(q.groups, []clause{c})
		default:
			current = append(current, c)
		}
	}
	endGroup()
	return q, nil
}

func buildClause(lx lexeme, a *Analyzer) (clause, bool) {
	if !lx.quoted && strings.ContainsAny(lx.text, "*?") {
		pattern := wildcardPattern(lx.text)
		if strings.Trim(pattern, "*?") == "" {
			return clause{}, false
		}
		return clause{kind: clauseWildcard, raw: lx.text, pattern: pattern}, true
	}

	terms := a.Terms(lx.text)
	switch {
	case len(terms) == 0:
		return clause{}, false
	case lx.quoted && len(terms) > 1:
		return clause{kind: clausePhrase, raw: lx.text, terms: terms}, true
	default:
		return clause{kind: clauseTerm, raw: lx.text, terms: terms}, true
	}
}

// wildcardPattern lowercases a glob and drops characters that can never
// appear inside an index term.
func wildcardPattern(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == '*' || r == '?' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
