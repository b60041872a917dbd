package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// sqliteStore keeps documents in SQLite: the original text in docs and the
// analyzed terms, space-joined, in an FTS5 table sharing the same rowid.
type sqliteStore struct {
	db        *sql.DB
	analyzer  *Analyzer
	proximity bool
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS docs (
	id         INTEGER PRIMARY KEY,
	uri        TEXT NOT NULL UNIQUE,
	content    TEXT NOT NULL,
	term_count INTEGER NOT NULL
);

-- terms holds pre-analyzed text, so FTS5 only needs to split on spaces
CREATE VIRTUAL TABLE IF NOT EXISTS fts USING fts5(
	terms,
	tokenize='unicode61 remove_diacritics 0'
);

-- vocabulary for wildcard expansion
CREATE VIRTUAL TABLE IF NOT EXISTS fts_vocab USING fts5vocab(fts, 'row');

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', '1');
`

func openSQLiteStore(path string, props Properties, readOnly bool) (*sqliteStore, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
		if readOnly {
			dsn = "file:" + path + "?mode=ro"
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: an in-memory database exists per connection, and
	// the engine never writes concurrently anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA cache_size = -65536", // 64MB cache (negative = KB)
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" && !readOnly {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if !readOnly {
		if _, err := db.Exec(sqliteSchema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return &sqliteStore{db: db, analyzer: NewAnalyzer(props), proximity: props.Proximity}, nil
}

func (s *sqliteStore) lookup(uri string) (string, int, bool, error) {
	var (
		text  string
		count int
	)
	err := s.db.QueryRow(`SELECT content, term_count FROM docs WHERE uri = ?`, uri).Scan(&text, &count)
	if err == sql.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("lookup %s: %w", uri, err)
	}
	return text, count, true, nil
}

func (s *sqliteStore) commit(adds []pendingDoc, removes []string) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	deleteFTS, err := tx.Prepare(`DELETE FROM fts WHERE rowid = (SELECT id FROM docs WHERE uri = ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer deleteFTS.Close()

	deleteDoc, err := tx.Prepare(`DELETE FROM docs WHERE uri = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer deleteDoc.Close()

	insertDoc, err := tx.Prepare(`INSERT INTO docs (uri, content, term_count) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insertDoc.Close()

	insertFTS, err := tx.Prepare(`INSERT INTO fts (rowid, terms) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insertFTS.Close()

	remove := func(uri string) error {
		if _, err := deleteFTS.Exec(uri); err != nil {
			return fmt.Errorf("failed to delete %s: %w", uri, err)
		}
		if _, err := deleteDoc.Exec(uri); err != nil {
			return fmt.Errorf("failed to delete %s: %w", uri, err)
		}
		return nil
	}

	for _, uri := range removes {
		if err := remove(uri); err != nil {
			return err
		}
	}

	// Replacement is delete + insert; the FTS row follows the new docs id.
	for _, doc := range adds {
		if err := remove(doc.uri); err != nil {
			return err
		}
		res, err := insertDoc.Exec(doc.uri, doc.text, doc.termCount)
		if err != nil {
			return fmt.Errorf("failed to insert %s: %w", doc.uri, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read id of %s: %w", doc.uri, err)
		}
		if _, err := insertFTS.Exec(id, strings.Join(s.analyzer.Terms(doc.text), " ")); err != nil {
			return fmt.Errorf("failed to insert terms of %s: %w", doc.uri, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *sqliteStore) compact(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO fts(fts) VALUES('optimize')`); err != nil {
		return fmt.Errorf("optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

func (s *sqliteStore) walk(ctx context.Context, fn func(DocumentInfo) bool) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, uri, term_count FROM docs ORDER BY uri`)
	if err != nil {
		return fmt.Errorf("walk documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var info DocumentInfo
		var id int64
		if err := rows.Scan(&id, &info.URI, &info.TermCount); err != nil {
			return fmt.Errorf("walk documents: %w", err)
		}
		info.ID = uint64(id)
		if !fn(info) {
			return nil
		}
	}
	return rows.Err()
}

func (s *sqliteStore) count() (uint64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM docs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return uint64(n), nil
}

func (s *sqliteStore) close() error {
	return s.db.Close()
}

func (s *sqliteStore) session(q parsedQuery, opts SearchOptions) Session {
	return &sqliteSession{store: s, query: q, noScores: opts.NoRelevanceScores}
}

// ftsQuote quotes a term as an FTS5 string.
func ftsQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// clauseExpr renders a clause as an FTS5 expression. An empty result means
// the clause cannot match anything.
func (s *sqliteStore) clauseExpr(ctx context.Context, c clause) (string, error) {
	switch c.kind {
	case clauseWildcard:
		rows, err := s.db.QueryContext(ctx, `SELECT term FROM fts_vocab WHERE term GLOB ? ORDER BY term`, c.pattern)
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", c.pattern, err)
		}
		defer rows.Close()
		var terms []string
		for rows.Next() {
			var term string
			if err := rows.Scan(&term); err != nil {
				return "", fmt.Errorf("expand %s: %w", c.pattern, err)
			}
			terms = append(terms, ftsQuote(term))
		}
		if err := rows.Err(); err != nil {
			return "", err
		}
		if len(terms) == 0 {
			return "", nil
		}
		return "(" + strings.Join(terms, " OR ") + ")", nil

	case clausePhrase:
		if s.proximity {
			return ftsQuote(strings.Join(c.terms, " ")), nil
		}
	}

	quoted := make([]string, len(c.terms))
	for i, t := range c.terms {
		quoted[i] = ftsQuote(t)
	}
	return "(" + strings.Join(quoted, " AND ") + ")", nil
}

// matchPlan is a parsed query rendered for SQLite.
type matchPlan struct {
	positive    string // empty when there are no satisfiable groups
	negative    string // empty when nothing is excluded
	hasPositive bool   // the query had positive groups at all
}

func (s *sqliteStore) plan(ctx context.Context, q parsedQuery) (matchPlan, error) {
	p := matchPlan{hasPositive: len(q.groups) > 0}

	var groups []string
	for _, g := range q.groups {
		parts := make([]string, 0, len(g))
		for _, c := range g {
			expr, err := s.clauseExpr(ctx, c)
			if err != nil {
				return p, err
			}
			if expr == "" {
				parts = nil
				break
			}
			parts = append(parts, expr)
		}
		if len(parts) > 0 {
			groups = append(groups, "("+strings.Join(parts, " AND ")+")")
		}
	}
	p.positive = strings.Join(groups, " OR ")

	var excluded []string
	for _, c := range q.exclude {
		expr, err := s.clauseExpr(ctx, c)
		if err != nil {
			return p, err
		}
		if expr != "" {
			excluded = append(excluded, expr)
		}
	}
	p.negative = strings.Join(excluded, " OR ")
	return p, nil
}

// statement returns the SQL and leading arguments for a plan; LIMIT and
// OFFSET are appended by the caller. ok is false when nothing can match.
func (p matchPlan) statement(noScores bool) (query string, args []any, ok bool) {
	order := "score, d.id"
	if noScores {
		order = "d.uri"
	}

	switch {
	case p.hasPositive && p.positive == "":
		return "", nil, false

	case p.positive != "":
		match := p.positive
		if p.negative != "" {
			match = "(" + p.positive + ") NOT (" + p.negative + ")"
		}
		score := "bm25(fts)"
		if noScores {
			score = "0"
		}
		return `SELECT d.uri, ` + score + ` AS score FROM fts JOIN docs d ON d.id = fts.rowid
			WHERE fts MATCH ? ORDER BY ` + order + ` LIMIT ? OFFSET ?`, []any{match}, true

	case p.negative != "":
		return `SELECT d.uri, 0 AS score FROM docs d
			WHERE d.id NOT IN (SELECT rowid FROM fts WHERE fts MATCH ?)
			ORDER BY d.uri LIMIT ? OFFSET ?`, []any{p.negative}, true

	default:
		// Every exclusion was unsatisfiable.
		return `SELECT d.uri, 0 AS score FROM docs d ORDER BY d.uri LIMIT ? OFFSET ?`, nil, true
	}
}

// sqliteSession pages with LIMIT/OFFSET over a stable order.
type sqliteSession struct {
	store    *sqliteStore
	query    parsedQuery
	noScores bool

	planned   bool
	sql       string
	args      []any
	offset    int
	done      bool
	cancelled atomic.Bool
}

func (s *sqliteSession) Next(ctx context.Context, limit int) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if s.done || s.cancelled.Load() {
		return Chunk{}, nil
	}

	if !s.planned {
		p, err := s.store.plan(ctx, s.query)
		if err != nil {
			return Chunk{}, s.fail(ctx, err)
		}
		query, args, ok := p.statement(s.noScores)
		if !ok {
			s.done = true
			return Chunk{}, nil
		}
		s.sql, s.args, s.planned = query, args, true
	}

	limit = chunkLimit(limit)
	args := append(append([]any(nil), s.args...), limit+1, s.offset)
	rows, err := s.store.db.QueryContext(ctx, s.sql, args...)
	if err != nil {
		return Chunk{}, s.fail(ctx, err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, limit)
	more := false
	for rows.Next() {
		if len(hits) == limit {
			more = true
			break
		}
		var h Hit
		if err := rows.Scan(&h.URI, &h.Score); err != nil {
			return Chunk{}, s.fail(ctx, err)
		}
		// bm25() is negative, lower is better
		if h.Score != 0 {
			h.Score = -h.Score
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return Chunk{}, s.fail(ctx, err)
	}

	s.offset += len(hits)
	s.done = !more
	return Chunk{Hits: hits, More: more}, nil
}

func (s *sqliteSession) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return skerrors.Wrap(skerrors.ErrCodeSearchFailed, err).WithDetail("offset", strconv.Itoa(s.offset))
}

func (s *sqliteSession) Cancel() {
	s.cancelled.Store(true)
}
