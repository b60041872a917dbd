package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query     string `json:"query,omitempty" jsonschema:"the search query; terms are ANDed, use OR or | for alternatives, ! or NOT to exclude, quotes for phrases, * as wildcard"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results in this chunk, default 10"`
	AnyTerm   bool   `json:"any_term,omitempty" jsonschema:"join bare terms with OR instead of AND"`
	Similar   bool   `json:"similar,omitempty" jsonschema:"find documents similar to the query terms instead of exact matches"`
	WithLines bool   `json:"with_lines,omitempty" jsonschema:"include the matching lines of every result"`
	Session   string `json:"session,omitempty" jsonschema:"continue a previous search; query is ignored when set"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results       []SearchResultOutput `json:"results" jsonschema:"results of this chunk, best first"`
	MoreAvailable bool                 `json:"more_available" jsonschema:"true if another call with session returns more results"`
	TimedOut      bool                 `json:"timed_out,omitempty" jsonschema:"true if the chunk hit its time budget"`
	Session       string               `json:"session,omitempty" jsonschema:"pass back to fetch the next chunk"`
	Indexing      *IndexingProgress    `json:"indexing,omitempty" jsonschema:"present while documents are still being ingested"`
}

// SearchResultOutput defines a single search result.
type SearchResultOutput struct {
	URI   string       `json:"uri" jsonschema:"document URI"`
	Score float64      `json:"score" jsonschema:"relevance score, only meaningful relative to other results"`
	Lines []LineOutput `json:"lines,omitempty" jsonschema:"lines containing the query as a whole word"`
}

// LineOutput is one matching line.
type LineOutput struct {
	Line    int    `json:"line" jsonschema:"1-based line number"`
	Excerpt string `json:"excerpt" jsonschema:"the match with surrounding context"`
	Start   int    `json:"start" jsonschema:"rune offset of the match in the normalized line"`
	End     int    `json:"end" jsonschema:"rune offset after the match"`
}

// AnnotateInput defines the input schema for the annotate tool.
type AnnotateInput struct {
	URI     string `json:"uri" jsonschema:"document URI as returned by search"`
	Keyword string `json:"keyword" jsonschema:"word to locate, matched case-insensitively as a whole word"`
}

// AnnotateOutput defines the output schema for the annotate tool.
type AnnotateOutput struct {
	URI   string       `json:"uri"`
	Lines []LineOutput `json:"lines"`
}

// AddTextInput defines the input schema for the add_text tool.
type AddTextInput struct {
	URI     string `json:"uri" jsonschema:"identifier of the new document"`
	Text    string `json:"text" jsonschema:"document text"`
	Replace bool   `json:"replace,omitempty" jsonschema:"overwrite a document with the same URI"`
}

// AddTextOutput defines the output schema for the add_text tool.
type AddTextOutput struct {
	URI     string `json:"uri"`
	Added   bool   `json:"added" jsonschema:"false if the document was rejected"`
	Flushed bool   `json:"flushed" jsonschema:"true once the document is searchable"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Index    IndexInfo         `json:"index"`
	Indexing *IndexingProgress `json:"indexing,omitempty"` // Present once background ingestion started
}

// IndexInfo describes the served index.
type IndexInfo struct {
	Path          string   `json:"path"` // "memory" for in-memory indexes
	Backend       string   `json:"backend"`
	Type          string   `json:"type"`
	Proximity     bool     `json:"proximity"`
	StopWords     []string `json:"stop_words,omitempty"`
	MinTermLength int      `json:"min_term_length,omitempty"`
	Documents     uint64   `json:"documents"`
	OpenSessions  int      `json:"open_sessions"`
}

// IndexingProgress contains information about background ingestion.
type IndexingProgress struct {
	Status         string  `json:"status"` // "indexing", "ready", or "error"
	Stage          string  `json:"stage,omitempty"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	FilesFailed    int     `json:"files_failed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}
