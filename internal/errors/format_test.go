package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForUser_IncludesSuggestionAndCode(t *testing.T) {
	// Given: an error with a suggestion and a cause
	err := New(ErrCodeIndexLocked, "index is locked", errors.New("EWOULDBLOCK")).
		WithSuggestion("close other searchkit processes")

	// When: formatting without debug
	out := FormatForUser(err, false)

	// Then: suggestion and code appear, cause does not
	assert.Contains(t, out, "Error: index is locked")
	assert.Contains(t, out, "Suggestion: close other searchkit processes")
	assert.Contains(t, out, "[ERR_207_INDEX_LOCKED]")
	assert.NotContains(t, out, "EWOULDBLOCK")

	// When: formatting with debug
	debugOut := FormatForUser(err, true)

	// Then: cause is included
	assert.Contains(t, debugOut, "Cause: EWOULDBLOCK")
}

func TestFormatForUser_PlainError(t *testing.T) {
	assert.Equal(t, "boom", FormatForUser(errors.New("boom"), false))
	assert.Empty(t, FormatForUser(nil, false))
}

func TestFormatForCLI_WrapsPlainErrors(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))
	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, "Code: ERR_502_INTERNAL")
}

func TestFormatJSON_Fields(t *testing.T) {
	// Given: a rejected document error
	err := DocumentRejected("mem://a", "already indexed")

	// When: formatted as JSON
	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Then: code, category, and details are present
	assert.Equal(t, ErrCodeDocumentRejected, decoded["code"])
	assert.Equal(t, "VALIDATION", decoded["category"])
	assert.Equal(t, "WARNING", decoded["severity"])
	details, ok := decoded["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "mem://a", details["uri"])
}

func TestFormatForLog_KeyValuePairs(t *testing.T) {
	err := New(ErrCodeSearchFailed, "search failed", errors.New("timeout"))

	attrs := FormatForLog(err)

	require.Len(t, attrs, 8)
	assert.Equal(t, "error_code", attrs[2])
	assert.Equal(t, ErrCodeSearchFailed, attrs[3])
	assert.Equal(t, "cause", attrs[6])

	assert.Equal(t, []any{"error", "plain"}, FormatForLog(errors.New("plain")))
	assert.Nil(t, FormatForLog(nil))
}
