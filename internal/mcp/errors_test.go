package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
)

func TestMCPError_Error(t *testing.T) {
	err := &MCPError{Code: ErrCodeInvalidParams, Message: "bad"}

	assert.Equal(t, "MCP error -32602: bad", err.Error())
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"index unavailable", ErrIndexUnavailable, ErrCodeIndexUnavailable},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), ErrCodeTimeout},
		{"unknown", errors.New("boom"), ErrCodeInternalError},
		{"document not found", skerrors.New(skerrors.ErrCodeDocumentNotFound, "gone", nil), ErrCodeDocumentNotFound},
		{"engine unavailable", skerrors.EngineUnavailable("search"), ErrCodeIndexUnavailable},
		{"index locked", skerrors.New(skerrors.ErrCodeIndexLocked, "locked", nil), ErrCodeIndexUnavailable},
		{"invalid query", skerrors.New(skerrors.ErrCodeInvalidQuery, "unterminated quote", nil), ErrCodeInvalidParams},
		{"rejected document", skerrors.DocumentRejected("doc://a", "exists"), ErrCodeInvalidParams},
		{"content unreadable", skerrors.ContentUnreadable("/a.pdf", errors.New("eof")), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapError(tt.err)
			require.NotNil(t, mapped)
			assert.Equal(t, tt.code, mapped.Code)
			assert.NotEmpty(t, mapped.Message)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_KeepsMCPError(t *testing.T) {
	orig := NewSessionNotFoundError("abc")

	mapped := MapError(fmt.Errorf("wrapped: %w", orig))

	assert.Same(t, orig, mapped)
}

func TestMapError_AppendsSuggestion(t *testing.T) {
	err := skerrors.New(skerrors.ErrCodeIndexLocked, "index is locked", nil).
		WithSuggestion("Stop the other searchkit process.")

	mapped := MapError(err)

	assert.Equal(t, "index is locked Stop the other searchkit process.", mapped.Message)
}

func TestErrorConstructors(t *testing.T) {
	assert.Equal(t, ErrCodeInvalidParams, NewInvalidParamsError("x").Code)

	notFound := NewMethodNotFoundError("grep")
	assert.Equal(t, ErrCodeMethodNotFound, notFound.Code)
	assert.Contains(t, notFound.Message, "'grep'")

	session := NewSessionNotFoundError("s1")
	assert.Equal(t, ErrCodeSessionNotFound, session.Code)
	assert.Contains(t, session.Message, "'s1'")
}
