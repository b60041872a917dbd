// Package mcp exposes a SearchKit index to AI clients over the Model
// Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
)

// Custom MCP error codes for SearchKit.
const (
	// ErrCodeIndexUnavailable indicates the index is closed or cannot be opened.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeDocumentNotFound indicates the document is not in the index.
	ErrCodeDocumentNotFound = -32004

	// ErrCodeSessionNotFound indicates a search session expired or never existed.
	ErrCodeSessionNotFound = -32006

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrIndexUnavailable indicates no index is attached to the server.
var ErrIndexUnavailable = errors.New("index unavailable")

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var skErr *skerrors.SearchKitError
	if errors.As(err, &skErr) {
		return mapSearchKitError(skErr)
	}

	switch {
	case errors.Is(err, ErrIndexUnavailable):
		return &MCPError{
			Code:    ErrCodeIndexUnavailable,
			Message: "Index unavailable. Run 'searchkit index' first.",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewSessionNotFoundError creates an error for an unknown search session.
func NewSessionNotFoundError(id string) *MCPError {
	return &MCPError{
		Code:    ErrCodeSessionNotFound,
		Message: fmt.Sprintf("Search session '%s' not found or expired. Start a new search.", id),
	}
}

// mapSearchKitError converts a SearchKitError to an MCPError.
func mapSearchKitError(se *skerrors.SearchKitError) *MCPError {
	message := se.Message
	if se.Suggestion != "" {
		message = fmt.Sprintf("%s %s", se.Message, se.Suggestion)
	}

	switch se.Code {
	case skerrors.ErrCodeDocumentNotFound, skerrors.ErrCodeFileNotFound:
		return &MCPError{Code: ErrCodeDocumentNotFound, Message: message}
	case skerrors.ErrCodeEngineUnavailable, skerrors.ErrCodeCorruptIndex, skerrors.ErrCodeIndexLocked:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	}

	switch se.Category {
	case skerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
