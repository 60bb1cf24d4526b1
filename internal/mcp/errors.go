// Package mcp implements the Model Context Protocol server that lets agents
// search the photo index.
package mcp

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/exif-turbo/exifturbo/internal/errors"
)

// Custom MCP error codes for exifturbo.
const (
	// ErrCodeIndexUnavailable indicates the store is closed or unreadable.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeQuerySyntax indicates the query could not be parsed.
	ErrCodeQuerySyntax = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodeRecordNotFound indicates no record has the requested id or path.
	ErrCodeRecordNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

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

	var me *MCPError
	if stderrors.As(err, &me) {
		return me
	}

	// Syntax errors carry the caret so the agent can fix its query.
	var se *errors.QuerySyntaxError
	if stderrors.As(err, &se) {
		return &MCPError{Code: ErrCodeQuerySyntax, Message: se.Caret()}
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case stderrors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case stderrors.Is(err, errors.ErrStoreClosed):
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: "Index is not available."}
	}

	if te, ok := errors.AsTurbo(err); ok {
		return mapTurboError(te)
	}
	return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// NewRecordNotFoundError creates an error for a missing record.
func NewRecordNotFoundError(ref string) *MCPError {
	return &MCPError{Code: ErrCodeRecordNotFound, Message: fmt.Sprintf("No record for %s.", ref)}
}

func mapTurboError(te *errors.TurboError) *MCPError {
	message := te.Message
	if te.Suggestion != "" {
		message = fmt.Sprintf("%s %s", te.Message, te.Suggestion)
	}

	switch te.Category {
	case errors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case errors.CategoryStore:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
