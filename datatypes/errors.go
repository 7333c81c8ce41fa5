// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "fmt"

// =============================================================================
// Error Taxonomy
// =============================================================================

// Tool error codes. Failures are turn-scoped: none of them terminate the
// session, and the client may retry the specific send.
const (
	// ErrCodeValidation marks a bad or unvalidated identifier or malformed
	// parameters. Recovered locally; suggestions accompany it when the
	// session has prior context.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeNotFound marks an entity that is truly absent from the catalog.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeResource marks a catalog store failure. The session remains
	// connected.
	ErrCodeResource = "RESOURCE_ERROR"

	// ErrCodeUnsupportedTool marks a tool name outside the closed tool set.
	ErrCodeUnsupportedTool = "UNSUPPORTED_TOOL"

	// ErrCodeSessionNotFound distinguishes a missing or expired session so
	// callers create a fresh one instead of retrying indefinitely.
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
)

// ToolError is the structured error half of a normalized ToolResult.
type ToolError struct {
	Code        string       `json:"code"`
	Message     string       `json:"message"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError builds the refusal returned when an identifier was
// never surfaced to the user within the validation window.
func NewValidationError(productID string, suggestions []Suggestion) *ToolError {
	return &ToolError{
		Code:        ErrCodeValidation,
		Message:     fmt.Sprintf("Product ID '%s' not found in recent searches", productID),
		Suggestions: suggestions,
	}
}

// NewNotFoundError builds the error for an entity absent from the catalog.
func NewNotFoundError(productID string) *ToolError {
	return &ToolError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("Product '%s' not found", productID),
	}
}

// NewResourceError wraps a resource failure with a client-safe message.
// An empty msg falls back to a generic one; internal details stay in logs,
// never on the wire.
func NewResourceError(msg string) *ToolError {
	if msg == "" {
		msg = "Catalog store temporarily unavailable"
	}
	return &ToolError{
		Code:    ErrCodeResource,
		Message: msg,
	}
}

// NewUnsupportedToolError is returned for names outside the closed tool set.
func NewUnsupportedToolError(name string) *ToolError {
	return &ToolError{
		Code:    ErrCodeUnsupportedTool,
		Message: fmt.Sprintf("Unsupported tool '%s'", name),
	}
}

// ErrorResult wraps a ToolError into a normalized ToolResult.
func ErrorResult(err *ToolError) ToolResult {
	return ToolResult{Error: err}
}
