// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the shopstream service.
//
// This file contains the TurnEvent union streamed to clients over SSE.
// Request and response types for the HTTP surface live in requests.go;
// catalog and cart types live in products.go.
package datatypes

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Event Types
// =============================================================================

// EventType identifies the kind of a TurnEvent. The value doubles as the
// SSE event name on the wire.
type EventType string

const (
	// EventConnection is the first event on every stream connection.
	EventConnection EventType = "connection"

	// EventTextChunk carries incremental assistant text.
	EventTextChunk EventType = "text_chunk"

	// EventFunctionCall carries a completed tool invocation and its result.
	EventFunctionCall EventType = "function_call"

	// EventCompletion closes a turn.
	EventCompletion EventType = "completion"

	// EventError carries a turn-scoped failure. The session stays usable.
	EventError EventType = "error"

	// EventHeartbeat is synthesized by the bus on idle timeout. It is
	// written to the wire as an SSE comment, not a named event.
	EventHeartbeat EventType = "heartbeat"
)

// =============================================================================
// Event Payloads
// =============================================================================

// ConnectionInfo is the payload of an EventConnection event.
type ConnectionInfo struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// TextChunk is the payload of an EventTextChunk event.
//
// Partial is true for every incremental chunk; the final chunk of a
// narration carries Partial=false. Chunking is cosmetic only and never
// changes tool semantics.
type TextChunk struct {
	Content string `json:"content"`
	Partial bool   `json:"partial"`
}

// FunctionCall is the payload of an EventFunctionCall event.
//
// Result is always populated: either the tool's success payload or a
// structured ToolError. Exactly one FunctionCall is emitted per turn that
// plans a tool.
type FunctionCall struct {
	Function   string     `json:"function"`
	Parameters ToolParams `json:"parameters"`
	Result     ToolResult `json:"result"`
}

// Completion is the payload of an EventCompletion event.
type Completion struct {
	TurnID string `json:"turn_id"`
	Status string `json:"status"`
}

// ErrorInfo is the payload of an EventError event. Message is sanitized
// before it reaches the wire; Code follows the error taxonomy in errors.go.
type ErrorInfo struct {
	Message   string `json:"error"`
	Code      string `json:"code,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// =============================================================================
// TurnEvent Union
// =============================================================================

// TurnEvent is one element of a session's ordered event stream.
//
// # Description
//
// TurnEvent is a tagged union: Type selects which of the pointer fields is
// populated, and consumers switch on Type rather than registering per-type
// callbacks. Events are immutable once published: producers hand the bus a
// value and never touch the payload again.
//
// Ordering of TurnEvents within a session is significant and preserved end
// to end; no ordering exists across sessions.
type TurnEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	CreatedAt int64           `json:"created_at"`
	Conn      *ConnectionInfo `json:"connection,omitempty"`
	Text      *TextChunk      `json:"text,omitempty"`
	Call      *FunctionCall   `json:"function_call,omitempty"`
	Done      *Completion     `json:"completion,omitempty"`
	Err       *ErrorInfo      `json:"error,omitempty"`
}

// Payload returns the active payload for wire serialization.
//
// The SSE writer marshals only the payload into the data field so the wire
// format matches what browser clients pattern-match on.
func (e TurnEvent) Payload() any {
	switch e.Type {
	case EventConnection:
		return e.Conn
	case EventTextChunk:
		return e.Text
	case EventFunctionCall:
		return e.Call
	case EventCompletion:
		return e.Done
	case EventError:
		return e.Err
	default:
		return struct{}{}
	}
}

// =============================================================================
// Constructors
// =============================================================================

func newEvent(t EventType) TurnEvent {
	return TurnEvent{
		ID:        uuid.New().String(),
		Type:      t,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// NewConnectionEvent builds the first event of a stream.
func NewConnectionEvent(sessionID string) TurnEvent {
	ev := newEvent(EventConnection)
	ev.Conn = &ConnectionInfo{Status: "connected", SessionID: sessionID}
	return ev
}

// NewTextChunkEvent builds an incremental or final narration chunk.
func NewTextChunkEvent(content string, partial bool) TurnEvent {
	ev := newEvent(EventTextChunk)
	ev.Text = &TextChunk{Content: content, Partial: partial}
	return ev
}

// NewFunctionCallEvent builds the single tool event of a turn.
func NewFunctionCallEvent(function string, params ToolParams, result ToolResult) TurnEvent {
	ev := newEvent(EventFunctionCall)
	ev.Call = &FunctionCall{Function: function, Parameters: params, Result: result}
	return ev
}

// NewCompletionEvent closes a turn.
func NewCompletionEvent(turnID string) TurnEvent {
	ev := newEvent(EventCompletion)
	ev.Done = &Completion{TurnID: turnID, Status: "complete"}
	return ev
}

// NewFailedCompletionEvent closes a turn that emitted an error event. The
// session itself stays usable.
func NewFailedCompletionEvent(turnID string) TurnEvent {
	ev := newEvent(EventCompletion)
	ev.Done = &Completion{TurnID: turnID, Status: "failed"}
	return ev
}

// NewErrorEvent builds a turn-scoped error event. msg must already be
// sanitized for client display.
func NewErrorEvent(sessionID, code, msg string) TurnEvent {
	ev := newEvent(EventError)
	ev.Err = &ErrorInfo{Message: msg, Code: code, SessionID: sessionID}
	return ev
}

// NewHeartbeatEvent is synthesized by the bus when a subscriber has been
// idle past the heartbeat interval.
func NewHeartbeatEvent() TurnEvent {
	return newEvent(EventHeartbeat)
}
