// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aleutianai/shopstream/datatypes"
	"github.com/aleutianai/shopstream/session"
)

// PostMessage handles POST /api/chat/:sessionId/message.
//
// # Description
//
// Accepts a chat message for the session's turn worker and acknowledges
// immediately. The turn itself runs asynchronously; its events arrive on the
// session's SSE stream, so the ack carries no assistant output.
//
// # Outputs
//
//   - 202 with a MessageAck on acceptance
//   - 400 on a malformed or oversized message
//   - 404 when the session is unknown or expired
//   - 429 when the session's message backlog is full
func PostMessage(registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		var req datatypes.ChatMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			recordRequest("message", false)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			recordRequest("message", false)
			c.JSON(http.StatusBadRequest, gin.H{"error": "message is required and must be under 32KB"})
			return
		}

		msg := session.Message{ID: uuid.New().String(), Content: req.Message}
		if err := registry.Enqueue(sessionID, msg); err != nil {
			recordRequest("message", false)
			switch {
			case errors.Is(err, session.ErrNotFound):
				sessionNotFound(c, sessionID)
			case errors.Is(err, session.ErrBacklogFull):
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error": "message backlog full, drain the event stream and retry",
				})
			default:
				slog.Error("message enqueue failed", "session_id", sessionID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept message"})
			}
			return
		}

		slog.Debug("message accepted", "session_id", sessionID, "message_id", msg.ID)
		recordRequest("message", true)
		c.JSON(http.StatusAccepted, datatypes.MessageAck{
			Accepted:  true,
			MessageID: msg.ID,
			SessionID: sessionID,
		})
	}
}
