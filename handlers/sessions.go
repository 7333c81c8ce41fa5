// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers for the HTTP surface: session
// lifecycle, chat message intake, the SSE event stream, and the direct tool
// endpoints.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aleutianai/shopstream/catalog"
	"github.com/aleutianai/shopstream/contextwindow"
	"github.com/aleutianai/shopstream/datatypes"
	"github.com/aleutianai/shopstream/observability"
	"github.com/aleutianai/shopstream/session"
)

// recordRequest reports a request outcome to the metrics singleton when one
// has been initialized. Handlers under test run without metrics.
func recordRequest(endpoint string, success bool) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(endpoint, success)
	}
}

// sessionNotFound writes the 404 body shared by every endpoint that resolves
// a session id.
func sessionNotFound(c *gin.Context, sessionID string) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":      "session not found or expired",
		"code":       datatypes.ErrCodeSessionNotFound,
		"session_id": sessionID,
	})
}

// CreateSession handles POST /api/sessions.
//
// # Description
//
// Allocates a new session: event queue registered, turn worker started, TTL
// stamped. The client should open the event stream next; the first connect
// streams the greeting turn.
func CreateSession(registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := registry.Create()
		slog.Info("session created via API", "session_id", s.ID)
		recordRequest("sessions", true)
		c.JSON(http.StatusCreated, datatypes.SessionInfo{
			SessionID: s.ID,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
		})
	}
}

// DeleteSession handles DELETE /api/sessions/:sessionId.
//
// # Description
//
// Tears the session down across every layer: worker stopped, event queue
// closed (parked stream readers observe the close), context window
// forgotten, cart cleared. Deleting an unknown or expired session is a 404.
func DeleteSession(registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		slog.Info("received request to delete session", "session_id", sessionID)

		if _, err := registry.Get(sessionID); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				recordRequest("sessions", false)
				sessionNotFound(c, sessionID)
				return
			}
			slog.Error("session lookup failed", "session_id", sessionID, "error", err)
			recordRequest("sessions", false)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			return
		}

		registry.Delete(c.Request.Context(), sessionID)
		recordRequest("sessions", true)
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionID})
	}
}

// GetSessionContext handles GET /api/sessions/:sessionId/context.
//
// # Description
//
// Returns what the assistant currently remembers for the session: recent
// search queries from the context window and the live cart with totals.
func GetSessionContext(registry *session.Registry, tracker *contextwindow.Tracker, cat *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		if _, err := registry.Get(sessionID); err != nil {
			recordRequest("sessions", false)
			sessionNotFound(c, sessionID)
			return
		}

		cart, err := cat.GetCart(c.Request.Context(), sessionID)
		if err != nil {
			slog.Error("cart read failed", "session_id", sessionID, "error", err)
			recordRequest("sessions", false)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session context"})
			return
		}

		queries := tracker.RecentQueries(sessionID)
		if queries == nil {
			queries = []string{}
		}

		recordRequest("sessions", true)
		c.JSON(http.StatusOK, datatypes.SessionContextResponse{
			SessionID:      sessionID,
			RecentSearches: queries,
			Cart:           &cart,
			LastUpdated:    time.Now().UTC(),
		})
	}
}
