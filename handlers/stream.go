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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aleutianai/shopstream/agent"
	"github.com/aleutianai/shopstream/backoff"
	"github.com/aleutianai/shopstream/datatypes"
	"github.com/aleutianai/shopstream/eventbus"
	"github.com/aleutianai/shopstream/observability"
	"github.com/aleutianai/shopstream/session"
)

// Stream handles GET /api/stream/:sessionId.
//
// # Description
//
// Attaches the caller as the session's single event subscriber and relays
// the ordered event stream over SSE until the client disconnects, a newer
// subscriber preempts this one, or the session closes.
//
// The connection opens with a retry hint from the backoff policy and a
// connection event. The first connection of a session's lifetime also
// triggers the greeting turn; reconnects resume the existing queue without
// replaying it.
//
// Heartbeats synthesized by the bus reach the wire as SSE comments so proxy
// idle timers reset without disturbing client event handlers.
func Stream(registry *session.Registry, bus *eventbus.Bus, orch *agent.Orchestrator, policy backoff.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		s, err := registry.Get(sessionID)
		if err != nil {
			recordRequest("stream", false)
			sessionNotFound(c, sessionID)
			return
		}

		sub, err := bus.Subscribe(sessionID)
		if err != nil {
			// The session expired between lookup and subscribe.
			recordRequest("stream", false)
			sessionNotFound(c, sessionID)
			return
		}

		SetSSEHeaders(c.Writer)
		c.Writer.WriteHeader(http.StatusOK)

		writer, werr := NewSSEWriter(c.Writer)
		if werr != nil {
			slog.Error("streaming unsupported by response writer", "session_id", sessionID, "error", werr)
			recordRequest("stream", false)
			return
		}

		log := slog.With("session_id", sessionID)
		log.Info("stream connected")
		recordRequest("stream", true)

		metrics := observability.DefaultMetrics
		if metrics != nil {
			metrics.StreamStarted()
		}
		start := time.Now()
		defer func() {
			if metrics != nil {
				metrics.StreamEnded()
			}
			log.Info("stream closed", "duration", time.Since(start))
		}()

		if delay, ok := policy.NextDelay(0); ok {
			if err := writer.WriteRetry(delay); err != nil {
				return
			}
		}
		if err := writer.WriteEvent(datatypes.NewConnectionEvent(sessionID)); err != nil {
			return
		}

		ctx := c.Request.Context()
		if s.ClaimWelcome() {
			// Publish from a goroutine: the greeting blocks if the queue is
			// full, and only this loop drains it.
			go func() {
				if err := orch.PublishWelcome(ctx, sessionID); err != nil {
					log.Warn("welcome publish failed", "error", err)
				}
			}()
		}

		for {
			ev, err := sub.Next(ctx)
			if err != nil {
				switch {
				case errors.Is(err, eventbus.ErrPreempted):
					log.Info("stream preempted by newer connection")
				case errors.Is(err, eventbus.ErrSessionClosed):
					log.Info("stream ended, session closed")
				case ctx.Err() != nil:
					log.Info("client disconnected")
					if metrics != nil {
						metrics.RecordClientDisconnect()
					}
				default:
					log.Error("stream read failed", "error", err)
				}
				return
			}

			if ev.Type == datatypes.EventHeartbeat && metrics != nil {
				metrics.RecordHeartbeat()
			}
			if err := writer.WriteEvent(ev); err != nil {
				log.Info("stream write failed, client gone", "error", err)
				if metrics != nil {
					metrics.RecordClientDisconnect()
				}
				return
			}
		}
	}
}
