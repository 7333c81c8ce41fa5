// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes wires the HTTP surface onto a gin engine.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/aleutianai/shopstream/agent"
	"github.com/aleutianai/shopstream/backoff"
	"github.com/aleutianai/shopstream/catalog"
	"github.com/aleutianai/shopstream/contextwindow"
	"github.com/aleutianai/shopstream/eventbus"
	"github.com/aleutianai/shopstream/handlers"
	"github.com/aleutianai/shopstream/middleware"
	"github.com/aleutianai/shopstream/session"
)

// Deps carries everything the handlers need. All fields are required.
type Deps struct {
	Registry *session.Registry
	Bus      *eventbus.Bus
	Tracker  *contextwindow.Tracker
	Catalog  *catalog.Service
	Executor *agent.Executor
	Orch     *agent.Orchestrator
	Retry    backoff.Policy

	// AllowedOrigins restricts CORS; empty allows every origin.
	AllowedOrigins []string
}

// SetupRoutes registers every endpoint on the router.
//
// The stream endpoint sits outside the rate limiter: one long-lived
// connection per session is the intended shape, and a token bucket tuned for
// request bursts would starve reconnects.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(otelgin.Middleware("shopstream"))
	router.Use(middleware.CORS(deps.AllowedOrigins))

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/stream/:sessionId", handlers.Stream(deps.Registry, deps.Bus, deps.Orch, deps.Retry))

	api := router.Group("/api")
	api.Use(middleware.RateLimiter(middleware.DefaultRateLimitConfig()))
	{
		sessions := api.Group("/sessions")
		{
			sessions.POST("", handlers.CreateSession(deps.Registry))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(deps.Registry))
			sessions.GET("/:sessionId/context", handlers.GetSessionContext(deps.Registry, deps.Tracker, deps.Catalog))
		}

		api.POST("/chat/:sessionId/message", handlers.PostMessage(deps.Registry))

		functions := api.Group("/functions")
		{
			functions.POST("/search_products", handlers.SearchProducts(deps.Registry, deps.Executor))
			functions.POST("/show_product_details", handlers.ShowProductDetails(deps.Registry, deps.Executor))
			functions.POST("/add_to_cart", handlers.AddToCart(deps.Registry, deps.Executor))
			functions.POST("/update_cart", handlers.UpdateCart(deps.Registry, deps.Executor))
			functions.POST("/remove_from_cart", handlers.RemoveFromCart(deps.Registry, deps.Executor))
			functions.POST("/get_cart", handlers.GetCart(deps.Registry, deps.Executor))
			functions.POST("/get_recommendations", handlers.GetRecommendations(deps.Registry, deps.Executor))
		}
	}
}
