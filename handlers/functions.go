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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aleutianai/shopstream/agent"
	"github.com/aleutianai/shopstream/datatypes"
	"github.com/aleutianai/shopstream/session"
)

// =============================================================================
// Shared Dispatch
// =============================================================================

// functionRequest is the common shape of the direct tool request bodies.
type functionRequest[R any] interface {
	*R
	Validate() error
}

// runFunction binds, validates, resolves the session, and executes one tool,
// sharing the refusal and error semantics of the chat path. The builder maps
// the bound request onto planner-shaped tool parameters.
func runFunction[R any, P functionRequest[R]](registry *session.Registry, executor *agent.Executor, tool string,
	sessionID func(P) string, params func(P) datatypes.ToolParams) gin.HandlerFunc {

	return func(c *gin.Context) {
		var body R
		req := P(&body)
		if err := c.ShouldBindJSON(req); err != nil {
			recordRequest("functions", false)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			recordRequest("functions", false)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sid := sessionID(req)
		if _, err := registry.Get(sid); err != nil {
			recordRequest("functions", false)
			sessionNotFound(c, sid)
			return
		}

		_, result, err := executor.Execute(c.Request.Context(), sid, tool, params(req))
		if err != nil {
			slog.Error("function execution failed", "tool", tool, "session_id", sid, "error", err)
			recordRequest("functions", false)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "function execution failed"})
			return
		}

		recordRequest("functions", result.Error == nil)
		c.JSON(http.StatusOK, datatypes.FunctionResponse{
			Success: result.Error == nil,
			Data:    result,
		})
	}
}

// =============================================================================
// Tool Endpoints
// =============================================================================

// SearchProducts handles POST /api/functions/search_products.
func SearchProducts(registry *session.Registry, executor *agent.Executor) gin.HandlerFunc {
	return runFunction(registry, executor, agent.ToolSearchProducts,
		func(r *datatypes.SearchProductsRequest) string { return r.SessionID },
		func(r *datatypes.SearchProductsRequest) datatypes.ToolParams {
			return datatypes.ToolParams{
				Query:    r.Query,
				Category: r.Category,
				Limit:    r.Limit,
				PriceMin: r.PriceMin,
				PriceMax: r.PriceMax,
			}
		})
}

// ShowProductDetails handles POST /api/functions/show_product_details.
func ShowProductDetails(registry *session.Registry, executor *agent.Executor) gin.HandlerFunc {
	return runFunction(registry, executor, agent.ToolShowProductDetails,
		func(r *datatypes.ProductDetailsRequest) string { return r.SessionID },
		func(r *datatypes.ProductDetailsRequest) datatypes.ToolParams {
			return datatypes.ToolParams{
				ProductID:              r.ProductID,
				IncludeRecommendations: r.IncludeRecommendations,
			}
		})
}

// AddToCart handles POST /api/functions/add_to_cart.
func AddToCart(registry *session.Registry, executor *agent.Executor) gin.HandlerFunc {
	return runFunction(registry, executor, agent.ToolAddToCart,
		func(r *datatypes.AddToCartRequest) string { return r.SessionID },
		func(r *datatypes.AddToCartRequest) datatypes.ToolParams {
			return datatypes.ToolParams{ProductID: r.ProductID, Quantity: r.Quantity}
		})
}

// UpdateCart handles POST /api/functions/update_cart.
func UpdateCart(registry *session.Registry, executor *agent.Executor) gin.HandlerFunc {
	return runFunction(registry, executor, agent.ToolUpdateCart,
		func(r *datatypes.UpdateCartRequest) string { return r.SessionID },
		func(r *datatypes.UpdateCartRequest) datatypes.ToolParams {
			return datatypes.ToolParams{ProductID: r.ProductID, Delta: r.Delta}
		})
}

// RemoveFromCart handles POST /api/functions/remove_from_cart.
func RemoveFromCart(registry *session.Registry, executor *agent.Executor) gin.HandlerFunc {
	return runFunction(registry, executor, agent.ToolRemoveFromCart,
		func(r *datatypes.RemoveFromCartRequest) string { return r.SessionID },
		func(r *datatypes.RemoveFromCartRequest) datatypes.ToolParams {
			return datatypes.ToolParams{ProductID: r.ProductID, Query: r.Query}
		})
}

// GetCart handles POST /api/functions/get_cart.
func GetCart(registry *session.Registry, executor *agent.Executor) gin.HandlerFunc {
	return runFunction(registry, executor, agent.ToolGetCart,
		func(r *datatypes.GetCartRequest) string { return r.SessionID },
		func(r *datatypes.GetCartRequest) datatypes.ToolParams {
			return datatypes.ToolParams{}
		})
}

// GetRecommendations handles POST /api/functions/get_recommendations.
func GetRecommendations(registry *session.Registry, executor *agent.Executor) gin.HandlerFunc {
	return runFunction(registry, executor, agent.ToolGetRecommendations,
		func(r *datatypes.RecommendationsRequest) string { return r.SessionID },
		func(r *datatypes.RecommendationsRequest) datatypes.ToolParams {
			return datatypes.ToolParams{BasedOn: r.BasedOn, MaxResults: r.MaxResults}
		})
}

// =============================================================================
// Health
// =============================================================================

// HealthCheck handles GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
