// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains request and response types for the HTTP surface:
// session lifecycle, inbound chat messages, and direct tool invocation.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes caps a single inbound chat message. Byte
	// length, not rune count, to bound memory regardless of encoding.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxSearchLimit caps the page size of a product search.
	MaxSearchLimit = 50

	// MaxRecommendations caps a recommendation list.
	MaxRecommendations = 20
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// requestValidate is the validator instance for request datatypes.
// Initialized in init() with custom validators.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces MaxMessageContentBytes on string fields.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Chat
// =============================================================================

// ChatMessageRequest is the body of POST /api/chat/:sessionId/message.
//
// The handler acknowledges immediately with a MessageAck; the turn itself is
// produced asynchronously and streamed over the session's event stream.
type ChatMessageRequest struct {
	Message string         `json:"message" validate:"required,maxbytes"`
	Context map[string]any `json:"context,omitempty"`
}

// Validate validates the request after JSON binding.
func (r *ChatMessageRequest) Validate() error {
	return requestValidate.Struct(r)
}

// MessageAck is the immediate response to an accepted chat message,
// decoupled from the eventual streamed turn.
type MessageAck struct {
	Accepted  bool   `json:"accepted"`
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id"`
}

// =============================================================================
// Session Lifecycle
// =============================================================================

// SessionInfo is returned by POST /api/sessions.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionContextResponse is returned by GET /api/sessions/:id/context.
type SessionContextResponse struct {
	SessionID      string      `json:"session_id"`
	RecentSearches []string    `json:"recent_searches"`
	Cart           *CartResult `json:"cart"`
	LastUpdated    time.Time   `json:"last_updated"`
}

// =============================================================================
// Direct Tool Invocation
// =============================================================================

// SearchProductsRequest is the body of POST /api/functions/search_products.
type SearchProductsRequest struct {
	SessionID string   `json:"session_id" validate:"required"`
	Query     string   `json:"query"`
	Category  string   `json:"category,omitempty"`
	Limit     int      `json:"limit" validate:"gte=0,lte=50"`
	PriceMin  *float64 `json:"price_min,omitempty"`
	PriceMax  *float64 `json:"price_max,omitempty"`
}

// Validate validates the request after JSON binding.
func (r *SearchProductsRequest) Validate() error {
	return requestValidate.Struct(r)
}

// ProductDetailsRequest is the body of POST /api/functions/show_product_details.
type ProductDetailsRequest struct {
	SessionID              string `json:"session_id" validate:"required"`
	ProductID              string `json:"product_id" validate:"required"`
	IncludeRecommendations bool   `json:"include_recommendations"`
}

// Validate validates the request after JSON binding.
func (r *ProductDetailsRequest) Validate() error {
	return requestValidate.Struct(r)
}

// AddToCartRequest is the body of POST /api/functions/add_to_cart.
type AddToCartRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

// Validate validates the request after JSON binding.
func (r *AddToCartRequest) Validate() error {
	return requestValidate.Struct(r)
}

// UpdateCartRequest is the body of POST /api/functions/update_cart.
// Delta is applied to the line's quantity; a result of zero or below
// removes the line.
type UpdateCartRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
	Delta     int    `json:"delta" validate:"required"`
}

// Validate validates the request after JSON binding.
func (r *UpdateCartRequest) Validate() error {
	return requestValidate.Struct(r)
}

// RemoveFromCartRequest is the body of POST /api/functions/remove_from_cart.
// Exactly one selector should be set; ProductID takes precedence.
type RemoveFromCartRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	ProductID string `json:"product_id,omitempty"`
	Query     string `json:"query,omitempty"`
}

// Validate validates the request after JSON binding.
func (r *RemoveFromCartRequest) Validate() error {
	return requestValidate.Struct(r)
}

// GetCartRequest is the body of POST /api/functions/get_cart.
type GetCartRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// Validate validates the request after JSON binding.
func (r *GetCartRequest) Validate() error {
	return requestValidate.Struct(r)
}

// RecommendationsRequest is the body of POST /api/functions/get_recommendations.
// BasedOn may be a product identifier, a category name, or free text that
// resolves through search.
type RecommendationsRequest struct {
	SessionID  string `json:"session_id" validate:"required"`
	BasedOn    string `json:"based_on" validate:"required"`
	MaxResults int    `json:"max_results" validate:"gte=0,lte=20"`
}

// Validate validates the request after JSON binding.
func (r *RecommendationsRequest) Validate() error {
	return requestValidate.Struct(r)
}

// FunctionResponse is the envelope of every direct tool endpoint. Success
// mirrors whether Result carries a success payload or a structured error.
type FunctionResponse struct {
	Success bool       `json:"success"`
	Data    ToolResult `json:"data"`
}
