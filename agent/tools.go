// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aleutianai/shopstream/catalog"
	"github.com/aleutianai/shopstream/contextwindow"
	"github.com/aleutianai/shopstream/datatypes"
	"github.com/aleutianai/shopstream/store"
)

// =============================================================================
// Tool Registry
// =============================================================================

// The closed tool set. Anything else is refused with UNSUPPORTED_TOOL.
const (
	ToolSearchProducts     = "search_products"
	ToolShowProductDetails = "show_product_details"
	ToolAddToCart          = "add_to_cart"
	ToolUpdateCart         = "update_cart"
	ToolRemoveFromCart     = "remove_from_cart"
	ToolGetCart            = "get_cart"
	ToolGetRecommendations = "get_recommendations"
)

var knownTools = map[string]bool{
	ToolSearchProducts:     true,
	ToolShowProductDetails: true,
	ToolAddToCart:          true,
	ToolUpdateCart:         true,
	ToolRemoveFromCart:     true,
	ToolGetCart:            true,
	ToolGetRecommendations: true,
}

// silentTools run without narration: their UI effect is the cart panel
// refresh, not assistant prose.
var silentTools = map[string]bool{
	ToolUpdateCart:     true,
	ToolRemoveFromCart: true,
	ToolGetCart:        true,
}

// KnownTool reports whether name is in the tool set.
func KnownTool(name string) bool { return knownTools[name] }

// SilentTool reports whether a tool skips narration.
func SilentTool(name string) bool { return silentTools[name] }

// =============================================================================
// Executor
// =============================================================================

// Executor runs tools against the catalog with context-tracker validation.
// It is shared by the orchestrated turn path and the direct function
// endpoints, so both have identical side effects.
type Executor struct {
	catalog *catalog.Service
	tracker *contextwindow.Tracker
}

// NewExecutor creates an executor.
func NewExecutor(cat *catalog.Service, tracker *contextwindow.Tracker) *Executor {
	return &Executor{catalog: cat, tracker: tracker}
}

// Execute runs one tool.
//
// # Description
//
// Identifier-bearing tools are validated against the session's context
// window first; a failed validation refuses execution and returns a
// VALIDATION_ERROR result carrying near-miss suggestions. Tool-level
// refusals and not-found conditions come back inside the ToolResult; only
// infrastructure failures surface as a Go error.
//
// # Outputs
//
//   - string: the tool that actually ran (a detail lookup by free text can
//     resolve to a search when it is ambiguous).
//   - datatypes.ToolResult: exactly one populated field.
//   - error: storage or context failures only.
func (e *Executor) Execute(ctx context.Context, sessionID, tool string, params datatypes.ToolParams) (string, datatypes.ToolResult, error) {
	switch tool {
	case ToolSearchProducts:
		return e.searchProducts(ctx, sessionID, params)
	case ToolShowProductDetails:
		return e.showProductDetails(ctx, sessionID, params)
	case ToolAddToCart:
		return e.addToCart(ctx, sessionID, params)
	case ToolUpdateCart:
		return e.updateCart(ctx, sessionID, params)
	case ToolRemoveFromCart:
		return e.removeFromCart(ctx, sessionID, params)
	case ToolGetCart:
		res, err := e.catalog.GetCart(ctx, sessionID)
		if err != nil {
			return tool, datatypes.ToolResult{}, err
		}
		return tool, datatypes.ToolResult{Cart: &res}, nil
	case ToolGetRecommendations:
		return e.getRecommendations(ctx, sessionID, params)
	default:
		slog.Warn("unsupported tool requested", "tool", tool, "session_id", sessionID)
		return tool, datatypes.ErrorResult(datatypes.NewUnsupportedToolError(tool)), nil
	}
}

func (e *Executor) searchProducts(ctx context.Context, sessionID string, params datatypes.ToolParams) (string, datatypes.ToolResult, error) {
	res, err := e.catalog.Search(ctx, catalog.Query{
		Text:     params.Query,
		Category: params.Category,
		PriceMin: params.PriceMin,
		PriceMax: params.PriceMax,
		Limit:    params.Limit,
	})
	if err != nil {
		return ToolSearchProducts, datatypes.ToolResult{}, err
	}

	ids := make([]string, len(res.Products))
	for i, p := range res.Products {
		ids[i] = p.ID
	}
	e.tracker.Record(sessionID, params.Query, ids)

	return ToolSearchProducts, datatypes.ToolResult{Search: &res}, nil
}

func (e *Executor) showProductDetails(ctx context.Context, sessionID string, params datatypes.ToolParams) (string, datatypes.ToolResult, error) {
	productID := params.ProductID

	// Free-text lookup: resolve through search. A unique hit becomes the
	// detail subject; zero or several hits return the search result itself.
	if productID == "" && params.Query != "" {
		found, err := e.catalog.Search(ctx, catalog.Query{Text: params.Query, Limit: 5})
		if err != nil {
			return ToolShowProductDetails, datatypes.ToolResult{}, err
		}
		if len(found.Products) != 1 {
			ids := make([]string, len(found.Products))
			for i, p := range found.Products {
				ids[i] = p.ID
			}
			e.tracker.Record(sessionID, params.Query, ids)
			return ToolSearchProducts, datatypes.ToolResult{Search: &found}, nil
		}
		productID = found.Products[0].ID
		e.tracker.Record(sessionID, params.Query, []string{productID})
	}

	if productID == "" {
		return ToolShowProductDetails, datatypes.ErrorResult(datatypes.NewNotFoundError("product")), nil
	}

	validation := e.tracker.Validate(sessionID, productID)
	if !validation.Valid {
		return ToolShowProductDetails, datatypes.ErrorResult(validationError(productID, validation)), nil
	}

	product, err := e.catalog.Get(ctx, productID)
	if errors.Is(err, store.ErrProductNotFound) {
		return ToolShowProductDetails, datatypes.ErrorResult(datatypes.NewNotFoundError(productID)), nil
	}
	if err != nil {
		return ToolShowProductDetails, datatypes.ToolResult{}, err
	}

	var recs []datatypes.Product
	if params.IncludeRecommendations {
		recs, err = e.catalog.Recommendations(ctx, productID, 5)
		if err != nil {
			return ToolShowProductDetails, datatypes.ToolResult{}, err
		}
	}

	return ToolShowProductDetails, datatypes.ToolResult{Details: &datatypes.DetailsResult{
		Product:         &product,
		Recommendations: recs,
		Validation: datatypes.ValidationInfo{
			Valid:          true,
			ProductExists:  true,
			InRecentSearch: true,
		},
	}}, nil
}

func (e *Executor) addToCart(ctx context.Context, sessionID string, params datatypes.ToolParams) (string, datatypes.ToolResult, error) {
	validation := e.tracker.Validate(sessionID, params.ProductID)
	if !validation.Valid {
		return ToolAddToCart, datatypes.ErrorResult(validationError(params.ProductID, validation)), nil
	}

	res, err := e.catalog.AddToCart(ctx, sessionID, params.ProductID, params.Quantity)
	switch {
	case errors.Is(err, store.ErrProductNotFound):
		return ToolAddToCart, datatypes.ErrorResult(datatypes.NewNotFoundError(params.ProductID)), nil
	case errors.Is(err, catalog.ErrInsufficientStock):
		return ToolAddToCart, datatypes.ErrorResult(datatypes.NewResourceError("insufficient stock for requested quantity")), nil
	case err != nil:
		return ToolAddToCart, datatypes.ToolResult{}, err
	}
	return ToolAddToCart, datatypes.ToolResult{Cart: &res}, nil
}

func (e *Executor) updateCart(ctx context.Context, sessionID string, params datatypes.ToolParams) (string, datatypes.ToolResult, error) {
	if params.ProductID == "" || params.Delta == 0 {
		res, err := e.catalog.GetCart(ctx, sessionID)
		if err != nil {
			return ToolUpdateCart, datatypes.ToolResult{}, err
		}
		return ToolUpdateCart, datatypes.ToolResult{Cart: &res}, nil
	}

	// Adjusting or removing an existing line never validates, so quantities
	// of recommendation-added items stay manageable. Only creating a new
	// line checks the context window.
	exists, err := e.catalog.HasCartLine(ctx, sessionID, params.ProductID)
	if err != nil {
		return ToolUpdateCart, datatypes.ToolResult{}, err
	}
	if !exists && params.Delta > 0 {
		validation := e.tracker.Validate(sessionID, params.ProductID)
		if !validation.Valid {
			return ToolUpdateCart, datatypes.ErrorResult(validationError(params.ProductID, validation)), nil
		}
	}

	res, err := e.catalog.UpdateCart(ctx, sessionID, params.ProductID, params.Delta)
	if errors.Is(err, store.ErrProductNotFound) {
		return ToolUpdateCart, datatypes.ErrorResult(datatypes.NewNotFoundError(params.ProductID)), nil
	}
	if err != nil {
		return ToolUpdateCart, datatypes.ToolResult{}, err
	}
	return ToolUpdateCart, datatypes.ToolResult{Cart: &res}, nil
}

func (e *Executor) removeFromCart(ctx context.Context, sessionID string, params datatypes.ToolParams) (string, datatypes.ToolResult, error) {
	productID := params.ProductID
	if productID == "" && params.Query != "" {
		found, err := e.catalog.Search(ctx, catalog.Query{Text: params.Query, Limit: 1})
		if err != nil {
			return ToolRemoveFromCart, datatypes.ToolResult{}, err
		}
		if len(found.Products) > 0 {
			productID = found.Products[0].ID
		}
	}

	if productID == "" {
		res, err := e.catalog.GetCart(ctx, sessionID)
		if err != nil {
			return ToolRemoveFromCart, datatypes.ToolResult{}, err
		}
		return ToolRemoveFromCart, datatypes.ToolResult{Cart: &res}, nil
	}

	// A line already in the cart can always be removed; validation applies
	// only to identifiers the session never put there.
	exists, err := e.catalog.HasCartLine(ctx, sessionID, productID)
	if err != nil {
		return ToolRemoveFromCart, datatypes.ToolResult{}, err
	}
	if !exists {
		validation := e.tracker.Validate(sessionID, productID)
		if !validation.Valid {
			return ToolRemoveFromCart, datatypes.ErrorResult(validationError(productID, validation)), nil
		}
	}

	res, err := e.catalog.RemoveFromCart(ctx, sessionID, productID)
	if err != nil {
		return ToolRemoveFromCart, datatypes.ToolResult{}, err
	}
	return ToolRemoveFromCart, datatypes.ToolResult{Cart: &res}, nil
}

func (e *Executor) getRecommendations(ctx context.Context, sessionID string, params datatypes.ToolParams) (string, datatypes.ToolResult, error) {
	base := strings.TrimSpace(params.BasedOn)
	limit := params.MaxResults
	rctx := datatypes.RecommendationContext{Algorithm: "similar_by_category"}
	var recs []datatypes.Product

	switch {
	case strings.HasPrefix(strings.ToLower(base), "prod_"):
		validation := e.tracker.Validate(sessionID, base)
		if !validation.Valid {
			return ToolGetRecommendations, datatypes.ErrorResult(validationError(base, validation)), nil
		}
		var err error
		recs, err = e.catalog.Recommendations(ctx, base, limit)
		if err != nil {
			return ToolGetRecommendations, datatypes.ToolResult{}, err
		}
		rctx.BasedOnProductID = base

	default:
		if cat, ok := datatypes.ParseCategory(base); ok {
			var err error
			recs, err = e.catalog.RecommendationsByCategory(ctx, cat, limit)
			if err != nil {
				return ToolGetRecommendations, datatypes.ToolResult{}, err
			}
			rctx.BasedOnCategory = string(cat)
			break
		}
		found, err := e.catalog.Search(ctx, catalog.Query{Text: base, Limit: 1})
		if err != nil {
			return ToolGetRecommendations, datatypes.ToolResult{}, err
		}
		if len(found.Products) > 0 {
			pid := found.Products[0].ID
			recs, err = e.catalog.Recommendations(ctx, pid, limit)
			if err != nil {
				return ToolGetRecommendations, datatypes.ToolResult{}, err
			}
			rctx.BasedOnProductID = pid
		}
	}

	if recs == nil {
		recs = []datatypes.Product{}
	}
	// Recommendations count as surfaced identifiers: the user may add one
	// to the cart next.
	if len(recs) > 0 {
		ids := make([]string, len(recs))
		for i, p := range recs {
			ids[i] = p.ID
		}
		e.tracker.Record(sessionID, "recommendations:"+base, ids)
	}

	return ToolGetRecommendations, datatypes.ToolResult{Recommendations: &datatypes.RecommendationsResult{
		Recommendations: recs,
		Context:         rctx,
	}}, nil
}

func validationError(productID string, v contextwindow.Result) *datatypes.ToolError {
	suggestions := make([]datatypes.Suggestion, len(v.Suggestions))
	for i, s := range v.Suggestions {
		suggestions[i] = datatypes.Suggestion{
			ProductID:  s.ProductID,
			Similarity: s.Similarity,
			Reason:     "similar to a recently seen product",
		}
	}
	return datatypes.NewValidationError(productID, suggestions)
}
