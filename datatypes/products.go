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

import (
	"strings"
	"time"
)

// =============================================================================
// Catalog Types
// =============================================================================

// Category labels a product. Values are uppercase to match the catalog
// store's enum labels.
type Category string

const (
	CategoryElectronics Category = "ELECTRONICS"
	CategoryClothing    Category = "CLOTHING"
	CategoryHome        Category = "HOME"
	CategoryBooks       Category = "BOOKS"
	CategorySports      Category = "SPORTS"
	CategoryBeauty      Category = "BEAUTY"
	CategoryOther       Category = "OTHER"
)

// Categories lists all known categories in declaration order.
func Categories() []Category {
	return []Category{
		CategoryElectronics, CategoryClothing, CategoryHome,
		CategoryBooks, CategorySports, CategoryBeauty, CategoryOther,
	}
}

// ParseCategory normalizes free text into a Category. Unknown values return
// ("", false) rather than an error so planners can ignore them.
func ParseCategory(s string) (Category, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	for _, c := range Categories() {
		if string(c) == norm {
			return c, true
		}
	}
	return "", false
}

// Product is one catalog item record as persisted by the catalog store.
type Product struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Price         float64  `json:"price"`
	Category      Category `json:"category"`
	ImageURL      string   `json:"image_url,omitempty"`
	InStock       bool     `json:"in_stock"`
	StockQuantity int      `json:"stock_quantity"`
	Rating        float64  `json:"rating,omitempty"`
	ReviewsCount  int      `json:"reviews_count,omitempty"`
}

// =============================================================================
// Cart Types
// =============================================================================

// CartLine is one product line in a session's cart. Quantity is always > 0;
// a mutation that would drive it to zero removes the line instead.
// LineTotal is recomputed on every mutation, never stored stale.
type CartLine struct {
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	LineTotal   float64   `json:"total_price"`
	AddedAt     time.Time `json:"added_at"`
}

// CartSummary is derived from the current lines on every observation;
// EstimatedTotal = Subtotal + EstimatedTax with a fixed tax rate.
type CartSummary struct {
	TotalItems     int     `json:"total_items"`
	TotalProducts  int     `json:"total_products"`
	Subtotal       float64 `json:"subtotal"`
	EstimatedTax   float64 `json:"estimated_tax"`
	EstimatedTotal float64 `json:"estimated_total"`
}

// =============================================================================
// Normalized Tool Results
// =============================================================================

// SearchContext echoes the effective query back to the client, including
// any fuzzy correction that was applied.
type SearchContext struct {
	Query          string `json:"query"`
	Category       string `json:"category,omitempty"`
	CorrectedQuery string `json:"corrected_query,omitempty"`
}

// SearchResult is the success payload of the search tool.
type SearchResult struct {
	Products     []Product     `json:"products"`
	TotalResults int           `json:"total_results"`
	Context      SearchContext `json:"search_context"`
}

// ValidationInfo reports the context-tracker decision for an identifier.
type ValidationInfo struct {
	Valid          bool         `json:"valid"`
	ProductExists  bool         `json:"product_exists,omitempty"`
	InRecentSearch bool         `json:"in_recent_search,omitempty"`
	Suggestions    []Suggestion `json:"suggestions,omitempty"`
	RecentQueries  []string     `json:"recent_searches,omitempty"`
}

// Suggestion is one near-miss identifier offered when validation fails.
type Suggestion struct {
	ProductID  string  `json:"product_id"`
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason"`
}

// DetailsResult is the success payload of the show_product_details tool.
type DetailsResult struct {
	Product         *Product       `json:"product"`
	Recommendations []Product      `json:"recommendations"`
	Validation      ValidationInfo `json:"validation"`
}

// CartResult is the success payload of every cart-mutating tool plus
// get_cart. Line is set only by add_to_cart (the new or merged line).
type CartResult struct {
	Line    *CartLine   `json:"cart_item,omitempty"`
	Items   []CartLine  `json:"items"`
	Summary CartSummary `json:"cart_summary"`
}

// RecommendationContext describes how a recommendation list was derived.
type RecommendationContext struct {
	Algorithm        string `json:"algorithm"`
	BasedOnProductID string `json:"based_on_product_id,omitempty"`
	BasedOnCategory  string `json:"based_on_category,omitempty"`
}

// RecommendationsResult is the success payload of get_recommendations.
type RecommendationsResult struct {
	Recommendations []Product             `json:"recommendations"`
	Context         RecommendationContext `json:"recommendation_context"`
}

// ToolResult is the normalized result carried by every FunctionCall event
// and every direct tool endpoint: exactly one field is populated, either the
// success payload matching the tool or Error.
type ToolResult struct {
	Search          *SearchResult          `json:"search,omitempty"`
	Details         *DetailsResult         `json:"details,omitempty"`
	Cart            *CartResult            `json:"cart,omitempty"`
	Recommendations *RecommendationsResult `json:"recommendations,omitempty"`
	Error           *ToolError             `json:"error,omitempty"`
}

// ToolParams is the structured parameter set a planner produces. Fields not
// used by the planned tool stay zero and are omitted on the wire.
type ToolParams struct {
	Query                  string   `json:"query,omitempty"`
	Category               string   `json:"category,omitempty"`
	Limit                  int      `json:"limit,omitempty"`
	PriceMin               *float64 `json:"price_min,omitempty"`
	PriceMax               *float64 `json:"price_max,omitempty"`
	ProductID              string   `json:"product_id,omitempty"`
	Quantity               int      `json:"quantity,omitempty"`
	Delta                  int      `json:"delta,omitempty"`
	BasedOn                string   `json:"based_on,omitempty"`
	MaxResults             int      `json:"max_results,omitempty"`
	IncludeRecommendations bool     `json:"include_recommendations,omitempty"`
}
