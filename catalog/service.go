// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog implements product search with fuzzy correction, result
// caching, recommendations, and cart arithmetic over a store.CatalogStore.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/aleutianai/shopstream/datatypes"
	"github.com/aleutianai/shopstream/store"
)

// TaxRate is the flat estimated sales tax applied to cart subtotals.
const TaxRate = 0.10

// DefaultSearchLimit applies when a search request carries no limit.
const DefaultSearchLimit = 10

// ErrInsufficientStock is returned when an add would exceed the product's
// available stock or the product is out of stock entirely.
var ErrInsufficientStock = errors.New("catalog: insufficient stock")

// Query is the filter set for a product search.
type Query struct {
	Text     string
	Category string
	PriceMin *float64
	PriceMax *float64
	Limit    int
}

// Service is the catalog's read and cart-mutation surface. All methods are
// safe for concurrent use; cart mutations for the same line are serialized
// by the underlying store.
type Service struct {
	store store.CatalogStore
	cache *ResultCache

	fuzzyMu      sync.Mutex
	fuzzy        *FuzzyIndex
	fuzzyBuiltAt time.Time
	fuzzyTTL     time.Duration

	now func() time.Time
}

// NewService creates a Service over a store with a fresh 60-second cache.
func NewService(st store.CatalogStore) *Service {
	return &Service{
		store:    st,
		cache:    NewResultCache(DefaultCacheTTL),
		fuzzyTTL: DefaultCacheTTL,
		now:      time.Now,
	}
}

// Cache exposes the result cache for metrics export.
func (s *Service) Cache() *ResultCache { return s.cache }

// =============================================================================
// Search
// =============================================================================

// Search finds in-stock products matching the query.
//
// # Description
//
// The primary pass substring-matches name and description case-insensitively
// with the price and category filters applied. When it comes back empty two
// fallbacks run in order: plural-to-singular (trailing 's' stripped), then
// per-token fuzzy correction against the catalog's name vocabulary. A
// correction that changed the query is echoed in the result's
// search_context.corrected_query. Results are cached for 60 seconds keyed by
// the normalized filter set.
func (s *Service) Search(ctx context.Context, q Query) (datatypes.SearchResult, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.PriceMin != nil && q.PriceMax != nil && *q.PriceMin > *q.PriceMax {
		q.PriceMin, q.PriceMax = q.PriceMax, q.PriceMin
	}
	if cat, ok := datatypes.ParseCategory(q.Category); ok {
		q.Category = string(cat)
	} else {
		q.Category = ""
	}

	key := cacheKey("search", map[string]any{
		"query":    strings.TrimSpace(strings.ToLower(q.Text)),
		"category": q.Category,
		"limit":    q.Limit,
		"pmin":     derefOrNil(q.PriceMin),
		"pmax":     derefOrNil(q.PriceMax),
	})
	if v, ok := s.cache.Get(key); ok {
		return v.(datatypes.SearchResult), nil
	}

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return datatypes.SearchResult{}, err
	}

	text := strings.TrimSpace(strings.ToLower(q.Text))
	matched := filterProducts(products, text, q)
	corrected := ""

	if len(matched) == 0 && strings.HasSuffix(text, "s") {
		matched = filterProducts(products, strings.TrimSuffix(text, "s"), q)
	}
	if len(matched) == 0 && text != "" {
		idx, err := s.fuzzyIndex(ctx)
		if err != nil {
			return datatypes.SearchResult{}, err
		}
		if fixed := idx.Correct(text); fixed != "" && fixed != text {
			matched = filterProducts(products, fixed, q)
			if len(matched) > 0 {
				corrected = fixed
			}
		}
	}

	res := datatypes.SearchResult{
		Products:     matched,
		TotalResults: len(matched),
		Context: datatypes.SearchContext{
			Query:          q.Text,
			Category:       q.Category,
			CorrectedQuery: corrected,
		},
	}
	slog.Debug("catalog search", "query", q.Text, "results", len(matched), "corrected", corrected)
	s.cache.Set(key, res)
	return res, nil
}

// filterProducts applies the in-stock, text, price, and category filters and
// truncates to the limit. Input order (store's deterministic ID order) is
// preserved.
func filterProducts(products []datatypes.Product, text string, q Query) []datatypes.Product {
	var out []datatypes.Product
	for _, p := range products {
		if !p.InStock {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(p.Name), text) &&
			!strings.Contains(strings.ToLower(p.Description), text) {
			continue
		}
		if q.PriceMin != nil && p.Price < *q.PriceMin {
			continue
		}
		if q.PriceMax != nil && p.Price > *q.PriceMax {
			continue
		}
		if q.Category != "" && string(p.Category) != q.Category {
			continue
		}
		out = append(out, p)
		if len(out) >= q.Limit {
			break
		}
	}
	return out
}

// fuzzyIndex returns the token index, rebuilding it when stale.
func (s *Service) fuzzyIndex(ctx context.Context) (*FuzzyIndex, error) {
	s.fuzzyMu.Lock()
	defer s.fuzzyMu.Unlock()
	if s.fuzzy != nil && s.now().Sub(s.fuzzyBuiltAt) < s.fuzzyTTL {
		return s.fuzzy, nil
	}
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(products))
	for i, p := range products {
		names[i] = p.Name
	}
	s.fuzzy = NewFuzzyIndex(names)
	s.fuzzyBuiltAt = s.now()
	return s.fuzzy, nil
}

// =============================================================================
// Lookup & Recommendations
// =============================================================================

// Get fetches one product. Returns store.ErrProductNotFound when absent.
func (s *Service) Get(ctx context.Context, id string) (datatypes.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// Recommendations returns up to limit in-stock products sharing the base
// product's category, excluding the base itself. An unknown base yields an
// empty list, not an error.
func (s *Service) Recommendations(ctx context.Context, baseID string, limit int) ([]datatypes.Product, error) {
	if limit <= 0 {
		limit = 5
	}
	key := cacheKey("recs", map[string]any{"based_on": baseID, "limit": limit})
	if v, ok := s.cache.Get(key); ok {
		return v.([]datatypes.Product), nil
	}

	base, err := s.store.GetProduct(ctx, baseID)
	if errors.Is(err, store.ErrProductNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	var out []datatypes.Product
	for _, p := range products {
		if p.ID == base.ID || !p.InStock || p.Category != base.Category {
			continue
		}
		out = append(out, p)
		if len(out) >= limit {
			break
		}
	}
	s.cache.Set(key, out)
	return out, nil
}

// RecommendationsByCategory returns up to limit in-stock products in a
// category.
func (s *Service) RecommendationsByCategory(ctx context.Context, category datatypes.Category, limit int) ([]datatypes.Product, error) {
	if limit <= 0 {
		limit = 5
	}
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	var out []datatypes.Product
	for _, p := range products {
		if !p.InStock || p.Category != category {
			continue
		}
		out = append(out, p)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// =============================================================================
// Cart
// =============================================================================

// AddToCart adds quantity of a product to the session's cart.
//
// # Description
//
// Lines are merged per product: adding 2 then 3 of the same product leaves
// one line with quantity 5 and the original added_at. The line total is
// recomputed from the merged quantity. Adds that exceed available stock
// return ErrInsufficientStock without touching the cart.
func (s *Service) AddToCart(ctx context.Context, sessionID, productID string, quantity int) (datatypes.CartResult, error) {
	if quantity < 1 {
		quantity = 1
	}
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return datatypes.CartResult{}, err
	}

	line, err := s.store.GetCartLine(ctx, sessionID, productID)
	switch {
	case err == nil:
		line.Quantity += quantity
	case errors.Is(err, store.ErrCartLineNotFound):
		line = datatypes.CartLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    quantity,
			UnitPrice:   product.Price,
			AddedAt:     s.now().UTC(),
		}
	default:
		return datatypes.CartResult{}, err
	}

	if !product.InStock || product.StockQuantity < line.Quantity {
		return datatypes.CartResult{}, ErrInsufficientStock
	}

	line.LineTotal = round2(line.UnitPrice * float64(line.Quantity))
	if err := s.store.PutCartLine(ctx, sessionID, line); err != nil {
		return datatypes.CartResult{}, err
	}
	return s.cartResult(ctx, sessionID, &line)
}

// HasCartLine reports whether the session already holds a line for the
// product. Callers use it to decide whether an update creates a new line.
func (s *Service) HasCartLine(ctx context.Context, sessionID, productID string) (bool, error) {
	_, err := s.store.GetCartLine(ctx, sessionID, productID)
	if errors.Is(err, store.ErrCartLineNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateCart adjusts a line's quantity by delta.
//
// # Description
//
// An existing line moves to quantity+delta; zero or below removes the line.
// A missing line with positive delta is created (the caller validates the
// identifier in that case); a missing line with non-positive delta is a
// no-op. The updated cart is returned either way.
func (s *Service) UpdateCart(ctx context.Context, sessionID, productID string, delta int) (datatypes.CartResult, error) {
	line, err := s.store.GetCartLine(ctx, sessionID, productID)
	switch {
	case errors.Is(err, store.ErrCartLineNotFound):
		if delta <= 0 {
			return s.cartResult(ctx, sessionID, nil)
		}
		product, err := s.store.GetProduct(ctx, productID)
		if err != nil {
			return datatypes.CartResult{}, err
		}
		line = datatypes.CartLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    delta,
			UnitPrice:   product.Price,
			LineTotal:   round2(product.Price * float64(delta)),
			AddedAt:     s.now().UTC(),
		}
		if err := s.store.PutCartLine(ctx, sessionID, line); err != nil {
			return datatypes.CartResult{}, err
		}
	case err != nil:
		return datatypes.CartResult{}, err
	default:
		newQty := line.Quantity + delta
		if newQty <= 0 {
			if err := s.store.DeleteCartLine(ctx, sessionID, productID); err != nil {
				return datatypes.CartResult{}, err
			}
		} else {
			line.Quantity = newQty
			line.LineTotal = round2(line.UnitPrice * float64(newQty))
			if err := s.store.PutCartLine(ctx, sessionID, line); err != nil {
				return datatypes.CartResult{}, err
			}
		}
	}
	return s.cartResult(ctx, sessionID, nil)
}

// RemoveFromCart deletes a session's line for a product. Removing a missing
// line is a no-op; the current cart is returned either way.
func (s *Service) RemoveFromCart(ctx context.Context, sessionID, productID string) (datatypes.CartResult, error) {
	if err := s.store.DeleteCartLine(ctx, sessionID, productID); err != nil {
		return datatypes.CartResult{}, err
	}
	return s.cartResult(ctx, sessionID, nil)
}

// GetCart returns the session's lines and recomputed summary.
func (s *Service) GetCart(ctx context.Context, sessionID string) (datatypes.CartResult, error) {
	return s.cartResult(ctx, sessionID, nil)
}

// ClearCart drops every line for the session (delete cascade).
func (s *Service) ClearCart(ctx context.Context, sessionID string) error {
	return s.store.ClearCart(ctx, sessionID)
}

func (s *Service) cartResult(ctx context.Context, sessionID string, line *datatypes.CartLine) (datatypes.CartResult, error) {
	items, err := s.store.ListCartLines(ctx, sessionID)
	if err != nil {
		return datatypes.CartResult{}, err
	}
	if items == nil {
		items = []datatypes.CartLine{}
	}
	return datatypes.CartResult{
		Line:    line,
		Items:   items,
		Summary: Summarize(items),
	}, nil
}

// Summarize derives the cart summary from its lines: subtotal is the sum of
// line totals, tax is a flat 10% of the subtotal, both rounded to cents.
func Summarize(items []datatypes.CartLine) datatypes.CartSummary {
	var totalItems int
	var subtotal float64
	for _, it := range items {
		totalItems += it.Quantity
		subtotal += it.LineTotal
	}
	subtotal = round2(subtotal)
	return datatypes.CartSummary{
		TotalItems:     totalItems,
		TotalProducts:  len(items),
		Subtotal:       subtotal,
		EstimatedTax:   round2(subtotal * TaxRate),
		EstimatedTotal: round2(subtotal * (1 + TaxRate)),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func derefOrNil(p *float64) any {
	if p == nil {
		return "<nil>"
	}
	return *p
}
