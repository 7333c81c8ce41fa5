// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists the catalog and per-session cart lines.
//
// Two implementations ship: Memory (tests, lightweight mode) and Badger
// (embedded persistent storage). The store is the only resource shared by
// concurrent sessions; both implementations serialize conflicting cart
// mutations per entity, Memory under a mutex and Badger through its
// transaction discipline.
package store

import (
	"context"
	"errors"

	"github.com/aleutianai/shopstream/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrProductNotFound marks an identifier absent from the catalog.
	ErrProductNotFound = errors.New("store: product not found")

	// ErrCartLineNotFound marks a missing cart line for a session/product.
	ErrCartLineNotFound = errors.New("store: cart line not found")
)

// =============================================================================
// Interface
// =============================================================================

// CatalogStore is the persistence contract shared by the catalog service
// and the direct tool endpoints.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use across sessions. Product
// reads dominate; cart mutations for one (session, product) pair must be
// serialized by the implementation.
type CatalogStore interface {
	// GetProduct fetches one product. Returns ErrProductNotFound when absent.
	GetProduct(ctx context.Context, id string) (datatypes.Product, error)

	// ListProducts returns the full catalog in deterministic (ID) order.
	// Used to build the fuzzy token corpus and to scan for matches.
	ListProducts(ctx context.Context) ([]datatypes.Product, error)

	// PutProduct inserts or replaces a product. Used by seeding.
	PutProduct(ctx context.Context, p datatypes.Product) error

	// GetCartLine fetches one session's line for a product.
	// Returns ErrCartLineNotFound when absent.
	GetCartLine(ctx context.Context, sessionID, productID string) (datatypes.CartLine, error)

	// PutCartLine inserts or replaces a session's line for a product.
	PutCartLine(ctx context.Context, sessionID string, line datatypes.CartLine) error

	// DeleteCartLine removes a session's line for a product. Deleting a
	// missing line is a no-op.
	DeleteCartLine(ctx context.Context, sessionID, productID string) error

	// ListCartLines returns a session's lines ordered by AddedAt, then
	// product ID for equal timestamps.
	ListCartLines(ctx context.Context, sessionID string) ([]datatypes.CartLine, error)

	// ClearCart removes every line for a session (session delete cascade).
	ClearCart(ctx context.Context, sessionID string) error

	// Close releases underlying resources.
	Close() error
}
