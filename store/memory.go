// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/aleutianai/shopstream/datatypes"
)

// Memory is the in-process CatalogStore used by tests and by the
// lightweight deployment mode (STORE_BACKEND=memory). A single RWMutex
// serializes all mutations, which trivially satisfies the per-entity
// serialization requirement.
type Memory struct {
	mu       sync.RWMutex
	products map[string]datatypes.Product
	// carts is sessionID -> productID -> line.
	carts map[string]map[string]datatypes.CartLine
}

var _ CatalogStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		products: make(map[string]datatypes.Product),
		carts:    make(map[string]map[string]datatypes.CartLine),
	}
}

func (m *Memory) GetProduct(_ context.Context, id string) (datatypes.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return datatypes.Product{}, ErrProductNotFound
	}
	return p, nil
}

func (m *Memory) ListProducts(_ context.Context) ([]datatypes.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]datatypes.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) PutProduct(_ context.Context, p datatypes.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *Memory) GetCartLine(_ context.Context, sessionID, productID string) (datatypes.CartLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	line, ok := m.carts[sessionID][productID]
	if !ok {
		return datatypes.CartLine{}, ErrCartLineNotFound
	}
	return line, nil
}

func (m *Memory) PutCartLine(_ context.Context, sessionID string, line datatypes.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[sessionID]
	if !ok {
		cart = make(map[string]datatypes.CartLine)
		m.carts[sessionID] = cart
	}
	cart[line.ProductID] = line
	return nil
}

func (m *Memory) DeleteCartLine(_ context.Context, sessionID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts[sessionID], productID)
	return nil
}

func (m *Memory) ListCartLines(_ context.Context, sessionID string) ([]datatypes.CartLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cart := m.carts[sessionID]
	out := make([]datatypes.CartLine, 0, len(cart))
	for _, line := range cart {
		out = append(out, line)
	}
	sortCartLines(out)
	return out, nil
}

func (m *Memory) ClearCart(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, sessionID)
	return nil
}

func (m *Memory) Close() error { return nil }

// sortCartLines orders lines by AddedAt, product ID breaking ties, so cart
// listings are stable across observations.
func sortCartLines(lines []datatypes.CartLine) {
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].AddedAt.Before(lines[j].AddedAt)
		}
		return lines[i].ProductID < lines[j].ProductID
	})
}
