// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleutianai/shopstream/agent"
	"github.com/aleutianai/shopstream/catalog"
	"github.com/aleutianai/shopstream/contextwindow"
	"github.com/aleutianai/shopstream/datatypes"
	"github.com/aleutianai/shopstream/eventbus"
	"github.com/aleutianai/shopstream/store"
)

func newTestRegistry(t *testing.T, ttl time.Duration) (*Registry, *eventbus.Bus, *catalog.Service) {
	t.Helper()
	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.PutProduct(context.Background(), datatypes.Product{
		ID: "prod_1", Name: "Wireless Headphones", Price: 149.99,
		Category: datatypes.CategoryElectronics, InStock: true, StockQuantity: 10,
	}))

	cat := catalog.NewService(st)
	tracker := contextwindow.New(contextwindow.DefaultConfig())
	bus := eventbus.New(eventbus.DefaultConfig())
	orch := agent.NewOrchestrator(bus, agent.NewIntentPlanner(), agent.NewExecutor(cat, tracker), agent.NewSimulatedNarrator())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRegistry(ctx, bus, tracker, cat, orch, ttl), bus, cat
}

func TestCreateAndGet(t *testing.T) {
	reg, _, _ := newTestRegistry(t, time.Hour)

	s := reg.Create()
	assert.NotEmpty(t, s.ID)
	assert.True(t, s.ExpiresAt.After(s.CreatedAt))

	got, err := reg.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetExpiredSessionIsTornDown(t *testing.T) {
	reg, bus, _ := newTestRegistry(t, time.Hour)
	s := reg.Create()

	reg.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err := reg.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, reg.Len())

	// The cascade closed the bus queue too.
	_, err = bus.Subscribe(s.ID)
	assert.ErrorIs(t, err, eventbus.ErrUnknownSession)
}

func TestEnqueueRunsTurnOnWorker(t *testing.T) {
	reg, bus, _ := newTestRegistry(t, time.Hour)
	s := reg.Create()

	sub, err := bus.Subscribe(s.ID)
	require.NoError(t, err)

	require.NoError(t, reg.Enqueue(s.ID, Message{ID: "m1", Content: "search headphones"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var sawCall, sawDone bool
	for !sawDone {
		ev, err := sub.Next(ctx)
		require.NoError(t, err)
		switch ev.Type {
		case datatypes.EventFunctionCall:
			sawCall = true
		case datatypes.EventCompletion:
			sawDone = true
		}
	}
	assert.True(t, sawCall)
}

func TestTurnsRunInArrivalOrder(t *testing.T) {
	reg, bus, _ := newTestRegistry(t, time.Hour)
	s := reg.Create()
	sub, err := bus.Subscribe(s.ID)
	require.NoError(t, err)

	// The search surfaces prod_1; the dependent add must see that context,
	// which only holds if turns run strictly in arrival order.
	require.NoError(t, reg.Enqueue(s.ID, Message{ID: "m1", Content: "search headphones"}))
	require.NoError(t, reg.Enqueue(s.ID, Message{ID: "m2", Content: "add prod_1 to cart"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var calls []datatypes.FunctionCall
	for len(calls) < 2 {
		ev, err := sub.Next(ctx)
		require.NoError(t, err)
		if ev.Type == datatypes.EventFunctionCall {
			calls = append(calls, *ev.Call)
		}
	}

	assert.Equal(t, agent.ToolSearchProducts, calls[0].Function)
	assert.Equal(t, agent.ToolAddToCart, calls[1].Function)
	require.NotNil(t, calls[1].Result.Cart, "add must succeed after the search surfaced the id")
}

func TestDeleteCascades(t *testing.T) {
	reg, bus, cat := newTestRegistry(t, time.Hour)
	s := reg.Create()
	ctx := context.Background()

	_, err := cat.AddToCart(ctx, s.ID, "prod_1", 1)
	require.NoError(t, err)

	reg.Delete(ctx, s.ID)

	_, err = reg.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = bus.Subscribe(s.ID)
	assert.ErrorIs(t, err, eventbus.ErrUnknownSession)

	cart, err := cat.GetCart(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestClaimWelcomeOnce(t *testing.T) {
	reg, _, _ := newTestRegistry(t, time.Hour)
	s := reg.Create()
	assert.True(t, s.ClaimWelcome())
	assert.False(t, s.ClaimWelcome())
}
