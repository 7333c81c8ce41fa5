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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSearchWithPriceRange(t *testing.T) {
	p := NewIntentPlanner()

	plan, ok := p.Plan("search headphones between $50 and $200")
	require.True(t, ok)
	assert.Equal(t, ToolSearchProducts, plan.Tool)
	assert.Equal(t, "headphones", plan.Params.Query)
	require.NotNil(t, plan.Params.PriceMin)
	require.NotNil(t, plan.Params.PriceMax)
	assert.Equal(t, 50.0, *plan.Params.PriceMin)
	assert.Equal(t, 200.0, *plan.Params.PriceMax)
	assert.Equal(t, 10, plan.Params.Limit)
}

func TestPlanSearchUnderAndOver(t *testing.T) {
	p := NewIntentPlanner()

	plan, ok := p.Plan("search speakers under $100")
	require.True(t, ok)
	require.NotNil(t, plan.Params.PriceMax)
	assert.Equal(t, 100.0, *plan.Params.PriceMax)
	assert.Nil(t, plan.Params.PriceMin)

	plan, ok = p.Plan("search watches over $150")
	require.True(t, ok)
	require.NotNil(t, plan.Params.PriceMin)
	assert.Equal(t, 150.0, *plan.Params.PriceMin)
	assert.Nil(t, plan.Params.PriceMax)
}

func TestPlanSearchCategoryAndStopwords(t *testing.T) {
	p := NewIntentPlanner()

	plan, ok := p.Plan("show me electronics for the office")
	require.True(t, ok)
	assert.Equal(t, ToolSearchProducts, plan.Tool)
	assert.Equal(t, "ELECTRONICS", plan.Params.Category)
	// "show", "me", "for", "the" are stopwords; "electronics" was consumed
	// by the category rule.
	assert.Equal(t, "office", plan.Params.Query)
}

func TestPlanDetails(t *testing.T) {
	p := NewIntentPlanner()

	plan, ok := p.Plan("show details for prod_3")
	require.True(t, ok)
	assert.Equal(t, ToolShowProductDetails, plan.Tool)
	assert.Equal(t, "prod_3", plan.Params.ProductID)
	assert.True(t, plan.Params.IncludeRecommendations)

	plan, ok = p.Plan("details of running shoes")
	require.True(t, ok)
	assert.Equal(t, ToolShowProductDetails, plan.Tool)
	assert.Empty(t, plan.Params.ProductID)
	assert.Equal(t, "running shoes", plan.Params.Query)
}

func TestPlanAddToCart(t *testing.T) {
	p := NewIntentPlanner()

	plan, ok := p.Plan("add prod_2 to cart")
	require.True(t, ok)
	assert.Equal(t, ToolAddToCart, plan.Tool)
	assert.Equal(t, "prod_2", plan.Params.ProductID)
	assert.Equal(t, 1, plan.Params.Quantity)
}

func TestPlanRecommendations(t *testing.T) {
	p := NewIntentPlanner()

	plan, ok := p.Plan("recommend something like prod_5")
	require.True(t, ok)
	assert.Equal(t, ToolGetRecommendations, plan.Tool)
	assert.Equal(t, "prod_5", plan.Params.BasedOn)
	assert.Equal(t, 5, plan.Params.MaxResults)
}

func TestPlanViewCart(t *testing.T) {
	p := NewIntentPlanner()
	for _, msg := range []string{"show cart", "view cart", "my cart", "cart", "what items in cart"} {
		plan, ok := p.Plan(msg)
		require.True(t, ok, msg)
		assert.Equal(t, ToolGetCart, plan.Tool, msg)
	}
}

func TestPlanRemoveFromCart(t *testing.T) {
	p := NewIntentPlanner()

	plan, ok := p.Plan("remove prod_4 from cart")
	require.True(t, ok)
	assert.Equal(t, ToolRemoveFromCart, plan.Tool)
	assert.Equal(t, "prod_4", plan.Params.ProductID)

	// No identifier: the last word becomes a lookup query.
	plan, ok = p.Plan("remove from cart headphones")
	require.True(t, ok)
	assert.Equal(t, ToolRemoveFromCart, plan.Tool)
	assert.Equal(t, "headphones", plan.Params.Query)
}

func TestPlanUpdateCartDelta(t *testing.T) {
	p := NewIntentPlanner()

	plan, ok := p.Plan("update cart prod_1 +2")
	require.True(t, ok)
	assert.Equal(t, ToolUpdateCart, plan.Tool)
	assert.Equal(t, "prod_1", plan.Params.ProductID)
	assert.Equal(t, 2, plan.Params.Delta)

	plan, ok = p.Plan("update cart prod_1 -3")
	require.True(t, ok)
	assert.Equal(t, -3, plan.Params.Delta)
}

func TestPlanDefaultsToSearch(t *testing.T) {
	p := NewIntentPlanner()
	plan, ok := p.Plan("wireless headphones")
	require.True(t, ok)
	assert.Equal(t, ToolSearchProducts, plan.Tool)
	assert.Equal(t, "wireless headphones", plan.Params.Query)
}

func TestPlanEmptyText(t *testing.T) {
	p := NewIntentPlanner()
	_, ok := p.Plan("   ")
	assert.False(t, ok)
}

func TestPlanIsDeterministic(t *testing.T) {
	p := NewIntentPlanner()
	first, ok := p.Plan("search books under $20")
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, ok := p.Plan("search books under $20")
		require.True(t, ok)
		assert.Equal(t, first, again)
	}
}
