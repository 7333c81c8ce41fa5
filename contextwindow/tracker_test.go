// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package contextwindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker() (*Tracker, *time.Time) {
	tr := New(DefaultConfig())
	now := time.Now()
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestValidateKnownProduct(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Record("sess", "headphones", []string{"prod_1", "prod_2"})

	res := tr.Validate("sess", "prod_1")
	assert.True(t, res.Valid)
	assert.Equal(t, "headphones", res.MatchedQuery)
	assert.Equal(t, []string{"headphones"}, res.RecentQueries)
}

func TestValidateUnknownProductSuggests(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Record("sess", "headphones", []string{"prod_123", "prod_456"})

	res := tr.Validate("sess", "prod_999")
	require.False(t, res.Valid)
	require.NotEmpty(t, res.Suggestions, "suggestions must come from the window")
	for _, s := range res.Suggestions {
		assert.GreaterOrEqual(t, s.Similarity, 0.5)
	}
	assert.Equal(t, []string{"headphones"}, res.RecentQueries)
}

func TestValidateIsScopedPerSession(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Record("sess-a", "headphones", []string{"prod_1"})

	assert.False(t, tr.Validate("sess-b", "prod_1").Valid)
}

func TestValidateWindowExpiry(t *testing.T) {
	tr, now := newTestTracker()
	tr.Record("sess", "headphones", []string{"prod_1"})

	// 29 minutes later: still inside the 30 minute window.
	*now = now.Add(29 * time.Minute)
	assert.True(t, tr.Validate("sess", "prod_1").Valid)

	// 31 minutes after recording: outside the window, entry still retained
	// (horizon is 2h), so it can't validate but also isn't swept.
	*now = now.Add(2 * time.Minute)
	res := tr.Validate("sess", "prod_1")
	assert.False(t, res.Valid)
	assert.Empty(t, res.Suggestions, "expired entries contribute no suggestions")
}

func TestSweepHonorsCleanupHorizon(t *testing.T) {
	tr, now := newTestTracker()
	tr.Record("sess", "old", []string{"prod_1"})

	*now = now.Add(110 * time.Minute)
	tr.Record("sess", "new", []string{"prod_2"})

	// First entry is 110m old: outside the window but inside the 2h horizon.
	assert.Zero(t, tr.Sweep())

	*now = now.Add(15 * time.Minute)
	// Now 125m old: past the horizon. The 15m-old entry stays.
	assert.Equal(t, 1, tr.Sweep())
	assert.Equal(t, []string{"new"}, tr.RecentQueries("sess"))
}

func TestSuggestionsRankedAndCapped(t *testing.T) {
	tr := New(Config{MaxSuggestions: 2, SuggestionThreshold: 0.1})
	tr.Record("sess", "q", []string{"prod_12", "prod_1234", "prod_9", "prod_123", "zzz"})

	res := tr.Validate("sess", "prod_123x")
	require.False(t, res.Valid)
	require.Len(t, res.Suggestions, 2)
	assert.GreaterOrEqual(t, res.Suggestions[0].Similarity, res.Suggestions[1].Similarity)
}

func TestRecentProductIDsMostRecentFirst(t *testing.T) {
	tr, now := newTestTracker()
	tr.Record("sess", "first", []string{"prod_1", "prod_2"})
	*now = now.Add(time.Minute)
	tr.Record("sess", "second", []string{"prod_3", "prod_1"})

	ids := tr.RecentProductIDs("sess", 10)
	assert.Equal(t, []string{"prod_3", "prod_1", "prod_2"}, ids)

	capped := tr.RecentProductIDs("sess", 2)
	assert.Equal(t, []string{"prod_3", "prod_1"}, capped)
}

func TestForgetDropsSession(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Record("sess", "q", []string{"prod_1"})
	tr.Forget("sess")

	assert.False(t, tr.Validate("sess", "prod_1").Valid)
	assert.Empty(t, tr.RecentQueries("sess"))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("prod_1", "prod_1"))
	assert.Equal(t, 1.0, Similarity("prod_12", "prod_21"), "character sets are order-insensitive")
	assert.Less(t, Similarity("prod_1", "zzz"), 0.5)
	assert.Greater(t, Similarity("prod_123", "prod_124"), 0.5)
}
