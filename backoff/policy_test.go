// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDelayDoublesAndCaps(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second, MaxAttempts: 8}

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		10 * time.Second, 10 * time.Second,
	}
	for attempt, expected := range want {
		d, ok := p.NextDelay(attempt)
		require.True(t, ok, "attempt %d", attempt)
		assert.Equal(t, expected, d, "attempt %d", attempt)
	}
}

func TestNextDelayExhaustsAttempts(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Minute, MaxAttempts: 3}

	_, ok := p.NextDelay(2)
	assert.True(t, ok)
	_, ok = p.NextDelay(3)
	assert.False(t, ok)
}

func TestNextDelayUnboundedAttempts(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	d, ok := p.NextDelay(100)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, d)
}

func TestNextDelayNegativeAttempt(t *testing.T) {
	_, ok := Default().NextDelay(-1)
	assert.False(t, ok)
}
