// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCacheTTL is how long search and recommendation results stay fresh.
const DefaultCacheTTL = 60 * time.Second

// ResultCache is a small per-process TTL cache for read-path results.
//
// # Description
//
// Entries expire TTL after they were written; expiry is enforced lazily on
// read, so a stale entry costs one map delete on its next lookup. Writes
// after cart or catalog mutations are not invalidated here; staleness is
// bounded by the TTL, which is the contract callers accept.
//
// # Thread Safety
//
// Safe for concurrent use.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration

	hits   atomic.Int64
	misses atomic.Int64

	// now is swapped in tests.
	now func() time.Time
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// NewResultCache creates a cache. A non-positive ttl falls back to the
// 60 second default.
func NewResultCache(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResultCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value for key, or (nil, false) when absent or
// expired. An expired entry is evicted on the way out.
func (c *ResultCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set stores a value under key with the cache's TTL.
func (c *ResultCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Stats returns the cumulative hit and miss counts, for metrics export.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// cacheKey builds a deterministic key from an operation name and its
// arguments: fields sorted by name, values lowercased. Two calls with the
// same effective arguments always share a key.
func cacheKey(op string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(op)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.ToLower(fmt.Sprint(args[k])))
	}
	return b.String()
}
