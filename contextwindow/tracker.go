// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package contextwindow tracks which product identifiers were legitimately
// surfaced to each session, and validates identifiers in tool calls against
// that record. It is the anti-hallucination layer: a planner or narration
// layer may reference an identifier the user never saw, and any tool whose
// parameters include an identifier must pass Validate before executing.
//
// Two time horizons apply:
//
//   - validation window (default 30m): identifiers inside it are trusted
//   - cleanup horizon (default 2h): entries past it are purged to bound
//     memory, whether on access or by the background Sweeper
//
// The sweep never removes entries still inside the validation window, even
// for idle sessions.
package contextwindow

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Configuration
// =============================================================================

// Config controls the tracker's horizons and suggestion behavior.
type Config struct {
	// ValidationWindow is how long a surfaced identifier stays trustworthy.
	ValidationWindow time.Duration

	// CleanupHorizon is how long entries are retained at all. Must be at
	// least the validation window; New clamps it up if shorter.
	CleanupHorizon time.Duration

	// MaxSuggestions caps the near-miss list returned on validation failure.
	MaxSuggestions int

	// SuggestionThreshold is the minimum similarity score for a suggestion.
	SuggestionThreshold float64
}

// DefaultConfig mirrors the production defaults: 30 minute window, 2 hour
// horizon, top 5 suggestions at similarity >= 0.5.
func DefaultConfig() Config {
	return Config{
		ValidationWindow:    30 * time.Minute,
		CleanupHorizon:      2 * time.Hour,
		MaxSuggestions:      5,
		SuggestionThreshold: 0.5,
	}
}

// =============================================================================
// Types
// =============================================================================

// Entry records one batch of identifiers surfaced by a search or detail
// result. Entries are insertion-ordered per session.
type Entry struct {
	Query      string
	ProductIDs []string
	ObservedAt time.Time
}

// Result is the outcome of a Validate call.
type Result struct {
	// Valid is true when the identifier appears in a non-expired entry.
	Valid bool

	// MatchedQuery is the query whose results surfaced the identifier.
	MatchedQuery string

	// MatchedAt is when that entry was recorded.
	MatchedAt time.Time

	// Suggestions ranks near-miss identifiers from the session's window,
	// descending by similarity. Populated only when Valid is false.
	Suggestions []Suggestion

	// RecentQueries lists the queries inside the window, oldest first.
	RecentQueries []string
}

// Suggestion is one candidate replacement for an invalid identifier.
type Suggestion struct {
	ProductID  string
	Similarity float64
}

// =============================================================================
// Tracker
// =============================================================================

// Tracker holds per-session context entries. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string][]Entry
	cfg      Config

	// now is swapped in tests to drive the horizons deterministically.
	now func() time.Time
}

// New creates a Tracker. Zero config fields fall back to defaults.
func New(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.ValidationWindow <= 0 {
		cfg.ValidationWindow = def.ValidationWindow
	}
	if cfg.CleanupHorizon < cfg.ValidationWindow {
		cfg.CleanupHorizon = def.CleanupHorizon
		if cfg.CleanupHorizon < cfg.ValidationWindow {
			cfg.CleanupHorizon = cfg.ValidationWindow
		}
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = def.MaxSuggestions
	}
	if cfg.SuggestionThreshold <= 0 {
		cfg.SuggestionThreshold = def.SuggestionThreshold
	}
	return &Tracker{
		sessions: make(map[string][]Entry),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Record appends a context entry for the session with the current
// timestamp, sweeping entries past the cleanup horizon on the way.
func (t *Tracker) Record(sessionID, query string, productIDs []string) {
	ids := make([]string, len(productIDs))
	copy(ids, productIDs)

	t.mu.Lock()
	defer t.mu.Unlock()
	entries := t.sweepLocked(sessionID)
	t.sessions[sessionID] = append(entries, Entry{
		Query:      query,
		ProductIDs: ids,
		ObservedAt: t.now(),
	})
}

// Validate reports whether an identifier was surfaced to the session inside
// the validation window.
//
// # Description
//
// On failure the Result carries up to MaxSuggestions near-miss identifiers
// drawn from the same window, ranked by a symmetric character-set overlap
// score. Ranking is deterministic: score descending, insertion order breaks
// ties. The suggestion list is empty only when the session has no entries
// in the window at all.
func (t *Tracker) Validate(sessionID, productID string) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.sweepLocked(sessionID)
	t.sessions[sessionID] = entries

	cutoff := t.now().Add(-t.cfg.ValidationWindow)
	var res Result
	var candidates []string
	seen := make(map[string]bool)

	for _, e := range entries {
		if e.ObservedAt.Before(cutoff) {
			continue
		}
		res.RecentQueries = append(res.RecentQueries, e.Query)
		for _, id := range e.ProductIDs {
			if id == productID {
				res.Valid = true
				res.MatchedQuery = e.Query
				res.MatchedAt = e.ObservedAt
				return res
			}
			if !seen[id] {
				seen[id] = true
				candidates = append(candidates, id)
			}
		}
	}

	res.Suggestions = t.rankSuggestions(productID, candidates)
	return res
}

// RecentProductIDs returns the distinct identifiers surfaced inside the
// validation window, most recent entry first, capped at limit.
func (t *Tracker) RecentProductIDs(sessionID string, limit int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.sweepLocked(sessionID)
	t.sessions[sessionID] = entries

	cutoff := t.now().Add(-t.cfg.ValidationWindow)
	var out []string
	seen := make(map[string]bool)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ObservedAt.Before(cutoff) {
			continue
		}
		for _, id := range entries[i].ProductIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// RecentQueries returns the queries recorded inside the validation window,
// oldest first.
func (t *Tracker) RecentQueries(sessionID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.sweepLocked(sessionID)
	t.sessions[sessionID] = entries

	cutoff := t.now().Add(-t.cfg.ValidationWindow)
	var out []string
	for _, e := range entries {
		if !e.ObservedAt.Before(cutoff) {
			out = append(out, e.Query)
		}
	}
	return out
}

// Forget drops all entries for a session (session reset/delete).
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}

// Sweep purges entries older than the cleanup horizon across all sessions
// and returns the number removed. Entries inside the validation window are
// never touched. Called periodically by the Sweeper.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, entries := range t.sessions {
		kept := t.retain(entries)
		removed += len(entries) - len(kept)
		if len(kept) == 0 {
			delete(t.sessions, id)
		} else {
			t.sessions[id] = kept
		}
	}
	return removed
}

// sweepLocked purges one session's entries past the horizon. Caller holds mu.
func (t *Tracker) sweepLocked(sessionID string) []Entry {
	return t.retain(t.sessions[sessionID])
}

func (t *Tracker) retain(entries []Entry) []Entry {
	horizon := t.now().Add(-t.cfg.CleanupHorizon)
	// Entries are insertion-ordered, so everything before the first
	// retained entry is expired.
	idx := 0
	for idx < len(entries) && entries[idx].ObservedAt.Before(horizon) {
		idx++
	}
	return entries[idx:]
}

// =============================================================================
// Suggestion Ranking
// =============================================================================

func (t *Tracker) rankSuggestions(invalid string, candidates []string) []Suggestion {
	var out []Suggestion
	for _, id := range candidates {
		score := Similarity(invalid, id)
		if score >= t.cfg.SuggestionThreshold {
			out = append(out, Suggestion{ProductID: id, Similarity: score})
		}
	}
	// Stable sort keeps insertion order among equal scores, which keeps
	// the ranking deterministic for identical inputs.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > t.cfg.MaxSuggestions {
		out = out[:t.cfg.MaxSuggestions]
	}
	return out
}

// Similarity is a symmetric character-set overlap score in [0,1]: the size
// of the character intersection over the size of the union. Cheap and
// order-independent; good enough for near-miss identifiers.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	setA := charSet(strings.ToLower(a))
	setB := charSet(strings.ToLower(b))
	if len(setA) == 0 && len(setB) == 0 {
		return 0.0
	}
	inter := 0
	union := len(setB)
	for r := range setA {
		if setB[r] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func charSet(s string) map[rune]bool {
	set := make(map[rune]bool, len(s))
	for _, r := range s {
		set[r] = true
	}
	return set
}
