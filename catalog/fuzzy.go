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
	"regexp"
	"sort"
	"strings"
)

// fuzzyCutoff is the minimum bigram similarity for a token correction.
// Below it the token passes through unchanged.
const fuzzyCutoff = 0.8

// maxCorpusNames bounds how many product names feed the token corpus.
const maxCorpusNames = 500

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// FuzzyIndex corrects typo'd query tokens against the catalog's vocabulary.
//
// # Description
//
// The corpus is every distinct alphanumeric token of length >= 4 drawn from
// up to 500 product names, held sorted so candidate scanning is
// deterministic. Correction is per token: a token already in the corpus maps
// to itself (idempotence), otherwise the highest-scoring corpus token at or
// above the cutoff replaces it, first-in-sorted-order winning ties.
//
// Similarity is the Dice coefficient over character bigrams, which tracks
// the edit-closeness notion the catalog needs without any randomness.
type FuzzyIndex struct {
	corpus []string
	member map[string]bool
}

// NewFuzzyIndex builds an index from product names.
func NewFuzzyIndex(names []string) *FuzzyIndex {
	if len(names) > maxCorpusNames {
		names = names[:maxCorpusNames]
	}
	member := make(map[string]bool)
	for _, name := range names {
		for _, tok := range tokenPattern.FindAllString(strings.ToLower(name), -1) {
			if len(tok) >= 4 {
				member[tok] = true
			}
		}
	}
	corpus := make([]string, 0, len(member))
	for tok := range member {
		corpus = append(corpus, tok)
	}
	sort.Strings(corpus)
	return &FuzzyIndex{corpus: corpus, member: member}
}

// Correct rewrites a query token by token. The result is lowercased; tokens
// with no close corpus match survive unchanged. Correct(Correct(q)) ==
// Correct(q) because corrected tokens are corpus members.
func (f *FuzzyIndex) Correct(query string) string {
	tokens := tokenPattern.FindAllString(strings.ToLower(query), -1)
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = f.correctToken(tok)
	}
	return strings.Join(out, " ")
}

func (f *FuzzyIndex) correctToken(tok string) string {
	if f.member[tok] {
		return tok
	}
	best := ""
	bestScore := 0.0
	for _, cand := range f.corpus {
		// Strict > keeps the first (sorted) candidate among equals.
		if score := bigramDice(tok, cand); score > bestScore {
			best = cand
			bestScore = score
		}
	}
	if bestScore < fuzzyCutoff {
		return tok
	}
	return best
}

// bigramDice is the Dice coefficient over character bigrams: 2*|A∩B| /
// (|A|+|B|), counted with multiplicity. Strings shorter than two runes
// match only on equality.
func bigramDice(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0.0
	}
	counts := make(map[string]int, len(ba))
	for _, g := range ba {
		counts[g]++
	}
	overlap := 0
	for _, g := range bb {
		if counts[g] > 0 {
			counts[g]--
			overlap++
		}
	}
	return 2.0 * float64(overlap) / float64(len(ba)+len(bb))
}

func bigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}
