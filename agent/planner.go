// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent plans, narrates, and runs assistant turns: a deterministic
// intent planner maps free text to a tool call, a narrator produces the
// streamed assistant prose, and the orchestrator drives one turn's event
// sequence through the session's event queue.
package agent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aleutianai/shopstream/datatypes"
)

// Plan is one planned tool invocation.
type Plan struct {
	Tool   string
	Params datatypes.ToolParams
}

// IntentPlanner maps a user message to a tool call with fixed rules; the
// same text always yields the same plan. No model in the loop.
type IntentPlanner struct{}

// NewIntentPlanner creates a planner.
func NewIntentPlanner() *IntentPlanner {
	return &IntentPlanner{}
}

var (
	betweenPattern = regexp.MustCompile(`between\s*\$?(\d+\.?\d*)\s*(?:and|-)\s*\$?(\d+\.?\d*)`)
	underPattern   = regexp.MustCompile(`(under|below|less than)\s*\$?(\d+\.?\d*)`)
	overPattern    = regexp.MustCompile(`(over|above|more than|greater than)\s*\$?(\d+\.?\d*)`)
	wordPattern    = regexp.MustCompile(`[a-z0-9]+`)
)

// stopwords are filler tokens stripped from search queries.
var stopwords = map[string]bool{
	"show": true, "me": true, "find": true, "please": true, "the": true, "for": true,
}

// detailMarkers are tried in order; the text after the first hit becomes the
// detail lookup query when no identifier is present.
var detailMarkers = []string{
	"details of", "detail of", "details for", "detail for", "details", "detail",
}

// viewCartPhrases trigger the get_cart tool.
var viewCartPhrases = []string{
	"show cart", "list cart", "show all items in cart", "items in cart", "view cart", "my cart",
}

// Plan maps text to a tool invocation.
//
// # Description
//
// Rules fire in a fixed order: explicit "search", detail requests, add to
// cart, recommendations, cart views, removals, quantity updates, and finally
// a plain search over the whole message. Empty input yields no plan.
//
// # Outputs
//
//   - Plan: the tool and its parameters.
//   - bool: false when the text is empty or whitespace.
func (p *IntentPlanner) Plan(text string) (Plan, bool) {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "search") {
		_, after, _ := strings.Cut(lower, "search")
		params := parseSearchText(after)
		if params.Query == "" {
			params.Query = text
		}
		params.Limit = 10
		return Plan{Tool: ToolSearchProducts, Params: params}, true
	}

	if strings.Contains(lower, "detail") {
		params := datatypes.ToolParams{IncludeRecommendations: true}
		if pid := extractProductID(text); pid != "" {
			params.ProductID = pid
		} else {
			for _, marker := range detailMarkers {
				if _, after, ok := strings.Cut(lower, marker); ok {
					params.Query = strings.TrimSpace(after)
					break
				}
			}
		}
		return Plan{Tool: ToolShowProductDetails, Params: params}, true
	}

	if strings.Contains(lower, "add") && strings.Contains(lower, "cart") {
		pid := extractProductID(text)
		if pid == "" {
			pid = "prod_001"
		}
		return Plan{Tool: ToolAddToCart, Params: datatypes.ToolParams{ProductID: pid, Quantity: 1}}, true
	}

	if strings.Contains(lower, "recommend") {
		base := extractProductID(text)
		if base == "" {
			base = "prod_001"
		}
		return Plan{Tool: ToolGetRecommendations, Params: datatypes.ToolParams{BasedOn: base, MaxResults: 5}}, true
	}

	if isViewCart(lower) {
		return Plan{Tool: ToolGetCart}, true
	}

	if strings.Contains(lower, "remove from cart") || strings.Contains(lower, "delete from cart") ||
		strings.HasPrefix(lower, "remove ") || strings.HasPrefix(lower, "delete ") {
		var params datatypes.ToolParams
		if pid := extractProductID(text); pid != "" {
			params.ProductID = pid
		} else if parts := strings.Fields(lower); len(parts) >= 2 {
			params.Query = parts[len(parts)-1]
		}
		return Plan{Tool: ToolRemoveFromCart, Params: params}, true
	}

	if strings.Contains(lower, "update cart") {
		var params datatypes.ToolParams
		params.ProductID = extractProductID(text)
		if delta, ok := extractDelta(lower); ok {
			params.Delta = delta
		}
		return Plan{Tool: ToolUpdateCart, Params: params}, true
	}

	if strings.TrimSpace(text) != "" {
		params := parseSearchText(lower)
		params.Limit = 10
		return Plan{Tool: ToolSearchProducts, Params: params}, true
	}

	return Plan{}, false
}

// extractProductID returns the first whitespace token starting with "prod_".
func extractProductID(text string) string {
	for _, tok := range strings.Fields(strings.ReplaceAll(text, "\n", " ")) {
		if strings.HasPrefix(strings.ToLower(tok), "prod_") {
			return tok
		}
	}
	return ""
}

// extractDelta finds the first signed integer token ("+2", "-1") in a
// message, splitting signs glued to the preceding word.
func extractDelta(lower string) (int, bool) {
	spaced := strings.ReplaceAll(strings.ReplaceAll(lower, "+", " +"), "-", " -")
	for _, tok := range strings.Fields(spaced) {
		if strings.HasPrefix(tok, "+") || strings.HasPrefix(tok, "-") {
			if n, err := strconv.Atoi(tok); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func isViewCart(lower string) bool {
	if strings.TrimSpace(lower) == "cart" {
		return true
	}
	for _, phrase := range viewCartPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// parseSearchText extracts price bounds, a category keyword, and the cleaned
// query from free text.
//
// # Description
//
// "between $X and $Y" sets both bounds; "under/below/less than $N" sets the
// max; "over/above/more than/greater than $N" sets the min. Bound phrases
// and category words are removed from the text before stopword stripping so
// they never leak into the query.
func parseSearchText(text string) datatypes.ToolParams {
	t := strings.ToLower(text)
	var params datatypes.ToolParams

	if m := betweenPattern.FindStringSubmatch(t); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		params.PriceMin = &lo
		params.PriceMax = &hi
		t = strings.Replace(t, m[0], " ", 1)
	}
	if m := underPattern.FindStringSubmatch(t); m != nil && params.PriceMax == nil {
		hi, _ := strconv.ParseFloat(m[2], 64)
		params.PriceMax = &hi
		t = strings.Replace(t, m[0], " ", 1)
	}
	if m := overPattern.FindStringSubmatch(t); m != nil && params.PriceMin == nil {
		lo, _ := strconv.ParseFloat(m[2], 64)
		params.PriceMin = &lo
		t = strings.Replace(t, m[0], " ", 1)
	}

	for _, cat := range datatypes.Categories() {
		word := strings.ToLower(string(cat))
		re := regexp.MustCompile(`\b` + word + `\b`)
		if re.MatchString(t) {
			params.Category = string(cat)
			t = re.ReplaceAllString(t, " ")
		}
	}

	var kept []string
	for _, tok := range wordPattern.FindAllString(t, -1) {
		if !stopwords[tok] {
			kept = append(kept, tok)
		}
	}
	params.Query = strings.Join(kept, " ")
	return params
}
