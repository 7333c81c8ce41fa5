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
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Narrator produces the assistant prose streamed ahead of a tool result.
// Implementations must be deterministic-safe to skip: an empty chunk slice
// is a valid narration.
type Narrator interface {
	Narrate(ctx context.Context, message string) ([]string, error)
}

// NewNarrator selects a narrator by provider name. "openai" requires a key;
// anything else (including empty) falls back to the simulated narrator.
func NewNarrator(provider, apiKey, model string) Narrator {
	if strings.EqualFold(provider, "openai") && apiKey != "" {
		return NewOpenAINarrator(apiKey, model)
	}
	return NewSimulatedNarrator()
}

// =============================================================================
// Simulated Narrator
// =============================================================================

// SimulatedNarrator returns canned assistant prose chosen by a coarse
// classification of the message. It is the default provider: turns stay
// fully deterministic and no external service is in the path.
type SimulatedNarrator struct {
	responses map[string][]string
}

var _ Narrator = (*SimulatedNarrator)(nil)

// NewSimulatedNarrator creates the canned-text narrator.
func NewSimulatedNarrator() *SimulatedNarrator {
	return &SimulatedNarrator{
		responses: map[string][]string{
			"search": {
				"I'll help you search for products! Let me look that up for you.",
				" I found some great options that match your query.",
				" Here are the search results I found.",
			},
			"details": {
				"Let me get the detailed information for that product.",
				" Here are all the details and specifications you requested.",
				" I've also included some related recommendations you might like.",
			},
			"cart": {
				"Great choice! I'll add that item to your cart.",
				" The item has been successfully added.",
				" Your cart has been updated with the new item.",
			},
			"recommendations": {
				"Based on your interests, I have some great recommendations!",
				" These products are similar to what you're looking for.",
				" You might also be interested in these related items.",
			},
		},
	}
}

// Narrate returns the canned chunks for the message's response type.
func (n *SimulatedNarrator) Narrate(_ context.Context, message string) ([]string, error) {
	kind := "search"
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "detail"):
		kind = "details"
	case strings.Contains(m, "cart") || strings.Contains(m, "add"):
		kind = "cart"
	case strings.Contains(m, "recommend"):
		kind = "recommendations"
	}
	chunks := n.responses[kind]
	out := make([]string, len(chunks))
	copy(out, chunks)
	return out, nil
}

// =============================================================================
// OpenAI Narrator
// =============================================================================

const narratorSystemPrompt = "You are a helpful shopping assistant. " +
	"Reply with one or two short sentences acknowledging the user's request. " +
	"Do not invent product names, identifiers, or prices; the catalog lookup " +
	"happens separately."

// OpenAINarrator streams prose from a chat model. Only the narration is
// model-backed; planning and tool execution stay deterministic, so a model
// cannot fabricate identifiers into tool calls.
type OpenAINarrator struct {
	client *openai.Client
	model  string
}

var _ Narrator = (*OpenAINarrator)(nil)

// NewOpenAINarrator creates a narrator over the OpenAI chat API. An empty
// model defaults to gpt-4o-mini.
func NewOpenAINarrator(apiKey, model string) *OpenAINarrator {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAINarrator{client: openai.NewClient(apiKey), model: model}
}

// Narrate streams one completion and returns its deltas as chunks.
func (n *OpenAINarrator) Narrate(ctx context.Context, message string) ([]string, error) {
	stream, err := n.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:     n.model,
		MaxTokens: 120,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: narratorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("narration stream: %w", err)
	}
	defer stream.Close()

	var chunks []string
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return nil, fmt.Errorf("narration recv: %w", err)
		}
		if len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
			chunks = append(chunks, resp.Choices[0].Delta.Content)
		}
	}
}
