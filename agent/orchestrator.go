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
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aleutianai/shopstream/datatypes"
	"github.com/aleutianai/shopstream/eventbus"
	"github.com/aleutianai/shopstream/observability"
)

// Orchestrator drives one assistant turn: plan the tool, narrate, execute,
// complete. It holds no per-turn state, so one instance serves every
// session; ordering within a session comes from the session's single worker
// running turns sequentially and from the bus preserving publish order.
type Orchestrator struct {
	bus      *eventbus.Bus
	planner  *IntentPlanner
	executor *Executor
	narrator Narrator
}

// NewOrchestrator wires the turn pipeline.
func NewOrchestrator(bus *eventbus.Bus, planner *IntentPlanner, executor *Executor, narrator Narrator) *Orchestrator {
	return &Orchestrator{
		bus:      bus,
		planner:  planner,
		executor: executor,
		narrator: narrator,
	}
}

// publish forwards one event to the session queue, counting it when the
// metrics singleton is initialized.
func (o *Orchestrator) publish(ctx context.Context, sessionID string, ev datatypes.TurnEvent) error {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordEvent(string(ev.Type))
	}
	return o.bus.Publish(ctx, sessionID, ev)
}

// RunTurn processes one user message.
//
// # Description
//
// The event sequence published for a turn is fixed: zero or more partial
// text chunks and one final chunk (narration is skipped for silent tools
// and empty plans), exactly one function_call when a tool was planned, then
// one completion. An infrastructure failure mid-turn publishes an error
// event followed by a failed completion; the session remains usable for the
// next turn. Tool refusals (validation, unknown product, unsupported tool)
// travel inside the function_call result and complete the turn normally.
//
// # Outputs
//
//   - error: only publish failures (session closed, context done). Turn
//     failures are reported in-stream, not as a Go error.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID, message string) error {
	turnID := uuid.New().String()
	start := time.Now()
	log := slog.With("session_id", sessionID, "turn_id", turnID)

	plan, ok := o.planner.Plan(message)
	if !ok {
		// Nothing to do with whitespace: close the turn immediately.
		return o.publish(ctx, sessionID, datatypes.NewCompletionEvent(turnID))
	}
	log.Info("turn planned", "tool", plan.Tool)

	if !SilentTool(plan.Tool) {
		chunks, err := o.narrator.Narrate(ctx, message)
		if err != nil {
			// Narration is cosmetic: log, skip it, and run the tool anyway.
			log.Warn("narration failed", "error", err)
			chunks = nil
		}
		for i, chunk := range chunks {
			ev := datatypes.NewTextChunkEvent(chunk, i < len(chunks)-1)
			if err := o.publish(ctx, sessionID, ev); err != nil {
				return err
			}
		}
	}

	ranTool, result, err := o.executor.Execute(ctx, sessionID, plan.Tool, plan.Params)
	if err != nil {
		log.Error("tool execution failed", "tool", plan.Tool, "error", err)
		errEv := datatypes.NewErrorEvent(sessionID, datatypes.ErrCodeResource, "something went wrong executing your request")
		if pubErr := o.publish(ctx, sessionID, errEv); pubErr != nil {
			return pubErr
		}
		return o.publish(ctx, sessionID, datatypes.NewFailedCompletionEvent(turnID))
	}

	callEv := datatypes.NewFunctionCallEvent(ranTool, plan.Params, result)
	if err := o.publish(ctx, sessionID, callEv); err != nil {
		return err
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordTurn(ranTool, time.Since(start).Seconds())
		if result.Error != nil && result.Error.Code == datatypes.ErrCodeValidation {
			m.RecordValidationRefusal(ranTool)
		}
	}
	log.Info("turn complete", "tool", ranTool, "duration_ms", time.Since(start).Milliseconds())
	return o.publish(ctx, sessionID, datatypes.NewCompletionEvent(turnID))
}

// welcomeChunks open every stream's first turn.
var welcomeChunks = []string{
	"Hi! I'm your shopping assistant. ",
	"Ask me to search for products, show details, or manage your cart. ",
	"Try \"search wireless headphones\" to get started.",
}

// PublishWelcome streams the greeting turn sent once per session, on the
// first stream connect.
func (o *Orchestrator) PublishWelcome(ctx context.Context, sessionID string) error {
	turnID := uuid.New().String()
	for i, chunk := range welcomeChunks {
		ev := datatypes.NewTextChunkEvent(chunk, i < len(welcomeChunks)-1)
		if err := o.publish(ctx, sessionID, ev); err != nil {
			return err
		}
	}
	return o.publish(ctx, sessionID, datatypes.NewCompletionEvent(turnID))
}
