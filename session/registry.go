// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session owns conversation lifecycles: creation, expiry, the
// per-session turn worker, and the delete cascade across the event bus,
// context tracker, and cart store.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aleutianai/shopstream/agent"
	"github.com/aleutianai/shopstream/catalog"
	"github.com/aleutianai/shopstream/contextwindow"
	"github.com/aleutianai/shopstream/eventbus"
)

var (
	// ErrNotFound marks a missing or expired session.
	ErrNotFound = errors.New("session: not found")

	// ErrBacklogFull is returned when a session's inbox cannot take another
	// message; the client should retry after draining its stream.
	ErrBacklogFull = errors.New("session: message backlog full")
)

// DefaultTTL is how long a session lives after creation.
const DefaultTTL = 2 * time.Hour

// inboxSize bounds messages accepted ahead of the turn worker.
const inboxSize = 64

// Message is one accepted chat message awaiting its turn.
type Message struct {
	ID      string
	Content string
}

// Session is one conversation. Turns for a session run on its single worker
// goroutine in arrival order; event ordering downstream follows from that.
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time

	inbox    chan Message
	cancel   context.CancelFunc
	welcomed atomic.Bool
}

// ClaimWelcome returns true exactly once per session: the first stream
// connect streams the greeting turn, reconnects do not.
func (s *Session) ClaimWelcome() bool {
	return s.welcomed.CompareAndSwap(false, true)
}

// Registry creates, resolves, and destroys sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	bus          *eventbus.Bus
	tracker      *contextwindow.Tracker
	catalog      *catalog.Service
	orchestrator *agent.Orchestrator
	ttl          time.Duration

	baseCtx context.Context

	now func() time.Time
}

// NewRegistry wires a registry. A non-positive ttl falls back to 2 hours.
// baseCtx bounds every session worker; cancelling it stops them all.
func NewRegistry(baseCtx context.Context, bus *eventbus.Bus, tracker *contextwindow.Tracker, cat *catalog.Service, orch *agent.Orchestrator, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		sessions:     make(map[string]*Session),
		bus:          bus,
		tracker:      tracker,
		catalog:      cat,
		orchestrator: orch,
		ttl:          ttl,
		baseCtx:      baseCtx,
		now:          time.Now,
	}
}

// Create allocates a session, registers its event queue, and starts its
// turn worker.
func (r *Registry) Create() *Session {
	now := r.now().UTC()
	ctx, cancel := context.WithCancel(r.baseCtx)
	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
		inbox:     make(chan Message, inboxSize),
		cancel:    cancel,
	}

	r.bus.Register(s.ID)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	go r.runWorker(ctx, s)
	slog.Info("session created", "session_id", s.ID, "expires_at", s.ExpiresAt)
	return s
}

// Get resolves a live session. Expired sessions are torn down on access and
// reported as ErrNotFound, same as unknown identifiers.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if r.now().After(s.ExpiresAt) {
		r.Delete(context.Background(), id)
		return nil, ErrNotFound
	}
	return s, nil
}

// Enqueue accepts a chat message for the session's worker. Fails fast with
// ErrBacklogFull instead of blocking the HTTP handler.
func (r *Registry) Enqueue(id string, msg Message) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	select {
	case s.inbox <- msg:
		return nil
	default:
		return ErrBacklogFull
	}
}

// Delete tears a session down: worker stopped, queue closed, context window
// forgotten, cart cleared. Deleting an unknown session is a no-op.
func (r *Registry) Delete(ctx context.Context, id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return
	}

	s.cancel()
	r.bus.Close(id)
	r.tracker.Forget(id)
	if err := r.catalog.ClearCart(ctx, id); err != nil {
		slog.Warn("cart clear failed on session delete", "session_id", id, "error", err)
	}
	slog.Info("session deleted", "session_id", id)
}

// Len reports the number of live sessions, for metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run purges expired sessions every interval until ctx ends. Always returns
// nil so an errgroup treats shutdown as clean.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, id := range r.expiredIDs() {
				r.Delete(ctx, id)
			}
		}
	}
}

func (r *Registry) expiredIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var out []string
	for id, s := range r.sessions {
		if now.After(s.ExpiresAt) {
			out = append(out, id)
		}
	}
	return out
}

// runWorker drains the session's inbox, running one turn at a time. Turn
// failures are already reported in-stream by the orchestrator; publish
// errors here mean the session is gone and the worker exits with it.
func (r *Registry) runWorker(ctx context.Context, s *Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.inbox:
			if err := r.orchestrator.RunTurn(ctx, s.ID, msg.Content); err != nil {
				if errors.Is(err, eventbus.ErrSessionClosed) || errors.Is(err, eventbus.ErrUnknownSession) || errors.Is(err, context.Canceled) {
					return
				}
				slog.Error("turn failed", "session_id", s.ID, "message_id", msg.ID, "error", err)
			}
		}
	}
}
