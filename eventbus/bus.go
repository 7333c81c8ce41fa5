// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package eventbus implements the per-session ordered event queue that
// decouples turn production from the streaming transport.
//
// # Description
//
// Each registered session owns one bounded FIFO queue of TurnEvents. Turn
// producers publish into the queue; the transport adapter subscribes and
// drains it. The queue provides:
//
//   - strict publish-order delivery within a session
//   - backpressure: a publish against a full queue blocks the producer
//   - single-subscriber semantics: a new Subscribe preempts the old one
//     (a browser reconnect replacing a stale tab)
//   - idle heartbeats synthesized on the consumer side
//
// Events already delivered to a previous subscriber are never redelivered;
// events still queued at preemption time are handed to the new subscriber.
//
// # Thread Safety
//
// All Bus and Subscription methods are safe for concurrent use. Delivery is
// a mutex-guarded pop with an active-subscriber check, so a preempted
// subscriber can never steal an event racing with its replacement.
package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aleutianai/shopstream/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrUnknownSession is returned for publish/subscribe against a session
	// that was never registered or has been closed and removed.
	ErrUnknownSession = errors.New("eventbus: unknown session")

	// ErrSessionClosed is returned when the session's queue has been closed.
	// It is the terminal signal for a blocked subscriber.
	ErrSessionClosed = errors.New("eventbus: session closed")

	// ErrPreempted is returned to a subscriber that has been replaced by a
	// newer Subscribe call for the same session.
	ErrPreempted = errors.New("eventbus: subscriber preempted")
)

// =============================================================================
// Configuration
// =============================================================================

// Config controls queue capacity and heartbeat cadence.
type Config struct {
	// Capacity bounds each session queue. A publish against a full queue
	// blocks the producing turn rather than dropping events.
	Capacity int

	// HeartbeatInterval is how long a subscriber waits with no traffic
	// before Next returns a synthesized heartbeat event.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the production defaults: 256 events per session,
// heartbeat after 15 seconds of silence.
func DefaultConfig() Config {
	return Config{
		Capacity:          256,
		HeartbeatInterval: 15 * time.Second,
	}
}

// =============================================================================
// Bus
// =============================================================================

// Bus owns one queue per registered session.
type Bus struct {
	mu     sync.Mutex
	queues map[string]*queue
	cfg    Config
}

// New creates a Bus. Zero or negative config fields fall back to defaults.
func New(cfg Config) *Bus {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	return &Bus{
		queues: make(map[string]*queue),
		cfg:    cfg,
	}
}

// Register creates the queue for a session. Registering an existing session
// is a no-op so callers may treat it as idempotent.
func (b *Bus) Register(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[sessionID]; ok {
		return
	}
	b.queues[sessionID] = newQueue(b.cfg.Capacity)
}

// Publish appends an event to the session's queue in order.
//
// # Description
//
// Blocks while the queue is full until space frees up, the context is
// cancelled, or the session is closed. Events are immutable once enqueued.
//
// # Outputs
//
//   - error: ErrUnknownSession, ErrSessionClosed, or ctx.Err().
func (b *Bus) Publish(ctx context.Context, sessionID string, ev datatypes.TurnEvent) error {
	q, err := b.lookup(sessionID)
	if err != nil {
		return err
	}
	return q.push(ctx, ev)
}

// Subscribe attaches the session's single active subscriber.
//
// # Description
//
// A second Subscribe call preempts and closes the previous subscription:
// its next (or in-flight) Next call returns ErrPreempted. Events still
// queued carry over to the new subscription; delivered events do not.
func (b *Bus) Subscribe(sessionID string) (*Subscription, error) {
	q, err := b.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return q.subscribe(b.cfg.HeartbeatInterval), nil
}

// Close shuts a session's queue: blocked publishers and the subscriber are
// woken with ErrSessionClosed, and no further events are accepted. The
// session is removed from the bus.
func (b *Bus) Close(sessionID string) {
	b.mu.Lock()
	q, ok := b.queues[sessionID]
	delete(b.queues, sessionID)
	b.mu.Unlock()
	if ok {
		q.close()
	}
}

// Depth reports the number of queued, undelivered events for a session.
// Used by metrics; returns 0 for unknown sessions.
func (b *Bus) Depth(sessionID string) int {
	q, err := b.lookup(sessionID)
	if err != nil {
		return 0
	}
	return q.depth()
}

func (b *Bus) lookup(sessionID string) (*queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	return q, nil
}

// =============================================================================
// Queue
// =============================================================================

// queue is the bounded FIFO behind one session. All state transitions
// happen under mu; cond broadcasts wake waiting publishers and the
// subscriber. Context cancellation and heartbeat deadlines are folded in
// via AfterFunc broadcasts.
type queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []datatypes.TurnEvent
	capacity int
	active   *Subscription
	closed   bool
}

func newQueue(capacity int) *queue {
	q := &queue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(ctx context.Context, ev datatypes.TurnEvent) error {
	stop := context.AfterFunc(ctx, q.cond.Broadcast)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return ErrSessionClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(q.buf) < q.capacity {
			q.buf = append(q.buf, ev)
			q.cond.Broadcast()
			return nil
		}
		q.cond.Wait()
	}
}

func (q *queue) subscribe(heartbeat time.Duration) *Subscription {
	q.mu.Lock()
	defer q.mu.Unlock()
	sub := &Subscription{q: q, heartbeat: heartbeat}
	q.active = sub
	// Wake a preempted subscriber blocked in Next so it observes the swap.
	q.cond.Broadcast()
	return sub
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *queue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// =============================================================================
// Subscription
// =============================================================================

// Subscription is one subscriber's view of a session queue.
type Subscription struct {
	q         *queue
	heartbeat time.Duration
}

// Next returns the next event in publish order.
//
// # Description
//
// Blocks until an event is available. If the heartbeat interval elapses
// with no traffic, Next returns a heartbeat event instead so the transport
// can distinguish "idle" from "dead". Terminal conditions:
//
//   - ErrPreempted: a newer subscriber replaced this one
//   - ErrSessionClosed: the session's queue was closed
//   - ctx.Err(): the caller's context ended
func (s *Subscription) Next(ctx context.Context) (datatypes.TurnEvent, error) {
	stopCtx := context.AfterFunc(ctx, s.q.cond.Broadcast)
	defer stopCtx()

	deadline := time.Now().Add(s.heartbeat)
	timer := time.AfterFunc(s.heartbeat, s.q.cond.Broadcast)
	defer timer.Stop()

	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	for {
		if s.q.closed {
			return datatypes.TurnEvent{}, ErrSessionClosed
		}
		if s.q.active != s {
			return datatypes.TurnEvent{}, ErrPreempted
		}
		if err := ctx.Err(); err != nil {
			return datatypes.TurnEvent{}, err
		}
		if len(s.q.buf) > 0 {
			ev := s.q.buf[0]
			s.q.buf = s.q.buf[1:]
			// Wake publishers blocked on a full queue.
			s.q.cond.Broadcast()
			return ev, nil
		}
		if !time.Now().Before(deadline) {
			return datatypes.NewHeartbeatEvent(), nil
		}
		s.q.cond.Wait()
	}
}
