// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eventbus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleutianai/shopstream/datatypes"
)

func TestPublishSubscribeOrdering(t *testing.T) {
	bus := New(DefaultConfig())
	bus.Register("sess")
	ctx := context.Background()

	const n = 50
	for i := 0; i < n; i++ {
		ev := datatypes.NewTextChunkEvent(fmt.Sprintf("chunk-%d", i), true)
		require.NoError(t, bus.Publish(ctx, "sess", ev))
	}

	sub, err := bus.Subscribe("sess")
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		ev, err := sub.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, datatypes.EventTextChunk, ev.Type)
		assert.Equal(t, fmt.Sprintf("chunk-%d", i), ev.Text.Content)
	}
}

func TestPublishUnknownSession(t *testing.T) {
	bus := New(DefaultConfig())
	err := bus.Publish(context.Background(), "nope", datatypes.NewHeartbeatEvent())
	assert.ErrorIs(t, err, ErrUnknownSession)

	_, err = bus.Subscribe("nope")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestRegisterIsIdempotent(t *testing.T) {
	bus := New(DefaultConfig())
	bus.Register("sess")
	require.NoError(t, bus.Publish(context.Background(), "sess", datatypes.NewHeartbeatEvent()))
	bus.Register("sess")
	assert.Equal(t, 1, bus.Depth("sess"), "re-register must not drop queued events")
}

func TestPublishBackpressure(t *testing.T) {
	bus := New(Config{Capacity: 2, HeartbeatInterval: time.Minute})
	bus.Register("sess")
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, "sess", datatypes.NewHeartbeatEvent()))
	require.NoError(t, bus.Publish(ctx, "sess", datatypes.NewHeartbeatEvent()))

	// Third publish blocks until the subscriber drains one event.
	unblocked := make(chan error, 1)
	go func() {
		unblocked <- bus.Publish(ctx, "sess", datatypes.NewHeartbeatEvent())
	}()

	select {
	case err := <-unblocked:
		t.Fatalf("publish should have blocked on a full queue, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	sub, err := bus.Subscribe("sess")
	require.NoError(t, err)
	_, err = sub.Next(ctx)
	require.NoError(t, err)

	select {
	case err := <-unblocked:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not unblock after drain")
	}
}

func TestPublishBlockedRespectsContext(t *testing.T) {
	bus := New(Config{Capacity: 1, HeartbeatInterval: time.Minute})
	bus.Register("sess")
	require.NoError(t, bus.Publish(context.Background(), "sess", datatypes.NewHeartbeatEvent()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := bus.Publish(ctx, "sess", datatypes.NewHeartbeatEvent())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscribePreemptsPrevious(t *testing.T) {
	bus := New(DefaultConfig())
	bus.Register("sess")
	ctx := context.Background()

	first, err := bus.Subscribe("sess")
	require.NoError(t, err)

	// Park the first subscriber in Next before the replacement arrives.
	firstErr := make(chan error, 1)
	go func() {
		_, err := first.Next(ctx)
		firstErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	second, err := bus.Subscribe("sess")
	require.NoError(t, err)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrPreempted)
	case <-time.After(2 * time.Second):
		t.Fatal("preempted subscriber was not woken")
	}

	// Queued events go to the replacement, exactly once.
	require.NoError(t, bus.Publish(ctx, "sess", datatypes.NewTextChunkEvent("only", false)))
	ev, err := second.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "only", ev.Text.Content)
}

func TestPreemptionNeverDuplicatesDelivery(t *testing.T) {
	bus := New(DefaultConfig())
	bus.Register("sess")
	ctx := context.Background()

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, bus.Publish(ctx, "sess", datatypes.NewTextChunkEvent(fmt.Sprintf("%d", i), true)))
	}

	first, err := bus.Subscribe("sess")
	require.NoError(t, err)
	seen := make(map[string]int)
	for i := 0; i < n/2; i++ {
		ev, err := first.Next(ctx)
		require.NoError(t, err)
		seen[ev.Text.Content]++
	}

	second, err := bus.Subscribe("sess")
	require.NoError(t, err)
	_, err = first.Next(ctx)
	assert.ErrorIs(t, err, ErrPreempted)

	for i := 0; i < n/2; i++ {
		ev, err := second.Next(ctx)
		require.NoError(t, err)
		seen[ev.Text.Content]++
	}

	require.Len(t, seen, n)
	for content, count := range seen {
		assert.Equal(t, 1, count, "event %s delivered %d times", content, count)
	}
}

func TestNextHeartbeatOnIdle(t *testing.T) {
	bus := New(Config{Capacity: 8, HeartbeatInterval: 30 * time.Millisecond})
	bus.Register("sess")

	sub, err := bus.Subscribe("sess")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, datatypes.EventHeartbeat, ev.Type)
}

func TestCloseWakesSubscriberAndPublisher(t *testing.T) {
	bus := New(Config{Capacity: 1, HeartbeatInterval: time.Minute})
	bus.Register("sess")
	ctx := context.Background()

	sub, err := bus.Subscribe("sess")
	require.NoError(t, err)

	subErr := make(chan error, 1)
	go func() {
		_, err := sub.Next(ctx)
		subErr <- err
	}()

	require.NoError(t, bus.Publish(ctx, "sess", datatypes.NewHeartbeatEvent()))

	time.Sleep(20 * time.Millisecond)
	bus.Close("sess")

	select {
	case err := <-subErr:
		// The subscriber may consume the queued event first; the terminal
		// error on a closed queue is ErrSessionClosed either way.
		if err == nil {
			_, err = sub.Next(ctx)
		}
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber not woken by close")
	}

	err = bus.Publish(ctx, "sess", datatypes.NewHeartbeatEvent())
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestNextRespectsContext(t *testing.T) {
	bus := New(DefaultConfig())
	bus.Register("sess")
	sub, err := bus.Subscribe("sess")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
