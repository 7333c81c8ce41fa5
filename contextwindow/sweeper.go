// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package contextwindow

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs Tracker.Sweep on a fixed interval until its context ends.
//
// # Description
//
// The on-access sweep in Record/Validate already bounds per-session memory
// for active sessions; the Sweeper covers sessions that went idle and never
// touch the tracker again. Run it once from main under an errgroup.
type Sweeper struct {
	tracker  *Tracker
	interval time.Duration
}

// NewSweeper creates a sweeper. A non-positive interval defaults to 10m.
func NewSweeper(tracker *Tracker, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{tracker: tracker, interval: interval}
}

// Run blocks until ctx is done, sweeping every interval. Always returns
// nil so an errgroup treats shutdown as clean.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("context sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("context sweeper stopped")
			return nil
		case <-ticker.C:
			removed := s.tracker.Sweep()
			if removed > 0 {
				slog.Info("context sweep removed expired entries", "removed", removed)
			}
		}
	}
}
