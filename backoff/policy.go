// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package backoff defines the reconnect policy the stream transport
// advertises to clients. The server does not reconnect anything itself; it
// exposes the policy so the SSE retry hint and client SDKs share one
// schedule.
package backoff

import "time"

// Policy is a capped exponential backoff schedule. Attempt numbering starts
// at zero; resetting the counter after a successful connect is the caller's
// responsibility.
type Policy struct {
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the growth of the schedule.
	MaxDelay time.Duration

	// MaxAttempts bounds the schedule; zero means unbounded.
	MaxAttempts int
}

// Default returns the schedule advertised on stream connect: 1s doubling up
// to 30s, at most 10 attempts.
func Default() Policy {
	return Policy{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 10,
	}
}

// NextDelay returns the delay before retry number attempt.
//
// # Outputs
//
//   - time.Duration: BaseDelay * 2^attempt, capped at MaxDelay.
//   - bool: false when attempt is negative or the schedule is exhausted.
func (p Policy) NextDelay(attempt int) (time.Duration, bool) {
	if attempt < 0 {
		return 0, false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return 0, false
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay, true
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d, true
}
