// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package pipeline

import (
	"sync"
	"time"
)

// RunClock is the reference clock of pipeline runs. While a run executes Now
// returns the run's StartedAt, so every check made during the run sees the
// same instant; between runs it falls back to the wall clock.
type RunClock struct {
	mu     sync.RWMutex
	frozen time.Time
	wall   func() time.Time
}

// NewRunClock returns a clock backed by time.Now between runs.
func NewRunClock() *RunClock {
	return &RunClock{wall: time.Now}
}

// Now returns the current run's reference time, or the wall clock.
func (c *RunClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.frozen.IsZero() {
		return c.frozen
	}
	return c.wall()
}

func (c *RunClock) freeze(t time.Time) {
	c.mu.Lock()
	c.frozen = t
	c.mu.Unlock()
}

func (c *RunClock) release() {
	c.mu.Lock()
	c.frozen = time.Time{}
	c.mu.Unlock()
}
