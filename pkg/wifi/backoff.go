// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wifi

import (
	"context"
	"sync/atomic"
	"time"
)

// RetryPolicy bounds one failure class
type RetryPolicy struct {
	Threshold int           // consecutive failures before the long backoff
	LongDelay time.Duration // escalated sleep applied once per crossing
}

// RetryCounter counts consecutive failures of one class. Only the role
// driver writes it; status readers may load it from any goroutine.
type RetryCounter struct {
	threshold   atomic.Int32
	count       atomic.Int32
	escalations atomic.Int32
}

func (c *RetryCounter) configure(threshold int) {
	c.threshold.Store(int32(threshold))
	c.count.Store(0)
	c.escalations.Store(0)
}

// Fail records a failure. It returns true when the threshold is reached,
// in which case the counter is already back at zero.
func (c *RetryCounter) Fail() bool {
	n := c.count.Add(1)
	limit := c.threshold.Load()
	if limit > 0 && n >= limit {
		c.count.Store(0)
		c.escalations.Add(1)
		return true
	}
	return false
}

// Succeed clears the counter
func (c *RetryCounter) Succeed() {
	c.count.Store(0)
}

// Count returns the current number of consecutive failures
func (c *RetryCounter) Count() int {
	return int(c.count.Load())
}

// Escalations returns how many times the threshold has been crossed
func (c *RetryCounter) Escalations() int {
	return int(c.escalations.Load())
}

// Sleeper pauses the driver. It returns early with ctx.Err() when the
// context is cancelled.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
