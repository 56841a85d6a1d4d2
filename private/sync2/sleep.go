// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// Package sync2 provides a few concurrency helpers shared by the
// scrapers and the scheduler.
package sync2

import (
	"context"
	"time"
)

// Sleep waits for the duration to elapse or the context to be cancelled,
// whichever comes first. It returns true when the full duration elapsed.
func Sleep(ctx context.Context, duration time.Duration) bool {
	if duration <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
