// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package sync2

import (
	"context"
	"time"
)

// Cycle implements a controllable recurring event.
//
// The function is invoked immediately when Run is called and then once per
// interval until the context is cancelled or the function returns an error.
type Cycle struct {
	interval time.Duration

	trigger chan chan struct{}
}

// NewCycle creates a new cycle with the specified interval.
func NewCycle(interval time.Duration) *Cycle {
	return &Cycle{
		interval: interval,
		trigger:  make(chan chan struct{}),
	}
}

// Run runs fn on the cycle's schedule until ctx is done or fn fails.
func (cycle *Cycle) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(cycle.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				return err
			}
		case done := <-cycle.trigger:
			err := fn(ctx)
			close(done)
			if err != nil {
				return err
			}
		}
	}
}

// TriggerWait triggers the cycle out of schedule and waits for the
// invocation to finish.
func (cycle *Cycle) TriggerWait(ctx context.Context) {
	done := make(chan struct{})
	select {
	case cycle.trigger <- done:
		<-done
	case <-ctx.Done():
	}
}
