// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package scraper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SolFunc feeds the candidates of a single sol into the shared ingester.
type SolFunc func(ctx context.Context, sol int, ing *Ingester) error

// RunBulk drives a bulk run over [startSol, endSol] in ascending order.
// A failure on one sol is recorded and processing continues; cancellation
// flushes the accumulated batch so no completed work is lost, marks the
// summary cancelled and stops before the next sol.
func RunBulk(ctx context.Context, log *zap.Logger, ing *Ingester, startSol, endSol int, fn SolFunc) (summary Summary, err error) {
	defer mon.Task()(&ctx)(&err)

	start := time.Now()
	summary.StartSol = startSol
	summary.EndSol = endSol

	for sol := startSol; sol <= endSol; sol++ {
		if ctx.Err() != nil {
			summary.Cancelled = true
			summary.CancelledAtSol = sol
			break
		}

		summary.SolsAttempted++
		solErr := fn(ctx, sol, ing)
		if solErr == nil {
			// flushing per sol keeps insertion order across sols and lets
			// counts be attributed to the sol that produced them
			solErr = ing.Flush(ctx)
		}

		switch {
		case solErr == nil:
			summary.SolsSucceeded++
		case ctx.Err() != nil:
			summary.Cancelled = true
			summary.CancelledAtSol = sol
			summary.FailedSols = append(summary.FailedSols, sol)
		default:
			summary.FailedSols = append(summary.FailedSols, sol)
			log.Warn("sol failed, continuing bulk run",
				zap.Int("sol", sol),
				zap.Error(solErr))
		}

		if summary.Cancelled {
			break
		}
	}

	// commit whatever the last sol accumulated; on cancellation this runs
	// on a detached context so completed work is not lost
	flushCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
	}
	if flushErr := ing.Flush(flushCtx); flushErr != nil {
		log.Warn("final flush failed", zap.Error(flushErr))
	}

	summary.Inserted, summary.Skipped = ing.Counts()
	summary.Added = ing.Added()
	summary.Duration = time.Since(start)
	return summary, nil
}
