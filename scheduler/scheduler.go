// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// Package scheduler periodically re-scrapes the tail of every active
// rover's mission, one job per run.
package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/james-langridge/mars-vista-api-sub001/jobs"
	"github.com/james-langridge/mars-vista-api-sub001/photos"
	"github.com/james-langridge/mars-vista-api-sub001/private/sync2"
	"github.com/james-langridge/mars-vista-api-sub001/scraper"
)

var (
	mon = monkit.Package()

	// Error is the default error class for the scheduler package.
	Error = errs.Class("scheduler")
)

// Config contains configuration for the scheduler.
type Config struct {
	Interval time.Duration `help:"how often the scheduled scrape runs" default:"24h"`
	LastSols int           `help:"how many trailing sols to re-scrape per rover" default:"5"`
}

// Scheduler runs "scrape the last K sols of each active rover" on a
// cycle. Rovers run in parallel; each rover's own run stays serial.
type Scheduler struct {
	log      *zap.Logger
	rovers   photos.Rovers
	photos   photos.Photos
	scrapers *scraper.Registry
	progress *scraper.Progress
	jobsDB   jobs.DB
	recorder jobs.RecorderConfig
	config   Config

	cycle *sync2.Cycle
}

// New creates a scheduler.
func New(log *zap.Logger, rovers photos.Rovers, photoDB photos.Photos,
	scrapers *scraper.Registry, progress *scraper.Progress,
	jobsDB jobs.DB, recorder jobs.RecorderConfig, config Config) *Scheduler {

	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	if config.LastSols <= 0 {
		config.LastSols = 5
	}
	return &Scheduler{
		log:      log,
		rovers:   rovers,
		photos:   photoDB,
		scrapers: scrapers,
		progress: progress,
		jobsDB:   jobsDB,
		recorder: recorder,
		config:   config,
		cycle:    sync2.NewCycle(config.Interval),
	}
}

// Run executes scheduled scrapes until the context is cancelled.
func (scheduler *Scheduler) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return scheduler.cycle.Run(ctx, func(ctx context.Context) error {
		if err := scheduler.RunOnce(ctx); err != nil {
			// A failed run is logged and retried next cycle.
			scheduler.log.Error("scheduled scrape failed", zap.Error(err))
		}
		return nil
	})
}

// RunOnce scrapes the trailing sols of every active rover in parallel
// and records a single job covering all of them.
func (scheduler *Scheduler) RunOnce(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	rovers, err := scheduler.rovers.All(ctx)
	if err != nil {
		return Error.Wrap(err)
	}

	recorder := jobs.NewRecorder(scheduler.log.Named("jobs"), scheduler.jobsDB, scheduler.recorder)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, rover := range rovers {
		if rover.Status != photos.RoverActive {
			continue
		}
		rover := rover
		group.Go(func() error {
			scheduler.scrapeRover(groupCtx, recorder, rover)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Error.Wrap(err)
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return recorder.Finish(commitCtx)
}

func (scheduler *Scheduler) scrapeRover(ctx context.Context, recorder *jobs.Recorder, rover photos.Rover) {
	name := strings.ToLower(rover.Name)
	log := scheduler.log.With(zap.String("rover", name))

	scr, err := scheduler.scrapers.Lookup(name)
	if err != nil {
		log.Warn("no scraper registered", zap.Error(err))
		return
	}

	startSol := 0
	if maxSol, found, err := scheduler.photos.MaxSol(ctx, rover.ID); err != nil {
		log.Error("max sol lookup failed", zap.Error(err))
		recorder.AddRoverDetail(jobs.RoverDetail{
			RoverName:    name,
			ErrorMessage: err.Error(),
			Status:       jobs.StatusFailed,
		})
		return
	} else if found {
		startSol = maxSol - scheduler.config.LastSols + 1
		if startSol < 0 {
			startSol = 0
		}
	}

	scheduler.progress.SetRunning(name, true)
	defer scheduler.progress.SetRunning(name, false)

	summary, err := scr.BulkScrape(ctx, startSol, 0)

	detail := jobs.RoverDetail{
		RoverName:     name,
		StartSol:      summary.StartSol,
		EndSol:        summary.EndSol,
		SolsAttempted: summary.SolsAttempted,
		SolsSucceeded: summary.SolsSucceeded,
		PhotosAdded:   summary.Inserted,
		FailedSols:    summary.FailedSols,
		Duration:      summary.Duration,
	}
	for _, added := range summary.Added {
		detail.AddedPhotos = append(detail.AddedPhotos, jobs.PhotoSummary{
			Sol:        added.Sol,
			ExternalID: added.ExternalID,
		})
	}
	if err != nil {
		log.Error("scheduled rover scrape failed", zap.Error(err))
		detail.ErrorMessage = err.Error()
	} else {
		scheduler.progress.RecordSummary(name, summary)
		log.Info("scheduled rover scrape finished",
			zap.Int("start_sol", summary.StartSol),
			zap.Int("end_sol", summary.EndSol),
			zap.Int("inserted", summary.Inserted),
			zap.Int("skipped", summary.Skipped))
	}
	recorder.AddRoverDetail(detail)
}

// TriggerWait runs one scheduled scrape out of cycle and waits for it.
func (scheduler *Scheduler) TriggerWait(ctx context.Context) {
	scheduler.cycle.TriggerWait(ctx)
}
