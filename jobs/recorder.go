// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"
)

var mon = monkit.Package()

// RecorderConfig contains configuration for the job recorder.
type RecorderConfig struct {
	MaxFailedSols   int `help:"bound on failed sols kept per rover detail" default:"100"`
	MaxAddedPhotos  int `help:"bound on added-photo summaries kept per rover detail" default:"1000"`
	HistoryPageSize int `help:"jobs returned by the history endpoint" default:"20"`
}

// Recorder accumulates one job's per-rover outcomes and commits the job
// atomically when the run finishes. Every error the scrapers swallow ends
// up here.
type Recorder struct {
	log    *zap.Logger
	db     DB
	config RecorderConfig

	mu  sync.Mutex
	job Job
}

// NewRecorder starts recording a job.
func NewRecorder(log *zap.Logger, db DB, config RecorderConfig) *Recorder {
	if config.MaxFailedSols <= 0 {
		config.MaxFailedSols = 100
	}
	if config.MaxAddedPhotos <= 0 {
		config.MaxAddedPhotos = 1000
	}
	if config.HistoryPageSize <= 0 {
		config.HistoryPageSize = 20
	}
	return &Recorder{
		log:    log,
		db:     db,
		config: config,
		job:    Job{StartedAt: time.Now()},
	}
}

// AddRoverDetail appends one rover's outcome. Enumerations are capped to
// bound row size.
func (recorder *Recorder) AddRoverDetail(detail RoverDetail) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	if len(detail.FailedSols) > recorder.config.MaxFailedSols {
		detail.FailedSols = detail.FailedSols[:recorder.config.MaxFailedSols]
	}
	if len(detail.AddedPhotos) > recorder.config.MaxAddedPhotos {
		detail.AddedPhotos = detail.AddedPhotos[:recorder.config.MaxAddedPhotos]
	}
	if detail.Status == "" {
		detail.Status = detailStatus(detail)
	}

	recorder.job.RoversAttempted++
	if detail.Status == StatusSuccess {
		recorder.job.RoversSucceeded++
	}
	recorder.job.PhotosAdded += detail.PhotosAdded
	recorder.job.Details = append(recorder.job.Details, detail)
}

// Finish computes the job status and commits it.
func (recorder *Recorder) Finish(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	recorder.mu.Lock()
	recorder.job.FinishedAt = time.Now()
	recorder.job.Duration = recorder.job.FinishedAt.Sub(recorder.job.StartedAt)
	recorder.job.Status = jobStatus(recorder.job)
	job := recorder.job
	recorder.mu.Unlock()

	if err := recorder.db.RecordJob(ctx, &job); err != nil {
		recorder.log.Error("failed to record job history", zap.Error(err))
		return Error.Wrap(err)
	}
	return nil
}

func detailStatus(detail RoverDetail) string {
	switch {
	case detail.SolsAttempted == 0:
		if detail.ErrorMessage != "" {
			return StatusFailed
		}
		return StatusSuccess
	case detail.SolsSucceeded == detail.SolsAttempted:
		return StatusSuccess
	case detail.SolsSucceeded == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

func jobStatus(job Job) string {
	switch {
	case job.RoversAttempted == 0:
		return StatusSuccess
	case job.RoversSucceeded == job.RoversAttempted:
		return StatusSuccess
	case job.RoversSucceeded == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
