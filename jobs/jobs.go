// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// Package jobs records scraper-run history: one job per invocation with
// per-rover, per-sol detail.
package jobs

import (
	"context"
	"time"

	"github.com/zeebo/errs"
)

// Error is the default error class for the jobs package.
var Error = errs.Class("jobs")

// Job statuses. A job is partial when some but not all attempted rovers
// (or sols within them) succeeded.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Job is one scraper invocation, single-sol or bulk.
type Job struct {
	ID int64

	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration

	RoversAttempted int
	RoversSucceeded int
	PhotosAdded     int

	Status string

	Details []RoverDetail
}

// PhotoSummary identifies one added photo inside a detail row.
type PhotoSummary struct {
	Sol        int    `json:"sol"`
	ExternalID string `json:"external_id"`
}

// RoverDetail is the per-rover outcome within a job.
type RoverDetail struct {
	ID    int64
	JobID int64

	RoverName string

	StartSol int
	EndSol   int

	SolsAttempted int
	SolsSucceeded int
	PhotosAdded   int

	FailedSols   []int
	AddedPhotos  []PhotoSummary
	ErrorMessage string

	Duration time.Duration
	Status   string
}

// DB persists job history.
//
// architecture: Database
type DB interface {
	// RecordJob commits a finished job and its details atomically.
	RecordJob(ctx context.Context, job *Job) error
	// RecentJobs returns the most recent jobs, newest first, details
	// included.
	RecentJobs(ctx context.Context, limit int) ([]Job, error)
}
