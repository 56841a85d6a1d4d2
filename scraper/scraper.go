// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// Package scraper contains the pluggable scraper framework: the per-rover
// strategy interface, the keyed registry and the shared bulk-ingest
// pipeline.
package scraper

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	mon = monkit.Package()

	// Error is the default error class for the scraper package.
	Error = errs.Class("scraper")
	// ErrUnknownRover is returned for registry lookups of unknown rovers.
	ErrUnknownRover = errs.Class("unknown rover")
	// ErrMalformedRow is the class for upstream rows that cannot be
	// normalized. Malformed rows never abort the enclosing sol or volume.
	ErrMalformedRow = errs.Class("malformed row")
)

// Scraper translates one rover's upstream representation into canonical
// photo records and ingests them incrementally and idempotently.
type Scraper interface {
	// Name returns the lowercase rover name.
	Name() string
	// ScrapeSol ingests a single sol. Repeating the call for the same sol
	// must not create duplicates.
	ScrapeSol(ctx context.Context, sol int) (SolResult, error)
	// BulkScrape ingests a sol range in ascending order. A failure on one
	// sol is recorded and the remaining sols are still processed.
	BulkScrape(ctx context.Context, startSol, endSol int) (Summary, error)
}

// SolResult is the outcome of ingesting one sol.
type SolResult struct {
	Sol      int    `json:"sol"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
	Success  bool   `json:"success"`
	Err      string `json:"error,omitempty"`
}

// AddedPhoto identifies one inserted photo for job bookkeeping.
type AddedPhoto struct {
	Sol        int
	ExternalID string
}

// Summary aggregates a bulk run.
type Summary struct {
	StartSol int `json:"start_sol"`
	EndSol   int `json:"end_sol"`

	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`

	SolsAttempted int   `json:"sols_attempted"`
	SolsSucceeded int   `json:"sols_succeeded"`
	FailedSols    []int `json:"failed_sols,omitempty"`

	Cancelled      bool `json:"cancelled,omitempty"`
	CancelledAtSol int  `json:"cancelled_at_sol,omitempty"`

	Added    []AddedPhoto  `json:"-"`
	Duration time.Duration `json:"-"`
}

// Candidate is a photo record produced by a scraper before camera
// resolution. Raw must contain at least the fields the indexed columns
// were derived from.
type Candidate struct {
	ExternalID string

	CameraShortName string
	CameraFullName  string

	Sol           int
	EarthDate     time.Time
	TakenUTC      time.Time
	MarsLocalTime string
	ReceivedUTC   *time.Time

	ImageThumbnail string
	ImageSmall     string
	ImageMedium    string
	ImageFull      string
	Width          *int
	Height         *int
	SampleType     string

	Site  *int
	Drive *int
	XYZ   string

	MastAzimuth   *float64
	MastElevation *float64
	FilterName    string
	Title         string
	Caption       string
	Credit        string

	Raw json.RawMessage
}
