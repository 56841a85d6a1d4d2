// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub001/compare"
	"github.com/james-langridge/mars-vista-api-sub001/fetch"
	"github.com/james-langridge/mars-vista-api-sub001/jobs"
	"github.com/james-langridge/mars-vista-api-sub001/photodb"
	"github.com/james-langridge/mars-vista-api-sub001/photos"
	"github.com/james-langridge/mars-vista-api-sub001/scraper"
	"github.com/james-langridge/mars-vista-api-sub001/scraper/curiosity"
	"github.com/james-langridge/mars-vista-api-sub001/scraper/pds"
	"github.com/james-langridge/mars-vista-api-sub001/scraper/perseverance"
)

// runtime holds the shared wiring every command needs: the database, the
// scrapers and the services on top of them.
type runtime struct {
	log *zap.Logger
	db  *photodb.DB

	queries  *photos.Service
	scrapers *scraper.Registry
	progress *scraper.Progress
	compares *compare.Service
}

// openRuntime connects the database and registers the scraper of every
// rover present in the reference table.
func openRuntime(ctx context.Context, log *zap.Logger) (*runtime, error) {
	if runCfg.Database.URL == "" {
		return nil, fmt.Errorf("--database-url (MARSVISTA_DATABASE_URL) is required")
	}

	db, err := photodb.Open(ctx, log.Named("db"), runCfg.Database)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		log:      log,
		db:       db,
		scrapers: scraper.NewRegistry(),
		progress: scraper.NewProgress(),
	}

	rt.queries = photos.NewService(log.Named("photos"),
		db.Rovers(), db.Cameras(), db.Photos(), runCfg.Query)

	fetcher := fetch.NewClient(log.Named("fetch"), runCfg.Fetch)

	rt.compares = compare.NewService(log.Named("compare"),
		db.Rovers(), db.Photos(), runCfg.Compare)

	rovers, err := db.Rovers().All(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, rover := range rovers {
		switch rover.Name {
		case "Curiosity":
			client := curiosity.NewClient(log.Named("curiosity"), fetcher, runCfg.Curiosity)
			rt.scrapers.Register(curiosity.NewScraper(
				log.Named("curiosity"), client, db.Photos(), db.Cameras(), rover, runCfg.Ingest))
			rt.compares.RegisterSource(rover.Name, compare.CuriositySource{Client: client})
		case "Perseverance":
			client := perseverance.NewClient(log.Named("perseverance"), fetcher, runCfg.Perseverance)
			rt.scrapers.Register(perseverance.NewScraper(
				log.Named("perseverance"), client, db.Photos(), db.Cameras(), rover, runCfg.Ingest))
			rt.compares.RegisterSource(rover.Name, compare.PerseveranceSource{
				Client:     client,
				SampleType: runCfg.Perseverance.SampleType,
			})
		case "Opportunity":
			rt.scrapers.Register(pds.NewScraper(
				log.Named("pds"), fetcher, db.Photos(), db.Cameras(), rover,
				pds.OpportunityVolumes, runCfg.PDS, runCfg.Ingest))
		case "Spirit":
			rt.scrapers.Register(pds.NewScraper(
				log.Named("pds"), fetcher, db.Photos(), db.Cameras(), rover,
				pds.SpiritVolumes, runCfg.PDS, runCfg.Ingest))
		default:
			log.Warn("no scraper for rover", zap.String("rover", rover.Name))
		}
	}

	return rt, nil
}

// Close releases the runtime's resources.
func (rt *runtime) Close() {
	rt.db.Close()
}

func recordSol(recorder *jobs.Recorder, rover string, sol int, result scraper.SolResult, started time.Time, runErr error) {
	detail := jobs.RoverDetail{
		RoverName:     rover,
		StartSol:      sol,
		EndSol:        sol,
		SolsAttempted: 1,
		PhotosAdded:   result.Inserted,
		Duration:      time.Since(started),
	}
	switch {
	case runErr != nil:
		detail.ErrorMessage = runErr.Error()
		detail.FailedSols = []int{sol}
	case !result.Success:
		detail.ErrorMessage = result.Err
		detail.FailedSols = []int{sol}
	default:
		detail.SolsSucceeded = 1
	}
	recorder.AddRoverDetail(detail)
}

func recordBulk(recorder *jobs.Recorder, rover string, summary scraper.Summary, runErr error) {
	detail := jobs.RoverDetail{
		RoverName:     rover,
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
	switch {
	case runErr != nil:
		detail.ErrorMessage = runErr.Error()
	case summary.Cancelled:
		detail.ErrorMessage = fmt.Sprintf("cancelled at sol %d", summary.CancelledAtSol)
		detail.Status = jobs.StatusPartial
	}
	recorder.AddRoverDetail(detail)
}

// commitJob records job history even when the command's context was
// already cancelled.
func commitJob(log *zap.Logger, recorder *jobs.Recorder) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := recorder.Finish(ctx); err != nil {
		log.Error("job history commit failed", zap.Error(err))
	}
}
