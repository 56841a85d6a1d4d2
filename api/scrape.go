// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub001/jobs"
	"github.com/james-langridge/mars-vista-api-sub001/photos"
	"github.com/james-langridge/mars-vista-api-sub001/scraper"
)

// volumeScraper is implemented by archive-backed scrapers that ingest
// whole PDS volumes.
type volumeScraper interface {
	ScrapeVolume(ctx context.Context, volume string) (scraper.Summary, error)
	ScrapeAll(ctx context.Context) (scraper.Summary, error)
}

func (server *Server) scrapeSol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roverName := mux.Vars(r)["rover"]

	sol, err := requiredInt(r, "sol")
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	scr, err := server.scrapers.Lookup(roverName)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	server.progress.SetRunning(scr.Name(), true)
	defer server.progress.SetRunning(scr.Name(), false)

	recorder := jobs.NewRecorder(server.log.Named("jobs"), server.jobsDB, server.recorder)
	started := time.Now()

	result, err := scr.ScrapeSol(ctx, sol)
	if err != nil {
		server.recordSolJob(ctx, recorder, scr.Name(), sol, result, started, err)
		server.serveError(w, r, err)
		return
	}

	server.progress.Record(scr.Name(), result)
	server.recordSolJob(ctx, recorder, scr.Name(), sol, result, started, nil)
	jsonResponse(w, http.StatusOK, map[string]interface{}{"data": result})
}

func (server *Server) scrapeBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roverName := mux.Vars(r)["rover"]

	startSol, err := optionalIntParam(r, "startSol")
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	endSol, err := optionalIntParam(r, "endSol")
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	scr, err := server.scrapers.Lookup(roverName)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	server.progress.SetRunning(scr.Name(), true)
	defer server.progress.SetRunning(scr.Name(), false)

	recorder := jobs.NewRecorder(server.log.Named("jobs"), server.jobsDB, server.recorder)

	summary, err := scr.BulkScrape(ctx, startSol, endSol)
	if err != nil {
		server.recordBulkJob(ctx, recorder, scr.Name(), summary, err)
		server.serveError(w, r, err)
		return
	}

	server.progress.RecordSummary(scr.Name(), summary)
	server.recordBulkJob(ctx, recorder, scr.Name(), summary, nil)
	jsonResponse(w, http.StatusOK, map[string]interface{}{"data": summary})
}

func (server *Server) scrapeProgress(w http.ResponseWriter, r *http.Request) {
	roverName := mux.Vars(r)["rover"]

	scr, err := server.scrapers.Lookup(roverName)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	snapshot, _ := server.progress.Snapshot(scr.Name())
	jsonResponse(w, http.StatusOK, map[string]interface{}{"data": snapshot})
}

func (server *Server) scrapeVolume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	scr, err := server.scrapers.Lookup(vars["rover"])
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	volumes, ok := scr.(volumeScraper)
	if !ok {
		server.serveError(w, r, photos.ErrValidation.New("%s has no volume archive", vars["rover"]))
		return
	}

	server.progress.SetRunning(scr.Name(), true)
	defer server.progress.SetRunning(scr.Name(), false)

	recorder := jobs.NewRecorder(server.log.Named("jobs"), server.jobsDB, server.recorder)

	summary, err := volumes.ScrapeVolume(ctx, vars["volume"])
	if err != nil {
		server.recordBulkJob(ctx, recorder, scr.Name(), summary, err)
		server.serveError(w, r, err)
		return
	}

	server.progress.RecordSummary(scr.Name(), summary)
	server.recordBulkJob(ctx, recorder, scr.Name(), summary, nil)
	jsonResponse(w, http.StatusOK, map[string]interface{}{"data": summary})
}

func (server *Server) scrapeAllVolumes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roverName := mux.Vars(r)["rover"]

	scr, err := server.scrapers.Lookup(roverName)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	volumes, ok := scr.(volumeScraper)
	if !ok {
		server.serveError(w, r, photos.ErrValidation.New("%s has no volume archive", roverName))
		return
	}

	server.progress.SetRunning(scr.Name(), true)
	defer server.progress.SetRunning(scr.Name(), false)

	recorder := jobs.NewRecorder(server.log.Named("jobs"), server.jobsDB, server.recorder)

	summary, err := volumes.ScrapeAll(ctx)
	if err != nil {
		server.recordBulkJob(ctx, recorder, scr.Name(), summary, err)
		server.serveError(w, r, err)
		return
	}

	server.progress.RecordSummary(scr.Name(), summary)
	server.recordBulkJob(ctx, recorder, scr.Name(), summary, nil)
	jsonResponse(w, http.StatusOK, map[string]interface{}{"data": summary})
}

func (server *Server) recentJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := optionalIntParam(r, "limit")
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if limit <= 0 {
		limit = server.recorder.HistoryPageSize
	}

	recent, err := server.jobsDB.RecentJobs(ctx, limit)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	data := make([]map[string]interface{}, 0, len(recent))
	for i := range recent {
		data = append(data, renderJob(&recent[i]))
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"data": data})
}

func (server *Server) recordSolJob(ctx context.Context, recorder *jobs.Recorder, rover string, sol int, result scraper.SolResult, started time.Time, runErr error) {
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
	server.finishJob(ctx, recorder)
}

func (server *Server) recordBulkJob(ctx context.Context, recorder *jobs.Recorder, rover string, summary scraper.Summary, runErr error) {
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
	server.finishJob(ctx, recorder)
}

// finishJob commits job history on a background context so a cancelled
// request still records its partial progress.
func (server *Server) finishJob(ctx context.Context, recorder *jobs.Recorder) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := recorder.Finish(commitCtx); err != nil {
		server.log.Error("job history commit failed", zap.Error(err))
	}
}

func renderJob(job *jobs.Job) map[string]interface{} {
	details := make([]map[string]interface{}, 0, len(job.Details))
	for _, detail := range job.Details {
		details = append(details, map[string]interface{}{
			"rover":          detail.RoverName,
			"start_sol":      detail.StartSol,
			"end_sol":        detail.EndSol,
			"sols_attempted": detail.SolsAttempted,
			"sols_succeeded": detail.SolsSucceeded,
			"photos_added":   detail.PhotosAdded,
			"failed_sols":    detail.FailedSols,
			"added_photos":   detail.AddedPhotos,
			"error_message":  detail.ErrorMessage,
			"duration":       detail.Duration.Seconds(),
			"status":         detail.Status,
		})
	}
	return map[string]interface{}{
		"id":               job.ID,
		"started_at":       job.StartedAt,
		"finished_at":      job.FinishedAt,
		"duration":         job.Duration.Seconds(),
		"rovers_attempted": job.RoversAttempted,
		"rovers_succeeded": job.RoversSucceeded,
		"photos_added":     job.PhotosAdded,
		"status":           job.Status,
		"details":          details,
	}
}

func requiredInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, photos.ErrValidation.New("%s is required", key)
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, photos.ErrValidation.New("%s must be a non-negative integer", key)
	}
	return parsed, nil
}

func optionalIntParam(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, photos.ErrValidation.New("%s must be an integer", key)
	}
	return parsed, nil
}
