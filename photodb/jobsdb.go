// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package photodb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/james-langridge/mars-vista-api-sub001/jobs"
)

// jobsDB implements jobs.DB.
type jobsDB struct {
	db *DB
}

func (db *jobsDB) RecordJob(ctx context.Context, job *jobs.Job) (err error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := db.db.pool.Begin(ctx)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
		INSERT INTO scraper_jobs (
			started_at, finished_at, duration_seconds,
			rovers_attempted, rovers_succeeded, photos_added, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		job.StartedAt, job.FinishedAt, job.Duration.Seconds(),
		job.RoversAttempted, job.RoversSucceeded, job.PhotosAdded, job.Status,
	).Scan(&job.ID)
	if err != nil {
		return Error.Wrap(err)
	}

	for i := range job.Details {
		detail := &job.Details[i]
		detail.JobID = job.ID

		failedSols, err := json.Marshal(emptyIfNilInts(detail.FailedSols))
		if err != nil {
			return Error.Wrap(err)
		}
		addedPhotos, err := json.Marshal(emptyIfNilSummaries(detail.AddedPhotos))
		if err != nil {
			return Error.Wrap(err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO scraper_job_details (
				job_id, rover_name, start_sol, end_sol,
				sols_attempted, sols_succeeded, photos_added,
				failed_sols, added_photos, error_message,
				duration_seconds, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id
		`,
			detail.JobID, detail.RoverName, detail.StartSol, detail.EndSol,
			detail.SolsAttempted, detail.SolsSucceeded, detail.PhotosAdded,
			failedSols, addedPhotos, detail.ErrorMessage,
			detail.Duration.Seconds(), detail.Status,
		).Scan(&detail.ID)
		if err != nil {
			return Error.Wrap(err)
		}
	}

	return Error.Wrap(tx.Commit(ctx))
}

func (db *jobsDB) RecentJobs(ctx context.Context, limit int) (_ []jobs.Job, err error) {
	defer mon.Task()(&ctx)(&err)

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.db.pool.Query(ctx, `
		SELECT id, started_at, finished_at, duration_seconds,
			rovers_attempted, rovers_succeeded, photos_added, status
		FROM scraper_jobs
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	var result []jobs.Job
	var ids []int64
	for rows.Next() {
		var job jobs.Job
		var durationSeconds float64
		err := rows.Scan(&job.ID, &job.StartedAt, &job.FinishedAt, &durationSeconds,
			&job.RoversAttempted, &job.RoversSucceeded, &job.PhotosAdded, &job.Status)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		job.Duration = time.Duration(durationSeconds * float64(time.Second))
		result = append(result, job)
		ids = append(ids, job.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, Error.Wrap(err)
	}
	if len(result) == 0 {
		return result, nil
	}

	details, err := db.detailsForJobs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Details = details[result[i].ID]
	}
	return result, nil
}

func (db *jobsDB) detailsForJobs(ctx context.Context, jobIDs []int64) (map[int64][]jobs.RoverDetail, error) {
	rows, err := db.db.pool.Query(ctx, `
		SELECT id, job_id, rover_name, start_sol, end_sol,
			sols_attempted, sols_succeeded, photos_added,
			failed_sols, added_photos, error_message,
			duration_seconds, status
		FROM scraper_job_details
		WHERE job_id = ANY($1)
		ORDER BY id
	`, jobIDs)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	byJob := make(map[int64][]jobs.RoverDetail)
	for rows.Next() {
		var detail jobs.RoverDetail
		var failedSols, addedPhotos []byte
		var durationSeconds float64
		err := rows.Scan(&detail.ID, &detail.JobID, &detail.RoverName,
			&detail.StartSol, &detail.EndSol,
			&detail.SolsAttempted, &detail.SolsSucceeded, &detail.PhotosAdded,
			&failedSols, &addedPhotos, &detail.ErrorMessage,
			&durationSeconds, &detail.Status)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		detail.Duration = time.Duration(durationSeconds * float64(time.Second))
		if err := json.Unmarshal(failedSols, &detail.FailedSols); err != nil {
			return nil, Error.Wrap(err)
		}
		if err := json.Unmarshal(addedPhotos, &detail.AddedPhotos); err != nil {
			return nil, Error.Wrap(err)
		}
		byJob[detail.JobID] = append(byJob[detail.JobID], detail)
	}
	return byJob, Error.Wrap(rows.Err())
}

func emptyIfNilInts(values []int) []int {
	if values == nil {
		return []int{}
	}
	return values
}

func emptyIfNilSummaries(values []jobs.PhotoSummary) []jobs.PhotoSummary {
	if values == nil {
		return []jobs.PhotoSummary{}
	}
	return values
}
