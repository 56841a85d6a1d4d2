// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package photodb

import (
	"context"

	"go.uber.org/zap"
)

// migration is one versioned schema step. Statements run inside a single
// transaction together with the version bump.
type migration struct {
	Version     int
	Description string
	Statements  []string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "initial schema",
		Statements: []string{
			`CREATE TABLE rovers (
				id bigserial PRIMARY KEY,
				name text NOT NULL,
				landing_date date NOT NULL,
				launch_date date NOT NULL,
				status text NOT NULL DEFAULT 'active'
			)`,
			`CREATE UNIQUE INDEX rovers_name_key ON rovers ( lower(name) )`,

			`CREATE TABLE cameras (
				id bigserial PRIMARY KEY,
				rover_id bigint NOT NULL REFERENCES rovers (id),
				short_name text NOT NULL,
				full_name text NOT NULL DEFAULT ''
			)`,
			`CREATE UNIQUE INDEX cameras_rover_short_name_key ON cameras ( rover_id, lower(short_name) )`,

			`CREATE TABLE photos (
				id bigserial PRIMARY KEY,
				external_id text NOT NULL,
				rover_id bigint NOT NULL REFERENCES rovers (id),
				camera_id bigint NOT NULL REFERENCES cameras (id),
				sol integer NOT NULL,
				earth_date date NOT NULL,
				taken_utc timestamptz,
				mars_local_time text,
				received_utc timestamptz,
				image_thumbnail text,
				image_small text,
				image_medium text,
				image_full text,
				width integer,
				height integer,
				sample_type text,
				site integer,
				drive integer,
				xyz text,
				mast_azimuth double precision,
				mast_elevation double precision,
				filter_name text,
				title text,
				caption text,
				credit text,
				raw jsonb NOT NULL DEFAULT '{}',
				created_at timestamptz NOT NULL DEFAULT now(),
				updated_at timestamptz NOT NULL DEFAULT now()
			)`,
			`CREATE UNIQUE INDEX photos_external_id_key ON photos ( external_id )`,
			`CREATE INDEX photos_sol_index ON photos ( sol )`,
			`CREATE INDEX photos_earth_date_index ON photos ( earth_date )`,
			`CREATE INDEX photos_rover_id_index ON photos ( rover_id )`,
			`CREATE INDEX photos_camera_id_index ON photos ( camera_id )`,
			`CREATE INDEX photos_rover_sol_index ON photos ( rover_id, sol )`,

			`CREATE TABLE scraper_jobs (
				id bigserial PRIMARY KEY,
				started_at timestamptz NOT NULL,
				finished_at timestamptz NOT NULL,
				duration_seconds double precision NOT NULL,
				rovers_attempted integer NOT NULL,
				rovers_succeeded integer NOT NULL,
				photos_added integer NOT NULL,
				status text NOT NULL
			)`,
			`CREATE TABLE scraper_job_details (
				id bigserial PRIMARY KEY,
				job_id bigint NOT NULL REFERENCES scraper_jobs (id) ON DELETE CASCADE,
				rover_name text NOT NULL,
				start_sol integer NOT NULL,
				end_sol integer NOT NULL,
				sols_attempted integer NOT NULL,
				sols_succeeded integer NOT NULL,
				photos_added integer NOT NULL,
				failed_sols jsonb NOT NULL DEFAULT '[]',
				added_photos jsonb NOT NULL DEFAULT '[]',
				error_message text NOT NULL DEFAULT '',
				duration_seconds double precision NOT NULL,
				status text NOT NULL
			)`,
			`CREATE INDEX scraper_job_details_job_id_index ON scraper_job_details ( job_id )`,
		},
	},
	{
		Version:     2,
		Description: "manifest covering index",
		Statements: []string{
			`CREATE INDEX photos_manifest_index ON photos ( rover_id, sol, earth_date, camera_id )`,
		},
	},
}

// MigrateToLatest applies all pending schema migrations.
func (db *DB) MigrateToLatest(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_versions (
			version integer PRIMARY KEY,
			applied_at timestamptz NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return Error.Wrap(err)
	}

	var current int
	err = db.pool.QueryRow(ctx, `SELECT coalesce(max(version), 0) FROM schema_versions`).Scan(&current)
	if err != nil {
		return Error.Wrap(err)
	}

	for _, step := range migrations {
		if step.Version <= current {
			continue
		}

		db.log.Info("applying migration",
			zap.Int("version", step.Version),
			zap.String("description", step.Description))

		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return Error.Wrap(err)
		}
		for _, statement := range step.Statements {
			if _, err := tx.Exec(ctx, statement); err != nil {
				_ = tx.Rollback(ctx)
				return Error.New("migration %d: %w", step.Version, err)
			}
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_versions (version) VALUES ($1)`, step.Version); err != nil {
			_ = tx.Rollback(ctx)
			return Error.Wrap(err)
		}
		if err := tx.Commit(ctx); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}
