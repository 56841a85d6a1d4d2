// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// Package photodb implements the repositories on PostgreSQL. Indexed
// columns live next to a JSONB copy of the verbatim upstream record.
package photodb

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub001/jobs"
	"github.com/james-langridge/mars-vista-api-sub001/photos"
)

var (
	mon = monkit.Package()

	// Error is the default error class for the photodb package.
	Error = errs.Class("photodb")
)

// Config contains configuration for the database.
type Config struct {
	URL             string `help:"postgres connection string"`
	MaxConns        int32  `help:"connection pool size" default:"10"`
	ApplicationName string `help:"application_name reported to postgres" default:"mars-vista"`
}

// DB gives access to all repositories backed by one connection pool.
type DB struct {
	log  *zap.Logger
	pool *pgxpool.Pool
}

// Open connects to postgres and verifies the connection.
func Open(ctx context.Context, log *zap.Logger, config Config) (*DB, error) {
	if config.URL == "" {
		return nil, Error.New("database URL is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.ApplicationName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = config.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, Error.Wrap(err)
	}

	return &DB{log: log, pool: pool}, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Rovers returns the rover repository.
func (db *DB) Rovers() photos.Rovers { return &roversDB{db: db} }

// Cameras returns the camera repository.
func (db *DB) Cameras() photos.Cameras { return &camerasDB{db: db} }

// Photos returns the photo repository.
func (db *DB) Photos() photos.Photos { return &photosDB{db: db} }

// Jobs returns the job-history repository.
func (db *DB) Jobs() jobs.DB { return &jobsDB{db: db} }
