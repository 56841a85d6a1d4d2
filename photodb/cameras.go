// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package photodb

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/james-langridge/mars-vista-api-sub001/photos"
)

// camerasDB implements photos.Cameras.
type camerasDB struct {
	db *DB
}

func (cameras *camerasDB) All(ctx context.Context) (_ []photos.Camera, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := cameras.db.pool.Query(ctx, `
		SELECT id, rover_id, short_name, full_name
		FROM cameras
		ORDER BY id
	`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	return scanCameras(rows)
}

func (cameras *camerasDB) ListByRover(ctx context.Context, roverID int64) (_ []photos.Camera, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := cameras.db.pool.Query(ctx, `
		SELECT id, rover_id, short_name, full_name
		FROM cameras
		WHERE rover_id = $1
		ORDER BY id
	`, roverID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	return scanCameras(rows)
}

func (cameras *camerasDB) FindByShortName(ctx context.Context, roverID int64, shortName string) (_ *photos.Camera, err error) {
	defer mon.Task()(&ctx)(&err)

	camera := photos.Camera{RoverID: roverID}
	err = cameras.db.pool.QueryRow(ctx, `
		SELECT id, short_name, full_name
		FROM cameras
		WHERE rover_id = $1 AND lower(short_name) = lower($2)
	`, roverID, shortName).Scan(&camera.ID, &camera.ShortName, &camera.FullName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, photos.ErrCameraNotFound.New("%q on rover %d", shortName, roverID)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &camera, nil
}

func (cameras *camerasDB) FindOrCreate(ctx context.Context, roverID int64, shortName, fullName string) (_ *photos.Camera, created bool, err error) {
	defer mon.Task()(&ctx)(&err)

	if fullName == "" {
		fullName = shortName
	}

	camera := photos.Camera{RoverID: roverID}
	err = cameras.db.pool.QueryRow(ctx, `
		INSERT INTO cameras (rover_id, short_name, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT ( rover_id, lower(short_name) ) DO NOTHING
		RETURNING id, short_name, full_name
	`, roverID, shortName, fullName).Scan(&camera.ID, &camera.ShortName, &camera.FullName)
	if err == nil {
		return &camera, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, Error.Wrap(err)
	}

	// Conflict: another insert won, or the row already existed.
	existing, err := cameras.FindByShortName(ctx, roverID, shortName)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func scanCameras(rows pgx.Rows) ([]photos.Camera, error) {
	var result []photos.Camera
	for rows.Next() {
		var camera photos.Camera
		err := rows.Scan(&camera.ID, &camera.RoverID, &camera.ShortName, &camera.FullName)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		result = append(result, camera)
	}
	return result, Error.Wrap(rows.Err())
}
