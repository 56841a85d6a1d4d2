// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package photodb

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/james-langridge/mars-vista-api-sub001/photos"
)

// roversDB implements photos.Rovers.
type roversDB struct {
	db *DB
}

func (rovers *roversDB) All(ctx context.Context) (_ []photos.Rover, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := rovers.db.pool.Query(ctx, `
		SELECT id, name, landing_date, launch_date, status
		FROM rovers
		ORDER BY id
	`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	var result []photos.Rover
	for rows.Next() {
		var rover photos.Rover
		err := rows.Scan(&rover.ID, &rover.Name, &rover.LandingDate, &rover.LaunchDate, &rover.Status)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		result = append(result, rover)
	}
	return result, Error.Wrap(rows.Err())
}

func (rovers *roversDB) GetByID(ctx context.Context, id int64) (_ *photos.Rover, err error) {
	defer mon.Task()(&ctx)(&err)

	rover := photos.Rover{ID: id}
	err = rovers.db.pool.QueryRow(ctx, `
		SELECT name, landing_date, launch_date, status
		FROM rovers
		WHERE id = $1
	`, id).Scan(&rover.Name, &rover.LandingDate, &rover.LaunchDate, &rover.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, photos.ErrRoverNotFound.New("id %d", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &rover, nil
}

func (rovers *roversDB) GetByName(ctx context.Context, name string) (_ *photos.Rover, err error) {
	defer mon.Task()(&ctx)(&err)

	var rover photos.Rover
	err = rovers.db.pool.QueryRow(ctx, `
		SELECT id, name, landing_date, launch_date, status
		FROM rovers
		WHERE lower(name) = lower($1)
	`, name).Scan(&rover.ID, &rover.Name, &rover.LandingDate, &rover.LaunchDate, &rover.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, photos.ErrRoverNotFound.New("%q", name)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &rover, nil
}
