// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package photos

import "context"

// Camera is one imaging instrument on a rover. The short name ("FHAZ",
// "NAVCAM", ...) is unique per rover.
type Camera struct {
	ID        int64
	RoverID   int64
	ShortName string
	FullName  string
}

// Cameras gives access to the camera reference table.
//
// architecture: Database
type Cameras interface {
	// All returns every camera ordered by id.
	All(ctx context.Context) ([]Camera, error)
	// ListByRover returns the cameras belonging to a rover.
	ListByRover(ctx context.Context, roverID int64) ([]Camera, error)
	// FindByShortName returns a rover's camera by short name,
	// case-insensitively. Returns ErrCameraNotFound when missing.
	FindByShortName(ctx context.Context, roverID int64, shortName string) (*Camera, error)
	// FindOrCreate returns a rover's camera by short name, creating it with
	// the short name as a placeholder full name when it does not exist yet.
	// The second return value reports whether a row was created.
	FindOrCreate(ctx context.Context, roverID int64, shortName, fullName string) (*Camera, bool, error)
}
