// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package photos

import (
	"context"
	"time"
)

// Rover statuses. Retired rovers are "complete"; rovers still sending
// imagery are "active".
const (
	RoverActive   = "active"
	RoverComplete = "complete"
)

// Rover is a single Mars rover mission.
type Rover struct {
	ID          int64
	Name        string
	LandingDate time.Time
	LaunchDate  time.Time
	Status      string
}

// Rovers gives access to the rover reference table.
//
// architecture: Database
type Rovers interface {
	// All returns every rover ordered by id.
	All(ctx context.Context) ([]Rover, error)
	// GetByID returns the rover with the given id.
	GetByID(ctx context.Context, id int64) (*Rover, error)
	// GetByName returns the rover with the given name, case-insensitively.
	GetByName(ctx context.Context, name string) (*Rover, error)
}

// secondsPerSol is the length of a Martian solar day in seconds.
const secondsPerSol = 88775.244

// EarthDateForSol derives the calendar date of a sol from the rover's
// landing date. Upstream-published earth dates take precedence over the
// derived value.
func EarthDateForSol(landing time.Time, sol int) time.Time {
	elapsed := time.Duration(float64(sol) * secondsPerSol * float64(time.Second))
	return landing.Add(elapsed).UTC().Truncate(24 * time.Hour)
}
