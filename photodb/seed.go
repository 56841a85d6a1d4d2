// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package photodb

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub001/photos"
)

type seedRover struct {
	Name        string
	LandingDate string
	LaunchDate  string
	Status      string
	Cameras     []seedCamera
}

type seedCamera struct {
	ShortName string
	FullName  string
}

var seedRovers = []seedRover{
	{
		Name: "Curiosity", LandingDate: "2012-08-06", LaunchDate: "2011-11-26",
		Status: photos.RoverActive,
		Cameras: []seedCamera{
			{"FHAZ", "Front Hazard Avoidance Camera"},
			{"RHAZ", "Rear Hazard Avoidance Camera"},
			{"MAST", "Mast Camera"},
			{"CHEMCAM", "Chemistry and Camera Complex"},
			{"MAHLI", "Mars Hand Lens Imager"},
			{"MARDI", "Mars Descent Imager"},
			{"NAVCAM", "Navigation Camera"},
		},
	},
	{
		Name: "Opportunity", LandingDate: "2004-01-25", LaunchDate: "2003-07-07",
		Status: photos.RoverComplete,
		Cameras: []seedCamera{
			{"FHAZ", "Front Hazard Avoidance Camera"},
			{"RHAZ", "Rear Hazard Avoidance Camera"},
			{"NAVCAM", "Navigation Camera"},
			{"PANCAM", "Panoramic Camera"},
			{"MINITES", "Miniature Thermal Emission Spectrometer (Mini-TES)"},
			{"ENTRY", "Entry, Descent, and Landing Camera"},
		},
	},
	{
		Name: "Spirit", LandingDate: "2004-01-04", LaunchDate: "2003-06-10",
		Status: photos.RoverComplete,
		Cameras: []seedCamera{
			{"FHAZ", "Front Hazard Avoidance Camera"},
			{"RHAZ", "Rear Hazard Avoidance Camera"},
			{"NAVCAM", "Navigation Camera"},
			{"PANCAM", "Panoramic Camera"},
			{"MINITES", "Miniature Thermal Emission Spectrometer (Mini-TES)"},
			{"ENTRY", "Entry, Descent, and Landing Camera"},
		},
	},
	{
		Name: "Perseverance", LandingDate: "2021-02-18", LaunchDate: "2020-07-30",
		Status: photos.RoverActive,
		Cameras: []seedCamera{
			{"NAVCAM_LEFT", "Navigation Camera - Left"},
			{"NAVCAM_RIGHT", "Navigation Camera - Right"},
			{"MCZ_LEFT", "Mast Camera Zoom - Left"},
			{"MCZ_RIGHT", "Mast Camera Zoom - Right"},
			{"FRONT_HAZCAM_LEFT_A", "Front Hazard Avoidance Camera - Left"},
			{"FRONT_HAZCAM_RIGHT_A", "Front Hazard Avoidance Camera - Right"},
			{"REAR_HAZCAM_LEFT", "Rear Hazard Avoidance Camera - Left"},
			{"REAR_HAZCAM_RIGHT", "Rear Hazard Avoidance Camera - Right"},
			{"SKYCAM", "MEDA Skycam"},
			{"SHERLOC_WATSON", "SHERLOC WATSON Camera"},
			{"SUPERCAM_RMI", "SuperCam Remote Micro Imager"},
			{"EDL_RUCAM", "Rover Up-Look Camera"},
			{"EDL_RDCAM", "Rover Down-Look Camera"},
			{"EDL_DDCAM", "Descent Stage Down-Look Camera"},
			{"EDL_PUCAM1", "Parachute Up-Look Camera A"},
			{"EDL_PUCAM2", "Parachute Up-Look Camera B"},
		},
	},
}

// Seed inserts the known rovers and their cameras. Safe to run repeatedly:
// existing rows are left untouched.
func (db *DB) Seed(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	for _, rover := range seedRovers {
		landing, err := time.Parse("2006-01-02", rover.LandingDate)
		if err != nil {
			return Error.Wrap(err)
		}
		launch, err := time.Parse("2006-01-02", rover.LaunchDate)
		if err != nil {
			return Error.Wrap(err)
		}

		var roverID int64
		err = db.pool.QueryRow(ctx, `
			INSERT INTO rovers (name, landing_date, launch_date, status)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT ( lower(name) ) DO UPDATE SET name = rovers.name
			RETURNING id
		`, rover.Name, landing, launch, rover.Status).Scan(&roverID)
		if err != nil {
			return Error.Wrap(err)
		}

		for _, camera := range rover.Cameras {
			_, err = db.pool.Exec(ctx, `
				INSERT INTO cameras (rover_id, short_name, full_name)
				VALUES ($1, $2, $3)
				ON CONFLICT ( rover_id, lower(short_name) ) DO NOTHING
			`, roverID, camera.ShortName, camera.FullName)
			if err != nil {
				return Error.Wrap(err)
			}
		}

		db.log.Info("seeded rover", zap.String("rover", rover.Name), zap.Int64("id", roverID))
	}
	return nil
}
