// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package photos_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/james-langridge/mars-vista-api-sub001/photos"
	"github.com/james-langridge/mars-vista-api-sub001/private/teststore"
)

func date(value string) time.Time {
	parsed, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		panic(err)
	}
	return parsed
}

// seedService returns a service over a store with one rover, two cameras
// and a few photos spread over two sols.
func seedService(t *testing.T) (*photos.Service, *teststore.DB, photos.Rover) {
	db := teststore.New()
	rover := db.AddRover(photos.Rover{
		Name:        "Curiosity",
		LandingDate: date("2012-08-06"),
		Status:      photos.RoverActive,
	})
	fhaz := db.AddCamera(photos.Camera{RoverID: rover.ID, ShortName: "FHAZ", FullName: "Front Hazard Avoidance Camera"})
	navcam := db.AddCamera(photos.Camera{RoverID: rover.ID, ShortName: "NAVCAM", FullName: "Navigation Camera"})

	_, err := db.Photos().AddPhotos(context.Background(), []photos.Photo{
		{ExternalID: "MSL-100-1", RoverID: rover.ID, CameraID: fhaz.ID, Sol: 100, EarthDate: date("2012-11-16")},
		{ExternalID: "MSL-100-2", RoverID: rover.ID, CameraID: navcam.ID, Sol: 100, EarthDate: date("2012-11-16")},
		{ExternalID: "MSL-100-3", RoverID: rover.ID, CameraID: fhaz.ID, Sol: 100, EarthDate: date("2012-11-16")},
		{ExternalID: "MSL-200-1", RoverID: rover.ID, CameraID: navcam.ID, Sol: 200, EarthDate: date("2013-02-27")},
	})
	require.NoError(t, err)

	service := photos.NewService(zaptest.NewLogger(t),
		db.Rovers(), db.Cameras(), db.Photos(), photos.Config{DefaultPerPage: 2, MaxPerPage: 3})
	return service, db, rover
}

func TestRoverPhotosRequiresDate(t *testing.T) {
	ctx := context.Background()
	service, _, _ := seedService(t)

	_, err := service.RoverPhotos(ctx, "curiosity", photos.Request{})
	require.Error(t, err)
	require.True(t, photos.ErrValidation.Has(err))
}

func TestRoverPhotosUnknownRover(t *testing.T) {
	ctx := context.Background()
	service, _, _ := seedService(t)

	sol := 100
	_, err := service.RoverPhotos(ctx, "voyager", photos.Request{Sol: &sol})
	require.True(t, photos.ErrRoverNotFound.Has(err))
}

func TestRoverPhotosSolWinsOverEarthDate(t *testing.T) {
	ctx := context.Background()
	service, _, _ := seedService(t)

	sol := 200
	wrongDate := date("2012-11-16")
	page, err := service.RoverPhotos(ctx, "Curiosity", photos.Request{Sol: &sol, EarthDate: &wrongDate})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.TotalCount)
	require.Equal(t, "MSL-200-1", page.Photos[0].ExternalID)
}

func TestRoverPhotosByEarthDate(t *testing.T) {
	ctx := context.Background()
	service, _, _ := seedService(t)

	day := date("2013-02-27")
	page, err := service.RoverPhotos(ctx, "curiosity", photos.Request{EarthDate: &day})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.TotalCount)
}

func TestRoverPhotosCameraFilter(t *testing.T) {
	ctx := context.Background()
	service, _, _ := seedService(t)

	sol := 100
	page, err := service.RoverPhotos(ctx, "curiosity", photos.Request{Sol: &sol, Camera: "fhaz"})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.TotalCount)
	for _, photo := range page.Photos {
		require.Equal(t, "FHAZ", photo.CameraShortName)
	}
}

func TestRoverPhotosTwoPhaseEmptyDate(t *testing.T) {
	ctx := context.Background()
	service, _, _ := seedService(t)

	// No photos at sol 999: the empty date phase short-circuits and the
	// camera filter is never applied, so even a bogus camera succeeds.
	sol := 999
	page, err := service.RoverPhotos(ctx, "curiosity", photos.Request{Sol: &sol, Camera: "NO_SUCH_CAMERA"})
	require.NoError(t, err)
	require.EqualValues(t, 0, page.TotalCount)
	require.Empty(t, page.Photos)
}

func TestRoverPhotosUnknownCameraWithData(t *testing.T) {
	ctx := context.Background()
	service, _, _ := seedService(t)

	// Photos exist at sol 100, but the camera is unknown: empty result,
	// not an error.
	sol := 100
	page, err := service.RoverPhotos(ctx, "curiosity", photos.Request{Sol: &sol, Camera: "CHEMCAM"})
	require.NoError(t, err)
	require.EqualValues(t, 0, page.TotalCount)
	require.Empty(t, page.Photos)
}

func TestRoverPhotosOrderedByCameraThenID(t *testing.T) {
	ctx := context.Background()
	service, _, _ := seedService(t)

	sol := 100
	page, err := service.RoverPhotos(ctx, "curiosity", photos.Request{Sol: &sol, PerPage: 3})
	require.NoError(t, err)
	require.Len(t, page.Photos, 3)
	// FHAZ (camera 1) rows first in insertion order, then NAVCAM.
	require.Equal(t, "MSL-100-1", page.Photos[0].ExternalID)
	require.Equal(t, "MSL-100-3", page.Photos[1].ExternalID)
	require.Equal(t, "MSL-100-2", page.Photos[2].ExternalID)
}

func TestPagination(t *testing.T) {
	ctx := context.Background()
	service, _, _ := seedService(t)

	sol := 100

	// default per_page comes from config
	page, err := service.RoverPhotos(ctx, "curiosity", photos.Request{Sol: &sol})
	require.NoError(t, err)
	require.Equal(t, 2, page.PerPage)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Photos, 2)

	// second page holds the remainder
	page, err = service.RoverPhotos(ctx, "curiosity", photos.Request{Sol: &sol, Page: 2})
	require.NoError(t, err)
	require.Len(t, page.Photos, 1)

	// out-of-range page: empty data, correct totals
	page, err = service.RoverPhotos(ctx, "curiosity", photos.Request{Sol: &sol, Page: 7})
	require.NoError(t, err)
	require.Empty(t, page.Photos)
	require.EqualValues(t, 3, page.TotalCount)
	require.Equal(t, 2, page.TotalPages)

	// per_page above the cap gets clamped
	page, err = service.RoverPhotos(ctx, "curiosity", photos.Request{Sol: &sol, PerPage: 1000})
	require.NoError(t, err)
	require.Equal(t, 3, page.PerPage)

	// negative values are rejected
	_, err = service.RoverPhotos(ctx, "curiosity", photos.Request{Sol: &sol, Page: -1})
	require.True(t, photos.ErrValidation.Has(err))
	_, err = service.RoverPhotos(ctx, "curiosity", photos.Request{Sol: &sol, PerPage: -1})
	require.True(t, photos.ErrValidation.Has(err))
}

func TestLatestPhotos(t *testing.T) {
	ctx := context.Background()
	service, _, _ := seedService(t)

	page, err := service.LatestPhotos(ctx, "curiosity", photos.Request{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.TotalCount)
	require.Equal(t, 200, page.Photos[0].Sol)
}

func TestLatestPhotosEmptyRover(t *testing.T) {
	ctx := context.Background()
	db := teststore.New()
	db.AddRover(photos.Rover{Name: "Spirit", LandingDate: date("2004-01-04")})

	service := photos.NewService(zaptest.NewLogger(t),
		db.Rovers(), db.Cameras(), db.Photos(), photos.Config{})

	page, err := service.LatestPhotos(ctx, "spirit", photos.Request{})
	require.NoError(t, err)
	require.EqualValues(t, 0, page.TotalCount)
	require.Empty(t, page.Photos)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	service, _, _ := seedService(t)

	// substring match on external id, case-insensitive
	page, err := service.Search(ctx, photos.Request{NASAID: "msl-100"})
	require.NoError(t, err)
	require.EqualValues(t, 3, page.TotalCount)

	// sol range, half-open
	solMin, solMax := 100, 200
	page, err = service.Search(ctx, photos.Request{SolMin: &solMin, SolMax: &solMax})
	require.NoError(t, err)
	require.EqualValues(t, 3, page.TotalCount)

	// rover list resolves names; unknown rover is an error
	page, err = service.Search(ctx, photos.Request{Rovers: []string{"curiosity"}, PerPage: 3})
	require.NoError(t, err)
	require.EqualValues(t, 4, page.TotalCount)
	_, err = service.Search(ctx, photos.Request{Rovers: []string{"voyager"}})
	require.True(t, photos.ErrRoverNotFound.Has(err))

	// camera list, case-insensitive OR
	page, err = service.Search(ctx, photos.Request{Cameras: []string{"navcam"}})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.TotalCount)

	// default ordering is ascending id
	page, err = service.Search(ctx, photos.Request{PerPage: 3})
	require.NoError(t, err)
	require.Equal(t, "MSL-100-1", page.Photos[0].ExternalID)
}

func TestManifest(t *testing.T) {
	ctx := context.Background()
	service, _, _ := seedService(t)

	rover, entries, err := service.Manifest(ctx, "curiosity")
	require.NoError(t, err)
	require.Equal(t, "Curiosity", rover.Name)
	require.Len(t, entries, 2)

	require.Equal(t, 100, entries[0].Sol)
	require.EqualValues(t, 3, entries[0].Count)
	require.Equal(t, []string{"FHAZ", "NAVCAM"}, entries[0].Cameras)

	require.Equal(t, 200, entries[1].Sol)
	require.EqualValues(t, 1, entries[1].Count)
	require.Equal(t, []string{"NAVCAM"}, entries[1].Cameras)
}

func TestEarthDateForSol(t *testing.T) {
	landing := date("2012-08-06")

	require.Equal(t, date("2012-08-06"), photos.EarthDateForSol(landing, 0))

	// a sol is a bit longer than an earth day, so sols drift forward
	derived := photos.EarthDateForSol(landing, 100)
	require.True(t, derived.After(date("2012-11-12")))
	require.True(t, derived.Before(date("2012-11-18")))
}
