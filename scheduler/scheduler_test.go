// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package scheduler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/james-langridge/mars-vista-api-sub001/fetch"
	"github.com/james-langridge/mars-vista-api-sub001/jobs"
	"github.com/james-langridge/mars-vista-api-sub001/photos"
	"github.com/james-langridge/mars-vista-api-sub001/private/teststore"
	"github.com/james-langridge/mars-vista-api-sub001/scheduler"
	"github.com/james-langridge/mars-vista-api-sub001/scraper"
	"github.com/james-langridge/mars-vista-api-sub001/scraper/curiosity"
)

// recordingScraper remembers the ranges it was asked to scrape.
type recordingScraper struct {
	name string

	mu     sync.Mutex
	ranges [][2]int
}

func (s *recordingScraper) Name() string { return s.name }

func (s *recordingScraper) ScrapeSol(ctx context.Context, sol int) (scraper.SolResult, error) {
	return scraper.SolResult{Sol: sol, Success: true}, nil
}

func (s *recordingScraper) BulkScrape(ctx context.Context, startSol, endSol int) (scraper.Summary, error) {
	s.mu.Lock()
	s.ranges = append(s.ranges, [2]int{startSol, endSol})
	s.mu.Unlock()
	return scraper.Summary{
		StartSol:      startSol,
		EndSol:        startSol + 4,
		SolsAttempted: 5,
		SolsSucceeded: 5,
		Inserted:      2,
	}, nil
}

func TestRunOnceScrapesActiveRoversOnly(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	db := teststore.New()
	curiosity := db.AddRover(photos.Rover{Name: "Curiosity", Status: photos.RoverActive})
	db.AddRover(photos.Rover{Name: "Spirit", Status: photos.RoverComplete})
	camera := db.AddCamera(photos.Camera{RoverID: curiosity.ID, ShortName: "FHAZ"})

	_, err := db.Photos().AddPhotos(ctx, []photos.Photo{
		{ExternalID: "MSL-1", RoverID: curiosity.ID, CameraID: camera.ID, Sol: 120},
	})
	require.NoError(t, err)

	scr := &recordingScraper{name: "curiosity"}
	registry := scraper.NewRegistry()
	registry.Register(scr)
	registry.Register(&recordingScraper{name: "spirit"})

	sched := scheduler.New(log, db.Rovers(), db.Photos(), registry, scraper.NewProgress(),
		db.Jobs(), jobs.RecorderConfig{}, scheduler.Config{LastSols: 5})

	require.NoError(t, sched.RunOnce(ctx))

	// only the active rover ran, resuming 5 sols behind its max
	require.Equal(t, [][2]int{{116, 0}}, scr.ranges)

	recent, err := db.Jobs().RecentJobs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, jobs.StatusSuccess, recent[0].Status)
	require.Len(t, recent[0].Details, 1)
	require.Equal(t, "curiosity", recent[0].Details[0].RoverName)
	require.Equal(t, 2, recent[0].Details[0].PhotosAdded)
}

// TestRunOnceWithFeedScraper runs the schedule against a real feed-backed
// scraper: the open-ended bulk range it issues must resolve through the
// upstream manifest instead of failing.
func TestRunOnceWithFeedScraper(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/image_manifest.json":
			_, _ = fmt.Fprint(w, `{"latest_sol": 121}`)
		case "/00121/images.json":
			_, _ = fmt.Fprint(w, `{"images": [{
				"id": "MSL-121-1",
				"sol": 121,
				"camera": {"name": "FHAZ", "full_name": "Front Hazard Avoidance Camera"},
				"earth_date": "2012-12-08",
				"img_src": "https://mars.nasa.gov/msl/fhaz121.jpg"
			}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	db := teststore.New()
	rover := db.AddRover(photos.Rover{
		Name:        "Curiosity",
		LandingDate: time.Date(2012, 8, 6, 0, 0, 0, 0, time.UTC),
		Status:      photos.RoverActive,
	})
	camera := db.AddCamera(photos.Camera{RoverID: rover.ID, ShortName: "FHAZ"})
	_, err := db.Photos().AddPhotos(ctx, []photos.Photo{
		{ExternalID: "MSL-OLD", RoverID: rover.ID, CameraID: camera.ID, Sol: 120},
	})
	require.NoError(t, err)

	client := curiosity.NewClient(log, fetch.NewClient(log, fetch.Config{}), curiosity.Config{BaseURL: server.URL})
	registry := scraper.NewRegistry()
	registry.Register(curiosity.NewScraper(log, client, db.Photos(), db.Cameras(), rover,
		scraper.IngestConfig{AutoCreateCameras: true}))

	sched := scheduler.New(log, db.Rovers(), db.Photos(), registry, scraper.NewProgress(),
		db.Jobs(), jobs.RecorderConfig{}, scheduler.Config{LastSols: 5})

	require.NoError(t, sched.RunOnce(ctx))

	recent, err := db.Jobs().RecentJobs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, jobs.StatusSuccess, recent[0].Status)
	require.Len(t, recent[0].Details, 1)

	detail := recent[0].Details[0]
	require.Empty(t, detail.ErrorMessage)
	require.Equal(t, 116, detail.StartSol)
	require.Equal(t, 121, detail.EndSol)
	require.Equal(t, 1, detail.PhotosAdded)

	known, err := db.Photos().AllExternalIDs(ctx, rover.ID)
	require.NoError(t, err)
	_, ok := known["MSL-121-1"]
	require.True(t, ok)
}

func TestRunOnceRecordsMissingScraper(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	db := teststore.New()
	db.AddRover(photos.Rover{Name: "Curiosity", Status: photos.RoverActive})

	sched := scheduler.New(log, db.Rovers(), db.Photos(), scraper.NewRegistry(),
		scraper.NewProgress(), db.Jobs(), jobs.RecorderConfig{}, scheduler.Config{})

	require.NoError(t, sched.RunOnce(ctx))

	recent, err := db.Jobs().RecentJobs(ctx, 1)
	require.NoError(t, err)
	// an unregistered rover is skipped with a warning, not a failed detail
	require.Empty(t, recent[0].Details)
	require.Equal(t, jobs.StatusSuccess, recent[0].Status)
}
