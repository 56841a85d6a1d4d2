// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/james-langridge/mars-vista-api-sub001/api"
	"github.com/james-langridge/mars-vista-api-sub001/compare"
	"github.com/james-langridge/mars-vista-api-sub001/jobs"
	"github.com/james-langridge/mars-vista-api-sub001/photos"
	"github.com/james-langridge/mars-vista-api-sub001/private/teststore"
	"github.com/james-langridge/mars-vista-api-sub001/scraper"
)

func mustDate(value string) time.Time {
	parsed, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		panic(err)
	}
	return parsed
}

// stubScraper answers scrape calls without touching any upstream.
type stubScraper struct {
	name   string
	result scraper.SolResult
	err    error
}

func (s stubScraper) Name() string { return s.name }

func (s stubScraper) ScrapeSol(ctx context.Context, sol int) (scraper.SolResult, error) {
	result := s.result
	result.Sol = sol
	return result, s.err
}

func (s stubScraper) BulkScrape(ctx context.Context, startSol, endSol int) (scraper.Summary, error) {
	return scraper.Summary{StartSol: startSol, EndSol: endSol, SolsAttempted: endSol - startSol + 1}, s.err
}

type stubSource struct {
	sols map[int][]compare.UpstreamPhoto
}

func (source stubSource) SolPhotos(ctx context.Context, sol int) ([]compare.UpstreamPhoto, error) {
	return source.sols[sol], nil
}

type fixture struct {
	db     *teststore.DB
	server *api.Server
	rover  photos.Rover
	camera photos.Camera
}

func newFixture(t *testing.T, config api.Config) *fixture {
	log := zaptest.NewLogger(t)
	db := teststore.New()

	rover := db.AddRover(photos.Rover{
		Name:        "Curiosity",
		LandingDate: mustDate("2012-08-06"),
		LaunchDate:  mustDate("2011-11-26"),
		Status:      "active",
	})
	camera := db.AddCamera(photos.Camera{RoverID: rover.ID, ShortName: "FHAZ", FullName: "Front Hazard Avoidance Camera"})

	service := photos.NewService(log, db.Rovers(), db.Cameras(), db.Photos(), photos.Config{})

	registry := scraper.NewRegistry()
	registry.Register(stubScraper{name: "curiosity", result: scraper.SolResult{Inserted: 5, Success: true}})

	compares := compare.NewService(log, db.Rovers(), db.Photos(), compare.Config{})
	compares.RegisterSource("curiosity", stubSource{sols: map[int][]compare.UpstreamPhoto{
		100: {{ExternalID: "MSL-100-1", Sol: 100}},
	}})

	server := api.NewServer(log, config, service, registry, scraper.NewProgress(),
		compares, db.Jobs(), jobs.RecorderConfig{})

	return &fixture{db: db, server: server, rover: rover, camera: camera}
}

func (f *fixture) addPhoto(t *testing.T, externalID string, sol int) photos.Photo {
	photo := photos.Photo{
		ExternalID: externalID,
		RoverID:    f.rover.ID,
		CameraID:   f.camera.ID,
		Sol:        sol,
		EarthDate:  mustDate("2012-11-16"),
		ImageFull:  "https://mars.nasa.gov/" + externalID + ".jpg",
		Raw:        json.RawMessage(`{"id":"` + externalID + `"}`),
	}
	_, err := f.db.Photos().AddPhotos(context.Background(), []photos.Photo{photo})
	require.NoError(t, err)
	return photo
}

func (f *fixture) get(t *testing.T, path string, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	return f.request(t, http.MethodGet, path, headers...)
}

func (f *fixture) request(t *testing.T, method, path string, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var body map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func TestListRovers(t *testing.T) {
	f := newFixture(t, api.Config{})

	rec, body := f.get(t, "/api/v1/rovers")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	rover := data[0].(map[string]interface{})
	require.Equal(t, "Curiosity", rover["name"])
	require.Equal(t, "2012-08-06", rover["landing_date"])
	require.Equal(t, "active", rover["status"])
}

func TestGetRoverInvalidName(t *testing.T) {
	f := newFixture(t, api.Config{})

	rec, body := f.get(t, "/api/v1/rovers/voyager")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid rover", body["error"])
	require.NotEmpty(t, body["message"])
	require.EqualValues(t, http.StatusBadRequest, body["status"])
}

func TestRoverPhotosRequiresDateFilter(t *testing.T) {
	f := newFixture(t, api.Config{})

	rec, _ := f.get(t, "/api/v1/rovers/curiosity/photos")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoverPhotosEnvelope(t *testing.T) {
	f := newFixture(t, api.Config{})
	for i := 1; i <= 5; i++ {
		f.addPhoto(t, fmt.Sprintf("MSL-100-%d", i), 100)
	}

	rec, body := f.get(t, "/api/v1/rovers/curiosity/photos?sol=100&per_page=2&page=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "5", rec.Header().Get("X-Total-Count"))

	data := body["data"].([]interface{})
	require.Len(t, data, 2)

	meta := body["meta"].(map[string]interface{})
	require.EqualValues(t, 5, meta["total_count"])
	require.EqualValues(t, 2, meta["returned_count"])

	pagination := body["pagination"].(map[string]interface{})
	require.EqualValues(t, 2, pagination["page"])
	require.EqualValues(t, 2, pagination["per_page"])
	require.EqualValues(t, 3, pagination["total_pages"])

	links := body["links"].(map[string]interface{})
	require.Contains(t, links["previous"], "page=1")
	require.Contains(t, links["next"], "page=3")
	require.Contains(t, links["self"], "page=2")

	first := data[0].(map[string]interface{})
	attrs := first["attributes"].(map[string]interface{})
	require.Equal(t, "2012-11-16", attrs["earth_date"])
	require.Equal(t, "FHAZ", attrs["camera_short_name"])
	require.Equal(t, "Curiosity", attrs["rover_name"])
	// the basic projection never carries raw payloads
	require.NotContains(t, attrs, "raw_data")
	require.NotContains(t, attrs, "nasa_id")
}

func TestRoverPhotosBoundaryLinksAreNull(t *testing.T) {
	f := newFixture(t, api.Config{})
	f.addPhoto(t, "MSL-100-1", 100)

	rec, body := f.get(t, "/api/v1/rovers/curiosity/photos?sol=100")
	require.Equal(t, http.StatusOK, rec.Code)

	links := body["links"].(map[string]interface{})
	require.Nil(t, links["previous"])
	require.Nil(t, links["next"])
}

func TestRoverPhotosRejectsNonPositivePaging(t *testing.T) {
	f := newFixture(t, api.Config{})

	for _, path := range []string{
		"/api/v1/rovers/curiosity/photos?sol=100&page=0",
		"/api/v1/rovers/curiosity/photos?sol=100&per_page=0",
		"/api/v1/rovers/curiosity/photos?sol=100&per_page=-3",
	} {
		rec, _ := f.get(t, path)
		require.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestFieldSets(t *testing.T) {
	f := newFixture(t, api.Config{})
	f.addPhoto(t, "MSL-100-1", 100)

	rec, body := f.get(t, "/api/v1/rovers/curiosity/photos?sol=100&field_set=extended")
	require.Equal(t, http.StatusOK, rec.Code)
	attrs := body["data"].([]interface{})[0].(map[string]interface{})["attributes"].(map[string]interface{})
	require.Equal(t, "MSL-100-1", attrs["nasa_id"])
	require.Contains(t, attrs, "dimensions")
	require.Contains(t, attrs, "telemetry")
	images := attrs["images"].(map[string]interface{})
	require.Equal(t, attrs["img_src"], images["full"])
	require.NotContains(t, attrs, "raw_data")

	rec, body = f.get(t, "/api/v1/rovers/curiosity/photos?sol=100&field_set=full")
	require.Equal(t, http.StatusOK, rec.Code)
	attrs = body["data"].([]interface{})[0].(map[string]interface{})["attributes"].(map[string]interface{})
	raw := attrs["raw_data"].(map[string]interface{})
	require.Equal(t, "MSL-100-1", raw["id"])

	rec, _ = f.get(t, "/api/v1/rovers/curiosity/photos?sol=100&field_set=bogus")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIncludes(t *testing.T) {
	f := newFixture(t, api.Config{})
	f.addPhoto(t, "MSL-100-1", 100)

	rec, body := f.get(t, "/api/v1/rovers/curiosity/photos?sol=100&include=rover,camera")
	require.Equal(t, http.StatusOK, rec.Code)

	resource := body["data"].([]interface{})[0].(map[string]interface{})
	relationships := resource["relationships"].(map[string]interface{})
	roverRel := relationships["rover"].(map[string]interface{})
	require.Equal(t, "Curiosity", roverRel["attributes"].(map[string]interface{})["name"])
	cameraRel := relationships["camera"].(map[string]interface{})
	require.Equal(t, "FHAZ", cameraRel["attributes"].(map[string]interface{})["short_name"])
}

func TestGetPhoto(t *testing.T) {
	f := newFixture(t, api.Config{})
	f.addPhoto(t, "MSL-100-1", 100)

	rec, body := f.get(t, "/api/v1/photos/1")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	require.EqualValues(t, 1, data["id"])
	require.Equal(t, "/api/v1/photos/1", data["links"].(map[string]interface{})["self"])

	rec, _ = f.get(t, "/api/v1/photos/99999")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchPhotos(t *testing.T) {
	f := newFixture(t, api.Config{})
	f.addPhoto(t, "MSL-100-1", 100)
	f.addPhoto(t, "MSL-200-1", 200)

	rec, body := f.get(t, "/api/v1/photos/search?sol_min=150")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["data"].([]interface{}), 1)
}

func TestManifest(t *testing.T) {
	f := newFixture(t, api.Config{})
	f.addPhoto(t, "MSL-100-1", 100)
	f.addPhoto(t, "MSL-100-2", 100)
	f.addPhoto(t, "MSL-200-1", 200)

	rec, body := f.get(t, "/api/v1/manifests/curiosity")
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	require.Equal(t, "Curiosity", data["name"])
	require.EqualValues(t, 200, data["max_sol"])
	require.EqualValues(t, 3, data["total_photos"])

	sols := data["photos"].([]interface{})
	require.Len(t, sols, 2)
	first := sols[0].(map[string]interface{})
	require.EqualValues(t, 100, first["sol"])
	require.EqualValues(t, 2, first["total_photos"])
	require.Equal(t, []interface{}{"FHAZ"}, first["cameras"])
}

func TestNotFoundRouteIsJSON(t *testing.T) {
	f := newFixture(t, api.Config{})

	rec, body := f.get(t, "/api/v1/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not found", body["error"])
}

func TestScrapeSol(t *testing.T) {
	f := newFixture(t, api.Config{})

	rec, body := f.request(t, http.MethodPost, "/api/v1/scraper/curiosity?sol=100")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	require.EqualValues(t, 100, data["sol"])
	require.EqualValues(t, 5, data["inserted"])

	// the run shows up in job history
	rec, body = f.get(t, "/api/v1/scraper/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	recent := body["data"].([]interface{})
	require.Len(t, recent, 1)
	job := recent[0].(map[string]interface{})
	require.Equal(t, jobs.StatusSuccess, job["status"])
	require.EqualValues(t, 5, job["photos_added"])
}

func TestRecentJobsDefaultLimit(t *testing.T) {
	f := newFixture(t, api.Config{})

	for sol := 1; sol <= 3; sol++ {
		rec, _ := f.request(t, http.MethodPost, fmt.Sprintf("/api/v1/scraper/curiosity?sol=%d", sol))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// no explicit limit: the configured history page size applies, with a
	// working default when the config is zero
	rec, body := f.get(t, "/api/v1/scraper/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["data"].([]interface{}), 3)

	rec, body = f.get(t, "/api/v1/scraper/jobs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["data"].([]interface{}), 1)
}

func TestScrapeSolValidation(t *testing.T) {
	f := newFixture(t, api.Config{})

	rec, _ := f.request(t, http.MethodPost, "/api/v1/scraper/curiosity")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.request(t, http.MethodPost, "/api/v1/scraper/voyager?sol=1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScrapeBulkAndProgress(t *testing.T) {
	f := newFixture(t, api.Config{})

	rec, body := f.request(t, http.MethodPost, "/api/v1/scraper/curiosity/bulk?startSol=1&endSol=3")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	require.EqualValues(t, 1, data["start_sol"])
	require.EqualValues(t, 3, data["end_sol"])

	rec, body = f.get(t, "/api/v1/scraper/curiosity/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, body["data"])
}

func TestVolumeRoutesRequireArchiveScraper(t *testing.T) {
	f := newFixture(t, api.Config{})

	rec, _ := f.request(t, http.MethodPost, "/api/v1/scraper/curiosity/volume/mer1po_0xxx")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.request(t, http.MethodPost, "/api/v1/scraper/curiosity/all")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareEndpoints(t *testing.T) {
	f := newFixture(t, api.Config{})
	f.addPhoto(t, "MSL-100-1", 100)

	rec, body := f.get(t, "/api/v1/compare/sol?rover=curiosity&sol=100")
	require.Equal(t, http.StatusOK, rec.Code)
	report := body["data"].(map[string]interface{})
	require.Equal(t, compare.StatusMatch, report["status"])

	rec, body = f.get(t, "/api/v1/compare/photo?nasa_id=MSL-100-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["data"].(map[string]interface{})["in_ours"])

	rec, _ = f.get(t, "/api/v1/compare/sol?rover=curiosity")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.get(t, "/api/v1/compare/range?rover=curiosity&startSol=99&endSol=101")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["data"].(map[string]interface{})["sols"].([]interface{}), 3)
}

func TestAdminToken(t *testing.T) {
	f := newFixture(t, api.Config{AdminToken: "sekret"})

	// public routes stay open
	rec, _ := f.get(t, "/api/v1/rovers")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.request(t, http.MethodPost, "/api/v1/scraper/curiosity?sol=1")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.request(t, http.MethodPost, "/api/v1/scraper/curiosity?sol=1",
		"Authorization", "Bearer wrong")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.request(t, http.MethodPost, "/api/v1/scraper/curiosity?sol=1",
		"Authorization", "Bearer sekret")
	require.Equal(t, http.StatusOK, rec.Code)
}
