// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// Package teststore implements the repository interfaces in memory, for
// tests that exercise services without Postgres.
package teststore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/james-langridge/mars-vista-api-sub001/jobs"
	"github.com/james-langridge/mars-vista-api-sub001/photos"
)

// DB is an in-memory stand-in for photodb.DB.
type DB struct {
	mu sync.Mutex

	rovers  []photos.Rover
	cameras []photos.Camera
	photos  []photos.PhotoInfo
	jobs    []jobs.Job

	nextRoverID  int64
	nextCameraID int64
	nextPhotoID  int64
	nextJobID    int64

	// AddPhotosErr, when set, fails the next AddPhotos call.
	AddPhotosErr error
}

// New creates an empty store.
func New() *DB { return &DB{} }

// Rovers returns the rover repository.
func (db *DB) Rovers() photos.Rovers { return (*roversDB)(db) }

// Cameras returns the camera repository.
func (db *DB) Cameras() photos.Cameras { return (*camerasDB)(db) }

// Photos returns the photo repository.
func (db *DB) Photos() photos.Photos { return (*photosDB)(db) }

// Jobs returns the job-history repository.
func (db *DB) Jobs() jobs.DB { return (*jobsDB)(db) }

// AddRover inserts a rover and returns it with its id assigned.
func (db *DB) AddRover(rover photos.Rover) photos.Rover {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextRoverID++
	rover.ID = db.nextRoverID
	db.rovers = append(db.rovers, rover)
	return rover
}

// AddCamera inserts a camera and returns it with its id assigned.
func (db *DB) AddCamera(camera photos.Camera) photos.Camera {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.addCameraLocked(camera)
}

func (db *DB) addCameraLocked(camera photos.Camera) photos.Camera {
	db.nextCameraID++
	camera.ID = db.nextCameraID
	db.cameras = append(db.cameras, camera)
	return camera
}

type roversDB DB

func (db *roversDB) All(ctx context.Context) ([]photos.Rover, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]photos.Rover(nil), db.rovers...), nil
}

func (db *roversDB) GetByID(ctx context.Context, id int64) (*photos.Rover, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i := range db.rovers {
		if db.rovers[i].ID == id {
			rover := db.rovers[i]
			return &rover, nil
		}
	}
	return nil, photos.ErrRoverNotFound.New("id %d", id)
}

func (db *roversDB) GetByName(ctx context.Context, name string) (*photos.Rover, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i := range db.rovers {
		if strings.EqualFold(db.rovers[i].Name, name) {
			rover := db.rovers[i]
			return &rover, nil
		}
	}
	return nil, photos.ErrRoverNotFound.New("%q", name)
}

type camerasDB DB

func (db *camerasDB) All(ctx context.Context) ([]photos.Camera, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]photos.Camera(nil), db.cameras...), nil
}

func (db *camerasDB) ListByRover(ctx context.Context, roverID int64) ([]photos.Camera, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var result []photos.Camera
	for _, camera := range db.cameras {
		if camera.RoverID == roverID {
			result = append(result, camera)
		}
	}
	return result, nil
}

func (db *camerasDB) FindByShortName(ctx context.Context, roverID int64, shortName string) (*photos.Camera, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.findLocked(roverID, shortName)
}

func (db *camerasDB) findLocked(roverID int64, shortName string) (*photos.Camera, error) {
	for i := range db.cameras {
		if db.cameras[i].RoverID == roverID && strings.EqualFold(db.cameras[i].ShortName, shortName) {
			camera := db.cameras[i]
			return &camera, nil
		}
	}
	return nil, photos.ErrCameraNotFound.New("%q on rover %d", shortName, roverID)
}

func (db *camerasDB) FindOrCreate(ctx context.Context, roverID int64, shortName, fullName string) (*photos.Camera, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if camera, err := db.findLocked(roverID, shortName); err == nil {
		return camera, false, nil
	}
	if fullName == "" {
		fullName = shortName
	}
	camera := (*DB)(db).addCameraLocked(photos.Camera{
		RoverID:   roverID,
		ShortName: shortName,
		FullName:  fullName,
	})
	return &camera, true, nil
}

type photosDB DB

func (db *photosDB) Get(ctx context.Context, id int64) (*photos.PhotoInfo, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i := range db.photos {
		if db.photos[i].ID == id {
			info := db.photos[i]
			return &info, nil
		}
	}
	return nil, photos.ErrPhotoNotFound.New("id %d", id)
}

func (db *photosDB) GetByExternalID(ctx context.Context, externalID string) (*photos.PhotoInfo, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i := range db.photos {
		if db.photos[i].ExternalID == externalID {
			info := db.photos[i]
			return &info, nil
		}
	}
	return nil, photos.ErrPhotoNotFound.New("%q", externalID)
}

func (db *photosDB) ExistingExternalIDs(ctx context.Context, roverID int64, ids []string) (map[string]struct{}, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	existing := make(map[string]struct{})
	for i := range db.photos {
		if db.photos[i].RoverID != roverID {
			continue
		}
		if _, ok := wanted[db.photos[i].ExternalID]; ok {
			existing[db.photos[i].ExternalID] = struct{}{}
		}
	}
	return existing, nil
}

func (db *photosDB) AllExternalIDs(ctx context.Context, roverID int64) (map[string]struct{}, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	existing := make(map[string]struct{})
	for i := range db.photos {
		if db.photos[i].RoverID == roverID {
			existing[db.photos[i].ExternalID] = struct{}{}
		}
	}
	return existing, nil
}

func (db *photosDB) SolExternalIDs(ctx context.Context, roverID int64, sol int) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var ids []string
	for i := range db.photos {
		if db.photos[i].RoverID == roverID && db.photos[i].Sol == sol {
			ids = append(ids, db.photos[i].ExternalID)
		}
	}
	return ids, nil
}

func (db *photosDB) AddPhotos(ctx context.Context, batch []photos.Photo) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.AddPhotosErr != nil {
		err := db.AddPhotosErr
		db.AddPhotosErr = nil
		return nil, err
	}

	existing := make(map[string]struct{}, len(db.photos))
	for i := range db.photos {
		existing[db.photos[i].ExternalID] = struct{}{}
	}

	var inserted []string
	for _, photo := range batch {
		if _, dup := existing[photo.ExternalID]; dup {
			continue
		}
		existing[photo.ExternalID] = struct{}{}

		db.nextPhotoID++
		photo.ID = db.nextPhotoID
		photo.CreatedAt = time.Now()
		photo.UpdatedAt = photo.CreatedAt

		info := photos.PhotoInfo{Photo: photo}
		for _, camera := range db.cameras {
			if camera.ID == photo.CameraID {
				info.CameraShortName = camera.ShortName
				info.CameraFullName = camera.FullName
			}
		}
		for _, rover := range db.rovers {
			if rover.ID == photo.RoverID {
				info.RoverName = rover.Name
			}
		}
		db.photos = append(db.photos, info)
		inserted = append(inserted, photo.ExternalID)
	}
	return inserted, nil
}

func (db *photosDB) Query(ctx context.Context, query photos.PhotoQuery) (*photos.PhotoPage, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	matched := db.filterLocked(query)
	sortPhotos(matched, query.Sort)

	page := &photos.PhotoPage{
		Photos:     []photos.PhotoInfo{},
		TotalCount: int64(len(matched)),
		Page:       query.Page,
		PerPage:    query.PerPage,
	}
	if query.PerPage > 0 {
		page.TotalPages = (len(matched) + query.PerPage - 1) / query.PerPage
	}

	offset := query.Offset()
	if offset < len(matched) {
		end := offset + query.PerPage
		if end > len(matched) {
			end = len(matched)
		}
		page.Photos = matched[offset:end]
	}
	return page, nil
}

func (db *photosDB) Count(ctx context.Context, query photos.PhotoQuery) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return int64(len(db.filterLocked(query))), nil
}

func (db *photosDB) MaxSol(ctx context.Context, roverID int64) (int, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	maxSol, found := 0, false
	for i := range db.photos {
		if db.photos[i].RoverID != roverID {
			continue
		}
		if !found || db.photos[i].Sol > maxSol {
			maxSol, found = db.photos[i].Sol, true
		}
	}
	return maxSol, found, nil
}

func (db *photosDB) Manifest(ctx context.Context, roverID int64) ([]photos.ManifestEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	type key struct {
		Sol  int
		Date string
	}
	grouped := make(map[key]*photos.ManifestEntry)
	cameras := make(map[key]map[string]struct{})
	for i := range db.photos {
		if db.photos[i].RoverID != roverID {
			continue
		}
		k := key{Sol: db.photos[i].Sol, Date: db.photos[i].EarthDate.Format("2006-01-02")}
		entry, ok := grouped[k]
		if !ok {
			entry = &photos.ManifestEntry{Sol: k.Sol, EarthDate: db.photos[i].EarthDate}
			grouped[k] = entry
			cameras[k] = make(map[string]struct{})
		}
		entry.Count++
		cameras[k][db.photos[i].CameraShortName] = struct{}{}
	}

	var entries []photos.ManifestEntry
	for k, entry := range grouped {
		for name := range cameras[k] {
			entry.Cameras = append(entry.Cameras, name)
		}
		sort.Strings(entry.Cameras)
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Sol < entries[j].Sol })
	return entries, nil
}

func (db *photosDB) filterLocked(query photos.PhotoQuery) []photos.PhotoInfo {
	var matched []photos.PhotoInfo
	for i := range db.photos {
		if matchesQuery(&db.photos[i], query) {
			matched = append(matched, db.photos[i])
		}
	}
	return matched
}

func matchesQuery(info *photos.PhotoInfo, query photos.PhotoQuery) bool {
	if query.RoverID != 0 && info.RoverID != query.RoverID {
		return false
	}
	if len(query.RoverIDs) > 0 && !containsInt64(query.RoverIDs, info.RoverID) {
		return false
	}
	if query.Sol != nil && info.Sol != *query.Sol {
		return false
	}
	if query.EarthDate != nil && !sameDate(info.EarthDate, *query.EarthDate) {
		return false
	}
	if query.CameraID != 0 && info.CameraID != query.CameraID {
		return false
	}
	if len(query.CameraShortNames) > 0 {
		found := false
		for _, name := range query.CameraShortNames {
			if strings.EqualFold(name, info.CameraShortName) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if query.SolMin != nil && info.Sol < *query.SolMin {
		return false
	}
	if query.SolMax != nil && info.Sol >= *query.SolMax {
		return false
	}
	if query.DateMin != nil && info.EarthDate.Before(*query.DateMin) {
		return false
	}
	if query.DateMax != nil && !info.EarthDate.Before(*query.DateMax) {
		return false
	}
	if query.ExternalIDSubstr != "" &&
		!strings.Contains(strings.ToLower(info.ExternalID), strings.ToLower(query.ExternalIDSubstr)) {
		return false
	}
	if query.Site != nil && (info.Site == nil || *info.Site != *query.Site) {
		return false
	}
	if query.Drive != nil && (info.Drive == nil || *info.Drive != *query.Drive) {
		return false
	}
	if query.SampleType != "" && !strings.EqualFold(info.SampleType, query.SampleType) {
		return false
	}
	return true
}

func sortPhotos(list []photos.PhotoInfo, order photos.Sort) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := &list[i], &list[j]
		switch order {
		case photos.SortIDDesc:
			return a.ID > b.ID
		case photos.SortSol:
			if a.Sol != b.Sol {
				return a.Sol < b.Sol
			}
		case photos.SortSolDesc:
			if a.Sol != b.Sol {
				return a.Sol > b.Sol
			}
		case photos.SortEarthDate:
			if !a.EarthDate.Equal(b.EarthDate) {
				return a.EarthDate.Before(b.EarthDate)
			}
		case photos.SortEarthDateDesc:
			if !a.EarthDate.Equal(b.EarthDate) {
				return a.EarthDate.After(b.EarthDate)
			}
		case photos.SortCameraThenID:
			if a.CameraID != b.CameraID {
				return a.CameraID < b.CameraID
			}
		}
		return a.ID < b.ID
	})
}

func containsInt64(list []int64, value int64) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

type jobsDB DB

func (db *jobsDB) RecordJob(ctx context.Context, job *jobs.Job) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextJobID++
	job.ID = db.nextJobID
	for i := range job.Details {
		job.Details[i].JobID = job.ID
	}
	db.jobs = append(db.jobs, *job)
	return nil
}

func (db *jobsDB) RecentJobs(ctx context.Context, limit int) ([]jobs.Job, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var result []jobs.Job
	for i := len(db.jobs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, db.jobs[i])
	}
	return result, nil
}
