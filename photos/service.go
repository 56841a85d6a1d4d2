// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package photos

import (
	"context"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"
)

var mon = monkit.Package()

// Config contains configuration for the query engine.
type Config struct {
	DefaultPerPage int `help:"page size when per_page is not given" default:"25"`
	MaxPerPage     int `help:"largest accepted per_page" default:"1000"`
}

// Request is one parsed photo query. The zero value matches everything.
type Request struct {
	Sol       *int
	EarthDate *time.Time

	Camera string

	SolMin  *int
	SolMax  *int
	DateMin *time.Time
	DateMax *time.Time

	NASAID     string
	Site       *int
	Drive      *int
	SampleType string

	Rovers  []string
	Cameras []string

	Sort    Sort
	Page    int
	PerPage int
}

// Service implements the read side: filterable photo search, latest
// photos and mission manifests.
//
// architecture: Service
type Service struct {
	log     *zap.Logger
	rovers  Rovers
	cameras Cameras
	photos  Photos
	config  Config
}

// NewService creates a new query engine.
func NewService(log *zap.Logger, rovers Rovers, cameras Cameras, photos Photos, config Config) *Service {
	if config.DefaultPerPage <= 0 {
		config.DefaultPerPage = 25
	}
	if config.MaxPerPage <= 0 {
		config.MaxPerPage = 1000
	}
	return &Service{
		log:     log,
		rovers:  rovers,
		cameras: cameras,
		photos:  photos,
		config:  config,
	}
}

// ListRovers returns all rovers.
func (service *Service) ListRovers(ctx context.Context) (_ []Rover, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.rovers.All(ctx)
}

// GetRover returns a rover by case-insensitive name.
func (service *Service) GetRover(ctx context.Context, name string) (_ *Rover, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.rovers.GetByName(ctx, name)
}

// GetPhoto returns a single photo by internal id.
func (service *Service) GetPhoto(ctx context.Context, id int64) (_ *PhotoInfo, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.photos.Get(ctx, id)
}

// GetPhotoByExternalID returns a single photo by its upstream id.
func (service *Service) GetPhotoByExternalID(ctx context.Context, externalID string) (_ *PhotoInfo, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.photos.GetByExternalID(ctx, externalID)
}

// RoverPhotos serves the rover-scoped photo search. Exactly one of sol and
// earth_date must be given; when both are present sol wins. The legacy
// two-phase semantics are preserved: the date predicate is applied first
// and, only when it matches anything, the camera predicate restricts the
// result.
func (service *Service) RoverPhotos(ctx context.Context, roverName string, req Request) (_ *PhotoPage, err error) {
	defer mon.Task()(&ctx)(&err)

	rover, err := service.rovers.GetByName(ctx, roverName)
	if err != nil {
		return nil, err
	}

	if req.Sol == nil && req.EarthDate == nil {
		return nil, ErrValidation.New("either sol or earth_date is required")
	}
	if req.Sol != nil {
		// sol takes precedence over earth_date
		req.EarthDate = nil
	}

	page, perPage, err := service.normalizePage(req.Page, req.PerPage)
	if err != nil {
		return nil, err
	}

	query := PhotoQuery{
		RoverID:   rover.ID,
		Sol:       req.Sol,
		EarthDate: req.EarthDate,
		Sort:      SortCameraThenID,
		Page:      page,
		PerPage:   perPage,
	}

	if req.Camera != "" {
		// Two-phase filter: an empty date phase short-circuits before the
		// camera predicate is even considered.
		dateOnly := query
		dateOnly.CameraID = 0
		total, err := service.photos.Count(ctx, dateOnly)
		if err != nil {
			return nil, err
		}
		if total == 0 {
			return emptyPage(page, perPage), nil
		}

		camera, err := service.cameras.FindByShortName(ctx, rover.ID, req.Camera)
		if err != nil {
			if ErrCameraNotFound.Has(err) {
				return emptyPage(page, perPage), nil
			}
			return nil, err
		}
		query.CameraID = camera.ID
	}

	return service.photos.Query(ctx, query)
}

// LatestPhotos returns the photos taken at the rover's highest stored sol.
// It never consults the upstream.
func (service *Service) LatestPhotos(ctx context.Context, roverName string, req Request) (_ *PhotoPage, err error) {
	defer mon.Task()(&ctx)(&err)

	rover, err := service.rovers.GetByName(ctx, roverName)
	if err != nil {
		return nil, err
	}

	page, perPage, err := service.normalizePage(req.Page, req.PerPage)
	if err != nil {
		return nil, err
	}

	maxSol, found, err := service.photos.MaxSol(ctx, rover.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return emptyPage(page, perPage), nil
	}

	return service.photos.Query(ctx, PhotoQuery{
		RoverID: rover.ID,
		Sol:     &maxSol,
		Sort:    SortCameraThenID,
		Page:    page,
		PerPage: perPage,
	})
}

// Search serves the cross-rover photo search with the full parameter set.
// Neither sol nor earth_date is required here.
func (service *Service) Search(ctx context.Context, req Request) (_ *PhotoPage, err error) {
	defer mon.Task()(&ctx)(&err)

	page, perPage, err := service.normalizePage(req.Page, req.PerPage)
	if err != nil {
		return nil, err
	}

	query := PhotoQuery{
		Sol:              req.Sol,
		EarthDate:        req.EarthDate,
		SolMin:           req.SolMin,
		SolMax:           req.SolMax,
		DateMin:          req.DateMin,
		DateMax:          req.DateMax,
		ExternalIDSubstr: req.NASAID,
		Site:             req.Site,
		Drive:            req.Drive,
		SampleType:       req.SampleType,
		Sort:             req.Sort,
		Page:             page,
		PerPage:          perPage,
	}
	if query.Sort == "" {
		query.Sort = SortID
	}

	for _, name := range req.Rovers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		rover, err := service.rovers.GetByName(ctx, name)
		if err != nil {
			return nil, err
		}
		query.RoverIDs = append(query.RoverIDs, rover.ID)
	}

	for _, camera := range req.Cameras {
		camera = strings.TrimSpace(camera)
		if camera == "" {
			continue
		}
		query.CameraShortNames = append(query.CameraShortNames, camera)
	}

	return service.photos.Query(ctx, query)
}

// Manifest returns the rover and its per-sol manifest, ascending by sol.
func (service *Service) Manifest(ctx context.Context, roverName string) (_ *Rover, _ []ManifestEntry, err error) {
	defer mon.Task()(&ctx)(&err)

	rover, err := service.rovers.GetByName(ctx, roverName)
	if err != nil {
		return nil, nil, err
	}

	entries, err := service.photos.Manifest(ctx, rover.ID)
	if err != nil {
		return nil, nil, err
	}
	return rover, entries, nil
}

func (service *Service) normalizePage(page, perPage int) (int, int, error) {
	if page < 0 {
		return 0, 0, ErrValidation.New("page must be positive")
	}
	if page == 0 {
		page = 1
	}
	switch {
	case perPage < 0:
		return 0, 0, ErrValidation.New("per_page must be positive")
	case perPage == 0:
		perPage = service.config.DefaultPerPage
	case perPage > service.config.MaxPerPage:
		perPage = service.config.MaxPerPage
	}
	return page, perPage, nil
}

func emptyPage(page, perPage int) *PhotoPage {
	return &PhotoPage{
		Photos:  []PhotoInfo{},
		Page:    page,
		PerPage: perPage,
	}
}
