// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package scraper

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub001/photos"
)

// IngestConfig contains configuration for the bulk-ingest pipeline.
type IngestConfig struct {
	BatchSize         int  `help:"rows per batched insert" default:"1000"`
	ProgressInterval  int  `help:"rows between bulk progress log lines" default:"10000"`
	AutoCreateCameras bool `help:"create unknown cameras instead of skipping their rows" default:"true"`
	MaxAddedTracked   int  `help:"bound on per-run added-photo summaries kept for job history" default:"1000"`
}

// Ingester is the shared bulk-ingest pipeline. It deduplicates candidates
// against an in-memory skip-set and an intra-batch pending set, resolves
// cameras and commits batched inserts. The database unique index on
// external_id remains the final arbiter.
//
// An Ingester belongs to a single run and is not safe for concurrent use.
type Ingester struct {
	log     *zap.Logger
	photos  photos.Photos
	cameras photos.Cameras
	rover   photos.Rover
	config  IngestConfig

	skip        map[string]struct{}
	skippedIDs  map[string]struct{}
	pending     []photos.Photo
	pendingIDs  map[string]struct{}
	pendingSols map[string]int
	cameraCache map[string]*photos.Camera

	added     []AddedPhoto
	inserted  int
	skipped   int
	malformed int
	processed int
}

// NewIngester creates a pipeline for one run over the given rover.
func NewIngester(log *zap.Logger, photoDB photos.Photos, cameras photos.Cameras, rover photos.Rover, config IngestConfig) *Ingester {
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = 10000
	}
	if config.MaxAddedTracked <= 0 {
		config.MaxAddedTracked = 1000
	}
	return &Ingester{
		log:         log,
		photos:      photoDB,
		cameras:     cameras,
		rover:       rover,
		config:      config,
		skip:        make(map[string]struct{}),
		skippedIDs:  make(map[string]struct{}),
		pendingIDs:  make(map[string]struct{}),
		pendingSols: make(map[string]int),
		cameraCache: make(map[string]*photos.Camera),
	}
}

// LoadSkipSet preloads every external id already stored for the rover.
// Bulk runs pay this cost once so per-row duplicate checks stay in memory.
func (ing *Ingester) LoadSkipSet(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	known, err := ing.photos.AllExternalIDs(ctx, ing.rover.ID)
	if err != nil {
		return Error.Wrap(err)
	}
	for id := range known {
		ing.skip[id] = struct{}{}
	}
	ing.log.Debug("skip-set loaded",
		zap.String("rover", ing.rover.Name),
		zap.Int("known", len(known)))
	return nil
}

// LoadSkipSetFor preloads only the subset of the given ids already stored,
// the cheap variant for single-sol scrapes.
func (ing *Ingester) LoadSkipSetFor(ctx context.Context, ids []string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if len(ids) == 0 {
		return nil
	}
	known, err := ing.photos.ExistingExternalIDs(ctx, ing.rover.ID, ids)
	if err != nil {
		return Error.Wrap(err)
	}
	for id := range known {
		ing.skip[id] = struct{}{}
	}
	return nil
}

// Add runs one candidate through the pipeline. Malformed candidates and
// duplicates are counted and dropped; only database errors are returned.
func (ing *Ingester) Add(ctx context.Context, candidate Candidate) (err error) {
	defer mon.Task()(&ctx)(&err)

	ing.processed++
	if ing.processed%ing.config.ProgressInterval == 0 {
		ing.log.Info("ingest progress",
			zap.String("rover", ing.rover.Name),
			zap.Int("processed", ing.processed),
			zap.Int("inserted", ing.inserted),
			zap.Int("skipped", ing.skipped))
	}

	if err := ing.normalize(&candidate); err != nil {
		ing.malformed++
		mon.Counter("ingest_malformed_rows").Inc(1)
		ing.log.Warn("malformed upstream row skipped",
			zap.String("rover", ing.rover.Name),
			zap.String("external_id", candidate.ExternalID),
			zap.Error(err))
		return nil
	}

	if _, dup := ing.skip[candidate.ExternalID]; dup {
		ing.countSkip(candidate.ExternalID)
		return nil
	}
	if _, dup := ing.pendingIDs[candidate.ExternalID]; dup {
		ing.countSkip(candidate.ExternalID)
		return nil
	}

	camera, err := ing.resolveCamera(ctx, candidate)
	if err != nil {
		return err
	}
	if camera == nil {
		ing.countSkip(candidate.ExternalID)
		return nil
	}

	photo := candidateToPhoto(candidate, ing.rover.ID, camera.ID)
	ing.pending = append(ing.pending, photo)
	ing.pendingIDs[candidate.ExternalID] = struct{}{}
	ing.pendingSols[candidate.ExternalID] = candidate.Sol

	if len(ing.pending) >= ing.config.BatchSize {
		return ing.Flush(ctx)
	}
	return nil
}

// Flush commits the pending batch in one transaction. Unique-violation
// rows are dropped inside the repository and do not fail the batch; any
// other error discards the batch and is returned for per-sol recording.
func (ing *Ingester) Flush(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if len(ing.pending) == 0 {
		return nil
	}

	batch := ing.pending
	ing.pending = nil
	pendingSols := ing.pendingSols
	ing.pendingIDs = make(map[string]struct{})
	ing.pendingSols = make(map[string]int)

	insertedIDs, err := ing.photos.AddPhotos(ctx, batch)
	if err != nil {
		ing.log.Warn("batch insert failed",
			zap.String("rover", ing.rover.Name),
			zap.Int("batch", len(batch)),
			zap.Error(err))
		return Error.Wrap(err)
	}

	ing.inserted += len(insertedIDs)
	mon.Counter("ingest_inserted_rows").Inc(int64(len(insertedIDs)))

	insertedSet := make(map[string]struct{}, len(insertedIDs))
	for _, id := range insertedIDs {
		insertedSet[id] = struct{}{}
	}
	for _, photo := range batch {
		if _, ok := insertedSet[photo.ExternalID]; !ok {
			ing.countSkip(photo.ExternalID)
		}
	}

	for _, id := range insertedIDs {
		if len(ing.added) < ing.config.MaxAddedTracked {
			ing.added = append(ing.added, AddedPhoto{Sol: pendingSols[id], ExternalID: id})
		}
	}
	// every id in the batch is now known, whether we inserted it or a
	// concurrent run did
	for _, photo := range batch {
		ing.skip[photo.ExternalID] = struct{}{}
	}
	return nil
}

// countSkip records a skipped photo. Skips are counted once per external
// id within a run, so a feed that repeats an id does not inflate the count.
func (ing *Ingester) countSkip(externalID string) {
	if _, counted := ing.skippedIDs[externalID]; counted {
		return
	}
	ing.skippedIDs[externalID] = struct{}{}
	ing.skipped++
}

// Counts returns the rows inserted and skipped so far in this run.
func (ing *Ingester) Counts() (inserted, skipped int) {
	return ing.inserted, ing.skipped
}

// Malformed returns the count of dropped malformed rows.
func (ing *Ingester) Malformed() int { return ing.malformed }

// Added returns the bounded list of inserted photo summaries.
func (ing *Ingester) Added() []AddedPhoto { return ing.added }

func (ing *Ingester) normalize(candidate *Candidate) error {
	switch {
	case candidate.ExternalID == "":
		return ErrMalformedRow.New("missing external id")
	case candidate.Sol < 0:
		return ErrMalformedRow.New("negative sol %d", candidate.Sol)
	case candidate.CameraShortName == "":
		return ErrMalformedRow.New("missing camera")
	}
	if candidate.EarthDate.IsZero() {
		candidate.EarthDate = photos.EarthDateForSol(ing.rover.LandingDate, candidate.Sol)
	}
	return nil
}

// resolveCamera returns nil without error when the row should be skipped
// because the camera is unknown and auto-creation is disabled.
func (ing *Ingester) resolveCamera(ctx context.Context, candidate Candidate) (*photos.Camera, error) {
	key := strings.ToLower(candidate.CameraShortName)
	if camera, ok := ing.cameraCache[key]; ok {
		return camera, nil
	}

	camera, err := ing.cameras.FindByShortName(ctx, ing.rover.ID, candidate.CameraShortName)
	switch {
	case err == nil:
		ing.cameraCache[key] = camera
		return camera, nil
	case !photos.ErrCameraNotFound.Has(err):
		return nil, Error.Wrap(err)
	}

	if !ing.config.AutoCreateCameras {
		ing.log.Warn("unknown camera, row skipped",
			zap.String("rover", ing.rover.Name),
			zap.String("camera", candidate.CameraShortName))
		return nil, nil
	}

	fullName := candidate.CameraFullName
	if fullName == "" {
		fullName = candidate.CameraShortName
	}
	camera, created, err := ing.cameras.FindOrCreate(ctx, ing.rover.ID, candidate.CameraShortName, fullName)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if created {
		ing.log.Warn("unknown camera auto-created",
			zap.String("rover", ing.rover.Name),
			zap.String("camera", candidate.CameraShortName))
	}
	ing.cameraCache[key] = camera
	return camera, nil
}

func candidateToPhoto(candidate Candidate, roverID, cameraID int64) photos.Photo {
	return photos.Photo{
		ExternalID:     candidate.ExternalID,
		RoverID:        roverID,
		CameraID:       cameraID,
		Sol:            candidate.Sol,
		EarthDate:      candidate.EarthDate,
		TakenUTC:       candidate.TakenUTC,
		MarsLocalTime:  candidate.MarsLocalTime,
		ReceivedUTC:    candidate.ReceivedUTC,
		ImageThumbnail: candidate.ImageThumbnail,
		ImageSmall:     candidate.ImageSmall,
		ImageMedium:    candidate.ImageMedium,
		ImageFull:      candidate.ImageFull,
		Width:          candidate.Width,
		Height:         candidate.Height,
		SampleType:     candidate.SampleType,
		Site:           candidate.Site,
		Drive:          candidate.Drive,
		XYZ:            candidate.XYZ,
		MastAzimuth:    candidate.MastAzimuth,
		MastElevation:  candidate.MastElevation,
		FilterName:     candidate.FilterName,
		Title:          candidate.Title,
		Caption:        candidate.Caption,
		Credit:         candidate.Credit,
		Raw:            candidate.Raw,
	}
}
