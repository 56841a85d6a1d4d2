// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// Package photos defines the canonical photo model of the aggregator and
// the query engine serving the public API.
package photos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zeebo/errs"
)

var (
	// Error is the default error class for the photos package.
	Error = errs.Class("photos")
	// ErrRoverNotFound is returned for unknown rover names or ids.
	ErrRoverNotFound = errs.Class("rover not found")
	// ErrCameraNotFound is returned for unknown camera short names.
	ErrCameraNotFound = errs.Class("camera not found")
	// ErrPhotoNotFound is returned for unknown photo ids.
	ErrPhotoNotFound = errs.Class("photo not found")
	// ErrValidation is returned for invalid query parameters.
	ErrValidation = errs.Class("invalid query")
)

// Photo is a single normalized photo record. Indexed columns are kept as
// typed fields; Raw holds the verbatim upstream record.
type Photo struct {
	ID         int64
	ExternalID string
	RoverID    int64
	CameraID   int64

	Sol           int
	EarthDate     time.Time
	TakenUTC      time.Time
	MarsLocalTime string
	ReceivedUTC   *time.Time

	ImageThumbnail string
	ImageSmall     string
	ImageMedium    string
	ImageFull      string
	Width          *int
	Height         *int
	SampleType     string

	Site  *int
	Drive *int
	XYZ   string

	MastAzimuth   *float64
	MastElevation *float64
	FilterName    string
	Title         string
	Caption       string
	Credit        string

	Raw json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PhotoInfo is a photo joined with the names of its camera and rover, the
// unit returned by queries.
type PhotoInfo struct {
	Photo

	CameraShortName string
	CameraFullName  string
	RoverName       string
}

// ManifestEntry summarizes one sol of a rover's mission: how many photos
// were taken and by which cameras.
type ManifestEntry struct {
	Sol       int
	EarthDate time.Time
	Count     int64
	Cameras   []string
}

// PhotoQuery is the storage-level filter for querying photos. All fields
// are optional; zero values mean "no restriction".
type PhotoQuery struct {
	RoverID  int64
	RoverIDs []int64

	Sol       *int
	EarthDate *time.Time

	CameraID         int64
	CameraShortNames []string

	SolMin  *int
	SolMax  *int
	DateMin *time.Time
	DateMax *time.Time

	ExternalIDSubstr string
	Site             *int
	Drive            *int
	SampleType       string

	Sort    Sort
	Page    int
	PerPage int
}

// Offset returns the row offset of the query's page.
func (q PhotoQuery) Offset() int {
	return (q.Page - 1) * q.PerPage
}

// PhotoPage is one page of query results with the total match count.
type PhotoPage struct {
	Photos     []PhotoInfo
	TotalCount int64
	Page       int
	PerPage    int
	TotalPages int
}

// Photos gives access to the photo table.
//
// architecture: Database
type Photos interface {
	// Get returns the photo with the given internal id.
	Get(ctx context.Context, id int64) (*PhotoInfo, error)
	// GetByExternalID returns the photo with the given upstream id.
	GetByExternalID(ctx context.Context, externalID string) (*PhotoInfo, error)
	// ExistingExternalIDs returns the subset of ids already stored for the
	// rover. Used to build the skip-set for small scrapes.
	ExistingExternalIDs(ctx context.Context, roverID int64, ids []string) (map[string]struct{}, error)
	// AllExternalIDs returns every external id stored for the rover. Used
	// to build the skip-set for bulk runs.
	AllExternalIDs(ctx context.Context, roverID int64) (map[string]struct{}, error)
	// SolExternalIDs returns the external ids stored for one sol of a
	// rover, in insertion order.
	SolExternalIDs(ctx context.Context, roverID int64, sol int) ([]string, error)
	// AddPhotos inserts the batch in a single transaction. Rows whose
	// external_id already exists are dropped; the remainder still commits.
	// Returns the external ids of the rows actually inserted.
	AddPhotos(ctx context.Context, batch []Photo) (inserted []string, err error)
	// Query returns one page of photos matching the filter plus the total
	// match count.
	Query(ctx context.Context, query PhotoQuery) (*PhotoPage, error)
	// Count returns the number of matching rows without fetching any.
	Count(ctx context.Context, query PhotoQuery) (int64, error)
	// MaxSol returns the highest sol stored for the rover. The bool is
	// false when the rover has no photos.
	MaxSol(ctx context.Context, roverID int64) (int, bool, error)
	// Manifest returns one entry per (sol, earth_date) the rover has
	// photographed, ascending by sol.
	Manifest(ctx context.Context, roverID int64) ([]ManifestEntry, error)
}
