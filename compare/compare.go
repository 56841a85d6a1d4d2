// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// Package compare checks the local store against a live fetch of the
// upstream feeds, for integrity diagnostics.
package compare

import (
	"context"
	"sort"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub001/photos"
)

var (
	mon = monkit.Package()

	// Error is the default error class for the compare package.
	Error = errs.Class("compare")
	// ErrUnsupported is returned for rovers without a live upstream feed.
	ErrUnsupported = errs.Class("compare unsupported")
	// ErrValidation is returned for invalid compare parameters.
	ErrValidation = errs.Class("invalid compare request")
)

// Sol comparison statuses.
const (
	StatusMatch     = "match"
	StatusMissing   = "missing"
	StatusExtra     = "extra"
	StatusDivergent = "divergent"
)

// UpstreamPhoto is the subset of an upstream record the diagnostics
// compare field by field.
type UpstreamPhoto struct {
	ExternalID string
	Sol        int
	Camera     string
	ImgSrc     string
}

// Source serves live upstream records for one rover.
type Source interface {
	// SolPhotos returns the upstream records of one sol, after the same
	// filtering the rover's scraper applies on ingest.
	SolPhotos(ctx context.Context, sol int) ([]UpstreamPhoto, error)
}

// Config contains configuration for the compare service.
type Config struct {
	ListCap      int `help:"cap on enumerated missing/extra ids per sol" default:"20"`
	MaxRangeSols int `help:"largest sol range accepted by a range compare" default:"50"`
}

// Service implements the NASA-compare diagnostics.
type Service struct {
	log    *zap.Logger
	rovers photos.Rovers
	photos photos.Photos
	config Config

	sources map[string]Source
}

// NewService creates a compare service; sources are registered per rover.
func NewService(log *zap.Logger, rovers photos.Rovers, photoDB photos.Photos, config Config) *Service {
	if config.ListCap <= 0 {
		config.ListCap = 20
	}
	if config.MaxRangeSols <= 0 {
		config.MaxRangeSols = 50
	}
	return &Service{
		log:     log,
		rovers:  rovers,
		photos:  photoDB,
		config:  config,
		sources: make(map[string]Source),
	}
}

// RegisterSource attaches a live upstream source for a rover.
func (service *Service) RegisterSource(roverName string, source Source) {
	service.sources[strings.ToLower(roverName)] = source
}

// SolReport is the outcome of comparing one sol.
type SolReport struct {
	Rover string `json:"rover"`
	Sol   int    `json:"sol"`

	NASACount int `json:"nasa_count"`
	OurCount  int `json:"our_count"`

	Missing   []string `json:"missing"`
	Extra     []string `json:"extra"`
	Truncated bool     `json:"truncated,omitempty"`

	MatchPercent float64 `json:"match_percent"`
	Status       string  `json:"status"`
}

// CompareSol compares the local store with the live upstream for one sol.
func (service *Service) CompareSol(ctx context.Context, roverName string, sol int) (_ *SolReport, err error) {
	defer mon.Task()(&ctx)(&err)

	rover, source, err := service.roverSource(ctx, roverName)
	if err != nil {
		return nil, err
	}

	upstream, err := source.SolPhotos(ctx, sol)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	nasaIDs := make(map[string]struct{}, len(upstream))
	for _, photo := range upstream {
		nasaIDs[photo.ExternalID] = struct{}{}
	}

	ourIDs, err := service.photos.SolExternalIDs(ctx, rover.ID, sol)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	ours := make(map[string]struct{}, len(ourIDs))
	for _, id := range ourIDs {
		ours[id] = struct{}{}
	}

	report := &SolReport{
		Rover:     rover.Name,
		Sol:       sol,
		NASACount: len(nasaIDs),
		OurCount:  len(ours),
		Missing:   []string{},
		Extra:     []string{},
	}

	var missing, extra []string
	for id := range nasaIDs {
		if _, ok := ours[id]; !ok {
			missing = append(missing, id)
		}
	}
	for id := range ours {
		if _, ok := nasaIDs[id]; !ok {
			extra = append(extra, id)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)

	report.Missing, report.Extra = missing, extra
	if len(missing) > service.config.ListCap {
		report.Missing = missing[:service.config.ListCap]
		report.Truncated = true
	}
	if len(extra) > service.config.ListCap {
		report.Extra = extra[:service.config.ListCap]
		report.Truncated = true
	}
	if report.Missing == nil {
		report.Missing = []string{}
	}
	if report.Extra == nil {
		report.Extra = []string{}
	}

	matched := len(nasaIDs) - len(missing)
	union := len(nasaIDs) + len(extra)
	if union == 0 {
		report.MatchPercent = 100
	} else {
		report.MatchPercent = float64(matched) * 100 / float64(union)
	}

	switch {
	case len(missing) == 0 && len(extra) == 0:
		report.Status = StatusMatch
	case len(extra) == 0:
		report.Status = StatusMissing
	case len(missing) == 0:
		report.Status = StatusExtra
	default:
		report.Status = StatusDivergent
	}
	return report, nil
}

// FieldDiff is one divergent field of a photo comparison.
type FieldDiff struct {
	Ours interface{} `json:"ours"`
	NASA interface{} `json:"nasa"`
}

// PhotoReport is the outcome of comparing one photo by nasa id.
type PhotoReport struct {
	NASAID string `json:"nasa_id"`

	InOurs bool `json:"in_ours"`
	InNASA bool `json:"in_nasa"`

	Rover string `json:"rover,omitempty"`
	Sol   *int   `json:"sol,omitempty"`

	Differences map[string]FieldDiff `json:"differences,omitempty"`
}

// ComparePhoto compares a single stored photo against its upstream
// record. A photo that is not stored locally cannot be located upstream,
// since the feeds are addressed by sol.
func (service *Service) ComparePhoto(ctx context.Context, nasaID string) (_ *PhotoReport, err error) {
	defer mon.Task()(&ctx)(&err)

	report := &PhotoReport{NASAID: nasaID}

	local, err := service.photos.GetByExternalID(ctx, nasaID)
	if err != nil {
		if photos.ErrPhotoNotFound.Has(err) {
			return report, nil
		}
		return nil, Error.Wrap(err)
	}
	report.InOurs = true
	report.Rover = local.RoverName
	sol := local.Sol
	report.Sol = &sol

	source, ok := service.sources[strings.ToLower(local.RoverName)]
	if !ok {
		return nil, ErrUnsupported.New("%s", local.RoverName)
	}

	upstream, err := source.SolPhotos(ctx, local.Sol)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var remote *UpstreamPhoto
	for i := range upstream {
		if upstream[i].ExternalID == nasaID {
			remote = &upstream[i]
			break
		}
	}
	if remote == nil {
		return report, nil
	}
	report.InNASA = true

	diffs := make(map[string]FieldDiff)
	if remote.Sol != local.Sol {
		diffs["sol"] = FieldDiff{Ours: local.Sol, NASA: remote.Sol}
	}
	if remote.Camera != "" && !strings.EqualFold(remote.Camera, local.CameraShortName) {
		diffs["camera"] = FieldDiff{Ours: local.CameraShortName, NASA: remote.Camera}
	}
	if remote.ImgSrc != "" && remote.ImgSrc != local.ImageFull {
		diffs["img_src"] = FieldDiff{Ours: local.ImageFull, NASA: remote.ImgSrc}
	}
	if len(diffs) > 0 {
		report.Differences = diffs
	}
	return report, nil
}

// RangeReport aggregates per-sol summaries over a sol range.
type RangeReport struct {
	Rover    string      `json:"rover"`
	StartSol int         `json:"start_sol"`
	EndSol   int         `json:"end_sol"`
	Sols     []SolReport `json:"sols"`
}

// CompareRange compares each sol of [startSol, endSol], capped to the
// configured maximum range.
func (service *Service) CompareRange(ctx context.Context, roverName string, startSol, endSol int) (_ *RangeReport, err error) {
	defer mon.Task()(&ctx)(&err)

	if startSol < 0 || endSol < startSol {
		return nil, ErrValidation.New("invalid sol range %d..%d", startSol, endSol)
	}
	if endSol-startSol+1 > service.config.MaxRangeSols {
		return nil, ErrValidation.New("range exceeds %d sols", service.config.MaxRangeSols)
	}

	report := &RangeReport{Rover: roverName, StartSol: startSol, EndSol: endSol}
	for sol := startSol; sol <= endSol; sol++ {
		solReport, err := service.CompareSol(ctx, roverName, sol)
		if err != nil {
			return nil, err
		}
		report.Rover = solReport.Rover
		report.Sols = append(report.Sols, *solReport)
	}
	return report, nil
}

func (service *Service) roverSource(ctx context.Context, roverName string) (*photos.Rover, Source, error) {
	rover, err := service.rovers.GetByName(ctx, roverName)
	if err != nil {
		return nil, nil, err
	}
	source, ok := service.sources[strings.ToLower(rover.Name)]
	if !ok {
		return nil, nil, ErrUnsupported.New("%s has no live upstream feed", rover.Name)
	}
	return rover, source, nil
}
