// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package pds

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub001/fetch"
	"github.com/james-langridge/mars-vista-api-sub001/photos"
	"github.com/james-langridge/mars-vista-api-sub001/scraper"
)

var mon = monkit.Package()

// Config contains configuration for the PDS volume scraper.
type Config struct {
	BaseURL   string `help:"base URL of the PDS MER imaging node" default:"https://pds-imaging.jpl.nasa.gov/data/mer"`
	IndexPath string `help:"path of the EDR index inside a volume" default:"index/edrindex.tab"`
}

// Per-camera EDR volumes of the two MER rovers. Opportunity is MER-1 in
// the PDS numbering, Spirit MER-2.
var (
	OpportunityVolumes = []string{
		"mer1po_0xxx", "mer1no_0xxx", "mer1ho_0xxx", "mer1mo_0xxx", "mer1do_0xxx",
	}
	SpiritVolumes = []string{
		"mer2po_0xxx", "mer2no_0xxx", "mer2ho_0xxx", "mer2mo_0xxx", "mer2do_0xxx",
	}
)

// Scraper ingests a retired rover's photos from its PDS index archives.
// One instance serves one rover.
type Scraper struct {
	log     *zap.Logger
	client  *fetch.Client
	photos  photos.Photos
	cameras photos.Cameras
	rover   photos.Rover
	volumes []string
	config  Config
	ingest  scraper.IngestConfig
}

// NewScraper creates a PDS volume scraper for the rover.
func NewScraper(log *zap.Logger, client *fetch.Client, photoDB photos.Photos, cameras photos.Cameras, rover photos.Rover, volumes []string, config Config, ingest scraper.IngestConfig) *Scraper {
	if config.IndexPath == "" {
		config.IndexPath = "index/edrindex.tab"
	}
	return &Scraper{
		log:     log,
		client:  client,
		photos:  photoDB,
		cameras: cameras,
		rover:   rover,
		volumes: volumes,
		config:  config,
		ingest:  ingest,
	}
}

// Name returns the lowercase rover name.
func (s *Scraper) Name() string { return strings.ToLower(s.rover.Name) }

// Volumes returns the rover's volume names.
func (s *Scraper) Volumes() []string { return append([]string(nil), s.volumes...) }

// ScrapeSol ingests a single sol by walking all volumes with a sol filter.
func (s *Scraper) ScrapeSol(ctx context.Context, sol int) (_ scraper.SolResult, err error) {
	defer mon.Task()(&ctx)(&err)

	summary, err := s.scrapeVolumes(ctx, s.volumes, sol, sol)
	result := scraper.SolResult{
		Sol:      sol,
		Inserted: summary.Inserted,
		Skipped:  summary.Skipped,
		Success:  err == nil && len(summary.FailedSols) == 0,
	}
	if err != nil {
		result.Err = err.Error()
	}
	return result, err
}

// BulkScrape ingests every row whose sol falls within [startSol, endSol].
func (s *Scraper) BulkScrape(ctx context.Context, startSol, endSol int) (_ scraper.Summary, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.scrapeVolumes(ctx, s.volumes, startSol, endSol)
}

// ScrapeVolume ingests one named volume without a sol filter.
func (s *Scraper) ScrapeVolume(ctx context.Context, volume string) (_ scraper.Summary, err error) {
	defer mon.Task()(&ctx)(&err)

	if !s.hasVolume(volume) {
		return scraper.Summary{}, scraper.Error.New("unknown volume %q for rover %s", volume, s.rover.Name)
	}
	return s.scrapeVolumes(ctx, []string{volume}, -1, -1)
}

// ScrapeAll ingests every volume of the rover.
func (s *Scraper) ScrapeAll(ctx context.Context) (_ scraper.Summary, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.scrapeVolumes(ctx, s.volumes, -1, -1)
}

// scrapeVolumes walks the volumes through one shared ingester. In volume
// summaries SolsAttempted/SolsSucceeded count volumes; a failed volume is
// recorded and the remaining volumes still run. Sol filtering is disabled
// when minSol is negative.
func (s *Scraper) scrapeVolumes(ctx context.Context, volumes []string, minSol, maxSol int) (summary scraper.Summary, err error) {
	defer mon.Task()(&ctx)(&err)

	start := time.Now()
	summary.StartSol = minSol
	summary.EndSol = maxSol

	ing := scraper.NewIngester(s.log, s.photos, s.cameras, s.rover, s.ingest)
	if err := ing.LoadSkipSet(ctx); err != nil {
		return summary, err
	}

	for _, volume := range volumes {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		summary.SolsAttempted++
		if err := s.streamVolume(ctx, volume, minSol, maxSol, ing); err != nil {
			if ctx.Err() != nil {
				summary.Cancelled = true
				break
			}
			s.log.Warn("volume failed, continuing",
				zap.String("rover", s.rover.Name),
				zap.String("volume", volume),
				zap.Error(err))
			continue
		}
		summary.SolsSucceeded++
	}

	if err := ing.Flush(ctx); err != nil {
		s.log.Warn("final flush failed", zap.Error(err))
	}

	summary.Inserted, summary.Skipped = ing.Counts()
	summary.Added = ing.Added()
	summary.Duration = time.Since(start)
	return summary, nil
}

// streamVolume downloads a volume's EDR index as a stream and feeds every
// parsed row into the ingester.
func (s *Scraper) streamVolume(ctx context.Context, volume string, minSol, maxSol int, ing *scraper.Ingester) (err error) {
	defer mon.Task()(&ctx)(&err)

	url := fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.config.BaseURL, "/"), volume, s.config.IndexPath)
	stream, err := s.client.Open(ctx, url)
	if err != nil {
		return err
	}
	if stream == nil {
		s.log.Warn("volume index missing upstream",
			zap.String("volume", volume),
			zap.String("url", url))
		return nil
	}
	defer func() { _ = stream.Close() }()

	parser := NewParser(s.log.Named("parser"), stream)
	rows := 0
	for parser.Next() {
		rows++
		if rows%1000 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}

		row := parser.Row()
		if minSol >= 0 && (row.Sol < minSol || row.Sol > maxSol) {
			continue
		}

		candidate, err := s.rowToCandidate(row, volume)
		if err != nil {
			continue
		}
		if err := ing.Add(ctx, candidate); err != nil {
			return err
		}
	}
	if parser.Skipped() > 0 {
		s.log.Warn("malformed index rows skipped",
			zap.String("volume", volume),
			zap.Int("skipped", parser.Skipped()))
	}
	return parser.Err()
}

func (s *Scraper) rowToCandidate(row Row, volume string) (scraper.Candidate, error) {
	shortName := MapCamera(row.Instrument)

	fileName := row.FileName
	if fileName == "" {
		fileName = row.ProductID
	}

	raw, err := json.Marshal(map[string]interface{}{
		"VOLUME_ID":            row.VolumeID,
		"INSTRUMENT_ID":        row.Instrument,
		"PRODUCT_ID":           row.ProductID,
		"PATH_NAME":            row.PathName,
		"FILE_NAME":            row.FileName,
		"PLANET_DAY_NUMBER":    row.Sol,
		"START_TIME":           formatTime(row.StartTime),
		"FILTER_NAME":          row.FilterName,
		"LINES":                row.Lines,
		"LINE_SAMPLES":         row.LineSamples,
		"INSTRUMENT_AZIMUTH":   row.InstrumentAzimuth,
		"INSTRUMENT_ELEVATION": row.InstrumentElevation,
		"SOLAR_AZIMUTH":        row.SolarAzimuth,
		"SOLAR_ELEVATION":      row.SolarElevation,
	})
	if err != nil {
		return scraper.Candidate{}, Error.Wrap(err)
	}

	var earthDate time.Time
	if !row.StartTime.IsZero() {
		earthDate = row.StartTime.Truncate(24 * time.Hour)
	}

	return scraper.Candidate{
		ExternalID:      row.ProductID,
		CameraShortName: shortName,
		CameraFullName:  CameraFullName(shortName),
		Sol:             row.Sol,
		EarthDate:       earthDate,
		TakenUTC:        row.StartTime,
		ImageFull:       BrowseURL(s.config.BaseURL, volume, row.Sol, fileName),
		Width:           row.LineSamples,
		Height:          row.Lines,
		FilterName:      row.FilterName,
		MastAzimuth:     row.InstrumentAzimuth,
		MastElevation:   row.InstrumentElevation,
		Raw:             raw,
	}, nil
}

func (s *Scraper) hasVolume(volume string) bool {
	for _, known := range s.volumes {
		if known == volume {
			return true
		}
	}
	return false
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
