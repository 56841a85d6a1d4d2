// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// Package perseverance scrapes the Mars 2020 raw-image JSON feed.
package perseverance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub001/fetch"
	"github.com/james-langridge/mars-vista-api-sub001/photos"
	"github.com/james-langridge/mars-vista-api-sub001/scraper"
)

var (
	mon = monkit.Package()

	// Error is the default error class for the perseverance package.
	Error = errs.Class("perseverance")
)

// Config contains configuration for the Mars 2020 feed.
type Config struct {
	BaseURL    string `help:"base URL of the Mars 2020 raw image feed" default:"https://mars.nasa.gov/rss/api/"`
	SampleType string `help:"only ingest images of this sample type, empty for all" default:"Full"`
}

// Client fetches and decodes the feed. The same endpoint answers both the
// latest-sol discovery query and the per-sol image query.
type Client struct {
	log    *zap.Logger
	fetch  *fetch.Client
	config Config
}

// NewClient creates a feed client.
func NewClient(log *zap.Logger, fetcher *fetch.Client, config Config) *Client {
	return &Client{log: log, fetch: fetcher, config: config}
}

// Image is one decoded feed element plus its verbatim JSON.
type Image struct {
	ID         string
	Sol        int
	Camera     string
	CameraFull string

	TakenUTC    time.Time
	TakenMars   string
	ReceivedUTC *time.Time
	EarthDate   time.Time

	Small   string
	Medium  string
	Large   string
	FullRes string

	Width  *int
	Height *int

	Site  *int
	Drive *int
	XYZ   string

	MastAzimuth   *float64
	MastElevation *float64

	SampleType string
	Title      string
	Caption    string
	Credit     string

	Raw json.RawMessage
}

type latestResponse struct {
	LatestSol int `json:"latest_sol"`
	Total     int `json:"total"`
}

type feedResponse struct {
	Images []json.RawMessage `json:"images"`
}

type feedImage struct {
	ImageID string `json:"imageid"`
	Sol     int    `json:"sol"`

	Camera struct {
		Instrument   string `json:"instrument"`
		CameraNameSE string `json:"camera_name_se"`
	} `json:"camera"`

	ImageFiles struct {
		Small   string `json:"small"`
		Medium  string `json:"medium"`
		Large   string `json:"large"`
		FullRes string `json:"full_res"`
	} `json:"image_files"`

	Extended struct {
		MastAz    string `json:"mastAz"`
		MastEl    string `json:"mastEl"`
		XYZ       string `json:"xyz"`
		Dimension string `json:"dimension"`
	} `json:"extended"`

	Site  *int `json:"site"`
	Drive *int `json:"drive"`

	SampleType    string `json:"sample_type"`
	DateTakenUTC  string `json:"date_taken_utc"`
	DateTakenMars string `json:"date_taken_mars"`
	DateReceived  string `json:"date_received"`

	Title   string `json:"title"`
	Caption string `json:"caption"`
	Credit  string `json:"credit"`
}

// LatestSol discovers the highest sol the upstream has published.
func (client *Client) LatestSol(ctx context.Context) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)

	url := client.feedURL("&latest=true")
	body, err := client.fetch.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	if body == nil {
		return 0, Error.New("latest-sol query returned no data")
	}

	var latest latestResponse
	if err := json.Unmarshal(body, &latest); err != nil {
		return 0, Error.New("malformed latest-sol response: %v", err)
	}
	return latest.LatestSol, nil
}

// FetchSol returns the decoded feed for one sol. A missing sol returns an
// empty slice and no error.
func (client *Client) FetchSol(ctx context.Context, sol int) (_ []Image, err error) {
	defer mon.Task()(&ctx)(&err)

	url := client.feedURL(fmt.Sprintf("&sol=%d", sol))
	body, err := client.fetch.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	var feed feedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, Error.New("malformed feed for sol %d: %v", sol, err)
	}

	images := make([]Image, 0, len(feed.Images))
	for _, raw := range feed.Images {
		var decoded feedImage
		if err := json.Unmarshal(raw, &decoded); err != nil {
			client.log.Warn("malformed feed element skipped",
				zap.Int("sol", sol), zap.Error(err))
			continue
		}

		width, height := parseDimension(decoded.Extended.Dimension)
		image := Image{
			ID:            decoded.ImageID,
			Sol:           decoded.Sol,
			Camera:        decoded.Camera.Instrument,
			CameraFull:    decoded.Camera.CameraNameSE,
			TakenUTC:      parseTimestamp(decoded.DateTakenUTC),
			TakenMars:     decoded.DateTakenMars,
			ReceivedUTC:   parseOptionalTimestamp(decoded.DateReceived),
			Small:         decoded.ImageFiles.Small,
			Medium:        decoded.ImageFiles.Medium,
			Large:         decoded.ImageFiles.Large,
			FullRes:       decoded.ImageFiles.FullRes,
			Width:         width,
			Height:        height,
			Site:          decoded.Site,
			Drive:         decoded.Drive,
			XYZ:           decoded.Extended.XYZ,
			MastAzimuth:   parseAngle(decoded.Extended.MastAz),
			MastElevation: parseAngle(decoded.Extended.MastEl),
			SampleType:    decoded.SampleType,
			Title:         decoded.Title,
			Caption:       decoded.Caption,
			Credit:        decoded.Credit,
			Raw:           raw,
		}
		if !image.TakenUTC.IsZero() {
			image.EarthDate = image.TakenUTC.Truncate(24 * time.Hour)
		}
		images = append(images, image)
	}
	return images, nil
}

// SolExternalIDs lists the upstream ids of a sol that pass the sample-type
// filter, for the compare diagnostics.
func (client *Client) SolExternalIDs(ctx context.Context, sol int) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)

	images, err := client.FetchSol(ctx, sol)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(images))
	for _, image := range images {
		if client.config.SampleType != "" && image.SampleType != client.config.SampleType {
			continue
		}
		ids = append(ids, image.ID)
	}
	return ids, nil
}

func (client *Client) feedURL(suffix string) string {
	return strings.TrimRight(client.config.BaseURL, "/") +
		"/?feed=raw_images&category=mars2020&feedtype=json" + suffix
}

// Scraper ingests Perseverance photos sol by sol.
type Scraper struct {
	log     *zap.Logger
	client  *Client
	photos  photos.Photos
	cameras photos.Cameras
	rover   photos.Rover
	ingest  scraper.IngestConfig
}

// NewScraper creates the Perseverance scraper.
func NewScraper(log *zap.Logger, client *Client, photoDB photos.Photos, cameras photos.Cameras, rover photos.Rover, ingest scraper.IngestConfig) *Scraper {
	return &Scraper{
		log:     log,
		client:  client,
		photos:  photoDB,
		cameras: cameras,
		rover:   rover,
		ingest:  ingest,
	}
}

// Name returns the lowercase rover name.
func (s *Scraper) Name() string { return strings.ToLower(s.rover.Name) }

// Client returns the underlying feed client.
func (s *Scraper) Client() *Client { return s.client }

// ScrapeSol ingests a single sol. An upstream 404 is an empty success.
func (s *Scraper) ScrapeSol(ctx context.Context, sol int) (_ scraper.SolResult, err error) {
	defer mon.Task()(&ctx)(&err)

	ing := scraper.NewIngester(s.log, s.photos, s.cameras, s.rover, s.ingest)

	err = s.scrapeSolInto(ctx, sol, ing, true)
	if err == nil {
		err = ing.Flush(ctx)
	}

	inserted, skipped := ing.Counts()
	result := scraper.SolResult{
		Sol:      sol,
		Inserted: inserted,
		Skipped:  skipped,
		Success:  err == nil,
	}
	if err != nil {
		result.Err = err.Error()
	}
	return result, err
}

// BulkScrape ingests the sol range in ascending order. A non-positive
// start resumes from the highest stored sol plus one; a non-positive end
// is discovered through the latest-sol query.
func (s *Scraper) BulkScrape(ctx context.Context, startSol, endSol int) (_ scraper.Summary, err error) {
	defer mon.Task()(&ctx)(&err)

	if startSol <= 0 {
		maxSol, found, err := s.photos.MaxSol(ctx, s.rover.ID)
		if err != nil {
			return scraper.Summary{}, Error.Wrap(err)
		}
		startSol = 0
		if found {
			startSol = maxSol + 1
		}
	}
	if endSol <= 0 {
		endSol, err = s.client.LatestSol(ctx)
		if err != nil {
			return scraper.Summary{}, err
		}
	}
	if endSol < startSol {
		return scraper.Summary{StartSol: startSol, EndSol: endSol}, nil
	}

	ing := scraper.NewIngester(s.log, s.photos, s.cameras, s.rover, s.ingest)
	if err := ing.LoadSkipSet(ctx); err != nil {
		return scraper.Summary{}, err
	}

	return scraper.RunBulk(ctx, s.log, ing, startSol, endSol, func(ctx context.Context, sol int, ing *scraper.Ingester) error {
		return s.scrapeSolInto(ctx, sol, ing, false)
	})
}

func (s *Scraper) scrapeSolInto(ctx context.Context, sol int, ing *scraper.Ingester, loadSubset bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	images, err := s.client.FetchSol(ctx, sol)
	if err != nil {
		return err
	}

	filtered := images[:0]
	for _, image := range images {
		if s.client.config.SampleType != "" && image.SampleType != s.client.config.SampleType {
			continue
		}
		filtered = append(filtered, image)
	}
	if len(filtered) == 0 {
		return nil
	}

	if loadSubset {
		ids := make([]string, 0, len(filtered))
		for _, image := range filtered {
			ids = append(ids, image.ID)
		}
		if err := ing.LoadSkipSetFor(ctx, ids); err != nil {
			return err
		}
	}

	for _, image := range filtered {
		candidate := scraper.Candidate{
			ExternalID:      image.ID,
			CameraShortName: image.Camera,
			CameraFullName:  image.CameraFull,
			Sol:             image.Sol,
			EarthDate:       image.EarthDate,
			TakenUTC:        image.TakenUTC,
			MarsLocalTime:   image.TakenMars,
			ReceivedUTC:     image.ReceivedUTC,
			ImageThumbnail:  image.Small,
			ImageSmall:      image.Small,
			ImageMedium:     image.Medium,
			ImageFull:       image.FullRes,
			Width:           image.Width,
			Height:          image.Height,
			SampleType:      image.SampleType,
			Site:            image.Site,
			Drive:           image.Drive,
			XYZ:             image.XYZ,
			MastAzimuth:     image.MastAzimuth,
			MastElevation:   image.MastElevation,
			Title:           image.Title,
			Caption:         image.Caption,
			Credit:          image.Credit,
			Raw:             image.Raw,
		}
		if candidate.Sol == 0 {
			candidate.Sol = sol
		}
		if err := ing.Add(ctx, candidate); err != nil {
			return err
		}
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
}

func parseTimestamp(value string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseOptionalTimestamp(value string) *time.Time {
	t := parseTimestamp(value)
	if t.IsZero() {
		return nil
	}
	return &t
}

// parseAngle reads the stringly-typed telemetry angles; the feed uses
// "UNK" for unknown values.
func parseAngle(value string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseDimension splits the "(width,height)" telemetry value.
func parseDimension(value string) (width, height *int) {
	value = strings.Trim(strings.TrimSpace(value), "()")
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return nil, nil
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil {
		return nil, nil
	}
	return &w, &h
}
