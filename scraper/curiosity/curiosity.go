// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// Package curiosity scrapes the Curiosity raw-image JSON feed.
package curiosity

import (
	"context"
	"encoding/json"
	"fmt"
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

	// Error is the default error class for the curiosity package.
	Error = errs.Class("curiosity")
)

// Config contains configuration for the Curiosity feed.
type Config struct {
	BaseURL string `help:"base URL of the Curiosity raw image feed" default:"https://mars.nasa.gov/msl-raw-images"`
}

// Client fetches and decodes the per-sol feed. The feed is keyed by a
// zero-padded five digit sol; a 404 means "no data for this sol".
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
	DateTaken  time.Time
	EarthDate  time.Time
	ImgSrc     string
	Thumbnail  string
	SampleType string

	Raw json.RawMessage
}

type feedResponse struct {
	Images []json.RawMessage `json:"images"`
}

type feedImage struct {
	ID  flexString `json:"id"`
	Sol int        `json:"sol"`

	Camera struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
	} `json:"camera"`

	DateTaken  string `json:"date_taken"`
	EarthDate  string `json:"earth_date"`
	ImgSrc     string `json:"img_src"`
	SampleType string `json:"sample_type"`

	URLList json.RawMessage `json:"url_list"`
}

// manifestResponse is the subset of image_manifest.json the scraper
// reads to discover the mission's latest published sol.
type manifestResponse struct {
	LatestSol int `json:"latest_sol"`
}

// LatestSol reads the feed manifest for the highest sol the upstream has
// published.
func (client *Client) LatestSol(ctx context.Context) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)

	url := strings.TrimRight(client.config.BaseURL, "/") + "/image_manifest.json"
	body, err := client.fetch.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	if body == nil {
		return 0, Error.New("feed manifest not found")
	}

	var manifest manifestResponse
	if err := json.Unmarshal(body, &manifest); err != nil {
		return 0, Error.New("malformed feed manifest: %v", err)
	}
	return manifest.LatestSol, nil
}

// FetchSol returns the decoded feed for one sol. A missing sol returns an
// empty slice and no error.
func (client *Client) FetchSol(ctx context.Context, sol int) (_ []Image, err error) {
	defer mon.Task()(&ctx)(&err)

	url := fmt.Sprintf("%s/%05d/images.json", strings.TrimRight(client.config.BaseURL, "/"), sol)
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

		image := Image{
			ID:         string(decoded.ID),
			Sol:        decoded.Sol,
			Camera:     decoded.Camera.Name,
			CameraFull: decoded.Camera.FullName,
			DateTaken:  parseTimestamp(decoded.DateTaken),
			EarthDate:  parseDate(decoded.EarthDate),
			ImgSrc:     decoded.ImgSrc,
			Thumbnail:  thumbnailURL(decoded.URLList),
			SampleType: decoded.SampleType,
			Raw:        raw,
		}
		images = append(images, image)
	}
	return images, nil
}

// SolExternalIDs lists the upstream ids published for a sol, for the
// compare diagnostics.
func (client *Client) SolExternalIDs(ctx context.Context, sol int) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)

	images, err := client.FetchSol(ctx, sol)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(images))
	for _, image := range images {
		ids = append(ids, image.ID)
	}
	return ids, nil
}

// Scraper ingests Curiosity photos sol by sol.
type Scraper struct {
	log     *zap.Logger
	client  *Client
	photos  photos.Photos
	cameras photos.Cameras
	rover   photos.Rover
	ingest  scraper.IngestConfig
}

// NewScraper creates the Curiosity scraper.
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
// follows the manifest's latest sol.
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
		if endSol < startSol {
			// the store is already ahead of the manifest; nothing to do
			return scraper.Summary{StartSol: startSol, EndSol: endSol}, nil
		}
	}
	if endSol < startSol {
		return scraper.Summary{}, Error.New("end sol %d before start sol %d", endSol, startSol)
	}

	ing := scraper.NewIngester(s.log, s.photos, s.cameras, s.rover, s.ingest)
	if err := ing.LoadSkipSet(ctx); err != nil {
		return scraper.Summary{}, err
	}

	return scraper.RunBulk(ctx, s.log, ing, startSol, endSol, func(ctx context.Context, sol int, ing *scraper.Ingester) error {
		return s.scrapeSolInto(ctx, sol, ing, false)
	})
}

// scrapeSolInto fetches one sol of the feed and streams it through the
// ingester. loadSubset selects the cheap skip-set variant used by
// single-sol scrapes.
func (s *Scraper) scrapeSolInto(ctx context.Context, sol int, ing *scraper.Ingester, loadSubset bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	images, err := s.client.FetchSol(ctx, sol)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return nil
	}

	if loadSubset {
		ids := make([]string, 0, len(images))
		for _, image := range images {
			ids = append(ids, image.ID)
		}
		if err := ing.LoadSkipSetFor(ctx, ids); err != nil {
			return err
		}
	}

	for _, image := range images {
		candidate := scraper.Candidate{
			ExternalID:      image.ID,
			CameraShortName: image.Camera,
			CameraFullName:  image.CameraFull,
			Sol:             image.Sol,
			EarthDate:       image.EarthDate,
			TakenUTC:        image.DateTaken,
			ImageFull:       image.ImgSrc,
			ImageThumbnail:  image.Thumbnail,
			SampleType:      image.SampleType,
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

// flexString decodes both JSON strings and numbers, since the feed has
// published photo ids in either form.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*s = flexString(value)
		return nil
	}
	*s = flexString(strings.TrimSpace(string(data)))
	return nil
}

func thumbnailURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err == nil {
		return value
	}
	return ""
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05 MST",
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

func parseDate(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
