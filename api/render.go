// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/james-langridge/mars-vista-api-sub001/photos"
)

// Field sets select the projection shape of photo attributes.
const (
	fieldSetBasic    = "basic"
	fieldSetExtended = "extended"
	fieldSetFull     = "full"
)

func parseFieldSet(value string) (string, error) {
	switch value {
	case "", fieldSetBasic:
		return fieldSetBasic, nil
	case fieldSetExtended, fieldSetFull:
		return value, nil
	default:
		return "", photos.ErrValidation.New("unsupported field_set %q", value)
	}
}

// includes is the set of related entities to embed.
type includes struct {
	Rover  bool
	Camera bool
}

func parseIncludes(value string) (includes, error) {
	var inc includes
	if value == "" {
		return inc, nil
	}
	for _, name := range strings.Split(value, ",") {
		switch strings.TrimSpace(name) {
		case "":
		case "rover":
			inc.Rover = true
		case "camera":
			inc.Camera = true
		default:
			return inc, photos.ErrValidation.New("unsupported include %q", name)
		}
	}
	return inc, nil
}

type relationship struct {
	ID         int64                  `json:"id"`
	Attributes map[string]interface{} `json:"attributes"`
}

type resourceLinks struct {
	Self string `json:"self"`
}

type photoResource struct {
	ID            int64                   `json:"id"`
	Attributes    map[string]interface{}  `json:"attributes"`
	Relationships map[string]relationship `json:"relationships,omitempty"`
	Links         *resourceLinks          `json:"links,omitempty"`
}

type listMeta struct {
	TotalCount    int64 `json:"total_count"`
	ReturnedCount int   `json:"returned_count"`
}

type paginationInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

type pageLinks struct {
	Previous *string `json:"previous"`
	Next     *string `json:"next"`
	Self     string  `json:"self"`
}

type photoListResponse struct {
	Data       []photoResource `json:"data"`
	Meta       listMeta        `json:"meta"`
	Pagination paginationInfo  `json:"pagination"`
	Links      pageLinks       `json:"links"`
}

// renderPhotoPage writes the list envelope with the X-Total-Count header.
func renderPhotoPage(w http.ResponseWriter, r *http.Request, page *photos.PhotoPage, fieldSet string, inc includes) {
	data := make([]photoResource, 0, len(page.Photos))
	for i := range page.Photos {
		data = append(data, renderPhoto(&page.Photos[i], fieldSet, inc))
	}

	response := photoListResponse{
		Data: data,
		Meta: listMeta{
			TotalCount:    page.TotalCount,
			ReturnedCount: len(data),
		},
		Pagination: paginationInfo{
			Page:       page.Page,
			PerPage:    page.PerPage,
			TotalPages: page.TotalPages,
		},
		Links: buildPageLinks(r.URL, page.Page, page.TotalPages),
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(page.TotalCount, 10))
	jsonResponse(w, http.StatusOK, response)
}

func renderPhoto(info *photos.PhotoInfo, fieldSet string, inc includes) photoResource {
	attrs := map[string]interface{}{
		"sol":               info.Sol,
		"earth_date":        formatDate(info.EarthDate),
		"img_src":           info.ImageFull,
		"camera_short_name": info.CameraShortName,
		"rover_name":        info.RoverName,
	}

	if fieldSet == fieldSetExtended || fieldSet == fieldSetFull {
		attrs["nasa_id"] = info.ExternalID
		attrs["dimensions"] = dimensions(info.Width, info.Height)
		attrs["location"] = map[string]interface{}{
			"site":  info.Site,
			"drive": info.Drive,
		}
		attrs["mars_time"] = info.MarsLocalTime
		attrs["telemetry"] = map[string]interface{}{
			"mast_az": info.MastAzimuth,
			"mast_el": info.MastElevation,
		}
		attrs["sample_type"] = info.SampleType
		attrs["images"] = map[string]interface{}{
			"small":  info.ImageSmall,
			"medium": info.ImageMedium,
			"large":  info.ImageFull,
			"full":   info.ImageFull,
		}
		attrs["title"] = info.Title
		attrs["caption"] = info.Caption
		attrs["credit"] = info.Credit
	}
	if fieldSet == fieldSetFull {
		attrs["raw_data"] = info.Raw
	}

	resource := photoResource{
		ID:         info.ID,
		Attributes: attrs,
		Links:      &resourceLinks{Self: fmt.Sprintf("/api/v1/photos/%d", info.ID)},
	}

	if inc.Rover || inc.Camera {
		resource.Relationships = make(map[string]relationship)
		if inc.Rover {
			resource.Relationships["rover"] = relationship{
				ID:         info.RoverID,
				Attributes: map[string]interface{}{"name": info.RoverName},
			}
		}
		if inc.Camera {
			resource.Relationships["camera"] = relationship{
				ID: info.CameraID,
				Attributes: map[string]interface{}{
					"short_name": info.CameraShortName,
					"full_name":  info.CameraFullName,
				},
			}
		}
	}
	return resource
}

func dimensions(width, height *int) map[string]interface{} {
	dim := map[string]interface{}{
		"width":        width,
		"height":       height,
		"aspect_ratio": nil,
	}
	if width != nil && height != nil && *height != 0 {
		dim["aspect_ratio"] = float64(*width) / float64(*height)
	}
	return dim
}

// buildPageLinks derives prev/next/self from the request URL. Boundary
// links are null.
func buildPageLinks(u *url.URL, page, totalPages int) pageLinks {
	links := pageLinks{Self: pageURL(u, page)}
	if page > 1 {
		prev := pageURL(u, page-1)
		links.Previous = &prev
	}
	if page < totalPages {
		next := pageURL(u, page+1)
		links.Next = &next
	}
	return links
}

func pageURL(u *url.URL, page int) string {
	copied := *u
	values := copied.Query()
	values.Set("page", strconv.Itoa(page))
	copied.RawQuery = values.Encode()
	return copied.String()
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func renderRover(rover *photos.Rover) map[string]interface{} {
	return map[string]interface{}{
		"id":           rover.ID,
		"name":         rover.Name,
		"landing_date": rover.LandingDate.Format("2006-01-02"),
		"launch_date":  rover.LaunchDate.Format("2006-01-02"),
		"status":       rover.Status,
	}
}
