// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/james-langridge/mars-vista-api-sub001/photos"
)

func (server *Server) listRovers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rovers, err := server.service.ListRovers(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	data := make([]map[string]interface{}, 0, len(rovers))
	for i := range rovers {
		data = append(data, renderRover(&rovers[i]))
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"data": data})
}

func (server *Server) getRover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rover, err := server.service.GetRover(ctx, mux.Vars(r)["rover"])
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"data": renderRover(rover)})
}

func (server *Server) roverPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, fieldSet, inc, err := parsePhotoParams(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	page, err := server.service.RoverPhotos(ctx, mux.Vars(r)["rover"], req)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	renderPhotoPage(w, r, page, fieldSet, inc)
}

func (server *Server) latestPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, fieldSet, inc, err := parsePhotoParams(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	page, err := server.service.LatestPhotos(ctx, mux.Vars(r)["rover"], req)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	renderPhotoPage(w, r, page, fieldSet, inc)
}

func (server *Server) searchPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, fieldSet, inc, err := parsePhotoParams(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	page, err := server.service.Search(ctx, req)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	renderPhotoPage(w, r, page, fieldSet, inc)
}

func (server *Server) getPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		server.serveError(w, r, photos.ErrValidation.New("invalid photo id"))
		return
	}
	fieldSet, err := parseFieldSet(r.URL.Query().Get("field_set"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	inc, err := parseIncludes(r.URL.Query().Get("include"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	info, err := server.service.GetPhoto(ctx, id)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"data": renderPhoto(info, fieldSet, inc),
	})
}

func (server *Server) manifest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rover, entries, err := server.service.Manifest(ctx, mux.Vars(r)["rover"])
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	var totalPhotos int64
	maxSol := 0
	sols := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		totalPhotos += entry.Count
		if entry.Sol > maxSol {
			maxSol = entry.Sol
		}
		sols = append(sols, map[string]interface{}{
			"sol":          entry.Sol,
			"earth_date":   formatDate(entry.EarthDate),
			"total_photos": entry.Count,
			"cameras":      entry.Cameras,
		})
	}

	manifest := renderRover(rover)
	manifest["max_sol"] = maxSol
	manifest["total_photos"] = totalPhotos
	manifest["photos"] = sols
	jsonResponse(w, http.StatusOK, map[string]interface{}{"data": manifest})
}

// parsePhotoParams parses the shared photo query parameter set. Explicit
// non-positive page or per_page values are rejected here; the service
// only sees absent-or-valid values.
func parsePhotoParams(r *http.Request) (req photos.Request, fieldSet string, inc includes, err error) {
	values := r.URL.Query()

	fieldSet, err = parseFieldSet(values.Get("field_set"))
	if err != nil {
		return req, "", inc, err
	}
	inc, err = parseIncludes(values.Get("include"))
	if err != nil {
		return req, "", inc, err
	}

	if req.Sol, err = optionalInt(values, "sol"); err != nil {
		return req, "", inc, err
	}
	if req.EarthDate, err = optionalDate(values, "earth_date"); err != nil {
		return req, "", inc, err
	}
	req.Camera = values.Get("camera")

	if req.SolMin, err = optionalInt(values, "sol_min"); err != nil {
		return req, "", inc, err
	}
	if req.SolMax, err = optionalInt(values, "sol_max"); err != nil {
		return req, "", inc, err
	}
	if req.DateMin, err = optionalDate(values, "date_min"); err != nil {
		return req, "", inc, err
	}
	if req.DateMax, err = optionalDate(values, "date_max"); err != nil {
		return req, "", inc, err
	}

	req.NASAID = values.Get("nasa_id")
	if req.Site, err = optionalInt(values, "site"); err != nil {
		return req, "", inc, err
	}
	if req.Drive, err = optionalInt(values, "drive"); err != nil {
		return req, "", inc, err
	}
	req.SampleType = values.Get("sample_type")

	req.Rovers = splitList(values.Get("rovers"))
	req.Cameras = splitList(values.Get("cameras"))

	if req.Sort, err = photos.ParseSort(values.Get("sort")); err != nil {
		return req, "", inc, err
	}

	if req.Page, err = positiveInt(values, "page"); err != nil {
		return req, "", inc, err
	}
	if req.PerPage, err = positiveInt(values, "per_page"); err != nil {
		return req, "", inc, err
	}
	return req, fieldSet, inc, nil
}

func optionalInt(values map[string][]string, key string) (*int, error) {
	raw := first(values, key)
	if raw == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return nil, photos.ErrValidation.New("%s must be an integer", key)
	}
	return &parsed, nil
}

func positiveInt(values map[string][]string, key string) (int, error) {
	raw := first(values, key)
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 1 {
		return 0, photos.ErrValidation.New("%s must be a positive integer", key)
	}
	return parsed, nil
}

func optionalDate(values map[string][]string, key string) (*time.Time, error) {
	raw := first(values, key)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return nil, photos.ErrValidation.New("%s must be a YYYY-MM-DD date", key)
	}
	return &parsed, nil
}

func first(values map[string][]string, key string) string {
	if list, ok := values[key]; ok && len(list) > 0 {
		return list[0]
	}
	return ""
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
