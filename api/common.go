// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub001/compare"
	"github.com/james-langridge/mars-vista-api-sub001/photos"
	"github.com/james-langridge/mars-vista-api-sub001/scraper"
)

// errorEnvelope is the legacy error shape.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func jsonResponse(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorResponse(w http.ResponseWriter, status int, kind, message string) {
	jsonResponse(w, status, errorEnvelope{Error: kind, Message: message, Status: status})
}

// serveError maps domain error classes onto the legacy status codes. An
// unknown rover is a client error, not a 404.
func (server *Server) serveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case photos.ErrRoverNotFound.Has(err):
		errorResponse(w, http.StatusBadRequest, "bad request", "invalid rover")
	case photos.ErrValidation.Has(err), compare.ErrValidation.Has(err):
		errorResponse(w, http.StatusBadRequest, "bad request", err.Error())
	case scraper.ErrUnknownRover.Has(err), compare.ErrUnsupported.Has(err):
		errorResponse(w, http.StatusBadRequest, "bad request", err.Error())
	case photos.ErrPhotoNotFound.Has(err), photos.ErrCameraNotFound.Has(err):
		errorResponse(w, http.StatusNotFound, "not found", err.Error())
	default:
		server.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		errorResponse(w, http.StatusInternalServerError, "internal error", "internal server error")
	}
}
