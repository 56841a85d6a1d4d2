// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package api

import (
	"net/http"

	"github.com/james-langridge/mars-vista-api-sub001/photos"
)

func (server *Server) compareSol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rover := r.URL.Query().Get("rover")
	if rover == "" {
		server.serveError(w, r, photos.ErrValidation.New("rover is required"))
		return
	}
	sol, err := requiredInt(r, "sol")
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	report, err := server.compares.CompareSol(ctx, rover, sol)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"data": report})
}

func (server *Server) comparePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	nasaID := r.URL.Query().Get("nasa_id")
	if nasaID == "" {
		server.serveError(w, r, photos.ErrValidation.New("nasa_id is required"))
		return
	}

	report, err := server.compares.ComparePhoto(ctx, nasaID)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"data": report})
}

func (server *Server) compareRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rover := r.URL.Query().Get("rover")
	if rover == "" {
		server.serveError(w, r, photos.ErrValidation.New("rover is required"))
		return
	}
	startSol, err := requiredInt(r, "startSol")
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	endSol, err := requiredInt(r, "endSol")
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	report, err := server.compares.CompareRange(ctx, rover, startSol, endSol)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"data": report})
}
