// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// Package api exposes the legacy-compatible HTTP surface: the public
// photo query API under /api/v1 and the scraper/compare control plane.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/james-langridge/mars-vista-api-sub001/compare"
	"github.com/james-langridge/mars-vista-api-sub001/jobs"
	"github.com/james-langridge/mars-vista-api-sub001/photos"
	"github.com/james-langridge/mars-vista-api-sub001/scraper"
)

var (
	mon = monkit.Package()

	// Error is the default error class for the api package.
	Error = errs.Class("api")
)

// Config contains configuration for the HTTP server.
type Config struct {
	Address         string        `help:"address the server listens on" default:":8080"`
	AdminToken      string        `help:"bearer token required by the admin routes; empty disables the check"`
	ShutdownTimeout time.Duration `help:"grace period for in-flight requests on shutdown" default:"10s"`
	ReadTimeout     time.Duration `help:"http server read timeout" default:"30s"`
	WriteTimeout    time.Duration `help:"http server write timeout" default:"5m"`
}

// Server implements the HTTP API.
type Server struct {
	log    *zap.Logger
	config Config

	service  *photos.Service
	scrapers *scraper.Registry
	progress *scraper.Progress
	compares *compare.Service
	jobsDB   jobs.DB
	recorder jobs.RecorderConfig

	router *mux.Router
}

// NewServer creates a server and wires all routes.
func NewServer(log *zap.Logger, config Config,
	service *photos.Service, scrapers *scraper.Registry, progress *scraper.Progress,
	compares *compare.Service, jobsDB jobs.DB, recorder jobs.RecorderConfig) *Server {

	if recorder.HistoryPageSize <= 0 {
		recorder.HistoryPageSize = 20
	}

	server := &Server{
		log:      log,
		config:   config,
		service:  service,
		scrapers: scrapers,
		progress: progress,
		compares: compares,
		jobsDB:   jobsDB,
		recorder: recorder,
	}

	router := mux.NewRouter()
	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/rovers", server.listRovers).Methods("GET")
	v1.HandleFunc("/rovers/{rover}", server.getRover).Methods("GET")
	v1.HandleFunc("/rovers/{rover}/photos", server.roverPhotos).Methods("GET")
	v1.HandleFunc("/rovers/{rover}/latest_photos", server.latestPhotos).Methods("GET")
	v1.HandleFunc("/photos/search", server.searchPhotos).Methods("GET")
	v1.HandleFunc("/photos/{id:[0-9]+}", server.getPhoto).Methods("GET")
	v1.HandleFunc("/manifests/{rover}", server.manifest).Methods("GET")

	admin := v1.NewRoute().Subrouter()
	admin.Use(server.requireAdmin)
	admin.HandleFunc("/scraper/jobs", server.recentJobs).Methods("GET")
	admin.HandleFunc("/scraper/{rover}", server.scrapeSol).Methods("POST")
	admin.HandleFunc("/scraper/{rover}/bulk", server.scrapeBulk).Methods("POST")
	admin.HandleFunc("/scraper/{rover}/progress", server.scrapeProgress).Methods("GET")
	admin.HandleFunc("/scraper/{rover}/volume/{volume}", server.scrapeVolume).Methods("POST")
	admin.HandleFunc("/scraper/{rover}/all", server.scrapeAllVolumes).Methods("POST")
	admin.HandleFunc("/compare/sol", server.compareSol).Methods("GET")
	admin.HandleFunc("/compare/photo", server.comparePhoto).Methods("GET")
	admin.HandleFunc("/compare/range", server.compareRange).Methods("GET")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errorResponse(w, http.StatusNotFound, "not found", "no such resource")
	})

	server.router = router
	return server
}

// Handler returns the root handler, for tests.
func (server *Server) Handler() http.Handler { return server.router }

// Run serves the API until the context is cancelled, then shuts down
// gracefully.
func (server *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	listener, err := net.Listen("tcp", server.config.Address)
	if err != nil {
		return Error.Wrap(err)
	}

	httpServer := &http.Server{
		Handler:      server.router,
		ReadTimeout:  server.config.ReadTimeout,
		WriteTimeout: server.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	server.log.Info("http server starting", zap.String("address", listener.Addr().String()))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
		defer cancel()
		return Error.Wrap(httpServer.Shutdown(shutdownCtx))
	})
	group.Go(func() error {
		err := httpServer.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// requireAdmin guards the control plane with a static bearer token. An
// empty configured token leaves the routes open, for local use.
func (server *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if server.config.AdminToken != "" {
			token := r.Header.Get("Authorization")
			if subtle.ConstantTimeCompare([]byte(token), []byte("Bearer "+server.config.AdminToken)) != 1 {
				errorResponse(w, http.StatusUnauthorized, "unauthorized", "missing or invalid admin token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
