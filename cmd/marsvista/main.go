// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// marsvista is the Mars rover imagery aggregator: scrapes the upstream
// NASA feeds and PDS archives into Postgres and serves the query API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub001/api"
	"github.com/james-langridge/mars-vista-api-sub001/compare"
	"github.com/james-langridge/mars-vista-api-sub001/fetch"
	"github.com/james-langridge/mars-vista-api-sub001/jobs"
	"github.com/james-langridge/mars-vista-api-sub001/photodb"
	"github.com/james-langridge/mars-vista-api-sub001/photos"
	"github.com/james-langridge/mars-vista-api-sub001/scheduler"
	"github.com/james-langridge/mars-vista-api-sub001/scraper"
	"github.com/james-langridge/mars-vista-api-sub001/scraper/curiosity"
	"github.com/james-langridge/mars-vista-api-sub001/scraper/pds"
	"github.com/james-langridge/mars-vista-api-sub001/scraper/perseverance"
)

// config aggregates all subsystem configuration. Every flag can also be
// set through a MARSVISTA_* environment variable.
type config struct {
	Debug bool

	Database photodb.Config
	API      api.Config
	Fetch    fetch.Config
	Ingest   scraper.IngestConfig
	Query    photos.Config
	Recorder jobs.RecorderConfig
	Compare  compare.Config
	Schedule scheduler.Config

	Curiosity    curiosity.Config
	Perseverance perseverance.Config
	PDS          pds.Config
}

var runCfg config

func main() {
	root := &cobra.Command{
		Use:   "marsvista",
		Short: "Mars rover imagery metadata aggregator",
	}

	flags := root.PersistentFlags()
	flags.BoolVar(&runCfg.Debug, "debug", false, "enable debug logging")
	flags.StringVar(&runCfg.Database.URL, "database-url", "", "postgres connection string")
	flags.Int32Var(&runCfg.Database.MaxConns, "database-max-conns", 10, "connection pool size")

	flags.StringVar(&runCfg.API.Address, "address", ":8080", "address the api server listens on")
	flags.StringVar(&runCfg.API.AdminToken, "admin-token", "", "bearer token for the admin routes")

	flags.DurationVar(&runCfg.Fetch.RequestTimeout, "fetch-timeout", 30*time.Second, "deadline for one upstream request")
	flags.IntVar(&runCfg.Fetch.MaxRetries, "fetch-retries", 3, "retries after the initial attempt")
	flags.DurationVar(&runCfg.Fetch.Pause, "fetch-pause", time.Second, "politeness pause between requests to the same host")

	flags.IntVar(&runCfg.Ingest.BatchSize, "batch-size", 1000, "photos per insert batch")
	flags.IntVar(&runCfg.Recorder.MaxFailedSols, "job-max-failed-sols", 100, "failed sols kept per rover job detail")
	flags.IntVar(&runCfg.Recorder.MaxAddedPhotos, "job-max-added-photos", 1000, "added-photo summaries kept per rover job detail")
	flags.IntVar(&runCfg.Recorder.HistoryPageSize, "job-history-page-size", 20, "jobs returned by the history endpoint")
	flags.IntVar(&runCfg.Query.DefaultPerPage, "per-page-default", 25, "page size when per_page is not given")
	flags.IntVar(&runCfg.Query.MaxPerPage, "per-page-max", 1000, "largest accepted per_page")

	flags.DurationVar(&runCfg.Schedule.Interval, "schedule-interval", 24*time.Hour, "how often the scheduled scrape runs")
	flags.IntVar(&runCfg.Schedule.LastSols, "schedule-last-sols", 5, "trailing sols to re-scrape per rover")

	flags.StringVar(&runCfg.Curiosity.BaseURL, "curiosity-base-url", "https://mars.nasa.gov/msl-raw-images", "Curiosity raw image feed")
	flags.StringVar(&runCfg.Perseverance.BaseURL, "perseverance-base-url", "https://mars.nasa.gov/rss/api/", "Mars 2020 raw image feed")
	flags.StringVar(&runCfg.Perseverance.SampleType, "perseverance-sample-type", "Full", "sample type to ingest, empty for all")
	flags.StringVar(&runCfg.PDS.BaseURL, "pds-base-url", "https://pds-imaging.jpl.nasa.gov/data/mer", "PDS MER imaging node")

	viper.SetEnvPrefix("MARSVISTA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	cobra.OnInitialize(func() {
		flags.VisitAll(func(flag *pflag.Flag) {
			if !flag.Changed && viper.IsSet(flag.Name) {
				_ = flags.Set(flag.Name, viper.GetString(flag.Name))
			}
		})
	})

	root.AddCommand(
		newAPICmd(),
		newScrapeCmd(),
		newScrapeVolumesCmd(),
		newScheduleCmd(),
		newMigrateCmd(),
		newSeedCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newAPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "serve the query API and scraper control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				server := api.NewServer(rt.log.Named("api"), runCfg.API,
					rt.queries, rt.scrapers, rt.progress, rt.compares,
					rt.db.Jobs(), runCfg.Recorder)
				return server.Run(ctx)
			})
		},
	}
}

func newScrapeCmd() *cobra.Command {
	var sol, startSol, endSol int
	cmd := &cobra.Command{
		Use:   "scrape <rover>",
		Short: "scrape one sol or a sol range of a rover",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				scr, err := rt.scrapers.Lookup(args[0])
				if err != nil {
					return err
				}

				recorder := jobs.NewRecorder(rt.log.Named("jobs"), rt.db.Jobs(), runCfg.Recorder)
				defer commitJob(rt.log, recorder)

				if sol >= 0 {
					started := time.Now()
					result, err := scr.ScrapeSol(ctx, sol)
					recordSol(recorder, scr.Name(), sol, result, started, err)
					if err != nil {
						return err
					}
					return printJSON(result)
				}

				summary, err := scr.BulkScrape(ctx, startSol, endSol)
				recordBulk(recorder, scr.Name(), summary, err)
				if err != nil {
					return err
				}
				return printJSON(summary)
			})
		},
	}
	cmd.Flags().IntVar(&sol, "sol", -1, "single sol to scrape")
	cmd.Flags().IntVar(&startSol, "start-sol", 0, "first sol of the range, 0 resumes after the highest stored sol")
	cmd.Flags().IntVar(&endSol, "end-sol", 0, "last sol of the range, 0 follows the upstream latest")
	return cmd
}

func newScrapeVolumesCmd() *cobra.Command {
	var volume string
	cmd := &cobra.Command{
		Use:   "scrape-volumes <rover>",
		Short: "scrape PDS index volumes of a retired rover",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				scr, err := rt.scrapers.Lookup(args[0])
				if err != nil {
					return err
				}
				archive, ok := scr.(*pds.Scraper)
				if !ok {
					return fmt.Errorf("%s has no volume archive", args[0])
				}

				recorder := jobs.NewRecorder(rt.log.Named("jobs"), rt.db.Jobs(), runCfg.Recorder)
				defer commitJob(rt.log, recorder)

				var summary scraper.Summary
				if volume != "" {
					summary, err = archive.ScrapeVolume(ctx, volume)
				} else {
					summary, err = archive.ScrapeAll(ctx)
				}
				recordBulk(recorder, scr.Name(), summary, err)
				if err != nil {
					return err
				}
				return printJSON(summary)
			})
		},
	}
	cmd.Flags().StringVar(&volume, "volume", "", "single volume to scrape, empty for all")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "periodically re-scrape the trailing sols of the active rovers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				sched := scheduler.New(rt.log.Named("scheduler"),
					rt.db.Rovers(), rt.db.Photos(), rt.scrapers, rt.progress,
					rt.db.Jobs(), runCfg.Recorder, runCfg.Schedule)
				return sched.Run(ctx)
			})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				return rt.db.MigrateToLatest(ctx)
			})
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "load the rover and camera reference rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				return rt.db.Seed(ctx)
			})
		},
	}
}

func printJSON(value interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// withRuntime opens the shared runtime, runs fn under a signal-aware
// context and tears everything down.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	log, err := newLogger(runCfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer rt.Close()

	if err := fn(ctx, rt); err != nil {
		log.Error("command failed", zap.Error(err))
		return err
	}
	return nil
}
