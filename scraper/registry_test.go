// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package scraper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/james-langridge/mars-vista-api-sub001/scraper"
)

func mustDate(value string) time.Time {
	parsed, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		panic(err)
	}
	return parsed
}

type stubScraper struct {
	name string
}

func (s stubScraper) Name() string { return s.name }

func (s stubScraper) ScrapeSol(ctx context.Context, sol int) (scraper.SolResult, error) {
	return scraper.SolResult{Sol: sol, Success: true}, nil
}

func (s stubScraper) BulkScrape(ctx context.Context, startSol, endSol int) (scraper.Summary, error) {
	return scraper.Summary{StartSol: startSol, EndSol: endSol}, nil
}

func TestRegistry(t *testing.T) {
	registry := scraper.NewRegistry()
	registry.Register(stubScraper{name: "curiosity"})
	registry.Register(stubScraper{name: "spirit"})

	found, err := registry.Lookup("Curiosity")
	require.NoError(t, err)
	require.Equal(t, "curiosity", found.Name())

	_, err = registry.Lookup("voyager")
	require.Error(t, err)
	require.True(t, scraper.ErrUnknownRover.Has(err))

	require.Equal(t, []string{"curiosity", "spirit"}, registry.Names())

	// re-registering replaces
	registry.Register(stubScraper{name: "CURIOSITY"})
	require.Equal(t, []string{"curiosity", "spirit"}, registry.Names())
}
