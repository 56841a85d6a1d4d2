// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package scraper_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/james-langridge/mars-vista-api-sub001/photos"
	"github.com/james-langridge/mars-vista-api-sub001/private/teststore"
	"github.com/james-langridge/mars-vista-api-sub001/scraper"
)

func TestRunBulkAscendingWithFailureIsolation(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	db := teststore.New()
	rover := db.AddRover(photos.Rover{Name: "Curiosity"})
	db.AddCamera(photos.Camera{RoverID: rover.ID, ShortName: "FHAZ"})
	ing := scraper.NewIngester(log, db.Photos(), db.Cameras(), rover, scraper.IngestConfig{})

	var visited []int
	summary, err := scraper.RunBulk(ctx, log, ing, 1, 4, func(ctx context.Context, sol int, ing *scraper.Ingester) error {
		visited = append(visited, sol)
		if sol == 2 {
			return errors.New("upstream down")
		}
		return ing.Add(ctx, scraper.Candidate{
			ExternalID:      fmt.Sprintf("ID-%d", sol),
			CameraShortName: "FHAZ",
			Sol:             sol,
		})
	})
	require.NoError(t, err)

	require.Equal(t, []int{1, 2, 3, 4}, visited)
	require.Equal(t, 4, summary.SolsAttempted)
	require.Equal(t, 3, summary.SolsSucceeded)
	require.Equal(t, []int{2}, summary.FailedSols)
	require.Equal(t, 3, summary.Inserted)
	require.False(t, summary.Cancelled)
}

func TestRunBulkCancellation(t *testing.T) {
	log := zaptest.NewLogger(t)

	db := teststore.New()
	rover := db.AddRover(photos.Rover{Name: "Curiosity"})
	db.AddCamera(photos.Camera{RoverID: rover.ID, ShortName: "FHAZ"})
	ing := scraper.NewIngester(log, db.Photos(), db.Cameras(), rover, scraper.IngestConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	summary, err := scraper.RunBulk(ctx, log, ing, 1, 10, func(ctx context.Context, sol int, ing *scraper.Ingester) error {
		if err := ing.Add(ctx, scraper.Candidate{
			ExternalID:      fmt.Sprintf("ID-%d", sol),
			CameraShortName: "FHAZ",
			Sol:             sol,
		}); err != nil {
			return err
		}
		if sol == 3 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)

	require.True(t, summary.Cancelled)
	require.Equal(t, 4, summary.CancelledAtSol)
	require.Equal(t, 3, summary.SolsAttempted)

	// the in-flight work was still committed
	known, dbErr := db.Photos().AllExternalIDs(context.Background(), rover.ID)
	require.NoError(t, dbErr)
	require.Len(t, known, 3)
}
