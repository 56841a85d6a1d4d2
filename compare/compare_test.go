// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package compare_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/james-langridge/mars-vista-api-sub001/compare"
	"github.com/james-langridge/mars-vista-api-sub001/photos"
	"github.com/james-langridge/mars-vista-api-sub001/private/teststore"
)

// stubSource serves canned upstream records per sol.
type stubSource struct {
	sols map[int][]compare.UpstreamPhoto
	err  error
}

func (source stubSource) SolPhotos(ctx context.Context, sol int) ([]compare.UpstreamPhoto, error) {
	if source.err != nil {
		return nil, source.err
	}
	return source.sols[sol], nil
}

type fixture struct {
	db      *teststore.DB
	service *compare.Service
	rover   photos.Rover
	camera  photos.Camera
}

func newFixture(t *testing.T, config compare.Config, source compare.Source) *fixture {
	db := teststore.New()
	rover := db.AddRover(photos.Rover{Name: "Curiosity"})
	camera := db.AddCamera(photos.Camera{RoverID: rover.ID, ShortName: "FHAZ"})

	service := compare.NewService(zaptest.NewLogger(t), db.Rovers(), db.Photos(), config)
	service.RegisterSource("curiosity", source)
	return &fixture{db: db, service: service, rover: rover, camera: camera}
}

func (f *fixture) storePhoto(ctx context.Context, t *testing.T, externalID string, sol int, imgSrc string) {
	_, err := f.db.Photos().AddPhotos(ctx, []photos.Photo{{
		ExternalID: externalID,
		RoverID:    f.rover.ID,
		CameraID:   f.camera.ID,
		Sol:        sol,
		ImageFull:  imgSrc,
	}})
	require.NoError(t, err)
}

func upstream(ids ...string) []compare.UpstreamPhoto {
	result := make([]compare.UpstreamPhoto, 0, len(ids))
	for _, id := range ids {
		result = append(result, compare.UpstreamPhoto{ExternalID: id, Sol: 100})
	}
	return result
}

func TestCompareSolStatuses(t *testing.T) {
	ctx := context.Background()

	t.Run("match", func(t *testing.T) {
		f := newFixture(t, compare.Config{}, stubSource{sols: map[int][]compare.UpstreamPhoto{
			100: upstream("A", "B"),
		}})
		f.storePhoto(ctx, t, "A", 100, "")
		f.storePhoto(ctx, t, "B", 100, "")

		report, err := f.service.CompareSol(ctx, "curiosity", 100)
		require.NoError(t, err)
		require.Equal(t, compare.StatusMatch, report.Status)
		require.Equal(t, 2, report.NASACount)
		require.Equal(t, 2, report.OurCount)
		require.Empty(t, report.Missing)
		require.Empty(t, report.Extra)
		require.Equal(t, float64(100), report.MatchPercent)
	})

	t.Run("missing", func(t *testing.T) {
		f := newFixture(t, compare.Config{}, stubSource{sols: map[int][]compare.UpstreamPhoto{
			100: upstream("A", "B", "C", "D"),
		}})
		f.storePhoto(ctx, t, "A", 100, "")

		report, err := f.service.CompareSol(ctx, "curiosity", 100)
		require.NoError(t, err)
		require.Equal(t, compare.StatusMissing, report.Status)
		require.Equal(t, []string{"B", "C", "D"}, report.Missing)
		require.InDelta(t, 25.0, report.MatchPercent, 0.001)
	})

	t.Run("extra", func(t *testing.T) {
		f := newFixture(t, compare.Config{}, stubSource{sols: map[int][]compare.UpstreamPhoto{
			100: upstream("A"),
		}})
		f.storePhoto(ctx, t, "A", 100, "")
		f.storePhoto(ctx, t, "LOCAL-ONLY", 100, "")

		report, err := f.service.CompareSol(ctx, "curiosity", 100)
		require.NoError(t, err)
		require.Equal(t, compare.StatusExtra, report.Status)
		require.Equal(t, []string{"LOCAL-ONLY"}, report.Extra)
		require.InDelta(t, 50.0, report.MatchPercent, 0.001)
	})

	t.Run("divergent", func(t *testing.T) {
		f := newFixture(t, compare.Config{}, stubSource{sols: map[int][]compare.UpstreamPhoto{
			100: upstream("A", "B"),
		}})
		f.storePhoto(ctx, t, "A", 100, "")
		f.storePhoto(ctx, t, "LOCAL-ONLY", 100, "")

		report, err := f.service.CompareSol(ctx, "curiosity", 100)
		require.NoError(t, err)
		require.Equal(t, compare.StatusDivergent, report.Status)
	})

	t.Run("empty both sides matches", func(t *testing.T) {
		f := newFixture(t, compare.Config{}, stubSource{})

		report, err := f.service.CompareSol(ctx, "curiosity", 9999)
		require.NoError(t, err)
		require.Equal(t, compare.StatusMatch, report.Status)
		require.Equal(t, float64(100), report.MatchPercent)
		// JSON renders empty arrays, not null
		require.NotNil(t, report.Missing)
		require.NotNil(t, report.Extra)
	})
}

func TestCompareSolTruncation(t *testing.T) {
	ctx := context.Background()

	var ids []string
	for i := 0; i < 30; i++ {
		ids = append(ids, fmt.Sprintf("ID-%02d", i))
	}
	f := newFixture(t, compare.Config{ListCap: 5}, stubSource{sols: map[int][]compare.UpstreamPhoto{
		100: upstream(ids...),
	}})

	report, err := f.service.CompareSol(ctx, "curiosity", 100)
	require.NoError(t, err)
	require.True(t, report.Truncated)
	require.Len(t, report.Missing, 5)
	require.Equal(t, "ID-00", report.Missing[0])
	require.Equal(t, 30, report.NASACount)
}

func TestCompareSolUnknownRover(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compare.Config{}, stubSource{})

	_, err := f.service.CompareSol(ctx, "voyager", 1)
	require.Error(t, err)
	require.True(t, photos.ErrRoverNotFound.Has(err))
}

func TestCompareSolUnsupportedRover(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compare.Config{}, stubSource{})
	f.db.AddRover(photos.Rover{Name: "Spirit"})

	_, err := f.service.CompareSol(ctx, "spirit", 1)
	require.Error(t, err)
	require.True(t, compare.ErrUnsupported.Has(err))
}

func TestComparePhoto(t *testing.T) {
	ctx := context.Background()

	t.Run("not stored", func(t *testing.T) {
		f := newFixture(t, compare.Config{}, stubSource{})

		report, err := f.service.ComparePhoto(ctx, "NOPE")
		require.NoError(t, err)
		require.False(t, report.InOurs)
		require.False(t, report.InNASA)
	})

	t.Run("stored and matching", func(t *testing.T) {
		f := newFixture(t, compare.Config{}, stubSource{sols: map[int][]compare.UpstreamPhoto{
			100: {{ExternalID: "A", Sol: 100, Camera: "fhaz", ImgSrc: "https://img/a.jpg"}},
		}})
		f.storePhoto(ctx, t, "A", 100, "https://img/a.jpg")

		report, err := f.service.ComparePhoto(ctx, "A")
		require.NoError(t, err)
		require.True(t, report.InOurs)
		require.True(t, report.InNASA)
		require.Equal(t, "Curiosity", report.Rover)
		require.NotNil(t, report.Sol)
		require.Equal(t, 100, *report.Sol)
		// camera comparison is case-insensitive
		require.Empty(t, report.Differences)
	})

	t.Run("stored with divergent fields", func(t *testing.T) {
		f := newFixture(t, compare.Config{}, stubSource{sols: map[int][]compare.UpstreamPhoto{
			100: {{ExternalID: "A", Sol: 101, Camera: "NAVCAM", ImgSrc: "https://img/new.jpg"}},
		}})
		f.storePhoto(ctx, t, "A", 100, "https://img/old.jpg")

		report, err := f.service.ComparePhoto(ctx, "A")
		require.NoError(t, err)
		require.True(t, report.InNASA)
		require.Len(t, report.Differences, 3)
		require.Equal(t, 100, report.Differences["sol"].Ours)
		require.Equal(t, 101, report.Differences["sol"].NASA)
		require.Equal(t, "https://img/old.jpg", report.Differences["img_src"].Ours)
	})

	t.Run("stored but gone upstream", func(t *testing.T) {
		f := newFixture(t, compare.Config{}, stubSource{})
		f.storePhoto(ctx, t, "A", 100, "")

		report, err := f.service.ComparePhoto(ctx, "A")
		require.NoError(t, err)
		require.True(t, report.InOurs)
		require.False(t, report.InNASA)
	})
}

func TestCompareRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compare.Config{MaxRangeSols: 3}, stubSource{sols: map[int][]compare.UpstreamPhoto{
		100: upstream("A"),
	}})
	f.storePhoto(ctx, t, "A", 100, "")

	report, err := f.service.CompareRange(ctx, "curiosity", 99, 101)
	require.NoError(t, err)
	require.Equal(t, "Curiosity", report.Rover)
	require.Len(t, report.Sols, 3)
	require.Equal(t, compare.StatusMatch, report.Sols[1].Status)

	// range wider than the cap is rejected
	_, err = f.service.CompareRange(ctx, "curiosity", 1, 10)
	require.Error(t, err)
	require.True(t, compare.ErrValidation.Has(err))

	_, err = f.service.CompareRange(ctx, "curiosity", 10, 5)
	require.Error(t, err)
	require.True(t, compare.ErrValidation.Has(err))
}
