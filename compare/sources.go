// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package compare

import (
	"context"

	"github.com/james-langridge/mars-vista-api-sub001/scraper/curiosity"
	"github.com/james-langridge/mars-vista-api-sub001/scraper/perseverance"
)

// CuriositySource adapts the Curiosity feed client to the compare Source.
type CuriositySource struct {
	Client *curiosity.Client
}

// SolPhotos implements Source.
func (source CuriositySource) SolPhotos(ctx context.Context, sol int) ([]UpstreamPhoto, error) {
	images, err := source.Client.FetchSol(ctx, sol)
	if err != nil {
		return nil, err
	}
	result := make([]UpstreamPhoto, 0, len(images))
	for _, image := range images {
		result = append(result, UpstreamPhoto{
			ExternalID: image.ID,
			Sol:        image.Sol,
			Camera:     image.Camera,
			ImgSrc:     image.ImgSrc,
		})
	}
	return result, nil
}

// PerseveranceSource adapts the Mars 2020 feed client to the compare
// Source, applying the scraper's sample-type filter so counts line up
// with what ingestion would store.
type PerseveranceSource struct {
	Client     *perseverance.Client
	SampleType string
}

// SolPhotos implements Source.
func (source PerseveranceSource) SolPhotos(ctx context.Context, sol int) ([]UpstreamPhoto, error) {
	images, err := source.Client.FetchSol(ctx, sol)
	if err != nil {
		return nil, err
	}
	result := make([]UpstreamPhoto, 0, len(images))
	for _, image := range images {
		if source.SampleType != "" && image.SampleType != source.SampleType {
			continue
		}
		result = append(result, UpstreamPhoto{
			ExternalID: image.ID,
			Sol:        image.Sol,
			Camera:     image.Camera,
			ImgSrc:     image.FullRes,
		})
	}
	return result, nil
}
