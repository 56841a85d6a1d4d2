// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package pds

import "fmt"

// cameraNames reduces the per-eye instrument ids of the index files to the
// canonical camera short names. Canonical names map to themselves so the
// reduction is idempotent.
var cameraNames = map[string]string{
	"PANCAM_LEFT":        "PANCAM",
	"PANCAM_RIGHT":       "PANCAM",
	"PANCAM":             "PANCAM",
	"NAVCAM_LEFT":        "NAVCAM",
	"NAVCAM_RIGHT":       "NAVCAM",
	"NAVCAM":             "NAVCAM",
	"FRONT_HAZCAM_LEFT":  "FHAZ",
	"FRONT_HAZCAM_RIGHT": "FHAZ",
	"FHAZ":               "FHAZ",
	"REAR_HAZCAM_LEFT":   "RHAZ",
	"REAR_HAZCAM_RIGHT":  "RHAZ",
	"RHAZ":               "RHAZ",
	"MI":                 "MINITES",
	"MINITES":            "MINITES",
	"DESCAM":             "ENTRY",
	"ENTRY":              "ENTRY",
}

// cameraFullNames carries the human-readable names used when a camera row
// has to be created.
var cameraFullNames = map[string]string{
	"PANCAM":  "Panoramic Camera",
	"NAVCAM":  "Navigation Camera",
	"FHAZ":    "Front Hazard Avoidance Camera",
	"RHAZ":    "Rear Hazard Avoidance Camera",
	"MINITES": "Miniature Thermal Emission Spectrometer (Mini-TES)",
	"ENTRY":   "Entry, Descent, and Landing Camera",
}

// MapCamera reduces an index instrument id to the canonical camera short
// name. Unknown instruments pass through unchanged, which leaves them to
// the ingest pipeline's unknown-camera policy.
func MapCamera(instrument string) string {
	if canonical, ok := cameraNames[instrument]; ok {
		return canonical
	}
	return instrument
}

// CameraFullName returns the display name for a canonical short name,
// falling back to the short name itself.
func CameraFullName(shortName string) string {
	if full, ok := cameraFullNames[shortName]; ok {
		return full
	}
	return shortName
}

// BrowseURL composes the public browse image URL for an index row. The
// data path of the form /<volume>/data/sol<N>/edr/ maps to the browse tree
// with the sol zero-padded to four digits and .jpg appended.
func BrowseURL(baseURL, volume string, sol int, fileName string) string {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return fmt.Sprintf("%s/%s/browse/sol%04d/edr/%s.jpg", baseURL, volume, sol, fileName)
}
