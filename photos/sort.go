// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package photos

// Sort is a validated sort order for photo queries.
type Sort string

// Allowed sort orders. SortCameraThenID is the legacy ordering of the
// rover-scoped endpoints and is not accepted from the outside.
const (
	SortID            Sort = "id"
	SortIDDesc        Sort = "-id"
	SortSol           Sort = "sol"
	SortSolDesc       Sort = "-sol"
	SortEarthDate     Sort = "earth_date"
	SortEarthDateDesc Sort = "-earth_date"

	SortCameraThenID Sort = "camera,id"
)

// ParseSort validates a user-supplied sort parameter against the
// allow-list. The empty string selects the default id ordering.
func ParseSort(value string) (Sort, error) {
	switch Sort(value) {
	case "":
		return SortID, nil
	case SortID, SortIDDesc, SortSol, SortSolDesc, SortEarthDate, SortEarthDateDesc:
		return Sort(value), nil
	default:
		return "", ErrValidation.New("unsupported sort %q", value)
	}
}
