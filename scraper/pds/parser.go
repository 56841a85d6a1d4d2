// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// Package pds parses Planetary Data System EDR index archives and scrapes
// the Opportunity and Spirit volumes through them.
package pds

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	// Error is the default error class for the pds package.
	Error = errs.Class("pds")
)

// Index files are tab-delimited with quoted, space-padded fields. The
// standard camera volumes carry 55-59 fields per row; the DESCENT camera
// volume omits PATH_NAME and FILE_NAME and carries 52.
const (
	minStandardFields = 55
	maxStandardFields = 59
	descentFields     = 52

	descentInstrument = "DESCAM"
)

// Column positions in the standard variant. For DESCENT rows every
// position past the missing PATH_NAME/FILE_NAME pair shifts by two.
const (
	fieldVolumeID     = 0
	fieldInstrumentID = 3
	fieldProductID    = 4
	fieldPathName     = 5
	fieldFileName     = 6
	fieldSol          = 8
	fieldStartTime    = 9

	fieldFilterName          = 25
	fieldLines               = 28
	fieldLineSamples         = 29
	fieldInstrumentAzimuth   = 35
	fieldInstrumentElevation = 36
	fieldSolarAzimuth        = 44
	fieldSolarElevation      = 45
)

// Row is one parsed index row.
type Row struct {
	VolumeID   string
	ProductID  string
	Instrument string
	PathName   string
	FileName   string

	Sol       int
	StartTime time.Time

	FilterName          string
	Lines               *int
	LineSamples         *int
	InstrumentAzimuth   *float64
	InstrumentElevation *float64
	SolarAzimuth        *float64
	SolarElevation      *float64

	FieldCount int
}

// Parser is a single-pass streaming parser over an index file. Memory use
// is bounded by one row regardless of input size. Malformed rows are
// logged, counted and skipped.
type Parser struct {
	log     *zap.Logger
	scanner *bufio.Scanner

	row     Row
	err     error
	line    int
	skipped int
}

// maxRowSize bounds a single index row; real rows are well under 4 KiB.
const maxRowSize = 1 << 20

// NewParser creates a parser over the byte stream.
func NewParser(log *zap.Logger, input io.Reader) *Parser {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 64*1024), maxRowSize)
	return &Parser{log: log, scanner: scanner}
}

// Next advances to the next well-formed row. It returns false at the end
// of the stream or on a read error.
func (parser *Parser) Next() bool {
	for parser.scanner.Scan() {
		parser.line++
		line := strings.TrimRight(parser.scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		row, err := parseRow(line)
		if err != nil {
			parser.skipped++
			parser.log.Warn("index row skipped",
				zap.Int("line", parser.line),
				zap.Error(err))
			continue
		}

		parser.row = row
		return true
	}
	parser.err = parser.scanner.Err()
	return false
}

// Row returns the row Next advanced to.
func (parser *Parser) Row() Row { return parser.row }

// Err returns the terminal read error, nil at a clean end of stream.
func (parser *Parser) Err() error {
	if parser.err != nil {
		return Error.Wrap(parser.err)
	}
	return nil
}

// Skipped returns how many malformed rows were dropped.
func (parser *Parser) Skipped() int { return parser.skipped }

func parseRow(line string) (Row, error) {
	fields := strings.Split(line, "\t")
	for i, field := range fields {
		fields[i] = strings.TrimSpace(strings.Trim(strings.TrimSpace(field), `"`))
	}

	row := Row{FieldCount: len(fields)}

	descent := false
	switch {
	case len(fields) >= minStandardFields && len(fields) <= maxStandardFields:
	case len(fields) == descentFields && fields[fieldInstrumentID] == descentInstrument:
		descent = true
	default:
		return Row{}, Error.New("unexpected field count %d", len(fields))
	}

	at := func(index int) string {
		if descent && index > fieldFileName {
			index -= 2
		}
		if index < 0 || index >= len(fields) {
			return ""
		}
		return fields[index]
	}

	row.VolumeID = at(fieldVolumeID)
	row.Instrument = at(fieldInstrumentID)
	row.ProductID = at(fieldProductID)
	if !descent {
		row.PathName = at(fieldPathName)
		row.FileName = at(fieldFileName)
	}

	if row.ProductID == "" {
		return Row{}, Error.New("missing product id")
	}

	sol, err := strconv.Atoi(at(fieldSol))
	if err != nil || sol < 0 {
		return Row{}, Error.New("bad sol %q", at(fieldSol))
	}
	row.Sol = sol

	row.StartTime = parseTime(at(fieldStartTime))
	row.FilterName = at(fieldFilterName)
	row.Lines = parseInt(at(fieldLines))
	row.LineSamples = parseInt(at(fieldLineSamples))
	row.InstrumentAzimuth = parseFloat(at(fieldInstrumentAzimuth))
	row.InstrumentElevation = parseFloat(at(fieldInstrumentElevation))
	row.SolarAzimuth = parseFloat(at(fieldSolarAzimuth))
	row.SolarElevation = parseFloat(at(fieldSolarElevation))

	return row, nil
}

var timeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
}

func parseTime(value string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseInt(value string) *int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	return &n
}

func parseFloat(value string) *float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}
