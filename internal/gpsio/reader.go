// Package gpsio reads GPS sample tables at the ingestion boundary and writes
// the combined per-sample results back out. All field validation happens
// here; the hotspot core assumes a validated batch.
package gpsio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/banshee-data/congestion.report/internal/hotspot"
	"github.com/banshee-data/congestion.report/internal/units"
)

// DefaultMaxRows caps the number of data rows accepted in one batch.
const DefaultMaxRows = 500000

// MaxSpeedKPH is the highest speed accepted after unit conversion.
const MaxSpeedKPH = 1000.0

var (
	latitudeNames  = []string{"latitud", "latitude", "lat"}
	longitudeNames = []string{"longitud", "longitude", "lon", "lng"}
	speedKeywords  = []string{"velocidad", "speed"}
)

// Columns holds the resolved positions of the required columns.
type Columns struct {
	Latitude  int
	Longitude int
	Speed     int
}

// Table is a parsed input file: the cleaned header, the raw rows kept for
// round-trip export, and the validated samples in the same order.
type Table struct {
	Header  []string
	Rows    [][]string
	Columns Columns
	Samples []hotspot.Sample
}

// ReadOptions controls parsing.
type ReadOptions struct {
	SpeedUnit string // unit of the speed column, converted to km/h
	MaxRows   int    // 0 selects DefaultMaxRows
}

// CleanHeader trims each column name and replaces embedded newlines with
// spaces.
func CleanHeader(header []string) []string {
	cleaned := make([]string, len(header))
	for i, h := range header {
		h = strings.ReplaceAll(h, "\r\n", " ")
		h = strings.ReplaceAll(h, "\n", " ")
		cleaned[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return cleaned
}

// DiscoverColumns locates latitude and longitude by exact (case-insensitive)
// name and speed as the first column whose name contains "velocidad" or
// "speed".
func DiscoverColumns(header []string) (Columns, error) {
	cols := Columns{Latitude: -1, Longitude: -1, Speed: -1}
	for i, h := range header {
		name := strings.ToLower(h)
		if cols.Latitude < 0 && containsName(latitudeNames, name) {
			cols.Latitude = i
		}
		if cols.Longitude < 0 && containsName(longitudeNames, name) {
			cols.Longitude = i
		}
		if cols.Speed < 0 {
			for _, kw := range speedKeywords {
				if strings.Contains(name, kw) {
					cols.Speed = i
					break
				}
			}
		}
	}

	if cols.Speed < 0 {
		return cols, &hotspot.ValidationError{Field: "speed", Reason: "no column containing \"velocidad\" or \"speed\""}
	}
	if cols.Latitude < 0 || cols.Longitude < 0 {
		return cols, &hotspot.ValidationError{Field: "coordinates", Reason: "file must contain latitude and longitude columns (Latitud/Longitud)"}
	}
	return cols, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Input formats accepted by Read.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// XLSXContentType is the media type of an Excel workbook upload.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DetectFormat picks the input format from a file name or a content type,
// defaulting to CSV.
func DetectFormat(name, contentType string) string {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return FormatXLSX
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == XLSXContentType {
		return FormatXLSX
	}
	return FormatCSV
}

// Read parses r as the given format.
func Read(r io.Reader, format string, opts ReadOptions) (*Table, error) {
	switch format {
	case FormatXLSX:
		return ReadXLSX(r, opts)
	case FormatCSV, "":
		return ReadCSV(r, opts)
	default:
		return nil, &hotspot.ConfigurationError{Field: "format", Value: format, Reason: "must be csv or xlsx"}
	}
}

// ReadCSV parses and validates a CSV GPS table. It fails on the first
// invalid row; a file with a header but no rows yields an
// InsufficientDataError.
func ReadCSV(r io.Reader, opts ReadOptions) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return buildTable(reader.Read, opts)
}

// ReadXLSX parses and validates the first worksheet of an Excel workbook
// with the same rules as ReadCSV.
func ReadXLSX(r io.Reader, opts ReadOptions) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &hotspot.ValidationError{Field: "file", Reason: fmt.Sprintf("not a readable xlsx workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &hotspot.InsufficientDataError{Stage: "read", Got: 0, Need: 1}
	}
	// Raw values keep numbers at full precision instead of their display format.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	next := 0
	return buildTable(func() ([]string, error) {
		if next >= len(rows) {
			return nil, io.EOF
		}
		next++
		return rows[next-1], nil
	}, opts)
}

// buildTable consumes records from next until io.EOF, treating the first
// record as the header.
func buildTable(next func() ([]string, error), opts ReadOptions) (*Table, error) {
	unit := opts.SpeedUnit
	if unit == "" {
		unit = units.KPH
	}
	if !units.IsValid(unit) {
		return nil, &hotspot.ConfigurationError{Field: "speed_unit", Value: unit, Reason: "must be one of " + units.GetValidUnitsString()}
	}
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	header, err := next()
	if errors.Is(err, io.EOF) {
		return nil, &hotspot.InsufficientDataError{Stage: "read", Got: 0, Need: 1}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	table := &Table{Header: CleanHeader(header)}
	if table.Columns, err = DiscoverColumns(table.Header); err != nil {
		return nil, err
	}

	for row := 1; ; row++ {
		record, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}
		if row > maxRows {
			return nil, &hotspot.ValidationError{Row: row, Field: "rows", Reason: fmt.Sprintf("exceeds limit of %d rows", maxRows)}
		}
		if isBlank(record) {
			row--
			continue
		}

		sample, err := parseSample(table, record, row, unit)
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, record)
		table.Samples = append(table.Samples, sample)
	}

	if len(table.Samples) == 0 {
		return nil, &hotspot.InsufficientDataError{Stage: "read", Got: 0, Need: 1}
	}
	return table, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseSample(t *Table, record []string, row int, unit string) (hotspot.Sample, error) {
	lat, err := parseField(t, record, row, t.Columns.Latitude)
	if err != nil {
		return hotspot.Sample{}, err
	}
	lon, err := parseField(t, record, row, t.Columns.Longitude)
	if err != nil {
		return hotspot.Sample{}, err
	}
	speed, err := parseField(t, record, row, t.Columns.Speed)
	if err != nil {
		return hotspot.Sample{}, err
	}

	s := hotspot.Sample{Row: row, Latitude: lat, Longitude: lon, Speed: units.ToKPH(speed, unit)}
	if err := ValidateSample(s); err != nil {
		return hotspot.Sample{}, err
	}
	return s, nil
}

func parseField(t *Table, record []string, row, col int) (float64, error) {
	name := t.Header[col]
	if col >= len(record) || strings.TrimSpace(record[col]) == "" {
		return 0, &hotspot.ValidationError{Row: row, Field: name, Reason: "missing value"}
	}
	raw := strings.TrimSpace(record[col])
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &hotspot.ValidationError{Row: row, Field: name, Value: raw, Reason: "not a finite number"}
	}
	return v, nil
}

// ValidateSample checks coordinate ranges and that speed lies within
// [0, MaxSpeedKPH].
func ValidateSample(s hotspot.Sample) error {
	if s.Latitude < -90 || s.Latitude > 90 {
		return &hotspot.ValidationError{Row: s.Row, Field: "latitude", Value: strconv.FormatFloat(s.Latitude, 'f', -1, 64), Reason: "must be within [-90, 90]"}
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return &hotspot.ValidationError{Row: s.Row, Field: "longitude", Value: strconv.FormatFloat(s.Longitude, 'f', -1, 64), Reason: "must be within [-180, 180]"}
	}
	if s.Speed < 0 {
		return &hotspot.ValidationError{Row: s.Row, Field: "speed", Value: strconv.FormatFloat(s.Speed, 'f', -1, 64), Reason: "must be non-negative"}
	}
	if math.IsNaN(s.Speed) || s.Speed > MaxSpeedKPH {
		return &hotspot.ValidationError{Row: s.Row, Field: "speed", Value: strconv.FormatFloat(s.Speed, 'g', -1, 64), Reason: fmt.Sprintf("must not exceed %g km/h", MaxSpeedKPH)}
	}
	return nil
}
