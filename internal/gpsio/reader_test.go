package gpsio

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/congestion.report/internal/hotspot"
	"github.com/banshee-data/congestion.report/internal/testutil"
	"github.com/banshee-data/congestion.report/internal/units"
)

func TestReadCSV_Fixture(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(testutil.GPSCSV(testutil.CongestedPoints())), ReadOptions{})
	require.NoError(t, err)

	assert.Equal(t, Columns{Latitude: 1, Longitude: 2, Speed: 3}, table.Columns)
	require.Len(t, table.Samples, 12)
	require.Len(t, table.Rows, 12)
	assert.Equal(t, hotspot.Sample{Row: 1, Latitude: 10, Longitude: -75, Speed: 2}, table.Samples[0])
	assert.Equal(t, "BUS-12", table.Rows[11][0])
}

func TestReadCSV_HeaderCleanupAndDiscovery(t *testing.T) {
	input := "\"  Latitud \",\"Longitud\n\",\"Velocidad\nGPS\"\n4.6,-74.1,12\n"

	table, err := ReadCSV(strings.NewReader(input), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Latitud", "Longitud", "Velocidad GPS"}, table.Header)
	assert.Equal(t, 12.0, table.Samples[0].Speed)
}

func TestReadCSV_SpeedUnitConversion(t *testing.T) {
	input := "latitude,longitude,speed_mps\n4.6,-74.1,10\n"

	table, err := ReadCSV(strings.NewReader(input), ReadOptions{SpeedUnit: units.MPS})
	require.NoError(t, err)
	assert.InDelta(t, 36.0, table.Samples[0].Speed, 1e-9)
}

func TestReadCSV_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		row   int
		field string
	}{
		{"no speed column", "Latitud,Longitud,Placa\n1,2,x\n", 0, "speed"},
		{"no coordinates", "Lat2,Longitud,Speed\n1,2,3\n", 0, "coordinates"},
		{"latitude out of range", "Latitud,Longitud,Speed\n1,2,3\n91,2,3\n", 2, "latitude"},
		{"longitude out of range", "Latitud,Longitud,Speed\n1,-180.5,3\n", 1, "longitude"},
		{"negative speed", "Latitud,Longitud,Speed\n1,2,-0.1\n", 1, "speed"},
		{"missing speed", "Latitud,Longitud,Speed\n1,2,\n", 1, "Speed"},
		{"short row", "Latitud,Longitud,Speed\n1,2\n", 1, "Speed"},
		{"not a number", "Latitud,Longitud,Speed\nabc,2,3\n", 1, "Latitud"},
		{"nan", "Latitud,Longitud,Speed\n1,2,NaN\n", 1, "Speed"},
		{"implausible speed", "Latitud,Longitud,Velocidad\n1,1,0\n1,1,1e200\n", 2, "speed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input), ReadOptions{})
			var vErr *hotspot.ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.row, vErr.Row)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestReadCSV_SpeedOverflowAfterConversion(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Latitud,Longitud,Speed\n1,2,1.7e308\n"), ReadOptions{SpeedUnit: units.MPH})
	var vErr *hotspot.ValidationError
	require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
	assert.Equal(t, "speed", vErr.Field)
	assert.Equal(t, "+Inf", vErr.Value)
}

func TestReadCSV_Empty(t *testing.T) {
	for name, input := range map[string]string{
		"no content":  "",
		"header only": "Latitud,Longitud,Speed\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(input), ReadOptions{})
			var insufficient *hotspot.InsufficientDataError
			assert.True(t, errors.As(err, &insufficient), "expected InsufficientDataError, got %v", err)
		})
	}
}

func TestReadCSV_MaxRows(t *testing.T) {
	input := "Latitud,Longitud,Speed\n1,2,3\n1,2,3\n1,2,3\n"
	_, err := ReadCSV(strings.NewReader(input), ReadOptions{MaxRows: 2})
	var vErr *hotspot.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "rows", vErr.Field)
}

func TestReadCSV_InvalidUnit(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Latitud,Longitud,Speed\n1,2,3\n"), ReadOptions{SpeedUnit: "knots"})
	var cfgErr *hotspot.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestDiscoverColumns_FirstSpeedMatchWins(t *testing.T) {
	cols, err := DiscoverColumns([]string{"LAT", "LNG", "Max Speed", "Velocidad media"})
	require.NoError(t, err)
	assert.Equal(t, Columns{Latitude: 0, Longitude: 1, Speed: 2}, cols)
}

func TestReadXLSX_Fixture(t *testing.T) {
	points := testutil.CongestedPoints()
	table, err := ReadXLSX(bytes.NewReader(testutil.GPSXLSX(t, points)), ReadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Placa", "Latitud", "Longitud", "Velocidad (km/h)"}, table.Header)
	assert.Equal(t, Columns{Latitude: 1, Longitude: 2, Speed: 3}, table.Columns)
	require.Len(t, table.Samples, len(points))
	for i, p := range points {
		assert.Equal(t, i+1, table.Samples[i].Row)
		assert.InDelta(t, p.Lat, table.Samples[i].Latitude, 1e-9)
		assert.InDelta(t, p.Lon, table.Samples[i].Longitude, 1e-9)
		assert.InDelta(t, p.Speed, table.Samples[i].Speed, 1e-9)
	}
	assert.Equal(t, "BUS-12", table.Rows[11][0])
}

func TestReadXLSX_MatchesCSV(t *testing.T) {
	points := testutil.CongestedPoints()
	fromCSV, err := ReadCSV(strings.NewReader(testutil.GPSCSV(points)), ReadOptions{SpeedUnit: units.MPH})
	require.NoError(t, err)
	fromXLSX, err := ReadXLSX(bytes.NewReader(testutil.GPSXLSX(t, points)), ReadOptions{SpeedUnit: units.MPH})
	require.NoError(t, err)

	require.Len(t, fromXLSX.Samples, len(fromCSV.Samples))
	for i := range fromCSV.Samples {
		assert.InDelta(t, fromCSV.Samples[i].Speed, fromXLSX.Samples[i].Speed, 1e-6)
	}
}

func TestReadXLSX_NotAWorkbook(t *testing.T) {
	_, err := ReadXLSX(strings.NewReader("Latitud,Longitud,Speed\n1,2,3\n"), ReadOptions{})
	var vErr *hotspot.ValidationError
	require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
	assert.Equal(t, "file", vErr.Field)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name, file, contentType, want string
	}{
		{"xlsx extension", "trips.xlsx", "", FormatXLSX},
		{"upper case extension", "TRIPS.XLSX", "application/octet-stream", FormatXLSX},
		{"xlsx content type", "", XLSXContentType, FormatXLSX},
		{"csv extension", "trips.csv", "", FormatCSV},
		{"csv content type", "", "text/csv; charset=utf-8", FormatCSV},
		{"unknown", "", "", FormatCSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.file, tt.contentType))
		})
	}
}

func TestRead_UnknownFormat(t *testing.T) {
	_, err := Read(strings.NewReader(""), "parquet", ReadOptions{})
	var cErr *hotspot.ConfigurationError
	require.True(t, errors.As(err, &cErr), "expected ConfigurationError, got %v", err)
}
