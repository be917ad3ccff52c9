// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request with an optional body.
func NewTestRequest(method, path, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, path, nil)
	}
	return httptest.NewRequest(method, path, strings.NewReader(body))
}

// GPSPoint is one fixture row.
type GPSPoint struct {
	Lat, Lon, Speed float64
}

// CongestedPoints returns ten slow points packed around (10.000, -75.000)
// followed by two fast outliers. With eps 0.5 and minPts 3 the ten form a
// single cluster and the outliers are noise.
func CongestedPoints() []GPSPoint {
	points := make([]GPSPoint, 0, 12)
	for i := 0; i < 10; i++ {
		points = append(points, GPSPoint{
			Lat:   10.000 + float64(i%5)*0.0001,
			Lon:   -75.000 + float64(i/5)*0.0001,
			Speed: 2,
		})
	}
	return append(points,
		GPSPoint{Lat: 10.05, Lon: -74.95, Speed: 40},
		GPSPoint{Lat: 9.95, Lon: -75.05, Speed: 40},
	)
}

// GPSCSV renders points as a CSV file using the column names of the field
// exports (Latitud, Longitud, Velocidad km/h) plus a leading Placa column.
func GPSCSV(points []GPSPoint) string {
	var b strings.Builder
	b.WriteString("Placa,Latitud,Longitud,Velocidad (km/h)\n")
	for i, p := range points {
		fmt.Fprintf(&b, "BUS-%02d,%.6f,%.6f,%.1f\n", i+1, p.Lat, p.Lon, p.Speed)
	}
	return b.String()
}

// GPSXLSX renders points as an Excel workbook with the same columns as
// GPSCSV on its first sheet, storing coordinates and speeds as numbers.
func GPSXLSX(t *testing.T, points []GPSPoint) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := []interface{}{"Placa", "Latitud", "Longitud", "Velocidad (km/h)"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		t.Fatalf("failed to write xlsx header: %v", err)
	}
	for i, p := range points {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			t.Fatalf("failed to name cell: %v", err)
		}
		row := []interface{}{fmt.Sprintf("BUS-%02d", i+1), p.Lat, p.Lon, p.Speed}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("failed to write xlsx row %d: %v", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("failed to encode xlsx: %v", err)
	}
	return buf.Bytes()
}
