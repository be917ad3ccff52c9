package gpsio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/congestion.report/internal/hotspot"
	"github.com/banshee-data/congestion.report/internal/testutil"
)

func TestWriteResultCSV(t *testing.T) {
	input := "Placa,Latitud,Longitud,Velocidad\nA,1,2,3\nB,1.5,2.5,30\n"
	table, err := ReadCSV(strings.NewReader(input), ReadOptions{})
	require.NoError(t, err)

	res := &hotspot.Result{
		MicroStops: []bool{true, false},
		Labels:     hotspot.ClusterAssignment{0, hotspot.Noise},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResultCSV(&buf, table, res))

	want := "Placa,Latitud,Longitud,Velocidad,micro_stop,cluster_id\n" +
		"A,1,2,3,true,0\n" +
		"B,1.5,2.5,30,false,-1\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteResultCSV_RoundTripWithAnalyzer(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(testutil.GPSCSV(testutil.CongestedPoints())), ReadOptions{})
	require.NoError(t, err)

	params := hotspot.DefaultParams()
	params.DBSCAN = hotspot.DBSCANParams{Eps: 0.5, MinPts: 3}
	a, err := hotspot.NewAnalyzer(params)
	require.NoError(t, err)
	res, err := a.Analyze(table.Samples)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteResultCSV(&buf, table, res))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 13)
	assert.True(t, strings.HasSuffix(lines[1], ",true,0"), lines[1])
	assert.True(t, strings.HasSuffix(lines[12], ",false,-1"), lines[12])
}

func TestWriteResultCSV_LengthMismatch(t *testing.T) {
	table := &Table{Header: []string{"a"}, Rows: [][]string{{"1"}}}
	err := WriteResultCSV(&bytes.Buffer{}, table, &hotspot.Result{})
	assert.Error(t, err)
}
