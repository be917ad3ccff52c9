package gpsio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/congestion.report/internal/hotspot"
)

// Export column names appended to the original header.
const (
	MicroStopColumn = "micro_stop"
	ClusterColumn   = "cluster_id"
)

// WriteResultCSV writes the original columns of every row followed by its
// micro-stop flag and cluster id.
func WriteResultCSV(w io.Writer, t *Table, res *hotspot.Result) error {
	if len(res.MicroStops) != len(t.Rows) || len(res.Labels) != len(t.Rows) {
		return fmt.Errorf("result covers %d/%d samples but table has %d rows",
			len(res.MicroStops), len(res.Labels), len(t.Rows))
	}

	cw := csv.NewWriter(w)
	header := append(append([]string(nil), t.Header...), MicroStopColumn, ClusterColumn)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, record := range t.Rows {
		row := make([]string, len(t.Header), len(t.Header)+2)
		copy(row, record)
		row = append(row, strconv.FormatBool(res.MicroStops[i]), strconv.Itoa(res.Labels[i]))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
