package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/congestion.report/internal/hotspot"
)

// ErrRunNotFound is returned when a run id has no stored run.
var ErrRunNotFound = errors.New("run not found")

const timeLayout = "2006-01-02T15:04:05.000000Z"

// Run is the stored header of one analysis.
type Run struct {
	ID                 string    `json:"run_id"`
	Source             string    `json:"source"`
	CreatedAt          time.Time `json:"created_at"`
	AppVersion         string    `json:"app_version"`
	Eps                float64   `json:"eps"`
	MinPts             int       `json:"min_pts"`
	MicroStopThreshold float64   `json:"microstop_speed_threshold"`
	AlertMinSize       int       `json:"alert_min_cluster_size"`
	SpeedFilter        bool      `json:"alert_speed_filter_enabled"`
	SpeedThreshold     float64   `json:"alert_speed_threshold"`
	SampleCount        int       `json:"sample_count"`
	NoiseCount         int       `json:"noise_count"`
	ClusterCount       int       `json:"cluster_count"`
	AlertCount         int       `json:"alert_count"`
}

// RunCluster is a stored cluster summary with its alert outcome.
type RunCluster struct {
	hotspot.ClusterSummary
	Alerted bool `json:"alerted"`
}

// RunInput is everything SaveRun persists.
type RunInput struct {
	Source     string
	AppVersion string
	Params     hotspot.Params
	Samples    []hotspot.Sample
	Result     *hotspot.Result
}

// SaveRun stores the run header, its clusters and every labelled sample in
// one transaction and returns the stored header.
func (db *DB) SaveRun(ctx context.Context, in RunInput) (*Run, error) {
	if in.Result == nil {
		return nil, errors.New("save run: nil result")
	}
	if len(in.Samples) != len(in.Result.Labels) {
		return nil, fmt.Errorf("save run: %d samples but %d labels", len(in.Samples), len(in.Result.Labels))
	}

	run := &Run{
		ID:                 uuid.NewString(),
		Source:             in.Source,
		CreatedAt:          db.Clock.Now().UTC(),
		AppVersion:         in.AppVersion,
		Eps:                in.Params.DBSCAN.Eps,
		MinPts:             in.Params.DBSCAN.MinPts,
		MicroStopThreshold: in.Params.MicroStopThreshold,
		AlertMinSize:       in.Params.Alert.MinSize,
		SpeedFilter:        in.Params.Alert.SpeedFilterEnabled,
		SpeedThreshold:     in.Params.Alert.SpeedThreshold,
		SampleCount:        len(in.Samples),
		NoiseCount:         in.Result.NoiseCount,
		ClusterCount:       len(in.Result.Summaries),
		AlertCount:         len(in.Result.Alerts),
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, source, created_at, app_version, eps, min_pts,
			microstop_threshold, alert_min_size, speed_filter, speed_threshold,
			sample_count, noise_count, cluster_count, alert_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.CreatedAt.Format(timeLayout), run.AppVersion, run.Eps, run.MinPts,
		run.MicroStopThreshold, run.AlertMinSize, run.SpeedFilter, run.SpeedThreshold,
		run.SampleCount, run.NoiseCount, run.ClusterCount, run.AlertCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	alerted := make(map[int]bool, len(in.Result.Decisions))
	for _, d := range in.Result.Decisions {
		alerted[d.ClusterID] = d.Triggered
	}

	clusterStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_clusters (run_id, cluster_id, size, centroid_lat, centroid_lon, mean_speed, alerted)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer clusterStmt.Close()
	for _, s := range in.Result.Summaries {
		if _, err := clusterStmt.ExecContext(ctx, run.ID, s.ClusterID, s.Size, s.CentroidLat, s.CentroidLon, s.MeanSpeed, alerted[s.ClusterID]); err != nil {
			return nil, fmt.Errorf("failed to insert cluster %d: %w", s.ClusterID, err)
		}
	}

	sampleStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_samples (run_id, row_index, source_row, latitude, longitude, speed, micro_stop, cluster_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer sampleStmt.Close()
	for i, s := range in.Samples {
		if _, err := sampleStmt.ExecContext(ctx, run.ID, i, s.Row, s.Latitude, s.Longitude, s.Speed, in.Result.MicroStops[i], in.Result.Labels[i]); err != nil {
			return nil, fmt.Errorf("failed to insert sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return run, nil
}

const runColumns = `run_id, source, created_at, app_version, eps, min_pts,
	microstop_threshold, alert_min_size, speed_filter, speed_threshold,
	sample_count, noise_count, cluster_count, alert_count`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (*Run, error) {
	var r Run
	var created string
	if err := s.Scan(&r.ID, &r.Source, &created, &r.AppVersion, &r.Eps, &r.MinPts,
		&r.MicroStopThreshold, &r.AlertMinSize, &r.SpeedFilter, &r.SpeedThreshold,
		&r.SampleCount, &r.NoiseCount, &r.ClusterCount, &r.AlertCount); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", created, err)
	}
	r.CreatedAt = t
	return &r, nil
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRun returns one run header or ErrRunNotFound.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return r, err
}

// RunClusters returns the stored clusters of a run in summary order:
// size descending, then cluster id ascending.
func (db *DB) RunClusters(ctx context.Context, id string) ([]RunCluster, error) {
	if _, err := db.GetRun(ctx, id); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT cluster_id, size, centroid_lat, centroid_lon, mean_speed, alerted
		FROM run_clusters WHERE run_id = ?
		ORDER BY size DESC, cluster_id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clusters := []RunCluster{}
	for rows.Next() {
		var c RunCluster
		if err := rows.Scan(&c.ClusterID, &c.Size, &c.CentroidLat, &c.CentroidLon, &c.MeanSpeed, &c.Alerted); err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// RunRecords returns the labelled samples of a run in input order.
func (db *DB) RunRecords(ctx context.Context, id string) ([]hotspot.Record, error) {
	if _, err := db.GetRun(ctx, id); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT source_row, latitude, longitude, speed, micro_stop, cluster_id
		FROM run_samples WHERE run_id = ?
		ORDER BY row_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []hotspot.Record{}
	for rows.Next() {
		var r hotspot.Record
		if err := rows.Scan(&r.Row, &r.Latitude, &r.Longitude, &r.Speed, &r.MicroStop, &r.ClusterID); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteRun removes a run and its clusters and samples.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}
