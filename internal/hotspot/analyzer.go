package hotspot

import (
	"time"

	"github.com/banshee-data/congestion.report/internal/monitoring"
)

// Params is the full configuration surface consumed by the core.
type Params struct {
	DBSCAN             DBSCANParams
	MicroStopThreshold float64
	Alert              AlertConfig
	Workers            int // neighbourhood workers; 1 is sequential, 0 is NumCPU
}

// DefaultParams returns defaults for every stage.
func DefaultParams() Params {
	return Params{
		DBSCAN:             DefaultDBSCANParams(),
		MicroStopThreshold: DefaultMicroStopThreshold,
		Alert:              DefaultAlertConfig(),
		Workers:            1,
	}
}

// Validate checks every stage's parameters.
func (p Params) Validate() error {
	if err := p.DBSCAN.Validate(); err != nil {
		return err
	}
	if p.MicroStopThreshold < 0 {
		return &ConfigurationError{Field: "microstop_speed_threshold", Value: p.MicroStopThreshold, Reason: "must be non-negative"}
	}
	return p.Alert.Validate()
}

// Result is everything the core produces for one batch. All slices indexed
// by sample are aligned with input order.
type Result struct {
	MicroStops []bool            `json:"micro_stops"`
	Labels     ClusterAssignment `json:"labels"`
	Summaries  []ClusterSummary  `json:"summaries"`
	Decisions  []AlertDecision   `json:"decisions"`
	Alerts     []ClusterSummary  `json:"alerts"`
	NoiseCount int               `json:"noise_count"`
}

// Records combines samples with their flags and labels for export.
func (r *Result) Records(samples []Sample) []Record {
	records := make([]Record, len(samples))
	for i, s := range samples {
		records[i] = Record{Sample: s, MicroStop: r.MicroStops[i], ClusterID: r.Labels[i]}
	}
	return records
}

// Analyzer runs the full batch pipeline: normalize, cluster, summarize and
// evaluate alerts, with micro-stop detection on the raw batch. Every call
// re-fits the clustering; nothing carries over between batches.
type Analyzer struct {
	params    Params
	clusterer *DBSCANClusterer
	detector  *MicroStopDetector
}

// NewAnalyzer validates params and builds the pipeline stages.
func NewAnalyzer(params Params) (*Analyzer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	clusterer, err := NewDBSCANClusterer(params.DBSCAN.Eps, params.DBSCAN.MinPts)
	if err != nil {
		return nil, err
	}
	clusterer.WithParallelism(params.Workers)
	detector, err := NewMicroStopDetector(params.MicroStopThreshold)
	if err != nil {
		return nil, err
	}
	return &Analyzer{params: params, clusterer: clusterer, detector: detector}, nil
}

// Params returns the analyzer configuration.
func (a *Analyzer) Params() Params {
	return a.params
}

// Analyze processes one validated batch. Any error aborts the whole batch.
func (a *Analyzer) Analyze(samples []Sample) (*Result, error) {
	if len(samples) == 0 {
		return nil, &InsufficientDataError{Stage: "analyze", Got: 0, Need: 1}
	}
	defer monitoring.LogElapsed("hotspot analyze", time.Now())

	vectors, err := Normalize(samples)
	if err != nil {
		return nil, err
	}
	labels, err := a.clusterer.Cluster(vectors)
	if err != nil {
		return nil, err
	}
	summaries, err := Summarize(samples, labels)
	if err != nil {
		return nil, err
	}

	res := &Result{
		MicroStops: a.detector.Detect(samples),
		Labels:     labels,
		Summaries:  summaries,
		Decisions:  a.params.Alert.Evaluate(summaries),
		Alerts:     a.params.Alert.Matches(summaries),
		NoiseCount: NoiseCount(labels),
	}

	monitoring.Logf("hotspot: %d samples, %d clusters, %d noise, %d alerts (eps=%g minPts=%d)",
		len(samples), len(summaries), res.NoiseCount, len(res.Alerts),
		a.params.DBSCAN.Eps, a.params.DBSCAN.MinPts)

	return res, nil
}
