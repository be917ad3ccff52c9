package api

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/banshee-data/congestion.report/internal/config"
	"github.com/banshee-data/congestion.report/internal/db"
	"github.com/banshee-data/congestion.report/internal/gpsio"
	"github.com/banshee-data/congestion.report/internal/hotspot"
	"github.com/banshee-data/congestion.report/internal/httputil"
	"github.com/banshee-data/congestion.report/internal/notify"
	"github.com/banshee-data/congestion.report/internal/report"
)

const maxMultipartMemory = 32 << 20

// analysis is one processed upload.
type analysis struct {
	source string
	cfg    *config.HotspotConfig
	params hotspot.Params
	table  *gpsio.Table
	result *hotspot.Result
}

type analyzeResponse struct {
	RunID          string `json:"run_id,omitempty"`
	Source         string `json:"source"`
	SampleCount    int    `json:"sample_count"`
	MicroStopCount int    `json:"micro_stop_count"`
	*hotspot.Result
	Notifications *notify.Report `json:"notifications,omitempty"`
}

// withOverrides applies per-request query parameters over the server
// config. Parameter names match the config file keys.
func withOverrides(base *config.HotspotConfig, q url.Values) (*config.HotspotConfig, error) {
	cfg := *base

	// A model artifact fixes the clustering parameters.
	if cfg.GetModelPath() != "" {
		for _, name := range []string{"eps", "min_pts"} {
			if raw := q.Get(name); raw != "" {
				return nil, &hotspot.ConfigurationError{Field: name, Value: raw, Reason: "cannot be overridden while a model artifact is configured"}
			}
		}
	}

	floatParam := func(name string, dst **float64) error {
		raw := q.Get(name)
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return &hotspot.ConfigurationError{Field: name, Value: raw, Reason: "must be a number"}
		}
		*dst = &v
		return nil
	}
	intParam := func(name string, dst **int) error {
		raw := q.Get(name)
		if raw == "" {
			return nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return &hotspot.ConfigurationError{Field: name, Value: raw, Reason: "must be an integer"}
		}
		*dst = &v
		return nil
	}

	if err := floatParam("eps", &cfg.Eps); err != nil {
		return nil, err
	}
	if err := intParam("min_pts", &cfg.MinPts); err != nil {
		return nil, err
	}
	if err := floatParam("microstop_speed_threshold", &cfg.MicroStopSpeedThreshold); err != nil {
		return nil, err
	}
	if err := intParam("alert_min_cluster_size", &cfg.AlertMinClusterSize); err != nil {
		return nil, err
	}
	if err := floatParam("alert_speed_threshold", &cfg.AlertSpeedThreshold); err != nil {
		return nil, err
	}
	if raw := q.Get("alert_speed_filter_enabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, &hotspot.ConfigurationError{Field: "alert_speed_filter_enabled", Value: raw, Reason: "must be a boolean"}
		}
		cfg.AlertSpeedFilterEnabled = &v
	}
	if raw := q.Get("speed_unit"); raw != "" {
		cfg.SpeedUnit = &raw
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// params resolves core parameters, consulting the model artifact cache
// when a model path is configured.
func (s *Server) params(cfg *config.HotspotConfig) (hotspot.Params, error) {
	var model *config.ModelArtifact
	if path := cfg.GetModelPath(); path != "" {
		m, err := s.cfg.Models.Get(path)
		if err != nil {
			return hotspot.Params{}, &artifactError{Path: path, Err: err}
		}
		model = m
	}
	return cfg.Params(model), nil
}

// payload is the GPS table uploaded with a request.
type payload struct {
	body   io.ReadCloser
	source string
	format string
}

// upload returns the payload of r: the "file" part of a multipart form, or
// the raw body otherwise. The format comes from ?format when given, else
// from the file name or content type.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) (*payload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	format := r.URL.Query().Get("format")

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, fmt.Errorf("invalid multipart upload: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, &hotspot.ValidationError{Field: "file", Reason: "multipart upload needs a file part"}
		}
		if format == "" {
			format = gpsio.DetectFormat(header.Filename, header.Header.Get("Content-Type"))
		}
		return &payload{body: file, source: header.Filename, format: format}, nil
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}
	if format == "" {
		format = gpsio.DetectFormat(source, r.Header.Get("Content-Type"))
	}
	return &payload{body: r.Body, source: source, format: format}, nil
}

// analyze runs the full pipeline over one upload.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) (*analysis, error) {
	cfg, err := withOverrides(s.cfg.Hotspot, r.URL.Query())
	if err != nil {
		return nil, err
	}
	params, err := s.params(cfg)
	if err != nil {
		return nil, err
	}

	up, err := s.upload(w, r)
	if err != nil {
		return nil, err
	}
	defer up.body.Close()

	table, err := gpsio.Read(up.body, up.format, gpsio.ReadOptions{SpeedUnit: cfg.GetSpeedUnit()})
	if err != nil {
		return nil, err
	}
	analyzer, err := hotspot.NewAnalyzer(params)
	if err != nil {
		return nil, err
	}
	res, err := analyzer.Analyze(table.Samples)
	if err != nil {
		return nil, err
	}
	return &analysis{source: up.source, cfg: cfg, params: params, table: table, result: res}, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	sendAlerts := false
	if raw := r.URL.Query().Get("notify"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, &hotspot.ConfigurationError{Field: "notify", Value: raw, Reason: "must be a boolean"})
			return
		}
		sendAlerts = v
	}
	if sendAlerts && s.cfg.Dispatcher == nil {
		writeError(w, &hotspot.ConfigurationError{Field: "notify", Value: true, Reason: "notifications are not configured"})
		return
	}

	a, err := s.analyze(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := analyzeResponse{
		Source:         a.source,
		SampleCount:    len(a.table.Samples),
		MicroStopCount: countTrue(a.result.MicroStops),
		Result:         a.result,
	}

	if s.cfg.Store != nil {
		run, err := s.cfg.Store.SaveRun(r.Context(), db.RunInput{
			Source:     a.source,
			AppVersion: s.cfg.AppVersion,
			Params:     a.params,
			Samples:    a.table.Samples,
			Result:     a.result,
		})
		if err != nil {
			writeError(w, fmt.Errorf("failed to save run: %w", err))
			return
		}
		resp.RunID = run.ID
	}

	if sendAlerts {
		d := *s.cfg.Dispatcher
		d.IncludeSpeed = a.params.Alert.SpeedFilterEnabled
		rep := d.Dispatch(r.Context(), a.result.Alerts)
		resp.Notifications = &rep
	}

	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.serveRendered(w, r, "text/csv; charset=utf-8", "hotspots.csv", func(buf *bytes.Buffer, a *analysis) error {
		return gpsio.WriteResultCSV(buf, a.table, a.result)
	})
}

// Views served by /api/analyze/map.
const (
	mapViewSummary    = "summary"
	mapViewMicroStops = "microstops"
	mapViewClusters   = "clusters"
)

// handleMap renders the page selected by ?view: the combined summary page
// (default), the micro-stop scatter alone, or the cluster scatter alone.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	view := r.URL.Query().Get("view")
	var render func(*bytes.Buffer, *analysis) error
	switch view {
	case "", mapViewSummary:
		render = func(buf *bytes.Buffer, a *analysis) error {
			return report.WriteSummaryPage(buf, a.table.Samples, a.result)
		}
	case mapViewMicroStops:
		render = func(buf *bytes.Buffer, a *analysis) error {
			return report.WriteMicroStopMap(buf, a.table.Samples, a.result.MicroStops)
		}
	case mapViewClusters:
		render = func(buf *bytes.Buffer, a *analysis) error {
			return report.WriteClusterMap(buf, a.table.Samples, a.result.Labels)
		}
	default:
		writeError(w, &hotspot.ConfigurationError{Field: "view", Value: view, Reason: "must be summary, microstops or clusters"})
		return
	}
	s.serveRendered(w, r, "text/html; charset=utf-8", "", render)
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	s.serveRendered(w, r, "image/png", "", func(buf *bytes.Buffer, a *analysis) error {
		return report.WriteClusterPlotPNG(buf, a.table.Samples, a.result.Labels)
	})
}

// serveRendered analyses the upload and renders it into a buffer so that a
// rendering failure can still be reported as JSON. A non-empty filename
// marks the response as a download.
func (s *Server) serveRendered(w http.ResponseWriter, r *http.Request, contentType, filename string, render func(*bytes.Buffer, *analysis) error) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	a, err := s.analyze(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := render(&buf, a); err != nil {
		writeError(w, fmt.Errorf("render failed: %w", err))
		return
	}

	if filename != "" {
		httputil.SetDownload(w, contentType, filename)
	} else {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func countTrue(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
