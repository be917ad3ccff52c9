// Package api exposes the hot spot pipeline over HTTP: CSV uploads are
// analysed per request and, when a store is configured, recorded as runs.
package api

import (
	"net/http"

	"github.com/banshee-data/congestion.report/internal/config"
	"github.com/banshee-data/congestion.report/internal/db"
	"github.com/banshee-data/congestion.report/internal/httputil"
	"github.com/banshee-data/congestion.report/internal/notify"
)

// DefaultMaxUploadBytes bounds an uploaded GPS file.
const DefaultMaxUploadBytes int64 = 64 << 20

// Config wires the server's collaborators. Only Hotspot is required.
type Config struct {
	Hotspot        *config.HotspotConfig
	Models         *config.ArtifactCache // used when Hotspot names a model_path
	Store          *db.DB                // nil disables run persistence and /api/runs
	Dispatcher     *notify.Dispatcher    // nil disables ?notify=true
	AppVersion     string
	MaxUploadBytes int64
}

// Server provides the HTTP handlers.
type Server struct {
	cfg Config
}

// NewServer creates a server, filling in defaults.
func NewServer(cfg Config) *Server {
	if cfg.Hotspot == nil {
		cfg.Hotspot = config.DefaultHotspotConfig()
	}
	if cfg.Models == nil {
		cfg.Models = config.NewArtifactCache()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{cfg: cfg}
}

// RegisterRoutes registers the API routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/analyze/export", s.handleExport)
	mux.HandleFunc("/api/analyze/map", s.handleMap)
	mux.HandleFunc("/api/analyze/plot", s.handlePlot)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRunByID)
}

// ServeMux returns a new mux with every route registered.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	params, err := s.params(s.cfg.Hotspot)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"eps":                        params.DBSCAN.Eps,
		"min_pts":                    params.DBSCAN.MinPts,
		"workers":                    params.Workers,
		"microstop_speed_threshold":  params.MicroStopThreshold,
		"alert_min_cluster_size":     params.Alert.MinSize,
		"alert_speed_filter_enabled": params.Alert.SpeedFilterEnabled,
		"alert_speed_threshold":      params.Alert.SpeedThreshold,
		"speed_unit":                 s.cfg.Hotspot.GetSpeedUnit(),
		"model_path":                 s.cfg.Hotspot.GetModelPath(),
		"overridable":                overridable(s.cfg.Hotspot),
		"notifications":              s.cfg.Dispatcher != nil,
		"persistence":                s.cfg.Store != nil,
		"version":                    s.cfg.AppVersion,
	})
}

// overridable lists the query parameters /api/analyze accepts as
// per-request overrides under cfg.
func overridable(cfg *config.HotspotConfig) []string {
	names := []string{
		"microstop_speed_threshold",
		"alert_min_cluster_size",
		"alert_speed_threshold",
		"alert_speed_filter_enabled",
		"speed_unit",
	}
	if cfg.GetModelPath() == "" {
		names = append([]string{"eps", "min_pts"}, names...)
	}
	return names
}
