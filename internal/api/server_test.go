package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/congestion.report/internal/config"
	"github.com/banshee-data/congestion.report/internal/db"
	"github.com/banshee-data/congestion.report/internal/gpsio"
	"github.com/banshee-data/congestion.report/internal/monitoring"
	"github.com/banshee-data/congestion.report/internal/notify"
	"github.com/banshee-data/congestion.report/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

type recordingSender struct {
	bodies []string
}

func (r *recordingSender) Send(_ context.Context, _ string, body string) (string, error) {
	r.bodies = append(r.bodies, body)
	return "SM1", nil
}

func newTestServer(t *testing.T, withStore bool) (*Server, *recordingSender) {
	t.Helper()
	cfg := Config{Hotspot: config.DefaultHotspotConfig(), AppVersion: "test"}
	if withStore {
		store, err := db.Open(filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		cfg.Store = store
	}
	sender := &recordingSender{}
	d, err := notify.NewDispatcher(sender, "+10000000000", false)
	require.NoError(t, err)
	cfg.Dispatcher = d
	return NewServer(cfg), sender
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func congestedCSV() string {
	return testutil.GPSCSV(testutil.CongestedPoints())
}

func TestAnalyze_CSVBody(t *testing.T) {
	s, _ := newTestServer(t, false)
	w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze?source=buses.csv", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	out := decode(t, w)
	assert.Equal(t, "buses.csv", out["source"])
	assert.EqualValues(t, 12, out["sample_count"])
	assert.EqualValues(t, 10, out["micro_stop_count"])
	assert.EqualValues(t, 2, out["noise_count"])
	assert.NotContains(t, out, "run_id")
	assert.NotContains(t, out, "notifications")

	summaries := out["summaries"].([]interface{})
	require.Len(t, summaries, 1)
	first := summaries[0].(map[string]interface{})
	assert.EqualValues(t, 10, first["size"])
	assert.Len(t, out["alerts"], 1)

	labels := out["labels"].([]interface{})
	assert.Len(t, labels, 12)
	assert.EqualValues(t, -1, labels[11])
}

func TestAnalyze_Overrides(t *testing.T) {
	s, _ := newTestServer(t, false)

	w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze?alert_min_cluster_size=11", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Empty(t, decode(t, w)["alerts"])

	w = serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze?alert_speed_filter_enabled=true&alert_speed_threshold=1", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Empty(t, decode(t, w)["alerts"])

	w = serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze?eps=0", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)

	w = serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze?min_pts=many", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)

	w = serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze?speed_unit=furlongs", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
}

func TestAnalyze_Multipart(t *testing.T) {
	s, _ := newTestServer(t, false)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "route-12.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(congestedCSV()))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := serve(s, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "route-12.csv", decode(t, w)["source"])
}

func TestAnalyze_MultipartXLSX(t *testing.T) {
	s, _ := newTestServer(t, false)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "route-12.xlsx")
	require.NoError(t, err)
	_, err = part.Write(testutil.GPSXLSX(t, testutil.CongestedPoints()))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := serve(s, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	out := decode(t, w)
	assert.Equal(t, "route-12.xlsx", out["source"])
	assert.EqualValues(t, 12, out["sample_count"])
	assert.Len(t, out["alerts"], 1)
}

func TestAnalyze_XLSXBody(t *testing.T) {
	s, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(testutil.GPSXLSX(t, testutil.CongestedPoints())))
	req.Header.Set("Content-Type", gpsio.XLSXContentType)
	w := serve(s, req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.EqualValues(t, 12, decode(t, w)["sample_count"])

	// A CSV body declared as xlsx is rejected.
	w = serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze?format=xlsx", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
}

func TestAnalyze_BadInput(t *testing.T) {
	s, _ := newTestServer(t, false)

	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"header only", "Latitud,Longitud,Velocidad\n"},
		{"missing column", "Latitud,Longitud\n10,-75\n"},
		{"non-numeric", "Latitud,Longitud,Velocidad\n10,-75,fast\n"},
		{"out of range", "Latitud,Longitud,Velocidad\n95,-75,3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze", tt.body))
			testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func TestAnalyze_TooLarge(t *testing.T) {
	s, _ := newTestServer(t, false)
	s.cfg.MaxUploadBytes = 64
	w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusRequestEntityTooLarge)
}

func TestAnalyze_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, false)
	for _, path := range []string{"/api/analyze", "/api/analyze/export", "/api/analyze/map", "/api/analyze/plot"} {
		w := serve(s, testutil.NewTestRequest(http.MethodGet, path, ""))
		testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
	}
}

func TestAnalyze_Notify(t *testing.T) {
	s, sender := newTestServer(t, false)
	w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze?notify=true&alert_speed_filter_enabled=true", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	out := decode(t, w)
	n := out["notifications"].(map[string]interface{})
	assert.EqualValues(t, 1, n["sent"])
	assert.EqualValues(t, 0, n["failed"])
	require.Len(t, sender.bodies, 1)
	assert.True(t, strings.HasPrefix(sender.bodies[0], "Congestion alert: cluster #0 detected with 10 points."))
	assert.Contains(t, sender.bodies[0], "mean speed: 2.0 km/h")
}

type failingSender struct{}

func (failingSender) Send(context.Context, string, string) (string, error) {
	return "", errors.New("gateway down")
}

func TestAnalyze_NotifyFailureReported(t *testing.T) {
	s, _ := newTestServer(t, false)
	d, err := notify.NewDispatcher(failingSender{}, "+10000000000", false)
	require.NoError(t, err)
	s.cfg.Dispatcher = d

	w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze?notify=true", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	n := decode(t, w)["notifications"].(map[string]interface{})
	assert.EqualValues(t, 0, n["sent"])
	assert.EqualValues(t, 1, n["failed"])
	results := n["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, "notification for cluster 0 failed: gateway down", results[0].(map[string]interface{})["error"])
}

func TestAnalyze_NotifyNotConfigured(t *testing.T) {
	s := NewServer(Config{})
	w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze?notify=1", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
}

func TestExport(t *testing.T) {
	s, _ := newTestServer(t, false)
	w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze/export", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "hotspots.csv")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 13)
	assert.Equal(t, "Placa,Latitud,Longitud,Velocidad (km/h),micro_stop,cluster_id", strings.TrimSpace(lines[0]))
}

func TestMapAndPlot(t *testing.T) {
	s, _ := newTestServer(t, false)

	w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze/map", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<html")

	w = serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze/plot", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestMapViews(t *testing.T) {
	s, _ := newTestServer(t, false)

	for _, view := range []string{"summary", "microstops", "clusters"} {
		t.Run(view, func(t *testing.T) {
			w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze/map?view="+view, congestedCSV()))
			testutil.AssertStatusCode(t, w.Code, http.StatusOK)
			assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
			assert.Contains(t, w.Body.String(), "<html")
		})
	}

	w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze/map?view=heatmap", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
	assert.Contains(t, decode(t, w)["error"], "view")
}

func TestConfigEndpoint(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(modelPath, []byte(`{"version":"v3","eps":0.4,"min_samples":4,"metric":"euclidean"}`), 0o644))

	cfg := config.DefaultHotspotConfig()
	cfg.ModelPath = &modelPath
	s := NewServer(Config{Hotspot: cfg})

	w := serve(s, testutil.NewTestRequest(http.MethodGet, "/api/config", ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	out := decode(t, w)
	assert.EqualValues(t, 0.4, out["eps"])
	assert.EqualValues(t, 4, out["min_pts"])
	assert.Equal(t, false, out["persistence"])

	serve(s, testutil.NewTestRequest(http.MethodGet, "/api/config", ""))
	assert.Equal(t, 1, s.cfg.Models.Loads())
}

func TestConfigEndpoint_MissingModel(t *testing.T) {
	cfg := config.DefaultHotspotConfig()
	missing := filepath.Join(t.TempDir(), "nope.json")
	cfg.ModelPath = &missing
	s := NewServer(Config{Hotspot: cfg})

	w := serve(s, testutil.NewTestRequest(http.MethodGet, "/api/config", ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusInternalServerError)
}

func TestAnalyze_InvalidModelIsServerError(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(modelPath, []byte(`{"version":"v3","eps":0.4,"min_samples":4,"metric":"manhattan"}`), 0o644))

	cfg := config.DefaultHotspotConfig()
	cfg.ModelPath = &modelPath
	s := NewServer(Config{Hotspot: cfg})

	w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusInternalServerError)
	assert.Contains(t, decode(t, w)["error"], "model artifact")
}

func TestAnalyze_ModelRejectsClusteringOverrides(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(modelPath, []byte(`{"version":"v3","eps":0.5,"min_samples":3,"metric":"euclidean"}`), 0o644))

	cfg := config.DefaultHotspotConfig()
	cfg.ModelPath = &modelPath
	s := NewServer(Config{Hotspot: cfg})

	for _, q := range []string{"eps=0.3", "min_pts=4"} {
		w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze?"+q, congestedCSV()))
		testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
		assert.Contains(t, decode(t, w)["error"], "model artifact")
	}

	w := serve(s, testutil.NewTestRequest(http.MethodPost, "/api/analyze?microstop_speed_threshold=3", congestedCSV()))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	w = serve(s, testutil.NewTestRequest(http.MethodGet, "/api/config", ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.NotContains(t, decode(t, w)["overridable"], "eps")
}
