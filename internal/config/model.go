package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/congestion.report/internal/hotspot"
	"github.com/banshee-data/congestion.report/internal/monitoring"
)

// ModelArtifact is a previously fitted clustering model. Only the DBSCAN
// parameters are used; assignments are always re-fitted per batch.
type ModelArtifact struct {
	Version    string  `json:"version"`
	Eps        float64 `json:"eps"`
	MinSamples int     `json:"min_samples"`
	Metric     string  `json:"metric,omitempty"`
}

// DBSCANParams returns the clustering parameters carried by the artifact.
func (m *ModelArtifact) DBSCANParams() hotspot.DBSCANParams {
	return hotspot.DBSCANParams{Eps: m.Eps, MinPts: m.MinSamples}
}

// Validate checks eps, min_samples and metric.
func (m *ModelArtifact) Validate() error {
	if err := m.DBSCANParams().Validate(); err != nil {
		return err
	}
	if m.Metric != "" && m.Metric != "euclidean" {
		return &hotspot.ConfigurationError{Field: "metric", Value: m.Metric, Reason: "only euclidean is supported"}
	}
	return nil
}

// LoadModelArtifact reads and validates a model artifact JSON file.
func LoadModelArtifact(path string) (*ModelArtifact, error) {
	data, err := readBoundedJSON(path)
	if err != nil {
		return nil, err
	}
	m := &ModelArtifact{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact %s: %w", path, err)
	}
	return m, nil
}

// artifactVersion identifies one on-disk revision of an artifact file.
type artifactVersion struct {
	modTime time.Time
	size    int64
}

type cachedArtifact struct {
	version artifactVersion
	model   *ModelArtifact
}

// ArtifactCache avoids re-reading a model artifact on every request. Entries
// are keyed by cleaned path and revalidated against the file's modification
// time and size on each Get, so an edited file is reloaded.
type ArtifactCache struct {
	mu      sync.Mutex
	entries map[string]cachedArtifact
	loads   int
}

// NewArtifactCache creates an empty cache.
func NewArtifactCache() *ArtifactCache {
	return &ArtifactCache{entries: make(map[string]cachedArtifact)}
}

// Get returns the artifact at path, loading it if it is not cached or the
// file changed since it was cached.
func (c *ArtifactCache) Get(path string) (*ModelArtifact, error) {
	key := filepath.Clean(path)
	info, err := os.Stat(key)
	if err != nil {
		return nil, fmt.Errorf("failed to stat model artifact: %w", err)
	}
	version := artifactVersion{modTime: info.ModTime(), size: info.Size()}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok && entry.version == version {
		return entry.model, nil
	}

	model, err := LoadModelArtifact(key)
	if err != nil {
		delete(c.entries, key)
		return nil, err
	}
	c.entries[key] = cachedArtifact{version: version, model: model}
	c.loads++
	monitoring.Logf("loaded model artifact %s (version %q, eps=%g, min_samples=%d)",
		key, model.Version, model.Eps, model.MinSamples)
	return model, nil
}

// Invalidate evicts the entry for path.
func (c *ArtifactCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, filepath.Clean(path))
}

// Loads reports how many times an artifact was read from disk.
func (c *ArtifactCache) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}
