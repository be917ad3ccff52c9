package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/congestion.report/internal/hotspot"
	"github.com/banshee-data/congestion.report/internal/units"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/hotspot.defaults.json"

// maxConfigFileSize bounds config and model files read from disk.
const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// HotspotConfig is the root configuration for a hot spot analysis. Fields
// omitted from JSON are nil and resolved through the Get* methods, so partial
// configs are safe.
type HotspotConfig struct {
	// Clustering
	Eps       *float64 `json:"eps,omitempty"`
	MinPts    *int     `json:"min_pts,omitempty"`
	ModelPath *string  `json:"model_path,omitempty"` // optional artifact overriding eps/min_pts
	Workers   *int     `json:"workers,omitempty"`    // 0 = one per CPU

	// Micro-stops
	MicroStopSpeedThreshold *float64 `json:"microstop_speed_threshold,omitempty"`

	// Alerting
	AlertMinClusterSize     *int     `json:"alert_min_cluster_size,omitempty"`
	AlertSpeedFilterEnabled *bool    `json:"alert_speed_filter_enabled,omitempty"`
	AlertSpeedThreshold     *float64 `json:"alert_speed_threshold,omitempty"`

	// Ingestion
	SpeedUnit *string `json:"speed_unit,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultHotspotConfig returns a config with every field set to its default.
func DefaultHotspotConfig() *HotspotConfig {
	return &HotspotConfig{
		Eps:                     ptrFloat64(hotspot.DefaultDBSCANEps),
		MinPts:                  ptrInt(hotspot.DefaultDBSCANMinPts),
		Workers:                 ptrInt(1),
		MicroStopSpeedThreshold: ptrFloat64(hotspot.DefaultMicroStopThreshold),
		AlertMinClusterSize:     ptrInt(10),
		AlertSpeedFilterEnabled: ptrBool(false),
		AlertSpeedThreshold:     ptrFloat64(hotspot.DefaultMicroStopThreshold),
		SpeedUnit:               ptrString(units.KPH),
	}
}

// LoadHotspotConfig loads a HotspotConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadHotspotConfig(path string) (*HotspotConfig, error) {
	data, err := readBoundedJSON(path)
	if err != nil {
		return nil, err
	}

	cfg := &HotspotConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded; intended for test setup.
func MustLoadDefaultConfig() *HotspotConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadHotspotConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// readBoundedJSON reads a .json file after checking its extension and size.
func readBoundedJSON(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", cleanPath, err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cleanPath, err)
	}
	return data, nil
}

// Validate checks set fields. It returns a *hotspot.ConfigurationError.
func (c *HotspotConfig) Validate() error {
	if c.Eps != nil && !(*c.Eps > 0) {
		return &hotspot.ConfigurationError{Field: "eps", Value: *c.Eps, Reason: "must be greater than 0"}
	}
	if c.MinPts != nil && *c.MinPts < 1 {
		return &hotspot.ConfigurationError{Field: "min_pts", Value: *c.MinPts, Reason: "must be at least 1"}
	}
	if c.Workers != nil && *c.Workers < 0 {
		return &hotspot.ConfigurationError{Field: "workers", Value: *c.Workers, Reason: "must be non-negative"}
	}
	if c.MicroStopSpeedThreshold != nil && *c.MicroStopSpeedThreshold < 0 {
		return &hotspot.ConfigurationError{Field: "microstop_speed_threshold", Value: *c.MicroStopSpeedThreshold, Reason: "must be non-negative"}
	}
	if c.AlertMinClusterSize != nil && *c.AlertMinClusterSize < 1 {
		return &hotspot.ConfigurationError{Field: "alert_min_cluster_size", Value: *c.AlertMinClusterSize, Reason: "must be at least 1"}
	}
	if c.AlertSpeedThreshold != nil && *c.AlertSpeedThreshold < 0 {
		return &hotspot.ConfigurationError{Field: "alert_speed_threshold", Value: *c.AlertSpeedThreshold, Reason: "must be non-negative"}
	}
	if c.SpeedUnit != nil && !units.IsValid(*c.SpeedUnit) {
		return &hotspot.ConfigurationError{Field: "speed_unit", Value: *c.SpeedUnit, Reason: "must be one of " + units.GetValidUnitsString()}
	}
	return nil
}

// GetEps returns the eps value or the default.
func (c *HotspotConfig) GetEps() float64 {
	if c.Eps == nil {
		return hotspot.DefaultDBSCANEps
	}
	return *c.Eps
}

// GetMinPts returns the min_pts value or the default.
func (c *HotspotConfig) GetMinPts() int {
	if c.MinPts == nil {
		return hotspot.DefaultDBSCANMinPts
	}
	return *c.MinPts
}

// GetModelPath returns the model_path value, empty when unset.
func (c *HotspotConfig) GetModelPath() string {
	if c.ModelPath == nil {
		return ""
	}
	return *c.ModelPath
}

// GetWorkers returns the workers value or the default (sequential).
func (c *HotspotConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// GetMicroStopSpeedThreshold returns the microstop_speed_threshold value or the default.
func (c *HotspotConfig) GetMicroStopSpeedThreshold() float64 {
	if c.MicroStopSpeedThreshold == nil {
		return hotspot.DefaultMicroStopThreshold
	}
	return *c.MicroStopSpeedThreshold
}

// GetAlertMinClusterSize returns the alert_min_cluster_size value or the default.
func (c *HotspotConfig) GetAlertMinClusterSize() int {
	if c.AlertMinClusterSize == nil {
		return 10
	}
	return *c.AlertMinClusterSize
}

// GetAlertSpeedFilterEnabled returns the alert_speed_filter_enabled value or the default.
func (c *HotspotConfig) GetAlertSpeedFilterEnabled() bool {
	if c.AlertSpeedFilterEnabled == nil {
		return false
	}
	return *c.AlertSpeedFilterEnabled
}

// GetAlertSpeedThreshold returns the alert_speed_threshold value or the default.
func (c *HotspotConfig) GetAlertSpeedThreshold() float64 {
	if c.AlertSpeedThreshold == nil {
		return hotspot.DefaultMicroStopThreshold
	}
	return *c.AlertSpeedThreshold
}

// GetSpeedUnit returns the speed_unit value or the default (km/h).
func (c *HotspotConfig) GetSpeedUnit() string {
	if c.SpeedUnit == nil || *c.SpeedUnit == "" {
		return units.KPH
	}
	return *c.SpeedUnit
}

// Params resolves the config into core parameters. When model is non-nil its
// eps and min_samples take precedence over the config values.
func (c *HotspotConfig) Params(model *ModelArtifact) hotspot.Params {
	params := hotspot.Params{
		DBSCAN: hotspot.DBSCANParams{
			Eps:    c.GetEps(),
			MinPts: c.GetMinPts(),
		},
		MicroStopThreshold: c.GetMicroStopSpeedThreshold(),
		Alert: hotspot.AlertConfig{
			MinSize:            c.GetAlertMinClusterSize(),
			SpeedFilterEnabled: c.GetAlertSpeedFilterEnabled(),
			SpeedThreshold:     c.GetAlertSpeedThreshold(),
		},
		Workers: c.GetWorkers(),
	}
	if model != nil {
		params.DBSCAN = model.DBSCANParams()
	}
	return params
}
