package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the track recovery cut values and the calorimeter
// geometry they are evaluated against. Every field is optional; the Get*
// accessors fall back to the built-in defaults.
type TuningConfig struct {
	// Track-cluster cuts
	MaxTrackClusterDeltaZ            *float64 `json:"max_track_cluster_delta_z,omitempty" yaml:"max_track_cluster_delta_z,omitempty"`
	MaxAbsoluteTrackClusterChi       *float64 `json:"max_absolute_track_cluster_chi,omitempty" yaml:"max_absolute_track_cluster_chi,omitempty"`
	MaxLayersCrossed                 *int     `json:"max_layers_crossed,omitempty" yaml:"max_layers_crossed,omitempty"`
	MaxSearchLayer                   *int     `json:"max_search_layer,omitempty" yaml:"max_search_layer,omitempty"`
	ParallelDistanceCut              *float64 `json:"parallel_distance_cut,omitempty" yaml:"parallel_distance_cut,omitempty"`
	HelixComparisonNLayers           *int     `json:"helix_comparison_n_layers,omitempty" yaml:"helix_comparison_n_layers,omitempty"`
	HelixComparisonMaxOccupiedLayers *int     `json:"helix_comparison_max_occupied_layers,omitempty" yaml:"helix_comparison_max_occupied_layers,omitempty"`
	MaxTrackClusterDistance          *float64 `json:"max_track_cluster_distance,omitempty" yaml:"max_track_cluster_distance,omitempty"`
	MaxClosestHelixClusterDistance   *float64 `json:"max_closest_helix_cluster_distance,omitempty" yaml:"max_closest_helix_cluster_distance,omitempty"`
	MaxMeanHelixClusterDistance      *float64 `json:"max_mean_helix_cluster_distance,omitempty" yaml:"max_mean_helix_cluster_distance,omitempty"`

	// Calorimeter geometry
	ECalBarrelInnerR         *float64 `json:"ecal_barrel_inner_r,omitempty" yaml:"ecal_barrel_inner_r,omitempty"`
	ECalEndcapInnerZ         *float64 `json:"ecal_endcap_inner_z,omitempty" yaml:"ecal_endcap_inner_z,omitempty"`
	LayerThickness           *float64 `json:"layer_thickness,omitempty" yaml:"layer_thickness,omitempty"`
	HadronicEnergyResolution *float64 `json:"hadronic_energy_resolution,omitempty" yaml:"hadronic_energy_resolution,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	empty := EmptyTuningConfig()
	return &TuningConfig{
		MaxTrackClusterDeltaZ:            ptrFloat64(empty.GetMaxTrackClusterDeltaZ()),
		MaxAbsoluteTrackClusterChi:       ptrFloat64(empty.GetMaxAbsoluteTrackClusterChi()),
		MaxLayersCrossed:                 ptrInt(empty.GetMaxLayersCrossed()),
		MaxSearchLayer:                   ptrInt(empty.GetMaxSearchLayer()),
		ParallelDistanceCut:              ptrFloat64(empty.GetParallelDistanceCut()),
		HelixComparisonNLayers:           ptrInt(empty.GetHelixComparisonNLayers()),
		HelixComparisonMaxOccupiedLayers: ptrInt(empty.GetHelixComparisonMaxOccupiedLayers()),
		MaxTrackClusterDistance:          ptrFloat64(empty.GetMaxTrackClusterDistance()),
		MaxClosestHelixClusterDistance:   ptrFloat64(empty.GetMaxClosestHelixClusterDistance()),
		MaxMeanHelixClusterDistance:      ptrFloat64(empty.GetMaxMeanHelixClusterDistance()),
		ECalBarrelInnerR:                 ptrFloat64(empty.GetECalBarrelInnerR()),
		ECalEndcapInnerZ:                 ptrFloat64(empty.GetECalEndcapInnerZ()),
		LayerThickness:                   ptrFloat64(empty.GetLayerThickness()),
		HadronicEnergyResolution:         ptrFloat64(empty.GetHadronicEnergyResolution()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON or YAML file, chosen by
// extension. Fields omitted from the file keep their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"max_track_cluster_delta_z", c.MaxTrackClusterDeltaZ},
		{"max_absolute_track_cluster_chi", c.MaxAbsoluteTrackClusterChi},
		{"parallel_distance_cut", c.ParallelDistanceCut},
		{"max_track_cluster_distance", c.MaxTrackClusterDistance},
		{"max_closest_helix_cluster_distance", c.MaxClosestHelixClusterDistance},
		{"max_mean_helix_cluster_distance", c.MaxMeanHelixClusterDistance},
		{"ecal_barrel_inner_r", c.ECalBarrelInnerR},
		{"ecal_endcap_inner_z", c.ECalEndcapInnerZ},
	}
	for _, f := range nonNegative {
		if f.v != nil && !(*f.v >= 0) {
			return fmt.Errorf("%s must be non-negative, got %f", f.name, *f.v)
		}
	}

	if c.LayerThickness != nil && !(*c.LayerThickness > 0) {
		return fmt.Errorf("layer_thickness must be positive, got %f", *c.LayerThickness)
	}
	if c.HadronicEnergyResolution != nil && !(*c.HadronicEnergyResolution > 0) {
		return fmt.Errorf("hadronic_energy_resolution must be positive, got %f", *c.HadronicEnergyResolution)
	}

	counts := []struct {
		name string
		v    *int
	}{
		{"max_layers_crossed", c.MaxLayersCrossed},
		{"max_search_layer", c.MaxSearchLayer},
		{"helix_comparison_n_layers", c.HelixComparisonNLayers},
		{"helix_comparison_max_occupied_layers", c.HelixComparisonMaxOccupiedLayers},
	}
	for _, f := range counts {
		if f.v != nil && *f.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", f.name, *f.v)
		}
	}

	return nil
}

// GetMaxTrackClusterDeltaZ returns the max_track_cluster_delta_z value or the default.
func (c *TuningConfig) GetMaxTrackClusterDeltaZ() float64 {
	if c.MaxTrackClusterDeltaZ == nil {
		return 250.0
	}
	return *c.MaxTrackClusterDeltaZ
}

// GetMaxAbsoluteTrackClusterChi returns the max_absolute_track_cluster_chi value or the default.
func (c *TuningConfig) GetMaxAbsoluteTrackClusterChi() float64 {
	if c.MaxAbsoluteTrackClusterChi == nil {
		return 2.5
	}
	return *c.MaxAbsoluteTrackClusterChi
}

// GetMaxLayersCrossed returns the max_layers_crossed value or the default.
func (c *TuningConfig) GetMaxLayersCrossed() int {
	if c.MaxLayersCrossed == nil {
		return 50
	}
	return *c.MaxLayersCrossed
}

// GetMaxSearchLayer returns the max_search_layer value or the default.
func (c *TuningConfig) GetMaxSearchLayer() int {
	if c.MaxSearchLayer == nil {
		return 20
	}
	return *c.MaxSearchLayer
}

// GetParallelDistanceCut returns the parallel_distance_cut value or the default.
func (c *TuningConfig) GetParallelDistanceCut() float64 {
	if c.ParallelDistanceCut == nil {
		return 100.0
	}
	return *c.ParallelDistanceCut
}

// GetHelixComparisonNLayers returns the helix_comparison_n_layers value or the default.
func (c *TuningConfig) GetHelixComparisonNLayers() int {
	if c.HelixComparisonNLayers == nil {
		return 20
	}
	return *c.HelixComparisonNLayers
}

// GetHelixComparisonMaxOccupiedLayers returns the helix_comparison_max_occupied_layers value or the default.
func (c *TuningConfig) GetHelixComparisonMaxOccupiedLayers() int {
	if c.HelixComparisonMaxOccupiedLayers == nil {
		return 9
	}
	return *c.HelixComparisonMaxOccupiedLayers
}

// GetMaxTrackClusterDistance returns the max_track_cluster_distance value or the default.
func (c *TuningConfig) GetMaxTrackClusterDistance() float64 {
	if c.MaxTrackClusterDistance == nil {
		return 100.0
	}
	return *c.MaxTrackClusterDistance
}

// GetMaxClosestHelixClusterDistance returns the max_closest_helix_cluster_distance value or the default.
func (c *TuningConfig) GetMaxClosestHelixClusterDistance() float64 {
	if c.MaxClosestHelixClusterDistance == nil {
		return 100.0
	}
	return *c.MaxClosestHelixClusterDistance
}

// GetMaxMeanHelixClusterDistance returns the max_mean_helix_cluster_distance value or the default.
func (c *TuningConfig) GetMaxMeanHelixClusterDistance() float64 {
	if c.MaxMeanHelixClusterDistance == nil {
		return 150.0
	}
	return *c.MaxMeanHelixClusterDistance
}

// GetECalBarrelInnerR returns the ecal_barrel_inner_r value or the default.
func (c *TuningConfig) GetECalBarrelInnerR() float64 {
	if c.ECalBarrelInnerR == nil {
		return 1808.0
	}
	return *c.ECalBarrelInnerR
}

// GetECalEndcapInnerZ returns the ecal_endcap_inner_z value or the default.
func (c *TuningConfig) GetECalEndcapInnerZ() float64 {
	if c.ECalEndcapInnerZ == nil {
		return 2411.0
	}
	return *c.ECalEndcapInnerZ
}

// GetLayerThickness returns the layer_thickness value or the default.
func (c *TuningConfig) GetLayerThickness() float64 {
	if c.LayerThickness == nil {
		return 6.0
	}
	return *c.LayerThickness
}

// GetHadronicEnergyResolution returns the hadronic_energy_resolution value or the default.
func (c *TuningConfig) GetHadronicEnergyResolution() float64 {
	if c.HadronicEnergyResolution == nil {
		return 0.6
	}
	return *c.HadronicEnergyResolution
}
