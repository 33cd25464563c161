package recovery

import (
	"fmt"

	"github.com/banshee-data/trackrecovery/internal/config"
	"github.com/banshee-data/trackrecovery/internal/event"
)

// Config holds the cut values for one association pass.
type Config struct {
	MaxTrackClusterDeltaZ      float64 // mm beyond the cluster |z| a track projection may sit
	MaxAbsoluteTrackClusterChi float64
	MaxLayersCrossed           int
	MaxSearchLayer             event.PseudoLayer // deepest layer used for track-cluster distance
	ParallelDistanceCut        float64           // mm along the track direction

	HelixComparisonNLayers           event.PseudoLayer // window from the cluster inner layer
	HelixComparisonMaxOccupiedLayers int

	MaxTrackClusterDistance        float64 // mm
	MaxClosestHelixClusterDistance float64 // mm
	MaxMeanHelixClusterDistance    float64 // mm
}

// DefaultConfig returns the built-in cut values.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MaxTrackClusterDeltaZ:            cfg.GetMaxTrackClusterDeltaZ(),
		MaxAbsoluteTrackClusterChi:       cfg.GetMaxAbsoluteTrackClusterChi(),
		MaxLayersCrossed:                 cfg.GetMaxLayersCrossed(),
		MaxSearchLayer:                   event.PseudoLayer(cfg.GetMaxSearchLayer()),
		ParallelDistanceCut:              cfg.GetParallelDistanceCut(),
		HelixComparisonNLayers:           event.PseudoLayer(cfg.GetHelixComparisonNLayers()),
		HelixComparisonMaxOccupiedLayers: cfg.GetHelixComparisonMaxOccupiedLayers(),
		MaxTrackClusterDistance:          cfg.GetMaxTrackClusterDistance(),
		MaxClosestHelixClusterDistance:   cfg.GetMaxClosestHelixClusterDistance(),
		MaxMeanHelixClusterDistance:      cfg.GetMaxMeanHelixClusterDistance(),
	}
}

// Validate rejects negative or NaN thresholds.
func (c Config) Validate() error {
	thresholds := []struct {
		name string
		v    float64
	}{
		{"MaxTrackClusterDeltaZ", c.MaxTrackClusterDeltaZ},
		{"MaxAbsoluteTrackClusterChi", c.MaxAbsoluteTrackClusterChi},
		{"ParallelDistanceCut", c.ParallelDistanceCut},
		{"MaxTrackClusterDistance", c.MaxTrackClusterDistance},
		{"MaxClosestHelixClusterDistance", c.MaxClosestHelixClusterDistance},
		{"MaxMeanHelixClusterDistance", c.MaxMeanHelixClusterDistance},
	}
	for _, th := range thresholds {
		if !(th.v >= 0) {
			return fmt.Errorf("%s must be non-negative, got %f", th.name, th.v)
		}
	}
	if c.MaxLayersCrossed < 0 {
		return fmt.Errorf("MaxLayersCrossed must be non-negative, got %d", c.MaxLayersCrossed)
	}
	if c.HelixComparisonMaxOccupiedLayers < 0 {
		return fmt.Errorf("HelixComparisonMaxOccupiedLayers must be non-negative, got %d", c.HelixComparisonMaxOccupiedLayers)
	}
	return nil
}
