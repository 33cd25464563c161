// Package geometry provides the physical compatibility functions used to
// match tracks to calorimeter clusters: energy-momentum consistency,
// pseudo-layer arithmetic along a helix, and track/helix to cluster distances.
//
// All functions are pure. A function that cannot produce a value for its
// inputs returns an error; callers treat that as a failed cut for the pair.
package geometry

import (
	"errors"
	"math"

	"github.com/banshee-data/trackrecovery/internal/config"
	"github.com/banshee-data/trackrecovery/internal/event"
	"github.com/banshee-data/trackrecovery/internal/helix"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDistanceNotFound is returned when no hit qualifies for a distance
// computation.
var ErrDistanceNotFound = errors.New("geometry: no hit qualifies for distance")

// Geometry describes the calorimeter layout and resolution assumptions.
type Geometry struct {
	ECalBarrelInnerR float64 // mm
	ECalEndcapInnerZ float64 // mm
	LayerThickness   float64 // mm per pseudo-layer

	// HadronicEnergyResolution is the stochastic term a in sigma(E)/E = a/sqrt(E).
	HadronicEnergyResolution float64

	// NLayersSamplingPoints is the number of helix samples used when counting
	// layers crossed.
	NLayersSamplingPoints int
}

// DefaultGeometry returns a barrel/endcap ECal layout with 6 mm layers.
func DefaultGeometry() Geometry {
	return Geometry{
		ECalBarrelInnerR:         1808,
		ECalEndcapInnerZ:         2411,
		LayerThickness:           6,
		HadronicEnergyResolution: 0.6,
		NLayersSamplingPoints:    200,
	}
}

// FromTuning builds a Geometry from the detector fields of a TuningConfig.
func FromTuning(cfg *config.TuningConfig) Geometry {
	g := DefaultGeometry()
	g.ECalBarrelInnerR = cfg.GetECalBarrelInnerR()
	g.ECalEndcapInnerZ = cfg.GetECalEndcapInnerZ()
	g.LayerThickness = cfg.GetLayerThickness()
	g.HadronicEnergyResolution = cfg.GetHadronicEnergyResolution()
	return g
}

// PseudoLayerAt returns the pseudo-layer containing a position. Layer 1 is
// the ECal front face; positions inside it map to 0.
func (g Geometry) PseudoLayerAt(p r3.Vec) event.PseudoLayer {
	r := math.Hypot(p.X, p.Y)
	depth := math.Max((r-g.ECalBarrelInnerR)/g.LayerThickness, (math.Abs(p.Z)-g.ECalEndcapInnerZ)/g.LayerThickness)
	if depth < 0 || math.IsNaN(depth) {
		return 0
	}
	return event.PseudoLayer(1 + depth)
}

// TrackClusterCompatibility returns the chi between a cluster's hadronic
// energy and a track's energy. A non-positive track energy yields +Inf.
func (g Geometry) TrackClusterCompatibility(clusterEnergy, trackEnergy float64) float64 {
	if trackEnergy <= 0 {
		return math.Inf(1)
	}
	sigma := g.HadronicEnergyResolution * math.Sqrt(trackEnergy)
	return (clusterEnergy - trackEnergy) / sigma
}

// LayersCrossed samples the helix between zStart and zEnd and sums the
// absolute pseudo-layer changes between successive samples.
func (g Geometry) LayersCrossed(h *helix.Helix, zStart, zEnd float64) (int, error) {
	if h == nil {
		return 0, errors.New("geometry: nil helix")
	}
	if h.TanLambda() == 0 {
		return 0, helix.ErrNoLongitudinalMotion
	}

	n := g.NLayersSamplingPoints
	if n < 1 {
		n = 1
	}
	step := (zEnd - zStart) / float64(n)

	start, err := h.PointInZ(zStart)
	if err != nil {
		return 0, err
	}
	prev := g.PseudoLayerAt(start)

	crossed := 0
	for i := 1; i <= n; i++ {
		p, err := h.PointInZ(zStart + float64(i)*step)
		if err != nil {
			return 0, err
		}
		layer := g.PseudoLayerAt(p)
		if layer > prev {
			crossed += int(layer - prev)
		} else {
			crossed += int(prev - layer)
		}
		prev = layer
	}
	return crossed, nil
}

// TrackClusterDistance returns the smallest perpendicular distance between
// the line through the track's ECal state and the cluster hits in layers
// up to maxSearchLayer. Hits further than parallelDistanceCut along the
// track direction are ignored.
func (g Geometry) TrackClusterDistance(track *event.Track, cluster *event.Cluster, maxSearchLayer event.PseudoLayer, parallelDistanceCut float64) (float64, error) {
	inner, ok := cluster.InnerPseudoLayer()
	if !ok {
		return 0, ErrDistanceNotFound
	}
	if r3.Norm(track.StateAtECal.Momentum) == 0 {
		return 0, ErrDistanceNotFound
	}

	origin := track.StateAtECal.Position
	dir := r3.Unit(track.StateAtECal.Momentum)

	best := math.Inf(1)
	for _, layer := range cluster.OrderedCaloHits().Layers() {
		if layer < inner || layer > maxSearchLayer {
			continue
		}
		for _, hit := range cluster.HitsInLayer(layer) {
			diff := r3.Sub(hit.Position, origin)
			if math.Abs(r3.Dot(dir, diff)) > parallelDistanceCut {
				continue
			}
			if d := r3.Norm(r3.Cross(dir, diff)); d < best {
				best = d
			}
		}
	}

	if math.IsInf(best, 1) {
		return 0, ErrDistanceNotFound
	}
	return best, nil
}

// ClusterHelixDistance returns the closest and mean distance between the
// helix and cluster hits in layers [startLayer, endLayer], stopping once
// more than maxOccupiedLayers occupied layers have been examined.
func (g Geometry) ClusterHelixDistance(cluster *event.Cluster, h *helix.Helix, startLayer, endLayer event.PseudoLayer, maxOccupiedLayers int) (closest, mean float64, err error) {
	if h == nil {
		return 0, 0, errors.New("geometry: nil helix")
	}

	closest = math.Inf(1)
	sum := 0.0
	nHits := 0
	nOccupied := 0

	for _, layer := range cluster.OrderedCaloHits().Layers() {
		if layer < startLayer {
			continue
		}
		if layer > endLayer {
			break
		}
		nOccupied++
		if nOccupied > maxOccupiedLayers {
			break
		}
		for _, hit := range cluster.HitsInLayer(layer) {
			d := h.DistanceToPoint(hit.Position)
			if d < closest {
				closest = d
			}
			sum += d
			nHits++
		}
	}

	if nHits == 0 {
		return 0, 0, ErrDistanceNotFound
	}
	return closest, sum / float64(nHits), nil
}
