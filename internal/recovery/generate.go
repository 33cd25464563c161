package recovery

import (
	"math"

	"github.com/banshee-data/trackrecovery/internal/event"
	"github.com/banshee-data/trackrecovery/internal/helix"
	"github.com/banshee-data/trackrecovery/internal/monitoring"
)

// Predicates are the physical compatibility functions the cut cascade
// evaluates. Implementations must be pure. An error means the value cannot
// be computed for the inputs and fails only the cut that asked for it.
type Predicates interface {
	TrackClusterCompatibility(clusterEnergy, trackEnergy float64) float64
	LayersCrossed(h *helix.Helix, zStart, zEnd float64) (int, error)
	TrackClusterDistance(track *event.Track, cluster *event.Cluster, maxSearchLayer event.PseudoLayer, parallelDistanceCut float64) (float64, error)
	ClusterHelixDistance(cluster *event.Cluster, h *helix.Helix, startLayer, endLayer event.PseudoLayer, maxOccupiedLayers int) (closest, mean float64, err error)
}

// Cut names, used as statistics keys and metric labels.
const (
	CutDeltaZ        = "delta_z"
	CutChi           = "chi"
	CutLayersCrossed = "layers_crossed"
	CutDistance      = "distance"
)

// GenerationStats summarises one candidate generation.
type GenerationStats struct {
	EligibleTracks   int
	EligibleClusters int
	PairsTested      int
	Candidates       int
	Rejected         map[string]int
}

// Generator builds the candidate ledger for a pass.
type Generator struct {
	Config     Config
	Predicates Predicates
	Metrics    *monitoring.Metrics
}

// clusterInfo caches the per-cluster quantities every pair needs.
type clusterInfo struct {
	cluster    *event.Cluster
	innerLayer event.PseudoLayer
	z          float64
	energy     float64
}

// eligibleTrack reports whether a track may take part in a pass: no cluster
// yet, reaches the ECal, and no daughters.
func eligibleTrack(t *event.Track) bool {
	return !t.HasAssociatedCluster() && t.ReachesECal && !t.HasDaughters()
}

// eligibleCluster reports whether a cluster may take part in a pass: at
// least one hit, no tracks yet, and not a photon.
func eligibleCluster(c *event.Cluster) bool {
	return c.NCaloHits() > 0 && !c.HasAssociatedTracks() && !c.IsPhoton()
}

// Generate runs the cut cascade over every eligible pair. Tracks and
// clusters are visited in slice order; the ledger content does not depend
// on that order.
func (g *Generator) Generate(tracks []*event.Track, clusters []*event.Cluster) (*Ledger, GenerationStats) {
	stats := GenerationStats{Rejected: make(map[string]int)}
	ledger := NewLedger()

	infos := make([]clusterInfo, 0, len(clusters))
	for _, c := range clusters {
		if !eligibleCluster(c) {
			continue
		}
		inner, ok := c.InnerPseudoLayer()
		if !ok {
			continue
		}
		centroid, ok := c.Centroid(inner)
		if !ok {
			continue
		}
		infos = append(infos, clusterInfo{
			cluster:    c,
			innerLayer: inner,
			z:          centroid.Z,
			energy:     c.HadronicEnergy(),
		})
	}
	stats.EligibleClusters = len(infos)

	for _, t := range tracks {
		if !eligibleTrack(t) {
			continue
		}
		stats.EligibleTracks++

		for i := range infos {
			stats.PairsTested++
			score, cut := g.evaluate(t, &infos[i])
			if cut != "" {
				stats.Rejected[cut]++
				g.Metrics.ObserveRejection(cut)
				continue
			}
			ledger.Add(Candidate{Track: t.ID, Cluster: infos[i].cluster.ID, Score: score})
			if monitoring.TraceEnabled() {
				monitoring.Tracef("[TrackRecovery] candidate track=%d cluster=%d score=%.3f p=%.3f",
					t.ID, infos[i].cluster.ID, score, t.MomentumMagnitudeAtDca())
			}
		}
	}

	stats.Candidates = ledger.NumCandidates()
	return ledger, stats
}

// evaluate applies the cut cascade to one pair. It returns the candidate
// score, or the name of the first cut that rejected the pair.
func (g *Generator) evaluate(t *event.Track, ci *clusterInfo) (float64, string) {
	cfg := g.Config
	zTrack := t.StateAtECal.Position.Z

	if math.Abs(zTrack) > math.Abs(ci.z)+cfg.MaxTrackClusterDeltaZ || zTrack*ci.z < 0 {
		return 0, CutDeltaZ
	}

	chi := g.Predicates.TrackClusterCompatibility(ci.energy, t.EnergyAtDca)
	if !(math.Abs(chi) <= cfg.MaxAbsoluteTrackClusterChi) {
		return 0, CutChi
	}

	h := t.HelixAtECal
	if h == nil {
		return 0, CutLayersCrossed
	}
	nCrossed, err := g.Predicates.LayersCrossed(h, zTrack, ci.z)
	if err != nil || nCrossed > cfg.MaxLayersCrossed {
		return 0, CutLayersCrossed
	}

	trackClusterDistance, err := g.Predicates.TrackClusterDistance(t, ci.cluster, cfg.MaxSearchLayer, cfg.ParallelDistanceCut)
	if err != nil || math.IsNaN(trackClusterDistance) {
		trackClusterDistance = math.Inf(1)
	}

	closest, mean, err := g.Predicates.ClusterHelixDistance(ci.cluster, h, ci.innerLayer,
		ci.innerLayer+cfg.HelixComparisonNLayers, cfg.HelixComparisonMaxOccupiedLayers)
	if err != nil || math.IsNaN(closest) || math.IsNaN(mean) {
		closest, mean = math.Inf(1), math.Inf(1)
	}

	if trackClusterDistance > cfg.MaxTrackClusterDistance &&
		(closest > cfg.MaxClosestHelixClusterDistance || mean > cfg.MaxMeanHelixClusterDistance) {
		return 0, CutDistance
	}

	return math.Min(trackClusterDistance, closest), ""
}
