package event

import (
	"math"
	"sort"

	"github.com/banshee-data/trackrecovery/internal/helix"
	"gonum.org/v1/gonum/spatial/r3"
)

// TrackID is a stable handle to a track within one event.
type TrackID int64

// ClusterID is a stable handle to a cluster within one event.
type ClusterID int64

// PseudoLayer is a discretised calorimeter depth coordinate.
type PseudoLayer uint32

// TrackState is a position and momentum pair (mm, GeV).
type TrackState struct {
	Position r3.Vec
	Momentum r3.Vec
}

// Track is a reconstructed charged-particle track.
type Track struct {
	ID TrackID

	D0         float64 // 2D impact parameter wrt (0,0), mm
	Z0         float64 // z at the 2D distance of closest approach, mm
	ChargeSign int
	Mass       float64 // GeV

	MomentumAtDca r3.Vec
	EnergyAtDca   float64

	StateAtStart TrackState
	StateAtEnd   TrackState
	StateAtECal  TrackState // possibly projected
	ReachesECal  bool

	// HelixAtECal is the helix fitted to StateAtECal, nil when no fit exists.
	HelixAtECal *helix.Helix

	parents   []TrackID
	siblings  []TrackID
	daughters []TrackID

	associatedCluster    ClusterID
	hasAssociatedCluster bool
}

// Parents returns the parent track handles.
func (t *Track) Parents() []TrackID { return append([]TrackID(nil), t.parents...) }

// Siblings returns the sibling track handles.
func (t *Track) Siblings() []TrackID { return append([]TrackID(nil), t.siblings...) }

// Daughters returns the daughter track handles.
func (t *Track) Daughters() []TrackID { return append([]TrackID(nil), t.daughters...) }

// HasDaughters reports whether any daughter tracks are linked.
func (t *Track) HasDaughters() bool { return len(t.daughters) > 0 }

// HasAssociatedCluster reports whether the track is linked to a cluster.
func (t *Track) HasAssociatedCluster() bool { return t.hasAssociatedCluster }

// AssociatedCluster returns the associated cluster handle, if any.
func (t *Track) AssociatedCluster() (ClusterID, bool) {
	return t.associatedCluster, t.hasAssociatedCluster
}

// MomentumMagnitudeAtDca returns |p| at the distance of closest approach.
func (t *Track) MomentumMagnitudeAtDca() float64 { return r3.Norm(t.MomentumAtDca) }

// CaloHit is a single calorimeter cell measurement.
type CaloHit struct {
	Position       r3.Vec
	PseudoLayer    PseudoLayer
	InputEnergy    float64
	HadronicEnergy float64
}

// OrderedCaloHitList groups hits by pseudo-layer.
type OrderedCaloHitList map[PseudoLayer][]CaloHit

// Layers returns the occupied pseudo-layers in ascending order.
func (l OrderedCaloHitList) Layers() []PseudoLayer {
	layers := make([]PseudoLayer, 0, len(l))
	for layer, hits := range l {
		if len(hits) > 0 {
			layers = append(layers, layer)
		}
	}
	sort.Slice(layers, func(i, j int) bool { return layers[i] < layers[j] })
	return layers
}

// Cluster is a group of calorimeter hits.
type Cluster struct {
	ID ClusterID

	hits     OrderedCaloHitList
	nHits    int
	isPhoton bool

	associatedTracks []TrackID
}

// NCaloHits returns the number of hits in the cluster.
func (c *Cluster) NCaloHits() int { return c.nHits }

// OrderedCaloHits returns the hits grouped by pseudo-layer. The returned
// map must not be modified.
func (c *Cluster) OrderedCaloHits() OrderedCaloHitList { return c.hits }

// HitsInLayer returns the hits in one pseudo-layer.
func (c *Cluster) HitsInLayer(layer PseudoLayer) []CaloHit { return c.hits[layer] }

// InnerPseudoLayer returns the smallest occupied pseudo-layer, or 0 with
// false for an empty cluster.
func (c *Cluster) InnerPseudoLayer() (PseudoLayer, bool) {
	first := true
	var inner PseudoLayer
	for layer, hits := range c.hits {
		if len(hits) == 0 {
			continue
		}
		if first || layer < inner {
			inner = layer
			first = false
		}
	}
	return inner, !first
}

// Centroid returns the unweighted mean hit position in a pseudo-layer.
func (c *Cluster) Centroid(layer PseudoLayer) (r3.Vec, bool) {
	hits := c.hits[layer]
	if len(hits) == 0 {
		return r3.Vec{}, false
	}
	var sum r3.Vec
	for _, hit := range hits {
		sum = r3.Add(sum, hit.Position)
	}
	return r3.Scale(1/float64(len(hits)), sum), true
}

// HadronicEnergy returns the summed hadronic energy of all hits.
func (c *Cluster) HadronicEnergy() float64 {
	total := 0.0
	for _, hits := range c.hits {
		for _, hit := range hits {
			total += hit.HadronicEnergy
		}
	}
	return total
}

// IsPhoton reports whether the cluster has been identified as a photon.
func (c *Cluster) IsPhoton() bool { return c.isPhoton }

// SetPhoton sets the photon classification flag.
func (c *Cluster) SetPhoton(isPhoton bool) { c.isPhoton = isPhoton }

// AssociatedTracks returns the tracks linked to the cluster in link order.
func (c *Cluster) AssociatedTracks() []TrackID {
	return append([]TrackID(nil), c.associatedTracks...)
}

// HasAssociatedTracks reports whether any track is linked to the cluster.
func (c *Cluster) HasAssociatedTracks() bool { return len(c.associatedTracks) > 0 }

// energyFromMomentum returns sqrt(p^2 + m^2).
func energyFromMomentum(p r3.Vec, mass float64) float64 {
	return math.Sqrt(r3.Norm2(p) + mass*mass)
}
