package event

import (
	"errors"
	"fmt"

	"github.com/banshee-data/trackrecovery/internal/helix"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrEventReset             = errors.New("event has been reset")
	ErrTrackNotFound          = errors.New("track not found")
	ErrClusterNotFound        = errors.New("cluster not found")
	ErrTrackAlreadyAssociated = errors.New("track already associated with a cluster")
	ErrInvalidRelationship    = errors.New("invalid track relationship")
)

// TrackParameters describes a track to add to an event.
type TrackParameters struct {
	D0            float64
	Z0            float64
	ChargeSign    int
	Mass          float64
	MomentumAtDca r3.Vec
	StateAtStart  TrackState
	StateAtEnd    TrackState
	StateAtECal   TrackState
	ReachesECal   bool
}

// ClusterParameters describes a cluster to add to an event.
type ClusterParameters struct {
	Hits     []CaloHit
	IsPhoton bool
}

// Event is the arena holding every track and cluster of one detector event.
// It is not safe for concurrent use; a single pass owns it at a time.
type Event struct {
	ID     string
	BField float64 // tesla, along z

	tracks       map[TrackID]*Track
	trackOrder   []TrackID
	clusters     map[ClusterID]*Cluster
	clusterOrder []ClusterID

	reset bool
}

// New creates an empty event.
func New(id string, bField float64) *Event {
	return &Event{
		ID:       id,
		BField:   bField,
		tracks:   make(map[TrackID]*Track),
		clusters: make(map[ClusterID]*Cluster),
	}
}

// AddTrack creates a track and returns its handle. The helix at the ECal is
// fitted from StateAtECal when the track reaches the calorimeter; a state
// without transverse momentum leaves the track without a helix.
func (e *Event) AddTrack(p TrackParameters) (TrackID, error) {
	if e.reset {
		return 0, ErrEventReset
	}
	if p.ChargeSign < -1 || p.ChargeSign > 1 {
		return 0, fmt.Errorf("add track: invalid charge sign %d", p.ChargeSign)
	}

	id := TrackID(len(e.trackOrder) + 1)
	track := &Track{
		ID:            id,
		D0:            p.D0,
		Z0:            p.Z0,
		ChargeSign:    p.ChargeSign,
		Mass:          p.Mass,
		MomentumAtDca: p.MomentumAtDca,
		EnergyAtDca:   energyFromMomentum(p.MomentumAtDca, p.Mass),
		StateAtStart:  p.StateAtStart,
		StateAtEnd:    p.StateAtEnd,
		StateAtECal:   p.StateAtECal,
		ReachesECal:   p.ReachesECal,
	}

	if p.ReachesECal {
		h, err := helix.New(p.StateAtECal.Position, p.StateAtECal.Momentum, p.ChargeSign, e.BField)
		if err == nil {
			track.HelixAtECal = h
		}
	}

	e.tracks[id] = track
	e.trackOrder = append(e.trackOrder, id)
	return id, nil
}

// AddCluster creates a cluster and returns its handle.
func (e *Event) AddCluster(p ClusterParameters) (ClusterID, error) {
	if e.reset {
		return 0, ErrEventReset
	}

	id := ClusterID(len(e.clusterOrder) + 1)
	cluster := &Cluster{
		ID:       id,
		hits:     make(OrderedCaloHitList),
		isPhoton: p.IsPhoton,
	}
	for _, hit := range p.Hits {
		cluster.hits[hit.PseudoLayer] = append(cluster.hits[hit.PseudoLayer], hit)
		cluster.nHits++
	}

	e.clusters[id] = cluster
	e.clusterOrder = append(e.clusterOrder, id)
	return id, nil
}

// SetParentDaughter links parent and daughter tracks in both directions.
func (e *Event) SetParentDaughter(parent, daughter TrackID) error {
	if parent == daughter {
		return fmt.Errorf("%w: track %d cannot be its own parent", ErrInvalidRelationship, parent)
	}
	p, err := e.Track(parent)
	if err != nil {
		return err
	}
	d, err := e.Track(daughter)
	if err != nil {
		return err
	}
	p.daughters = appendUnique(p.daughters, daughter)
	d.parents = appendUnique(d.parents, parent)
	return nil
}

// SetSiblings links two tracks as siblings in both directions.
func (e *Event) SetSiblings(a, b TrackID) error {
	if a == b {
		return fmt.Errorf("%w: track %d cannot be its own sibling", ErrInvalidRelationship, a)
	}
	ta, err := e.Track(a)
	if err != nil {
		return err
	}
	tb, err := e.Track(b)
	if err != nil {
		return err
	}
	ta.siblings = appendUnique(ta.siblings, b)
	tb.siblings = appendUnique(tb.siblings, a)
	return nil
}

// Track returns the track for a handle.
func (e *Event) Track(id TrackID) (*Track, error) {
	if e.reset {
		return nil, ErrEventReset
	}
	t, ok := e.tracks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	return t, nil
}

// Cluster returns the cluster for a handle.
func (e *Event) Cluster(id ClusterID) (*Cluster, error) {
	if e.reset {
		return nil, ErrEventReset
	}
	c, ok := e.clusters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrClusterNotFound, id)
	}
	return c, nil
}

// CurrentTracks returns every track in handle order.
func (e *Event) CurrentTracks() ([]*Track, error) {
	if e.reset {
		return nil, ErrEventReset
	}
	tracks := make([]*Track, 0, len(e.trackOrder))
	for _, id := range e.trackOrder {
		tracks = append(tracks, e.tracks[id])
	}
	return tracks, nil
}

// CurrentClusters returns every cluster in handle order.
func (e *Event) CurrentClusters() ([]*Cluster, error) {
	if e.reset {
		return nil, ErrEventReset
	}
	clusters := make([]*Cluster, 0, len(e.clusterOrder))
	for _, id := range e.clusterOrder {
		clusters = append(clusters, e.clusters[id])
	}
	return clusters, nil
}

// AddTrackClusterAssociation links a track to a cluster. The track records
// the cluster and the cluster appends the track. Every check runs before
// either side is mutated, so a failed call changes nothing.
func (e *Event) AddTrackClusterAssociation(trackID TrackID, clusterID ClusterID) error {
	track, err := e.Track(trackID)
	if err != nil {
		return err
	}
	cluster, err := e.Cluster(clusterID)
	if err != nil {
		return err
	}
	if track.hasAssociatedCluster {
		return fmt.Errorf("%w: track %d -> cluster %d", ErrTrackAlreadyAssociated, trackID, track.associatedCluster)
	}

	track.associatedCluster = clusterID
	track.hasAssociatedCluster = true
	cluster.associatedTracks = append(cluster.associatedTracks, trackID)
	return nil
}

// NumTracks returns the number of tracks in the event.
func (e *Event) NumTracks() int { return len(e.trackOrder) }

// NumClusters returns the number of clusters in the event.
func (e *Event) NumClusters() int { return len(e.clusterOrder) }

// Reset ends the event. Every later lookup fails with ErrEventReset.
func (e *Event) Reset() {
	e.reset = true
	e.tracks = nil
	e.clusters = nil
	e.trackOrder = nil
	e.clusterOrder = nil
}

func appendUnique(ids []TrackID, id TrackID) []TrackID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
