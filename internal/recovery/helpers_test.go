package recovery

import (
	"errors"
	"testing"

	"github.com/banshee-data/trackrecovery/internal/event"
	"github.com/banshee-data/trackrecovery/internal/helix"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

var errNotComputable = errors.New("not computable")

type pair struct {
	track   event.TrackID
	cluster event.ClusterID
}

type helixDistance struct {
	closest, mean float64
}

// stubPredicates returns canned values. Pairs without an entry in distance
// or helix fail that predicate.
type stubPredicates struct {
	chi       float64
	layers    int
	layersErr error
	distance  map[pair]float64
	helix     map[pair]helixDistance
	owners    map[*helix.Helix]event.TrackID
}

func newStub() *stubPredicates {
	return &stubPredicates{
		distance: make(map[pair]float64),
		helix:    make(map[pair]helixDistance),
		owners:   make(map[*helix.Helix]event.TrackID),
	}
}

func (s *stubPredicates) TrackClusterCompatibility(clusterEnergy, trackEnergy float64) float64 {
	return s.chi
}

func (s *stubPredicates) LayersCrossed(h *helix.Helix, zStart, zEnd float64) (int, error) {
	return s.layers, s.layersErr
}

func (s *stubPredicates) TrackClusterDistance(track *event.Track, cluster *event.Cluster, maxSearchLayer event.PseudoLayer, parallelDistanceCut float64) (float64, error) {
	d, ok := s.distance[pair{track.ID, cluster.ID}]
	if !ok {
		return 0, errNotComputable
	}
	return d, nil
}

func (s *stubPredicates) ClusterHelixDistance(cluster *event.Cluster, h *helix.Helix, startLayer, endLayer event.PseudoLayer, maxOccupiedLayers int) (float64, float64, error) {
	d, ok := s.helix[pair{s.owners[h], cluster.ID}]
	if !ok {
		return 0, 0, errNotComputable
	}
	return d.closest, d.mean, nil
}

// fixture is an event plus a stub predicate set wired to its tracks.
type fixture struct {
	t     *testing.T
	ev    *event.Event
	preds *stubPredicates
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{t: t, ev: event.New(t.Name(), 3.5), preds: newStub()}
}

// track adds an eligible track whose ECal projection sits at z.
func (f *fixture) track(z float64) event.TrackID {
	f.t.Helper()
	id, err := f.ev.AddTrack(event.TrackParameters{
		ChargeSign:    1,
		MomentumAtDca: r3.Vec{X: 5, Z: 1},
		StateAtECal: event.TrackState{
			Position: r3.Vec{X: 1808, Z: z},
			Momentum: r3.Vec{X: 5, Z: 1},
		},
		ReachesECal: true,
	})
	require.NoError(f.t, err)
	tr := f.trackByID(id)
	require.NotNil(f.t, tr.HelixAtECal)
	f.preds.owners[tr.HelixAtECal] = id
	return id
}

// cluster adds a cluster with one hit at z in pseudo-layer 3.
func (f *fixture) cluster(z float64) event.ClusterID {
	f.t.Helper()
	id, err := f.ev.AddCluster(event.ClusterParameters{Hits: []event.CaloHit{
		{Position: r3.Vec{X: 1830, Z: z}, PseudoLayer: 3, HadronicEnergy: 5},
	}})
	require.NoError(f.t, err)
	return id
}

func (f *fixture) trackByID(id event.TrackID) *event.Track {
	f.t.Helper()
	tr, err := f.ev.Track(id)
	require.NoError(f.t, err)
	return tr
}

func (f *fixture) clusterByID(id event.ClusterID) *event.Cluster {
	f.t.Helper()
	c, err := f.ev.Cluster(id)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) algorithm(cfg Config) *Algorithm {
	f.t.Helper()
	a, err := NewAlgorithm(cfg, f.preds, nil)
	require.NoError(f.t, err)
	return a
}

func (f *fixture) run() *PassResult {
	f.t.Helper()
	res, err := f.algorithm(DefaultConfig()).Run(f.ev, f.ev)
	require.NoError(f.t, err)
	return res
}
