package recovery

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/banshee-data/trackrecovery/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func (f *fixture) generate(cfg Config) (*Ledger, GenerationStats) {
	f.t.Helper()
	tracks, err := f.ev.CurrentTracks()
	require.NoError(f.t, err)
	clusters, err := f.ev.CurrentClusters()
	require.NoError(f.t, err)
	g := Generator{Config: cfg, Predicates: f.preds}
	return g.Generate(tracks, clusters)
}

func TestGenerate_SingleCandidate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	tr := f.track(100)
	cl := f.cluster(120)
	f.preds.distance[pair{tr, cl}] = 40

	ledger, stats := f.generate(DefaultConfig())
	assert.Equal(t, []Candidate{{Track: tr, Cluster: cl, Score: 40}}, ledger.Sorted())
	assert.Equal(t, 1, stats.EligibleTracks)
	assert.Equal(t, 1, stats.EligibleClusters)
	assert.Equal(t, 1, stats.PairsTested)
	assert.Equal(t, 1, stats.Candidates)
	assert.Empty(t, stats.Rejected)
}

func TestGenerate_DeltaZ(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		zTrack   float64
		zCluster float64
		accepted bool
	}{
		{"same side", 100, 120, true},
		{"opposite side", 100, -120, false},
		{"opposite side negative track", -100, 120, false},
		{"beyond delta z", 400, 120, false},
		{"at delta z limit", 370, 120, true},
		{"negative same side", -300, -120, true},
		{"track at z zero", 0, 120, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tr := f.track(tt.zTrack)
			cl := f.cluster(tt.zCluster)
			f.preds.distance[pair{tr, cl}] = 10

			ledger, stats := f.generate(DefaultConfig())
			if tt.accepted {
				assert.Equal(t, 1, ledger.NumCandidates())
				return
			}
			assert.Zero(t, ledger.NumCandidates())
			assert.Equal(t, 1, stats.Rejected[CutDeltaZ])
		})
	}
}

func TestGenerate_Chi(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		chi      float64
		accepted bool
	}{
		{"compatible", 0.5, true},
		{"at limit", 2.5, true},
		{"negative at limit", -2.5, true},
		{"too much cluster energy", 2.6, false},
		{"too little cluster energy", -3, false},
		{"not a number", math.NaN(), false},
		{"infinite", math.Inf(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tr := f.track(100)
			cl := f.cluster(120)
			f.preds.distance[pair{tr, cl}] = 10
			f.preds.chi = tt.chi

			ledger, stats := f.generate(DefaultConfig())
			if tt.accepted {
				assert.Equal(t, 1, ledger.NumCandidates())
				return
			}
			assert.Zero(t, ledger.NumCandidates())
			assert.Equal(t, 1, stats.Rejected[CutChi])
		})
	}
}

func TestGenerate_LayersCrossed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		layers   int
		err      error
		accepted bool
	}{
		{"few layers", 3, nil, true},
		{"at limit", 50, nil, true},
		{"too many layers", 51, nil, false},
		{"not computable", 0, errNotComputable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tr := f.track(100)
			cl := f.cluster(120)
			f.preds.distance[pair{tr, cl}] = 10
			f.preds.layers = tt.layers
			f.preds.layersErr = tt.err

			ledger, stats := f.generate(DefaultConfig())
			if tt.accepted {
				assert.Equal(t, 1, ledger.NumCandidates())
				return
			}
			assert.Zero(t, ledger.NumCandidates())
			assert.Equal(t, 1, stats.Rejected[CutLayersCrossed])
		})
	}
}

func TestGenerate_TrackWithoutHelix(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	// No transverse momentum at the ECal, so no helix can be fitted.
	id, err := f.ev.AddTrack(event.TrackParameters{
		ChargeSign:  -1,
		StateAtECal: event.TrackState{Position: r3.Vec{X: 100, Z: 2411}, Momentum: r3.Vec{Z: 3}},
		ReachesECal: true,
	})
	require.NoError(t, err)
	require.Nil(t, f.trackByID(id).HelixAtECal)
	cl := f.cluster(2420)
	f.preds.distance[pair{id, cl}] = 1

	ledger, stats := f.generate(DefaultConfig())
	assert.Zero(t, ledger.NumCandidates())
	assert.Equal(t, 1, stats.Rejected[CutLayersCrossed])
}

func TestGenerate_Distance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		distance  *float64
		helix     *helixDistance
		wantScore float64
		accepted  bool
	}{
		{"track distance only", ptr(40), nil, 40, true},
		{"track distance at limit", ptr(100), nil, 100, true},
		{"track distance too far, no helix", ptr(100.5), nil, 0, false},
		{"far track, close helix", ptr(150), &helixDistance{50, 100}, 50, true},
		{"far track, helix mean too far", ptr(150), &helixDistance{50, 151}, 0, false},
		{"far track, helix closest too far", ptr(150), &helixDistance{101, 100}, 0, false},
		{"helix only", nil, &helixDistance{30, 40}, 30, true},
		{"nothing computable", nil, nil, 0, false},
		{"close track, loose helix", ptr(20), &helixDistance{10, 500}, 10, true},
		{"close helix, closer track", ptr(5), &helixDistance{10, 12}, 5, true},
		{"not a number", ptr(math.NaN()), &helixDistance{60, 70}, 60, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tr := f.track(100)
			cl := f.cluster(120)
			if tt.distance != nil {
				f.preds.distance[pair{tr, cl}] = *tt.distance
			}
			if tt.helix != nil {
				f.preds.helix[pair{tr, cl}] = *tt.helix
			}

			ledger, stats := f.generate(DefaultConfig())
			if !tt.accepted {
				assert.Zero(t, ledger.NumCandidates())
				assert.Equal(t, 1, stats.Rejected[CutDistance])
				return
			}
			require.Equal(t, 1, ledger.NumCandidates())
			assert.Equal(t, tt.wantScore, ledger.Sorted()[0].Score)
		})
	}
}

func TestGenerate_Eligibility(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	associated := f.track(100)
	eligible := f.track(100)
	parent := f.track(100)
	daughter := f.track(100)
	require.NoError(t, f.ev.SetParentDaughter(parent, daughter))
	outside, err := f.ev.AddTrack(event.TrackParameters{
		StateAtECal: event.TrackState{Position: r3.Vec{X: 1808, Z: 100}, Momentum: r3.Vec{X: 1}},
	})
	require.NoError(t, err)

	taken := f.cluster(120)
	open := f.cluster(120)
	photon, err := f.ev.AddCluster(event.ClusterParameters{
		Hits:     []event.CaloHit{{Position: r3.Vec{X: 1830, Z: 120}, PseudoLayer: 3}},
		IsPhoton: true,
	})
	require.NoError(t, err)
	empty, err := f.ev.AddCluster(event.ClusterParameters{})
	require.NoError(t, err)

	require.NoError(t, f.ev.AddTrackClusterAssociation(associated, taken))

	for _, tr := range []event.TrackID{associated, eligible, parent, daughter, outside} {
		for _, cl := range []event.ClusterID{taken, open, photon, empty} {
			f.preds.distance[pair{tr, cl}] = 1
		}
	}

	ledger, stats := f.generate(DefaultConfig())
	assert.Equal(t, 2, stats.EligibleTracks)
	assert.Equal(t, 1, stats.EligibleClusters)
	assert.Equal(t, 2, stats.PairsTested)
	assert.Equal(t, []Candidate{
		{Track: eligible, Cluster: open, Score: 1},
		{Track: daughter, Cluster: open, Score: 1},
	}, ledger.Sorted())
}

func TestGenerate_RejectionStats(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	near := f.track(100)
	f.track(-100)
	far := f.track(100)
	cl := f.cluster(120)
	f.preds.distance[pair{near, cl}] = 12
	f.preds.distance[pair{far, cl}] = 500

	ledger, stats := f.generate(DefaultConfig())
	assert.Equal(t, 1, ledger.NumCandidates())
	assert.Equal(t, 3, stats.PairsTested)
	assert.Equal(t, map[string]int{CutDeltaZ: 1, CutDistance: 1}, stats.Rejected)
}

func TestGenerate_OrderIndependent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var trackIDs []event.TrackID
	for _, z := range []float64{100, 150, -100, 200, 120, 90} {
		trackIDs = append(trackIDs, f.track(z))
	}
	var clusterIDs []event.ClusterID
	for _, z := range []float64{120, 130, -120, 180, 110} {
		clusterIDs = append(clusterIDs, f.cluster(z))
	}
	// Mixed scores with ties, helix-only pairs and pairs that fail the
	// distance cut.
	for i, tr := range trackIDs {
		for j, cl := range clusterIDs {
			switch (i + 2*j) % 4 {
			case 0:
				f.preds.distance[pair{tr, cl}] = float64(10 * (1 + (i+j)%3))
			case 1:
				f.preds.helix[pair{tr, cl}] = helixDistance{float64(5 + i), float64(20 + j)}
			case 2:
				f.preds.distance[pair{tr, cl}] = 500
			}
		}
	}

	tracks, err := f.ev.CurrentTracks()
	require.NoError(t, err)
	clusters, err := f.ev.CurrentClusters()
	require.NoError(t, err)
	g := Generator{Config: DefaultConfig(), Predicates: f.preds}

	want, wantStats := g.Generate(tracks, clusters)
	require.NotZero(t, want.NumCandidates())

	type ordering struct {
		name     string
		tracks   []*event.Track
		clusters []*event.Cluster
	}
	reversed := ordering{"reversed", slices.Clone(tracks), slices.Clone(clusters)}
	slices.Reverse(reversed.tracks)
	slices.Reverse(reversed.clusters)
	orderings := []ordering{reversed}

	rng := rand.New(rand.NewPCG(7, 11))
	for i := range 5 {
		o := ordering{fmt.Sprintf("shuffle %d", i), slices.Clone(tracks), slices.Clone(clusters)}
		rng.Shuffle(len(o.tracks), func(a, b int) { o.tracks[a], o.tracks[b] = o.tracks[b], o.tracks[a] })
		rng.Shuffle(len(o.clusters), func(a, b int) { o.clusters[a], o.clusters[b] = o.clusters[b], o.clusters[a] })
		orderings = append(orderings, o)
	}

	for _, o := range orderings {
		got, gotStats := g.Generate(o.tracks, o.clusters)
		assert.Equal(t, want.Sorted(), got.Sorted(), o.name)
		assert.Equal(t, wantStats, gotStats, o.name)
	}
}

func ptr(v float64) *float64 { return &v }
