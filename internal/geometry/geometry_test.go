package geometry

import (
	"math"
	"testing"

	"github.com/banshee-data/trackrecovery/internal/config"
	"github.com/banshee-data/trackrecovery/internal/event"
	"github.com/banshee-data/trackrecovery/internal/helix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func buildCluster(t *testing.T, hits ...event.CaloHit) *event.Cluster {
	t.Helper()
	ev := event.New("geometry", 4)
	id, err := ev.AddCluster(event.ClusterParameters{Hits: hits})
	require.NoError(t, err)
	c, err := ev.Cluster(id)
	require.NoError(t, err)
	return c
}

func TestFromTuning(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultGeometry(), FromTuning(config.EmptyTuningConfig()))

	cfg := config.DefaultTuningConfig()
	thickness := 5.0
	cfg.LayerThickness = &thickness
	g := FromTuning(cfg)
	assert.Equal(t, 5.0, g.LayerThickness)
	assert.Equal(t, 1808.0, g.ECalBarrelInnerR)
	assert.Equal(t, 200, g.NLayersSamplingPoints)
}

func TestPseudoLayerAt(t *testing.T) {
	t.Parallel()
	g := DefaultGeometry()

	tests := []struct {
		name string
		pos  r3.Vec
		want event.PseudoLayer
	}{
		{"barrel front face", r3.Vec{X: 1808}, 1},
		{"barrel depth", r3.Vec{X: 1820}, 3},
		{"inside tracker", r3.Vec{X: 1000, Z: 500}, 0},
		{"endcap", r3.Vec{X: 200, Z: -2423}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.PseudoLayerAt(tt.pos))
		})
	}
}

func TestTrackClusterCompatibility(t *testing.T) {
	t.Parallel()
	g := DefaultGeometry()

	assert.InDelta(t, 0, g.TrackClusterCompatibility(10, 10), 1e-12)
	sigma := 0.6 * math.Sqrt(10)
	assert.InDelta(t, 2, g.TrackClusterCompatibility(10+2*sigma, 10), 1e-9)
	assert.InDelta(t, -1, g.TrackClusterCompatibility(10-sigma, 10), 1e-9)
	assert.True(t, math.IsInf(g.TrackClusterCompatibility(5, 0), 1))
}

func TestLayersCrossed(t *testing.T) {
	t.Parallel()
	g := DefaultGeometry()

	along, err := helix.New(r3.Vec{X: 1808}, r3.Vec{Y: 1, Z: 1}, 0, 4)
	require.NoError(t, err)
	n, err := g.LayersCrossed(along, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	outward, err := helix.New(r3.Vec{X: 1808}, r3.Vec{X: 1, Z: 1}, 0, 4)
	require.NoError(t, err)
	n, err = g.LayersCrossed(outward, 0, 60)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = g.LayersCrossed(nil, 0, 10)
	assert.Error(t, err)

	flat, err := helix.New(r3.Vec{X: 1808}, r3.Vec{X: 1}, 1, 4)
	require.NoError(t, err)
	_, err = g.LayersCrossed(flat, 0, 10)
	assert.ErrorIs(t, err, helix.ErrNoLongitudinalMotion)
}

func TestTrackClusterDistance(t *testing.T) {
	t.Parallel()
	g := DefaultGeometry()

	track := &event.Track{StateAtECal: event.TrackState{
		Position: r3.Vec{X: 1808, Z: 100},
		Momentum: r3.Vec{X: 1},
	}}
	cluster := buildCluster(t,
		event.CaloHit{Position: r3.Vec{X: 1850, Y: 30, Z: 100}, PseudoLayer: 8},
		event.CaloHit{Position: r3.Vec{X: 1900, Y: 10, Z: 100}, PseudoLayer: 16},
	)

	tests := []struct {
		name     string
		maxLayer event.PseudoLayer
		cut      float64
		want     float64
		wantErr  bool
	}{
		{"all hits", 20, 100, 10, false},
		{"parallel cut drops far hit", 20, 50, 30, false},
		{"search layer drops deep hit", 10, 100, 30, false},
		{"nothing qualifies", 20, 5, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := g.TrackClusterDistance(track, cluster, tt.maxLayer, tt.cut)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDistanceNotFound)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, d, 1e-9)
		})
	}

	_, err := g.TrackClusterDistance(track, buildCluster(t), 20, 100)
	assert.ErrorIs(t, err, ErrDistanceNotFound)
}

func TestClusterHelixDistance(t *testing.T) {
	t.Parallel()
	g := DefaultGeometry()

	h, err := helix.New(r3.Vec{X: 1808, Z: 100}, r3.Vec{X: 1}, 0, 4)
	require.NoError(t, err)
	cluster := buildCluster(t,
		event.CaloHit{Position: r3.Vec{X: 1815, Y: 3, Z: 100}, PseudoLayer: 2},
		event.CaloHit{Position: r3.Vec{X: 1822, Y: 0, Z: 105}, PseudoLayer: 3},
	)

	closest, mean, err := g.ClusterHelixDistance(cluster, h, 2, 22, 9)
	require.NoError(t, err)
	assert.InDelta(t, 3, closest, 1e-9)
	assert.InDelta(t, 4, mean, 1e-9)

	closest, mean, err = g.ClusterHelixDistance(cluster, h, 2, 22, 1)
	require.NoError(t, err)
	assert.InDelta(t, 3, closest, 1e-9)
	assert.InDelta(t, 3, mean, 1e-9)

	_, _, err = g.ClusterHelixDistance(cluster, h, 10, 30, 9)
	assert.ErrorIs(t, err, ErrDistanceNotFound)

	_, _, err = g.ClusterHelixDistance(cluster, nil, 2, 22, 9)
	assert.Error(t, err)
}
