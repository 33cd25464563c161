package event

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEvent = `{
  "event_id": "run7-evt42",
  "b_field": 4.0,
  "tracks": [
    {"charge_sign": 1, "mass": 0.13957, "momentum_at_dca": [3, 0, 1],
     "state_at_ecal": {"position": [1808, 0, 100], "momentum": [3, 0, 1]},
     "reaches_ecal": true, "daughters": [2]},
    {"charge_sign": -1, "momentum_at_dca": [1, 1, 0],
     "state_at_ecal": {"position": [1808, 10, -50], "momentum": [1, 1, -0.2]},
     "reaches_ecal": true}
  ],
  "clusters": [
    {"hits": [{"position": [1810, 0, 120], "pseudo_layer": 3, "hadronic_energy": 3.1}]},
    {"hits": [], "is_photon": true}
  ],
  "associations": [{"track": 2, "cluster": 1}]
}`

func TestDecode(t *testing.T) {
	t.Parallel()

	ev, err := Decode(strings.NewReader(sampleEvent))
	require.NoError(t, err)
	assert.Equal(t, "run7-evt42", ev.ID)
	assert.Equal(t, 2, ev.NumTracks())
	assert.Equal(t, 2, ev.NumClusters())

	parent, err := ev.Track(1)
	require.NoError(t, err)
	assert.Equal(t, []TrackID{2}, parent.Daughters())
	assert.InDelta(t, 100, parent.StateAtECal.Position.Z, 1e-12)

	daughter, err := ev.Track(2)
	require.NoError(t, err)
	got, ok := daughter.AssociatedCluster()
	require.True(t, ok)
	assert.Equal(t, ClusterID(1), got)

	photon, err := ev.Cluster(2)
	require.NoError(t, err)
	assert.True(t, photon.IsPhoton())
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{"tracks": [`},
		{"unknown field", `{"trackz": []}`},
		{"dangling daughter", `{"tracks": [{"daughters": [5]}]}`},
		{"dangling association", `{"associations": [{"track": 1, "cluster": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleEvent), 0o644))

	ev, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, ev.NumTracks())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
