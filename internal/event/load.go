package event

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"
)

// maxEventFileSize caps event files read by LoadFile.
const maxEventFileSize = 64 * 1024 * 1024

// File is the JSON representation of one event. Tracks and clusters take
// handles from their 1-based position in the file, and relationships refer
// to those handles.
type File struct {
	EventID      string              `json:"event_id"`
	BField       float64             `json:"b_field"`
	Tracks       []TrackRecord       `json:"tracks"`
	Clusters     []ClusterRecord     `json:"clusters"`
	Associations []AssociationRecord `json:"associations,omitempty"`
}

// Vec is an [x, y, z] triple.
type Vec [3]float64

func (v Vec) r3() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

// StateRecord is a serialised TrackState.
type StateRecord struct {
	Position Vec `json:"position"`
	Momentum Vec `json:"momentum"`
}

func (s StateRecord) state() TrackState {
	return TrackState{Position: s.Position.r3(), Momentum: s.Momentum.r3()}
}

// TrackRecord is a serialised track.
type TrackRecord struct {
	D0            float64     `json:"d0"`
	Z0            float64     `json:"z0"`
	ChargeSign    int         `json:"charge_sign"`
	Mass          float64     `json:"mass"`
	MomentumAtDca Vec         `json:"momentum_at_dca"`
	StateAtStart  StateRecord `json:"state_at_start"`
	StateAtEnd    StateRecord `json:"state_at_end"`
	StateAtECal   StateRecord `json:"state_at_ecal"`
	ReachesECal   bool        `json:"reaches_ecal"`
	Daughters     []TrackID   `json:"daughters,omitempty"`
	Siblings      []TrackID   `json:"siblings,omitempty"`
}

// HitRecord is a serialised calorimeter hit.
type HitRecord struct {
	Position       Vec         `json:"position"`
	PseudoLayer    PseudoLayer `json:"pseudo_layer"`
	InputEnergy    float64     `json:"input_energy"`
	HadronicEnergy float64     `json:"hadronic_energy"`
}

// ClusterRecord is a serialised cluster.
type ClusterRecord struct {
	Hits     []HitRecord `json:"hits"`
	IsPhoton bool        `json:"is_photon,omitempty"`
}

// AssociationRecord is a track-cluster link that exists before any pass.
type AssociationRecord struct {
	Track   TrackID   `json:"track"`
	Cluster ClusterID `json:"cluster"`
}

// LoadFile reads and builds an event from a JSON file.
func LoadFile(path string) (*Event, error) {
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat event file: %w", err)
	}
	if info.Size() > maxEventFileSize {
		return nil, fmt.Errorf("event file too large: %d bytes (max %d)", info.Size(), maxEventFileSize)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	defer f.Close()

	ev, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return ev, nil
}

// Decode reads one JSON event and builds it.
func Decode(r io.Reader) (*Event, error) {
	var file File
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse event JSON: %w", err)
	}
	return file.Build()
}

// Build constructs an Event from the file contents.
func (f *File) Build() (*Event, error) {
	ev := New(f.EventID, f.BField)

	for i, rec := range f.Tracks {
		if _, err := ev.AddTrack(TrackParameters{
			D0:            rec.D0,
			Z0:            rec.Z0,
			ChargeSign:    rec.ChargeSign,
			Mass:          rec.Mass,
			MomentumAtDca: rec.MomentumAtDca.r3(),
			StateAtStart:  rec.StateAtStart.state(),
			StateAtEnd:    rec.StateAtEnd.state(),
			StateAtECal:   rec.StateAtECal.state(),
			ReachesECal:   rec.ReachesECal,
		}); err != nil {
			return nil, fmt.Errorf("track %d: %w", i+1, err)
		}
	}

	for i, rec := range f.Tracks {
		id := TrackID(i + 1)
		for _, daughter := range rec.Daughters {
			if err := ev.SetParentDaughter(id, daughter); err != nil {
				return nil, fmt.Errorf("track %d daughters: %w", id, err)
			}
		}
		for _, sibling := range rec.Siblings {
			if err := ev.SetSiblings(id, sibling); err != nil {
				return nil, fmt.Errorf("track %d siblings: %w", id, err)
			}
		}
	}

	for i, rec := range f.Clusters {
		hits := make([]CaloHit, 0, len(rec.Hits))
		for _, h := range rec.Hits {
			hits = append(hits, CaloHit{
				Position:       h.Position.r3(),
				PseudoLayer:    h.PseudoLayer,
				InputEnergy:    h.InputEnergy,
				HadronicEnergy: h.HadronicEnergy,
			})
		}
		if _, err := ev.AddCluster(ClusterParameters{Hits: hits, IsPhoton: rec.IsPhoton}); err != nil {
			return nil, fmt.Errorf("cluster %d: %w", i+1, err)
		}
	}

	for _, a := range f.Associations {
		if err := ev.AddTrackClusterAssociation(a.Track, a.Cluster); err != nil {
			return nil, fmt.Errorf("association %d->%d: %w", a.Track, a.Cluster, err)
		}
	}

	return ev, nil
}
