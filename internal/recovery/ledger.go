package recovery

import (
	"sort"

	"github.com/banshee-data/trackrecovery/internal/event"
)

// Candidate is a (track, cluster) pair that survived every cut, scored by
// its closest approach in mm.
type Candidate struct {
	Track   event.TrackID
	Cluster event.ClusterID
	Score   float64
}

// candidateLess is the total order used for greedy selection: score, then
// track ID, then cluster ID.
func candidateLess(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if a.Track != b.Track {
		return a.Track < b.Track
	}
	return a.Cluster < b.Cluster
}

// Ledger maps each track to its surviving candidates for one pass.
type Ledger struct {
	entries map[event.TrackID][]Candidate
	n       int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[event.TrackID][]Candidate)}
}

// Add records a candidate under its track.
func (l *Ledger) Add(c Candidate) {
	l.entries[c.Track] = append(l.entries[c.Track], c)
	l.n++
}

// Remove drops a track and all of its candidates. It reports whether the
// track was present.
func (l *Ledger) Remove(track event.TrackID) bool {
	candidates, ok := l.entries[track]
	if !ok {
		return false
	}
	l.n -= len(candidates)
	delete(l.entries, track)
	return true
}

// Contains reports whether the track still has candidates.
func (l *Ledger) Contains(track event.TrackID) bool {
	_, ok := l.entries[track]
	return ok
}

// Len returns the number of tracks with candidates.
func (l *Ledger) Len() int { return len(l.entries) }

// NumCandidates returns the total number of candidates.
func (l *Ledger) NumCandidates() int { return l.n }

// Tracks returns the tracks with candidates in ascending ID order.
func (l *Ledger) Tracks() []event.TrackID {
	tracks := make([]event.TrackID, 0, len(l.entries))
	for id := range l.entries {
		tracks = append(tracks, id)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i] < tracks[j] })
	return tracks
}

// Candidates returns a track's candidates in selection order.
func (l *Ledger) Candidates(track event.TrackID) []Candidate {
	out := append([]Candidate(nil), l.entries[track]...)
	sort.Slice(out, func(i, j int) bool { return candidateLess(out[i], out[j]) })
	return out
}

// Sorted returns every candidate in selection order.
func (l *Ledger) Sorted() []Candidate {
	out := make([]Candidate, 0, l.n)
	for _, candidates := range l.entries {
		out = append(out, candidates...)
	}
	sort.Slice(out, func(i, j int) bool { return candidateLess(out[i], out[j]) })
	return out
}

// Best returns the candidate the greedy resolver would commit next.
func (l *Ledger) Best() (Candidate, bool) {
	var best Candidate
	found := false
	for _, candidates := range l.entries {
		for _, c := range candidates {
			if !found || candidateLess(c, best) {
				best = c
				found = true
			}
		}
	}
	return best, found
}
