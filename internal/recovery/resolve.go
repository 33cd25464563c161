package recovery

import (
	"errors"
	"fmt"

	"github.com/banshee-data/trackrecovery/internal/event"
)

// ErrCommitFailed wraps a committer error. The pass stops at the first one.
var ErrCommitFailed = errors.New("track-cluster association commit failed")

// Committer applies an association to the track/cluster object graph. On
// success the track refers to the cluster and the cluster lists the track;
// on failure neither side has changed.
type Committer interface {
	AddTrackClusterAssociation(track event.TrackID, cluster event.ClusterID) error
}

// Association is one committed pair. Step counts commits from 1.
type Association struct {
	Step    int
	Track   event.TrackID
	Cluster event.ClusterID
	Score   float64
}

// Resolve drains the ledger greedily. Each step commits the lowest-scoring
// remaining candidate (ties by track ID, then cluster ID) and removes that
// track's candidates; the cluster stays available to other tracks.
//
// All candidates are sorted once and walked in order, skipping tracks that
// have already been committed. The next unskipped candidate is always the
// minimum over what remains, so the commit sequence matches a full rescan of
// the ledger at every step.
//
// On a commit failure the associations made so far are returned with an
// error wrapping ErrCommitFailed, and the ledger keeps the failed track.
func Resolve(ledger *Ledger, committer Committer) ([]Association, error) {
	ordered := ledger.Sorted()
	associations := make([]Association, 0, ledger.Len())

	for _, c := range ordered {
		if !ledger.Contains(c.Track) {
			continue
		}
		if err := committer.AddTrackClusterAssociation(c.Track, c.Cluster); err != nil {
			return associations, fmt.Errorf("%w: track %d -> cluster %d: %w", ErrCommitFailed, c.Track, c.Cluster, err)
		}
		ledger.Remove(c.Track)
		associations = append(associations, Association{
			Step:    len(associations) + 1,
			Track:   c.Track,
			Cluster: c.Cluster,
			Score:   c.Score,
		})
	}

	return associations, nil
}
