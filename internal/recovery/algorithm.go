package recovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/trackrecovery/internal/event"
	"github.com/banshee-data/trackrecovery/internal/monitoring"
	"github.com/banshee-data/trackrecovery/internal/timeutil"
	"github.com/google/uuid"
)

// ErrUpstreamUnavailable wraps a failure to retrieve the current tracks or
// clusters. No work is attempted.
var ErrUpstreamUnavailable = errors.New("track or cluster collection unavailable")

// Source supplies the current tracks and clusters of an event.
type Source interface {
	CurrentTracks() ([]*event.Track, error)
	CurrentClusters() ([]*event.Cluster, error)
}

// PassResult describes one association pass.
type PassResult struct {
	PassID          uuid.UUID
	StartedAt       time.Time
	Duration        time.Duration
	Stats           GenerationStats
	CandidateScores []float64
	Associations    []Association
}

// Algorithm runs track recovery passes with a fixed configuration.
type Algorithm struct {
	config     Config
	predicates Predicates
	metrics    *monitoring.Metrics
	clock      timeutil.Clock
}

// NewAlgorithm validates cfg and returns an Algorithm. metrics may be nil.
func NewAlgorithm(cfg Config, predicates Predicates, metrics *monitoring.Metrics) (*Algorithm, error) {
	if predicates == nil {
		return nil, errors.New("recovery: predicates are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("recovery: invalid config: %w", err)
	}
	return &Algorithm{config: cfg, predicates: predicates, metrics: metrics, clock: timeutil.RealClock{}}, nil
}

// SetClock replaces the clock used to time passes.
func (a *Algorithm) SetClock(c timeutil.Clock) { a.clock = c }

// Config returns the pass configuration.
func (a *Algorithm) Config() Config { return a.config }

// Run performs one pass: retrieve the event's tracks and clusters, build the
// candidate ledger and resolve it through committer. The result is returned
// even when err is non-nil, carrying whatever was committed before the
// failure.
func (a *Algorithm) Run(src Source, committer Committer) (*PassResult, error) {
	result := &PassResult{PassID: uuid.New(), StartedAt: a.clock.Now()}

	err := a.run(src, committer, result)
	result.Duration = a.clock.Since(result.StartedAt)

	status := monitoring.PassStatusOK
	if err != nil {
		status = monitoring.PassStatusFailed
		monitoring.Opsf("[TrackRecovery] pass %s failed after %d commits: %v", result.PassID, len(result.Associations), err)
	} else {
		monitoring.Diagf("[TrackRecovery] pass %s: tracks=%d clusters=%d pairs=%d candidates=%d commits=%d rejected=%v in %s",
			result.PassID, result.Stats.EligibleTracks, result.Stats.EligibleClusters, result.Stats.PairsTested,
			result.Stats.Candidates, len(result.Associations), result.Stats.Rejected, result.Duration)
	}
	a.metrics.ObservePass(status, result.Stats.Candidates, result.Duration)

	return result, err
}

func (a *Algorithm) run(src Source, committer Committer, result *PassResult) error {
	tracks, err := src.CurrentTracks()
	if err != nil {
		return fmt.Errorf("%w: tracks: %w", ErrUpstreamUnavailable, err)
	}
	clusters, err := src.CurrentClusters()
	if err != nil {
		return fmt.Errorf("%w: clusters: %w", ErrUpstreamUnavailable, err)
	}

	gen := Generator{Config: a.config, Predicates: a.predicates, Metrics: a.metrics}
	ledger, stats := gen.Generate(tracks, clusters)
	result.Stats = stats

	sorted := ledger.Sorted()
	result.CandidateScores = make([]float64, len(sorted))
	for i, c := range sorted {
		result.CandidateScores[i] = c.Score
	}

	associations, err := Resolve(ledger, committer)
	result.Associations = associations
	for _, as := range associations {
		a.metrics.ObserveCommit(as.Score)
		if monitoring.TraceEnabled() {
			monitoring.Tracef("[TrackRecovery] commit step=%d track=%d cluster=%d score=%.3f", as.Step, as.Track, as.Cluster, as.Score)
		}
	}
	return err
}
