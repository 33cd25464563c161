package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pass outcomes recorded on the passes counter.
const (
	PassStatusOK     = "ok"
	PassStatusFailed = "failed"
)

// Metrics holds the Prometheus collectors for track recovery passes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	passes       *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	candidates   prometheus.Histogram
	commits      prometheus.Counter
	commitScores prometheus.Histogram
	passDuration prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trackrecovery_passes_total",
			Help: "Total association passes by status",
		}, []string{"status"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trackrecovery_pair_rejections_total",
			Help: "Track-cluster pairs rejected, by cut",
		}, []string{"cut"}),
		candidates: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trackrecovery_candidates_per_pass",
			Help:    "Association candidates generated per pass",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 200, 500},
		}),
		commits: factory.NewCounter(prometheus.CounterOpts{
			Name: "trackrecovery_commits_total",
			Help: "Total track-cluster associations committed",
		}),
		commitScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trackrecovery_commit_score_mm",
			Help:    "Closest-approach score of committed associations",
			Buckets: prometheus.LinearBuckets(0, 10, 16),
		}),
		passDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trackrecovery_pass_duration_seconds",
			Help:    "Association pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16), // 10us to ~330ms
		}),
	}
}

// ObserveRejection counts one pair rejected by the named cut.
func (m *Metrics) ObserveRejection(cut string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(cut).Inc()
}

// ObserveCommit counts one committed association.
func (m *Metrics) ObserveCommit(score float64) {
	if m == nil {
		return
	}
	m.commits.Inc()
	m.commitScores.Observe(score)
}

// ObservePass records the outcome of one pass.
func (m *Metrics) ObservePass(status string, candidates int, d time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(status).Inc()
	m.candidates.Observe(float64(candidates))
	m.passDuration.Observe(d.Seconds())
}
