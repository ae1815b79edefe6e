package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the identity engine.
type Metrics struct {
	AuthAttempts      *prometheus.CounterVec
	CandidateLookups  *prometheus.CounterVec
	MergeSessions     *prometheus.CounterVec
	MergesTotal       *prometheus.CounterVec
	MergeDurationSecs prometheus.Histogram
	ResetCodesIssued  prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AuthAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mariner_auth_attempts_total",
			Help: "Authentication attempts by outcome (authenticated, merge_required, rejected)",
		}, []string{"outcome"}),
		CandidateLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mariner_candidate_lookups_total",
			Help: "Candidate finder lookups by kind and result (ok, error)",
		}, []string{"kind", "result"}),
		MergeSessions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mariner_merge_sessions_total",
			Help: "Merge session lifecycle events (created, expired, consumed)",
		}, []string{"event"}),
		MergesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mariner_merges_total",
			Help: "Account merges by outcome (committed, rolled_back)",
		}, []string{"outcome"}),
		MergeDurationSecs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mariner_merge_duration_seconds",
			Help:    "Wall time of the merge transaction",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		ResetCodesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mariner_reset_codes_issued_total",
			Help: "Password reset codes issued",
		}),
	}
}
