// Package metrics holds the prometheus collectors of the recommender.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	PathOracle   = "oracle"
	PathFallback = "fallback"
)

var (
	OracleRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_oracle_requests_total",
			Help: "Ranking oracle calls by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	OracleLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_oracle_latency_seconds",
			Help:    "Ranking oracle call latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 90},
		},
		[]string{"backend"},
	)

	RankingPath = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_ranking_total",
			Help: "Ranking requests by the path that produced the result (oracle or fallback)",
		},
		[]string{"path"},
	)

	CandidatePoolSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommender_candidate_pool_size",
			Help:    "Number of candidates selected per recommendation request",
			Buckets: []float64{0, 1, 5, 10, 20, 40, 60, 80, 100},
		},
	)

	PrecomputeRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_precompute_runs_total",
			Help: "Precomputation runs by terminal status",
		},
		[]string{"status"},
	)

	PrecomputeBatchFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommender_precompute_batch_fallbacks_total",
			Help: "Precompute batches that fell back to local tag and embedding derivation",
		},
	)
)
