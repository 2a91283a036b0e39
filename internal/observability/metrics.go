package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchesTotal        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "plasma_match", Name: "searches_total", Help: "Total donor searches served"})
	MatchesTotal         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "plasma_match", Name: "matches_total", Help: "Total matches returned across searches"})
	ScorerFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "plasma_match", Name: "scorer_fallbacks_total", Help: "Batches scored by the deterministic model because the external scorer was unavailable"})
	DispatchesSent       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "plasma_match", Name: "dispatches_sent_total", Help: "Automatic contact requests recorded and sent"})
	DispatchesSkipped    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "plasma_match", Name: "dispatches_skipped_total", Help: "Dispatch candidates skipped for an existing live ledger entry"})
	DispatchesBlocked    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "plasma_match", Name: "dispatches_blocked_total", Help: "Dispatch batches vetoed by the fraud gate"})
	DonorsAvailable      = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "plasma_match", Name: "donors_available", Help: "Donors currently marked available"})

	SearchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "plasma_match", Name: "search_latency_seconds", Help: "Search latency seconds"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "plasma_match", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plasma_match",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
