package metrics

import "github.com/prometheus/client_golang/prometheus"

// Engine Prometheus metrics.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shelfdex",
			Name:      "searches_total",
			Help:      "Total number of executed catalog searches",
		},
		[]string{"mode"}, // "ranked" / "predicate"
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shelfdex",
			Name:      "search_duration_seconds",
			Help:      "Catalog search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"mode"},
	)

	SearchesSupersededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shelfdex",
			Name:      "searches_superseded_total",
			Help:      "Searches cancelled because a newer filter state arrived",
		},
	)

	PrefetchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shelfdex",
			Name:      "prefetch_cache_total",
			Help:      "Sibling prefetch cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	LinkChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shelfdex",
			Name:      "link_checks_total",
			Help:      "Total link health probes by outcome",
		},
		[]string{"status"}, // "ok" / "broken"
	)

	LinkCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "shelfdex",
			Name:      "link_check_duration_seconds",
			Help:      "Single link probe duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

var engineMetricsRegistered bool

// RegisterEngineMetrics registers Prometheus engine metrics. Must be called once from main.
func RegisterEngineMetrics() {
	if engineMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchesSupersededTotal)
	prometheus.MustRegister(PrefetchCacheTotal)
	prometheus.MustRegister(LinkChecksTotal)
	prometheus.MustRegister(LinkCheckDuration)
	engineMetricsRegistered = true
}
