package changeset

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for pagination and aggregation.
var (
	paginationPages = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "osm_pagination_pages",
		Help:    "Number of changeset pages fetched per listing",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
	})

	paginationTruncatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osm_pagination_truncated_total",
		Help: "Total listings stopped at the page depth cap",
	})

	diffFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "osm_diff_failures_total",
		Help: "Total changeset diffs skipped because they could not be fetched, by error class",
	}, []string{"class"})

	aggregationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "osm_aggregations_total",
		Help: "Total aggregations by outcome",
	}, []string{"outcome"})

	aggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "osm_aggregation_duration_seconds",
		Help:    "Duration of one user's aggregation in seconds",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)
