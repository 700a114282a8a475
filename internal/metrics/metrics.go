// Package metrics exposes Prometheus instrumentation for imports, search and the HTTP API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockcount"

var (
	ImportRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_runs_total",
		Help:      "Catalog import runs by result (ok, unavailable).",
	}, []string{"result"})

	ImportRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_records_total",
		Help:      "Catalog records by import outcome.",
	}, []string{"outcome"})

	BatchFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_batch_fallbacks_total",
		Help:      "Batches that fell back to single-record commits.",
	})

	ImportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "import_duration_seconds",
		Help:      "Wall time of a catalog import run.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	SearchLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_cache_lookups_total",
		Help:      "Search cache lookups by result (hit, miss, short).",
	}, []string{"result"})

	StoreSearches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_searches_total",
		Help:      "Search requests sent to the catalog store.",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status class.",
	}, []string{"route", "status"})
)

// Handler serves the default registry on /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
