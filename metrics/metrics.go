package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TileRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tile_requests_total",
		Help: "Tile requests by collection and outcome",
	}, []string{"collection", "outcome"})

	ResolverLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_cache_lookups_total",
		Help: "Tile source cache lookups by result (hit, miss, unavailable)",
	}, []string{"result"})

	CoalescedWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resolver_coalesced_waits_total",
		Help: "Resolutions served by another request's in-flight upstream call",
	})

	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_requests_total",
		Help: "Upstream imagery resolutions by result",
	}, []string{"result"})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "upstream_latency_seconds",
		Help:    "Latency of upstream imagery resolutions in seconds",
		Buckets: prometheus.DefBuckets,
	})

	CacheOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cache_operation_duration_seconds",
		Help:    "Duration of tile source cache operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_errors_total",
		Help: "Tile source cache errors by operation",
	}, []string{"operation"})

	TileBytesCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tile_bytes_cache_total",
		Help: "Rendered tile byte cache lookups by result",
	}, []string{"result"})

	PlaceholdersServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "placeholder_tiles_total",
		Help: "Placeholder tiles served instead of imagery, by reason",
	}, []string{"reason"})
)
