package dbgclient

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalCacheMetrics *CacheMetrics
	cacheMetricsOnce   sync.Once
)

// CacheMetrics holds Prometheus metrics for the metadata cache.
type CacheMetrics struct {
	HitsTotal      *prometheus.CounterVec
	MissesTotal    *prometheus.CounterVec
	CoalescedTotal *prometheus.CounterVec
	Entries        prometheus.Gauge
}

// NewCacheMetrics creates and registers the metadata cache metrics.
//
// Registration happens once per process; every CachingClient shares the
// same collectors.
//
// Metrics:
//   - dbgnav_metadata_cache_hits_total{op}
//   - dbgnav_metadata_cache_misses_total{op}
//   - dbgnav_metadata_cache_coalesced_total{op} - requests that joined one already in flight
//   - dbgnav_metadata_cache_entries - summed over every CachingClient
func NewCacheMetrics() *CacheMetrics {
	cacheMetricsOnce.Do(func() {
		globalCacheMetrics = &CacheMetrics{
			HitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dbgnav_metadata_cache_hits_total",
					Help: "Metadata requests answered from the cache",
				},
				[]string{"op"},
			),
			MissesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dbgnav_metadata_cache_misses_total",
					Help: "Metadata requests that had to reach the service",
				},
				[]string{"op"},
			),
			CoalescedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dbgnav_metadata_cache_coalesced_total",
					Help: "Metadata requests that shared an identical in-flight request",
				},
				[]string{"op"},
			),
			Entries: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "dbgnav_metadata_cache_entries",
					Help: "Number of memoized metadata responses across all caches",
				},
			),
		}
	})
	return globalCacheMetrics
}
