package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/mezonai/mmn-storage/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type storagePromMetrics struct {
	upUnixSeconds     prometheus.Gauge
	storedBlocks      prometheus.Gauge
	evictedBlocks     prometheus.Counter
	cacheBytes        prometheus.Gauge
	cacheDirtyEntries prometheus.Gauge
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	flushDuration     prometheus.Histogram
	flushErrors       prometheus.Counter
	panicCount        prometheus.Counter
}

func newStoragePromMetrics() *storagePromMetrics {
	return &storagePromMetrics{
		upUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mmn_storage_up_timestamp_unix_seconds",
				Help: "Unix timestamp at which the storage metrics were initialized",
			},
		),
		storedBlocks: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mmn_storage_stored_blocks",
				Help: "Number of distinct blocks currently held by the store",
			},
		),
		evictedBlocks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mmn_storage_evicted_blocks_total",
				Help: "Blocks pruned because the store went over capacity",
			},
		),
		cacheBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mmn_storage_cache_bytes",
				Help: "Bytes of block data resident in the write-back cache",
			},
		),
		cacheDirtyEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mmn_storage_cache_dirty_entries",
				Help: "Cached blocks not yet written to the backing store",
			},
		),
		cacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mmn_storage_cache_hits_total",
				Help: "Block reads served from the cache",
			},
		),
		cacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mmn_storage_cache_misses_total",
				Help: "Block reads that went to the backing store",
			},
		),
		flushDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "mmn_storage_flush_duration_seconds",
				Help: "Duration in second of a cache flush to the backing store",
			},
		),
		flushErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mmn_storage_flush_errors_total",
				Help: "Cache flushes that failed and were left for the next attempt",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mmn_storage_panic_total",
				Help: "Recovered panics in storage goroutines",
			},
		),
	}
}

var (
	initOnce       sync.Once
	storageMetrics *storagePromMetrics
)

// InitMetrics registers the storage metrics. Recording before it is called is a no-op.
func InitMetrics() {
	initOnce.Do(func() {
		storageMetrics = newStoragePromMetrics()
		storageMetrics.upUnixSeconds.SetToCurrentTime()
	})
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func SetStoredBlocks(count int) {
	if storageMetrics == nil {
		return
	}
	storageMetrics.storedBlocks.Set(float64(count))
}

func AddEvictedBlocks(count int) {
	if storageMetrics == nil {
		return
	}
	storageMetrics.evictedBlocks.Add(float64(count))
}

func SetCacheState(sizeBytes int, dirtyEntries int) {
	if storageMetrics == nil {
		return
	}
	storageMetrics.cacheBytes.Set(float64(sizeBytes))
	storageMetrics.cacheDirtyEntries.Set(float64(dirtyEntries))
}

func IncreaseCacheHit() {
	if storageMetrics == nil {
		return
	}
	storageMetrics.cacheHits.Inc()
}

func IncreaseCacheMiss() {
	if storageMetrics == nil {
		return
	}
	storageMetrics.cacheMisses.Inc()
}

func RecordFlush(duration time.Duration, err error) {
	if storageMetrics == nil {
		return
	}
	storageMetrics.flushDuration.Observe(duration.Seconds())
	if err != nil {
		storageMetrics.flushErrors.Inc()
	}
}

func IncreasePanicCount() {
	if storageMetrics == nil {
		return
	}
	storageMetrics.panicCount.Inc()
}
