package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TileRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plate_tile_requests_total",
		Help: "Total number of tile requests",
	})

	TileNotFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plate_tile_not_found_total",
		Help: "Total number of tile lookups that resolved to no tile",
	})

	PayloadCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plate_payload_cache_hits_total",
		Help: "Total number of payload cache hits",
	})

	PayloadCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plate_payload_cache_misses_total",
		Help: "Total number of payload cache misses",
	})

	RPCRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plate_rpc_retries_total",
		Help: "Total number of RPC attempts beyond the first",
	})

	RPCTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plate_rpc_timeouts_total",
		Help: "Total number of RPC calls that exhausted their retry budget",
	})

	IndexSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plate_index_sync_duration_seconds",
		Help:    "Duration of full index cache rebuilds in seconds",
		Buckets: prometheus.DefBuckets,
	})

	BlobCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plate_blob_cache_size",
		Help: "Number of open blob handles held by the blob cache",
	})
)
