// Package metrics provides Prometheus metrics for the drive client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Remote request metrics
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pomelo_remote_requests_total",
			Help: "Total number of requests sent to the drive API",
		},
		[]string{"method", "status"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pomelo_remote_request_duration_seconds",
			Help:    "Drive API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	reauthenticationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pomelo_reauthentications_total",
			Help: "Total number of re-login attempts triggered by 401 responses",
		},
	)

	// Cache metrics
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pomelo_cache_lookups_total",
			Help: "Total number of item cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	cacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pomelo_cache_items",
			Help: "Number of items currently held in the cache",
		},
	)

	// Upload metrics
	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pomelo_upload_bytes_total",
			Help: "Total bytes uploaded",
		},
	)

	uploadChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pomelo_upload_chunks_total",
			Help: "Total upload chunks sent",
		},
		[]string{"status"}, // ok, error
	)

	downloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pomelo_download_bytes_total",
			Help: "Total bytes downloaded",
		},
	)

	// Async operation metrics
	pollRoundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pomelo_poll_rounds_total",
			Help: "Total status polls issued for asynchronous operations",
		},
	)

	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pomelo_async_operations_total",
			Help: "Asynchronous operations by outcome",
		},
		[]string{"outcome"}, // completed, cancelled, failed
	)
)

// RecordRemoteRequest records one request to the drive API.
func RecordRemoteRequest(method string, status int, duration time.Duration) {
	remoteRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	remoteRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordReauthentication records a 401-triggered re-login.
func RecordReauthentication() {
	reauthenticationsTotal.Inc()
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		cacheLookupsTotal.WithLabelValues("miss").Inc()
	}
}

// SetCacheSize updates the cached item count gauge.
func SetCacheSize(n int) {
	cacheSize.Set(float64(n))
}

// RecordUploadChunk records one chunk PUT.
func RecordUploadChunk(bytes int64, ok bool) {
	if ok {
		uploadBytesTotal.Add(float64(bytes))
		uploadChunksTotal.WithLabelValues("ok").Inc()
	} else {
		uploadChunksTotal.WithLabelValues("error").Inc()
	}
}

// RecordDownload records downloaded bytes.
func RecordDownload(bytes int64) {
	downloadBytesTotal.Add(float64(bytes))
}

// RecordPollRound records one poll GET.
func RecordPollRound() {
	pollRoundsTotal.Inc()
}

// RecordOperationOutcome records the terminal outcome of an async operation.
func RecordOperationOutcome(outcome string) {
	operationsTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics HTTP server on addr. Blocks.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
