// Package metrics provides Prometheus metrics for the bucketdrive server.
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
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketdrive_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bucketdrive_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Drive operation metrics
	driveOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketdrive_operations_total",
			Help: "Total drive operations by outcome",
		},
		[]string{"operation", "status"},
	)

	driveOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bucketdrive_operation_duration_seconds",
			Help:    "Drive operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	walkPagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bucketdrive_walk_pages_total",
			Help: "Total list pages fetched by the pagination walker",
		},
	)

	// Cache metrics
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketdrive_cache_lookups_total",
			Help: "TTL cache lookups by namespace and result",
		},
		[]string{"namespace", "result"},
	)

	cacheInvalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bucketdrive_cache_invalidations_total",
			Help: "Total wholesale cache invalidations",
		},
	)

	// Archive metrics
	archiveBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bucketdrive_archive_bytes_total",
			Help: "Total uncompressed bytes streamed into folder archives",
		},
	)

	archiveEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bucketdrive_archive_entries_total",
			Help: "Total entries written into folder archives",
		},
	)

	// Sharing metrics
	accessChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketdrive_access_checks_total",
			Help: "Access resolver decisions",
		},
		[]string{"result"},
	)

	shareLinkResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketdrive_share_link_resolutions_total",
			Help: "Short link resolutions by result",
		},
		[]string{"result"},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bucketdrive_sse_connections_active",
			Help: "Number of active change-feed subscribers",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketdrive_sse_events_total",
			Help: "Total change events published",
		},
		[]string{"type"},
	)

	// S3 metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bucketdrive_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketdrive_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric. route is the matched
// ServeMux pattern so object keys never become label values.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordOperation records a drive operation.
func RecordOperation(operation string, duration time.Duration, success bool) {
	driveOperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
	driveOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordWalkPage counts one list page fetched by the walker.
func RecordWalkPage() {
	walkPagesTotal.Inc()
}

// RecordCacheLookup records a cache hit or miss for a namespace.
func RecordCacheLookup(namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(namespace, result).Inc()
}

// RecordCacheInvalidation records a wholesale cache clear.
func RecordCacheInvalidation() {
	cacheInvalidationsTotal.Inc()
}

// RecordArchiveEntry records one file streamed into an archive.
func RecordArchiveEntry(bytes int64) {
	archiveEntriesTotal.Inc()
	archiveBytesTotal.Add(float64(bytes))
}

// RecordAccessCheck records an access resolver decision.
func RecordAccessCheck(allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	accessChecksTotal.WithLabelValues(result).Inc()
}

// RecordShareLinkResolution records a short link lookup.
func RecordShareLinkResolution(found bool) {
	result := "found"
	if !found {
		result = "not_found"
	}
	shareLinkResolutionsTotal.WithLabelValues(result).Inc()
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records an SSE event publication.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	s3OperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
