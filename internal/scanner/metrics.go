package scanner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floodgate_scan_requests_total",
		Help: "Scan service requests by operation and result.",
	}, []string{
		"operation", // initiate|status
		"result",    // success|error|breaker_open
	})

	scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "floodgate_scan_request_duration_seconds",
		Help:    "Scan service request latency by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

func recordRequest(operation, result string, duration time.Duration) {
	scanRequests.WithLabelValues(operation, result).Inc()
	scanDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
