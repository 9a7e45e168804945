// Package metrics exposes Prometheus instrumentation for the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP holds the per-request collectors. The path label must be the route
// template, never the raw URL, to keep cardinality bounded.
type HTTP struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTP() *HTTP {
	return &HTTP{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Count of HTTP requests by method, route and status code.",
		}, []string{"method", "path", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

func (m *HTTP) Observe(method, path string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
