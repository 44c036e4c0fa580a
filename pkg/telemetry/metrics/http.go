package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mercator-hq/aegis/pkg/config"
)

// HTTPMetrics tracks the API server.
//
// Metrics:
//   - aegis_http_requests_total{route,method,code}
//   - aegis_http_request_duration_seconds{route,method}
//   - aegis_http_requests_in_flight
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewHTTPMetrics creates and registers HTTP metrics.
func NewHTTPMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *HTTPMetrics {
	hm := &HTTPMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"route", "method"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		}),
	}
	registry.MustRegister(hm.requests, hm.duration, hm.inFlight)
	return hm
}

// Instrument wraps h with promhttp instrumentation under a fixed route
// label, so path parameters never become label values.
func (hm *HTTPMetrics) Instrument(route string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerInFlight(hm.inFlight,
		promhttp.InstrumentHandlerDuration(hm.duration.MustCurryWith(labels),
			promhttp.InstrumentHandlerCounter(hm.requests.MustCurryWith(labels), h),
		),
	)
}
