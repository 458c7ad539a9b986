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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgrid_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadgrid_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	cadenceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgrid_cadence_runs_total",
			Help: "Cadence engine invocations by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	cadenceRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadgrid_cadence_run_duration_seconds",
			Help:    "Wall-clock duration of one cadence run",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10, 30},
		},
		[]string{"channel"},
	)

	messagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgrid_messages_sent_total",
			Help: "Outbound messages sent by channel and cadence step",
		},
		[]string{"channel", "sequence"},
	)

	transportFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgrid_transport_failures_total",
			Help: "Transport send failures by channel",
		},
		[]string{"channel"},
	)

	deliveryEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgrid_delivery_events_total",
			Help: "Inbound delivery webhook events by channel and event type",
		},
		[]string{"channel", "event"},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgrid_rate_limit_rejections_total",
			Help: "Requests rejected by the endpoint rate limiter",
		},
		[]string{"key"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCadenceRun records the outcome of one cadence engine invocation
func RecordCadenceRun(channel, outcome string, duration time.Duration) {
	cadenceRuns.WithLabelValues(channel, outcome).Inc()
	cadenceRunDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordMessageSent records a successful cadence send
func RecordMessageSent(channel string, sequence int) {
	messagesSent.WithLabelValues(channel, strconv.Itoa(sequence)).Inc()
}

// RecordTransportFailure records a failed transport call
func RecordTransportFailure(channel string) {
	transportFailures.WithLabelValues(channel).Inc()
}

// RecordDeliveryEvent records an inbound delivery webhook event
func RecordDeliveryEvent(channel, event string) {
	deliveryEvents.WithLabelValues(channel, event).Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(key string) {
	rateLimitRejections.WithLabelValues(key).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
