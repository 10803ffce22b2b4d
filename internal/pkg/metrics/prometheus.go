package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostmaster",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hostmaster",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// Scan metrics
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostmaster",
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of scan task runs",
		},
		[]string{"status"},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hostmaster",
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Duration of one scan task in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	resourcesScanned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hostmaster",
			Subsystem: "scan",
			Name:      "resources_per_run",
			Help:      "Resources upserted per scan run",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// Queue metrics
	queueTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostmaster",
			Subsystem: "queue",
			Name:      "tasks_total",
			Help:      "Terminal task outcomes per queue",
		},
		[]string{"queue", "outcome"},
	)

	// Delivery metrics
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostmaster",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Alert delivery outcomes per channel",
		},
		[]string{"channel", "status"},
	)

	alertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostmaster",
			Subsystem: "alert",
			Name:      "emitted_total",
			Help:      "Alerts persisted, by severity",
		},
		[]string{"severity"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns a middleware that records Prometheus metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		status := strconv.Itoa(wrapped.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, routePattern, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern, status).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordScan records one scan task run
func RecordScan(status string, duration time.Duration, resourceCount int) {
	scansTotal.WithLabelValues(status).Inc()
	scanDuration.Observe(duration.Seconds())
	if resourceCount > 0 {
		resourcesScanned.Observe(float64(resourceCount))
	}
}

// RecordTaskOutcome records a terminal queue task outcome
func RecordTaskOutcome(queue, outcome string) {
	queueTasksTotal.WithLabelValues(queue, outcome).Inc()
}

// RecordDelivery records an alert delivery outcome
func RecordDelivery(channel, status string) {
	deliveriesTotal.WithLabelValues(channel, status).Inc()
}

// RecordAlert records a persisted alert
func RecordAlert(severity string) {
	alertsEmitted.WithLabelValues(severity).Inc()
}
