package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpuman",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gpuman",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gpuman",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)

	// lockContentionTotal counts lock contention per service. It changes
	// only through RecordLockContention, which nothing in this module calls.
	lockContentionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpuman",
			Subsystem: "lock",
			Name:      "contention_total",
			Help:      "Total times the GPU lock was found already held",
		},
		[]string{"service"},
	)

	// preemptionsTotal counts services stopped to make VRAM room. It changes
	// only through RecordPreemption, which nothing in this module calls.
	preemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpuman",
			Subsystem: "orchestrator",
			Name:      "preemptions_total",
			Help:      "Total services preempted to free VRAM",
		},
		[]string{"service"},
	)

	vramAvailableMB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gpuman",
			Subsystem: "vram",
			Name:      "available_mb",
			Help:      "VRAM available for new allocations (free - reserve)",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight,
		lockContentionTotal, preemptionsTotal, vramAvailableMB)
}

// RecordLockContention increments the contention counter for a service.
func RecordLockContention(service string) {
	lockContentionTotal.WithLabelValues(service).Inc()
}

// RecordPreemption increments the preemption counter for a service.
func RecordPreemption(service string) {
	preemptionsTotal.WithLabelValues(service).Inc()
}

// RecordAvailableVRAM sets the current available-VRAM gauge.
func RecordAvailableVRAM(mb int) {
	vramAvailableMB.Set(float64(mb))
}

// statusRecorder wraps http.ResponseWriter to capture status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routePatternOrPath(r)
		method := r.Method
		httpInflight.WithLabelValues(path).Inc()
		defer httpInflight.WithLabelValues(path).Dec()

		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		statusLabel := strconv.Itoa(sr.status)
		dur := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(path, method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, method, statusLabel).Observe(dur)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to the URL path, avoiding high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
