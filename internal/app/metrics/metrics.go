package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nutrilink",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nutrilink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nutrilink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	requestsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nutrilink",
			Subsystem: "requests",
			Name:      "created_total",
			Help:      "Total number of food requests created.",
		},
	)

	requestTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nutrilink",
			Subsystem: "requests",
			Name:      "transitions_total",
			Help:      "Total number of request status transitions.",
		},
		[]string{"status"},
	)

	servingsReserved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nutrilink",
			Subsystem: "inventory",
			Name:      "servings_reserved_total",
			Help:      "Total servings reserved against listings.",
		},
	)

	servingsReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nutrilink",
			Subsystem: "inventory",
			Name:      "servings_released_total",
			Help:      "Total servings released back by cancellations.",
		},
	)

	deliveryTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nutrilink",
			Subsystem: "deliveries",
			Name:      "transitions_total",
			Help:      "Total number of delivery status transitions.",
		},
		[]string{"status"},
	)

	mealsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nutrilink",
			Subsystem: "deliveries",
			Name:      "meals_delivered_total",
			Help:      "Total servings confirmed delivered.",
		},
	)

	listingsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nutrilink",
			Subsystem: "listings",
			Name:      "expired_total",
			Help:      "Total listings marked expired by the sweeper.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		requestsCreated,
		requestTransitions,
		servingsReserved,
		servingsReleased,
		deliveryTransitions,
		mealsDelivered,
		listingsExpired,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordRequestCreated counts a new request and its reserved servings.
func RecordRequestCreated(servings int) {
	requestsCreated.Inc()
	servingsReserved.Add(float64(servings))
}

// RecordRequestTransition counts a request status change. Released servings
// are zero except on the first cancellation.
func RecordRequestTransition(status string, releasedServings int) {
	requestTransitions.WithLabelValues(status).Inc()
	if releasedServings > 0 {
		servingsReleased.Add(float64(releasedServings))
	}
}

// RecordDeliveryTransition counts a delivery status change.
func RecordDeliveryTransition(status string) {
	deliveryTransitions.WithLabelValues(status).Inc()
}

// RecordMealsDelivered counts servings confirmed delivered.
func RecordMealsDelivered(servings int) {
	if servings > 0 {
		mealsDelivered.Add(float64(servings))
	}
}

// RecordListingsExpired counts listings swept to expired.
func RecordListingsExpired(count int64) {
	if count > 0 {
		listingsExpired.Add(float64(count))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource IDs so metric label cardinality stays
// bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "auth", "admin":
		if len(parts) >= 2 {
			return "/" + parts[0] + "/" + parts[1]
		}
		return "/" + parts[0]
	case "listings", "requests", "deliveries", "users":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		if parts[1] == "mine" || parts[1] == "tasks" {
			return "/" + parts[0] + "/" + strings.Join(parts[1:], "/")
		}
		if len(parts) >= 3 {
			return "/" + parts[0] + "/:id/" + parts[2]
		}
		return "/" + parts[0] + "/:id"
	}
	return "/" + parts[0]
}
