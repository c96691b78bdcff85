package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	gateDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_gate_denials_total",
			Help: "Authorization gate denials by reason.",
		},
		[]string{"reason"},
	)

	blacklistHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_blacklist_hits_total",
		Help: "Requests rejected because the token jti was revoked.",
	})

	revocationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revocation_store_errors_total",
		Help: "Failed revocation registry lookups (gate fails closed).",
	})
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginAttempts, gateDenials, blacklistHits, revocationErrors,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin records a login attempt outcome for the given tier.
func ObserveLogin(tier, outcome string) {
	loginAttempts.WithLabelValues(tier, outcome).Inc()
}

// ObserveGateDenial records an authorization gate denial.
func ObserveGateDenial(reason string) {
	gateDenials.WithLabelValues(reason).Inc()
}

// ObserveBlacklistHit records a revoked-token rejection.
func ObserveBlacklistHit() {
	blacklistHits.Inc()
}

// ObserveRevocationError records a failed registry lookup.
func ObserveRevocationError() {
	revocationErrors.Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
