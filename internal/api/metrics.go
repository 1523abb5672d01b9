package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/org/accessgate/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "accessgate_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "accessgate_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// Client denials and dependency failures are separate series: both
	// render as "denied" to the caller, only the latter should page.
	decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "accessgate_decisions_total",
		Help: "Access decisions by outcome and reason code.",
	}, []string{"outcome", "reason"})

	dependencyFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accessgate_dependency_failures_total",
		Help: "Denials caused by allowlist-store or identity-provider failure.",
	})

	auditRecordsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "accessgate_audit_records_total",
		Help: "Number of audit records persisted.",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, decisionsTotal, dependencyFailures, auditRecordsTotal)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// metricsMiddleware records request metrics.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		dur := time.Since(start).Seconds()
		status := strconv.Itoa(rr.statusCode)
		requestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		requestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(dur)
	})
}

// observeDecision feeds the decision counters.
func observeDecision(d models.AccessDecision) {
	outcome := "deny"
	if d.Authorized {
		outcome = "allow"
	}
	decisionsTotal.WithLabelValues(outcome, string(d.ReasonCode)).Inc()
	if d.SystemError() {
		dependencyFailures.Inc()
	}
}
