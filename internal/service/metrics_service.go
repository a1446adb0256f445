package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic,
// the cache and the workflow engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec

	transitions        *prometheus.CounterVec
	transitionFailures *prometheus.CounterVec
	validations        *prometheus.CounterVec
	readiness          *prometheus.CounterVec
	assignments        *prometheus.CounterVec
	auditDropped       prometheus.Counter
	verdicts           *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uat_task_transitions_total",
		Help: "Applied task lifecycle transitions",
	}, []string{"event", "from", "to"})

	transitionFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uat_task_transition_failures_total",
		Help: "Rejected task lifecycle requests by error kind",
	}, []string{"event", "kind"})

	validations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uat_validations_total",
		Help: "Recorded bug and task validations",
	}, []string{"subject", "status"})

	readiness := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uat_readiness_evaluations_total",
		Help: "Readiness evaluations by outcome",
	}, []string{"ready"})

	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uat_assignment_decisions_total",
		Help: "Assignment gate decisions by outcome",
	}, []string{"outcome"})

	auditDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uat_audit_events_dropped_total",
		Help: "Audit events discarded by the dispatcher",
	})

	verdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uat_final_report_verdicts_total",
		Help: "Final report acceptance verdicts",
	}, []string{"acceptance_status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		transitions, transitionFailures, validations, readiness, assignments, auditDropped, verdicts, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheLookups:       cacheLookups,
		transitions:        transitions,
		transitionFailures: transitionFailures,
		validations:        validations,
		readiness:          readiness,
		assignments:        assignments,
		auditDropped:       auditDropped,
		verdicts:           verdicts,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordTransition counts an applied lifecycle transition.
func (m *MetricsService) RecordTransition(event, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, from, to).Inc()
}

// RecordTransitionFailure counts a refused lifecycle request.
func (m *MetricsService) RecordTransitionFailure(event, kind string) {
	if m == nil {
		return
	}
	m.transitionFailures.WithLabelValues(event, kind).Inc()
}

// RecordValidation counts a stored verdict; subject is "bug" or "task".
func (m *MetricsService) RecordValidation(subject, status string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(subject, status).Inc()
}

// RecordReadiness counts a readiness evaluation.
func (m *MetricsService) RecordReadiness(ready bool) {
	if m == nil {
		return
	}
	m.readiness.WithLabelValues(fmt.Sprintf("%t", ready)).Inc()
}

// RecordAssignment counts an assignment gate decision.
func (m *MetricsService) RecordAssignment(outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(outcome).Inc()
}

// RecordAuditDropped counts an audit event the dispatcher discarded.
func (m *MetricsService) RecordAuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

// RecordVerdict counts a computed final report verdict.
func (m *MetricsService) RecordVerdict(status string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(status).Inc()
}
