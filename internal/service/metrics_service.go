package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/extension-approver/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface
// and the evaluation pipeline.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	evaluationTotal    *prometheus.CounterVec
	duplicateTotal     prometheus.Counter
	queueDepth         prometheus.Gauge
}

// NewMetricsService registers the core Prometheus collectors.
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

	evaluationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evaluation_duration_seconds",
		Help:    "Duration of extension-request evaluations",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	evaluationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluations_total",
		Help: "Total evaluations by terminal outcome",
	}, []string{"outcome"})

	duplicateTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_submissions_total",
		Help: "Submissions dropped by the duplicate guard",
	})

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "evaluation_queue_depth",
		Help: "Evaluation jobs waiting to be processed",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, evaluationDuration, evaluationTotal, duplicateTotal, queueDepth, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		evaluationDuration: evaluationDuration,
		evaluationTotal:    evaluationTotal,
		duplicateTotal:     duplicateTotal,
		queueDepth:         queueDepth,
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

// ObserveHTTPRequest records per-request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveEvaluation records one finished policy evaluation.
func (m *MetricsService) ObserveEvaluation(outcome models.OutcomeKind, duration time.Duration) {
	if m == nil {
		return
	}
	m.evaluationDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())
	m.evaluationTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordDuplicate counts a submission rejected by the dedup guard.
func (m *MetricsService) RecordDuplicate() {
	if m == nil {
		return
	}
	m.duplicateTotal.Inc()
}

// SetQueueDepth reflects the evaluation queue backlog.
func (m *MetricsService) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
