package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queryTotal         *prometheus.CounterVec
	queryDuration      *prometheus.HistogramVec
	stageDuration      *prometheus.HistogramVec
	cacheEventsTotal   *prometheus.CounterVec
	tabularEvidence    *prometheus.HistogramVec
	conceptualEvidence *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "upa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "upa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upa",
			Subsystem: "pipeline",
			Name:      "queries_total",
			Help:      "Total answered queries by type, strategy and outcome.",
		},
		[]string{"service", "query_type", "strategy", "status"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "upa",
			Subsystem: "pipeline",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "query_type", "strategy"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "upa",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	cacheEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upa",
			Subsystem: "pipeline",
			Name:      "cache_events_total",
			Help:      "Answer cache probe results.",
		},
		[]string{"service", "result"},
	)
	tabularEvidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "upa",
			Subsystem: "pipeline",
			Name:      "tabular_evidence_rows",
			Help:      "Distribution of structured rows backing an answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	conceptualEvidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "upa",
			Subsystem: "pipeline",
			Name:      "conceptual_evidence_chunks",
			Help:      "Distribution of document chunks backing an answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queryTotal,
		queryDuration,
		stageDuration,
		cacheEventsTotal,
		tabularEvidence,
		conceptualEvidence,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		service:            service,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		queryTotal:         queryTotal,
		queryDuration:      queryDuration,
		stageDuration:      stageDuration,
		cacheEventsTotal:   cacheEventsTotal,
		tabularEvidence:    tabularEvidence,
		conceptualEvidence: conceptualEvidence,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/datasets/"):
		return "/v1/datasets/{dataset_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordQuery(queryType, strategy, status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.queryTotal.WithLabelValues(m.service, queryType, strategy, status).Inc()
	m.queryDuration.WithLabelValues(m.service, queryType, strategy).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordStage(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordCacheEvent(result string) {
	if result == "" {
		result = "unknown"
	}
	m.cacheEventsTotal.WithLabelValues(m.service, result).Inc()
}

func (m *HTTPServerMetrics) RecordEvidence(tabular, conceptual int) {
	m.tabularEvidence.WithLabelValues(m.service).Observe(float64(tabular))
	m.conceptualEvidence.WithLabelValues(m.service).Observe(float64(conceptual))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
