package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retrievedChunks *prometheus.HistogramVec
	noContextTotal  *prometheus.CounterVec
	chunksIngested  prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pdfrag",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pdfrag",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		retrievedChunks: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pdfrag",
				Subsystem: "rag",
				Name:      "retrieved_chunks",
				Help:      "Chunks retrieved per successful request.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 10, 20},
			},
			[]string{"endpoint"},
		),
		noContextTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pdfrag",
				Subsystem: "rag",
				Name:      "no_context_total",
				Help:      "Requests that retrieved no chunks.",
			},
			[]string{"endpoint"},
		),
		chunksIngested: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "pdfrag",
				Subsystem: "ingest",
				Name:      "chunks",
				Help:      "Chunks written by the most recent ingestion.",
			},
		),
	}

	registry.MustRegister(m.requestTotal, m.requestDuration, m.retrievedChunks, m.noContextTotal, m.chunksIngested)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		path := normalizePath(r.URL.Path)
		m.requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

var knownPaths = map[string]struct{}{
	"/healthz":      {},
	"/openapi.yaml": {},
	"/metrics":      {},
	"/v1/ingest":    {},
	"/v1/search":    {},
	"/v1/chat":      {},
	"/v1/clear":     {},
}

// normalizePath keeps the path label bounded to the registered routes.
func normalizePath(path string) string {
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "other"
}

func (m *Metrics) RecordRetrieval(endpoint string, chunks int) {
	m.retrievedChunks.WithLabelValues(endpoint).Observe(float64(chunks))
	if chunks == 0 {
		m.noContextTotal.WithLabelValues(endpoint).Inc()
	}
}

func (m *Metrics) RecordIngestion(chunks int) {
	m.chunksIngested.Set(float64(chunks))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
