// Package metrics exposes Prometheus collectors for index builds,
// retrievals and LLM calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "charrag"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	IndexBuildTotal    *prometheus.CounterVec
	IndexBuildDuration *prometheus.HistogramVec
	IndexRecords       *prometheus.GaugeVec

	RetrievalTotal    *prometheus.CounterVec
	RetrievalDuration *prometheus.HistogramVec
	RetrievalResults  *prometheus.HistogramVec

	LLMCallTotal    *prometheus.CounterVec
	LLMCallDuration *prometheus.HistogramVec

	QueryCacheTotal *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),

		IndexBuildTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "index",
				Name:      "builds_total",
				Help:      "Total number of index builds and appends",
			},
			[]string{"character", "op", "status"},
		),
		IndexBuildDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "index",
				Name:      "build_duration_seconds",
				Help:      "Index build duration in seconds, embedding included",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),
		IndexRecords: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "index",
				Name:      "records",
				Help:      "Number of records in the ready index",
			},
			[]string{"character"},
		),

		RetrievalTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "total",
				Help:      "Total number of retrievals",
			},
			[]string{"character", "status"},
		),
		RetrievalDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "duration_seconds",
				Help:      "Retrieval duration in seconds, query embedding included",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"kind"},
		),
		RetrievalResults: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "results",
				Help:      "Records surviving the relevance cutoff",
				Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
			},
			[]string{"method"},
		),

		LLMCallTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "call_total",
				Help:      "Total number of LLM calls",
			},
			[]string{"provider", "model", "status"},
		),
		LLMCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "call_duration_seconds",
				Help:      "LLM call duration in seconds",
				Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		QueryCacheTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "embedding",
				Name:      "query_cache_total",
				Help:      "Query embedding cache lookups",
			},
			[]string{"result"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveBuild(character, op, kind string, records int, start time.Time, err error) {
	if m == nil {
		return
	}
	m.IndexBuildTotal.WithLabelValues(character, op, status(err)).Inc()
	if err == nil {
		m.IndexBuildDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		m.IndexRecords.WithLabelValues(character).Set(float64(records))
	}
}

func (m *Metrics) ObserveReset(character string) {
	if m == nil {
		return
	}
	m.IndexRecords.DeleteLabelValues(character)
}

func (m *Metrics) ObserveRetrieval(character, kind, method string, results int, start time.Time, err error) {
	if m == nil {
		return
	}
	m.RetrievalTotal.WithLabelValues(character, status(err)).Inc()
	if err == nil {
		m.RetrievalDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		m.RetrievalResults.WithLabelValues(method).Observe(float64(results))
	}
}

func (m *Metrics) ObserveLLM(provider, model string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.LLMCallTotal.WithLabelValues(provider, model, status(err)).Inc()
	m.LLMCallDuration.WithLabelValues(provider, model).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, code int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveQueryCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.QueryCacheTotal.WithLabelValues(result).Inc()
}
