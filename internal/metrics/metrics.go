// Package metrics exposes pipeline and HTTP observations to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

// Namespace prefixes every metric.
const Namespace = "kgraph"

// Ensure Metrics implements the port.
var _ driven.Metrics = (*Metrics)(nil)

// Metrics holds the collectors.
type Metrics struct {
	registry *prometheus.Registry

	SourceCallsTotal    *prometheus.CounterVec
	SourceCallSeconds   *prometheus.HistogramVec
	PassagesStoredTotal *prometheus.CounterVec
	LLMCallsTotal       *prometheus.CounterVec
	LLMCallSeconds      *prometheus.HistogramVec
	RetriesTotal        *prometheus.CounterVec
	StageSeconds        *prometheus.HistogramVec
	PipelinesActive     prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestSeconds  *prometheus.HistogramVec
}

// New creates and registers all collectors on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.SourceCallsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "source",
		Name:      "calls_total",
		Help:      "Source adapter searches by outcome",
	}, []string{"source", "status"})

	m.SourceCallSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "source",
		Name:      "call_duration_seconds",
		Help:      "Duration of source adapter searches",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"source"})

	m.PassagesStoredTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "store",
		Name:      "passages_total",
		Help:      "Passages persisted per source",
	}, []string{"source"})

	m.LLMCallsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "LLM completions by kind and outcome",
	}, []string{"kind", "status"})

	m.LLMCallSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "llm",
		Name:      "call_duration_seconds",
		Help:      "Duration of LLM completions",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
	}, []string{"kind"})

	m.RetriesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "retries_total",
		Help:      "Retried calls by operation",
	}, []string{"operation"})

	m.StageSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
	}, []string{"stage"})

	m.PipelinesActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "active",
		Help:      "Pipelines currently running",
	})

	m.HTTPRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code",
	}, []string{"method", "route", "code"})

	m.HTTPRequestSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// SourceCall implements driven.Metrics.
func (m *Metrics) SourceCall(source string, err error, took time.Duration) {
	m.SourceCallsTotal.WithLabelValues(source, status(err)).Inc()
	m.SourceCallSeconds.WithLabelValues(source).Observe(took.Seconds())
}

// PassagesStored implements driven.Metrics.
func (m *Metrics) PassagesStored(source string, n int) {
	m.PassagesStoredTotal.WithLabelValues(source).Add(float64(n))
}

// LLMCall implements driven.Metrics.
func (m *Metrics) LLMCall(kind string, err error, took time.Duration) {
	m.LLMCallsTotal.WithLabelValues(kind, status(err)).Inc()
	m.LLMCallSeconds.WithLabelValues(kind).Observe(took.Seconds())
}

// Retry implements driven.Metrics.
func (m *Metrics) Retry(operation string) {
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

// StageFinished implements driven.Metrics.
func (m *Metrics) StageFinished(stage string, took time.Duration) {
	m.StageSeconds.WithLabelValues(stage).Observe(took.Seconds())
}

// PipelineActive implements driven.Metrics.
func (m *Metrics) PipelineActive(delta int) {
	m.PipelinesActive.Add(float64(delta))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency per route template.
// Unmatched routes are recorded as "unmatched" to bound label cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestSeconds.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
