// Package observability exposes Prometheus metrics for the generation pipeline.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors recorded by the orchestrator, worker and HTTP layer.
type Metrics struct {
	registry *prometheus.Registry

	ProviderAttempts   *prometheus.CounterVec
	ProviderDisabled   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	Generations        *prometheus.CounterVec
	QueueDepth         prometheus.Gauge
	HTTPRequests       *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry, plus the Go and
// process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ProviderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dreamframe",
			Name:      "provider_attempts_total",
			Help:      "Provider attempts by outcome.",
		}, []string{"provider", "outcome"}),
		ProviderDisabled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dreamframe",
			Name:      "provider_disabled_total",
			Help:      "Providers disabled for the rest of the process after reporting an unsupported endpoint.",
		}, []string{"provider"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dreamframe",
			Name:      "generation_duration_seconds",
			Help:      "Wall time from first attempt to stored video, by the provider that produced it.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"provider"}),
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dreamframe",
			Name:      "generations_total",
			Help:      "Finished generation requests by result.",
		}, []string{"result"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dreamframe",
			Name:      "queue_depth",
			Help:      "Generation requests waiting in the queue at last check.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dreamframe",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(
		m.ProviderAttempts,
		m.ProviderDisabled,
		m.GenerationDuration,
		m.Generations,
		m.QueueDepth,
		m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAttempt counts one provider attempt. Safe on a nil receiver.
func (m *Metrics) ObserveAttempt(provider, outcome string) {
	if m == nil {
		return
	}
	m.ProviderAttempts.WithLabelValues(provider, outcome).Inc()
}

// ObserveDisabled counts a provider being switched off for the process lifetime.
func (m *Metrics) ObserveDisabled(provider string) {
	if m == nil {
		return
	}
	m.ProviderDisabled.WithLabelValues(provider).Inc()
}

// ObserveGeneration records a finished request.
func (m *Metrics) ObserveGeneration(provider string, elapsed time.Duration, success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	} else {
		m.GenerationDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
	m.Generations.WithLabelValues(result).Inc()
}

// ObserveHTTP counts one HTTP response.
func (m *Metrics) ObserveHTTP(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}

// SetQueueDepth records the current queue length.
func (m *Metrics) SetQueueDepth(n int64) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
