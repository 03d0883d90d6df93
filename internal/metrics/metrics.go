// Package metrics exports Prometheus collectors for the NexusAI gateway:
// HTTP traffic, AI routing outcomes, token/cost accounting and provider
// health.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	AIRequestsTotal   *prometheus.CounterVec
	AIRequestDuration *prometheus.HistogramVec
	AITokensUsed      *prometheus.CounterVec
	AICostTotal       *prometheus.CounterVec
	AIFallbacksTotal  *prometheus.CounterVec
	AIProviderHealth  *prometheus.GaugeVec

	WSConnectionsGauge prometheus.Gauge
	CacheHitsTotal     *prometheus.CounterVec
	CacheMissesTotal   *prometheus.CounterVec
}

// Get returns the process-wide metrics instance, registering collectors on
// first use.
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "nexusai_http_requests_total",
				Help: "Total HTTP requests by method, path and status",
			}, []string{"method", "path", "status"}),
			HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "nexusai_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "path"}),
			HTTPRequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "nexusai_http_requests_in_flight",
				Help: "HTTP requests currently being served",
			}),

			AIRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "nexusai_ai_requests_total",
				Help: "AI requests by module, provider and outcome",
			}, []string{"module", "provider", "status"}),
			AIRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "nexusai_ai_request_duration_seconds",
				Help:    "Provider round-trip latency",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			}, []string{"module", "provider"}),
			AITokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "nexusai_ai_tokens_total",
				Help: "Tokens consumed per provider",
			}, []string{"provider", "kind"}),
			AICostTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "nexusai_ai_cost_dollars_total",
				Help: "Estimated spend per provider in USD",
			}, []string{"provider"}),
			AIFallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "nexusai_ai_fallbacks_total",
				Help: "Requests answered by a fallback provider",
			}, []string{"from", "to"}),
			AIProviderHealth: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "nexusai_ai_provider_healthy",
				Help: "1 when the provider's last health probe succeeded",
			}, []string{"provider"}),

			WSConnectionsGauge: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "nexusai_ws_connections",
				Help: "Active websocket connections",
			}),
			CacheHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "nexusai_cache_hits_total",
				Help: "Cache hits by cache name",
			}, []string{"cache"}),
			CacheMissesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "nexusai_cache_misses_total",
				Help: "Cache misses by cache name",
			}, []string{"cache"}),
		}
	})
	return instance
}

// RecordAIRequest updates the AI counters for one routed request.
func (m *Metrics) RecordAIRequest(module, provider, status string, durationSeconds float64, promptTokens, completionTokens int, cost float64) {
	m.AIRequestsTotal.WithLabelValues(module, provider, status).Inc()
	m.AIRequestDuration.WithLabelValues(module, provider).Observe(durationSeconds)
	if promptTokens > 0 {
		m.AITokensUsed.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.AITokensUsed.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
	if cost > 0 {
		m.AICostTotal.WithLabelValues(provider).Add(cost)
	}
}

// SetProviderHealth publishes a provider's probe outcome.
func (m *Metrics) SetProviderHealth(provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.AIProviderHealth.WithLabelValues(provider).Set(v)
}
