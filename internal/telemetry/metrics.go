package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zoobzio/capitan"

	"github.com/veranima/insight"
)

const namespace = "insight"

// Metrics aggregates insight signals into Prometheus collectors.
// Each instance owns its registry.
type Metrics struct {
	Registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	fragments     *prometheus.HistogramVec
	providerCalls *prometheus.CounterVec
	tokens        *prometheus.CounterVec
	malformed     *prometheus.CounterVec

	stop func()
}

// NewMetrics registers the collectors and starts observing signals.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "total",
				Help:      "Insight requests by provider, mode and outcome.",
			},
			[]string{"provider", "mode", "outcome"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "duration_seconds",
				Help:      "Duration of insight requests, until the last fragment for streams.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"provider", "mode"},
		),

		fragments: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "fragments",
				Help:      "Fragments delivered per streamed insight.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"provider"},
		),

		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "calls_total",
				Help:      "Backend calls by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),

		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "tokens_total",
				Help:      "Tokens reported by backends.",
			},
			[]string{"provider", "kind"},
		),

		malformed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "malformed_responses_total",
				Help:      "Backend responses without extractable text.",
			},
			[]string{"provider"},
		),
	}

	m.Registry.MustRegister(
		m.requests,
		m.duration,
		m.fragments,
		m.providerCalls,
		m.tokens,
		m.malformed,
	)

	observer := capitan.Observe(m.handle)
	m.stop = func() { observer.Close() }
	return m
}

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Close stops observing signals. Collected values stay readable.
func (m *Metrics) Close() {
	m.stop()
}

func (m *Metrics) handle(_ context.Context, e *capitan.Event) {
	provider, _ := insight.ProviderKey.From(e)

	switch e.Signal() {
	case insight.RequestCompleted, insight.StreamCompleted:
		m.observeRequest(e, provider, "success")
	case insight.RequestFailed, insight.StreamFailed:
		m.observeRequest(e, provider, "failure")
	case insight.ProviderCallCompleted:
		m.providerCalls.WithLabelValues(provider, "success").Inc()
		m.observeTokens(e, provider)
	case insight.ProviderCallFailed:
		m.providerCalls.WithLabelValues(provider, "failure").Inc()
	case insight.ResponseMalformed:
		m.malformed.WithLabelValues(provider).Inc()
	}
}

func (m *Metrics) observeRequest(e *capitan.Event, provider, outcome string) {
	mode, _ := insight.ModeKey.From(e)
	m.requests.WithLabelValues(provider, mode, outcome).Inc()

	if ms, ok := insight.DurationMsKey.From(e); ok {
		m.duration.WithLabelValues(provider, mode).Observe(float64(ms) / 1000)
	}
	if mode == insight.ModeStreamed && outcome == "success" {
		if n, ok := insight.FragmentCountKey.From(e); ok {
			m.fragments.WithLabelValues(provider).Observe(float64(n))
		}
	}
}

func (m *Metrics) observeTokens(e *capitan.Event, provider string) {
	if n, ok := insight.PromptTokensKey.From(e); ok && n > 0 {
		m.tokens.WithLabelValues(provider, "prompt").Add(float64(n))
	}
	if n, ok := insight.CompletionTokensKey.From(e); ok && n > 0 {
		m.tokens.WithLabelValues(provider, "completion").Add(float64(n))
	}
}
