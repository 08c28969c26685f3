// Package prometheus implements [aide.Metrics] on Prometheus collectors.
package prometheus

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fwojciec/aide"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aide"

// Interface compliance check.
var _ aide.Metrics = (*Metrics)(nil)

// Metrics records orchestration activity in its own registry.
type Metrics struct {
	registry *prom.Registry

	providerCalls    *prom.CounterVec
	providerDuration *prom.HistogramVec
	toolCalls        *prom.CounterVec
	toolDuration     *prom.HistogramVec
	rounds           prom.Histogram
}

// New creates Metrics registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prom.NewRegistry(),
		providerCalls: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Provider calls by outcome.",
		}, []string{"provider", "outcome"}),
		providerDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of provider calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		toolCalls: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool, backend and failure.",
		}, []string{"tool", "backend", "is_error"}),
		toolDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Duration of tool calls.",
			Buckets:   prom.DefBuckets,
		}, []string{"tool"}),
		rounds: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_rounds",
			Help:      "Tool rounds executed per user turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
		}),
	}
	m.registry.MustRegister(m.providerCalls, m.providerDuration, m.toolCalls, m.toolDuration, m.rounds)
	return m
}

// ObserveProviderCall records one provider call.
func (m *Metrics) ObserveProviderCall(provider string, d time.Duration, err error) {
	m.providerCalls.WithLabelValues(provider, outcome(err)).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveToolCall records one tool call.
func (m *Metrics) ObserveToolCall(tool, backend string, d time.Duration, isError bool) {
	m.toolCalls.WithLabelValues(tool, backend, strconv.FormatBool(isError)).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveRounds records how many tool rounds a user turn took.
func (m *Metrics) ObserveRounds(rounds int) {
	m.rounds.Observe(float64(rounds))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prom.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, aide.ErrProviderTimeout):
		return "timeout"
	default:
		return "error"
	}
}
