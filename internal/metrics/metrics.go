// Package metrics provides Prometheus metrics for simulations.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	TurnsTotal         *prometheus.CounterVec
	RoundsTotal        *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	GenerationErrors   *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
	SimulationsActive  prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyworld_turns_total",
				Help: "Completed agent turns by agent.",
			},
			[]string{"agent"},
		),
		RoundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyworld_rounds_total",
				Help: "Rounds by outcome (completed or aborted).",
			},
			[]string{"outcome"},
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tinyworld_generation_duration_seconds",
				Help:    "Text generation latency by capability.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"capability"},
		),
		GenerationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyworld_generation_errors_total",
				Help: "Failed generation calls by capability.",
			},
			[]string{"capability"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyworld_api_requests_total",
				Help: "API requests by route and status class.",
			},
			[]string{"route", "status"},
		),
		SimulationsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tinyworld_simulations",
				Help: "Number of simulations held in memory.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.TurnsTotal)
	reg.MustRegister(m.RoundsTotal)
	reg.MustRegister(m.GenerationDuration)
	reg.MustRegister(m.GenerationErrors)
	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.SimulationsActive)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TurnCompleted counts a committed turn.
func (m *Metrics) TurnCompleted(_ context.Context, _ string, r agent.TurnResult) error {
	m.TurnsTotal.WithLabelValues(r.Agent).Inc()
	return nil
}

// RoundCompleted counts a round by outcome.
func (m *Metrics) RoundCompleted(_ context.Context, _ string, rec agent.RoundRecord) error {
	outcome := "completed"
	if rec.Aborted {
		outcome = "aborted"
	}
	m.RoundsTotal.WithLabelValues(outcome).Inc()
	return nil
}

// RecordRequest increments the request counter.
func (m *Metrics) RecordRequest(route string, status int) {
	m.RequestsTotal.WithLabelValues(route, statusClass(status)).Inc()
}

// SetSimulations sets the number of live simulations.
func (m *Metrics) SetSimulations(n int) {
	m.SimulationsActive.Set(float64(n))
}

// Instrument wraps gen so every call is timed and failures are counted.
// Cancellations are not counted as failures.
func (m *Metrics) Instrument(gen agent.Generator) agent.Generator {
	return agent.GeneratorFunc(func(ctx context.Context, req agent.GenerateRequest) (string, error) {
		start := time.Now()
		out, err := gen.Generate(ctx, req)
		capability := string(req.Capability)
		m.GenerationDuration.WithLabelValues(capability).Observe(time.Since(start).Seconds())
		if err != nil && !errors.Is(err, context.Canceled) {
			m.GenerationErrors.WithLabelValues(capability).Inc()
		}
		return out, err
	})
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
