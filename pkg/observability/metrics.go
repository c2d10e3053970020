package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/preceptor/pkg/domain"
)

// Namespace prefixes every metric name.
const Namespace = "preceptor"

// Metrics holds the collectors fed by the lifecycle hooks.
type Metrics struct {
	registry *prometheus.Registry

	phaseVisits     *prometheus.CounterVec
	phaseRecoveries prometheus.Counter
	gatewayCalls    *prometheus.CounterVec
	gatewayErrors   *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	artifacts       *prometheus.CounterVec
	artifactLatency prometheus.Histogram
	sessionsDone    prometheus.Counter
}

// NewMetrics creates the collectors and registers them on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		phaseVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "phase_visits_total",
			Help:      "Total number of phase entries.",
		}, []string{"phase"}),
		phaseRecoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "phase_recoveries_total",
			Help:      "States whose unknown phase was clamped to the output phase.",
		}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "gateway_calls_total",
			Help:      "Model gateway calls by operation.",
		}, []string{"operation"}),
		gatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "gateway_errors_total",
			Help:      "Failed or empty model gateway calls by operation.",
		}, []string{"operation"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "gateway_duration_seconds",
			Help:      "Duration of model gateway calls.",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "artifact_generations_total",
			Help:      "Artifact generation attempts by outcome.",
		}, []string{"outcome"}),
		artifactLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "artifact_duration_seconds",
			Help:      "Duration of report and persona generation.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		sessionsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_completed_total",
			Help:      "Sessions that reached the output phase.",
		}),
	}
	m.registry.MustRegister(
		m.phaseVisits,
		m.phaseRecoveries,
		m.gatewayCalls,
		m.gatewayErrors,
		m.gatewayLatency,
		m.artifacts,
		m.artifactLatency,
		m.sessionsDone,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPhaseEnter: func(_ context.Context, e *domain.PhaseEvent) {
			m.phaseVisits.WithLabelValues(e.Phase.String()).Inc()
			if e.Phase.IsTerminal() {
				m.sessionsDone.Inc()
			}
		},
		OnPhaseRecovered: func(_ context.Context, _ *domain.PhaseEvent) {
			m.phaseRecoveries.Inc()
		},
		OnGatewayCall: func(_ context.Context, e *domain.GatewayEvent) {
			m.gatewayCalls.WithLabelValues(e.Operation).Inc()
		},
		OnGatewayReturn: func(_ context.Context, e *domain.GatewayEvent) {
			m.gatewayLatency.WithLabelValues(e.Operation).Observe(e.Duration.Seconds())
			if e.IsError {
				m.gatewayErrors.WithLabelValues(e.Operation).Inc()
			}
		},
		OnArtifacts: func(_ context.Context, e *domain.ArtifactEvent) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.artifacts.WithLabelValues(outcome).Inc()
			m.artifactLatency.Observe(e.Duration.Seconds())
		},
	}
}
