// Package metrics records Prometheus metrics for agent invocations,
// provider attempts and persistence.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the observer interfaces used by the provider client
// and the orchestrator.
type Recorder struct {
	invocations      *prometheus.CounterVec
	invocationTime   *prometheus.HistogramVec
	providerAttempts *prometheus.CounterVec
	persisted        *prometheus.CounterVec
	storageTier      *prometheus.GaugeVec
}

// NewRecorder registers the studioflow metrics with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		invocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studioflow_agent_invocations_total",
				Help: "Agent invocations by agent, status and error kind",
			},
			[]string{"agent", "status", "error_kind"},
		),
		invocationTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studioflow_agent_invocation_duration_seconds",
				Help:    "Duration of agent invocations in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"agent"},
		),
		providerAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studioflow_provider_attempts_total",
				Help: "Model calls by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		persisted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studioflow_persisted_entities_total",
				Help: "Workflow entities saved from agent results",
			},
			[]string{"kind"},
		),
		storageTier: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "studioflow_storage_tier",
				Help: "Active storage tier (1 for the selected tier)",
			},
			[]string{"tier"},
		),
	}
}

func (r *Recorder) ObserveInvocation(agent, status, errorKind string, d time.Duration) {
	r.invocations.WithLabelValues(agent, status, errorKind).Inc()
	r.invocationTime.WithLabelValues(agent).Observe(d.Seconds())
}

func (r *Recorder) ObserveAttempt(model, outcome string) {
	r.providerAttempts.WithLabelValues(model, outcome).Inc()
}

func (r *Recorder) ObservePersisted(kind string) {
	r.persisted.WithLabelValues(kind).Inc()
}

func (r *Recorder) SetStorageTier(tier string) {
	r.storageTier.Reset()
	r.storageTier.WithLabelValues(tier).Set(1)
}
