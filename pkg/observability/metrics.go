package observability

import (
	"context"

	"github.com/hirokts/enikki/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the diary pipeline.
type Metrics struct {
	NodeVisits    *prometheus.CounterVec
	ModelCalls    *prometheus.CounterVec
	ModelDuration *prometheus.HistogramVec
	Fallbacks     *prometheus.CounterVec
	Runs          *prometheus.CounterVec
	QualityScores prometheus.Histogram
	Retries       prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enikki_node_visits_total",
				Help: "Total number of workflow node visits",
			},
			[]string{"step"},
		),
		ModelCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enikki_model_calls_total",
				Help: "External calls by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		ModelDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "enikki_model_call_duration_seconds",
				Help:    "Duration of external calls",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"stage"},
		),
		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enikki_fallbacks_total",
				Help: "Fallback substitutions by stage",
			},
			[]string{"stage"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enikki_runs_total",
				Help: "Finished runs by final status",
			},
			[]string{"status"},
		),
		QualityScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enikki_quality_score",
			Help:    "Final quality score of completed runs",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		Retries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enikki_run_retries",
			Help:    "Regenerations per run",
			Buckets: []float64{0, 1, 2, 3, 5},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.NodeVisits, m.ModelCalls, m.ModelDuration, m.Fallbacks, m.Runs, m.QualityScores, m.Retries)
	}
	return m
}

// Hooks records lifecycle events into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(string(e.Step)).Inc()
		},
		OnModelCall: func(_ context.Context, e *domain.ModelEvent) {
			outcome := "ok"
			if e.Fallback {
				outcome = "fallback"
				m.Fallbacks.WithLabelValues(string(e.Stage)).Inc()
			}
			m.ModelCalls.WithLabelValues(string(e.Stage), outcome).Inc()
			m.ModelDuration.WithLabelValues(string(e.Stage)).Observe(e.Duration.Seconds())
		},
		OnRunComplete: func(_ context.Context, e *domain.RunEvent) {
			m.Runs.WithLabelValues(string(e.Status)).Inc()
			m.Retries.Observe(float64(e.RetryCount))
			if e.QualityScore != nil && e.Status == domain.StatusCompleted {
				m.QualityScores.Observe(*e.QualityScore)
			}
		},
	}
}
