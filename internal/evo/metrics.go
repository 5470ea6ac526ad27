package evo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("rulevo.evo")

var (
	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rulevo",
			Subsystem: "evo",
			Name:      "generations_total",
			Help:      "Generations completed, by environment",
		},
		[]string{"env"},
	)

	assessmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rulevo",
			Subsystem: "evo",
			Name:      "assessments_total",
			Help:      "Individual assessments by environment and outcome (assessed, skipped, failed)",
		},
		[]string{"env", "outcome"},
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rulevo",
			Subsystem: "evo",
			Name:      "generation_duration_seconds",
			Help:      "Wall time of one generation including assessment",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"env"},
	)

	bestPerfGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rulevo",
			Subsystem: "evo",
			Name:      "best_perf",
			Help:      "Best perf in the most recent generation",
		},
		[]string{"env"},
	)
)

func recordAssessments(env string, assessed, skipped int) {
	assessmentsTotal.WithLabelValues(env, "assessed").Add(float64(assessed))
	assessmentsTotal.WithLabelValues(env, "skipped").Add(float64(skipped))
}

func recordAssessmentFailure(env string) {
	assessmentsTotal.WithLabelValues(env, "failed").Inc()
}
