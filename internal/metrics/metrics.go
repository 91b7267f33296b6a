// Package metrics exposes Prometheus collectors for resonance matching and
// morphism synthesis.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeHit     = "hit"
	OutcomeGap     = "gap"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeInvalid = "invalid"
)

var (
	matchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "morphogen_match_total",
		Help: "Resonance match requests by outcome",
	}, []string{"outcome"})

	matchCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "morphogen_match_candidates",
		Help:    "Candidates returned per match request",
		Buckets: prometheus.LinearBuckets(0, 1, 8),
	})

	usageRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "morphogen_usage_recorded_total",
		Help: "Morphism names reported through usage telemetry",
	}, []string{"known"})

	synthesisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "morphogen_synthesis_total",
		Help: "Synthesis requests by outcome",
	}, []string{"outcome"})

	synthesisGenerations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "morphogen_synthesis_generations",
		Help:    "Generations evaluated per synthesis attempt",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
	})

	synthesisRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "morphogen_synthesis_retries_total",
		Help: "Second synthesis attempts triggered by a characterized gap",
	})
)

func ObserveMatch(gap bool, candidates int) {
	if gap {
		matchTotal.WithLabelValues(OutcomeGap).Inc()
	} else {
		matchTotal.WithLabelValues(OutcomeHit).Inc()
	}
	matchCandidates.Observe(float64(candidates))
}

func ObserveUsage(known, unknown int) {
	if known > 0 {
		usageRecorded.WithLabelValues("true").Add(float64(known))
	}
	if unknown > 0 {
		usageRecorded.WithLabelValues("false").Add(float64(unknown))
	}
}

func ObserveSynthesis(outcome string) {
	synthesisTotal.WithLabelValues(outcome).Inc()
}

func ObserveSynthesisAttempt(generations int) {
	synthesisGenerations.Observe(float64(generations))
}

func ObserveSynthesisRetry() {
	synthesisRetries.Inc()
}
