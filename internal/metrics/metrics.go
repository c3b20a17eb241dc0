// Package metrics holds the Prometheus instruments recorded while the stack
// comes up. They are served by the status API when it is enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackctl",
			Subsystem: "sequencer",
			Name:      "steps_total",
			Help:      "Sequencer steps run, by outcome (ok, failed, warned, skipped)",
		},
		[]string{"step", "outcome"},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stackctl",
			Subsystem: "sequencer",
			Name:      "step_duration_seconds",
			Help:      "Duration of sequencer steps in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600},
		},
		[]string{"step", "outcome"},
	)

	gatePolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackctl",
			Subsystem: "gate",
			Name:      "polls_total",
			Help:      "Readiness probes issued by gates",
		},
		[]string{"gate", "target"},
	)

	gateOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackctl",
			Subsystem: "gate",
			Name:      "outcomes_total",
			Help:      "Gate results by outcome",
		},
		[]string{"gate", "target", "outcome"},
	)

	missingModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stackctl",
			Subsystem: "bootstrap",
			Name:      "missing_models",
			Help:      "Required models not yet available in the model server",
		},
	)
)

func init() {
	prometheus.MustRegister(stepsTotal, stepDuration, gatePolls, gateOutcomes, missingModels)
}

// ObserveStep records one finished sequencer step.
func ObserveStep(step, outcome string, d time.Duration) {
	stepsTotal.WithLabelValues(step, outcome).Inc()
	stepDuration.WithLabelValues(step, outcome).Observe(d.Seconds())
}

// IncPoll counts one probe by a gate.
func IncPoll(gate, target string) { gatePolls.WithLabelValues(gate, target).Inc() }

// GateOutcome counts a finished gate.
func GateOutcome(gate, target, outcome string) {
	if outcome == "" {
		outcome = "unspecified"
	}
	gateOutcomes.WithLabelValues(gate, target, outcome).Inc()
}

// SetMissingModels publishes how many required models are still missing.
func SetMissingModels(n int) { missingModels.Set(float64(n)) }
