// Package usage records what the bot does: prometheus counters for dispatch
// outcomes, intents and escalations, completion latency, and a persisted
// token-usage tracker for the completion service.
package usage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var dispatchOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "shadebot",
		Subsystem: "dispatch",
		Name:      "outcomes_total",
		Help:      "Outcomes returned by the dispatcher, by handler and outcome type",
	},
	[]string{"handler", "type"},
)

var intentsResolved = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "shadebot",
		Name:      "intents_total",
		Help:      "Resolved intents by resolver tier",
	},
	[]string{"intent", "tier"}, // tier: fast, keyword, classifier
)

var escalations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "shadebot",
		Name:      "escalations_total",
		Help:      "Conversations handed to a human, by reason",
	},
	[]string{"reason"},
)

var completionLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "shadebot",
		Name:      "completion_latency_seconds",
		Help:      "Latency of completion service calls",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30},
	},
	[]string{"op", "status"}, // op: classify, edge_case, generate
)

func init() {
	prometheus.MustRegister(dispatchOutcomes, intentsResolved, escalations, completionLatency)
}

// Register registers the collectors with a custom registry. The default
// registry is already populated at init.
func Register(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(dispatchOutcomes, intentsResolved, escalations, completionLatency)
}

// ObserveOutcome counts one dispatcher outcome.
func ObserveOutcome(handler, kind string) {
	dispatchOutcomes.WithLabelValues(handler, kind).Inc()
}

// ObserveIntent counts one resolved intent.
func ObserveIntent(intent, tier string) {
	intentsResolved.WithLabelValues(intent, tier).Inc()
}

// ObserveEscalation counts one escalation.
func ObserveEscalation(reason string) {
	escalations.WithLabelValues(reason).Inc()
}

// ObserveCompletion records the latency of one completion call.
func ObserveCompletion(op string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	completionLatency.WithLabelValues(op, status).Observe(d.Seconds())
}
