package llm

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AttemptsTotal counts HTTP attempts by classified outcome.
	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hive_agent_llm_attempts_total",
			Help: "Completion attempts by outcome",
		},
		[]string{"outcome"},
	)

	// CompletionsTotal counts logical Complete calls by terminal result.
	CompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hive_agent_llm_completions_total",
			Help: "Completion calls by result",
		},
		[]string{"result"},
	)

	// BackoffSecondsTotal accumulates time spent waiting between attempts.
	BackoffSecondsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hive_agent_llm_backoff_seconds_total",
			Help: "Seconds spent in retry backoff",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(AttemptsTotal)
	prometheus.MustRegister(CompletionsTotal)
	prometheus.MustRegister(BackoffSecondsTotal)
}
