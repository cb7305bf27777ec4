package agent

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TaskRunsTotal counts scheduled task iterations by result.
	TaskRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hive_agent_task_runs_total",
			Help: "Scheduled task iterations by task and result",
		},
		[]string{"task", "result"},
	)

	// PapersValidatedTotal counts submitted verdicts.
	PapersValidatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hive_agent_papers_validated_total",
			Help: "Validation verdicts submitted to the hive",
		},
		[]string{"verdict"},
	)
)

func init() {
	prometheus.MustRegister(TaskRunsTotal)
	prometheus.MustRegister(PapersValidatedTotal)
}
