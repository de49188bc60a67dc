package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_jobs_completed_total",
			Help: "Total number of verification jobs completed per stage",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_jobs_failed_total",
			Help: "Total number of verification jobs failed per stage",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verification_job_duration_seconds",
			Help:    "Duration of stage processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "verification_jobs_active",
			Help: "Number of stage executions in flight",
		},
		[]string{"task_type"},
	)

	// VerdictsTotal counts recorded verdicts by stage and outcome.
	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_verdicts_total",
			Help: "Verdicts recorded per stage",
		},
		[]string{"stage", "verdict"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_notifications_total",
			Help: "Failure notifications published per stage",
		},
		[]string{"stage", "status"},
	)
)

// VerdictLabel renders a verdict for the verdict label.
func VerdictLabel(v bool) string {
	if v {
		return "pass"
	}
	return "fail"
}
