package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CheckInsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkins_recorded_total",
			Help: "Total number of check-ins successfully recorded",
		},
	)
	DuplicateCheckIns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkins_duplicate_total",
			Help: "Check-in attempts rejected by the per-task-per-day constraint",
		},
	)
	StreakResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_streak_resets_total",
			Help: "Streaks reset to zero by daily reconciliation",
		},
	)
	GraceSkipsUsed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_grace_skips_total",
			Help: "Missed days forgiven by a grace skip",
		},
	)
	ChallengesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_completions_total",
			Help: "Enrollments promoted to completed",
		},
	)
	MilestonesHit = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streak_milestones_total",
			Help: "Streak milestone notifications triggered",
		},
	)
	SweepErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_errors_total",
			Help: "Per-enrollment errors swallowed during scheduled sweeps",
		},
		[]string{"job"},
	)
	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Scheduled job invocations",
		},
		[]string{"job", "outcome"},
	)
)

// Register hooks the engine counters into the default registry. Call
// once from main.go alongside the HTTP middleware metrics.
func Register() {
	prometheus.MustRegister(
		CheckInsRecorded,
		DuplicateCheckIns,
		StreakResets,
		GraceSkipsUsed,
		ChallengesCompleted,
		MilestonesHit,
		SweepErrors,
		JobRuns,
	)
}
