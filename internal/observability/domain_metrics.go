package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlmesa_runs_started_total",
			Help: "Total number of question runs started.",
		},
	)
	runsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlmesa_runs_completed_total",
			Help: "Total number of runs that produced a final answer.",
		},
	)
	runsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlmesa_runs_failed_total",
			Help: "Total number of runs that terminated in error, by failing stage.",
		},
		[]string{"stage"},
	)
	executionRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlmesa_execution_retries_total",
			Help: "Total number of execution-failure retries fed back into generation.",
		},
	)
	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlmesa_stage_duration_seconds",
			Help:    "Pipeline stage latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlmesa_active_sessions",
			Help: "Current number of live sessions in the registry.",
		},
	)
	sessionEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlmesa_session_evictions_total",
			Help: "Total number of sessions evicted after TTL expiry.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		runsStartedTotal,
		runsCompletedTotal,
		runsFailedTotal,
		executionRetriesTotal,
		stageDurationSeconds,
		activeSessions,
		sessionEvictionsTotal,
	)
}

func IncrementRunStarted() {
	runsStartedTotal.Inc()
}

func IncrementRunCompleted() {
	runsCompletedTotal.Inc()
}

func IncrementRunFailed(stage string) {
	runsFailedTotal.WithLabelValues(stage).Inc()
}

func IncrementExecutionRetry() {
	executionRetriesTotal.Inc()
}

func ObserveStageDuration(stage string, elapsed time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}

func IncrementSessionEviction() {
	sessionEvictionsTotal.Inc()
}
