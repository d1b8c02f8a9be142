package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessed tracks finished jobs per queue and outcome
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobrunner_jobs_processed_total",
			Help: "Total number of jobs processed",
		},
		[]string{"queue", "status"},
	)

	// JobAttempts tracks individual executor attempts per queue
	JobAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobrunner_job_attempts_total",
			Help: "Total number of job attempts",
		},
		[]string{"queue"},
	)

	// JobDuration tracks end-to-end job execution duration
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobrunner_job_duration_seconds",
			Help:    "Job execution duration in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	// DeadLetters tracks jobs handed off to the dead-letter queue
	DeadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobrunner_dead_letters_total",
			Help: "Total number of jobs dead-lettered",
		},
		[]string{"queue"},
	)

	// DeadLetterQueueSize tracks the current dead-letter queue depth
	DeadLetterQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobrunner_dead_letter_queue_size",
			Help: "Current number of jobs in the dead-letter queue",
		},
		[]string{"queue"},
	)

	// BreakerState tracks the circuit breaker state per queue
	// (0 = closed, 1 = open, 2 = half-open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobrunner_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"queue"},
	)

	// RedrivenJobs tracks dead jobs successfully returned to their queue
	RedrivenJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobrunner_redriven_jobs_total",
			Help: "Total number of dead jobs redriven",
		},
		[]string{"queue"},
	)

	// DBConnectionPoolUsage tracks database connection pool utilization
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobrunner_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
