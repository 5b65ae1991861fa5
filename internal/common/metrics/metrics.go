package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	SearchCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_lookups_total",
			Help: "Search cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_provider_calls_total",
			Help: "External provider calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_provider_call_duration_seconds",
			Help:    "External provider call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	RateLimiterWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_waits_total",
			Help: "Number of times a caller was suspended by a window limiter",
		},
		[]string{"limiter"},
	)

	RateLimiterWaitSeconds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_wait_seconds_total",
			Help: "Total time callers spent suspended by a window limiter",
		},
		[]string{"limiter"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tool_calls_total",
			Help: "Tool invocations requested by the model, by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	ReportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_generated_total",
			Help: "Reports by outcome (structured, raw, failed, timeout)",
		},
		[]string{"outcome"},
	)

	CritiqueOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_critique_total",
			Help: "Critique pass outcomes (applied, fallback, skipped)",
		},
		[]string{"outcome"},
	)

	ReportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "report_generation_duration_seconds",
			Help:    "End to end report generation latency",
			Buckets: []float64{5, 15, 30, 60, 120, 180, 300},
		},
	)
)
