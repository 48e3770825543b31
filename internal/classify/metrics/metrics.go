package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClassificationsTotal tracks classified repositories per source
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starsort_classifications_total",
			Help: "Total number of classified repositories",
		},
		[]string{"source"},
	)

	// ClassificationFailures tracks repositories that failed classification
	ClassificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "starsort_classification_failures_total",
			Help: "Total number of repositories that failed classification",
		},
	)

	// RuleHitsTotal tracks direct rule matches per rule
	RuleHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starsort_rule_hits_total",
			Help: "Total number of direct rule classifications",
		},
		[]string{"rule_id"},
	)

	// AIFallbacksTotal tracks AI failures recovered by a rule candidate
	AIFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "starsort_ai_fallbacks_total",
			Help: "Total number of AI failures recovered by rule fallback",
		},
	)

	// EmptyTagsTotal tracks classifications persisted with no tags
	EmptyTagsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "starsort_empty_tags_total",
			Help: "Total number of classifications persisted without tags",
		},
	)

	// UncategorizedTotal tracks classifications landing in the fallback category
	UncategorizedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "starsort_uncategorized_total",
			Help: "Total number of classifications in the fallback category",
		},
	)

	// ClassifyLatency tracks end-to-end latency per repository
	ClassifyLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starsort_classify_latency_seconds",
			Help:    "Per-repository classification latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// AICallsTotal tracks calls to the AI provider
	AICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starsort_ai_calls_total",
			Help: "Total number of AI provider calls",
		},
		[]string{"provider", "status"},
	)

	// ReadmeFetchesTotal tracks README prefetch outcomes
	ReadmeFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starsort_readme_fetches_total",
			Help: "Total number of README fetch attempts",
		},
		[]string{"status"},
	)

	// JobRunning reports whether a classification run is in flight
	JobRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "starsort_job_running",
			Help: "1 while a classification run is in flight",
		},
	)

	// JobRemaining reports the estimated repositories left in the run
	JobRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "starsort_job_remaining",
			Help: "Estimated repositories remaining in the current run",
		},
	)

	// JobProcessedTotal tracks repositories processed across runs
	JobProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "starsort_job_processed_total",
			Help: "Total repositories processed across classification runs",
		},
	)
)
