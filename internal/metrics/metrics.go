// Package metrics exposes prometheus collectors for the acquisition
// core. Collectors are registered on the default registry and served by
// the API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MonitorClassified counts reconciliation outcomes per classification
	MonitorClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetcharr_monitor_classified_total",
		Help: "Downloads classified by the reconciliation monitor, by result.",
	}, []string{"result"})

	// MonitorPassDuration observes the duration of reconciliation passes
	MonitorPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetcharr_monitor_pass_duration_seconds",
		Help:    "Duration of reconciliation monitor passes.",
		Buckets: prometheus.DefBuckets,
	})

	// SearchesExecuted counts searches issued by the decision engine
	SearchesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetcharr_searches_total",
		Help: "Searches issued by the acquisition decision engine, by kind.",
	}, []string{"kind"})

	// SearchesSkipped counts searches withheld by budget exhaustion
	SearchesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetcharr_searches_skipped_total",
		Help: "Searches withheld because a budget was exhausted, by scope.",
	}, []string{"scope"})

	// FilesImported counts import pipeline file outcomes
	FilesImported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetcharr_import_files_total",
		Help: "Files processed by the import pipeline, by result.",
	}, []string{"result"})

	// JobsProcessed counts job executions per queue
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetcharr_jobs_total",
		Help: "Jobs processed, by queue and result.",
	}, []string{"queue", "result"})
)
