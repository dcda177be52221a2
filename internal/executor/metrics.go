package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reactor_executor_jobs_total",
		Help: "Jobs executed, by kind and outcome",
	}, []string{"kind", "status"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reactor_executor_job_duration_seconds",
		Help:    "Job execution time",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	jobRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reactor_executor_job_retries_total",
		Help: "Job attempts retried after a storage error",
	})

	operationsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reactor_executor_operations_written_total",
		Help: "Operations committed to the index",
	}, []string{"scope"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reactor_executor_document_cache_lookups_total",
		Help: "Document cache lookups, by result",
	}, []string{"result"})
)
