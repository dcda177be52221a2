package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reactor_queue_jobs_added_total",
		Help: "Jobs accepted by the job queue",
	}, []string{"kind"})

	jobsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reactor_queue_jobs_rejected_total",
		Help: "Job submissions rejected by the job queue",
	}, []string{"reason"})

	pendingJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reactor_queue_pending_jobs",
		Help: "Jobs waiting in a queue",
	})

	runningJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reactor_queue_running_jobs",
		Help: "Jobs claimed by a worker",
	})
)
