package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyberres_events_ingested_total",
			Help: "Total number of events accepted from the input stream",
		},
		[]string{"format"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyberres_events_rejected_total",
			Help: "Total number of input records skipped as malformed",
		},
		[]string{"reason"},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyberres_alerts_generated_total",
			Help: "Total number of alerts raised by the detector",
		},
		[]string{"policy", "threat_type"},
	)

	IncidentsCorrelated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyberres_incidents_correlated_total",
			Help: "Total number of incidents produced by the correlator",
		},
		[]string{"policy", "severity"},
	)

	PolicyEvaluationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyberres_policy_evaluation_failures_total",
			Help: "Total number of policy evaluations aborted by a structural error",
		},
		[]string{"policy"},
	)

	PolicyEvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cyberres_policy_evaluation_duration_seconds",
			Help:    "Time taken to evaluate one policy over the event buffer",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"policy"},
	)

	AvailabilityPct = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cyberres_availability_percent",
			Help: "Availability of the latest evaluation per policy",
		},
		[]string{"policy"},
	)

	WatchCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cyberres_watch_cycles_total",
			Help: "Total number of watch-mode recomputations",
		},
	)

	BufferedEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cyberres_buffered_events",
			Help: "Events held in the watch-mode buffer",
		},
	)

	SnapshotWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cyberres_snapshot_write_failures_total",
			Help: "Total number of output snapshots that could not be written",
		},
	)

	WorkerPoolActiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cyberres_worker_pool_active_workers",
			Help: "Number of running workers per pool",
		},
		[]string{"pool_type"},
	)

	WorkerPoolQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cyberres_worker_pool_queue_size",
			Help: "Tasks waiting in the pool queue",
		},
		[]string{"pool_type"},
	)

	WorkerPoolTasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyberres_worker_pool_tasks_processed_total",
			Help: "Total number of tasks executed per pool",
		},
		[]string{"pool_type"},
	)
)
