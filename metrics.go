package filedock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filedock_uploads_created_total",
		Help: "Number of PENDING records created by upload requests.",
	})

	presignFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filedock_presign_failures_total",
		Help: "Number of presigned URL requests that failed, by intent.",
	}, []string{"intent"})

	deletesRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filedock_deletes_requested_total",
		Help: "Number of records moved to DELETING by delete requests.",
	})

	objectDeleteFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filedock_object_delete_failures_total",
		Help: "Number of best-effort object deletes that failed, by caller.",
	}, []string{"source"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filedock_notifications_total",
		Help: "Storage notifications processed, by kind and outcome.",
	}, []string{"kind", "outcome"})

	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filedock_sweep_runs_total",
		Help: "Number of sweep runs.",
	})

	sweepRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filedock_sweep_records_total",
		Help: "Records transitioned by the sweep, by resulting status.",
	}, []string{"status"})

	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filedock_sweep_errors_total",
		Help: "Per-record errors encountered by the sweep.",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "filedock_sweep_duration_seconds",
		Help:    "Duration of a sweep run in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)
