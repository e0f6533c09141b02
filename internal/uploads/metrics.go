package uploads

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsInitiated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floodgate_uploads_initiated_total",
		Help: "Upload sessions opened, by transfer mode.",
	}, []string{"mode"}) // browser|server_fetch

	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floodgate_upload_status_transitions_total",
		Help: "Lifecycle transitions applied to upload records.",
	}, []string{"from", "to"})

	validationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floodgate_upload_validation_failures_total",
		Help: "Validation rule violations observed on transitions to ready.",
	}, []string{"rule"})

	writebackFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floodgate_upload_writeback_failures_total",
		Help: "Project attachment writebacks that failed after retry.",
	})

	downloadGrants = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floodgate_upload_download_grants_total",
		Help: "Presigned download URLs issued.",
	})

	staleSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floodgate_upload_stale_swept_total",
		Help: "Stale pending uploads closed out by the sweep task.",
	})
)
