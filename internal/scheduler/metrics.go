// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeLeases = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "floodgate_scheduler_active_leases",
		Help: "Number of leases currently held by this process",
	})

	lockTakeovers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floodgate_scheduler_lock_takeovers_total",
		Help: "Leases lost to another replica while held",
	}, []string{"task"})

	taskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floodgate_scheduler_task_runs_total",
		Help: "Task handler executions by result",
	}, []string{"task", "result"})

	taskSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floodgate_scheduler_task_skips_total",
		Help: "Ticks skipped because the lease was held elsewhere",
	}, []string{"task"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "floodgate_scheduler_task_duration_seconds",
		Help:    "Task handler execution duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})

	sweepDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floodgate_scheduler_lock_sweep_deleted_total",
		Help: "Expired lock rows removed by the sweep loop",
	})
)
