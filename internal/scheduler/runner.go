// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/floodgate/internal/log"
)

// RunnerConfig tunes the runner's housekeeping loops.
type RunnerConfig struct {
	// SweepInterval is how often expired lock rows are reaped. Zero
	// disables the sweep loop.
	SweepInterval time.Duration
	// SweepGrace keeps rows for this long past expiry so last_run_at
	// survives restarts before the table is bounded.
	SweepGrace time.Duration
	// ShutdownGrace bounds the wait for in-flight handlers on shutdown.
	ShutdownGrace time.Duration
}

func (c *RunnerConfig) applyDefaults() {
	if c.SweepGrace <= 0 {
		c.SweepGrace = 24 * time.Hour
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
}

// Runner drives registered tasks: one goroutine per task waits for the
// next fire instant, takes the lease, runs the handler, releases. A
// replica that loses the acquire race simply skips that tick.
type Runner struct {
	registry *Registry
	locks    *Service
	store    LockStore
	cfg      RunnerConfig
	logger   zerolog.Logger
}

func NewRunner(registry *Registry, locks *Service, store LockStore, cfg RunnerConfig) *Runner {
	cfg.applyDefaults()
	return &Runner{
		registry: registry,
		locks:    locks,
		store:    store,
		cfg:      cfg,
		logger:   log.WithComponent("scheduler-runner"),
	}
}

// Run blocks until ctx is cancelled, then waits up to ShutdownGrace for
// in-flight handlers and releases every held lease on a fresh bounded
// context. Leases that cannot be released in time expire naturally and
// are taken over by another replica.
func (r *Runner) Run(ctx context.Context) error {
	tasks := r.registry.Tasks()

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			r.runTask(ctx, task)
		}(t)
	}

	if r.cfg.SweepInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.sweepLoop(ctx)
		}()
	}

	r.logger.Info().Int("tasks", len(tasks)).Str("owner", r.locks.OwnerID()).Msg("scheduler runner started")

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(r.cfg.ShutdownGrace):
		r.logger.Warn().Dur("grace", r.cfg.ShutdownGrace).Msg("shutdown grace elapsed with handlers still running")
	}

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeCallTimeout)
	defer cancel()
	r.locks.ReleaseAll(releaseCtx)

	r.logger.Info().Msg("scheduler runner stopped")
	return ctx.Err()
}

func (r *Runner) runTask(ctx context.Context, task Task) {
	logger := r.logger.With().Str("task", task.Name).Logger()

	timer := time.NewTimer(time.Until(task.Schedule.Next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		r.runOnce(ctx, task, logger)

		timer.Reset(time.Until(task.Schedule.Next(time.Now())))
	}
}

func (r *Runner) runOnce(ctx context.Context, task Task, logger zerolog.Logger) {
	if !r.locks.Acquire(ctx, task.Name) {
		taskSkips.WithLabelValues(task.Name).Inc()
		logger.Debug().Str("event", "task.skipped").Msg("lease held elsewhere, skipping tick")
		return
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeCallTimeout)
		defer cancel()
		r.locks.Release(releaseCtx, task.Name)
	}()

	runCtx, cancel := context.WithTimeout(log.ContextWithTaskName(ctx, task.Name), task.MaxRunDuration)
	defer cancel()

	start := time.Now()
	err, panicked := runHandler(runCtx, task, logger)
	duration := time.Since(start)
	taskDuration.WithLabelValues(task.Name).Observe(duration.Seconds())

	switch {
	case panicked:
		taskRuns.WithLabelValues(task.Name, "panic").Inc()
	case err != nil:
		taskRuns.WithLabelValues(task.Name, "error").Inc()
		logger.Error().Err(err).Dur("duration", duration).Str("event", "task.failed").Msg("task failed")
	default:
		taskRuns.WithLabelValues(task.Name, "success").Inc()
		logger.Info().Dur("duration", duration).Str("event", "task.completed").Msg("task completed")

		markCtx, cancelMark := context.WithTimeout(context.WithoutCancel(ctx), storeCallTimeout)
		r.locks.MarkSuccess(markCtx, task.Name)
		cancelMark()
	}
}

// runHandler contains handler panics so one bad tick cannot take down
// the scheduler.
func runHandler(ctx context.Context, task Task, logger zerolog.Logger) (err error, panicked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			buf := make([]byte, 8192)
			n := runtime.Stack(buf, false)
			logger.Error().
				Interface("panic_value", rec).
				Str("stack_trace", string(buf[:n])).
				Str("event", "task.panic").
				Msg("task handler panicked")
			err = fmt.Errorf("task %s panicked: %v", task.Name, rec)
			panicked = true
		}
	}()
	return task.Handler(ctx), false
}

func (r *Runner) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
			n, err := r.store.SweepExpired(sweepCtx, r.cfg.SweepGrace)
			cancel()

			if err != nil {
				r.logger.Warn().Err(err).Msg("lock sweep failed")
				continue
			}
			if n > 0 {
				sweepDeleted.Add(float64(n))
				r.logger.Info().Int64("deleted", n).Str("event", "lock.sweep").Msg("swept expired lock rows")
			}
		}
	}
}
