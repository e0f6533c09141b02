// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/floodgate/internal/config"
	"github.com/ManuGH/floodgate/internal/scheduler"
)

// App owns the long-lived runtime lifecycle (config watcher, reload
// wiring, the task runner) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.ConfigHolder
	runner       *scheduler.Runner
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator. cfgHolder and runner may be
// nil; the corresponding loops are then skipped.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.ConfigHolder, runner *scheduler.Runner) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		runner:       runner,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup should not fail if watcher cannot be started.
	if a.cfgHolder != nil {
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
		}
	}

	// SIGHUP trigger for manual reload.
	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.cfgHolder.Reload(context.Background()); err != nil {
						a.logger.Warn().
							Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	// Task runner (owned by the daemon; drains and releases leases via ctx).
	if a.runner != nil {
		g.Go(func() error {
			if err := a.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	// Main server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}
