// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	fglog "github.com/ManuGH/floodgate/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ConfigHolder holds configuration with atomic reloading capability.
// It provides thread-safe access to configuration and supports hot reloading
// from file or manual trigger via SIGHUP.
type ConfigHolder struct {
	mu         sync.RWMutex
	current    AppConfig
	loader     *Loader
	configPath string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger

	// Reload notifications
	reloadMu        sync.RWMutex
	reloadListeners []chan<- AppConfig
}

// NewConfigHolder creates a new configuration holder with initial config.
func NewConfigHolder(initial AppConfig, loader *Loader, configPath string) *ConfigHolder {
	return &ConfigHolder{
		current:         initial,
		loader:          loader,
		configPath:      configPath,
		logger:          fglog.WithComponent("config"),
		reloadListeners: make([]chan<- AppConfig, 0),
	}
}

// Get returns the current configuration (thread-safe read).
func (h *ConfigHolder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload reloads configuration from file and environment and validates it.
// If validation fails, or the new configuration changes a field that
// requires a restart, the old configuration is kept and an error is
// returned. This ensures atomic config updates - either the full config
// is valid and applied, or the old config remains unchanged.
func (h *ConfigHolder) Reload(_ context.Context) error {
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("event", "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	// Changes to fields outside the hot-reload allowlist cannot take
	// effect in a running process; reject the reload wholesale so the
	// holder never advertises a config that is not actually in force.
	h.mu.Lock()
	oldCfg := h.current
	diff := Diff(oldCfg, newCfg)
	if diff.RestartRequired() {
		h.mu.Unlock()
		h.logger.Warn().
			Strs("fields", diff.RestartFields).
			Str("event", "config.reload_rejected").
			Msg("reload touches settings that require a restart; keeping current configuration")
		return fmt.Errorf("reload rejected: %s require a restart", strings.Join(diff.RestartFields, ", "))
	}
	h.current = newCfg
	h.mu.Unlock()

	// Notify listeners of config change
	h.notifyListeners(newCfg)

	// Log configuration changes
	h.logChanges(oldCfg, newCfg)

	h.logger.Info().
		Str("event", "config.reload_success").
		Msg("configuration reloaded successfully")

	return nil
}

// StartWatcher starts watching the config file for changes.
// If configPath is empty, this is a no-op (config comes from ENV only).
func (h *ConfigHolder) StartWatcher(ctx context.Context) error {
	if h.configPath == "" {
		h.logger.Info().
			Str("event", "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	h.watcher = watcher

	// Add config file to watcher
	if err := watcher.Add(h.configPath); err != nil {
		_ = watcher.Close() // Ignore close error in error path
		return fmt.Errorf("watch config file: %w", err)
	}

	h.logger.Info().
		Str("event", "config.watcher_started").
		Str("path", h.configPath).
		Msg("watching config file for changes")

	// Start watcher goroutine
	go h.watchLoop(ctx)

	return nil
}

// watchLoop is the main file watcher loop.
func (h *ConfigHolder) watchLoop(ctx context.Context) {
	// Debounce timer to avoid multiple reloads for rapid file changes
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			if h.watcher != nil {
				_ = h.watcher.Close() // Ignore close error in error path
			}
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			// Watch for Write and Create events (covers vim, nano, echo)
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				h.logger.Debug().
					Str("event", "config.file_changed").
					Str("op", event.Op.String()).
					Msg("config file changed")

				// Debounce: reset timer on each event
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := h.Reload(ctx); err != nil {
						h.logger.Error().
							Err(err).
							Str("event", "config.auto_reload_failed").
							Msg("automatic config reload failed")
					}
				})
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str("event", "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Stop stops the config watcher (if running).
func (h *ConfigHolder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close() // Ignore close error in error path
	}
}

// RegisterListener registers a channel to receive config reload notifications.
// The channel will receive the new config whenever a reload succeeds.
// The caller is responsible for closing the channel.
func (h *ConfigHolder) RegisterListener(ch chan<- AppConfig) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

// notifyListeners sends the new config to all registered listeners (non-blocking).
func (h *ConfigHolder) notifyListeners(newCfg AppConfig) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()

	for _, ch := range h.reloadListeners {
		select {
		case ch <- newCfg:
		default:
			// Skip if channel is full (non-blocking send)
			h.logger.Warn().
				Str("event", "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

// logChanges logs the differences between old and new configuration.
func (h *ConfigHolder) logChanges(old, newCfg AppConfig) {
	if old.LogLevel != newCfg.LogLevel {
		h.logger.Info().
			Str("old", old.LogLevel).
			Str("new", newCfg.LogLevel).
			Msg("config changed: LogLevel")
	}
	if old.Scheduler.LockTimeout != newCfg.Scheduler.LockTimeout {
		h.logger.Info().
			Dur("old", old.Scheduler.LockTimeout).
			Dur("new", newCfg.Scheduler.LockTimeout).
			Msg("config changed: Scheduler.LockTimeout")
	}
	if old.Scheduler.LockRefreshInterval != newCfg.Scheduler.LockRefreshInterval {
		h.logger.Info().
			Dur("old", old.Scheduler.LockRefreshInterval).
			Dur("new", newCfg.Scheduler.LockRefreshInterval).
			Msg("config changed: Scheduler.LockRefreshInterval")
	}
	if old.Uploads.MaxFileSize != newCfg.Uploads.MaxFileSize {
		h.logger.Info().
			Int64("old", old.Uploads.MaxFileSize).
			Int64("new", newCfg.Uploads.MaxFileSize).
			Msg("config changed: Uploads.MaxFileSize")
	}
	if old.Scan.BaseURL != newCfg.Scan.BaseURL {
		h.logger.Info().
			Str("old", maskURL(old.Scan.BaseURL)).
			Str("new", maskURL(newCfg.Scan.BaseURL)).
			Msg("config changed: Scan.BaseURL")
	}
	if old.API.RateLimitRPM != newCfg.API.RateLimitRPM {
		h.logger.Info().
			Int("old", old.API.RateLimitRPM).
			Int("new", newCfg.API.RateLimitRPM).
			Msg("config changed: API.RateLimitRPM")
	}
}

// maskURL is a helper to mask sensitive URLs for logging.
func maskURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	// Simple redaction: show only that a value is set
	return "***redacted***"
}
