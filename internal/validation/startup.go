// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/floodgate/internal/config"
	"github.com/ManuGH/floodgate/internal/log"
	"github.com/ManuGH/floodgate/internal/persistence/sqlite"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment and dependencies before starting the server.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	// 1. Database directory and file health
	if err := checkDatabase(ctx, logger, cfg.DBPath); err != nil {
		return fmt.Errorf("database check failed: %w", err)
	}

	// 2. Upload pipeline dependencies
	if err := checkUploadPipeline(logger, cfg); err != nil {
		return fmt.Errorf("upload pipeline check failed: %w", err)
	}

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkDatabase(ctx context.Context, logger zerolog.Logger, dbPath string) error {
	if strings.TrimSpace(dbPath) == "" {
		return fmt.Errorf("database path is not configured")
	}

	dir := filepath.Dir(dbPath)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", dir)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}

	// Check write permissions by creating a temp file
	testFile := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", dir, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", dir).Msg("✓ Database directory is writable")

	// An existing database file must pass a quick integrity check before the
	// daemon starts writing to it. A missing file is fine; Open creates it.
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	problems, err := sqlite.VerifyIntegrity(dbPath, "quick")
	if err != nil {
		return fmt.Errorf("integrity check could not run on %s: %w", dbPath, err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("database %s is corrupt: %s", dbPath, strings.Join(problems, "; "))
	}
	logger.Info().Str("path", dbPath).Msg("✓ Database passed quick integrity check")

	return nil
}

func checkUploadPipeline(logger zerolog.Logger, cfg config.AppConfig) error {
	if strings.TrimSpace(cfg.Scan.BaseURL) == "" {
		return fmt.Errorf("scan service base URL is not configured")
	}
	logger.Info().Str("scan_base_url", cfg.Scan.BaseURL).Msg("✓ Scan service configured")

	if strings.TrimSpace(cfg.Storage.Bucket) == "" {
		return fmt.Errorf("storage bucket is not configured")
	}
	logger.Info().Str("bucket", cfg.Storage.Bucket).Msg("✓ Storage bucket configured")

	if cfg.Uploads.CallbackEnabled {
		logger.Info().Str("callback_base_url", cfg.Uploads.CallbackBaseURL).Msg("✓ Scan callback enabled")
	}

	return nil
}
