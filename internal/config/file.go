// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the YAML configuration file. Pointer fields distinguish
// "absent" from zero values so the loader only overrides what the file sets.
type FileConfig struct {
	LogLevel  *string `yaml:"log_level"`
	LogPretty *bool   `yaml:"log_pretty"`

	Listen        *string `yaml:"listen"`
	MetricsListen *string `yaml:"metrics_listen"`

	DBPath          *string `yaml:"db_path"`
	DBBusyTimeoutMS *int64  `yaml:"db_busy_timeout_ms"`
	DBMaxOpenConns  *int    `yaml:"db_max_open_conns"`

	Scheduler struct {
		LockTimeoutMS         *int64  `yaml:"lock_timeout_ms"`
		LockRefreshIntervalMS *int64  `yaml:"lock_refresh_interval_ms"`
		SweepIntervalMS       *int64  `yaml:"sweep_interval_ms"`
		LockBackend           *string `yaml:"lock_backend"`
		RedisAddr             *string `yaml:"redis_addr"`
		RedisPassword         *string `yaml:"redis_password"`
		RedisDB               *int    `yaml:"redis_db"`
	} `yaml:"scheduler"`

	Uploads struct {
		MaxFileSize              *int64   `yaml:"max_file_size"`
		AllowedMIMETypes         []string `yaml:"allowed_mime_types"`
		AllowedArchiveExtensions []string `yaml:"allowed_archive_extensions"`
		DownloadURLTTLS          *int64   `yaml:"download_url_ttl_s"`
		CallbackEnabled          *bool    `yaml:"callback_enabled"`
		CallbackBaseURL          *string  `yaml:"callback_base_url"`
		SweepStaleAfterMS        *int64   `yaml:"sweep_stale_after_ms"`
		RedirectAllowlist        []string `yaml:"redirect_allowlist"`
	} `yaml:"uploads"`

	Scan struct {
		BaseURL          *string  `yaml:"base_url"`
		TimeoutMS        *int64   `yaml:"timeout_ms"`
		RateLimitRPS     *float64 `yaml:"rate_limit_rps"`
		BreakerThreshold *int     `yaml:"breaker_threshold"`
		BreakerResetMS   *int64   `yaml:"breaker_reset_ms"`
	} `yaml:"scan"`

	Storage struct {
		Bucket          *string `yaml:"bucket"`
		PathPrefix      *string `yaml:"path_prefix"`
		Endpoint        *string `yaml:"endpoint"`
		Region          *string `yaml:"region"`
		AccessKeyID     *string `yaml:"access_key_id"`
		SecretAccessKey *string `yaml:"secret_access_key"`
		ForcePathStyle  *bool   `yaml:"force_path_style"`
	} `yaml:"storage"`

	Telemetry struct {
		Enabled     *bool    `yaml:"enabled"`
		Endpoint    *string  `yaml:"endpoint"`
		Protocol    *string  `yaml:"protocol"`
		SampleRatio *float64 `yaml:"sample_ratio"`
		Environment *string  `yaml:"environment"`
	} `yaml:"otel"`

	API struct {
		RateLimitRPM *int `yaml:"rate_limit_rpm"`
	} `yaml:"api"`
}

// loadFile reads and strictly decodes the YAML config file.
// Unknown keys are an error so typos fail fast instead of being ignored.
func loadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: nothing to override.
			return &fc, nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &fc, nil
}
