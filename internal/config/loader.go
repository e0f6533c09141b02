// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"time"
)

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath: configPath,
		version:    version,
	}
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults, then file overrides, then environment overrides, then validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		fc, err := loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fc)
	}

	mergeEnvConfig(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func mergeFileConfig(cfg *AppConfig, fc *FileConfig) {
	setString(&cfg.LogLevel, fc.LogLevel)
	setBool(&cfg.LogPretty, fc.LogPretty)
	setString(&cfg.APIListen, fc.Listen)
	setString(&cfg.MetricsListen, fc.MetricsListen)

	setString(&cfg.DBPath, fc.DBPath)
	setMillis(&cfg.DBBusyTimeout, fc.DBBusyTimeoutMS)
	setInt(&cfg.DBMaxOpenConns, fc.DBMaxOpenConns)

	setMillis(&cfg.Scheduler.LockTimeout, fc.Scheduler.LockTimeoutMS)
	setMillis(&cfg.Scheduler.LockRefreshInterval, fc.Scheduler.LockRefreshIntervalMS)
	setMillis(&cfg.Scheduler.SweepInterval, fc.Scheduler.SweepIntervalMS)
	setString(&cfg.Scheduler.LockBackend, fc.Scheduler.LockBackend)
	setString(&cfg.Scheduler.RedisAddr, fc.Scheduler.RedisAddr)
	setString(&cfg.Scheduler.RedisPassword, fc.Scheduler.RedisPassword)
	setInt(&cfg.Scheduler.RedisDB, fc.Scheduler.RedisDB)

	setInt64(&cfg.Uploads.MaxFileSize, fc.Uploads.MaxFileSize)
	if len(fc.Uploads.AllowedMIMETypes) > 0 {
		cfg.Uploads.AllowedMIMETypes = fc.Uploads.AllowedMIMETypes
	}
	if len(fc.Uploads.AllowedArchiveExtensions) > 0 {
		cfg.Uploads.AllowedArchiveExtensions = fc.Uploads.AllowedArchiveExtensions
	}
	if fc.Uploads.DownloadURLTTLS != nil && *fc.Uploads.DownloadURLTTLS > 0 {
		cfg.Uploads.DownloadURLTTL = time.Duration(*fc.Uploads.DownloadURLTTLS) * time.Second
	}
	setBool(&cfg.Uploads.CallbackEnabled, fc.Uploads.CallbackEnabled)
	setString(&cfg.Uploads.CallbackBaseURL, fc.Uploads.CallbackBaseURL)
	setMillis(&cfg.Uploads.SweepStaleAfter, fc.Uploads.SweepStaleAfterMS)
	if len(fc.Uploads.RedirectAllowlist) > 0 {
		cfg.Uploads.RedirectAllowlist = fc.Uploads.RedirectAllowlist
	}

	setString(&cfg.Scan.BaseURL, fc.Scan.BaseURL)
	setMillis(&cfg.Scan.Timeout, fc.Scan.TimeoutMS)
	setFloat(&cfg.Scan.RateLimitRPS, fc.Scan.RateLimitRPS)
	setInt(&cfg.Scan.BreakerThreshold, fc.Scan.BreakerThreshold)
	setMillis(&cfg.Scan.BreakerReset, fc.Scan.BreakerResetMS)

	setString(&cfg.Storage.Bucket, fc.Storage.Bucket)
	setString(&cfg.Storage.PathPrefix, fc.Storage.PathPrefix)
	setString(&cfg.Storage.Endpoint, fc.Storage.Endpoint)
	setString(&cfg.Storage.Region, fc.Storage.Region)
	setString(&cfg.Storage.AccessKeyID, fc.Storage.AccessKeyID)
	setString(&cfg.Storage.SecretAccessKey, fc.Storage.SecretAccessKey)
	setBool(&cfg.Storage.ForcePathStyle, fc.Storage.ForcePathStyle)

	setBool(&cfg.Telemetry.Enabled, fc.Telemetry.Enabled)
	setString(&cfg.Telemetry.Endpoint, fc.Telemetry.Endpoint)
	setString(&cfg.Telemetry.Protocol, fc.Telemetry.Protocol)
	setFloat(&cfg.Telemetry.SampleRatio, fc.Telemetry.SampleRatio)
	setString(&cfg.Telemetry.Environment, fc.Telemetry.Environment)

	setInt(&cfg.API.RateLimitRPM, fc.API.RateLimitRPM)
}

func mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = ParseString("FLOODGATE_LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = ParseBool("FLOODGATE_LOG_PRETTY", cfg.LogPretty)
	cfg.APIListen = ParseString("FLOODGATE_LISTEN", cfg.APIListen)
	cfg.MetricsListen = ParseString("FLOODGATE_METRICS_LISTEN", cfg.MetricsListen)

	cfg.DBPath = ParseString("FLOODGATE_DB_PATH", cfg.DBPath)
	cfg.DBBusyTimeout = ParseMillis("FLOODGATE_DB_BUSY_TIMEOUT_MS", cfg.DBBusyTimeout)
	cfg.DBMaxOpenConns = ParseInt("FLOODGATE_DB_MAX_OPEN_CONNS", cfg.DBMaxOpenConns)

	cfg.Scheduler.LockTimeout = ParseMillis("FLOODGATE_LOCK_TIMEOUT_MS", cfg.Scheduler.LockTimeout)
	cfg.Scheduler.LockRefreshInterval = ParseMillis("FLOODGATE_LOCK_REFRESH_INTERVAL_MS", cfg.Scheduler.LockRefreshInterval)
	cfg.Scheduler.SweepInterval = ParseMillis("FLOODGATE_SWEEP_INTERVAL_MS", cfg.Scheduler.SweepInterval)
	cfg.Scheduler.LockBackend = ParseString("FLOODGATE_LOCK_BACKEND", cfg.Scheduler.LockBackend)
	cfg.Scheduler.RedisAddr = ParseString("FLOODGATE_REDIS_ADDR", cfg.Scheduler.RedisAddr)
	cfg.Scheduler.RedisPassword = ParseString("FLOODGATE_REDIS_PASSWORD", cfg.Scheduler.RedisPassword)
	cfg.Scheduler.RedisDB = ParseInt("FLOODGATE_REDIS_DB", cfg.Scheduler.RedisDB)

	cfg.Uploads.MaxFileSize = ParseInt64("FLOODGATE_MAX_FILE_SIZE", cfg.Uploads.MaxFileSize)
	cfg.Uploads.AllowedMIMETypes = ParseStringSlice("FLOODGATE_ALLOWED_MIME_TYPES", cfg.Uploads.AllowedMIMETypes)
	cfg.Uploads.AllowedArchiveExtensions = ParseStringSlice("FLOODGATE_ALLOWED_ARCHIVE_EXTENSIONS", cfg.Uploads.AllowedArchiveExtensions)
	if s := ParseInt64("FLOODGATE_DOWNLOAD_URL_TTL_S", int64(cfg.Uploads.DownloadURLTTL/time.Second)); s > 0 {
		cfg.Uploads.DownloadURLTTL = time.Duration(s) * time.Second
	}
	cfg.Uploads.CallbackEnabled = ParseBool("FLOODGATE_CALLBACK_ENABLED", cfg.Uploads.CallbackEnabled)
	cfg.Uploads.CallbackBaseURL = ParseString("FLOODGATE_CALLBACK_BASE_URL", cfg.Uploads.CallbackBaseURL)
	cfg.Uploads.SweepStaleAfter = ParseMillis("FLOODGATE_UPLOAD_SWEEP_STALE_AFTER_MS", cfg.Uploads.SweepStaleAfter)
	cfg.Uploads.RedirectAllowlist = ParseStringSlice("FLOODGATE_REDIRECT_ALLOWLIST", cfg.Uploads.RedirectAllowlist)

	cfg.Scan.BaseURL = ParseString("FLOODGATE_SCAN_BASE_URL", cfg.Scan.BaseURL)
	cfg.Scan.Timeout = ParseMillis("FLOODGATE_SCAN_TIMEOUT_MS", cfg.Scan.Timeout)
	cfg.Scan.RateLimitRPS = ParseFloat("FLOODGATE_SCAN_RATE_LIMIT_RPS", cfg.Scan.RateLimitRPS)
	cfg.Scan.BreakerThreshold = ParseInt("FLOODGATE_SCAN_BREAKER_THRESHOLD", cfg.Scan.BreakerThreshold)
	cfg.Scan.BreakerReset = ParseMillis("FLOODGATE_SCAN_BREAKER_RESET_MS", cfg.Scan.BreakerReset)

	cfg.Storage.Bucket = ParseString("FLOODGATE_STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.PathPrefix = ParseString("FLOODGATE_STORAGE_PATH_PREFIX", cfg.Storage.PathPrefix)
	cfg.Storage.Endpoint = ParseString("FLOODGATE_STORAGE_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.Region = ParseString("FLOODGATE_STORAGE_REGION", cfg.Storage.Region)
	cfg.Storage.AccessKeyID = ParseString("FLOODGATE_STORAGE_ACCESS_KEY_ID", cfg.Storage.AccessKeyID)
	cfg.Storage.SecretAccessKey = ParseString("FLOODGATE_STORAGE_SECRET_ACCESS_KEY", cfg.Storage.SecretAccessKey)
	cfg.Storage.ForcePathStyle = ParseBool("FLOODGATE_STORAGE_FORCE_PATH_STYLE", cfg.Storage.ForcePathStyle)

	cfg.Telemetry.Enabled = ParseBool("FLOODGATE_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = ParseString("FLOODGATE_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Protocol = ParseString("FLOODGATE_OTEL_PROTOCOL", cfg.Telemetry.Protocol)
	cfg.Telemetry.SampleRatio = ParseFloat("FLOODGATE_OTEL_SAMPLE_RATIO", cfg.Telemetry.SampleRatio)
	cfg.Telemetry.Environment = ParseString("FLOODGATE_OTEL_ENVIRONMENT", cfg.Telemetry.Environment)

	cfg.API.RateLimitRPM = ParseInt("FLOODGATE_API_RATE_LIMIT_RPM", cfg.API.RateLimitRPM)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setInt64(dst *int64, src *int64) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setMillis(dst *time.Duration, src *int64) {
	if src != nil && *src > 0 {
		*dst = time.Duration(*src) * time.Millisecond
	}
}
