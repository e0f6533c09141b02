// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads and validates the floodgate runtime configuration.
// Precedence: environment variables > config file > built-in defaults.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Lock backends supported by the scheduler.
const (
	LockBackendSQLite = "sqlite"
	LockBackendRedis  = "redis"
)

// AppConfig is the validated runtime configuration.
type AppConfig struct {
	Version string

	LogLevel  string
	LogPretty bool

	APIListen     string
	MetricsListen string

	DBPath         string
	DBBusyTimeout  time.Duration
	DBMaxOpenConns int

	Scheduler SchedulerConfig
	Uploads   UploadsConfig
	Scan      ScanConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	API       APIConfig
}

// SchedulerConfig controls the distributed lock service and task runner.
type SchedulerConfig struct {
	// LockTimeout is the lease duration T. A lease not refreshed within T is
	// considered dead and may be taken over by another replica.
	LockTimeout time.Duration

	// LockRefreshInterval is the refresher period R. Must be < LockTimeout/2.
	LockRefreshInterval time.Duration

	// SweepInterval is how often the lock table sweep task fires.
	SweepInterval time.Duration

	// LockBackend selects the shared store: "sqlite" or "redis".
	LockBackend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// UploadsConfig controls the upload lifecycle engine.
type UploadsConfig struct {
	MaxFileSize              int64
	AllowedMIMETypes         []string
	AllowedArchiveExtensions []string
	DownloadURLTTL           time.Duration
	CallbackEnabled          bool
	CallbackBaseURL          string
	SweepStaleAfter          time.Duration
	RedirectAllowlist        []string
}

// ScanConfig controls the upload/scan service client.
type ScanConfig struct {
	BaseURL          string
	Timeout          time.Duration
	RateLimitRPS     float64
	BreakerThreshold int
	BreakerReset     time.Duration
}

// StorageConfig controls the object-store adapter.
type StorageConfig struct {
	Bucket          string
	PathPrefix      string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	Protocol    string // "grpc" or "http"
	SampleRatio float64
	Environment string
}

// APIConfig controls HTTP boundary behaviour.
type APIConfig struct {
	RateLimitRPM int
}

// Defaults returns an AppConfig populated with built-in defaults.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:      "info",
		APIListen:     ":8080",
		MetricsListen: ":9090",

		DBPath:         "/var/lib/floodgate/floodgate.db",
		DBBusyTimeout:  5 * time.Second,
		DBMaxOpenConns: 4,

		Scheduler: SchedulerConfig{
			LockTimeout:         5 * time.Minute,
			LockRefreshInterval: time.Minute,
			SweepInterval:       time.Hour,
			LockBackend:         LockBackendSQLite,
			RedisAddr:           "localhost:6379",
		},
		Uploads: UploadsConfig{
			MaxFileSize: 100 << 20,
			AllowedMIMETypes: []string{
				"application/pdf",
				"application/zip",
				"image/jpeg",
				"image/png",
				"image/tiff",
			},
			AllowedArchiveExtensions: []string{
				".pdf", ".jpg", ".jpeg", ".png", ".tif", ".tiff",
				".xml", ".gml", ".shp", ".shx", ".dbf", ".prj", ".asc",
			},
			DownloadURLTTL:  15 * time.Minute,
			SweepStaleAfter: 24 * time.Hour,
		},
		Scan: ScanConfig{
			Timeout:          10 * time.Second,
			RateLimitRPS:     10,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Storage: StorageConfig{
			Region: "eu-central-1",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			SampleRatio: 0.1,
			Environment: "production",
		},
		API: APIConfig{
			RateLimitRPM: 600,
		},
	}
}

// Validate enforces cross-field rules that cannot be expressed per key.
// On failure the configuration must not be applied.
func (c *AppConfig) Validate() error {
	if c.Scheduler.LockTimeout <= 0 {
		return fmt.Errorf("scheduler.lock_timeout_ms must be positive")
	}
	if c.Scheduler.LockRefreshInterval <= 0 {
		return fmt.Errorf("scheduler.lock_refresh_interval_ms must be positive")
	}
	if c.Scheduler.LockRefreshInterval >= c.Scheduler.LockTimeout/2 {
		return fmt.Errorf("scheduler.lock_refresh_interval_ms (%s) must be below half of scheduler.lock_timeout_ms (%s)",
			c.Scheduler.LockRefreshInterval, c.Scheduler.LockTimeout)
	}
	if c.Scheduler.SweepInterval <= 0 {
		return fmt.Errorf("scheduler.sweep_interval_ms must be positive")
	}
	switch c.Scheduler.LockBackend {
	case LockBackendSQLite:
	case LockBackendRedis:
		if strings.TrimSpace(c.Scheduler.RedisAddr) == "" {
			return fmt.Errorf("scheduler.redis_addr is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("scheduler.lock_backend %q is not supported (sqlite, redis)", c.Scheduler.LockBackend)
	}

	if c.Uploads.MaxFileSize <= 0 {
		return fmt.Errorf("uploads.max_file_size must be positive")
	}
	if len(c.Uploads.AllowedMIMETypes) == 0 {
		return fmt.Errorf("uploads.allowed_mime_types must not be empty")
	}
	if c.Uploads.DownloadURLTTL <= 0 {
		return fmt.Errorf("uploads.download_url_ttl_s must be positive")
	}
	if c.Uploads.CallbackEnabled {
		if err := validateBaseURL(c.Uploads.CallbackBaseURL); err != nil {
			return fmt.Errorf("uploads.callback_base_url: %w", err)
		}
	}

	if c.Scan.BaseURL != "" {
		if err := validateBaseURL(c.Scan.BaseURL); err != nil {
			return fmt.Errorf("scan.base_url: %w", err)
		}
	}
	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("scan.timeout_ms must be positive")
	}

	if c.Storage.Bucket != "" && strings.ContainsAny(c.Storage.Bucket, " /") {
		return fmt.Errorf("storage.bucket %q must not contain spaces or slashes", c.Storage.Bucket)
	}
	if c.Storage.Endpoint != "" {
		if err := validateBaseURL(c.Storage.Endpoint); err != nil {
			return fmt.Errorf("storage.endpoint: %w", err)
		}
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("otel.endpoint is required when telemetry is enabled")
		}
		switch c.Telemetry.Protocol {
		case "grpc", "http":
		default:
			return fmt.Errorf("otel.protocol %q is not supported (grpc, http)", c.Telemetry.Protocol)
		}
	}

	if c.API.RateLimitRPM < 0 {
		return fmt.Errorf("api.rate_limit_rpm must not be negative")
	}

	return nil
}

func validateBaseURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q not allowed", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}
